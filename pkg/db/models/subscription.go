package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/credits-backend/pkg/enums"
)

// Subscription holds a user's plan entitlement and prepaid balance.
type Subscription struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID               string     `gorm:"column:user_id;not null;uniqueIndex"`
	Plan                 enums.Plan `gorm:"column:plan;not null;default:'trial'"`
	TrialRemaining       int        `gorm:"column:trial_remaining;not null;default:0"`
	IncludedCredits      int        `gorm:"column:included_credits;not null;default:0"`
	TopUpCredits         int        `gorm:"column:top_up_credits;not null;default:0"`
	AutoTopUp            bool       `gorm:"column:auto_top_up;not null;default:false"`
	CurrentPeriodStart   time.Time  `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd     time.Time  `gorm:"column:current_period_end;not null"`
	IsActive             bool       `gorm:"column:is_active;not null"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;not null;default:''"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;not null;default:'';index"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an id when the caller did not.
func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
