package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecord is one immutable consumption entry in the append-only usage log.
type UsageRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"column:user_id;not null;index:idx_usage_records_user_ts,priority:1"`
	CreditsUsed int       `gorm:"column:credits_used;not null"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index:idx_usage_records_user_ts,priority:2"`
}

// BeforeCreate assigns an id and timestamp when the caller did not.
func (u *UsageRecord) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	return nil
}
