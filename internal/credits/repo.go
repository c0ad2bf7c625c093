package credits

import (
	"context"
	"errors"

	"github.com/angelmondragon/credits-backend/internal/repo"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository persists subscriptions and the usage log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	LockSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	LockSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	AppendUsage(ctx context.Context, record *models.UsageRecord) error
	SumUsage(ctx context.Context, userID string, window Window) (int, error)
	ListUsage(ctx context.Context, userID string, window Window, params pagination.Params) (pagination.Page[models.UsageRecord], error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Rebind(tx)}
}

func (r *repository) FindSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.first(r.base.DB(ctx).Where("user_id = ?", userID))
}

// LockSubscription loads the user's row with FOR UPDATE. Must run inside a transaction.
func (r *repository) LockSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.first(r.base.ForUpdate(ctx).Where("user_id = ?", userID))
}

func (r *repository) LockSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	return r.first(r.base.ForUpdate(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID))
}

func (r *repository) first(query *gorm.DB) (*models.Subscription, error) {
	var sub models.Subscription
	if err := query.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.base.DB(ctx).Create(sub).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.base.DB(ctx).Save(sub).Error
}

func (r *repository) AppendUsage(ctx context.Context, record *models.UsageRecord) error {
	return r.base.DB(ctx).Create(record).Error
}

func (r *repository) SumUsage(ctx context.Context, userID string, window Window) (int, error) {
	var total int64
	err := r.base.DB(ctx).
		Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(credits_used), 0)").
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, window.Start, window.End).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *repository) ListUsage(ctx context.Context, userID string, window Window, params pagination.Params) (pagination.Page[models.UsageRecord], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.UsageRecord]{}, err
	}
	query := r.base.DB(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp < ?", userID, window.Start, window.End)
	if cursor != nil {
		query = query.Where("(timestamp < ?) OR (timestamp = ? AND id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var records []models.UsageRecord
	if err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&records).Error; err != nil {
		return pagination.Page[models.UsageRecord]{}, err
	}
	return pagination.Trim(records, params.Limit, func(rec models.UsageRecord) pagination.Cursor {
		return pagination.Cursor{At: rec.Timestamp, ID: rec.ID}
	}), nil
}
