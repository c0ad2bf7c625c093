package billing

import (
	"context"
	"time"

	"github.com/angelmondragon/credits-backend/internal/credits"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo              credits.Repository
	TransactionRunner txRunner
	Ledger            credits.Ledger
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service applies plan transitions coming from the payment provider or an operator.
// Every write sets values rather than incrementing them, so replays are harmless,
// except GrantTopUp which is an operator action.
type Service struct {
	repo   credits.Repository
	tx     txRunner
	ledger credits.Ledger
	logg   *logger.Logger
	now    func() time.Time
}

// CheckoutInput carries a completed checkout session.
type CheckoutInput struct {
	UserID         string `validate:"required"`
	Plan           string `validate:"required,oneof=basic premium"`
	CustomerID     string
	SubscriptionID string
}

// SubscriptionUpdate carries a provider-side subscription change.
type SubscriptionUpdate struct {
	SubscriptionID string `validate:"required"`
	Status         enums.SubscriptionStatus
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		ledger: params.Ledger,
		logg:   params.Logger,
		now:    func() time.Time { return now().UTC() },
	}, nil
}

// CheckoutCompleted moves the user onto the purchased plan and records the
// provider references. A user never seen before is provisioned first.
func (s *Service) CheckoutCompleted(ctx context.Context, input CheckoutInput) (*models.Subscription, error) {
	if err := validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout payload")
	}
	plan, err := enums.ParsePlan(input.Plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan")
	}
	return s.mutateUser(ctx, input.UserID, func(sub *models.Subscription) {
		sub.Plan = plan
		sub.IsActive = true
		if input.CustomerID != "" {
			sub.StripeCustomerID = input.CustomerID
		}
		if input.SubscriptionID != "" {
			sub.StripeSubscriptionID = input.SubscriptionID
		}
	})
}

// SubscriptionUpdated mirrors the provider status and period bounds. Unknown
// subscription ids return (nil, nil).
func (s *Service) SubscriptionUpdated(ctx context.Context, update SubscriptionUpdate) (*models.Subscription, error) {
	if err := validate.Struct(update); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription update")
	}
	return s.mutateByStripeID(ctx, update.SubscriptionID, func(sub *models.Subscription) {
		sub.IsActive = update.Status.IsActive()
		if update.PeriodStart != nil {
			sub.CurrentPeriodStart = update.PeriodStart.UTC()
		}
		if update.PeriodEnd != nil {
			sub.CurrentPeriodEnd = update.PeriodEnd.UTC()
		}
	})
}

// SubscriptionDeleted returns the user to the trial plan. Unknown subscription
// ids return (nil, nil).
func (s *Service) SubscriptionDeleted(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	if subscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	return s.mutateByStripeID(ctx, subscriptionID, func(sub *models.Subscription) {
		sub.Plan = enums.PlanTrial
		sub.IsActive = false
	})
}

// SetPlan assigns plan to the user.
func (s *Service) SetPlan(ctx context.Context, userID string, plan enums.Plan) (*models.Subscription, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").WithDetails(map[string]any{"plan": plan})
	}
	return s.mutateUser(ctx, userID, func(sub *models.Subscription) {
		sub.Plan = plan
	})
}

// GrantTopUp adds prepaid credits to the user's balance.
func (s *Service) GrantTopUp(ctx context.Context, userID string, amount int) (*models.Subscription, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if amount <= 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, credits.ErrInvalidAmount, "top-up must be positive")
	}
	return s.mutateUser(ctx, userID, func(sub *models.Subscription) {
		sub.TopUpCredits += amount
	})
}

// SetAutoTopUp toggles automatic replenishment for the user.
func (s *Service) SetAutoTopUp(ctx context.Context, userID string, enabled bool) (*models.Subscription, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.mutateUser(ctx, userID, func(sub *models.Subscription) {
		sub.AutoTopUp = enabled
	})
}

func (s *Service) mutateUser(ctx context.Context, userID string, apply func(*models.Subscription)) (*models.Subscription, error) {
	if _, err := credits.EnsureSubscription(ctx, s.repo, s.ledger, userID, s.now()); err != nil {
		return nil, err
	}
	var out *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.LockSubscription(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "subscription missing under lock")
		}
		out, err = s.apply(ctx, repo, sub, apply)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, out)
	return out, nil
}

func (s *Service) mutateByStripeID(ctx context.Context, subscriptionID string, apply func(*models.Subscription)) (*models.Subscription, error) {
	var out *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.LockSubscriptionByStripeID(ctx, subscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if sub == nil {
			return nil
		}
		out, err = s.apply(ctx, repo, sub, apply)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		s.logg.Info(s.logg.WithField(ctx, "stripe_subscription_id", subscriptionID), "no subscription for provider id")
		return nil, nil
	}
	s.logTransition(ctx, out)
	return out, nil
}

// apply mutates sub and refreshes the stored included allotment for its plan.
func (s *Service) apply(ctx context.Context, repo credits.Repository, sub *models.Subscription, mutate func(*models.Subscription)) (*models.Subscription, error) {
	mutate(sub)
	if sub.Plan.IsPaid() {
		used, err := repo.SumUsage(ctx, sub.UserID, credits.MonthWindow(s.now()))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum usage")
		}
		s.ledger.RefreshIncluded(sub, used)
	} else {
		sub.IncludedCredits = 0
	}
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}
	return sub, nil
}

func (s *Service) logTransition(ctx context.Context, sub *models.Subscription) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":   sub.UserID,
		"plan":      sub.Plan.String(),
		"is_active": sub.IsActive,
	})
	s.logg.Info(ctx, "subscription updated")
}
