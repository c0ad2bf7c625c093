package credits

import (
	"context"
	"time"

	"github.com/angelmondragon/credits-backend/pkg/db"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/angelmondragon/credits-backend/pkg/metrics"
	"github.com/angelmondragon/credits-backend/pkg/pagination"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the credits service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Economics         Economics
	Logger            *logger.Logger
	Metrics           *metrics.CreditMetrics
	Now               func() time.Time
}

// Service gates and records credit consumption per user.
type Service struct {
	repo    Repository
	tx      txRunner
	ledger  Ledger
	logg    *logger.Logger
	metrics *metrics.CreditMetrics
	now     func() time.Time
}

// GateResult is returned by Gate. UsedBefore is handed back to Commit.
type GateResult struct {
	Decision
	UsedBefore int  `json:"used_before"`
	ToppedUp   bool `json:"topped_up"`
}

// Summary is the read-only view shown to users.
type Summary struct {
	UserID        string    `json:"user_id"`
	Plan          string    `json:"plan"`
	IsActive      bool      `json:"is_active"`
	UsedThisMonth int       `json:"used_this_month"`
	Limit         Limit     `json:"limit"`
	TrialLeft     int       `json:"trial_remaining"`
	AutoTopUp     bool      `json:"auto_top_up"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
}

// NewService builds a credits service.
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
		repo:    params.Repo,
		tx:      params.TransactionRunner,
		ledger:  NewLedger(params.Economics),
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

// Ledger exposes the plan rules the service applies.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Subscription returns the user's subscription, provisioning a trial on first access.
func (s *Service) Subscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return EnsureSubscription(ctx, s.repo, s.ledger, userID, s.now())
}

// EnsureSubscription loads the user's subscription or creates the default
// trial record. A concurrent creator winning the unique index is tolerated.
// Must not run inside a transaction: postgres aborts the tx on the conflict.
func EnsureSubscription(ctx context.Context, repo Repository, ledger Ledger, userID string, now time.Time) (*models.Subscription, error) {
	sub, err := repo.FindSubscription(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub != nil {
		return sub, nil
	}
	sub = ledger.NewSubscription(userID, now)
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision subscription")
		}
		sub, err = repo.FindSubscription(ctx, userID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
		}
		if sub == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription vanished after conflict")
		}
	}
	return sub, nil
}

// Evaluate reports whether userID may consume amount credits now. Nothing is
// written apart from lazy provisioning.
func (s *Service) Evaluate(ctx context.Context, userID string, amount int) (Decision, error) {
	result, err := s.evaluate(ctx, userID, amount)
	if err != nil {
		return Decision{}, err
	}
	return result.Decision, nil
}

func (s *Service) evaluate(ctx context.Context, userID string, amount int) (GateResult, error) {
	if amount <= 0 {
		return GateResult{}, invalidAmount(amount)
	}
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return GateResult{}, err
	}
	used, err := s.usedFor(ctx, s.repo, sub)
	if err != nil {
		return GateResult{}, err
	}
	decision, err := s.ledger.Evaluate(sub, used, amount)
	if err != nil {
		return GateResult{}, err
	}
	s.metrics.ObserveDecision(sub.Plan.String(), decision.Allowed)
	if !decision.Allowed {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"user_id": userID,
			"plan":    sub.Plan.String(),
			"amount":  amount,
			"used":    used,
		})
		s.logg.Info(ctx, "credit request denied: "+decision.Reason)
	}
	return GateResult{Decision: decision, UsedBefore: used}, nil
}

// MaybeAutoTopUp replenishes the prepaid balance when the user opted in and
// the balance reached the threshold. It reports whether credits were added.
func (s *Service) MaybeAutoTopUp(ctx context.Context, userID string) (bool, error) {
	if _, err := s.Subscription(ctx, userID); err != nil {
		return false, err
	}
	var applied bool
	var plan string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.LockSubscription(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if sub == nil || !sub.AutoTopUp {
			return nil
		}
		used, err := s.usedFor(ctx, repo, sub)
		if err != nil {
			return err
		}
		s.ledger.RefreshIncluded(sub, used)
		if !s.ledger.MaybeAutoTopUp(sub) {
			return nil
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist auto top-up")
		}
		applied = true
		plan = sub.Plan.String()
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.IncAutoTopUp(plan)
		ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID, "plan": plan})
		s.logg.Info(ctx, "auto top-up applied")
	}
	return applied, nil
}

// Gate runs the pre-consumption hook and then evaluates the request.
func (s *Service) Gate(ctx context.Context, userID string, amount int) (GateResult, error) {
	if amount <= 0 {
		return GateResult{}, invalidAmount(amount)
	}
	toppedUp, err := s.MaybeAutoTopUp(ctx, userID)
	if err != nil {
		return GateResult{}, err
	}
	result, err := s.evaluate(ctx, userID, amount)
	if err != nil {
		return GateResult{}, err
	}
	result.ToppedUp = toppedUp
	return result, nil
}

// Commit records amount credits consumed by work that already succeeded.
// Usage is re-read under the row lock; usedBefore is only compared against it.
func (s *Service) Commit(ctx context.Context, userID string, amount, usedBefore int) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, invalidAmount(amount)
	}
	if _, err := s.Subscription(ctx, userID); err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID, "amount": amount})

	var committed *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.LockSubscription(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "subscription missing under lock")
		}
		used, err := s.usedFor(ctx, repo, sub)
		if err != nil {
			return err
		}
		if used != usedBefore && sub.Plan.IsPaid() {
			s.logg.Debug(s.logg.WithField(ctx, "used_before", usedBefore), "usage moved between gate and commit")
		}
		if err := s.ledger.ApplyCommit(sub, used, amount); err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict {
				s.metrics.IncUnderflow(sub.Plan.String())
			}
			return err
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		record := &models.UsageRecord{UserID: userID, CreditsUsed: amount, Timestamp: s.now().UTC()}
		if err := repo.AppendUsage(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append usage record")
		}
		committed = sub
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "credit commit rejected", err)
		return nil, err
	}
	s.metrics.AddCommitted(committed.Plan.String(), amount)
	return committed, nil
}

// Consume wraps fn with the full consumption sequence: auto top-up, evaluate,
// run fn without holding any lock, then commit. When the request is denied or
// fn fails nothing is charged.
func (s *Service) Consume(ctx context.Context, userID string, amount int, fn func(ctx context.Context) error) (Decision, error) {
	gate, err := s.Gate(ctx, userID, amount)
	if err != nil {
		return Decision{}, err
	}
	if !gate.Allowed {
		return gate.Decision, nil
	}
	if err := fn(ctx); err != nil {
		return gate.Decision, err
	}
	if _, err := s.Commit(ctx, userID, amount, gate.UsedBefore); err != nil {
		return gate.Decision, err
	}
	return gate.Decision, nil
}

// ConsumeCredit admits and commits amount in a single locked step, for callers
// with no external work between the check and the charge. It accounts exactly
// like Gate followed by Commit; a request Evaluate would deny fails with
// ErrInsufficientCredits and logs nothing.
func (s *Service) ConsumeCredit(ctx context.Context, userID string, amount int) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, invalidAmount(amount)
	}
	if _, err := s.Subscription(ctx, userID); err != nil {
		return nil, err
	}
	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.LockSubscription(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if sub == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "subscription missing under lock")
		}
		used, err := s.usedFor(ctx, repo, sub)
		if err != nil {
			return err
		}
		if err := s.ledger.Draw(sub, used, amount); err != nil {
			return err
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}
		if err := repo.AppendUsage(ctx, &models.UsageRecord{UserID: userID, CreditsUsed: amount, Timestamp: s.now().UTC()}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append usage record")
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddCommitted(updated.Plan.String(), amount)
	return updated, nil
}

// UsedThisMonth sums the user's usage log over the current calendar month.
func (s *Service) UsedThisMonth(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	used, err := s.repo.SumUsage(ctx, userID, MonthWindow(s.now()))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum usage")
	}
	return used, nil
}

// MonthlyLimit reports the user's admission ceiling for the current month.
func (s *Service) MonthlyLimit(ctx context.Context, userID string) (Limit, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return Limit{}, err
	}
	return s.ledger.MonthlyLimit(sub)
}

// Summary collects the display figures for a user.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.UsedThisMonth(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit, err := s.ledger.MonthlyLimit(sub)
	if err != nil {
		return nil, err
	}
	window := MonthWindow(s.now())
	return &Summary{
		UserID:        userID,
		Plan:          sub.Plan.String(),
		IsActive:      sub.IsActive,
		UsedThisMonth: used,
		Limit:         limit,
		TrialLeft:     sub.TrialRemaining,
		AutoTopUp:     sub.AutoTopUp,
		WindowStart:   window.Start,
		WindowEnd:     window.End,
	}, nil
}

// ListUsage pages through the user's usage entries for the month containing
// at, newest first. A zero at means the current month.
func (s *Service) ListUsage(ctx context.Context, userID string, at time.Time, params pagination.Params) (pagination.Page[models.UsageRecord], error) {
	if userID == "" {
		return pagination.Page[models.UsageRecord]{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.UsageRecord]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if at.IsZero() {
		at = s.now()
	}
	page, err := s.repo.ListUsage(ctx, userID, MonthWindow(at), params)
	if err != nil {
		return pagination.Page[models.UsageRecord]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list usage")
	}
	return page, nil
}

func (s *Service) usedFor(ctx context.Context, repo Repository, sub *models.Subscription) (int, error) {
	if !sub.Plan.IsPaid() {
		return 0, nil
	}
	used, err := repo.SumUsage(ctx, sub.UserID, MonthWindow(s.now()))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum usage")
	}
	return used, nil
}
