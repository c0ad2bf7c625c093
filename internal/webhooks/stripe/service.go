package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/credits-backend/internal/billing"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/angelmondragon/credits-backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
)

const (
	metadataUserID   = "user_id"
	metadataPlanHint = "plan_hint"
)

type billingService interface {
	CheckoutCompleted(ctx context.Context, input billing.CheckoutInput) (*models.Subscription, error)
	SubscriptionUpdated(ctx context.Context, update billing.SubscriptionUpdate) (*models.Subscription, error)
	SubscriptionDeleted(ctx context.Context, subscriptionID string) (*models.Subscription, error)
}

type ServiceParams struct {
	Billing billingService
	Logger  *logger.Logger
	Metrics *metrics.WebhookMetrics
}

// Service translates Stripe events into plan transitions.
type Service struct {
	billing billingService
	logg    *logger.Logger
	metrics *metrics.WebhookMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		billing: params.Billing,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// HandleEvent applies a verified event. Event types outside the subscription
// lifecycle are acknowledged without effect.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	started := time.Now()
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})

	applied, err := s.dispatch(ctx, event)
	result := "ignored"
	switch {
	case err != nil:
		result = "error"
	case applied:
		result = "applied"
	}
	s.metrics.Observe(string(event.Type), result, time.Since(started))
	return err
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (bool, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.checkoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		updated, err := s.billing.SubscriptionUpdated(ctx, subscriptionUpdate(&sub))
		return updated != nil, err
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		deleted, err := s.billing.SubscriptionDeleted(ctx, sub.ID)
		return deleted != nil, err
	default:
		return false, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, session *stripe.CheckoutSession) (bool, error) {
	userID := strings.TrimSpace(session.Metadata[metadataUserID])
	planHint := strings.TrimSpace(session.Metadata[metadataPlanHint])
	if userID == "" || planHint == "" {
		s.logg.Warn(ctx, "checkout session without user or plan metadata")
		return false, nil
	}
	if plan, err := enums.ParsePlan(planHint); err != nil || !plan.IsPaid() {
		s.logg.Warn(s.logg.WithField(ctx, "plan_hint", planHint), "checkout session for a plan that cannot be purchased")
		return false, nil
	}
	input := billing.CheckoutInput{UserID: userID, Plan: planHint}
	if session.Customer != nil {
		input.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		input.SubscriptionID = session.Subscription.ID
	}
	if _, err := s.billing.CheckoutCompleted(ctx, input); err != nil {
		return false, err
	}
	return true, nil
}

func subscriptionUpdate(sub *stripe.Subscription) billing.SubscriptionUpdate {
	update := billing.SubscriptionUpdate{
		SubscriptionID: sub.ID,
		Status:         enums.SubscriptionStatus(sub.Status),
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return update
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodStart > 0 {
		start := time.Unix(item.CurrentPeriodStart, 0).UTC()
		update.PeriodStart = &start
	}
	if item.CurrentPeriodEnd > 0 {
		end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		update.PeriodEnd = &end
	}
	return update
}
