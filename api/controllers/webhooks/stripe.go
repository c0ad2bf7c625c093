package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/credits-backend/api/responses"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
	"github.com/angelmondragon/credits-backend/pkg/logger"
)

const maxStripePayloadBytes = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhookGuard runs a handler at most once per event id.
type StripeWebhookGuard interface {
	Once(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error)
}

// StripeEventVerifier checks the signature header and decodes the event.
type StripeEventVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

// StripeWebhook verifies, dedupes and applies Stripe billing events.
func StripeWebhook(svc StripeWebhookService, verifier StripeEventVerifier, guard StripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxStripePayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
		}

		ran, err := guard.Once(ctx, event.ID, func(ctx context.Context) error {
			return svc.HandleEvent(ctx, &event)
		})
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "handle stripe event")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			if ran {
				logg.Info(ctx, "stripe event processed")
			} else {
				logg.Info(ctx, "stripe event already processed")
			}
		}
		responses.WriteSuccess(w, map[string]bool{"received": true, "duplicate": !ran})
	}
}
