package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/credits-backend/api/middleware"
	"github.com/angelmondragon/credits-backend/api/responses"
	"github.com/angelmondragon/credits-backend/api/validators"
	"github.com/angelmondragon/credits-backend/internal/credits"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/angelmondragon/credits-backend/pkg/pagination"
)

// CreditsService is the slice of the credit ledger exposed over HTTP.
type CreditsService interface {
	Summary(ctx context.Context, userID string) (*credits.Summary, error)
	ListUsage(ctx context.Context, userID string, at time.Time, params pagination.Params) (pagination.Page[models.UsageRecord], error)
	Gate(ctx context.Context, userID string, amount int) (credits.GateResult, error)
	Commit(ctx context.Context, userID string, amount, usedBefore int) (*models.Subscription, error)
}

// AutoTopUpService toggles the auto top-up preference.
type AutoTopUpService interface {
	SetAutoTopUp(ctx context.Context, userID string, enabled bool) (*models.Subscription, error)
}

type gateRequest struct {
	Amount int `json:"amount" validate:"gt=0"`
}

type commitRequest struct {
	Amount     int `json:"amount" validate:"gt=0"`
	UsedBefore int `json:"used_before" validate:"gte=0"`
}

type autoTopUpRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type subscriptionView struct {
	Plan            string `json:"plan"`
	TrialRemaining  int    `json:"trial_remaining"`
	IncludedCredits int    `json:"included_credits"`
	TopUpCredits    int    `json:"top_up_credits"`
	AutoTopUp       bool   `json:"auto_top_up"`
	IsActive        bool   `json:"is_active"`
}

type usageView struct {
	CreditsUsed int       `json:"credits_used"`
	Timestamp   time.Time `json:"timestamp"`
}

func viewOf(sub *models.Subscription) subscriptionView {
	return subscriptionView{
		Plan:            sub.Plan.String(),
		TrialRemaining:  sub.TrialRemaining,
		IncludedCredits: sub.IncludedCredits,
		TopUpCredits:    sub.TopUpCredits,
		AutoTopUp:       sub.AutoTopUp,
		IsActive:        sub.IsActive,
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return "", false
	}
	return userID, true
}

// CreditSummary returns plan, usage and limit figures for the caller.
func CreditSummary(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		summary, err := svc.Summary(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CreditUsage pages through usage records for one calendar month
// (?month=YYYY-MM&limit=&cursor=).
func CreditUsage(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryMonth(r, "month", time.Time{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListUsage(r.Context(), userID, month, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]usageView, 0, len(page.Items))
		for _, rec := range page.Items {
			items = append(items, usageView{CreditsUsed: rec.CreditsUsed, Timestamp: rec.Timestamp})
		}
		responses.WriteList(w, items, page.NextCursor)
	}
}

// CreditGate runs auto top-up and evaluation. A denial is a 200 with
// allowed=false; callers hand used_before back to the commit endpoint.
func CreditGate(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var req gateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Gate(r.Context(), userID, req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CreditCommit records credits consumed by work that already succeeded.
func CreditCommit(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var req commitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Commit(r.Context(), userID, req.Amount, req.UsedBefore)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(sub))
	}
}

func SetAutoTopUp(svc AutoTopUpService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var req autoTopUpRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.SetAutoTopUp(r.Context(), userID, *req.Enabled)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(sub))
	}
}
