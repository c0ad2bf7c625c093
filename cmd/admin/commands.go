package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/credits-backend/internal/credits"
	pkgAuth "github.com/angelmondragon/credits-backend/pkg/auth"
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/enums"
)

type planAdmin interface {
	SetPlan(ctx context.Context, userID string, plan enums.Plan) (*models.Subscription, error)
	GrantTopUp(ctx context.Context, userID string, amount int) (*models.Subscription, error)
	SetAutoTopUp(ctx context.Context, userID string, enabled bool) (*models.Subscription, error)
}

type summaryReader interface {
	Summary(ctx context.Context, userID string) (*credits.Summary, error)
}

type options struct {
	cmd     string
	users   []string
	plan    string
	amount  int
	enabled bool
}

func splitUsers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// runAdmin applies one command to every user. A failing user does not stop
// the batch; all failures are returned together.
func runAdmin(ctx context.Context, out io.Writer, billing planAdmin, ledger summaryReader, opts options) error {
	if len(opts.users) == 0 {
		return fmt.Errorf("at least one user is required")
	}

	var apply func(userID string) (*models.Subscription, error)
	switch opts.cmd {
	case "set-plan":
		plan, err := enums.ParsePlan(opts.plan)
		if err != nil {
			return err
		}
		apply = func(userID string) (*models.Subscription, error) { return billing.SetPlan(ctx, userID, plan) }
	case "grant-top-up":
		apply = func(userID string) (*models.Subscription, error) { return billing.GrantTopUp(ctx, userID, opts.amount) }
	case "auto-top-up":
		apply = func(userID string) (*models.Subscription, error) { return billing.SetAutoTopUp(ctx, userID, opts.enabled) }
	case "summary":
		var errs error
		for _, userID := range opts.users {
			summary, err := ledger.Summary(ctx, userID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", userID, err))
				continue
			}
			fmt.Fprintf(out, "%s plan=%s used=%d limit=%d unlimited=%t trial_remaining=%d\n",
				userID, summary.Plan, summary.UsedThisMonth, summary.Limit.Total, summary.Limit.Unlimited, summary.TrialLeft)
		}
		return errs
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}

	var errs error
	for _, userID := range opts.users {
		sub, err := apply(userID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", userID, err))
			continue
		}
		fmt.Fprintf(out, "%s plan=%s top_up=%d auto_top_up=%t\n", userID, sub.Plan, sub.TopUpCredits, sub.AutoTopUp)
	}
	return errs
}

func mintTokens(out io.Writer, cfg config.JWTConfig, now time.Time, users []string) error {
	if len(users) == 0 {
		return fmt.Errorf("at least one user is required")
	}
	var errs error
	for _, userID := range users {
		token, err := pkgAuth.MintAccessToken(cfg, now, pkgAuth.AccessTokenPayload{UserID: userID})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", userID, err))
			continue
		}
		fmt.Fprintf(out, "%s %s\n", userID, token)
	}
	return errs
}
