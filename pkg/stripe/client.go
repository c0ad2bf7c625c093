package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client verifies inbound Stripe webhooks. No outbound API calls are made.
type Client struct {
	environment   string
	signingSecret string
}

// NewClient validates the webhook configuration.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe webhook verifier initialized (%s)", env))
	}

	return &Client{
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Events pinned to another API version are accepted; only a handful of
// stable fields are read from them.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, header, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}
