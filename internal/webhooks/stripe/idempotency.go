package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/credits-backend/pkg/redis"
	"go.uber.org/multierr"
)

// IdempotencyGuard remembers processed provider event ids in redis.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark claims eventID and reports whether it had already been claimed.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases eventID so a redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

// Once runs fn the first time eventID is seen. A failing fn releases the
// claim. The boolean reports whether fn ran.
func (g *IdempotencyGuard) Once(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error) {
	seen, err := g.CheckAndMark(ctx, eventID)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		if delErr := g.Delete(ctx, eventID); delErr != nil {
			return true, multierr.Append(err, fmt.Errorf("release idempotency key: %w", delErr))
		}
		return true, err
	}
	return true, nil
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
