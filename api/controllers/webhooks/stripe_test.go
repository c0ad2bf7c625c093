package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/credits-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/credits-backend/pkg/config"
	pkgstripe "github.com/angelmondragon/credits-backend/pkg/stripe"
)

const testSecret = "whsec_test"

func newHandler(t *testing.T, svc StripeWebhookService) http.HandlerFunc {
	t.Helper()
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{Secret: testSecret, Env: "test"}, nil)
	require.NoError(t, err)
	guard, err := stripewebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "stripe-webhook")
	require.NoError(t, err)
	return StripeWebhook(svc, client, guard, nil)
}

func post(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakeStripeWebhookService{}
	handler := newHandler(t, service)
	payload, header := buildSignedEvent(t)

	rec := post(handler, payload, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, service.calls)

	replay := post(handler, payload, header)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Contains(t, replay.Body.String(), `"duplicate":true`)
	assert.Equal(t, 1, service.calls)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	service := &fakeStripeWebhookService{}
	handler := newHandler(t, service)
	payload, _ := buildSignedEvent(t)

	rec := post(handler, payload, "t=1,v1=invalid")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(handler, payload, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, service.calls)
}

func TestStripeWebhook_FailureAllowsRedelivery(t *testing.T) {
	service := &fakeStripeWebhookService{err: errors.New("db down")}
	handler := newHandler(t, service)
	payload, header := buildSignedEvent(t)

	rec := post(handler, payload, header)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	service.err = nil
	rec = post(handler, payload, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, service.calls)
}

func TestStripeWebhook_MissingDependencies(t *testing.T) {
	rec := post(StripeWebhook(nil, nil, nil, nil), []byte(`{}`), "t=1,v1=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	subscription := map[string]any{
		"id":     "sub_" + uuid.NewString(),
		"object": "subscription",
		"status": "active",
	}
	rawSub, err := json.Marshal(subscription)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + uuid.NewString(),
		"object":      "event",
		"type":        string(stripe.EventTypeCustomerSubscriptionUpdated),
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": json.RawMessage(rawSub)},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return signed.Payload, signed.Header
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("credits:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
