package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/credits-backend/api/middleware"
	"github.com/angelmondragon/credits-backend/internal/billing"
	"github.com/angelmondragon/credits-backend/internal/credits"
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db"
	"github.com/angelmondragon/credits-backend/pkg/db/dbtest"
	"github.com/angelmondragon/credits-backend/pkg/logger"
)

var fixedNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func newServices(t *testing.T) (*credits.Service, *billing.Service) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	repo := credits.NewRepository(conn)
	runner := db.Wrap(conn)
	now := func() time.Time { return fixedNow }

	creditSvc, err := credits.NewService(credits.ServiceParams{
		Repo:              repo,
		TransactionRunner: runner,
		Economics:         credits.DefaultEconomics(),
		Logger:            logg,
		Now:               now,
	})
	require.NoError(t, err)

	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:              repo,
		TransactionRunner: runner,
		Ledger:            creditSvc.Ledger(),
		Logger:            logg,
		Now:               now,
	})
	require.NoError(t, err)
	return creditSvc, billingSvc
}

func call(t *testing.T, h http.HandlerFunc, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestCreditSummaryProvisionsTrial(t *testing.T) {
	creditSvc, _ := newServices(t)

	rec := call(t, CreditSummary(creditSvc, nil), http.MethodGet, "/api/v1/credits", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary credits.Summary
	decodeData(t, rec, &summary)
	assert.Equal(t, "trial", summary.Plan)
	assert.Equal(t, 5, summary.TrialLeft)
	assert.Zero(t, summary.UsedThisMonth)
}

func TestCreditEndpointsRequireUser(t *testing.T) {
	creditSvc, billingSvc := newServices(t)

	assert.Equal(t, http.StatusUnauthorized, call(t, CreditSummary(creditSvc, nil), http.MethodGet, "/", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, CreditGate(creditSvc, nil), http.MethodPost, "/", "", `{"amount":1}`).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, SetAutoTopUp(billingSvc, nil), http.MethodPut, "/", "", `{"enabled":true}`).Code)
}

func TestGateThenCommitTrial(t *testing.T) {
	creditSvc, _ := newServices(t)

	rec := call(t, CreditGate(creditSvc, nil), http.MethodPost, "/api/v1/credits/gate", "u1", `{"amount":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var gate credits.GateResult
	decodeData(t, rec, &gate)
	assert.True(t, gate.Allowed)

	rec = call(t, CreditCommit(creditSvc, nil), http.MethodPost, "/api/v1/credits/commit", "u1", `{"amount":2,"used_before":0}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var view subscriptionView
	decodeData(t, rec, &view)
	assert.Equal(t, 3, view.TrialRemaining)

	rec = call(t, CreditUsage(creditSvc, nil), http.MethodGet, "/api/v1/credits/usage", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items      []usageView `json:"items"`
		Count      int         `json:"count"`
		NextCursor string      `json:"next_cursor"`
	}
	decodeData(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 2, list.Items[0].CreditsUsed)
	assert.Empty(t, list.NextCursor)
}

func TestGateDenialIsNotAnError(t *testing.T) {
	creditSvc, _ := newServices(t)

	rec := call(t, CreditGate(creditSvc, nil), http.MethodPost, "/api/v1/credits/gate", "u1", `{"amount":6}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var gate credits.GateResult
	decodeData(t, rec, &gate)
	assert.False(t, gate.Allowed)
	assert.Equal(t, credits.ReasonTrialLimit, gate.Reason)
}

func TestCommitRejectsBadInput(t *testing.T) {
	creditSvc, _ := newServices(t)

	assert.Equal(t, http.StatusBadRequest, call(t, CreditCommit(creditSvc, nil), http.MethodPost, "/", "u1", `{"amount":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, CreditCommit(creditSvc, nil), http.MethodPost, "/", "u1", `{"amount":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, CreditGate(creditSvc, nil), http.MethodPost, "/", "u1", `{"amount":-1}`).Code)
}

func TestCommitTrialUnderflowIsRejected(t *testing.T) {
	creditSvc, _ := newServices(t)

	rec := call(t, CreditCommit(creditSvc, nil), http.MethodPost, "/", "u1", `{"amount":6,"used_before":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreditUsageRejectsBadQuery(t *testing.T) {
	creditSvc, _ := newServices(t)

	rec := call(t, CreditUsage(creditSvc, nil), http.MethodGet, "/api/v1/credits/usage?month=March", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, CreditUsage(creditSvc, nil), http.MethodGet, "/api/v1/credits/usage?cursor=%25%25", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, CreditUsage(creditSvc, nil), http.MethodGet, "/api/v1/credits/usage?limit=1000", "u1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetAutoTopUp(t *testing.T) {
	_, billingSvc := newServices(t)

	rec := call(t, SetAutoTopUp(billingSvc, nil), http.MethodPut, "/api/v1/credits/auto-top-up", "u1", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var view subscriptionView
	decodeData(t, rec, &view)
	assert.True(t, view.AutoTopUp)

	rec = call(t, SetAutoTopUp(billingSvc, nil), http.MethodPut, "/api/v1/credits/auto-top-up", "u1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := testConfig()

	rec := call(t, HealthReady(cfg, map[string]Pinger{"db": stubPinger{}}, nil), http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Credits-Env"))

	rec = call(t, HealthReady(cfg, map[string]Pinger{"redis": stubPinger{err: assert.AnError}}, nil), http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = call(t, HealthLive(cfg), http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
