package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/credits-backend/api/responses"
)

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, resp.Header().Get(responses.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(responses.RequestIDHeader, "req-1")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, "req-1", resp.Header().Get(responses.RequestIDHeader))
}

func TestRecovererReturnsInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestLoggingDefaultsStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rec.Write([]byte("x"))
	assert.Equal(t, http.StatusOK, rec.status)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/credits", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
}
