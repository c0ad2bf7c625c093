package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/credits-backend/pkg/errors"
)

type amountBody struct {
	Amount int `json:"amount" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":3}`))
		var body amountBody
		require.NoError(t, DecodeJSONBody(req, &body))
		assert.Equal(t, 3, body.Amount)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":3,"plan":"free"}`))
		err := DecodeJSONBody(req, &amountBody{})
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	})

	t.Run("rule violation uses json name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":0}`))
		err := DecodeJSONBody(req, &amountBody{})
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		details, ok := typed.Details().(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "must be greater than 0", details["amount"])
	})
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	v, err := ParseQueryInt(req, "limit", 100, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 100, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), "limit", 100, 1, 500)
	assert.Error(t, err)
	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=x", nil), "limit", 100, 1, 500)
	assert.Error(t, err)
}

func TestParseQueryMonth(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	got, err := ParseQueryMonth(httptest.NewRequest(http.MethodGet, "/", nil), "month", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = ParseQueryMonth(httptest.NewRequest(http.MethodGet, "/?month=2024-12", nil), "month", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseQueryMonth(httptest.NewRequest(http.MethodGet, "/?month=12-2024", nil), "month", now)
	assert.Error(t, err)
}
