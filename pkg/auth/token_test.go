package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "credits",
	ExpirationMinutes: 30,
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()

	token, err := MintAccessToken(testJWT, now, AccessTokenPayload{UserID: "user-7"})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "credits", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	now := time.Now()
	_, err := MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, now, AccessTokenPayload{UserID: "u"})
	assert.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Secret: "s", ExpirationMinutes: 1}, now, AccessTokenPayload{UserID: "u"})
	assert.Error(t, err)
	_, err = MintAccessToken(config.JWTConfig{Secret: "s", Issuer: "x"}, now, AccessTokenPayload{UserID: "u"})
	assert.Error(t, err)
	_, err = MintAccessToken(testJWT, now, AccessTokenPayload{UserID: "  "})
	assert.Error(t, err)
}

func TestParseAccessTokenRejectsBadTokens(t *testing.T) {
	expired, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: "u"})
	require.NoError(t, err)
	_, err = ParseAccessToken(testJWT, expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	token, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{UserID: "u"})
	require.NoError(t, err)

	wrongSecret := testJWT
	wrongSecret.Secret = "other"
	_, err = ParseAccessToken(wrongSecret, token)
	assert.Error(t, err)

	wrongIssuer := testJWT
	wrongIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(wrongIssuer, token)
	assert.Error(t, err)
}
