package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by collaborators.
type AccessTokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
