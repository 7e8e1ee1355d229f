// Package auth implements the poster endpoint's optional bearer-JWT
// check. It is adapted from auth/apikey/apikey.go's bearer-token
// extraction, swapping a static shared-secret comparison for HMAC JWT
// verification via golang-jwt/jwt/v5.
//
// This is additive CLI surface, not a new auth model: spec §6 already
// names a "token" flag on the CLI surface, and spec's Non-goals only cap
// what the CLIENT side may use (HTTP Basic pass-through) — they say
// nothing about the poster endpoint itself, which previously had no auth
// at all. Verification only: this package never issues tokens.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// BearerVerifier checks an Authorization: Bearer <token> header against
// an HMAC secret. The zero value is not usable; use NewBearerVerifier.
type BearerVerifier struct {
	secret []byte
}

// NewBearerVerifier returns a verifier for tokens signed with secret.
func NewBearerVerifier(secret string) *BearerVerifier {
	return &BearerVerifier{secret: []byte(secret)}
}

// tokenFromHeader extracts the bearer token from an Authorization header
// value.
func tokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(authHeader[len("Bearer "):])
	return tok, tok != ""
}

// Check verifies authHeader carries a validly signed, unexpired JWT.
// Returns an error describing the first verification failure.
func (v *BearerVerifier) Check(authHeader string) error {
	tok, ok := tokenFromHeader(authHeader)
	if !ok {
		return fmt.Errorf("missing bearer token")
	}
	_, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}
