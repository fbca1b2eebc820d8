// Package token provides local bearer-token introspection.
//
// The session manager owns the only copy of the access token and needs its
// expiry to schedule proactive refresh. Tokens are parsed without signature
// verification; the server remains the authority on validity.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Info holds the claims the client branches on.
type Info struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Parse extracts claims from a JWT bearer token without verifying its
// signature.
func Parse(raw string) (*Info, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("stepauth/token: %w", err)
	}

	info := &Info{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	return info, nil
}

// RemainingLife returns how long the token stays valid from now. Tokens
// without an exp claim report zero remaining life.
func RemainingLife(raw string, now time.Time) time.Duration {
	info, err := Parse(raw)
	if err != nil || info.ExpiresAt.IsZero() {
		return 0
	}
	d := info.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
