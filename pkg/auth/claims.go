// Package auth provides operator authentication for intake-engine.
// Tokens are issued locally over HS256 at login; SSO-issued tokens are
// validated against configured issuer JWKS endpoints.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the operator token claims. It embeds RegisteredClaims
// for standard JWT fields (sub, iss, exp); Subject carries the admin user ID.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// ReviewerFromContext extracts the operator identity recorded on review
// decisions. Returns an error when the request is unauthenticated.
func ReviewerFromContext(ctx context.Context) (uuid.UUID, string, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, "", fmt.Errorf("authentication required: no claims in context")
	}

	if claims.Subject == "" {
		return uuid.Nil, "", fmt.Errorf("missing subject in token claims")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid subject format: %w", err)
	}

	identity := claims.Email
	if identity == "" {
		identity = claims.Subject
	}
	return userID, identity, nil
}
