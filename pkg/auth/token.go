package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicgrid/intake-engine/pkg/models"
)

// LocalIssuer is the iss value on tokens this service signs at login.
// Tokens with any other issuer must verify against a configured JWKS.
const LocalIssuer = "intake-engine"

// TokenIssuer signs operator tokens over HS256.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer. The secret must match the verifier's.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token for the admin user. Returns the compact token and its
// expiry.
func (i *TokenIssuer) Issue(user *models.AdminUser) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    LocalIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
