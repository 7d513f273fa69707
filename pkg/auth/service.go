package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
)

// AuthService defines the interface for request authentication.
// This abstraction enables clean separation between HTTP handling
// and authentication logic, making both easier to test.
type AuthService interface {
	// ValidateRequest extracts and validates the operator identity from
	// the request. It checks:
	//   1. Authorization header with "Bearer" scheme (API clients)
	//   2. The operator console session cookie (browser clients)
	// Returns the claims and, for bearer requests, the raw token string.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

// authService implements AuthService.
type authService struct {
	verifier Verifier
	logger   *zap.Logger
}

// NewAuthService creates a new AuthService with the given verifier and logger.
func NewAuthService(verifier Verifier, logger *zap.Logger) AuthService {
	return &authService{
		verifier: verifier,
		logger:   logger,
	}
}

// ValidateRequest extracts and validates the operator identity.
func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	// API clients attach a bearer token.
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, "", ErrInvalidAuthFormat
		}

		claims, err := s.verifier.ValidateToken(parts[1])
		if err != nil {
			s.logger.Debug("Token validation failed",
				zap.Error(err),
				zap.String("path", r.URL.Path))
			return nil, "", err
		}
		return claims, parts[1], nil
	}

	// Browser clients carry the console session cookie set at login.
	if Store != nil {
		session, err := GetSession(r)
		if err == nil && !session.IsNew {
			if claims := OperatorFromSession(session); claims != nil {
				return claims, "", nil
			}
		}
	}

	s.logger.Debug("No credentials found in request",
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method))
	return nil, "", ErrMissingAuthorization
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
