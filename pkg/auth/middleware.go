package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/models"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireOperator validates the operator identity (bearer token or console
// session) and sets claims in context for downstream handlers.
func (m *Middleware) RequireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		if token != "" {
			ctx = context.WithValue(ctx, TokenKey, token)
		}
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin is RequireOperator plus an admin role check.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireOperator(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := GetClaims(r.Context())
		if claims == nil || claims.Role != models.RoleAdmin {
			m.logger.Warn("Non-admin attempted to access admin-only endpoint",
				zap.String("subject", subjectOf(claims)),
				zap.String("path", r.URL.Path))
			m.forbidden(w, "Admin authorization required")
			return
		}
		next(w, r)
	})
}

func subjectOf(claims *Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
