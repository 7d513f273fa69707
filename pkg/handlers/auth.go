package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHandler handles operator login and logout.
type AuthHandler struct {
	users  services.AdminUserService
	logger *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users services.AdminUserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
}

// Login handles POST /api/auth/login
// Verifies credentials, issues a bearer token and sets the console session
// cookie so browser clients stay authenticated without the token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.Email == "" || req.Password == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_credentials", "Email and password are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			if err := ErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Login failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "login_failed", "Failed to log in"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.setSession(w, r, result)

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode login response", zap.Error(err))
	}
}

// setSession writes the console session cookie. Failures are logged and
// swallowed; the bearer token in the response body still authenticates.
func (h *AuthHandler) setSession(w http.ResponseWriter, r *http.Request, result *services.LoginResult) {
	if auth.Store == nil {
		return
	}

	// A stale or tampered cookie decodes to a fresh session; replace it.
	session, err := auth.GetSession(r)
	if err != nil {
		h.logger.Debug("Session cookie reset at login", zap.Error(err))
	}
	if session == nil {
		return
	}

	user := result.User
	auth.SetOperator(session, user.ID.String(), user.Email, user.Role, user.DisplayName)
	if err := auth.SaveSession(r, w, session); err != nil {
		h.logger.Warn("Failed to save session", zap.Error(err))
	}
}

// Logout handles POST /api/auth/logout
// Clears the console session cookie. Bearer tokens stay valid until expiry.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if auth.Store != nil {
		session, _ := auth.GetSession(r)
		if session != nil {
			auth.ClearOperator(session)
			if err := auth.SaveSession(r, w, session); err != nil {
				h.logger.Warn("Failed to save session", zap.Error(err))
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
