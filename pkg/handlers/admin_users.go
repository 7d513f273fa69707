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

// AdminUsersHandler handles operator account management.
type AdminUsersHandler struct {
	users  services.AdminUserService
	logger *zap.Logger
}

// NewAdminUsersHandler creates a new admin users handler.
func NewAdminUsersHandler(users services.AdminUserService, logger *zap.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{users: users, logger: logger}
}

// RegisterRoutes registers the admin users handler's routes on the given mux.
// Only admins can create operator accounts.
func (h *AdminUsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/admin/users", authMiddleware.RequireAdmin(h.Create))
}

// Create handles POST /api/admin/users
// Registers a new operator account.
func (h *AdminUsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.CreateAdminUserInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	user, err := h.users.CreateUser(r.Context(), input)
	if err != nil {
		var validationErr *apperrors.ValidationError
		switch {
		case errors.As(err, &validationErr):
			if err := ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrConflict):
			if err := ErrorResponse(w, http.StatusConflict, "email_exists", "An account with this email already exists"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Failed to create admin user", zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "create_failed", "Failed to create account"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: user}); err != nil {
		h.logger.Error("Failed to encode user response", zap.Error(err))
	}
}
