package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// DashboardHandler serves the operator console counters.
type DashboardHandler struct {
	dashboard services.DashboardService
	logger    *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(dashboard services.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/dashboard", authMiddleware.RequireOperator(h.Snapshot))
}

// Snapshot handles GET /api/dashboard
// Returns the review-console counters.
func (h *DashboardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.dashboard.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Failed to build dashboard snapshot", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "snapshot_failed", "Failed to build dashboard snapshot"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshot}); err != nil {
		h.logger.Error("Failed to encode dashboard response", zap.Error(err))
	}
}
