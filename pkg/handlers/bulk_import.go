package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// maxImportUploadBytes caps the multipart form held in memory.
const maxImportUploadBytes = 32 << 20

// BulkImportHandler handles batch clinic file imports.
type BulkImportHandler struct {
	imports services.BulkImportService
	logger  *zap.Logger
}

// NewBulkImportHandler creates a new bulk import handler.
func NewBulkImportHandler(imports services.BulkImportService, logger *zap.Logger) *BulkImportHandler {
	return &BulkImportHandler{imports: imports, logger: logger}
}

// RegisterRoutes registers the bulk import handler's routes on the given mux.
func (h *BulkImportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/bulk/import", authMiddleware.RequireOperator(h.Import))
}

// Import handles POST /api/bulk/import
// Accepts a multipart "file" part holding a CSV or YAML submission batch
// and returns the per-row import report.
func (h *BulkImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUploadBytes); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form upload"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "A file part named 'file' is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer func() { _ = file.Close() }()

	report, err := h.imports.Import(r.Context(), header.Filename, file)
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			if err := ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		// Remaining failures are file-shape problems: unreadable CSV,
		// row limit exceeded.
		if err := ErrorResponse(w, http.StatusBadRequest, "import_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to encode import report", zap.Error(err))
	}
}
