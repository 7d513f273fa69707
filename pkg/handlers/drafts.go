package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

const (
	defaultDraftPageSize = 50
	maxDraftPageSize     = 200
)

// UpdateDraftRequest is the request body for editing a pre-terminal draft.
// It rewrites the submitted fields wholesale; the review queue sends the
// full draft back.
type UpdateDraftRequest struct {
	SubmissionRequest
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	DuplicateOf *int64   `json:"duplicate_of,omitempty"`
}

// DraftListResponse is the review-queue page.
type DraftListResponse struct {
	Drafts []*models.Draft `json:"drafts"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// DraftsHandler handles the draft review-queue HTTP requests.
type DraftsHandler struct {
	drafts     services.DraftService
	resolution services.ResolutionService
	duplicates services.DuplicateCheckService
	logger     *zap.Logger
}

// NewDraftsHandler creates a new drafts handler.
func NewDraftsHandler(
	drafts services.DraftService,
	resolution services.ResolutionService,
	duplicates services.DuplicateCheckService,
	logger *zap.Logger,
) *DraftsHandler {
	return &DraftsHandler{
		drafts:     drafts,
		resolution: resolution,
		duplicates: duplicates,
		logger:     logger,
	}
}

// RegisterRoutes registers the drafts handler's routes on the given mux.
// The duplicate check is public so submitters can probe before submitting;
// everything else is operator-only.
func (h *DraftsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/drafts/check-duplicates", h.CheckDuplicates)

	mux.HandleFunc("GET /api/drafts", authMiddleware.RequireOperator(h.List))
	mux.HandleFunc("GET /api/drafts/{id}", authMiddleware.RequireOperator(h.Get))
	mux.HandleFunc("PUT /api/drafts/{id}", authMiddleware.RequireOperator(h.Update))
	mux.HandleFunc("POST /api/drafts/{id}/submit", authMiddleware.RequireOperator(h.Submit))
	mux.HandleFunc("POST /api/drafts/{id}/approve", authMiddleware.RequireOperator(h.Approve))
	mux.HandleFunc("POST /api/drafts/{id}/reject", authMiddleware.RequireOperator(h.Reject))
}

// CheckDuplicates handles POST /api/drafts/check-duplicates
// Runs advisory duplicate detection over the posted fields without storing
// anything.
func (h *DraftsHandler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var input services.DuplicateCheckInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.duplicates.Check(r.Context(), input)
	if err != nil {
		h.logger.Error("Duplicate check failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "check_failed", "Failed to run duplicate check"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to encode duplicate check response", zap.Error(err))
	}
}

// List handles GET /api/drafts
// Returns review-queue rows filtered by status, source and flagged.
func (h *DraftsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParsePagination(r, defaultDraftPageSize, maxDraftPageSize)
	filter := repositories.DraftFilter{
		Status: r.URL.Query().Get("status"),
		Source: r.URL.Query().Get("source"),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_flagged", "flagged must be true or false"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filter.Flagged = &flagged
	}

	drafts, err := h.drafts.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list drafts", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_failed", "Failed to list drafts"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if drafts == nil {
		drafts = []*models.Draft{}
	}

	response := DraftListResponse{Drafts: drafts, Limit: limit, Offset: offset}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to encode draft list response", zap.Error(err))
	}
}

// Get handles GET /api/drafts/{id}
// Returns the draft with its providers, procedures and photos.
func (h *DraftsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	draft, err := h.drafts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Draft not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to load draft", zap.String("draft_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_failed", "Failed to load draft"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: draft}); err != nil {
		h.logger.Error("Failed to encode draft response", zap.Error(err))
	}
}

// Update handles PUT /api/drafts/{id}
// Rewrites a pre-terminal draft's submitted fields and re-runs screening.
func (h *DraftsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_name", "Name is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Source and status never change through edits; the repository update
	// leaves both columns alone.
	draft := req.toDraft("")
	draft.ID = id
	draft.Rating = req.Rating
	draft.ReviewCount = req.ReviewCount
	draft.DuplicateOf = req.DuplicateOf

	updated, err := h.drafts.Update(r.Context(), draft)
	if err != nil {
		h.writeLifecycleError(w, err, "update_failed", "Failed to update draft")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: updated}); err != nil {
		h.logger.Error("Failed to encode draft response", zap.Error(err))
	}
}

// Submit handles POST /api/drafts/{id}/submit
// Moves the draft into the review queue.
func (h *DraftsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	draft, err := h.drafts.Submit(r.Context(), id)
	if err != nil {
		h.writeLifecycleError(w, err, "submit_failed", "Failed to submit draft")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: draft}); err != nil {
		h.logger.Error("Failed to encode draft response", zap.Error(err))
	}
}

// Approve handles POST /api/drafts/{id}/approve
// Resolves the draft into the catalog. The body carries optional rating and
// photo source choices; an empty body approves with defaults.
func (h *DraftsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	reviewerID, _, err := auth.ReviewerFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var opts services.ApprovalOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	opts.ReviewerID = reviewerID.String()

	result, err := h.resolution.ApproveDraft(r.Context(), id, opts)
	if err != nil {
		var validationErr *apperrors.ValidationError
		switch {
		case errors.As(err, &validationErr):
			if err := ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrNotFound):
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrInvalidTransition):
			if err := ErrorResponse(w, http.StatusConflict, "invalid_transition", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Approval failed",
				zap.String("draft_id", id.String()),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "approval_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to encode approval response", zap.Error(err))
	}
}

// Reject handles POST /api/drafts/{id}/reject
// Ends the draft's lifecycle with the reviewer recorded.
func (h *DraftsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	reviewerID, _, err := auth.ReviewerFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	draft, err := h.drafts.Reject(r.Context(), id, reviewerID.String())
	if err != nil {
		h.writeLifecycleError(w, err, "reject_failed", "Failed to reject draft")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: draft}); err != nil {
		h.logger.Error("Failed to encode draft response", zap.Error(err))
	}
}

// writeLifecycleError maps draft lifecycle errors onto HTTP status codes.
// Unknown errors become a 500 with the given code and message.
func (h *DraftsHandler) writeLifecycleError(w http.ResponseWriter, err error, errorCode, message string) {
	var validationErr *apperrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		if err := ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.Is(err, apperrors.ErrNotFound):
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Draft not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.Is(err, apperrors.ErrInvalidTransition):
		if err := ErrorResponse(w, http.StatusConflict, "invalid_transition", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	default:
		h.logger.Error(message, zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, errorCode, message); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
