package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// SubmissionProvider is a provider row in a submission request.
type SubmissionProvider struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// SubmissionProcedure is a procedure row in a submission request. Provider
// names the provider row the procedure belongs to; empty means the clinic's
// first provider at approval time.
type SubmissionProcedure struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider,omitempty"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	PriceMin    *float64 `json:"price_min,omitempty"`
	PriceMax    *float64 `json:"price_max,omitempty"`
	DurationMin *int     `json:"duration_minutes,omitempty"`
}

// SubmissionRequest is the request body for a public clinic submission.
type SubmissionRequest struct {
	Name        string                `json:"name"`
	Category    string                `json:"category,omitempty"`
	Description string                `json:"description,omitempty"`
	Address     string                `json:"address,omitempty"`
	City        string                `json:"city,omitempty"`
	State       string                `json:"state,omitempty"`
	Zip         string                `json:"zip,omitempty"`
	Phone       string                `json:"phone,omitempty"`
	Email       string                `json:"email,omitempty"`
	Website     string                `json:"website,omitempty"`
	PlaceRef    string                `json:"place_ref,omitempty"`
	SubmittedBy string                `json:"submitted_by,omitempty"`
	Source      string                `json:"source,omitempty"`
	Providers   []SubmissionProvider  `json:"providers,omitempty"`
	Procedures  []SubmissionProcedure `json:"procedures,omitempty"`
	Photos      []string              `json:"photos,omitempty"`
}

// SubmissionResponse pairs the created draft with its advisory duplicate
// check. DuplicateCheck is absent when detection degraded.
type SubmissionResponse struct {
	Draft          *models.Draft                  `json:"draft"`
	DuplicateCheck *services.DuplicateCheckResult `json:"duplicate_check,omitempty"`
}

// SubmissionsHandler handles public clinic submissions.
type SubmissionsHandler struct {
	drafts     services.DraftService
	duplicates services.DuplicateCheckService
	logger     *zap.Logger
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(drafts services.DraftService, duplicates services.DuplicateCheckService, logger *zap.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{
		drafts:     drafts,
		duplicates: duplicates,
		logger:     logger,
	}
}

// RegisterRoutes registers the submissions handler's routes on the given mux.
// Submissions are public; screening flags suspect content instead of
// rejecting it.
func (h *SubmissionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/submissions", h.Create)
}

// Create handles POST /api/submissions
// Persists the submission as a draft and attaches an advisory duplicate
// check to the response.
func (h *SubmissionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubmissionRequest
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

	source := req.Source
	if source == "" {
		source = models.DraftSourceWebForm
	}
	if source != models.DraftSourceWebForm && source != models.DraftSourceAPI {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_source", "Source must be web_form or api"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	created, err := h.drafts.Create(r.Context(), req.toDraft(source))
	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			if err := ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to create submission draft", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "submission_failed", "Failed to store submission"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := SubmissionResponse{Draft: created}

	// Advisory only; a degraded check never fails the submission.
	check, err := h.duplicates.CheckDraft(r.Context(), created)
	if err != nil {
		h.logger.Warn("Duplicate check degraded for submission",
			zap.String("draft_id", created.ID.String()),
			zap.Error(err))
	} else {
		response.DuplicateCheck = check
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to encode submission response", zap.Error(err))
	}
}

// toDraft converts the request to a draft carrying the given provenance.
func (req SubmissionRequest) toDraft(source string) *models.Draft {
	draft := &models.Draft{
		Source:      source,
		Name:        strings.TrimSpace(req.Name),
		Category:    optional(req.Category),
		Description: optional(req.Description),
		Address:     optional(req.Address),
		City:        optional(req.City),
		State:       optional(req.State),
		Zip:         optional(req.Zip),
		Phone:       optional(req.Phone),
		Email:       optional(req.Email),
		Website:     optional(req.Website),
		PlaceRef:    optional(req.PlaceRef),
		SubmittedBy: optional(req.SubmittedBy),
	}

	for _, p := range req.Providers {
		draft.Providers = append(draft.Providers, &models.DraftProvider{
			Name:      strings.TrimSpace(p.Name),
			Specialty: optional(p.Specialty),
			PhotoURL:  optional(p.PhotoURL),
		})
	}
	for _, p := range req.Procedures {
		draft.Procedures = append(draft.Procedures, &models.DraftProcedure{
			Name:         strings.TrimSpace(p.Name),
			ProviderName: optional(p.Provider),
			Category:     optional(p.Category),
			Description:  optional(p.Description),
			PriceMin:     p.PriceMin,
			PriceMax:     p.PriceMax,
			DurationMin:  p.DurationMin,
		})
	}
	for i, url := range req.Photos {
		draft.Photos = append(draft.Photos, &models.DraftPhoto{
			URL:          strings.TrimSpace(url),
			DisplayOrder: i,
		})
	}
	return draft
}

// optional trims the value and returns nil for empty strings so absent
// fields stay NULL instead of becoming empty text.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
