package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

const (
	defaultClinicPageSize = 25
	maxClinicPageSize     = 100
)

// ClinicDetail is the full catalog record: the clinic row plus its
// providers, procedures and photo gallery.
type ClinicDetail struct {
	*models.Clinic
	Providers  []*models.Provider    `json:"providers"`
	Procedures []*models.Procedure   `json:"procedures"`
	Photos     []*models.ClinicPhoto `json:"photos"`
}

// ClinicListResponse is one catalog listing page.
type ClinicListResponse struct {
	Clinics []*models.Clinic `json:"clinics"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ClinicsHandler serves the published catalog read side.
type ClinicsHandler struct {
	clinics    repositories.ClinicRepository
	providers  repositories.ProviderRepository
	procedures repositories.ProcedureRepository
	photos     repositories.PhotoRepository
	logger     *zap.Logger
}

// NewClinicsHandler creates a new clinics handler.
func NewClinicsHandler(
	clinics repositories.ClinicRepository,
	providers repositories.ProviderRepository,
	procedures repositories.ProcedureRepository,
	photos repositories.PhotoRepository,
	logger *zap.Logger,
) *ClinicsHandler {
	return &ClinicsHandler{
		clinics:    clinics,
		providers:  providers,
		procedures: procedures,
		photos:     photos,
		logger:     logger,
	}
}

// RegisterRoutes registers the clinics handler's routes on the given mux.
// The catalog is the published directory, so reads are public.
func (h *ClinicsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/clinics", h.List)
	mux.HandleFunc("GET /api/clinics/{id}", h.Get)
}

// List handles GET /api/clinics
// Returns catalog rows filtered by name substring, city and state.
func (h *ClinicsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParsePagination(r, defaultClinicPageSize, maxClinicPageSize)
	filter := repositories.ClinicFilter{
		Query:  r.URL.Query().Get("q"),
		City:   r.URL.Query().Get("city"),
		State:  r.URL.Query().Get("state"),
		Limit:  limit,
		Offset: offset,
	}

	clinics, err := h.clinics.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list clinics", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_failed", "Failed to list clinics"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if clinics == nil {
		clinics = []*models.Clinic{}
	}

	response := ClinicListResponse{Clinics: clinics, Limit: limit, Offset: offset}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to encode clinic list response", zap.Error(err))
	}
}

// Get handles GET /api/clinics/{id}
// Returns the clinic with its providers, procedures and photos.
func (h *ClinicsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseClinicID(w, r, h.logger)
	if !ok {
		return
	}

	clinic, err := h.clinics.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Clinic not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to load clinic", zap.Int64("clinic_id", id), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_failed", "Failed to load clinic"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	detail := ClinicDetail{Clinic: clinic}
	if detail.Providers, err = h.providers.ListByClinic(r.Context(), id); err != nil {
		h.logger.Error("Failed to load clinic providers", zap.Int64("clinic_id", id), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_failed", "Failed to load clinic"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if detail.Procedures, err = h.procedures.ListByClinic(r.Context(), id); err != nil {
		h.logger.Error("Failed to load clinic procedures", zap.Int64("clinic_id", id), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_failed", "Failed to load clinic"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if detail.Photos, err = h.photos.ListByClinic(r.Context(), id); err != nil {
		h.logger.Error("Failed to load clinic photos", zap.Int64("clinic_id", id), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_failed", "Failed to load clinic"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if detail.Providers == nil {
		detail.Providers = []*models.Provider{}
	}
	if detail.Procedures == nil {
		detail.Procedures = []*models.Procedure{}
	}
	if detail.Photos == nil {
		detail.Photos = []*models.ClinicPhoto{}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail}); err != nil {
		h.logger.Error("Failed to encode clinic response", zap.Error(err))
	}
}
