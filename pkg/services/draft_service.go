package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/audit"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

// ValidationResult is the outcome of the approval-completeness check.
// Errors block approval; warnings are surfaced to the reviewer but do not.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateDraftForApproval runs the approval-completeness check. Category is
// the only hard requirement; missing contact fields and place reference
// produce warnings only.
func ValidateDraftForApproval(draft *models.Draft) *ValidationResult {
	result := &ValidationResult{}

	if draft.Category == nil || *draft.Category == "" {
		result.Errors = append(result.Errors, "category")
	}
	if draft.Website == nil || *draft.Website == "" {
		result.Warnings = append(result.Warnings, "website")
	}
	if draft.Phone == nil || *draft.Phone == "" {
		result.Warnings = append(result.Warnings, "phone")
	}
	if draft.Email == nil || *draft.Email == "" {
		result.Warnings = append(result.Warnings, "email")
	}
	if draft.PlaceRef == nil || *draft.PlaceRef == "" {
		result.Warnings = append(result.Warnings, "place_ref")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// DraftService owns the submission lifecycle up to the review decision.
type DraftService interface {
	// Create screens and persists a new draft.
	Create(ctx context.Context, draft *models.Draft) (*models.Draft, error)
	// Get returns the draft with its child collections.
	Get(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	// Update rewrites the submitted fields of a non-terminal draft and
	// re-runs screening.
	Update(ctx context.Context, draft *models.Draft) (*models.Draft, error)
	// Submit moves the draft into the review queue.
	Submit(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	// Reject ends the draft's lifecycle with the reviewer recorded.
	Reject(ctx context.Context, id uuid.UUID, reviewerID string) (*models.Draft, error)
	// List returns review-queue rows without child collections.
	List(ctx context.Context, filter repositories.DraftFilter) ([]*models.Draft, error)
	// ValidateForApproval reports whether the draft can be approved.
	ValidateForApproval(ctx context.Context, id uuid.UUID) (*ValidationResult, error)
}

type draftService struct {
	draftRepo repositories.DraftRepository
	screener  IntakeScreener
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewDraftService creates a new DraftService.
func NewDraftService(
	draftRepo repositories.DraftRepository,
	screener IntakeScreener,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) DraftService {
	return &draftService{
		draftRepo: draftRepo,
		screener:  screener,
		auditor:   auditor,
		logger:    logger.Named("drafts"),
	}
}

func (s *draftService) Create(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	if draft.Name == "" {
		return nil, &apperrors.ValidationError{Missing: []string{"name"}}
	}
	if draft.Source != "" && !validDraftSource(draft.Source) {
		return nil, &apperrors.ValidationError{Missing: []string{"source"}}
	}

	// Assigned here so the screening audit trail carries the real ID.
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	s.screen(ctx, draft)

	if err := s.draftRepo.Create(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}

	s.logger.Info("Draft created",
		zap.String("draft_id", draft.ID.String()),
		zap.String("source", draft.Source),
		zap.Bool("flagged", draft.Flagged))
	return draft, nil
}

func (s *draftService) Get(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return s.draftRepo.GetByID(ctx, id)
}

func (s *draftService) Update(ctx context.Context, draft *models.Draft) (*models.Draft, error) {
	current, err := s.draftRepo.GetByID(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalDraftStatus(current.Status) {
		return nil, fmt.Errorf("draft %s is %s: %w", draft.ID, current.Status, apperrors.ErrInvalidTransition)
	}
	if draft.Name == "" {
		return nil, &apperrors.ValidationError{Missing: []string{"name"}}
	}

	// Content changed, so the screening verdict must be recomputed.
	draft.Flagged = false
	draft.FlagReason = nil
	s.screen(ctx, draft)

	if err := s.draftRepo.Update(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	return s.draftRepo.GetByID(ctx, draft.ID)
}

func (s *draftService) Submit(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return s.transition(ctx, id, models.DraftStatusPendingReview, nil)
}

func (s *draftService) Reject(ctx context.Context, id uuid.UUID, reviewerID string) (*models.Draft, error) {
	return s.transition(ctx, id, models.DraftStatusRejected, &reviewerID)
}

func (s *draftService) List(ctx context.Context, filter repositories.DraftFilter) ([]*models.Draft, error) {
	return s.draftRepo.List(ctx, filter)
}

func (s *draftService) ValidateForApproval(ctx context.Context, id uuid.UUID) (*ValidationResult, error) {
	draft, err := s.draftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ValidateDraftForApproval(draft), nil
}

// transition moves the draft to status after checking the move is legal from
// the draft's current status.
func (s *draftService) transition(ctx context.Context, id uuid.UUID, status string, reviewedBy *string) (*models.Draft, error) {
	draft, err := s.draftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionDraftStatus(draft.Status, status) {
		return nil, fmt.Errorf("draft %s cannot move from %s to %s: %w",
			id, draft.Status, status, apperrors.ErrInvalidTransition)
	}

	if err := s.draftRepo.UpdateStatus(ctx, id, status, reviewedBy); err != nil {
		return nil, fmt.Errorf("failed to update draft status: %w", err)
	}

	s.logger.Info("Draft status changed",
		zap.String("draft_id", id.String()),
		zap.String("from", draft.Status),
		zap.String("to", status))
	return s.draftRepo.GetByID(ctx, id)
}

// screen runs intake screening and marks the draft when anything hits.
func (s *draftService) screen(ctx context.Context, draft *models.Draft) {
	findings := s.screener.Screen(draft)
	if len(findings) == 0 {
		return
	}

	reason := FlagReason(findings)
	draft.Flagged = true
	draft.FlagReason = &reason

	fields := make([]string, len(findings))
	for i, f := range findings {
		fields[i] = f.Field
	}
	s.auditor.LogSubmissionFlagged(ctx, draft.ID, audit.FlaggedSubmissionDetails{
		Fields: fields,
		Reason: reason,
		Source: draft.Source,
	})
}

func validDraftSource(source string) bool {
	switch source {
	case models.DraftSourceWebForm, models.DraftSourceBulkImport, models.DraftSourceAPI:
		return true
	}
	return false
}

// Ensure draftService implements DraftService at compile time.
var _ DraftService = (*draftService)(nil)
