package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/matching"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// DuplicateCheckInput is the submission excerpt duplicate detection reads.
type DuplicateCheckInput struct {
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
	PlaceRef string `json:"place_ref,omitempty"`
}

// DuplicateCheckResult echoes the checked input back with the ranked
// candidates. Confidence is the head candidate's tier.
type DuplicateCheckResult struct {
	HasDuplicates bool                    `json:"has_duplicates"`
	Confidence    string                  `json:"confidence,omitempty"`
	Matches       []models.MatchCandidate `json:"matches"`
	Input         DuplicateCheckInput     `json:"input"`
}

// DuplicateCheckService runs advisory duplicate detection. Results never
// block a submission.
type DuplicateCheckService interface {
	Check(ctx context.Context, input DuplicateCheckInput) (*DuplicateCheckResult, error)
	// CheckDraft runs the same detection over a persisted draft's fields.
	CheckDraft(ctx context.Context, draft *models.Draft) (*DuplicateCheckResult, error)
}

type duplicateCheckService struct {
	engine *matching.Engine
	logger *zap.Logger
}

// NewDuplicateCheckService creates a new DuplicateCheckService.
func NewDuplicateCheckService(engine *matching.Engine, logger *zap.Logger) DuplicateCheckService {
	return &duplicateCheckService{
		engine: engine,
		logger: logger.Named("duplicate-check"),
	}
}

func (s *duplicateCheckService) Check(ctx context.Context, input DuplicateCheckInput) (*DuplicateCheckResult, error) {
	matches, err := s.engine.Detect(ctx, matching.Query{
		Name:     input.Name,
		Address:  input.Address,
		City:     input.City,
		State:    input.State,
		Phone:    input.Phone,
		Website:  input.Website,
		PlaceRef: input.PlaceRef,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect duplicates: %w", err)
	}

	// Always a list, never null: callers render it directly.
	if matches == nil {
		matches = []models.MatchCandidate{}
	}

	result := &DuplicateCheckResult{
		HasDuplicates: len(matches) > 0,
		Matches:       matches,
		Input:         input,
	}
	if len(matches) > 0 {
		result.Confidence = matches[0].Confidence
	}

	s.logger.Debug("Duplicate check completed",
		zap.String("name", input.Name),
		zap.Int("candidates", len(matches)))
	return result, nil
}

func (s *duplicateCheckService) CheckDraft(ctx context.Context, draft *models.Draft) (*DuplicateCheckResult, error) {
	return s.Check(ctx, DuplicateCheckInput{
		Name:     draft.Name,
		Address:  deref(draft.Address),
		City:     deref(draft.City),
		State:    deref(draft.State),
		Phone:    deref(draft.Phone),
		Website:  deref(draft.Website),
		PlaceRef: deref(draft.PlaceRef),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ensure duplicateCheckService implements DuplicateCheckService at compile time.
var _ DuplicateCheckService = (*duplicateCheckService)(nil)
