package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

// DashboardSnapshot is the operator console's counter set.
type DashboardSnapshot struct {
	DraftsByStatus  map[string]int `json:"drafts_by_status"`
	Clinics         int            `json:"clinics"`
	Providers       int            `json:"providers"`
	Flagged         int            `json:"flagged"`
	SubmittedLast24 int            `json:"submitted_last_24h"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// DashboardService aggregates the review-console counters.
type DashboardService interface {
	Snapshot(ctx context.Context) (*DashboardSnapshot, error)
}

type dashboardService struct {
	draftRepo    repositories.DraftRepository
	clinicRepo   repositories.ClinicRepository
	providerRepo repositories.ProviderRepository
	logger       *zap.Logger
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(
	draftRepo repositories.DraftRepository,
	clinicRepo repositories.ClinicRepository,
	providerRepo repositories.ProviderRepository,
	logger *zap.Logger,
) DashboardService {
	return &dashboardService{
		draftRepo:    draftRepo,
		clinicRepo:   clinicRepo,
		providerRepo: providerRepo,
		logger:       logger.Named("dashboard"),
	}
}

func (s *dashboardService) Snapshot(ctx context.Context) (*DashboardSnapshot, error) {
	byStatus, err := s.draftRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count drafts: %w", err)
	}
	clinics, err := s.clinicRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count clinics: %w", err)
	}
	providers, err := s.providerRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count providers: %w", err)
	}
	flagged, err := s.draftRepo.CountFlagged(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count flagged drafts: %w", err)
	}
	recent, err := s.draftRepo.CountCreatedSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent submissions: %w", err)
	}

	return &DashboardSnapshot{
		DraftsByStatus:  byStatus,
		Clinics:         clinics,
		Providers:       providers,
		Flagged:         flagged,
		SubmittedLast24: recent,
		GeneratedAt:     time.Now(),
	}, nil
}

// Ensure dashboardService implements DashboardService at compile time.
var _ DashboardService = (*dashboardService)(nil)
