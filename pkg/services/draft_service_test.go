package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/audit"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

type draftStatusUpdate struct {
	id         uuid.UUID
	status     string
	reviewedBy *string
}

// mockDraftRepo implements repositories.DraftRepository for testing.
type mockDraftRepo struct {
	drafts map[uuid.UUID]*models.Draft

	created       []*models.Draft
	statusUpdates []draftStatusUpdate

	createErr       error
	updateErr       error
	updateStatusErr error

	// Dashboard counters
	countsByStatus map[string]int
	flaggedCount   int
	recentCount    int
	countErr       error
}

func newMockDraftRepo() *mockDraftRepo {
	return &mockDraftRepo{drafts: make(map[uuid.UUID]*models.Draft)}
}

// add seeds a stored draft, applying the same defaults the real repository
// applies on insert.
func (m *mockDraftRepo) add(draft *models.Draft) *models.Draft {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusDraft
	}
	if draft.Source == "" {
		draft.Source = models.DraftSourceWebForm
	}
	m.drafts[draft.ID] = draft
	return draft
}

func (m *mockDraftRepo) Create(_ context.Context, draft *models.Draft) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.add(draft)
	m.created = append(m.created, draft)
	return nil
}

func (m *mockDraftRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Draft, error) {
	draft, ok := m.drafts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return draft, nil
}

func (m *mockDraftRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDraftRepo) Update(_ context.Context, draft *models.Draft) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.drafts[draft.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.drafts[draft.ID] = draft
	return nil
}

func (m *mockDraftRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, reviewedBy *string) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	draft, ok := m.drafts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	draft.Status = status
	if reviewedBy != nil {
		now := time.Now()
		draft.ReviewedBy = reviewedBy
		draft.ReviewedAt = &now
	}
	m.statusUpdates = append(m.statusUpdates, draftStatusUpdate{id: id, status: status, reviewedBy: reviewedBy})
	return nil
}

func (m *mockDraftRepo) List(_ context.Context, _ repositories.DraftFilter) ([]*models.Draft, error) {
	var drafts []*models.Draft
	for _, d := range m.drafts {
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (m *mockDraftRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	if m.countErr != nil {
		return nil, m.countErr
	}
	return m.countsByStatus, nil
}

func (m *mockDraftRepo) CountFlagged(_ context.Context) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.flaggedCount, nil
}

func (m *mockDraftRepo) CountCreatedSince(_ context.Context, _ time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.recentCount, nil
}

func newTestDraftService(repo *mockDraftRepo) DraftService {
	return NewDraftService(repo, NewIntakeScreener(), audit.NewSecurityAuditor(zap.NewNop()), zap.NewNop())
}

func TestDrafts_Create_RequiresName(t *testing.T) {
	svc := newTestDraftService(newMockDraftRepo())

	_, err := svc.Create(context.Background(), &models.Draft{})

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "name")
}

func TestDrafts_Create_RejectsUnknownSource(t *testing.T) {
	svc := newTestDraftService(newMockDraftRepo())

	_, err := svc.Create(context.Background(), &models.Draft{
		Name:   "Radiant Skin Clinic",
		Source: "crawler",
	})

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "source")
}

func TestDrafts_Create_PersistsCleanDraft(t *testing.T) {
	repo := newMockDraftRepo()
	svc := newTestDraftService(repo)

	created, err := svc.Create(context.Background(), &models.Draft{Name: "Radiant Skin Clinic"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.Flagged)
	assert.Nil(t, created.FlagReason)
	assert.Equal(t, models.DraftStatusDraft, created.Status)
	require.Len(t, repo.created, 1)
}

func TestDrafts_Create_FlagsInjectionButAccepts(t *testing.T) {
	repo := newMockDraftRepo()
	svc := newTestDraftService(repo)

	created, err := svc.Create(context.Background(), &models.Draft{Name: "1' OR '1'='1"})
	require.NoError(t, err)

	assert.True(t, created.Flagged)
	require.NotNil(t, created.FlagReason)
	assert.Contains(t, *created.FlagReason, "sqli pattern in name")
	// Flagged drafts are still persisted; review decides their fate.
	require.Len(t, repo.created, 1)
}

func TestDrafts_Create_RepoError(t *testing.T) {
	repo := newMockDraftRepo()
	repo.createErr = errors.New("connection reset")
	svc := newTestDraftService(repo)

	_, err := svc.Create(context.Background(), &models.Draft{Name: "Radiant Skin Clinic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create draft")
}

func TestDrafts_Update_TerminalDraftRejected(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic", Status: models.DraftStatusApproved})
	svc := newTestDraftService(repo)

	_, err := svc.Update(context.Background(), &models.Draft{ID: stored.ID, Name: "New Name"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestDrafts_Update_ClearsStaleFlag(t *testing.T) {
	repo := newMockDraftRepo()
	reason := "screening: sqli pattern in name"
	stored := repo.add(&models.Draft{
		Name:       "1' OR '1'='1",
		Flagged:    true,
		FlagReason: &reason,
	})
	svc := newTestDraftService(repo)

	updated, err := svc.Update(context.Background(), &models.Draft{
		ID:      stored.ID,
		Name:    "Radiant Skin Clinic",
		Flagged: true,
	})
	require.NoError(t, err)

	assert.False(t, updated.Flagged)
	assert.Nil(t, updated.FlagReason)
}

func TestDrafts_Update_ReFlagsNewContent(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic"})
	svc := newTestDraftService(repo)

	desc := "<script>alert(1)</script>"
	updated, err := svc.Update(context.Background(), &models.Draft{
		ID:          stored.ID,
		Name:        "Radiant Skin Clinic",
		Description: &desc,
	})
	require.NoError(t, err)

	assert.True(t, updated.Flagged)
	require.NotNil(t, updated.FlagReason)
	assert.Contains(t, *updated.FlagReason, "xss pattern in description")
}

func TestDrafts_Submit_MovesToPendingReview(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic"})
	svc := newTestDraftService(repo)

	submitted, err := svc.Submit(context.Background(), stored.ID)
	require.NoError(t, err)

	assert.Equal(t, models.DraftStatusPendingReview, submitted.Status)
	require.Len(t, repo.statusUpdates, 1)
	assert.Nil(t, repo.statusUpdates[0].reviewedBy)
}

func TestDrafts_Submit_AlreadyPendingFails(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic", Status: models.DraftStatusPendingReview})
	svc := newTestDraftService(repo)

	_, err := svc.Submit(context.Background(), stored.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestDrafts_Submit_NotFound(t *testing.T) {
	svc := newTestDraftService(newMockDraftRepo())

	_, err := svc.Submit(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDrafts_Reject_RecordsReviewer(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic", Status: models.DraftStatusPendingReview})
	svc := newTestDraftService(repo)

	rejected, err := svc.Reject(context.Background(), stored.ID, "reviewer-1")
	require.NoError(t, err)

	assert.Equal(t, models.DraftStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewedBy)
	assert.Equal(t, "reviewer-1", *rejected.ReviewedBy)
	assert.NotNil(t, rejected.ReviewedAt)
}

func TestDrafts_Reject_FromInitialStatusFails(t *testing.T) {
	repo := newMockDraftRepo()
	stored := repo.add(&models.Draft{Name: "Radiant Skin Clinic"})
	svc := newTestDraftService(repo)

	_, err := svc.Reject(context.Background(), stored.ID, "reviewer-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, repo.statusUpdates)
}

func TestDrafts_ValidateForApproval(t *testing.T) {
	repo := newMockDraftRepo()
	category := "Med Spa"
	complete := repo.add(&models.Draft{Name: "Radiant Skin Clinic", Category: &category})
	incomplete := repo.add(&models.Draft{Name: "Glow Aesthetics"})
	svc := newTestDraftService(repo)

	result, err := svc.ValidateForApproval(context.Background(), complete.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Contains(t, result.Warnings, "website")

	result, err = svc.ValidateForApproval(context.Background(), incomplete.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "category")
}

func TestValidateDraftForApproval(t *testing.T) {
	category := "Med Spa"
	website := "https://radiantskin.example.com"
	phone := "(415) 555-0142"
	email := "hello@radiantskin.example.com"
	placeRef := "places/ChIJabc123"

	tests := []struct {
		name         string
		draft        *models.Draft
		wantValid    bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name: "fully populated draft has no findings",
			draft: &models.Draft{
				Name:     "Radiant Skin Clinic",
				Category: &category,
				Website:  &website,
				Phone:    &phone,
				Email:    &email,
				PlaceRef: &placeRef,
			},
			wantValid: true,
		},
		{
			name:       "missing category blocks approval",
			draft:      &models.Draft{Name: "Radiant Skin Clinic"},
			wantValid:  false,
			wantErrors: []string{"category"},
			wantWarnings: []string{
				"website", "phone", "email", "place_ref",
			},
		},
		{
			name: "missing contact fields warn only",
			draft: &models.Draft{
				Name:     "Radiant Skin Clinic",
				Category: &category,
			},
			wantValid:    true,
			wantWarnings: []string{"website", "phone", "email", "place_ref"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateDraftForApproval(tt.draft)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantErrors, result.Errors)
			assert.Equal(t, tt.wantWarnings, result.Warnings)
		})
	}
}

// Ensure the mock satisfies the repository interface at compile time.
var _ repositories.DraftRepository = (*mockDraftRepo)(nil)
