package handlers

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

// mockDraftService is a configurable DraftService for handler tests. A
// non-nil err is returned by every method; canned results come back
// otherwise.
type mockDraftService struct {
	draft  *models.Draft
	drafts []*models.Draft
	err    error

	created     []*models.Draft
	updated     []*models.Draft
	submitted   []uuid.UUID
	rejected    []uuid.UUID
	reviewerIDs []string
	listFilter  repositories.DraftFilter
}

func (m *mockDraftService) Create(_ context.Context, draft *models.Draft) (*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusDraft
	}
	m.created = append(m.created, draft)
	return draft, nil
}

func (m *mockDraftService) Get(_ context.Context, _ uuid.UUID) (*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.draft == nil {
		return nil, apperrors.ErrNotFound
	}
	return m.draft, nil
}

func (m *mockDraftService) Update(_ context.Context, draft *models.Draft) (*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.updated = append(m.updated, draft)
	return draft, nil
}

func (m *mockDraftService) Submit(_ context.Context, id uuid.UUID) (*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.submitted = append(m.submitted, id)
	return m.draft, nil
}

func (m *mockDraftService) Reject(_ context.Context, id uuid.UUID, reviewerID string) (*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.rejected = append(m.rejected, id)
	m.reviewerIDs = append(m.reviewerIDs, reviewerID)
	return m.draft, nil
}

func (m *mockDraftService) List(_ context.Context, filter repositories.DraftFilter) ([]*models.Draft, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.listFilter = filter
	return m.drafts, nil
}

func (m *mockDraftService) ValidateForApproval(_ context.Context, _ uuid.UUID) (*services.ValidationResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.ValidationResult{IsValid: true}, nil
}

// mockResolutionService records the approval call and returns a canned
// result.
type mockResolutionService struct {
	result *services.ApprovalResult
	err    error

	gotDraftID uuid.UUID
	gotOpts    services.ApprovalOptions
}

func (m *mockResolutionService) ApproveDraft(_ context.Context, draftID uuid.UUID, opts services.ApprovalOptions) (*services.ApprovalResult, error) {
	m.gotDraftID = draftID
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockDuplicateChecker records inputs and returns a canned result.
type mockDuplicateChecker struct {
	result *services.DuplicateCheckResult
	err    error

	gotInput     services.DuplicateCheckInput
	checkedDraft *models.Draft
}

func (m *mockDuplicateChecker) Check(_ context.Context, input services.DuplicateCheckInput) (*services.DuplicateCheckResult, error) {
	m.gotInput = input
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.DuplicateCheckResult{Matches: []models.MatchCandidate{}, Input: input}, nil
}

func (m *mockDuplicateChecker) CheckDraft(_ context.Context, draft *models.Draft) (*services.DuplicateCheckResult, error) {
	m.checkedDraft = draft
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.DuplicateCheckResult{Matches: []models.MatchCandidate{}}, nil
}

// mockAdminUserService is a configurable AdminUserService for handler tests.
type mockAdminUserService struct {
	loginResult *services.LoginResult
	user        *models.AdminUser
	err         error

	gotEmail    string
	gotPassword string
	gotInput    services.CreateAdminUserInput
}

func (m *mockAdminUserService) Login(_ context.Context, email, password string) (*services.LoginResult, error) {
	m.gotEmail = email
	m.gotPassword = password
	if m.err != nil {
		return nil, m.err
	}
	return m.loginResult, nil
}

func (m *mockAdminUserService) CreateUser(_ context.Context, input services.CreateAdminUserInput) (*models.AdminUser, error) {
	m.gotInput = input
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func (m *mockAdminUserService) EnsureBootstrapAdmin(_ context.Context, _, _ string) error {
	return m.err
}

// mockDashboardService returns a canned snapshot.
type mockDashboardService struct {
	snapshot *services.DashboardSnapshot
	err      error
}

func (m *mockDashboardService) Snapshot(_ context.Context) (*services.DashboardSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

// mockBulkImportService records the uploaded file and returns a canned
// report.
type mockBulkImportService struct {
	report *services.ImportReport
	err    error

	gotFilename string
	gotContent  []byte
}

func (m *mockBulkImportService) Import(_ context.Context, filename string, file io.Reader) (*services.ImportReport, error) {
	m.gotFilename = filename
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	m.gotContent = content
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

// Compile-time interface checks for the handler mocks.
var (
	_ services.DraftService          = (*mockDraftService)(nil)
	_ services.ResolutionService     = (*mockResolutionService)(nil)
	_ services.DuplicateCheckService = (*mockDuplicateChecker)(nil)
	_ services.AdminUserService      = (*mockAdminUserService)(nil)
	_ services.DashboardService      = (*mockDashboardService)(nil)
	_ services.BulkImportService     = (*mockBulkImportService)(nil)
)
