package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

// stubDraftService implements DraftService; only Create is exercised by the
// importer.
type stubDraftService struct {
	created  []*models.Draft
	failName string
}

func (s *stubDraftService) Create(_ context.Context, draft *models.Draft) (*models.Draft, error) {
	if s.failName != "" && draft.Name == s.failName {
		return nil, errors.New("store unavailable")
	}
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusDraft
	}
	s.created = append(s.created, draft)
	return draft, nil
}

func (s *stubDraftService) Get(_ context.Context, _ uuid.UUID) (*models.Draft, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubDraftService) Update(_ context.Context, draft *models.Draft) (*models.Draft, error) {
	return draft, nil
}

func (s *stubDraftService) Submit(_ context.Context, _ uuid.UUID) (*models.Draft, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubDraftService) Reject(_ context.Context, _ uuid.UUID, _ string) (*models.Draft, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubDraftService) List(_ context.Context, _ repositories.DraftFilter) ([]*models.Draft, error) {
	return nil, nil
}

func (s *stubDraftService) ValidateForApproval(_ context.Context, _ uuid.UUID) (*ValidationResult, error) {
	return &ValidationResult{IsValid: true}, nil
}

// stubDuplicateChecker implements DuplicateCheckService with canned hints
// keyed by submission name.
type stubDuplicateChecker struct {
	hints  map[string]models.MatchCandidate
	err    error
	checks int
}

func (s *stubDuplicateChecker) Check(_ context.Context, input DuplicateCheckInput) (*DuplicateCheckResult, error) {
	return s.resultFor(input.Name, input)
}

func (s *stubDuplicateChecker) CheckDraft(_ context.Context, draft *models.Draft) (*DuplicateCheckResult, error) {
	return s.resultFor(draft.Name, DuplicateCheckInput{Name: draft.Name})
}

func (s *stubDuplicateChecker) resultFor(name string, input DuplicateCheckInput) (*DuplicateCheckResult, error) {
	s.checks++
	if s.err != nil {
		return nil, s.err
	}
	if hint, ok := s.hints[name]; ok {
		return &DuplicateCheckResult{
			HasDuplicates: true,
			Confidence:    hint.Confidence,
			Matches:       []models.MatchCandidate{hint},
			Input:         input,
		}, nil
	}
	return &DuplicateCheckResult{Matches: []models.MatchCandidate{}, Input: input}, nil
}

func newTestBulkImportService(drafts *stubDraftService, checker *stubDuplicateChecker, maxRows int) BulkImportService {
	return NewBulkImportService(drafts, checker, maxRows, zap.NewNop())
}

func TestBulkImport_CSV_CreatesDrafts(t *testing.T) {
	drafts := &stubDraftService{}
	svc := newTestBulkImportService(drafts, &stubDuplicateChecker{}, 100)

	file := "name,category,city,state,phone,rating,review_count\n" +
		"Radiant Skin Clinic,Med Spa,Austin,TX,(512) 555-0100,4.5,87\n" +
		"Glow Aesthetics,Dermatology,Dallas,TX,,,\n"

	report, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Failed)
	assert.NotEqual(t, uuid.Nil, report.BatchID)

	require.Len(t, drafts.created, 2)
	first := drafts.created[0]
	assert.Equal(t, models.DraftSourceBulkImport, first.Source)
	assert.Equal(t, "Radiant Skin Clinic", first.Name)
	require.NotNil(t, first.Category)
	assert.Equal(t, "Med Spa", *first.Category)
	require.NotNil(t, first.Rating)
	assert.Equal(t, 4.5, *first.Rating)
	require.NotNil(t, first.ReviewCount)
	assert.Equal(t, 87, *first.ReviewCount)

	// Empty cells stay absent rather than becoming empty strings.
	second := drafts.created[1]
	assert.Nil(t, second.Phone)
	assert.Nil(t, second.Rating)

	require.Len(t, report.Rows, 2)
	assert.Equal(t, 1, report.Rows[0].Row)
	assert.NotNil(t, report.Rows[0].DraftID)
	assert.Empty(t, report.Rows[0].Error)
}

func TestBulkImport_CSV_MissingNameColumn(t *testing.T) {
	svc := newTestBulkImportService(&stubDraftService{}, &stubDuplicateChecker{}, 100)

	file := "category,city\nMed Spa,Austin\n"
	_, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Missing, "name column")
}

func TestBulkImport_CSV_EmptyFile(t *testing.T) {
	svc := newTestBulkImportService(&stubDraftService{}, &stubDuplicateChecker{}, 100)

	_, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(""))

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestBulkImport_CSV_RowFailuresDoNotAbort(t *testing.T) {
	drafts := &stubDraftService{}
	svc := newTestBulkImportService(drafts, &stubDuplicateChecker{}, 100)

	file := "name,rating\n" +
		",4.5\n" +
		"Glow Aesthetics,not-a-number\n" +
		"Radiant Skin Clinic,4.5\n"

	report, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Failed)

	require.Len(t, report.Rows, 3)
	assert.Equal(t, "name is required", report.Rows[0].Error)
	assert.Contains(t, report.Rows[1].Error, "invalid rating")
	assert.Empty(t, report.Rows[2].Error)
	require.Len(t, drafts.created, 1)
	assert.Equal(t, "Radiant Skin Clinic", drafts.created[0].Name)
}

func TestBulkImport_CSV_CreateFailureReported(t *testing.T) {
	drafts := &stubDraftService{failName: "Glow Aesthetics"}
	svc := newTestBulkImportService(drafts, &stubDuplicateChecker{}, 100)

	file := "name\nGlow Aesthetics\nRadiant Skin Clinic\n"
	report, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Rows[0].Error, "store unavailable")
}

func TestBulkImport_YAML_NestedCollections(t *testing.T) {
	drafts := &stubDraftService{}
	svc := newTestBulkImportService(drafts, &stubDuplicateChecker{}, 100)

	file := `- name: Radiant Skin Clinic
  category: Med Spa
  city: Austin
  state: TX
  rating: 4.5
  providers:
    - name: Dr. Maria Adams
      specialty: Dermatology
  procedures:
    - name: Botox
      provider: Dr. Maria Adams
      price_min: 100
      price_max: 200
  photos:
    - https://cdn.example.com/a.jpg
    - https://cdn.example.com/b.jpg
- name: Glow Aesthetics
`

	report, err := svc.Import(context.Background(), "clinics.yaml", strings.NewReader(file))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	require.Len(t, drafts.created, 2)

	draft := drafts.created[0]
	require.Len(t, draft.Providers, 1)
	assert.Equal(t, "Dr. Maria Adams", draft.Providers[0].Name)
	require.NotNil(t, draft.Providers[0].Specialty)
	assert.Equal(t, "Dermatology", *draft.Providers[0].Specialty)

	require.Len(t, draft.Procedures, 1)
	botox := draft.Procedures[0]
	assert.Equal(t, "Botox", botox.Name)
	require.NotNil(t, botox.ProviderName)
	assert.Equal(t, "Dr. Maria Adams", *botox.ProviderName)
	require.NotNil(t, botox.PriceMin)
	assert.Equal(t, 100.0, *botox.PriceMin)

	require.Len(t, draft.Photos, 2)
	assert.Equal(t, 0, draft.Photos[0].DisplayOrder)
	assert.Equal(t, 1, draft.Photos[1].DisplayOrder)
}

func TestBulkImport_RowLimit(t *testing.T) {
	svc := newTestBulkImportService(&stubDraftService{}, &stubDuplicateChecker{}, 2)

	file := "name\nA Clinic\nB Clinic\nC Clinic\n"
	_, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 2")
}

func TestBulkImport_UnsupportedExtension(t *testing.T) {
	svc := newTestBulkImportService(&stubDraftService{}, &stubDuplicateChecker{}, 100)

	_, err := svc.Import(context.Background(), "clinics.txt", strings.NewReader("name\nA Clinic\n"))

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestBulkImport_RecordsDuplicateHint(t *testing.T) {
	checker := &stubDuplicateChecker{hints: map[string]models.MatchCandidate{
		"Radiant Skin Clinic": {
			ClinicID:   12,
			ClinicName: "Radiant Skin Clinic",
			Reason:     "Exact place reference match",
			Confidence: models.ConfidenceHigh,
		},
	}}
	svc := newTestBulkImportService(&stubDraftService{}, checker, 100)

	file := "name\nRadiant Skin Clinic\nGlow Aesthetics\n"
	report, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	require.NotNil(t, report.Rows[0].DuplicateHint)
	assert.Equal(t, int64(12), report.Rows[0].DuplicateHint.ClinicID)
	assert.Nil(t, report.Rows[1].DuplicateHint)
	assert.Equal(t, 2, checker.checks)
}

func TestBulkImport_DuplicateCheckDegrades(t *testing.T) {
	checker := &stubDuplicateChecker{err: errors.New("catalog unavailable")}
	drafts := &stubDraftService{}
	svc := newTestBulkImportService(drafts, checker, 100)

	file := "name\nRadiant Skin Clinic\n"
	report, err := svc.Import(context.Background(), "clinics.csv", strings.NewReader(file))
	require.NoError(t, err)

	// The hint is advisory; a degraded check never fails the row.
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Failed)
	assert.Nil(t, report.Rows[0].DuplicateHint)
	require.Len(t, drafts.created, 1)
}

// Compile-time interface checks for the stubs.
var (
	_ DraftService          = (*stubDraftService)(nil)
	_ DuplicateCheckService = (*stubDuplicateChecker)(nil)
)
