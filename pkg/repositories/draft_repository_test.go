//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/testhelpers"
)

type draftTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	repo     DraftRepository
}

func setupDraftTest(t *testing.T) *draftTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &draftTestContext{
		t:        t,
		engineDB: engineDB,
		repo:     NewDraftRepository(engineDB.DB),
	}
}

func (tc *draftTestContext) cleanup() {
	tc.t.Helper()
	ctx := context.Background()
	// Child tables cascade from drafts.
	_, _ = tc.engineDB.DB.Pool.Exec(ctx, "DELETE FROM drafts")
}

func sampleDraft() *models.Draft {
	min := 250.0
	max := 450.0
	return &models.Draft{
		Name:     "Coastal Aesthetics",
		Source:   models.DraftSourceWebForm,
		Category: strPtr("Med Spa"),
		Address:  strPtr("88 Harbor Blvd"),
		City:     strPtr("San Diego"),
		State:    strPtr("CA"),
		Phone:    strPtr("(619) 555-0133"),
		Providers: []*models.DraftProvider{
			{Name: "Dr. Elena Ruiz", Specialty: strPtr("Dermatology")},
		},
		Procedures: []*models.DraftProcedure{
			{Name: "Laser Resurfacing", Category: strPtr("Laser"), ProviderName: strPtr("Dr. Elena Ruiz"), PriceMin: &min, PriceMax: &max},
		},
		Photos: []*models.DraftPhoto{
			{URL: "https://example.com/photos/front.jpg"},
			{URL: "https://example.com/photos/lobby.jpg"},
		},
	}
}

func TestDraftRepository_CreateAndGet_WithChildren(t *testing.T) {
	tc := setupDraftTest(t)
	defer tc.cleanup()
	ctx := context.Background()

	draft := sampleDraft()
	require.NoError(t, tc.repo.Create(ctx, draft))
	require.NotEqual(t, uuid.Nil, draft.ID)
	assert.Equal(t, models.DraftStatusDraft, draft.Status)

	got, err := tc.repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coastal Aesthetics", got.Name)
	require.Len(t, got.Providers, 1)
	assert.Equal(t, "Dr. Elena Ruiz", got.Providers[0].Name)
	require.Len(t, got.Procedures, 1)
	assert.Equal(t, "Laser Resurfacing", got.Procedures[0].Name)
	assert.Equal(t, 250.0, *got.Procedures[0].PriceMin)
	require.Len(t, got.Photos, 2)
	assert.Equal(t, 0, got.Photos[0].DisplayOrder)
	assert.Equal(t, 1, got.Photos[1].DisplayOrder)

	_, err = tc.repo.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDraftRepository_Update_ReplacesChildren(t *testing.T) {
	tc := setupDraftTest(t)
	defer tc.cleanup()
	ctx := context.Background()

	draft := sampleDraft()
	require.NoError(t, tc.repo.Create(ctx, draft))

	draft.Name = "Coastal Aesthetics & Wellness"
	draft.Providers = []*models.DraftProvider{
		{Name: "Dr. Elena Ruiz"},
		{Name: "Dr. Sam Okafor", Specialty: strPtr("Plastic Surgery")},
	}
	draft.Photos = nil
	require.NoError(t, tc.repo.Update(ctx, draft))

	got, err := tc.repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coastal Aesthetics & Wellness", got.Name)
	assert.Len(t, got.Providers, 2)
	assert.Empty(t, got.Photos)
	// Update never touches lifecycle fields.
	assert.Equal(t, models.DraftStatusDraft, got.Status)
}

func TestDraftRepository_UpdateStatus_RecordsReviewer(t *testing.T) {
	tc := setupDraftTest(t)
	defer tc.cleanup()
	ctx := context.Background()

	draft := sampleDraft()
	require.NoError(t, tc.repo.Create(ctx, draft))

	require.NoError(t, tc.repo.UpdateStatus(ctx, draft.ID, models.DraftStatusPendingReview, nil))

	reviewer := "reviewer@clinicgrid.io"
	require.NoError(t, tc.repo.UpdateStatus(ctx, draft.ID, models.DraftStatusRejected, &reviewer))

	got, err := tc.repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusRejected, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, reviewer, *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)

	err = tc.repo.UpdateStatus(ctx, uuid.New(), models.DraftStatusRejected, &reviewer)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDraftRepository_GetByIDForUpdate_LocksRow(t *testing.T) {
	tc := setupDraftTest(t)
	defer tc.cleanup()
	ctx := context.Background()

	draft := sampleDraft()
	require.NoError(t, tc.repo.Create(ctx, draft))

	tx, err := tc.engineDB.DB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := tc.repo.GetByIDForUpdate(database.SetTx(ctx, tx), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, locked.ID)
	assert.Len(t, locked.Providers, len(draft.Providers))

	// The row stays locked until the transaction ends; another session
	// cannot take it.
	var id uuid.UUID
	err = tc.engineDB.DB.Pool.QueryRow(ctx,
		`SELECT id FROM drafts WHERE id = $1 FOR UPDATE NOWAIT`, draft.ID).Scan(&id)
	assert.Error(t, err)

	require.NoError(t, tx.Rollback(ctx))

	err = tc.engineDB.DB.Pool.QueryRow(ctx,
		`SELECT id FROM drafts WHERE id = $1 FOR UPDATE NOWAIT`, draft.ID).Scan(&id)
	assert.NoError(t, err)

	_, err = tc.repo.GetByIDForUpdate(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDraftRepository_List_And_Counts(t *testing.T) {
	tc := setupDraftTest(t)
	defer tc.cleanup()
	ctx := context.Background()

	first := sampleDraft()
	require.NoError(t, tc.repo.Create(ctx, first))

	second := sampleDraft()
	second.Name = "Flagged Clinic"
	second.Source = models.DraftSourceBulkImport
	second.Flagged = true
	second.FlagReason = strPtr("suspicious description")
	require.NoError(t, tc.repo.Create(ctx, second))
	require.NoError(t, tc.repo.UpdateStatus(ctx, second.ID, models.DraftStatusPendingReview, nil))

	pending, err := tc.repo.List(ctx, DraftFilter{Status: models.DraftStatusPendingReview})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	flagged := true
	flaggedOnly, err := tc.repo.List(ctx, DraftFilter{Flagged: &flagged})
	require.NoError(t, err)
	require.Len(t, flaggedOnly, 1)

	byStatus, err := tc.repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, byStatus[models.DraftStatusDraft])
	assert.Equal(t, 1, byStatus[models.DraftStatusPendingReview])

	flaggedCount, err := tc.repo.CountFlagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flaggedCount)

	recent, err := tc.repo.CountCreatedSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, recent)
}
