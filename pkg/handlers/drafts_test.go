package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/auth"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/services"
)

func newTestDraftsHandler(drafts *mockDraftService, resolution *mockResolutionService, duplicates *mockDuplicateChecker) *DraftsHandler {
	if drafts == nil {
		drafts = &mockDraftService{}
	}
	if resolution == nil {
		resolution = &mockResolutionService{}
	}
	if duplicates == nil {
		duplicates = &mockDuplicateChecker{}
	}
	return NewDraftsHandler(drafts, resolution, duplicates, zap.NewNop())
}

// asReviewer stamps operator claims onto the request the way the auth
// middleware does for authenticated calls.
func asReviewer(req *http.Request, reviewerID uuid.UUID) *http.Request {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: reviewerID.String()},
		Email:            "reviewer@clinicgrid.test",
		Role:             models.RoleReviewer,
	}
	return req.WithContext(context.WithValue(req.Context(), auth.ClaimsKey, claims))
}

func draftRequest(t *testing.T, method, target string, id uuid.UUID, body any) *http.Request {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, reader)
	req.SetPathValue("id", id.String())
	return req
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestDraftsHandler_List_Succeeds(t *testing.T) {
	drafts := &mockDraftService{drafts: []*models.Draft{
		{ID: uuid.New(), Name: "Radiant Skin Clinic", Status: models.DraftStatusPendingReview},
		{ID: uuid.New(), Name: "Lakeside Dental", Status: models.DraftStatusPendingReview},
	}}
	handler := newTestDraftsHandler(drafts, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts?status=pending_review&source=web_form&flagged=true&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending_review", drafts.listFilter.Status)
	assert.Equal(t, "web_form", drafts.listFilter.Source)
	require.NotNil(t, drafts.listFilter.Flagged)
	assert.True(t, *drafts.listFilter.Flagged)
	assert.Equal(t, 10, drafts.listFilter.Limit)
	assert.Equal(t, 5, drafts.listFilter.Offset)

	var envelope struct {
		Success bool              `json:"success"`
		Data    DraftListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	assert.Len(t, envelope.Data.Drafts, 2)
	assert.Equal(t, 10, envelope.Data.Limit)
	assert.Equal(t, 5, envelope.Data.Offset)
}

func TestDraftsHandler_List_EmptyPageIsNotNull(t *testing.T) {
	handler := newTestDraftsHandler(&mockDraftService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"drafts":[]`)
}

func TestDraftsHandler_List_InvalidFlagged(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts?flagged=sometimes", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_flagged", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_List_Failure(t *testing.T) {
	handler := newTestDraftsHandler(&mockDraftService{err: assert.AnError}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDraftsHandler_Get_Succeeds(t *testing.T) {
	id := uuid.New()
	drafts := &mockDraftService{draft: &models.Draft{ID: id, Name: "Radiant Skin Clinic", Status: models.DraftStatusDraft}}
	handler := newTestDraftsHandler(drafts, nil, nil)

	req := draftRequest(t, http.MethodGet, "/api/drafts/"+id.String(), id, nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool          `json:"success"`
		Data    *models.Draft `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NotNil(t, envelope.Data)
	assert.Equal(t, id, envelope.Data.ID)
	assert.Equal(t, "Radiant Skin Clinic", envelope.Data.Name)
}

func TestDraftsHandler_Get_NotFound(t *testing.T) {
	handler := newTestDraftsHandler(&mockDraftService{}, nil, nil)

	id := uuid.New()
	req := draftRequest(t, http.MethodGet, "/api/drafts/"+id.String(), id, nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Get_InvalidID(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_draft_id", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Update_Succeeds(t *testing.T) {
	id := uuid.New()
	drafts := &mockDraftService{}
	handler := newTestDraftsHandler(drafts, nil, nil)

	rating := 4.5
	reviewCount := 87
	duplicateOf := int64(12)
	body := UpdateDraftRequest{
		SubmissionRequest: SubmissionRequest{
			Name: "Radiant Skin Clinic",
			City: "Austin",
		},
		Rating:      &rating,
		ReviewCount: &reviewCount,
		DuplicateOf: &duplicateOf,
	}
	req := draftRequest(t, http.MethodPut, "/api/drafts/"+id.String(), id, body)
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, drafts.updated, 1)
	updated := drafts.updated[0]
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "Radiant Skin Clinic", updated.Name)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 4.5, *updated.Rating)
	require.NotNil(t, updated.ReviewCount)
	assert.Equal(t, 87, *updated.ReviewCount)
	require.NotNil(t, updated.DuplicateOf)
	assert.Equal(t, int64(12), *updated.DuplicateOf)
	assert.Empty(t, updated.Source)
}

func TestDraftsHandler_Update_MissingName(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	id := uuid.New()
	req := draftRequest(t, http.MethodPut, "/api/drafts/"+id.String(), id, UpdateDraftRequest{})
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_name", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Update_TerminalDraft(t *testing.T) {
	id := uuid.New()
	drafts := &mockDraftService{
		err: fmt.Errorf("draft %s is %s: %w", id, models.DraftStatusApproved, apperrors.ErrInvalidTransition),
	}
	handler := newTestDraftsHandler(drafts, nil, nil)

	body := UpdateDraftRequest{SubmissionRequest: SubmissionRequest{Name: "Radiant Skin Clinic"}}
	req := draftRequest(t, http.MethodPut, "/api/drafts/"+id.String(), id, body)
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeErrorBody(t, rec)
	assert.Equal(t, "invalid_transition", errBody["error"])
	assert.Contains(t, errBody["message"], models.DraftStatusApproved)
}

func TestDraftsHandler_Submit_Succeeds(t *testing.T) {
	id := uuid.New()
	drafts := &mockDraftService{draft: &models.Draft{ID: id, Name: "Radiant Skin Clinic", Status: models.DraftStatusPendingReview}}
	handler := newTestDraftsHandler(drafts, nil, nil)

	req := draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/submit", id, nil)
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, drafts.submitted, 1)
	assert.Equal(t, id, drafts.submitted[0])
}

func TestDraftsHandler_Submit_InvalidTransition(t *testing.T) {
	id := uuid.New()
	drafts := &mockDraftService{
		err: fmt.Errorf("draft %s cannot move from %s to %s: %w",
			id, models.DraftStatusRejected, models.DraftStatusPendingReview, apperrors.ErrInvalidTransition),
	}
	handler := newTestDraftsHandler(drafts, nil, nil)

	req := draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/submit", id, nil)
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Submit_NotFound(t *testing.T) {
	handler := newTestDraftsHandler(&mockDraftService{err: apperrors.ErrNotFound}, nil, nil)

	id := uuid.New()
	req := draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/submit", id, nil)
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftsHandler_Approve_Succeeds(t *testing.T) {
	id := uuid.New()
	reviewerID := uuid.New()
	resolution := &mockResolutionService{result: &services.ApprovalResult{
		DraftID:  id,
		ClinicID: 42,
		Status:   models.DraftStatusApproved,
	}}
	handler := newTestDraftsHandler(nil, resolution, nil)

	manualRating := 4.8
	body := services.ApprovalOptions{
		RatingSource: models.RatingSourceManual,
		ManualRating: &manualRating,
	}
	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, body), reviewerID)
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, resolution.gotDraftID)
	assert.Equal(t, reviewerID.String(), resolution.gotOpts.ReviewerID)
	assert.Equal(t, models.RatingSourceManual, resolution.gotOpts.RatingSource)
	require.NotNil(t, resolution.gotOpts.ManualRating)
	assert.Equal(t, 4.8, *resolution.gotOpts.ManualRating)

	var envelope struct {
		Success bool                    `json:"success"`
		Data    services.ApprovalResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, int64(42), envelope.Data.ClinicID)
}

func TestDraftsHandler_Approve_EmptyBodyUsesDefaults(t *testing.T) {
	id := uuid.New()
	reviewerID := uuid.New()
	resolution := &mockResolutionService{result: &services.ApprovalResult{DraftID: id, ClinicID: 7}}
	handler := newTestDraftsHandler(nil, resolution, nil)

	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, nil), reviewerID)
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reviewerID.String(), resolution.gotOpts.ReviewerID)
	assert.Empty(t, resolution.gotOpts.RatingSource)
	assert.Empty(t, resolution.gotOpts.PhotoSource)
}

func TestDraftsHandler_Approve_Unauthenticated(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	id := uuid.New()
	req := draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, nil)
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Approve_ValidationFailure(t *testing.T) {
	id := uuid.New()
	resolution := &mockResolutionService{err: &apperrors.ValidationError{Missing: []string{"rating_source"}}}
	handler := newTestDraftsHandler(nil, resolution, nil)

	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, nil), uuid.New())
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeErrorBody(t, rec)
	assert.Equal(t, "validation_failed", errBody["error"])
	assert.Contains(t, errBody["message"], "rating_source")
}

func TestDraftsHandler_Approve_InvalidTransition(t *testing.T) {
	id := uuid.New()
	resolution := &mockResolutionService{
		err: fmt.Errorf("draft %s cannot move from %s to %s: %w",
			id, models.DraftStatusDraft, models.DraftStatusApproved, apperrors.ErrInvalidTransition),
	}
	handler := newTestDraftsHandler(nil, resolution, nil)

	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, nil), uuid.New())
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_Approve_TransactionFailure(t *testing.T) {
	id := uuid.New()
	resolution := &mockResolutionService{
		err: &apperrors.TransactionError{Op: "approve draft", Cause: assert.AnError},
	}
	handler := newTestDraftsHandler(nil, resolution, nil)

	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/approve", id, nil), uuid.New())
	rec := httptest.NewRecorder()

	handler.Approve(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	errBody := decodeErrorBody(t, rec)
	assert.Equal(t, "approval_failed", errBody["error"])
	assert.Contains(t, errBody["message"], "transaction failed")
}

func TestDraftsHandler_Reject_Succeeds(t *testing.T) {
	id := uuid.New()
	reviewerID := uuid.New()
	drafts := &mockDraftService{draft: &models.Draft{ID: id, Status: models.DraftStatusRejected}}
	handler := newTestDraftsHandler(drafts, nil, nil)

	req := asReviewer(draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/reject", id, nil), reviewerID)
	rec := httptest.NewRecorder()

	handler.Reject(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, drafts.rejected, 1)
	assert.Equal(t, id, drafts.rejected[0])
	require.Len(t, drafts.reviewerIDs, 1)
	assert.Equal(t, reviewerID.String(), drafts.reviewerIDs[0])
}

func TestDraftsHandler_Reject_Unauthenticated(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	id := uuid.New()
	req := draftRequest(t, http.MethodPost, "/api/drafts/"+id.String()+"/reject", id, nil)
	rec := httptest.NewRecorder()

	handler.Reject(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDraftsHandler_CheckDuplicates_Succeeds(t *testing.T) {
	checker := &mockDuplicateChecker{}
	handler := newTestDraftsHandler(nil, nil, checker)

	input := services.DuplicateCheckInput{Name: "Radiant Skin Clinic", City: "Austin", State: "TX"}
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/drafts/check-duplicates", bytes.NewBuffer(raw))
	rec := httptest.NewRecorder()

	handler.CheckDuplicates(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Radiant Skin Clinic", checker.gotInput.Name)
	assert.Equal(t, "Austin", checker.gotInput.City)

	var envelope struct {
		Success bool                           `json:"success"`
		Data    *services.DuplicateCheckResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	require.NotNil(t, envelope.Data)
	assert.False(t, envelope.Data.HasDuplicates)
}

func TestDraftsHandler_CheckDuplicates_Failure(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, &mockDuplicateChecker{err: assert.AnError})

	req := httptest.NewRequest(http.MethodPost, "/api/drafts/check-duplicates", strings.NewReader(`{"name":"Radiant"}`))
	rec := httptest.NewRecorder()

	handler.CheckDuplicates(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "check_failed", decodeErrorBody(t, rec)["error"])
}

func TestDraftsHandler_CheckDuplicates_MalformedBody(t *testing.T) {
	handler := newTestDraftsHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/drafts/check-duplicates", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.CheckDuplicates(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
