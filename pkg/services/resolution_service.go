package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/places"
	"github.com/clinicgrid/intake-engine/pkg/repositories"
)

// Photo caps per photo-source policy.
const (
	// GooglePhotoCap bounds provider photos when they are the only source.
	GooglePhotoCap = 10
	// BothPhotoCap bounds the combined set: submitter photos first,
	// provider photos filling the remaining slots.
	BothPhotoCap = 7
)

// ApprovalOptions selects the enrichment sources applied at approval.
type ApprovalOptions struct {
	ReviewerID        string              `json:"-"`
	RatingSource      models.RatingSource `json:"rating_source,omitempty"`
	PhotoSource       models.PhotoSource  `json:"photo_source,omitempty"`
	ManualRating      *float64            `json:"manual_rating,omitempty"`
	ManualReviewCount *int                `json:"manual_review_count,omitempty"`
}

// ApprovalResult reports what an approval materialized.
type ApprovalResult struct {
	DraftID    uuid.UUID `json:"draft_id"`
	ClinicID   int64     `json:"clinic_id"`
	Status     string    `json:"status"`
	Merged     bool      `json:"merged"`
	Providers  int       `json:"providers"`
	Procedures int       `json:"procedures"`
	Photos     int       `json:"photos"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// ResolutionService consumes an approved draft exactly once, materializing it
// as a new catalog aggregate or merging it into an existing one. The whole
// operation is a single transaction: any failure rolls back every write and
// leaves the draft in its prior status.
type ResolutionService interface {
	ApproveDraft(ctx context.Context, draftID uuid.UUID, opts ApprovalOptions) (*ApprovalResult, error)
}

type resolutionService struct {
	db            *database.DB
	draftRepo     repositories.DraftRepository
	clinicRepo    repositories.ClinicRepository
	locationRepo  repositories.LocationRepository
	categoryRepo  repositories.CategoryRepository
	specialtyRepo repositories.SpecialtyRepository
	providerRepo  repositories.ProviderRepository
	procedureRepo repositories.ProcedureRepository
	photoRepo     repositories.PhotoRepository
	metadataRepo  repositories.PlaceMetadataRepository
	places        places.Source
	logger        *zap.Logger
}

// ResolutionServiceDeps contains dependencies for ResolutionService.
// Places may be nil when no place-data provider is configured; rating and
// photo enrichment then fall back to submitted values.
type ResolutionServiceDeps struct {
	DB            *database.DB
	DraftRepo     repositories.DraftRepository
	ClinicRepo    repositories.ClinicRepository
	LocationRepo  repositories.LocationRepository
	CategoryRepo  repositories.CategoryRepository
	SpecialtyRepo repositories.SpecialtyRepository
	ProviderRepo  repositories.ProviderRepository
	ProcedureRepo repositories.ProcedureRepository
	PhotoRepo     repositories.PhotoRepository
	MetadataRepo  repositories.PlaceMetadataRepository
	Places        places.Source
	Logger        *zap.Logger
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(deps *ResolutionServiceDeps) ResolutionService {
	return &resolutionService{
		db:            deps.DB,
		draftRepo:     deps.DraftRepo,
		clinicRepo:    deps.ClinicRepo,
		locationRepo:  deps.LocationRepo,
		categoryRepo:  deps.CategoryRepo,
		specialtyRepo: deps.SpecialtyRepo,
		providerRepo:  deps.ProviderRepo,
		procedureRepo: deps.ProcedureRepo,
		photoRepo:     deps.PhotoRepo,
		metadataRepo:  deps.MetadataRepo,
		places:        deps.Places,
		logger:        deps.Logger.Named("resolution"),
	}
}

func (s *resolutionService) ApproveDraft(ctx context.Context, draftID uuid.UUID, opts ApprovalOptions) (*ApprovalResult, error) {
	if opts.ReviewerID == "" {
		return nil, &apperrors.ValidationError{Missing: []string{"reviewer_id"}}
	}
	if opts.RatingSource == "" {
		opts.RatingSource = models.RatingSourceManual
	}
	if !opts.RatingSource.Valid() {
		return nil, &apperrors.ValidationError{Missing: []string{"rating_source"}}
	}
	if opts.PhotoSource == "" {
		opts.PhotoSource = models.PhotoSourceUser
	}
	if !opts.PhotoSource.Valid() {
		return nil, &apperrors.ValidationError{Missing: []string{"photo_source"}}
	}

	var result *ApprovalResult
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		// Status is re-read under a row lock inside the transaction, not
		// trusted from the caller. A concurrent approval of the same
		// draft blocks on the lock, then reads the terminal status the
		// winner committed and fails the transition check.
		draft, err := s.draftRepo.GetByIDForUpdate(ctx, draftID)
		if err != nil {
			return err
		}

		target := models.DraftStatusApproved
		if draft.DuplicateOf != nil {
			target = models.DraftStatusMerged
		}
		if !models.CanTransitionDraftStatus(draft.Status, target) {
			return fmt.Errorf("draft %s cannot move from %s to %s: %w",
				draftID, draft.Status, target, apperrors.ErrInvalidTransition)
		}

		validation := ValidateDraftForApproval(draft)
		if !validation.IsValid {
			return &apperrors.ValidationError{
				Missing:  validation.Errors,
				Warnings: validation.Warnings,
			}
		}

		if draft.DuplicateOf != nil {
			result, err = s.merge(ctx, draft, opts)
		} else {
			result, err = s.create(ctx, draft, opts)
		}
		if err != nil {
			return err
		}
		result.Warnings = validation.Warnings
		return nil
	})
	if err != nil {
		return nil, wrapApprovalError(err)
	}

	s.logger.Info("Draft resolved",
		zap.String("draft_id", draftID.String()),
		zap.Int64("clinic_id", result.ClinicID),
		zap.String("status", result.Status),
		zap.Int("providers", result.Providers),
		zap.Int("procedures", result.Procedures),
		zap.Int("photos", result.Photos))
	return result, nil
}

// create materializes the draft as a new catalog aggregate.
func (s *resolutionService) create(ctx context.Context, draft *models.Draft, opts ApprovalOptions) (*ApprovalResult, error) {
	// Identifier allocation holds the allocator lock until commit, so a
	// concurrent create cannot read the same max.
	clinicID, err := s.clinicRepo.AllocateID(ctx)
	if err != nil {
		return nil, err
	}

	rating, reviewCount := s.resolveRating(ctx, draft, opts)
	photoSet := s.resolvePhotoSet(ctx, draft, opts.PhotoSource)

	clinic := &models.Clinic{
		ClinicID:    clinicID,
		Name:        draft.Name,
		Description: draft.Description,
		Address:     draft.Address,
		City:        draft.City,
		State:       draft.State,
		Zip:         draft.Zip,
		Phone:       draft.Phone,
		Email:       draft.Email,
		Website:     draft.Website,
		PlaceRef:    draft.PlaceRef,
		Rating:      rating,
		ReviewCount: reviewCount,
		Category:    draft.Category,
		PhotoCount:  len(photoSet),
	}

	if locationID, err := s.resolveLocation(ctx, draft.City, draft.State); err != nil {
		return nil, err
	} else if locationID != nil {
		clinic.LocationID = locationID
	}

	if err := s.clinicRepo.Create(ctx, clinic); err != nil {
		return nil, err
	}

	now := time.Now()
	meta := &models.PlaceMetadata{
		ClinicID:  clinicID,
		PlaceRef:  draft.PlaceRef,
		Phone:     draft.Phone,
		Website:   draft.Website,
		Category:  draft.Category,
		FetchedAt: &now,
	}
	if err := s.metadataRepo.Upsert(ctx, meta); err != nil {
		return nil, err
	}

	// First photo in display order is primary.
	photoCount, err := s.insertPhotos(ctx, clinicID, photoSet, 0, true)
	if err != nil {
		return nil, err
	}

	providerIDs, firstProviderID, err := s.insertProviders(ctx, clinicID, draft.Providers)
	if err != nil {
		return nil, err
	}

	for _, proc := range draft.Procedures {
		if err := s.insertProcedure(ctx, clinicID, draft, proc, providerIDs, firstProviderID); err != nil {
			return nil, err
		}
	}

	if err := s.draftRepo.UpdateStatus(ctx, draft.ID, models.DraftStatusApproved, &opts.ReviewerID); err != nil {
		return nil, err
	}

	return &ApprovalResult{
		DraftID:    draft.ID,
		ClinicID:   clinicID,
		Status:     models.DraftStatusApproved,
		Providers:  len(providerIDs),
		Procedures: len(draft.Procedures),
		Photos:     photoCount,
	}, nil
}

// merge amends the duplicate-linked clinic with the draft's present fields.
func (s *resolutionService) merge(ctx context.Context, draft *models.Draft, opts ApprovalOptions) (*ApprovalResult, error) {
	// Row lock held until commit so concurrent merges into the same
	// clinic serialize.
	clinic, err := s.clinicRepo.GetByIDForUpdate(ctx, *draft.DuplicateOf)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("duplicate link to clinic %d: %w", *draft.DuplicateOf, apperrors.ErrNotFound)
		}
		return nil, err
	}

	rating, reviewCount := s.resolveRating(ctx, draft, opts)
	photoSet := s.resolvePhotoSet(ctx, draft, opts.PhotoSource)

	existingPhotos, err := s.photoRepo.CountByClinic(ctx, clinic.ClinicID)
	if err != nil {
		return nil, err
	}
	maxOrder, err := s.photoRepo.MaxDisplayOrder(ctx, clinic.ClinicID)
	if err != nil {
		return nil, err
	}

	// Present submitted fields overwrite; absent fields stay untouched.
	if draft.Name != "" {
		clinic.Name = draft.Name
	}
	overwriteString(&clinic.Description, draft.Description)
	overwriteString(&clinic.Address, draft.Address)
	overwriteString(&clinic.City, draft.City)
	overwriteString(&clinic.State, draft.State)
	overwriteString(&clinic.Zip, draft.Zip)
	overwriteString(&clinic.Phone, draft.Phone)
	overwriteString(&clinic.Email, draft.Email)
	overwriteString(&clinic.Website, draft.Website)
	overwriteString(&clinic.PlaceRef, draft.PlaceRef)
	overwriteString(&clinic.Category, draft.Category)
	if rating != nil {
		clinic.Rating = rating
	}
	if reviewCount != nil {
		clinic.ReviewCount = reviewCount
	}

	if locationID, err := s.resolveLocation(ctx, clinic.City, clinic.State); err != nil {
		return nil, err
	} else if locationID != nil {
		clinic.LocationID = locationID
	}

	clinic.PhotoCount = existingPhotos + len(photoSet)
	if err := s.clinicRepo.Update(ctx, clinic); err != nil {
		return nil, err
	}

	now := time.Now()
	meta := &models.PlaceMetadata{
		ClinicID:  clinic.ClinicID,
		PlaceRef:  clinic.PlaceRef,
		Phone:     clinic.Phone,
		Website:   clinic.Website,
		Category:  clinic.Category,
		FetchedAt: &now,
	}
	if err := s.metadataRepo.Upsert(ctx, meta); err != nil {
		return nil, err
	}

	// Appended after the existing gallery; primary only when the clinic
	// had no photos at all.
	photoCount, err := s.insertPhotos(ctx, clinic.ClinicID, photoSet, maxOrder+1, existingPhotos == 0)
	if err != nil {
		return nil, err
	}

	providerIDs, firstProviderID, err := s.mergeProviders(ctx, clinic.ClinicID, draft.Providers)
	if err != nil {
		return nil, err
	}

	for _, proc := range draft.Procedures {
		if err := s.mergeProcedure(ctx, clinic.ClinicID, draft, proc, providerIDs, firstProviderID); err != nil {
			return nil, err
		}
	}

	if err := s.draftRepo.UpdateStatus(ctx, draft.ID, models.DraftStatusMerged, &opts.ReviewerID); err != nil {
		return nil, err
	}

	return &ApprovalResult{
		DraftID:    draft.ID,
		ClinicID:   clinic.ClinicID,
		Status:     models.DraftStatusMerged,
		Merged:     true,
		Providers:  len(providerIDs),
		Procedures: len(draft.Procedures),
		Photos:     photoCount,
	}, nil
}

// resolveRating picks the rating snapshot written at approval. Provider
// degradation is non-fatal: the draft's submitted values stand in.
func (s *resolutionService) resolveRating(ctx context.Context, draft *models.Draft, opts ApprovalOptions) (*float64, *int) {
	if opts.RatingSource == models.RatingSourceManual {
		rating, count := draft.Rating, draft.ReviewCount
		if opts.ManualRating != nil {
			rating = opts.ManualRating
		}
		if opts.ManualReviewCount != nil {
			count = opts.ManualReviewCount
		}
		return rating, count
	}

	if s.places == nil || draft.PlaceRef == nil || *draft.PlaceRef == "" {
		s.logger.Warn("Live rating unavailable, keeping submitted values",
			zap.String("draft_id", draft.ID.String()),
			zap.Bool("provider_configured", s.places != nil))
		return draft.Rating, draft.ReviewCount
	}

	details, err := s.places.FetchDetails(ctx, *draft.PlaceRef)
	if err != nil {
		s.logger.Warn("Place details degraded, keeping submitted values",
			zap.String("draft_id", draft.ID.String()),
			zap.Error(err))
		return draft.Rating, draft.ReviewCount
	}

	rating, count := draft.Rating, draft.ReviewCount
	if details.Rating > 0 {
		rating = &details.Rating
	}
	if details.ReviewCount > 0 {
		count = &details.ReviewCount
	}
	return rating, count
}

// photoSpec is one photo to store, already ordered.
type photoSpec struct {
	url    string
	origin string
}

// resolvePhotoSet builds the ordered photo set per the photo-source policy.
// Provider fetch failures degrade to whatever submitter photos the policy
// admits.
func (s *resolutionService) resolvePhotoSet(ctx context.Context, draft *models.Draft, source models.PhotoSource) []photoSpec {
	var set []photoSpec

	userPhotos := func(limit int) {
		for _, p := range draft.Photos {
			if limit >= 0 && len(set) >= limit {
				return
			}
			set = append(set, photoSpec{url: p.URL, origin: models.PhotoOriginUser})
		}
	}
	googlePhotos := func(limit int) {
		if limit <= 0 {
			return
		}
		if s.places == nil || draft.PlaceRef == nil || *draft.PlaceRef == "" {
			s.logger.Warn("Provider photos unavailable",
				zap.String("draft_id", draft.ID.String()),
				zap.Bool("provider_configured", s.places != nil))
			return
		}
		photos, err := s.places.FetchPhotos(ctx, *draft.PlaceRef, limit)
		if err != nil {
			s.logger.Warn("Provider photos degraded",
				zap.String("draft_id", draft.ID.String()),
				zap.Error(err))
			return
		}
		for _, p := range photos {
			set = append(set, photoSpec{url: p.URL, origin: models.PhotoOriginGoogle})
		}
	}

	switch source {
	case models.PhotoSourceUser:
		userPhotos(-1)
	case models.PhotoSourceGoogle:
		googlePhotos(GooglePhotoCap)
	case models.PhotoSourceBoth:
		userPhotos(BothPhotoCap)
		googlePhotos(BothPhotoCap - len(set))
	}
	return set
}

// insertPhotos writes the photo set starting at startOrder. When markPrimary
// is set the first photo becomes primary and place_metadata points at it.
// Returns the number of photos written.
func (s *resolutionService) insertPhotos(ctx context.Context, clinicID int64, set []photoSpec, startOrder int, markPrimary bool) (int, error) {
	for i, spec := range set {
		photo := &models.ClinicPhoto{
			ClinicID:     clinicID,
			URL:          spec.url,
			Origin:       spec.origin,
			IsPrimary:    markPrimary && i == 0,
			DisplayOrder: startOrder + i,
		}
		if err := s.photoRepo.Create(ctx, photo); err != nil {
			return 0, err
		}
		if photo.IsPrimary {
			if err := s.metadataRepo.SetPrimaryPhoto(ctx, clinicID, photo.ID); err != nil {
				return 0, err
			}
		}
	}
	return len(set), nil
}

// insertProviders creates the draft's providers under the clinic. Returns a
// lowercased name → id map and the first created provider's id for the
// unnamed-procedure fallback.
func (s *resolutionService) insertProviders(ctx context.Context, clinicID int64, drafts []*models.DraftProvider) (map[string]int64, int64, error) {
	providerIDs := make(map[string]int64, len(drafts))
	var firstID int64

	for _, dp := range drafts {
		provider := &models.Provider{
			ClinicID: clinicID,
			Name:     dp.Name,
			PhotoURL: dp.PhotoURL,
		}
		if dp.Specialty != nil && *dp.Specialty != "" {
			specialty, err := s.specialtyRepo.GetOrCreate(ctx, *dp.Specialty)
			if err != nil {
				return nil, 0, err
			}
			provider.SpecialtyID = &specialty.ID
		}
		if err := s.providerRepo.Create(ctx, provider); err != nil {
			return nil, 0, err
		}
		if firstID == 0 {
			firstID = provider.ID
		}
		providerIDs[strings.ToLower(dp.Name)] = provider.ID
	}
	return providerIDs, firstID, nil
}

// mergeProviders reuses an existing provider with an equal name under the
// target clinic and creates the rest.
func (s *resolutionService) mergeProviders(ctx context.Context, clinicID int64, drafts []*models.DraftProvider) (map[string]int64, int64, error) {
	providerIDs := make(map[string]int64, len(drafts))
	var firstID int64

	for _, dp := range drafts {
		existing, err := s.providerRepo.GetByClinicAndName(ctx, clinicID, dp.Name)
		if err == nil {
			if firstID == 0 {
				firstID = existing.ID
			}
			providerIDs[strings.ToLower(dp.Name)] = existing.ID
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, 0, err
		}

		provider := &models.Provider{
			ClinicID: clinicID,
			Name:     dp.Name,
			PhotoURL: dp.PhotoURL,
		}
		if dp.Specialty != nil && *dp.Specialty != "" {
			specialty, err := s.specialtyRepo.GetOrCreate(ctx, *dp.Specialty)
			if err != nil {
				return nil, 0, err
			}
			provider.SpecialtyID = &specialty.ID
		}
		if err := s.providerRepo.Create(ctx, provider); err != nil {
			return nil, 0, err
		}
		if firstID == 0 {
			firstID = provider.ID
		}
		providerIDs[strings.ToLower(dp.Name)] = provider.ID
	}
	return providerIDs, firstID, nil
}

// insertProcedure resolves the procedure's category and provider and writes
// the row. A named provider missing from the draft is unresolvable.
func (s *resolutionService) insertProcedure(ctx context.Context, clinicID int64, draft *models.Draft, proc *models.DraftProcedure, providerIDs map[string]int64, firstProviderID int64) error {
	providerID, err := s.resolveProcedureProvider(draft, proc, providerIDs, firstProviderID)
	if err != nil {
		return err
	}
	return s.createProcedure(ctx, clinicID, providerID, draft, proc)
}

// mergeProcedure is insertProcedure with one extra resolution step: a named
// provider missing from the draft may still exist under the target clinic.
func (s *resolutionService) mergeProcedure(ctx context.Context, clinicID int64, draft *models.Draft, proc *models.DraftProcedure, providerIDs map[string]int64, firstProviderID int64) error {
	providerID, err := s.resolveProcedureProvider(draft, proc, providerIDs, firstProviderID)
	if err != nil {
		var unresolvable *apperrors.UnresolvableReferenceError
		if !errors.As(err, &unresolvable) || unresolvable.Provider == "" {
			return err
		}
		existing, lookupErr := s.providerRepo.GetByClinicAndName(ctx, clinicID, unresolvable.Provider)
		if lookupErr != nil {
			if errors.Is(lookupErr, apperrors.ErrNotFound) {
				return err
			}
			return lookupErr
		}
		providerID = existing.ID
	}
	return s.createProcedure(ctx, clinicID, providerID, draft, proc)
}

// resolveProcedureProvider maps the procedure to a provider id. Unnamed
// procedures fall back to the first provider when one exists; the warning
// leaves an audit trail because the attachment is a guess.
func (s *resolutionService) resolveProcedureProvider(draft *models.Draft, proc *models.DraftProcedure, providerIDs map[string]int64, firstProviderID int64) (int64, error) {
	name := strings.TrimSpace(deref(proc.ProviderName))
	if name != "" {
		if id, ok := providerIDs[strings.ToLower(name)]; ok {
			return id, nil
		}
		return 0, &apperrors.UnresolvableReferenceError{Procedure: proc.Name, Provider: name}
	}

	if firstProviderID != 0 {
		s.logger.Warn("Procedure names no provider, attaching to first",
			zap.String("draft_id", draft.ID.String()),
			zap.String("procedure", proc.Name))
		return firstProviderID, nil
	}
	return 0, &apperrors.UnresolvableReferenceError{Procedure: proc.Name}
}

// createProcedure writes the procedure row with the category resolved by
// exact-name lookup-or-create and the average price filled when absent.
func (s *resolutionService) createProcedure(ctx context.Context, clinicID, providerID int64, draft *models.Draft, proc *models.DraftProcedure) error {
	categoryName := deref(proc.Category)
	if categoryName == "" {
		// Draft category passed the approval check, so it is present.
		categoryName = deref(draft.Category)
	}
	category, err := s.categoryRepo.GetOrCreate(ctx, categoryName)
	if err != nil {
		return err
	}

	procedure := &models.Procedure{
		ClinicID:    clinicID,
		ProviderID:  providerID,
		CategoryID:  category.ID,
		Name:        proc.Name,
		Description: proc.Description,
		PriceMin:    proc.PriceMin,
		PriceMax:    proc.PriceMax,
		PriceAvg:    averagePrice(proc),
		DurationMin: proc.DurationMin,
	}
	return s.procedureRepo.Create(ctx, procedure)
}

// averagePrice fills price_avg when absent: (min+max)/2 when both ends are
// present, else whichever end is.
func averagePrice(proc *models.DraftProcedure) *float64 {
	if proc.PriceAvg != nil {
		return proc.PriceAvg
	}
	switch {
	case proc.PriceMin != nil && proc.PriceMax != nil:
		avg := (*proc.PriceMin + *proc.PriceMax) / 2
		return &avg
	case proc.PriceMin != nil:
		return proc.PriceMin
	case proc.PriceMax != nil:
		return proc.PriceMax
	}
	return nil
}

// resolveLocation looks up or creates the (city, state) row when both parts
// are present.
func (s *resolutionService) resolveLocation(ctx context.Context, city, state *string) (*int64, error) {
	if city == nil || state == nil || *city == "" || *state == "" {
		return nil, nil
	}
	location, err := s.locationRepo.GetOrCreate(ctx, *city, *state)
	if err != nil {
		return nil, err
	}
	return &location.ID, nil
}

// overwriteString applies present-wins merge semantics to one field.
func overwriteString(dst **string, src *string) {
	if src != nil && *src != "" {
		*dst = src
	}
}

// wrapApprovalError re-raises unexpected failures as transaction failures.
// Typed validation, transition and not-found errors pass through for the
// HTTP layer to map.
func wrapApprovalError(err error) error {
	var validation *apperrors.ValidationError
	if errors.As(err, &validation) {
		return err
	}
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrInvalidTransition) {
		return err
	}
	return &apperrors.TransactionError{Op: "approve draft", Cause: err}
}

// Ensure resolutionService implements ResolutionService at compile time.
var _ ResolutionService = (*resolutionService)(nil)
