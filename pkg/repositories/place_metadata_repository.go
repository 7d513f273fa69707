package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// PlaceMetadataRepository defines the interface for the per-clinic place
// metadata mirror.
type PlaceMetadataRepository interface {
	// Upsert inserts or rewrites the clinic's metadata row.
	Upsert(ctx context.Context, meta *models.PlaceMetadata) error
	GetByClinicID(ctx context.Context, clinicID int64) (*models.PlaceMetadata, error)
	// SetPrimaryPhoto points the metadata row at the clinic's primary
	// stored photo.
	SetPrimaryPhoto(ctx context.Context, clinicID, photoID int64) error
}

// placeMetadataRepository implements PlaceMetadataRepository using PostgreSQL.
type placeMetadataRepository struct {
	db *database.DB
}

// NewPlaceMetadataRepository creates a new place metadata repository.
func NewPlaceMetadataRepository(db *database.DB) PlaceMetadataRepository {
	return &placeMetadataRepository{db: db}
}

// Upsert inserts or rewrites the clinic's metadata row.
func (r *placeMetadataRepository) Upsert(ctx context.Context, meta *models.PlaceMetadata) error {
	query := `
		INSERT INTO place_metadata (clinic_id, place_ref, phone, website, category,
			primary_photo_id, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (clinic_id) DO UPDATE
		SET place_ref = EXCLUDED.place_ref,
		    phone = EXCLUDED.phone,
		    website = EXCLUDED.website,
		    category = EXCLUDED.category,
		    primary_photo_id = EXCLUDED.primary_photo_id,
		    fetched_at = EXCLUDED.fetched_at`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		meta.ClinicID,
		meta.PlaceRef,
		meta.Phone,
		meta.Website,
		meta.Category,
		meta.PrimaryPhotoID,
		meta.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert place metadata: %w", err)
	}
	return nil
}

// GetByClinicID retrieves the clinic's metadata row.
func (r *placeMetadataRepository) GetByClinicID(ctx context.Context, clinicID int64) (*models.PlaceMetadata, error) {
	query := `
		SELECT clinic_id, place_ref, phone, website, category, primary_photo_id, fetched_at
		FROM place_metadata
		WHERE clinic_id = $1`

	var meta models.PlaceMetadata
	err := r.db.Querier(ctx).QueryRow(ctx, query, clinicID).Scan(
		&meta.ClinicID,
		&meta.PlaceRef,
		&meta.Phone,
		&meta.Website,
		&meta.Category,
		&meta.PrimaryPhotoID,
		&meta.FetchedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get place metadata: %w", err)
	}
	return &meta, nil
}

// SetPrimaryPhoto points the metadata row at the primary stored photo.
func (r *placeMetadataRepository) SetPrimaryPhoto(ctx context.Context, clinicID, photoID int64) error {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE place_metadata SET primary_photo_id = $2 WHERE clinic_id = $1`,
		clinicID, photoID)
	if err != nil {
		return fmt.Errorf("failed to set primary photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure placeMetadataRepository implements PlaceMetadataRepository at compile time.
var _ PlaceMetadataRepository = (*placeMetadataRepository)(nil)
