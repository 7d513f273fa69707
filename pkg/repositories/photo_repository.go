package repositories

import (
	"context"
	"fmt"

	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// PhotoRepository defines the interface for stored clinic photo access.
type PhotoRepository interface {
	// Create inserts the photo and fills its generated identifier.
	Create(ctx context.Context, photo *models.ClinicPhoto) error
	ListByClinic(ctx context.Context, clinicID int64) ([]*models.ClinicPhoto, error)
	CountByClinic(ctx context.Context, clinicID int64) (int, error)
	// MaxDisplayOrder returns the clinic's highest display_order, or -1
	// when the clinic has no photos, so the next photo is max+1.
	MaxDisplayOrder(ctx context.Context, clinicID int64) (int, error)
}

// photoRepository implements PhotoRepository using PostgreSQL.
type photoRepository struct {
	db *database.DB
}

// NewPhotoRepository creates a new photo repository.
func NewPhotoRepository(db *database.DB) PhotoRepository {
	return &photoRepository{db: db}
}

// Create inserts the photo and fills its generated identifier.
func (r *photoRepository) Create(ctx context.Context, photo *models.ClinicPhoto) error {
	query := `
		INSERT INTO clinic_photos (clinic_id, url, origin, is_primary, display_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		photo.ClinicID,
		photo.URL,
		photo.Origin,
		photo.IsPrimary,
		photo.DisplayOrder,
	).Scan(&photo.ID, &photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create clinic photo: %w", err)
	}
	return nil
}

// ListByClinic returns the clinic's photos in display order.
func (r *photoRepository) ListByClinic(ctx context.Context, clinicID int64) ([]*models.ClinicPhoto, error) {
	query := `
		SELECT id, clinic_id, url, origin, is_primary, display_order, created_at
		FROM clinic_photos
		WHERE clinic_id = $1
		ORDER BY display_order`

	rows, err := r.db.Querier(ctx).Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinic photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.ClinicPhoto
	for rows.Next() {
		var photo models.ClinicPhoto
		if err := rows.Scan(
			&photo.ID,
			&photo.ClinicID,
			&photo.URL,
			&photo.Origin,
			&photo.IsPrimary,
			&photo.DisplayOrder,
			&photo.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan clinic photo: %w", err)
		}
		photos = append(photos, &photo)
	}
	return photos, rows.Err()
}

// CountByClinic returns the number of photos stored for the clinic.
func (r *photoRepository) CountByClinic(ctx context.Context, clinicID int64) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinic_photos WHERE clinic_id = $1`, clinicID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clinic photos: %w", err)
	}
	return count, nil
}

// MaxDisplayOrder returns the clinic's highest display_order, or -1 when
// the clinic has no photos.
func (r *photoRepository) MaxDisplayOrder(ctx context.Context, clinicID int64) (int, error) {
	var max int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(display_order), -1) FROM clinic_photos WHERE clinic_id = $1`, clinicID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max display order: %w", err)
	}
	return max, nil
}

// Ensure photoRepository implements PhotoRepository at compile time.
var _ PhotoRepository = (*photoRepository)(nil)
