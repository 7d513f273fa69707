package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// LocationRepository defines the interface for location lookup-or-create.
type LocationRepository interface {
	// GetOrCreate returns the location row for (city, state), creating it
	// when absent. Lookup is exact on the stored strings.
	GetOrCreate(ctx context.Context, city, state string) (*models.Location, error)
	GetByID(ctx context.Context, id int64) (*models.Location, error)
}

// locationRepository implements LocationRepository using PostgreSQL.
type locationRepository struct {
	db *database.DB
}

// NewLocationRepository creates a new location repository.
func NewLocationRepository(db *database.DB) LocationRepository {
	return &locationRepository{db: db}
}

// GetOrCreate returns the location for (city, state), creating it when
// absent. The no-op conflict update makes RETURNING yield the existing row.
func (r *locationRepository) GetOrCreate(ctx context.Context, city, state string) (*models.Location, error) {
	query := `
		INSERT INTO locations (city, state)
		VALUES ($1, $2)
		ON CONFLICT (city, state) DO UPDATE SET city = EXCLUDED.city
		RETURNING id, city, state, created_at`

	var location models.Location
	err := r.db.Querier(ctx).QueryRow(ctx, query, city, state).Scan(
		&location.ID,
		&location.City,
		&location.State,
		&location.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create location: %w", err)
	}
	return &location, nil
}

// GetByID retrieves a location by ID.
func (r *locationRepository) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	query := `SELECT id, city, state, created_at FROM locations WHERE id = $1`

	var location models.Location
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&location.ID,
		&location.City,
		&location.State,
		&location.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &location, nil
}

// Ensure locationRepository implements LocationRepository at compile time.
var _ LocationRepository = (*locationRepository)(nil)
