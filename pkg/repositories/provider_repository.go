package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// ProviderRepository defines the interface for catalog provider data access.
type ProviderRepository interface {
	// Create inserts the provider and fills its generated identifier.
	Create(ctx context.Context, provider *models.Provider) error
	// GetByClinicAndName returns the clinic's provider with the given
	// name, compared case-insensitively.
	GetByClinicAndName(ctx context.Context, clinicID int64, name string) (*models.Provider, error)
	ListByClinic(ctx context.Context, clinicID int64) ([]*models.Provider, error)
	Count(ctx context.Context) (int, error)
}

// providerRepository implements ProviderRepository using PostgreSQL.
type providerRepository struct {
	db *database.DB
}

// NewProviderRepository creates a new provider repository.
func NewProviderRepository(db *database.DB) ProviderRepository {
	return &providerRepository{db: db}
}

// Create inserts the provider and fills its generated identifier.
func (r *providerRepository) Create(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (clinic_id, name, specialty_id, photo_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		provider.ClinicID,
		provider.Name,
		provider.SpecialtyID,
		provider.PhotoURL,
	).Scan(&provider.ID, &provider.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// GetByClinicAndName returns the clinic's provider with the given name.
func (r *providerRepository) GetByClinicAndName(ctx context.Context, clinicID int64, name string) (*models.Provider, error) {
	query := `
		SELECT id, clinic_id, name, specialty_id, photo_url, created_at
		FROM providers
		WHERE clinic_id = $1 AND LOWER(name) = LOWER($2)`

	var provider models.Provider
	err := r.db.Querier(ctx).QueryRow(ctx, query, clinicID, name).Scan(
		&provider.ID,
		&provider.ClinicID,
		&provider.Name,
		&provider.SpecialtyID,
		&provider.PhotoURL,
		&provider.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

// ListByClinic returns the clinic's providers in creation order.
func (r *providerRepository) ListByClinic(ctx context.Context, clinicID int64) ([]*models.Provider, error) {
	query := `
		SELECT id, clinic_id, name, specialty_id, photo_url, created_at
		FROM providers
		WHERE clinic_id = $1
		ORDER BY id`

	rows, err := r.db.Querier(ctx).Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		var provider models.Provider
		if err := rows.Scan(
			&provider.ID,
			&provider.ClinicID,
			&provider.Name,
			&provider.SpecialtyID,
			&provider.PhotoURL,
			&provider.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, &provider)
	}
	return providers, rows.Err()
}

// Count returns the total number of catalog providers.
func (r *providerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM providers`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count providers: %w", err)
	}
	return count, nil
}

// Ensure providerRepository implements ProviderRepository at compile time.
var _ ProviderRepository = (*providerRepository)(nil)
