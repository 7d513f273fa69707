package repositories

import (
	"context"
	"fmt"

	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// SpecialtyRepository defines the interface for provider specialty
// lookup-or-create.
type SpecialtyRepository interface {
	// GetOrCreate returns the specialty row for the exact name, creating
	// it when absent.
	GetOrCreate(ctx context.Context, name string) (*models.Specialty, error)
}

// specialtyRepository implements SpecialtyRepository using PostgreSQL.
type specialtyRepository struct {
	db *database.DB
}

// NewSpecialtyRepository creates a new specialty repository.
func NewSpecialtyRepository(db *database.DB) SpecialtyRepository {
	return &specialtyRepository{db: db}
}

// GetOrCreate returns the specialty for name, creating it when absent.
func (r *specialtyRepository) GetOrCreate(ctx context.Context, name string) (*models.Specialty, error) {
	query := `
		INSERT INTO specialties (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	var specialty models.Specialty
	err := r.db.Querier(ctx).QueryRow(ctx, query, name).Scan(
		&specialty.ID,
		&specialty.Name,
		&specialty.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create specialty: %w", err)
	}
	return &specialty, nil
}

// Ensure specialtyRepository implements SpecialtyRepository at compile time.
var _ SpecialtyRepository = (*specialtyRepository)(nil)
