package repositories

import (
	"context"
	"fmt"

	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// ProcedureRepository defines the interface for catalog procedure data access.
type ProcedureRepository interface {
	// Create inserts the procedure and fills its generated identifier.
	Create(ctx context.Context, procedure *models.Procedure) error
	ListByClinic(ctx context.Context, clinicID int64) ([]*models.Procedure, error)
}

// procedureRepository implements ProcedureRepository using PostgreSQL.
type procedureRepository struct {
	db *database.DB
}

// NewProcedureRepository creates a new procedure repository.
func NewProcedureRepository(db *database.DB) ProcedureRepository {
	return &procedureRepository{db: db}
}

// Create inserts the procedure and fills its generated identifier.
func (r *procedureRepository) Create(ctx context.Context, procedure *models.Procedure) error {
	query := `
		INSERT INTO procedures (clinic_id, provider_id, category_id, name, description,
			price_min, price_max, price_avg, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		procedure.ClinicID,
		procedure.ProviderID,
		procedure.CategoryID,
		procedure.Name,
		procedure.Description,
		procedure.PriceMin,
		procedure.PriceMax,
		procedure.PriceAvg,
		procedure.DurationMin,
	).Scan(&procedure.ID)
	if err != nil {
		return fmt.Errorf("failed to create procedure: %w", err)
	}
	return nil
}

// ListByClinic returns the clinic's procedures in creation order.
func (r *procedureRepository) ListByClinic(ctx context.Context, clinicID int64) ([]*models.Procedure, error) {
	query := `
		SELECT id, clinic_id, provider_id, category_id, name, description, price_min,
			price_max, price_avg, duration_minutes
		FROM procedures
		WHERE clinic_id = $1
		ORDER BY id`

	rows, err := r.db.Querier(ctx).Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	defer rows.Close()

	var procedures []*models.Procedure
	for rows.Next() {
		var procedure models.Procedure
		if err := rows.Scan(
			&procedure.ID,
			&procedure.ClinicID,
			&procedure.ProviderID,
			&procedure.CategoryID,
			&procedure.Name,
			&procedure.Description,
			&procedure.PriceMin,
			&procedure.PriceMax,
			&procedure.PriceAvg,
			&procedure.DurationMin,
		); err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		procedures = append(procedures, &procedure)
	}
	return procedures, rows.Err()
}

// Ensure procedureRepository implements ProcedureRepository at compile time.
var _ ProcedureRepository = (*procedureRepository)(nil)
