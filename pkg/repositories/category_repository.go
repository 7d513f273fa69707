package repositories

import (
	"context"
	"fmt"

	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// CategoryRepository defines the interface for procedure/clinic category
// lookup-or-create.
type CategoryRepository interface {
	// GetOrCreate returns the category row for the exact name, creating
	// it when absent.
	GetOrCreate(ctx context.Context, name string) (*models.Category, error)
	List(ctx context.Context) ([]*models.Category, error)
}

// categoryRepository implements CategoryRepository using PostgreSQL.
type categoryRepository struct {
	db *database.DB
}

// NewCategoryRepository creates a new category repository.
func NewCategoryRepository(db *database.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// GetOrCreate returns the category for name, creating it when absent.
func (r *categoryRepository) GetOrCreate(ctx context.Context, name string) (*models.Category, error) {
	query := `
		INSERT INTO categories (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`

	var category models.Category
	err := r.db.Querier(ctx).QueryRow(ctx, query, name).Scan(
		&category.ID,
		&category.Name,
		&category.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create category: %w", err)
	}
	return &category, nil
}

// List returns all categories ordered by name.
func (r *categoryRepository) List(ctx context.Context) ([]*models.Category, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		var category models.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &category)
	}
	return categories, rows.Err()
}

// Ensure categoryRepository implements CategoryRepository at compile time.
var _ CategoryRepository = (*categoryRepository)(nil)
