package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// clinicAllocatorLock is the advisory lock key serializing clinic ID
// allocation. pg_advisory_xact_lock holds it until the surrounding
// transaction ends.
const clinicAllocatorLock = 7342901

// ClinicFilter narrows List.
type ClinicFilter struct {
	Query  string // case-insensitive substring of the clinic name
	City   string
	State  string
	Limit  int
	Offset int
}

// ClinicRepository defines the interface for catalog clinic data access.
type ClinicRepository interface {
	// AllocateID returns max(clinic_id)+1 under the allocator advisory
	// lock. Callers must be inside the transaction that performs the
	// insert, otherwise the lock releases before the ID is used.
	AllocateID(ctx context.Context) (int64, error)
	Create(ctx context.Context, clinic *models.Clinic) error
	GetByID(ctx context.Context, clinicID int64) (*models.Clinic, error)
	// GetByIDForUpdate row-locks the clinic until the surrounding
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, clinicID int64) (*models.Clinic, error)
	Update(ctx context.Context, clinic *models.Clinic) error
	List(ctx context.Context, filter ClinicFilter) ([]*models.Clinic, error)
	Count(ctx context.Context) (int, error)

	// Matching projections; the matching engine consumes these.
	GetMatchTargetByPlaceRef(ctx context.Context, placeRef string) (*models.MatchTarget, error)
	FindMatchTargetsByPhone(ctx context.Context, digits string) ([]*models.MatchTarget, error)
	ListMatchTargets(ctx context.Context) ([]*models.MatchTarget, error)
}

// clinicRepository implements ClinicRepository using PostgreSQL.
type clinicRepository struct {
	db *database.DB
}

// NewClinicRepository creates a new clinic repository.
func NewClinicRepository(db *database.DB) ClinicRepository {
	return &clinicRepository{db: db}
}

const clinicColumns = `clinic_id, name, description, address, city, state, zip, phone, email,
	website, latitude, longitude, place_ref, rating, review_count, category, location_id,
	photo_count, created_at, updated_at`

// AllocateID returns the next externally stable clinic identifier.
func (r *clinicRepository) AllocateID(ctx context.Context) (int64, error) {
	q := r.db.Querier(ctx)

	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, clinicAllocatorLock); err != nil {
		return 0, fmt.Errorf("failed to acquire allocator lock: %w", err)
	}

	var next int64
	err := q.QueryRow(ctx, `SELECT COALESCE(MAX(clinic_id), 0) + 1 FROM clinics`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate clinic id: %w", err)
	}
	return next, nil
}

// Create inserts a new clinic with its pre-allocated identifier.
func (r *clinicRepository) Create(ctx context.Context, clinic *models.Clinic) error {
	now := time.Now()
	clinic.CreatedAt = now
	clinic.UpdatedAt = now

	query := `
		INSERT INTO clinics (clinic_id, name, description, address, city, state, zip, phone,
			email, website, latitude, longitude, place_ref, rating, review_count, category,
			location_id, photo_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		clinic.ClinicID,
		clinic.Name,
		clinic.Description,
		clinic.Address,
		clinic.City,
		clinic.State,
		clinic.Zip,
		clinic.Phone,
		clinic.Email,
		clinic.Website,
		clinic.Latitude,
		clinic.Longitude,
		clinic.PlaceRef,
		clinic.Rating,
		clinic.ReviewCount,
		clinic.Category,
		clinic.LocationID,
		clinic.PhotoCount,
		clinic.CreatedAt,
		clinic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create clinic: %w", err)
	}
	return nil
}

// GetByID retrieves a clinic by its identifier.
func (r *clinicRepository) GetByID(ctx context.Context, clinicID int64) (*models.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE clinic_id = $1`
	return scanClinic(r.db.Querier(ctx).QueryRow(ctx, query, clinicID))
}

// GetByIDForUpdate retrieves a clinic and row-locks it for the duration
// of the surrounding transaction.
func (r *clinicRepository) GetByIDForUpdate(ctx context.Context, clinicID int64) (*models.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE clinic_id = $1 FOR UPDATE`
	return scanClinic(r.db.Querier(ctx).QueryRow(ctx, query, clinicID))
}

// Update persists every mutable clinic field.
func (r *clinicRepository) Update(ctx context.Context, clinic *models.Clinic) error {
	clinic.UpdatedAt = time.Now()

	query := `
		UPDATE clinics
		SET name = $2, description = $3, address = $4, city = $5, state = $6, zip = $7,
			phone = $8, email = $9, website = $10, latitude = $11, longitude = $12,
			place_ref = $13, rating = $14, review_count = $15, category = $16,
			location_id = $17, photo_count = $18, updated_at = $19
		WHERE clinic_id = $1`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		clinic.ClinicID,
		clinic.Name,
		clinic.Description,
		clinic.Address,
		clinic.City,
		clinic.State,
		clinic.Zip,
		clinic.Phone,
		clinic.Email,
		clinic.Website,
		clinic.Latitude,
		clinic.Longitude,
		clinic.PlaceRef,
		clinic.Rating,
		clinic.ReviewCount,
		clinic.Category,
		clinic.LocationID,
		clinic.PhotoCount,
		clinic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update clinic: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// List returns clinics matching the filter, ordered by identifier.
func (r *clinicRepository) List(ctx context.Context, filter ClinicFilter) ([]*models.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics`
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		query += fmt.Sprintf(" WHERE name ILIKE $%d", len(args))
	}
	if filter.City != "" {
		args = append(args, filter.City)
		query += clauseKeyword(len(args) == 1) + fmt.Sprintf(" LOWER(city) = LOWER($%d)", len(args))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		query += clauseKeyword(len(args) == 1) + fmt.Sprintf(" LOWER(state) = LOWER($%d)", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY clinic_id LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	defer rows.Close()

	var clinics []*models.Clinic
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, clinic)
	}
	return clinics, rows.Err()
}

// clauseKeyword returns the SQL keyword joining the next filter clause.
func clauseKeyword(first bool) string {
	if first {
		return " WHERE"
	}
	return " AND"
}

// Count returns the total number of catalog clinics.
func (r *clinicRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinics`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clinics: %w", err)
	}
	return count, nil
}

const matchTargetColumns = `clinic_id, name, COALESCE(address, ''), COALESCE(city, ''),
	COALESCE(state, ''), COALESCE(phone, ''), COALESCE(website, ''), COALESCE(place_ref, '')`

// GetMatchTargetByPlaceRef returns the clinic holding the place reference.
func (r *clinicRepository) GetMatchTargetByPlaceRef(ctx context.Context, placeRef string) (*models.MatchTarget, error) {
	query := `SELECT ` + matchTargetColumns + ` FROM clinics WHERE place_ref = $1`
	return scanMatchTarget(r.db.Querier(ctx).QueryRow(ctx, query, placeRef))
}

// FindMatchTargetsByPhone returns clinics whose stored phone reduces to
// the given digit string, tolerating a stored country code 1.
func (r *clinicRepository) FindMatchTargetsByPhone(ctx context.Context, digits string) ([]*models.MatchTarget, error) {
	query := `
		SELECT ` + matchTargetColumns + `
		FROM clinics
		WHERE phone IS NOT NULL
		  AND (regexp_replace(phone, '\D', '', 'g') = $1
		       OR regexp_replace(phone, '\D', '', 'g') = '1' || $1)`

	rows, err := r.db.Querier(ctx).Query(ctx, query, digits)
	if err != nil {
		return nil, fmt.Errorf("failed to find clinics by phone: %w", err)
	}
	defer rows.Close()

	return scanMatchTargets(rows)
}

// ListMatchTargets returns the comparison projection of the whole catalog.
func (r *clinicRepository) ListMatchTargets(ctx context.Context) ([]*models.MatchTarget, error) {
	query := `SELECT ` + matchTargetColumns + ` FROM clinics ORDER BY clinic_id`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list match targets: %w", err)
	}
	defer rows.Close()

	return scanMatchTargets(rows)
}

func scanClinic(row pgx.Row) (*models.Clinic, error) {
	var clinic models.Clinic
	err := row.Scan(
		&clinic.ClinicID,
		&clinic.Name,
		&clinic.Description,
		&clinic.Address,
		&clinic.City,
		&clinic.State,
		&clinic.Zip,
		&clinic.Phone,
		&clinic.Email,
		&clinic.Website,
		&clinic.Latitude,
		&clinic.Longitude,
		&clinic.PlaceRef,
		&clinic.Rating,
		&clinic.ReviewCount,
		&clinic.Category,
		&clinic.LocationID,
		&clinic.PhotoCount,
		&clinic.CreatedAt,
		&clinic.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan clinic: %w", err)
	}
	return &clinic, nil
}

func scanMatchTarget(row pgx.Row) (*models.MatchTarget, error) {
	var target models.MatchTarget
	err := row.Scan(
		&target.ClinicID,
		&target.Name,
		&target.Address,
		&target.City,
		&target.State,
		&target.Phone,
		&target.Website,
		&target.PlaceRef,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan match target: %w", err)
	}
	return &target, nil
}

func scanMatchTargets(rows pgx.Rows) ([]*models.MatchTarget, error) {
	var targets []*models.MatchTarget
	for rows.Next() {
		target, err := scanMatchTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// Ensure clinicRepository implements ClinicRepository at compile time.
var _ ClinicRepository = (*clinicRepository)(nil)
