package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/database"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// AdminUserRepository defines the interface for admin user data access.
type AdminUserRepository interface {
	// Create persists a new admin user.
	Create(ctx context.Context, user *models.AdminUser) error
	// GetByEmail retrieves an admin user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	// GetByID retrieves an admin user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	// UpdateLastLogin stamps the user's last successful login time.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// adminUserRepository implements AdminUserRepository using PostgreSQL.
type adminUserRepository struct {
	db *database.DB
}

// NewAdminUserRepository creates a new admin user repository.
func NewAdminUserRepository(db *database.DB) AdminUserRepository {
	return &adminUserRepository{db: db}
}

const adminUserColumns = `id, email, display_name, role, password_hash, created_at, last_login_at`

// Create persists a new admin user.
func (r *adminUserRepository) Create(ctx context.Context, user *models.AdminUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleReviewer
	}
	user.CreatedAt = time.Now()

	query := `
		INSERT INTO admin_users (id, email, display_name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// GetByEmail retrieves an admin user by email.
func (r *adminUserRepository) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_users WHERE LOWER(email) = LOWER($1)`, adminUserColumns)
	return scanAdminUser(r.db.Querier(ctx).QueryRow(ctx, query, email))
}

// GetByID retrieves an admin user by ID.
func (r *adminUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	query := fmt.Sprintf(`SELECT %s FROM admin_users WHERE id = $1`, adminUserColumns)
	return scanAdminUser(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

// UpdateLastLogin stamps the user's last successful login time.
func (r *adminUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// scanAdminUser scans a single admin user row.
func scanAdminUser(row pgx.Row) (*models.AdminUser, error) {
	var user models.AdminUser
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan admin user: %w", err)
	}
	return &user, nil
}

// Ensure adminUserRepository implements AdminUserRepository at compile time.
var _ AdminUserRepository = (*adminUserRepository)(nil)
