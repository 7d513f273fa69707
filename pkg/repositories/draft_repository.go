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

// DraftFilter narrows List.
type DraftFilter struct {
	Status  string
	Source  string
	Flagged *bool
	Limit   int
	Offset  int
}

// DraftRepository defines the interface for intake draft data access.
type DraftRepository interface {
	// Create inserts the draft and its child collections.
	Create(ctx context.Context, draft *models.Draft) error
	// GetByID returns the draft with providers, procedures and photos.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	// GetByIDForUpdate row-locks the draft until the surrounding
	// transaction ends, serializing concurrent review decisions on the
	// same draft.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	// Update rewrites the draft's submitted fields and replaces its child
	// collections. Lifecycle fields (status, reviewer) are untouched.
	Update(ctx context.Context, draft *models.Draft) error
	// UpdateStatus moves the draft to status; reviewedBy is recorded with
	// a timestamp for review decisions and left untouched when nil.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, reviewedBy *string) error
	// List returns draft rows without child collections.
	List(ctx context.Context, filter DraftFilter) ([]*models.Draft, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountFlagged(ctx context.Context) (int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// draftRepository implements DraftRepository using PostgreSQL.
type draftRepository struct {
	db *database.DB
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *database.DB) DraftRepository {
	return &draftRepository{db: db}
}

const draftColumns = `id, status, source, name, category, description, address, city, state,
	zip, phone, email, website, place_ref, rating, review_count, duplicate_of, flagged,
	flag_reason, submitted_by, reviewed_by, reviewed_at, created_at, updated_at`

// Create inserts the draft and its child collections.
func (r *draftRepository) Create(ctx context.Context, draft *models.Draft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Status == "" {
		draft.Status = models.DraftStatusDraft
	}
	if draft.Source == "" {
		draft.Source = models.DraftSourceWebForm
	}
	now := time.Now()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	query := `
		INSERT INTO drafts (id, status, source, name, category, description, address, city,
			state, zip, phone, email, website, place_ref, rating, review_count, duplicate_of,
			flagged, flag_reason, submitted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		draft.ID,
		draft.Status,
		draft.Source,
		draft.Name,
		draft.Category,
		draft.Description,
		draft.Address,
		draft.City,
		draft.State,
		draft.Zip,
		draft.Phone,
		draft.Email,
		draft.Website,
		draft.PlaceRef,
		draft.Rating,
		draft.ReviewCount,
		draft.DuplicateOf,
		draft.Flagged,
		draft.FlagReason,
		draft.SubmittedBy,
		draft.CreatedAt,
		draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}

	return r.insertChildren(ctx, draft)
}

// GetByID returns the draft with its child collections.
func (r *draftRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`

	draft, err := scanDraft(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// GetByIDForUpdate retrieves a draft and row-locks it for the duration
// of the enclosing transaction. The second of two concurrent approvals
// blocks here and then reads the terminal status the first one committed.
func (r *draftRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1 FOR UPDATE`

	draft, err := scanDraft(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Update rewrites the draft's submitted fields and replaces its children.
func (r *draftRepository) Update(ctx context.Context, draft *models.Draft) error {
	draft.UpdatedAt = time.Now()

	query := `
		UPDATE drafts
		SET name = $2, category = $3, description = $4, address = $5, city = $6, state = $7,
			zip = $8, phone = $9, email = $10, website = $11, place_ref = $12, rating = $13,
			review_count = $14, duplicate_of = $15, flagged = $16, flag_reason = $17,
			updated_at = $18
		WHERE id = $1`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		draft.ID,
		draft.Name,
		draft.Category,
		draft.Description,
		draft.Address,
		draft.City,
		draft.State,
		draft.Zip,
		draft.Phone,
		draft.Email,
		draft.Website,
		draft.PlaceRef,
		draft.Rating,
		draft.ReviewCount,
		draft.DuplicateOf,
		draft.Flagged,
		draft.FlagReason,
		draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := r.deleteChildren(ctx, draft.ID); err != nil {
		return err
	}
	return r.insertChildren(ctx, draft)
}

// UpdateStatus moves the draft to status.
func (r *draftRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, reviewedBy *string) error {
	now := time.Now()

	if reviewedBy != nil {
		tag, err := r.db.Querier(ctx).Exec(ctx,
			`UPDATE drafts SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4 WHERE id = $1`,
			id, status, *reviewedBy, now)
		if err != nil {
			return fmt.Errorf("failed to update draft status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	}

	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE drafts SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, now)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// List returns draft rows matching the filter, newest first, without
// child collections.
func (r *draftRepository) List(ctx context.Context, filter DraftFilter) ([]*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts`
	var args []any
	var clauses []string

	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		clauses = append(clauses, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Flagged != nil {
		args = append(args, *filter.Flagged)
		clauses = append(clauses, fmt.Sprintf("flagged = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*models.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

// CountByStatus returns draft counts grouped by status.
func (r *draftRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `SELECT status, COUNT(*) FROM drafts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count drafts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CountFlagged returns the number of flagged drafts still in review.
func (r *draftRepository) CountFlagged(ctx context.Context) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM drafts WHERE flagged AND status IN ($1, $2)`,
		models.DraftStatusDraft, models.DraftStatusPendingReview).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count flagged drafts: %w", err)
	}
	return count, nil
}

// CountCreatedSince returns the number of drafts created at or after since.
func (r *draftRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM drafts WHERE created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent drafts: %w", err)
	}
	return count, nil
}

// insertChildren writes the draft's providers, procedures and photos in
// one batch, scanning generated identifiers back.
func (r *draftRepository) insertChildren(ctx context.Context, draft *models.Draft) error {
	total := len(draft.Providers) + len(draft.Procedures) + len(draft.Photos)
	if total == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range draft.Providers {
		p.DraftID = draft.ID
		batch.Queue(`
			INSERT INTO draft_providers (draft_id, name, specialty, photo_url)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			p.DraftID, p.Name, p.Specialty, p.PhotoURL)
	}
	for _, p := range draft.Procedures {
		p.DraftID = draft.ID
		batch.Queue(`
			INSERT INTO draft_procedures (draft_id, provider_name, name, category, description,
				price_min, price_max, price_avg, duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			p.DraftID, p.ProviderName, p.Name, p.Category, p.Description,
			p.PriceMin, p.PriceMax, p.PriceAvg, p.DurationMin)
	}
	for i, p := range draft.Photos {
		p.DraftID = draft.ID
		p.DisplayOrder = i
		batch.Queue(`
			INSERT INTO draft_photos (draft_id, url, display_order)
			VALUES ($1, $2, $3)
			RETURNING id`,
			p.DraftID, p.URL, p.DisplayOrder)
	}

	results := r.db.Querier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for _, p := range draft.Providers {
		if err := results.QueryRow().Scan(&p.ID); err != nil {
			return fmt.Errorf("failed to insert draft provider: %w", err)
		}
	}
	for _, p := range draft.Procedures {
		if err := results.QueryRow().Scan(&p.ID); err != nil {
			return fmt.Errorf("failed to insert draft procedure: %w", err)
		}
	}
	for _, p := range draft.Photos {
		if err := results.QueryRow().Scan(&p.ID); err != nil {
			return fmt.Errorf("failed to insert draft photo: %w", err)
		}
	}
	return nil
}

// deleteChildren clears the draft's child collections before a rewrite.
func (r *draftRepository) deleteChildren(ctx context.Context, draftID uuid.UUID) error {
	q := r.db.Querier(ctx)
	for _, table := range []string{"draft_providers", "draft_procedures", "draft_photos"} {
		if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE draft_id = $1", table), draftID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// loadChildren populates the draft's child collections.
func (r *draftRepository) loadChildren(ctx context.Context, draft *models.Draft) error {
	if err := r.loadProviders(ctx, draft); err != nil {
		return err
	}
	if err := r.loadProcedures(ctx, draft); err != nil {
		return err
	}
	return r.loadPhotos(ctx, draft)
}

func (r *draftRepository) loadProviders(ctx context.Context, draft *models.Draft) error {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT id, draft_id, name, specialty, photo_url FROM draft_providers WHERE draft_id = $1 ORDER BY id`,
		draft.ID)
	if err != nil {
		return fmt.Errorf("failed to load draft providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.DraftProvider
		if err := rows.Scan(&p.ID, &p.DraftID, &p.Name, &p.Specialty, &p.PhotoURL); err != nil {
			return fmt.Errorf("failed to scan draft provider: %w", err)
		}
		draft.Providers = append(draft.Providers, &p)
	}
	return rows.Err()
}

func (r *draftRepository) loadProcedures(ctx context.Context, draft *models.Draft) error {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT id, draft_id, provider_name, name, category, description, price_min, price_max,
			price_avg, duration_minutes
		FROM draft_procedures WHERE draft_id = $1 ORDER BY id`,
		draft.ID)
	if err != nil {
		return fmt.Errorf("failed to load draft procedures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.DraftProcedure
		if err := rows.Scan(&p.ID, &p.DraftID, &p.ProviderName, &p.Name, &p.Category,
			&p.Description, &p.PriceMin, &p.PriceMax, &p.PriceAvg, &p.DurationMin); err != nil {
			return fmt.Errorf("failed to scan draft procedure: %w", err)
		}
		draft.Procedures = append(draft.Procedures, &p)
	}
	return rows.Err()
}

func (r *draftRepository) loadPhotos(ctx context.Context, draft *models.Draft) error {
	rows, err := r.db.Querier(ctx).Query(ctx,
		`SELECT id, draft_id, url, display_order FROM draft_photos WHERE draft_id = $1 ORDER BY display_order`,
		draft.ID)
	if err != nil {
		return fmt.Errorf("failed to load draft photos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.DraftPhoto
		if err := rows.Scan(&p.ID, &p.DraftID, &p.URL, &p.DisplayOrder); err != nil {
			return fmt.Errorf("failed to scan draft photo: %w", err)
		}
		draft.Photos = append(draft.Photos, &p)
	}
	return rows.Err()
}

func scanDraft(row pgx.Row) (*models.Draft, error) {
	var draft models.Draft
	err := row.Scan(
		&draft.ID,
		&draft.Status,
		&draft.Source,
		&draft.Name,
		&draft.Category,
		&draft.Description,
		&draft.Address,
		&draft.City,
		&draft.State,
		&draft.Zip,
		&draft.Phone,
		&draft.Email,
		&draft.Website,
		&draft.PlaceRef,
		&draft.Rating,
		&draft.ReviewCount,
		&draft.DuplicateOf,
		&draft.Flagged,
		&draft.FlagReason,
		&draft.SubmittedBy,
		&draft.ReviewedBy,
		&draft.ReviewedAt,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}
	return &draft, nil
}

// Ensure draftRepository implements DraftRepository at compile time.
var _ DraftRepository = (*draftRepository)(nil)
