//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgrid/intake-engine/pkg/testhelpers"
)

// Test_003_AdminEmailUniqueCaseInsensitive verifies the operator email
// uniqueness holds regardless of letter case.
func Test_003_AdminEmailUniqueCaseInsensitive(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	defer func() {
		_, _ = engineDB.DB.Pool.Exec(ctx, `DELETE FROM admin_users WHERE id = ANY($1)`, []uuid.UUID{first, second})
	}()

	_, err := engineDB.DB.Pool.Exec(ctx, `
		INSERT INTO admin_users (id, email, display_name, role, password_hash)
		VALUES ($1, 'reviewer@example.com', 'Reviewer', 'reviewer', 'x')`, first)
	require.NoError(t, err)

	_, err = engineDB.DB.Pool.Exec(ctx, `
		INSERT INTO admin_users (id, email, display_name, role, password_hash)
		VALUES ($1, 'Reviewer@Example.com', 'Reviewer Again', 'reviewer', 'x')`, second)
	assert.Error(t, err, "case-variant duplicate email should violate the unique index")
}

// Test_003_AdminRoleCheck verifies only the two known roles are accepted.
func Test_003_AdminRoleCheck(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	id := uuid.New()
	_, err := engineDB.DB.Pool.Exec(ctx, `
		INSERT INTO admin_users (id, email, display_name, role, password_hash)
		VALUES ($1, 'superuser@example.com', 'Super', 'superuser', 'x')`, id)
	assert.Error(t, err, "unknown role should violate the check constraint")
}
