//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgrid/intake-engine/pkg/testhelpers"
)

// Test_001_CatalogSchema verifies migration 001 creates the catalog tables
// with the identifier contract intact.
func Test_001_CatalogSchema(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	// clinic_id must not be an identity or serial column: identifiers are
	// allocated explicitly by the resolution engine.
	var isIdentity string
	var columnDefault *string
	err := engineDB.DB.Pool.QueryRow(ctx, `
		SELECT is_identity, column_default
		FROM information_schema.columns
		WHERE table_name = 'clinics' AND column_name = 'clinic_id'
	`).Scan(&isIdentity, &columnDefault)

	require.NoError(t, err, "Failed to query clinic_id column information")
	assert.Equal(t, "NO", isIdentity, "clinic_id must not be an identity column")
	assert.Nil(t, columnDefault, "clinic_id must not have a sequence default")

	// One clinic per external place record.
	var indexExists bool
	err = engineDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'clinics'
			AND indexname = 'idx_clinics_place_ref'
		)
	`).Scan(&indexExists)

	require.NoError(t, err, "Failed to query index information")
	assert.True(t, indexExists, "idx_clinics_place_ref index should exist")

	// Locations are lookup-or-create rows keyed by (city, state).
	var constraintExists bool
	err = engineDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.table_constraints
			WHERE table_name = 'locations'
			AND constraint_type = 'UNIQUE'
		)
	`).Scan(&constraintExists)

	require.NoError(t, err, "Failed to query constraint information")
	assert.True(t, constraintExists, "locations should have a unique (city, state) constraint")
}

// Test_001_PhotoOriginCheck verifies stored photos only carry known origins.
func Test_001_PhotoOriginCheck(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	_, err := engineDB.DB.Pool.Exec(ctx, `
		INSERT INTO clinics (clinic_id, name) VALUES (990001, 'Origin Check Clinic')`)
	require.NoError(t, err)
	defer func() {
		_, _ = engineDB.DB.Pool.Exec(ctx, `DELETE FROM clinics WHERE clinic_id = 990001`)
	}()

	_, err = engineDB.DB.Pool.Exec(ctx, `
		INSERT INTO clinic_photos (clinic_id, url, origin)
		VALUES (990001, 'https://example.com/p.jpg', 'scraper')`)
	assert.Error(t, err, "unknown photo origin should violate the check constraint")
}
