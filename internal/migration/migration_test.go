package migration

import (
	"io"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	source, err := iofs.New(sub, ".")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := source.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "idx_rating_changes_date_user ON rating_changes (entry_date, user_id)")
	assert.Contains(t, string(body), "idx_rating_changes_created_user ON rating_changes (created_at, user_id)")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	schema, err := RunMigrations(nil)
	assert.Error(t, err)
	assert.Zero(t, schema.Version)
}
