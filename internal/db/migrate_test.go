package db

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)

	_, err = LatestMigrationVersion(fstest.MapFS{"README": {Data: []byte("x")}})
	assert.Error(t, err)
}

func TestMigrateUpDown(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()
	migrations := MigrationsFS()

	v, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	status, err := db.GetMigrationStatus(migrations)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{CurrentVersion: 3, LatestVersion: 3}, status)
	assert.Equal(t, uint(0), status.Pending())

	// Applying again is a no-op.
	require.NoError(t, db.MigrateUp(migrations))

	require.NoError(t, db.MigrateDown(migrations))
	v, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	var views int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = 'wear_summary'`).Scan(&views))
	assert.Equal(t, 0, views)

	require.NoError(t, db.MigrateTo(migrations, 1))
	status, err = db.GetMigrationStatus(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), status.Pending())
}

func TestMigrateForce(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "force.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.MigrateForce(MigrationsFS(), 2))
	v, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
}
