package sqldb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/minocc/internal/adapters/sqldb"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "minocc.db"))
	require.NoError(t, err)
	defer db.Close()

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`))
	assert.Equal(t, []string{"jobs", "run_failures", "runs", "spike_counts"}, tables)

	// Migrating twice is harmless.
	require.NoError(t, sqldb.Migrate(ctx, db))
	assert.Equal(t, "SELECT ? FROM runs", db.Rebind("SELECT ? FROM runs"))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := sqldb.Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}
