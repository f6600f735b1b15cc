package store

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrationsCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, RunMigrations(ctx, db, dialectSQLite, BackendDocument, zap.NewNop()))

	for _, table := range []string{"schema_version", "page_data", "cell_pages", "cell_data"} {
		assert.True(t, tableExists(ctx, db, dialectSQLite, table), "missing table %s", table)
	}

	version, err := schemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, RunMigrations(ctx, db, dialectSQLite, BackendDocument, zap.NewNop()))
	require.NoError(t, RunMigrations(ctx, db, dialectSQLite, BackendDocument, zap.NewNop()))

	// One version row per migration, not per run.
	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, CurrentSchemaVersion, count)
}

func TestSchemaVersionEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, ensureVersionTable(ctx, db))
	version, err := schemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestUniqueConstraintEnforced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, RunMigrations(ctx, db, dialectSQLite, BackendDocument, zap.NewNop()))

	_, err := db.ExecContext(ctx,
		`INSERT INTO page_data (page_name, data) VALUES ('industrial', '[]')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO page_data (page_name, data) VALUES ('industrial', '[]')`)
	require.Error(t, err)
	assert.True(t, dialectSQLite.isUniqueViolation(err))
}

func TestCellUniqueConstraintEnforced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, RunMigrations(ctx, db, dialectSQLite, BackendDocument, zap.NewNop()))

	_, err := db.ExecContext(ctx,
		`INSERT INTO cell_data (page_name, row_index, col_index, cell_value)
			VALUES ('industrial', 0, 0, 'a')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		`INSERT INTO cell_data (page_name, row_index, col_index, cell_value)
			VALUES ('industrial', 0, 0, 'b')`)
	require.Error(t, err)
	assert.True(t, dialectSQLite.isUniqueViolation(err))
}
