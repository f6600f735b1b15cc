// Versioned schema bootstrap for the grid store. Migrations run explicitly
// from process startup (or `gridd migrate`), never as an import side effect,
// and are idempotent: each version is recorded in schema_version and applied
// at most once.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// CurrentSchemaVersion is the newest schema version migrations produce.
//
// v1: page_data table (whole-grid JSON document model)
// v2: cell_pages + cell_data tables (normalized per-cell model)
const CurrentSchemaVersion = 2

type migration struct {
	version  int
	name     string
	sqlite   []string
	postgres []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "page_data document table",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS page_data (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				page_name TEXT NOT NULL UNIQUE,
				data TEXT NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_page_data_page_name ON page_data(page_name)`,
		},
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS page_data (
				id SERIAL PRIMARY KEY,
				page_name VARCHAR(50) NOT NULL UNIQUE,
				data JSONB NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_page_data_page_name ON page_data(page_name)`,
		},
	},
	{
		version: 2,
		name:    "normalized cell tables",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS cell_pages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				page_name TEXT NOT NULL UNIQUE,
				row_count INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS cell_data (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				page_name TEXT NOT NULL,
				row_index INTEGER NOT NULL,
				col_index INTEGER NOT NULL,
				cell_value TEXT,
				UNIQUE(page_name, row_index, col_index)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cell_data_page_name ON cell_data(page_name)`,
		},
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS cell_pages (
				id SERIAL PRIMARY KEY,
				page_name VARCHAR(100) NOT NULL UNIQUE,
				row_count INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS cell_data (
				id SERIAL PRIMARY KEY,
				page_name VARCHAR(100) NOT NULL,
				row_index INTEGER NOT NULL,
				col_index INTEGER NOT NULL,
				cell_value TEXT,
				CONSTRAINT unique_cell UNIQUE(page_name, row_index, col_index)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cell_data_page_name ON cell_data(page_name)`,
		},
	},
}

// RunMigrations brings the schema up to CurrentSchemaVersion. The backend
// argument is informational only: both models are always created so an
// operator can switch backends without a second bootstrap step.
func RunMigrations(ctx context.Context, db *sql.DB, d dialect, backend string, logger *zap.Logger) error {
	if err := ensureVersionTable(ctx, db); err != nil {
		return err
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("running schema migrations",
		zap.Int("current_version", current),
		zap.Int("target_version", CurrentSchemaVersion),
		zap.String("backend", backend))

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, d, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
		logger.Info("migration applied",
			zap.Int("version", m.version),
			zap.String("name", m.name))
		applied++
	}

	logger.Info("schema migrations complete",
		zap.Int("applied", applied),
		zap.Int("version", CurrentSchemaVersion))
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, d dialect, m migration) error {
	stmts := m.sqlite
	if d == dialectPostgres {
		stmts = m.postgres
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	query := d.rebind(`INSERT INTO schema_version (version) VALUES (?)`)
	if _, err := tx.ExecContext(ctx, query, m.version); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// tableExists reports whether a table is present. Used by tests to verify
// bootstrap and by operators debugging a half-migrated database.
func tableExists(ctx context.Context, db *sql.DB, d dialect, table string) bool {
	var query string
	if d == dialectPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1`
	} else {
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var count int
	if err := db.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}
