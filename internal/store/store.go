// Package store implements the grid persistence layer on top of a relational
// database. Two backends share one interface: a document store that keeps the
// whole grid in a JSON column, and a normalized cell store that keeps one row
// per cell. The backend and driver are selected from configuration; PostgreSQL
// is used for postgres connection strings, SQLite for everything else.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"prioritygrid/internal/grid"
)

// Backend names accepted in configuration.
const (
	BackendDocument = "document"
	BackendCell     = "cell"
)

// ErrConflict is returned when a write loses a uniqueness race on page_name.
// The in-flight transaction has been rolled back; the caller may retry.
var ErrConflict = errors.New("unique constraint violated")

// GridStore is the persistence contract for page grids.
//
// Load never fails for a syntactically valid page name because absence is not
// an error: a never-seen page materializes its default grid and persists it.
// Save is a full overwrite of the page's grid, idempotent per key.
type GridStore interface {
	Load(ctx context.Context, pageName string) (grid.Grid, error)
	Save(ctx context.Context, pageName string, g grid.Grid) error
	Close() error
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) driverName() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// detectDialect picks the driver from the connection string. URL and keyword
// forms select PostgreSQL; anything else is treated as a SQLite path.
func detectDialect(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dialectPostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return dialectPostgres
	}
	return dialectSQLite
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL. Queries in this
// package are written with ? and rebound per dialect.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation classifies driver errors that mean the one-record-per-key
// invariant rejected a write.
func (d dialect) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if d == dialectPostgres {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Options configures Open.
type Options struct {
	// DSN is the connection string. Required.
	DSN string
	// Backend selects the storage model: BackendDocument or BackendCell.
	// Empty means BackendDocument.
	Backend string
	// Logger receives store-level logs. Nil means no logging.
	Logger *zap.Logger
}

// Open connects to the database, runs schema migrations, and returns the
// configured backend.
func Open(ctx context.Context, opts Options) (GridStore, error) {
	if opts.DSN == "" {
		return nil, errors.New("connection string required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := detectDialect(opts.DSN)
	db, err := sql.Open(d.driverName(), opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == dialectSQLite {
		// A single connection keeps :memory: databases coherent and
		// serializes writers the way SQLite expects.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			logger.Debug("failed to enable sqlite foreign_keys", zap.Error(err))
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendDocument
	}

	if err := RunMigrations(ctx, db, d, backend, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	logger.Info("grid store opened",
		zap.String("dialect", d.String()),
		zap.String("backend", backend))

	switch backend {
	case BackendDocument:
		return newDocumentStore(db, d, logger), nil
	case BackendCell:
		return newCellStore(db, d, logger), nil
	default:
		db.Close()
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
