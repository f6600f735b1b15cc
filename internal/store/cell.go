package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"prioritygrid/internal/grid"
)

// cellStore is the normalized alternative to documentStore: one cell_data row
// per cell, keyed by (page_name, row_index, col_index). Page existence and
// row count are tracked in cell_pages so that empty grids and trailing empty
// rows round-trip, and so first-read auto-creation has a unique constraint to
// race on.
type cellStore struct {
	db     *sql.DB
	d      dialect
	logger *zap.Logger
}

func newCellStore(db *sql.DB, d dialect, logger *zap.Logger) *cellStore {
	return &cellStore{db: db, d: d, logger: logger}
}

func (s *cellStore) Close() error {
	return s.db.Close()
}

func (s *cellStore) Load(ctx context.Context, pageName string) (grid.Grid, error) {
	g, found, err := s.lookup(ctx, pageName)
	if err != nil {
		return nil, err
	}
	if found {
		if g.Empty() {
			return grid.Default(pageName), nil
		}
		return g, nil
	}

	def := grid.Default(pageName)
	if err := s.writePage(ctx, pageName, def, true); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Debug("auto-create race lost, re-reading",
				zap.String("page", pageName))
			g, found, err := s.lookup(ctx, pageName)
			if err != nil {
				return nil, err
			}
			if !found || g.Empty() {
				return grid.Default(pageName), nil
			}
			return g, nil
		}
		return nil, err
	}
	s.logger.Info("default grid created",
		zap.String("page", pageName),
		zap.Int("rows", len(def)))
	return def, nil
}

func (s *cellStore) Save(ctx context.Context, pageName string, g grid.Grid) error {
	if err := s.writePage(ctx, pageName, g, false); err != nil {
		return err
	}
	s.logger.Debug("grid saved",
		zap.String("page", pageName),
		zap.Int("rows", len(g)))
	return nil
}

// lookup reassembles the page's grid from its cell rows. Rows come back
// ordered by (row_index, col_index); because writePage always stores dense
// rows, appending per row index reproduces the saved shape, ragged rows
// included. Empty rows have no cell rows at all, so the grid is padded to the
// recorded row_count afterwards.
func (s *cellStore) lookup(ctx context.Context, pageName string) (grid.Grid, bool, error) {
	var rowCount int
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT row_count FROM cell_pages WHERE page_name = ?`),
		pageName).Scan(&rowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up page: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT row_index, cell_value FROM cell_data
			WHERE page_name = ? ORDER BY row_index, col_index`),
		pageName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load cells: %w", err)
	}
	defer rows.Close()

	g := grid.Grid{}
	for rows.Next() {
		var rowIndex int
		var value sql.NullString
		if err := rows.Scan(&rowIndex, &value); err != nil {
			return nil, false, fmt.Errorf("failed to scan cell: %w", err)
		}
		for len(g) <= rowIndex {
			g = append(g, []string{})
		}
		g[rowIndex] = append(g[rowIndex], value.String)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to read cells: %w", err)
	}
	for len(g) < rowCount {
		g = append(g, []string{})
	}
	return g, true, nil
}

// writePage registers the page and rewrites its cells in one transaction.
// autoCreate marks the first-read path, where an existing registration means
// a lost race and maps to ErrConflict for the caller to resolve by re-read.
func (s *cellStore) writePage(ctx context.Context, pageName string, g grid.Grid, autoCreate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pageID int64
	err = tx.QueryRowContext(ctx,
		s.d.rebind(`SELECT id FROM cell_pages WHERE page_name = ?`),
		pageName).Scan(&pageID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.ExecContext(ctx,
			s.d.rebind(`INSERT INTO cell_pages (page_name, row_count) VALUES (?, ?)`),
			pageName, len(g))
		if err != nil {
			if s.d.isUniqueViolation(err) {
				return fmt.Errorf("page %q: %w", pageName, ErrConflict)
			}
			return fmt.Errorf("failed to register page: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up page: %w", err)
	case autoCreate:
		// The page appeared between lookup and write.
		return fmt.Errorf("page %q: %w", pageName, ErrConflict)
	default:
		_, err := tx.ExecContext(ctx,
			s.d.rebind(`UPDATE cell_pages SET row_count = ? WHERE page_name = ?`),
			len(g), pageName)
		if err != nil {
			return fmt.Errorf("failed to update page: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		s.d.rebind(`DELETE FROM cell_data WHERE page_name = ?`),
		pageName)
	if err != nil {
		return fmt.Errorf("failed to clear cells: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.d.rebind(
		`INSERT INTO cell_data (page_name, row_index, col_index, cell_value)
			VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare cell insert: %w", err)
	}
	defer stmt.Close()

	for r, row := range g {
		for c, cell := range row {
			if _, err := stmt.ExecContext(ctx, pageName, r, c, cell); err != nil {
				if s.d.isUniqueViolation(err) {
					return fmt.Errorf("cell (%d,%d) of page %q: %w", r, c, pageName, ErrConflict)
				}
				return fmt.Errorf("failed to write cell (%d,%d): %w", r, c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	return nil
}
