package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"prioritygrid/internal/grid"
)

// documentStore keeps each page's grid as one JSON document in the page_data
// table, keyed by the unique page_name column.
type documentStore struct {
	db     *sql.DB
	d      dialect
	logger *zap.Logger
}

func newDocumentStore(db *sql.DB, d dialect, logger *zap.Logger) *documentStore {
	return &documentStore{db: db, d: d, logger: logger}
}

func (s *documentStore) Close() error {
	return s.db.Close()
}

// Load returns the stored grid for pageName. A never-seen page materializes
// its default grid and persists it; when two first reads race, the loser
// re-reads and returns the winner's record instead of surfacing the
// constraint violation. A stored empty grid loads as a fresh default without
// a write, matching the save-nothing-on-fallback behavior of the read path.
func (s *documentStore) Load(ctx context.Context, pageName string) (grid.Grid, error) {
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
	if err := s.insertDefault(ctx, pageName, def); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the auto-create race: someone else persisted the
			// page between our lookup and insert.
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

// Save overwrites the page's grid wholesale, creating the record when absent.
// The update-or-insert runs in one transaction; every failure path rolls back.
func (s *documentStore) Save(ctx context.Context, pageName string, g grid.Grid) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode grid: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		s.d.rebind(`UPDATE page_data SET data = ? WHERE page_name = ?`),
		payload, pageName)
	if err != nil {
		return fmt.Errorf("failed to update grid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		_, err := tx.ExecContext(ctx,
			s.d.rebind(`INSERT INTO page_data (page_name, data) VALUES (?, ?)`),
			pageName, payload)
		if err != nil {
			if s.d.isUniqueViolation(err) {
				return fmt.Errorf("page %q: %w", pageName, ErrConflict)
			}
			return fmt.Errorf("failed to insert grid: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	s.logger.Debug("grid saved",
		zap.String("page", pageName),
		zap.Int("rows", len(g)))
	return nil
}

// lookup fetches and decodes the stored grid. found is false when no record
// exists for the page.
func (s *documentStore) lookup(ctx context.Context, pageName string) (g grid.Grid, found bool, err error) {
	var raw []byte
	err = s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT data FROM page_data WHERE page_name = ?`),
		pageName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load grid: %w", err)
	}
	if len(raw) == 0 {
		return grid.Grid{}, true, nil
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, false, fmt.Errorf("corrupt grid for page %q: %w", pageName, err)
	}
	return g, true, nil
}

func (s *documentStore) insertDefault(ctx context.Context, pageName string, def grid.Grid) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode default grid: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.d.rebind(`INSERT INTO page_data (page_name, data) VALUES (?, ?)`),
		pageName, payload)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return fmt.Errorf("page %q: %w", pageName, ErrConflict)
		}
		return fmt.Errorf("failed to create default grid: %w", err)
	}
	return nil
}
