// Package grid defines the 2D grid model stored per page.
// A grid is a sequence of rows of string cells. Rows may have differing
// lengths; nothing enforces rectangularity.
package grid

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Grid is a page's 2D array of text cells.
type Grid [][]string

// ErrNotGrid is returned when a payload is not shaped as a list of lists.
var ErrNotGrid = errors.New("data must be a 2D list")

// DefaultColumns is the column count of every default grid (Finance through
// Security on the frontend).
const DefaultColumns = 9

// defaultRows maps known page names to their default row counts. Unknown
// pages fall back to fallbackRows.
var defaultRows = map[string]int{
	"commercial": 4,
	"industrial": 3,
	"logistics":  6,
}

const fallbackRows = 3

// Default builds the all-empty default grid for a page.
func Default(pageName string) Grid {
	rows, ok := defaultRows[pageName]
	if !ok {
		rows = fallbackRows
	}
	g := make(Grid, rows)
	for i := range g {
		g[i] = make([]string, DefaultColumns)
	}
	return g
}

// Empty reports whether the grid has no rows. An empty stored grid is
// indistinguishable from an absent one and loads as the default.
func (g Grid) Empty() bool {
	return len(g) == 0
}

// Decode parses a raw JSON payload into a Grid, enforcing the list-of-lists
// shape. The element check mirrors the save contract: the payload must be a
// JSON array and every element must itself be an array of string cells.
func Decode(raw json.RawMessage) (Grid, error) {
	if isJSONNull(raw) {
		return nil, ErrNotGrid
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, ErrNotGrid
	}
	g := make(Grid, 0, len(rows))
	for _, row := range rows {
		if isJSONNull(row) {
			return nil, ErrNotGrid
		}
		var cells []string
		if err := json.Unmarshal(row, &cells); err != nil {
			return nil, ErrNotGrid
		}
		if cells == nil {
			cells = []string{}
		}
		g = append(g, cells)
	}
	return g, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
