package grid

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	tests := []struct {
		page string
		rows int
	}{
		{"commercial", 4},
		{"industrial", 3},
		{"logistics", 6},
		{"unknownpage", 3},
		{"", 3},
	}

	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			g := Default(tt.page)
			require.Len(t, g, tt.rows)
			for _, row := range g {
				require.Len(t, row, DefaultColumns)
				for _, cell := range row {
					assert.Equal(t, "", cell)
				}
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("valid grid", func(t *testing.T) {
		g, err := Decode(json.RawMessage(`[["A","B"],["C","D"]]`))
		require.NoError(t, err)
		want := Grid{{"A", "B"}, {"C", "D"}}
		if diff := cmp.Diff(want, g); diff != "" {
			t.Errorf("grid mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty grid", func(t *testing.T) {
		g, err := Decode(json.RawMessage(`[]`))
		require.NoError(t, err)
		assert.True(t, g.Empty())
	})

	t.Run("ragged rows allowed", func(t *testing.T) {
		g, err := Decode(json.RawMessage(`[["A"],["B","C","D"]]`))
		require.NoError(t, err)
		require.Len(t, g, 2)
		assert.Len(t, g[0], 1)
		assert.Len(t, g[1], 3)
	})

	t.Run("empty row allowed", func(t *testing.T) {
		g, err := Decode(json.RawMessage(`[[]]`))
		require.NoError(t, err)
		require.Len(t, g, 1)
		assert.Len(t, g[0], 0)
	})

	t.Run("not a list", func(t *testing.T) {
		_, err := Decode(json.RawMessage(`"not-a-list"`))
		assert.ErrorIs(t, err, ErrNotGrid)
	})

	t.Run("row not a list", func(t *testing.T) {
		_, err := Decode(json.RawMessage(`[["A"],"B"]`))
		assert.ErrorIs(t, err, ErrNotGrid)
	})

	t.Run("null payload", func(t *testing.T) {
		_, err := Decode(json.RawMessage(`null`))
		assert.ErrorIs(t, err, ErrNotGrid)
	})

	t.Run("null row", func(t *testing.T) {
		_, err := Decode(json.RawMessage(`[null]`))
		assert.ErrorIs(t, err, ErrNotGrid)
	})

	t.Run("object payload", func(t *testing.T) {
		_, err := Decode(json.RawMessage(`{"a":1}`))
		assert.ErrorIs(t, err, ErrNotGrid)
	})
}
