package dnf

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpatialGrid(t *testing.T) {
	t.Parallel()

	g, err := NewSpatialGrid(5, 0.1)
	require.NoError(t, err)
	require.Equal(t, 101, g.Len())
	assert.Equal(t, -5.0, g.X[0])
	assert.InDelta(t, 0.0, g.X[50], 1e-12)
	assert.InDelta(t, 5.0, g.X[100], 1e-12)

	again, err := NewSpatialGrid(5, 0.1)
	require.NoError(t, err)
	if diff := cmp.Diff(g, again); diff != "" {
		t.Errorf("grid construction not reproducible (-first +second):\n%s", diff)
	}
}

func TestNewTimeGrid(t *testing.T) {
	t.Parallel()

	g, err := NewTimeGrid(2, 0.1)
	require.NoError(t, err)
	require.Equal(t, 21, g.Len())
	assert.Equal(t, 0.0, g.T[0])
	assert.Equal(t, 0.5, g.T[5])
	assert.Equal(t, 1.0, g.T[10])

	big, err := NewTimeGrid(100, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 1001, big.Len())
}

func TestGridRejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		limit   float64
		step    float64
		spatial bool
	}{
		{"zero dx", 5, 0, true},
		{"negative dx", 5, -0.1, true},
		{"nan dx", 5, math.NaN(), true},
		{"x_lim below dx", 0.05, 0.1, true},
		{"zero dt", 2, 0, false},
		{"t_lim below dt", 0.01, 0.1, false},
		{"infinite dt", 2, math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.spatial {
				_, err = NewSpatialGrid(tt.limit, tt.step)
			} else {
				_, err = NewTimeGrid(tt.limit, tt.step)
			}
			if !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("err = %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestNearestSnapsAndBreaksTiesLow(t *testing.T) {
	t.Parallel()

	g, err := NewSpatialGrid(5, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 50, g.Nearest(0))
	assert.Equal(t, 50, g.Nearest(0.04))
	assert.Equal(t, 100, g.Nearest(100), "positions past the edge snap to it")
	assert.Equal(t, 0, g.Nearest(-100))

	coarse, err := NewSpatialGrid(1, 1)
	require.NoError(t, err)
	require.Equal(t, []float64{-1, 0, 1}, coarse.X)
	assert.Equal(t, 1, coarse.Nearest(0.5), "tie resolves to the lower index")
	assert.Equal(t, 0, coarse.Nearest(-0.5))
}
