package dnf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStimulusWindowInclusive(t *testing.T) {
	t.Parallel()

	s := Stimulus{Center: 0, Amplitude: 3, Width: 1.5, Start: 10, End: 15}
	x := []float64{-1, 0, 1}

	tests := []struct {
		t      float64
		active bool
	}{
		{9.999, false},
		{10, true},
		{12.5, true},
		{15, true},
		{15.001, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.active, s.Active(tt.t), "Active(%v)", tt.t)

		dst := make([]float64, len(x))
		s.AddTo(dst, x, tt.t)
		if tt.active {
			assert.Equal(t, 3.0, dst[1], "center value at t=%v", tt.t)
			assert.Greater(t, dst[0], 0.0)
		} else {
			assert.Equal(t, []float64{0, 0, 0}, dst, "input at t=%v", tt.t)
		}
	}
}

func TestExternalInputSumsActiveStimuli(t *testing.T) {
	t.Parallel()

	f := newTestField(t, FieldConfig{Name: "ext", Threshold: 10, Stimuli: []Stimulus{
		{Center: 0, Amplitude: 3, Width: 1.5, Start: 0.5, End: 1.0},
		{Center: 0, Amplitude: 1, Width: 1.5, Start: 0.8, End: 1.2},
		{Center: -3, Amplitude: 2, Width: 0.5, Start: 1.2, End: 2.0},
	}})
	center := f.Space.Nearest(0)

	assert.Equal(t, 0.0, f.ExternalInput(0.4)[center])
	assert.InDelta(t, 3.0, f.ExternalInput(0.5)[center], 1e-12)
	assert.InDelta(t, 4.0, f.ExternalInput(0.9)[center], 1e-12)
	assert.InDelta(t, 1.0, f.ExternalInput(1.1)[center], 1e-12)

	at13 := f.ExternalInput(1.3)
	assert.InDelta(t, 2.0, at13[f.Space.Nearest(-3)], 1e-9)
	require.Len(t, at13, f.Space.Len())
}

func TestCenters(t *testing.T) {
	t.Parallel()

	got := Centers([]Stimulus{{Center: 0}, {Center: 30}, {Center: -40}})
	assert.Equal(t, []float64{0, 30, -40}, got)
	assert.Empty(t, Centers(nil))
}
