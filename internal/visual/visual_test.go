package visual

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/neuralfield/internal/dnf"
)

func runSnapshot(t *testing.T, steps bool) dnf.Snapshot {
	t.Helper()
	space, err := dnf.NewSpatialGrid(5, 0.1)
	require.NoError(t, err)
	tg, err := dnf.NewTimeGrid(2, 0.1)
	require.NoError(t, err)

	f, err := dnf.NewField(dnf.FieldConfig{
		Name:      "Sequence Memory",
		Kind:      dnf.KindPlain,
		Kernel:    dnf.OscillatoryKernel{A: 1, B: 0.7, Alpha: 0.9},
		Threshold: 1.5,
		Stimuli:   []dnf.Stimulus{{Center: 0, Amplitude: 3, Width: 1.5, Start: 0, End: 1}},
	}, space, tg)
	require.NoError(t, err)

	sim := dnf.NewSimulator()
	_, err = sim.Add(f)
	require.NoError(t, err)
	if steps {
		require.NoError(t, sim.Run())
	}
	return sim.Snapshot()
}

func requirePNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestFinalStates(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)
	dir := filepath.Join(t.TempDir(), "plots")

	path, err := FinalStates(snap, nil, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "final_states.png"), path)
	requirePNG(t, path)

	_, err = FinalStates(snap, []string{"Working Memory"}, dir)
	assert.ErrorIs(t, err, dnf.ErrUnknownField)

	_, err = FinalStates(dnf.Snapshot{}, nil, dir)
	assert.Error(t, err)
}

func TestActivityAtCenters(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)
	fs, ok := snap.Field("Sequence Memory")
	require.True(t, ok)
	dir := t.TempDir()

	path, err := ActivityAtCenters(fs, []float64{0, 2.5}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sequence_memory_centers.png"), path)
	requirePNG(t, path)

	_, err = ActivityAtCenters(fs, nil, dir)
	assert.Error(t, err)
}

func TestHeatMap(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)
	dir := t.TempDir()

	path, err := HeatMap(snap.Fields[0], dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sequence_memory_heatmap.png"), path)
	requirePNG(t, path)
}

func TestPlotsRequireHistory(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, false)
	dir := t.TempDir()

	_, err := HeatMap(snap.Fields[0], dir)
	assert.ErrorIs(t, err, ErrNoHistory)
	_, err = ActivityAtCenters(snap.Fields[0], []float64{0}, dir)
	assert.ErrorIs(t, err, ErrNoHistory)

	// Final states fall back to the initial activation.
	_, err = FinalStates(snap, nil, dir)
	assert.NoError(t, err)
}

func TestHistoryGridAdapter(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)
	fs := snap.Fields[0]
	g := historyGrid{fs: fs}

	c, r := g.Dims()
	assert.Equal(t, len(fs.X), c)
	assert.Equal(t, fs.Steps, r)
	assert.Equal(t, fs.X[3], g.X(3))
	assert.Equal(t, fs.T[4], g.Y(4))
	assert.Equal(t, fs.HistoryActivation.At(4, 3), g.Z(3, 4))
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(snap, []float64{0}, &buf))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Sequence Memory")
	assert.Contains(t, html, "Neural field run")

	assert.Error(t, RenderHTML(dnf.Snapshot{}, nil, &buf))
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()
	snap := runSnapshot(t, true)
	dir := t.TempDir()

	path, err := WriteHTML(snap, nil, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "index.html"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStride(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, stride(1))
	assert.Equal(t, 1, stride(maxCells))
	assert.Equal(t, 2, stride(maxCells+1))
	assert.Equal(t, 9, stride(1601))
}
