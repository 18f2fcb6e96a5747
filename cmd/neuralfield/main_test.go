package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/banshee-data/neuralfield/internal/rundb"
	"github.com/banshee-data/neuralfield/internal/store"
	"github.com/banshee-data/neuralfield/internal/timeutil"
)

const learningModel = `{
  "grid": { "x_lim": 5, "t_lim": 5, "dx": 0.1, "dt": 0.1 },
  "fields": [
    {
      "name": "Sequence Memory",
      "kind": "sequence_memory",
      "kernel": { "shape": "oscillatory", "a": 1, "b": 0.7, "alpha": 0.9 },
      "theta": 1.5,
      "tau_h": 20,
      "stimuli": [
        { "center": -2, "amplitude": 3, "width": 1.5, "active_start": 0.5, "active_end": 1.5 },
        { "center": 2, "amplitude": 3, "width": 1.5, "active_start": 2, "active_end": 3 }
      ]
    }
  ],
  "persist": { "final_state_of": "Sequence Memory", "stimuli_of": "Sequence Memory" }
}`

const recallModel = `{
  "grid": { "x_lim": 5, "t_lim": 5, "dx": 0.1, "dt": 0.1 },
  "fields": [
    {
      "name": "Action Onset",
      "kind": "decision",
      "kernel": { "shape": "oscillatory", "a": 1.5, "b": 0.9, "alpha": 0 },
      "theta": 1,
      "tau_h": 20,
      "seed_from": "Sequence Memory"
    },
    {
      "name": "Robot feedback",
      "kernel": { "shape": "oscillatory", "a": 1.5, "b": 0.9, "alpha": 0 },
      "theta": 1
    }
  ],
  "monitor": { "field": "Action Onset", "positions_from_params": true },
  "feedback": { "field": "Robot feedback", "delays": [3] }
}`

func writeModel(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLearningThenRecall(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	stateDir := filepath.Join(dir, "state")
	dbPath := filepath.Join(dir, "runs.db")

	learn, err := runModel(context.Background(), runOptions{
		Mode:       modeLearning,
		ConfigPath: writeModel(t, dir, "learning.json", learningModel),
		StateDir:   stateDir,
		DBPath:     dbPath,
		PlotDir:    filepath.Join(dir, "plots"),
		HTML:       true,
	}, clock)
	require.NoError(t, err)
	assert.Equal(t, 51, learn.Steps)
	assert.Equal(t, filepath.Join(stateDir, "sequence_memory_20240501_090000.state.gz"), learn.StatePath)
	assert.FileExists(t, filepath.Join(stateDir, store.ParamsFile))
	assert.Len(t, learn.Plots, 4, "final states, centers, heat map, html")
	for _, p := range learn.Plots {
		assert.FileExists(t, p)
	}

	st := store.New(stateDir, nil, clock)
	stimuli, err := st.LoadStimuli()
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 2}, dnf.Centers(stimuli))

	clock.Advance(time.Minute)
	recall, err := runModel(context.Background(), runOptions{
		Mode:       modeRecall,
		ConfigPath: writeModel(t, dir, "recall.json", recallModel),
		StateDir:   stateDir,
		DBPath:     dbPath,
	}, clock)
	require.NoError(t, err)
	assert.Equal(t, 51, recall.Steps)
	assert.Empty(t, recall.StatePath)
	assert.Empty(t, recall.Plots)

	db, err := rundb.Open(dbPath, clock)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, recall.RunID, runs[0].ID)
	assert.Equal(t, modeRecall, runs[0].Mode)
	assert.Equal(t, modeLearning, runs[1].Mode)
	require.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, 51, runs[0].Steps)

	final, err := db.FinalState(learn.RunID, "Sequence Memory")
	require.NoError(t, err)
	fs, ok := learn.Snapshot.Field("Sequence Memory")
	require.True(t, ok)
	assert.Equal(t, fs.FinalActivation(), final)

	// Action Onset starts from the learned memory.
	ao, ok := recall.Snapshot.Field("Action Onset")
	require.True(t, ok)
	assert.Len(t, ao.Activation, len(final))
}

func TestRecallWithoutLearningFails(t *testing.T) {
	dir := t.TempDir()
	_, err := runModel(context.Background(), runOptions{
		Mode:       modeRecall,
		ConfigPath: writeModel(t, dir, "recall.json", recallModel),
		StateDir:   filepath.Join(dir, "state"),
	}, timeutil.RealClock{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunModelRejectsUnknownMode(t *testing.T) {
	_, err := runModel(context.Background(), runOptions{Mode: "sleep"}, timeutil.RealClock{})
	assert.ErrorIs(t, err, errUnknownMode)
}

func TestRunModelCancelled(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runModel(ctx, runOptions{
		Mode:       modeLearning,
		ConfigPath: writeModel(t, dir, "learning.json", learningModel),
		StateDir:   filepath.Join(dir, "state"),
		DBPath:     dbPath,
	}, timeutil.RealClock{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "state", store.ParamsFile))

	// The interrupted run is still recorded.
	db, err := rundb.Open(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].Steps)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	var out bytes.Buffer
	require.NoError(t, migrateCommand(&out, dbPath, "status"))
	assert.Equal(t, "schema version 0 (dirty=false)\n", out.String())

	out.Reset()
	require.NoError(t, migrateCommand(&out, dbPath, "up"))
	assert.Equal(t, "schema version 2 (dirty=false)\n", out.String())

	out.Reset()
	require.NoError(t, migrateCommand(&out, dbPath, "down"))
	assert.Equal(t, "schema version 1 (dirty=false)\n", out.String())

	assert.Error(t, migrateCommand(&out, dbPath, "sideways"))
}

func TestListRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	db, err := rundb.OpenAndMigrate(dbPath, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listRuns(&out, dbPath, 5))
	assert.Equal(t, "no runs recorded\n", out.String())

	run, err := db.StartRun(modeLearning, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out.Reset()
	require.NoError(t, listRuns(&out, dbPath, 5))
	assert.Contains(t, out.String(), run.ID)
	assert.Contains(t, out.String(), "running")
}

func TestConfigureLogging(t *testing.T) {
	var buf bytes.Buffer
	configureLogging(&buf, false, false)
	dnf.Diagf("hidden")
	dnf.Opsf("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	configureLogging(&buf, true, false)
	dnf.Diagf("diag on")
	assert.Contains(t, buf.String(), "diag on")
	dnf.SetLogWriters(dnf.LogWriters{})
}
