// Package rundb records simulation runs in a sqlite database: one row per
// run, the final activation of every field, and every crossing and firing.
// The schema is managed by embedded golang-migrate migrations.
package rundb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/banshee-data/neuralfield/internal/timeutil"
	"github.com/banshee-data/neuralfield/internal/version"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// Run is one simulation run.
type Run struct {
	ID         string
	Mode       string
	ConfigJSON string
	Version    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Steps      int
}

// Open opens (creating if needed) the database at path without touching the
// schema. Use MigrateUp, or OpenAndMigrate, before recording runs.
func Open(path string, clock timeutil.Clock) (*DB, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open run database %s: %w", path, err)
	}
	return &DB{DB: db, clock: clock}, nil
}

// OpenAndMigrate opens the database and applies all pending migrations.
func OpenAndMigrate(path string, clock timeutil.Clock) (*DB, error) {
	db, err := Open(path, clock)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[rundb] initialized run database schema: %s", path)
	return db, nil
}

// StartRun inserts a new run and returns it with a fresh id.
func (db *DB) StartRun(mode string, configJSON []byte) (*Run, error) {
	cfg := string(configJSON)
	if cfg == "" {
		cfg = "{}"
	}
	run := &Run{
		ID:         uuid.New().String(),
		Mode:       mode,
		ConfigJSON: cfg,
		Version:    version.Version,
		StartedAt:  db.clock.Now(),
	}
	_, err := db.Exec(`INSERT INTO sim_runs (run_id, mode, config_json, app_version, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.ConfigJSON, run.Version, run.StartedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the run's completion time and step count.
func (db *DB) FinishRun(runID string, steps int) error {
	res, err := db.Exec(`UPDATE sim_runs SET finished_unix_nanos = ?, steps = ? WHERE run_id = ?`,
		db.clock.Now().UnixNano(), steps, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordSnapshot stores every field's final activation and the run's
// crossing and firing logs in one transaction.
func (db *DB) RecordSnapshot(runID string, snap dnf.Snapshot) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, f := range snap.Fields {
		final := f.FinalActivation()
		values, err := json.Marshal(final)
		if err != nil {
			return fmt.Errorf("failed to encode field %q: %w", f.Name, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO sim_field_states
			(run_id, field_name, kind, threshold, nx, steps, values_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, f.Name, f.Kind.String(), f.Threshold, len(final), f.Steps, string(values)); err != nil {
			return fmt.Errorf("failed to insert field state %q: %w", f.Name, err)
		}
	}
	for i, c := range snap.Crossings {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO sim_crossings (run_id, seq, position, time_index) VALUES (?, ?, ?, ?)`,
			runID, i, c.Position, c.Index); err != nil {
			return fmt.Errorf("failed to insert crossing: %w", err)
		}
	}
	for i, f := range snap.Firings {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO sim_firings
			(run_id, seq, position, crossing_index, firing_index, delay_steps) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, f.Position, f.CrossingIndex, f.FiringIndex, f.Delay); err != nil {
			return fmt.Errorf("failed to insert firing: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[rundb] recorded run %s: fields=%d crossings=%d firings=%d",
		runID, len(snap.Fields), len(snap.Crossings), len(snap.Firings))
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Mode, &r.ConfigJSON, &r.Version, &started, &finished, &r.Steps); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	return &r, nil
}

const runColumns = `run_id, mode, config_json, app_version, started_unix_nanos, finished_unix_nanos, steps`

// GetRun returns the run with the given id.
func (db *DB) GetRun(runID string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM sim_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return r, err
}

// ListRuns returns up to limit runs, most recent first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM sim_runs ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// FinalState returns the recorded final activation of one field.
func (db *DB) FinalState(runID, field string) ([]float64, error) {
	var raw string
	err := db.QueryRow(`SELECT values_json FROM sim_field_states WHERE run_id = ? AND field_name = ?`,
		runID, field).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("field %q of run %s: %w", field, runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	var values []float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode field %q: %w", field, err)
	}
	return values, nil
}

// Crossings returns the run's crossings in detection order.
func (db *DB) Crossings(runID string) ([]dnf.Crossing, error) {
	rows, err := db.Query(`SELECT position, time_index FROM sim_crossings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dnf.Crossing
	for rows.Next() {
		var c dnf.Crossing
		if err := rows.Scan(&c.Position, &c.Index); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Firings returns the run's delivered feedback events in firing order.
func (db *DB) Firings(runID string) ([]dnf.Firing, error) {
	rows, err := db.Query(`SELECT position, crossing_index, firing_index, delay_steps
		FROM sim_firings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dnf.Firing
	for rows.Next() {
		var f dnf.Firing
		if err := rows.Scan(&f.Position, &f.CrossingIndex, &f.FiringIndex, &f.Delay); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
