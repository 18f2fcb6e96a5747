package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/neuralfield/internal/config"
	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/banshee-data/neuralfield/internal/fsutil"
	"github.com/banshee-data/neuralfield/internal/rundb"
	"github.com/banshee-data/neuralfield/internal/store"
	"github.com/banshee-data/neuralfield/internal/timeutil"
	"github.com/banshee-data/neuralfield/internal/visual"
)

const (
	modeLearning = "learning"
	modeRecall   = "recall"
)

var errUnknownMode = errors.New("unknown mode")

type runOptions struct {
	Mode       string
	ConfigPath string
	StateDir   string
	DBPath     string
	PlotDir    string
	HTML       bool
}

type runResult struct {
	RunID     string
	Steps     int
	Snapshot  dnf.Snapshot
	StatePath string
	Plots     []string
}

// runModel loads the model file, gathers persisted inputs, runs the
// simulation to the end of the time grid, then persists, records and
// plots whatever the options ask for.
func runModel(ctx context.Context, o runOptions, clock timeutil.Clock) (*runResult, error) {
	if o.Mode != modeLearning && o.Mode != modeRecall {
		return nil, fmt.Errorf("%w %q (want %s or %s)", errUnknownMode, o.Mode, modeLearning, modeRecall)
	}
	path := o.ConfigPath
	if path == "" {
		path = filepath.Join(config.ConfigDir, o.Mode+".json")
	}
	cfg, err := config.LoadModelConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %s model from %s: %d fields, %d connections", o.Mode, path, len(cfg.Fields), len(cfg.Connections))

	st := store.New(o.StateDir, fsutil.OSFileSystem{}, clock)
	in, err := gatherInputs(cfg, st)
	if err != nil {
		return nil, err
	}

	sim, err := dnf.NewSimulatorFromConfig(cfg, in)
	if err != nil {
		return nil, err
	}

	res := &runResult{}
	var db *rundb.DB
	if o.DBPath != "" {
		db, err = rundb.OpenAndMigrate(o.DBPath, clock)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode model: %w", err)
		}
		run, err := db.StartRun(o.Mode, cfgJSON)
		if err != nil {
			return nil, err
		}
		res.RunID = run.ID
	}

	runErr := sim.RunContext(ctx)
	res.Steps = sim.Next()
	res.Snapshot = sim.Snapshot()
	if db != nil {
		// Partial runs are still recorded so an interrupted run leaves a trace.
		if err := db.RecordSnapshot(res.RunID, res.Snapshot); err != nil {
			return nil, err
		}
		if err := db.FinishRun(res.RunID, res.Steps); err != nil {
			return nil, err
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	if err := persist(cfg, st, res); err != nil {
		return nil, err
	}

	if o.PlotDir != "" {
		files, err := writePlots(res.Snapshot, plotCenters(cfg, in), o.PlotDir, o.HTML)
		if err != nil {
			return nil, err
		}
		res.Plots = files
	}
	return res, nil
}

// gatherInputs loads the persisted stimulus list when the monitor wants it
// and the latest final state for every seed_from.
func gatherInputs(cfg *config.ModelConfig, st *store.Store) (dnf.BuildInputs, error) {
	in := dnf.BuildInputs{Seeds: map[string][]float64{}}
	if cfg.Monitor != nil && cfg.Monitor.PositionsFromParams {
		params, err := st.LoadStimuli()
		if err != nil {
			return in, fmt.Errorf("monitor positions: %w (run learning mode first)", err)
		}
		in.Params = params
		log.Printf("loaded %d stimuli from %s", len(params), st.Dir())
	}
	for _, fc := range cfg.Fields {
		if fc.SeedFrom == "" {
			continue
		}
		if _, ok := in.Seeds[fc.SeedFrom]; ok {
			continue
		}
		state, err := st.LoadLatestState(fc.SeedFrom)
		if err != nil {
			return in, fmt.Errorf("seed for %q: %w (run learning mode first)", fc.Name, err)
		}
		in.Seeds[fc.SeedFrom] = mat.Row(nil, 0, state)
	}
	return in, nil
}

func persist(cfg *config.ModelConfig, st *store.Store, res *runResult) error {
	p := cfg.Persist
	if p == nil {
		return nil
	}
	if p.FinalStateOf != "" {
		fs, ok := res.Snapshot.Field(p.FinalStateOf)
		if !ok {
			return fmt.Errorf("persist %q: %w", p.FinalStateOf, dnf.ErrUnknownField)
		}
		path, err := st.SaveFinalState(fs.FinalActivation(), fs.Name)
		if err != nil {
			return err
		}
		res.StatePath = path
	}
	if p.StimuliOf != "" {
		fc, ok := cfg.FindField(p.StimuliOf)
		if !ok {
			return fmt.Errorf("persist stimuli of %q: %w", p.StimuliOf, dnf.ErrUnknownField)
		}
		if err := st.SaveStimuli(dnf.StimuliFromConfig(fc.Stimuli)); err != nil {
			return err
		}
	}
	return nil
}

// plotCenters picks the positions whose time course is plotted: the loaded
// stimulus list in recall, otherwise the stimuli of the persisted field.
func plotCenters(cfg *config.ModelConfig, in dnf.BuildInputs) []float64 {
	if len(in.Params) > 0 {
		return dnf.Centers(in.Params)
	}
	if cfg.Persist != nil && cfg.Persist.StimuliOf != "" {
		if fc, ok := cfg.FindField(cfg.Persist.StimuliOf); ok {
			return dnf.Centers(dnf.StimuliFromConfig(fc.Stimuli))
		}
	}
	return nil
}

func writePlots(snap dnf.Snapshot, centers []float64, dir string, html bool) ([]string, error) {
	var files []string
	f, err := visual.FinalStates(snap, nil, dir)
	if err != nil {
		return nil, err
	}
	files = append(files, f)

	for _, fs := range snap.Fields {
		if len(centers) > 0 {
			f, err := visual.ActivityAtCenters(fs, centers, dir)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
		f, err := visual.HeatMap(fs, dir)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	if html {
		f, err := visual.WriteHTML(snap, centers, dir)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
