package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
)

// ConfigDir is the repository-relative directory holding model presets.
const ConfigDir = "config"

// ModelConfig is the root of a model description: the shared grids, the
// fields, their connections and the monitor/feedback roles.
type ModelConfig struct {
	Grid        GridConfig         `json:"grid"`
	Fields      []FieldConfig      `json:"fields"`
	Connections []ConnectionConfig `json:"connections,omitempty"`
	Monitor     *MonitorConfig     `json:"monitor,omitempty"`
	Feedback    *FeedbackConfig    `json:"feedback,omitempty"`
	Persist     *PersistConfig     `json:"persist,omitempty"`
}

// GridConfig holds the spatial and temporal bounds and steps.
type GridConfig struct {
	XLim float64 `json:"x_lim"`
	TLim float64 `json:"t_lim"`
	DX   float64 `json:"dx"`
	DT   float64 `json:"dt"`
}

// KernelConfig selects a kernel shape and its parameters. Only the
// parameters of the chosen shape are read.
type KernelConfig struct {
	Shape string `json:"shape"` // oscillatory | gaussian | mexican_hat

	// oscillatory
	A     *float64 `json:"a,omitempty"`
	B     *float64 `json:"b,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`

	// gaussian
	Amplitude *float64 `json:"amplitude,omitempty"`
	Sigma     *float64 `json:"sigma,omitempty"`

	// mexican_hat
	AmpExc    *float64 `json:"amp_exc,omitempty"`
	SigmaExc  *float64 `json:"sigma_exc,omitempty"`
	AmpInh    *float64 `json:"amp_inh,omitempty"`
	SigmaInh  *float64 `json:"sigma_inh,omitempty"`
	GlobalInh *float64 `json:"global_inh,omitempty"`
}

// StimulusConfig is one time-windowed Gaussian input.
type StimulusConfig struct {
	Center      float64 `json:"center"`
	Amplitude   float64 `json:"amplitude"`
	Width       float64 `json:"width"`
	ActiveStart float64 `json:"active_start"`
	ActiveEnd   float64 `json:"active_end"`
}

// FieldConfig describes one field.
type FieldConfig struct {
	Name     string           `json:"name"`
	Kind     string           `json:"kind,omitempty"` // plain | sequence_memory | decision
	Kernel   KernelConfig     `json:"kernel"`
	Theta    *float64         `json:"theta,omitempty"`
	TauH     *float64         `json:"tau_h,omitempty"`
	H0       *float64         `json:"h_0,omitempty"`
	Stimuli  []StimulusConfig `json:"stimuli,omitempty"`
	SeedFrom string           `json:"seed_from,omitempty"`
}

// ConnectionConfig couples Source into Target.
type ConnectionConfig struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Weight    float64  `json:"weight"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// MonitorConfig assigns the threshold-crossing monitor.
type MonitorConfig struct {
	Field     string    `json:"field"`
	Positions []float64 `json:"positions,omitempty"`
	// PositionsFromParams appends the centers of the persisted stimulus list.
	PositionsFromParams bool `json:"positions_from_params,omitempty"`
}

// FeedbackConfig assigns the delayed-feedback receiver.
type FeedbackConfig struct {
	Field      string   `json:"field"`
	Delays     []int    `json:"delays"`
	Amplitude  *float64 `json:"amplitude,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Assignment string   `json:"assignment,omitempty"` // sequential | per_batch
}

// PersistConfig names what a run writes for later runs.
type PersistConfig struct {
	FinalStateOf string `json:"final_state_of,omitempty"`
	StimuliOf    string `json:"stimuli_of,omitempty"`
}

// LoadModelConfig loads a ModelConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadModelConfig(path string) (*ModelConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * datasize.MB
	if size := datasize.ByteSize(fileInfo.Size()); size > maxFileSize {
		return nil, fmt.Errorf("config file too large: %s (max %s)", size.HumanReadable(), maxFileSize.HumanReadable())
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseModelConfig(data)
}

// ParseModelConfig decodes and validates a JSON model description.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	cfg := &ModelConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadModelConfig loads a preset such as "learning" from ConfigDir.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadModelConfig(name string) *ModelConfig {
	rel := filepath.Join(ConfigDir, name+".json")
	candidates := []string{
		rel,
		filepath.Join("..", "..", rel),       // from internal/<pkg>/
		filepath.Join("..", "..", "..", rel), // deeper packages
	}
	var lastErr error
	for _, path := range candidates {
		cfg, err := LoadModelConfig(path)
		if err == nil {
			return cfg
		}
		lastErr = err
	}
	panic(fmt.Sprintf("cannot load %s: %v - run tests from repository root", rel, lastErr))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate checks that the configuration is structurally sound. Grid
// validity is re-checked when the grids are built.
func (c *ModelConfig) Validate() error {
	if !finite(c.Grid.DX) || c.Grid.DX <= 0 {
		return fmt.Errorf("grid.dx must be positive, got %v", c.Grid.DX)
	}
	if !finite(c.Grid.DT) || c.Grid.DT <= 0 {
		return fmt.Errorf("grid.dt must be positive, got %v", c.Grid.DT)
	}
	if c.Grid.XLim < c.Grid.DX {
		return fmt.Errorf("grid.x_lim (%v) must be at least dx (%v)", c.Grid.XLim, c.Grid.DX)
	}
	if c.Grid.TLim < c.Grid.DT {
		return fmt.Errorf("grid.t_lim (%v) must be at least dt (%v)", c.Grid.TLim, c.Grid.DT)
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}

	names := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("fields[%d]: name is required", i)
		}
		if names[f.Name] {
			return fmt.Errorf("fields[%d]: duplicate name %q", i, f.Name)
		}
		names[f.Name] = true
		if err := f.Kernel.validate(); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.TauH != nil && *f.TauH <= 0 {
			return fmt.Errorf("field %q: tau_h must be positive, got %v", f.Name, *f.TauH)
		}
		for k, s := range f.Stimuli {
			if s.Width <= 0 {
				return fmt.Errorf("field %q: stimuli[%d]: width must be positive, got %v", f.Name, k, s.Width)
			}
			if s.ActiveEnd < s.ActiveStart {
				return fmt.Errorf("field %q: stimuli[%d]: active_end %v before active_start %v", f.Name, k, s.ActiveEnd, s.ActiveStart)
			}
		}
	}

	for i, cn := range c.Connections {
		if !names[cn.Source] {
			return fmt.Errorf("connections[%d]: unknown source %q", i, cn.Source)
		}
		if !names[cn.Target] {
			return fmt.Errorf("connections[%d]: unknown target %q", i, cn.Target)
		}
	}

	if c.Monitor != nil && !names[c.Monitor.Field] {
		return fmt.Errorf("monitor: unknown field %q", c.Monitor.Field)
	}
	if c.Feedback != nil {
		if !names[c.Feedback.Field] {
			return fmt.Errorf("feedback: unknown field %q", c.Feedback.Field)
		}
		for k, d := range c.Feedback.Delays {
			if d < 0 {
				return fmt.Errorf("feedback.delays[%d] must be non-negative, got %d", k, d)
			}
		}
		if c.Feedback.Width != nil && *c.Feedback.Width <= 0 {
			return fmt.Errorf("feedback.width must be positive, got %v", *c.Feedback.Width)
		}
		switch c.Feedback.Assignment {
		case "", "sequential", "per_batch":
		default:
			return fmt.Errorf("feedback.assignment must be sequential or per_batch, got %q", c.Feedback.Assignment)
		}
	}
	if c.Persist != nil {
		if p := c.Persist.FinalStateOf; p != "" && !names[p] {
			return fmt.Errorf("persist.final_state_of: unknown field %q", p)
		}
		if p := c.Persist.StimuliOf; p != "" && !names[p] {
			return fmt.Errorf("persist.stimuli_of: unknown field %q", p)
		}
	}
	return nil
}

func (k KernelConfig) validate() error {
	switch k.Shape {
	case "oscillatory", "":
	case "gaussian":
		if k.Sigma == nil || *k.Sigma <= 0 {
			return fmt.Errorf("gaussian kernel requires positive sigma")
		}
	case "mexican_hat":
		if k.SigmaExc == nil || *k.SigmaExc <= 0 || k.SigmaInh == nil || *k.SigmaInh <= 0 {
			return fmt.Errorf("mexican_hat kernel requires positive sigma_exc and sigma_inh")
		}
	default:
		return fmt.Errorf("unknown kernel shape %q", k.Shape)
	}
	return nil
}

func getOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetTheta returns the output threshold or the default (0).
func (f *FieldConfig) GetTheta() float64 { return getOr(f.Theta, 0) }

// GetTauH returns the habituation time constant or the default (100).
func (f *FieldConfig) GetTauH() float64 { return getOr(f.TauH, 100) }

// GetH0 returns the initial offset or the default (0).
func (f *FieldConfig) GetH0() float64 { return getOr(f.H0, 0) }

// GetA returns the oscillatory amplitude or the default (1).
func (k *KernelConfig) GetA() float64 { return getOr(k.A, 1) }

// GetB returns the oscillatory decay rate or the default (0.7).
func (k *KernelConfig) GetB() float64 { return getOr(k.B, 0.7) }

// GetAlpha returns the oscillatory frequency or the default (0.9).
func (k *KernelConfig) GetAlpha() float64 { return getOr(k.Alpha, 0.9) }

// GetAmplitude returns the gaussian amplitude or the default (1).
func (k *KernelConfig) GetAmplitude() float64 { return getOr(k.Amplitude, 1) }

// GetSigma returns the gaussian width or the default (1).
func (k *KernelConfig) GetSigma() float64 { return getOr(k.Sigma, 1) }

// GetAmpExc returns the excitatory amplitude or the default (1).
func (k *KernelConfig) GetAmpExc() float64 { return getOr(k.AmpExc, 1) }

// GetSigmaExc returns the excitatory width or the default (1).
func (k *KernelConfig) GetSigmaExc() float64 { return getOr(k.SigmaExc, 1) }

// GetAmpInh returns the inhibitory amplitude or the default (0.5).
func (k *KernelConfig) GetAmpInh() float64 { return getOr(k.AmpInh, 0.5) }

// GetSigmaInh returns the inhibitory width or the default (2).
func (k *KernelConfig) GetSigmaInh() float64 { return getOr(k.SigmaInh, 2) }

// GetGlobalInh returns the global inhibition or the default (0).
func (k *KernelConfig) GetGlobalInh() float64 { return getOr(k.GlobalInh, 0) }

// GetAmplitude returns the feedback bump amplitude or the default (3).
func (f *FeedbackConfig) GetAmplitude() float64 { return getOr(f.Amplitude, 3) }

// GetWidth returns the feedback bump width or the default (1.5).
func (f *FeedbackConfig) GetWidth() float64 { return getOr(f.Width, 1.5) }

// FindField returns the named field description.
func (c *ModelConfig) FindField(name string) (*FieldConfig, bool) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}
