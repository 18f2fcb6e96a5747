package dnf

import (
	"fmt"

	"github.com/banshee-data/neuralfield/internal/config"
)

// BuildInputs carries values that come from persisted state rather than
// from the model file.
type BuildInputs struct {
	// Seeds maps a seed_from name to the initial activation it supplies.
	Seeds map[string][]float64
	// Params is the persisted stimulus list used for positions_from_params.
	Params []Stimulus
}

// KernelFromConfig converts a kernel description into a Kernel.
func KernelFromConfig(k config.KernelConfig) (Kernel, error) {
	switch k.Shape {
	case "", "oscillatory":
		return OscillatoryKernel{A: k.GetA(), B: k.GetB(), Alpha: k.GetAlpha()}, nil
	case "gaussian":
		return GaussianKernel{Amplitude: k.GetAmplitude(), Sigma: k.GetSigma()}, nil
	case "mexican_hat":
		return MexicanHatKernel{
			AmpExc: k.GetAmpExc(), SigmaExc: k.GetSigmaExc(),
			AmpInh: k.GetAmpInh(), SigmaInh: k.GetSigmaInh(),
			GlobalInh: k.GetGlobalInh(),
		}, nil
	}
	return nil, fmt.Errorf("unknown kernel shape %q", k.Shape)
}

// StimuliFromConfig converts stimulus descriptions in list order.
func StimuliFromConfig(in []config.StimulusConfig) []Stimulus {
	out := make([]Stimulus, len(in))
	for i, s := range in {
		out[i] = Stimulus{Center: s.Center, Amplitude: s.Amplitude, Width: s.Width, Start: s.ActiveStart, End: s.ActiveEnd}
	}
	return out
}

// NewSimulatorFromConfig builds the grids, fields, connections and roles a
// model file describes. Fields are registered in file order.
func NewSimulatorFromConfig(cfg *config.ModelConfig, in BuildInputs) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	space, err := NewSpatialGrid(cfg.Grid.XLim, cfg.Grid.DX)
	if err != nil {
		return nil, err
	}
	tg, err := NewTimeGrid(cfg.Grid.TLim, cfg.Grid.DT)
	if err != nil {
		return nil, err
	}
	Diagf("grid: x_lim=%g dx=%g nx=%d t_lim=%g dt=%g nt=%d",
		space.XLim, space.DX, space.Len(), tg.TLim, tg.DT, tg.Len())

	sim := NewSimulator()
	for i := range cfg.Fields {
		fc := &cfg.Fields[i]
		kind, err := ParseKind(fc.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fc.Name, err)
		}
		kernel, err := KernelFromConfig(fc.Kernel)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fc.Name, err)
		}
		var seed []float64
		if fc.SeedFrom != "" {
			var ok bool
			if seed, ok = in.Seeds[fc.SeedFrom]; !ok {
				return nil, fmt.Errorf("field %q: no seed state for %q", fc.Name, fc.SeedFrom)
			}
		}
		f, err := NewField(FieldConfig{
			Name:      fc.Name,
			Kind:      kind,
			Kernel:    kernel,
			Threshold: fc.GetTheta(),
			TauH:      fc.GetTauH(),
			H0:        fc.GetH0(),
			Stimuli:   StimuliFromConfig(fc.Stimuli),
			Seed:      seed,
		}, space, tg)
		if err != nil {
			return nil, err
		}
		if _, err := sim.Add(f); err != nil {
			return nil, err
		}
	}

	for _, cn := range cfg.Connections {
		target, _ := sim.Lookup(cn.Target)
		source, _ := sim.Lookup(cn.Source)
		if err := sim.Connect(target, source, cn.Weight, cn.Threshold); err != nil {
			return nil, err
		}
	}

	if m := cfg.Monitor; m != nil {
		positions := append([]float64(nil), m.Positions...)
		if m.PositionsFromParams {
			positions = append(positions, Centers(in.Params)...)
		}
		id, _ := sim.Lookup(m.Field)
		sim.Field(id).EnableMonitor(positions)
		if err := sim.SetMonitor(id); err != nil {
			return nil, err
		}
		Diagf("monitor: field=%q positions=%v", m.Field, positions)
	}

	if fb := cfg.Feedback; fb != nil {
		assignment, err := ParseDelayAssignment(fb.Assignment)
		if err != nil {
			return nil, err
		}
		id, _ := sim.Lookup(fb.Field)
		if _, err := sim.Field(id).EnableFeedback(FeedbackConfig{
			Delays:     fb.Delays,
			Amplitude:  fb.GetAmplitude(),
			Width:      fb.GetWidth(),
			Assignment: assignment,
		}); err != nil {
			return nil, err
		}
		if err := sim.SetFeedback(id); err != nil {
			return nil, err
		}
		Diagf("feedback: field=%q delays=%v assignment=%s", fb.Field, fb.Delays, assignment)
	}
	return sim, nil
}
