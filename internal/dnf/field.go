package dnf

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrStepOrder is returned when a field is stepped out of sequence.
	ErrStepOrder = errors.New("field stepped out of order")
	// ErrUnknownField is returned when a connection or role names a field
	// that is not registered.
	ErrUnknownField = errors.New("unknown field")
)

// Kind selects a field's habituation dynamics.
type Kind int

const (
	// KindPlain keeps habituation constant at its initial offset.
	KindPlain Kind = iota
	// KindSequenceMemory accumulates habituation where the field is active.
	KindSequenceMemory
	// KindDecision accumulates habituation everywhere at a constant rate,
	// so that the field eventually commits.
	KindDecision
)

var kindNames = map[Kind]string{
	KindPlain:          "plain",
	KindSequenceMemory: "sequence_memory",
	KindDecision:       "decision",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind. The empty string is plain.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindPlain, nil
	}
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return KindPlain, fmt.Errorf("unknown field kind %q", s)
}

// FieldConfig holds the construction parameters of a Field.
type FieldConfig struct {
	Name      string
	Kind      Kind
	Kernel    Kernel
	Threshold float64
	// TauH is the habituation time constant; ignored for KindPlain.
	TauH float64
	// H0 is the initial offset of both activation and habituation.
	H0      float64
	Stimuli []Stimulus
	// Seed, when set, replaces the initial activation. Its length must be Nx.
	Seed []float64
}

// Field is a one-dimensional activation distribution u(x) with its
// habituation trace h(x), full input/activation history and incoming
// connections. It is mutated once per timestep by Step.
type Field struct {
	Name      string
	Kind      Kind
	Space     SpatialGrid
	Time      TimeGrid
	Threshold float64
	TauH      float64
	H0        float64

	stimuli     []Stimulus
	connections []Connection
	conv        *convolver

	activation  []float64
	habituation []float64

	historyActivation *mat.Dense
	historyExternal   *mat.Dense
	historyInternal   *mat.Dense
	next              int

	// per-step scratch
	output   []float64
	lateral  []float64
	external []float64
	internal []float64

	monitor *Monitor
	queue   *DelayQueue
}

// NewField builds a field over the given grids. The kernel spectrum and the
// Nt x Nx history buffers are allocated here and never resized.
func NewField(cfg FieldConfig, space SpatialGrid, tg TimeGrid) (*Field, error) {
	if cfg.Kernel == nil {
		return nil, fmt.Errorf("field %q: kernel is required", cfg.Name)
	}
	if cfg.Kind != KindPlain && cfg.TauH <= 0 {
		return nil, fmt.Errorf("field %q: tau_h must be positive for %s fields, got %v", cfg.Name, cfg.Kind, cfg.TauH)
	}
	nx, nt := space.Len(), tg.Len()
	if nx < 2 || nt < 1 {
		return nil, fmt.Errorf("field %q: %w: %d x %d", cfg.Name, ErrInvalidGrid, nt, nx)
	}
	if cfg.Seed != nil && len(cfg.Seed) != nx {
		return nil, fmt.Errorf("field %q: seed has %d positions, grid has %d", cfg.Name, len(cfg.Seed), nx)
	}

	f := &Field{
		Name:      cfg.Name,
		Kind:      cfg.Kind,
		Space:     space,
		Time:      tg,
		Threshold: cfg.Threshold,
		TauH:      cfg.TauH,
		H0:        cfg.H0,
		stimuli:   append([]Stimulus(nil), cfg.Stimuli...),
		conv:      newConvolver(cfg.Kernel, space),

		activation:  make([]float64, nx),
		habituation: make([]float64, nx),

		historyActivation: mat.NewDense(nt, nx, nil),
		historyExternal:   mat.NewDense(nt, nx, nil),
		historyInternal:   mat.NewDense(nt, nx, nil),

		output:   make([]float64, nx),
		lateral:  make([]float64, nx),
		external: make([]float64, nx),
		internal: make([]float64, nx),
	}
	floats.AddConst(cfg.H0, f.activation)
	floats.AddConst(cfg.H0, f.habituation)
	if cfg.Seed != nil {
		copy(f.activation, cfg.Seed)
	}

	Diagf("field %q: kind=%s nx=%d nt=%d theta=%g tau_h=%g h_0=%g kernel=%s stimuli=%d",
		f.Name, f.Kind, nx, nt, f.Threshold, f.TauH, f.H0, cfg.Kernel, len(f.stimuli))
	return f, nil
}

// AddConnection registers an incoming connection. Connections must be added
// before the first Step.
func (f *Field) AddConnection(c Connection) {
	f.connections = append(f.connections, c)
}

// Connections returns a copy of the incoming connections.
func (f *Field) Connections() []Connection {
	return append([]Connection(nil), f.connections...)
}

// Stimuli returns a copy of the field's stimulus list.
func (f *Field) Stimuli() []Stimulus {
	return append([]Stimulus(nil), f.stimuli...)
}

// Activation returns a copy of the current activation.
func (f *Field) Activation() []float64 {
	return append([]float64(nil), f.activation...)
}

// Habituation returns a copy of the current habituation trace.
func (f *Field) Habituation() []float64 {
	return append([]float64(nil), f.habituation...)
}

// KernelSpectrum returns the precomputed kernel spectrum (non-redundant half).
func (f *Field) KernelSpectrum() []complex128 {
	return append([]complex128(nil), f.conv.Spectrum()...)
}

// Steps returns how many history rows have been written.
func (f *Field) Steps() int { return f.next }

// HistoryActivation returns the Nt x Nx activation history. Rows at or past
// Steps() are still zero.
func (f *Field) HistoryActivation() mat.Matrix { return f.historyActivation }

// HistoryExternalInput returns the Nt x Nx external input history.
func (f *Field) HistoryExternalInput() mat.Matrix { return f.historyExternal }

// HistoryInternalInput returns the Nt x Nx internal input history.
func (f *Field) HistoryInternalInput() mat.Matrix { return f.historyInternal }

// ExternalInput returns the summed stimulus input at time t.
func (f *Field) ExternalInput(t float64) []float64 {
	return f.externalInto(make([]float64, f.Space.Len()), t)
}

func (f *Field) externalInto(dst []float64, t float64) []float64 {
	clear(dst)
	for _, s := range f.stimuli {
		s.AddTo(dst, f.Space.X, t)
	}
	return dst
}

// InternalInput returns the summed contribution of all incoming connections
// read from src.
func (f *Field) InternalInput(src ActivationSource) ([]float64, error) {
	return f.internalInto(make([]float64, f.Space.Len()), src)
}

func (f *Field) internalInto(dst []float64, src ActivationSource) ([]float64, error) {
	clear(dst)
	for _, c := range f.connections {
		var u []float64
		ok := false
		if src != nil {
			u, ok = src.Activation(c.Source)
		}
		if !ok {
			return nil, fmt.Errorf("field %q: connection source %d: %w", f.Name, c.Source, ErrUnknownField)
		}
		c.addTo(dst, u)
	}
	return dst, nil
}

// Output returns the hard-step output f(x) = 1 where u(x) >= theta, else 0.
func (f *Field) Output() []float64 {
	return f.outputInto(make([]float64, f.Space.Len()))
}

func (f *Field) outputInto(dst []float64) []float64 {
	for i, u := range f.activation {
		if u >= f.Threshold {
			dst[i] = 1
		} else {
			dst[i] = 0
		}
	}
	return dst
}

// Step advances the field by one forward-Euler step at time index i. Steps
// must be taken in ascending order starting at 0; each writes history row i.
func (f *Field) Step(i int, src ActivationSource) error {
	if i != f.next || i >= f.Time.Len() {
		return fmt.Errorf("field %q: %w: got index %d, want %d", f.Name, ErrStepOrder, i, f.next)
	}
	dt := f.Time.DT

	f.externalInto(f.external, f.Time.T[i])
	if _, err := f.internalInto(f.internal, src); err != nil {
		return err
	}
	f.outputInto(f.output)
	f.conv.convolve(f.lateral, f.output)

	switch f.Kind {
	case KindSequenceMemory:
		floats.AddScaled(f.habituation, dt/f.TauH, f.output)
	case KindDecision:
		floats.AddConst(dt/f.TauH, f.habituation)
	}

	for j, u := range f.activation {
		f.activation[j] = u + dt*(-u+f.lateral[j]+f.external[j]+f.internal[j]+f.habituation[j])
	}

	f.historyActivation.SetRow(i, f.activation)
	f.historyExternal.SetRow(i, f.external)
	f.historyInternal.SetRow(i, f.internal)
	f.next++

	Tracef("field %q step %d t=%.3f max_u=%.4f", f.Name, i, f.Time.T[i], floats.Max(f.activation))
	return nil
}

// Inject adds a Gaussian bump to the activation in place.
func (f *Field) Inject(center, amplitude, width float64) {
	for j, x := range f.Space.X {
		f.activation[j] += gaussian(x, center, amplitude, width)
	}
}
