package dnf

import "gonum.org/v1/gonum/mat"

// FieldSnapshot is a read-only copy of a field's state for plotting and
// persistence. Mutating it never affects the simulation.
type FieldSnapshot struct {
	Name        string
	Kind        Kind
	Threshold   float64
	X           []float64
	T           []float64
	Steps       int
	Activation  []float64
	Habituation []float64

	HistoryActivation    *mat.Dense
	HistoryExternalInput *mat.Dense
	HistoryInternalInput *mat.Dense
}

// Snapshot copies the field's state.
func (f *Field) Snapshot() FieldSnapshot {
	return FieldSnapshot{
		Name:                 f.Name,
		Kind:                 f.Kind,
		Threshold:            f.Threshold,
		X:                    append([]float64(nil), f.Space.X...),
		T:                    append([]float64(nil), f.Time.T...),
		Steps:                f.next,
		Activation:           f.Activation(),
		Habituation:          f.Habituation(),
		HistoryActivation:    mat.DenseCopyOf(f.historyActivation),
		HistoryExternalInput: mat.DenseCopyOf(f.historyExternal),
		HistoryInternalInput: mat.DenseCopyOf(f.historyInternal),
	}
}

// FinalActivation returns the last written activation history row, or the
// current activation when no step has run.
func (s FieldSnapshot) FinalActivation() []float64 {
	if s.Steps == 0 {
		return append([]float64(nil), s.Activation...)
	}
	return mat.Row(nil, s.Steps-1, s.HistoryActivation)
}

// ActivityAt returns the activation history at the grid point nearest pos
// for the steps taken so far.
func (s FieldSnapshot) ActivityAt(pos float64) []float64 {
	j := SpatialGrid{X: s.X}.Nearest(pos)
	out := make([]float64, s.Steps)
	for i := range out {
		out[i] = s.HistoryActivation.At(i, j)
	}
	return out
}

// Snapshot is a read-only copy of every field plus the run's event logs.
type Snapshot struct {
	Fields    []FieldSnapshot
	Crossings []Crossing
	Firings   []Firing
}

// Snapshot copies the state of every registered field.
func (s *Simulator) Snapshot() Snapshot {
	out := Snapshot{
		Fields:    make([]FieldSnapshot, len(s.fields)),
		Crossings: s.Crossings(),
		Firings:   s.Firings(),
	}
	for i, f := range s.fields {
		out.Fields[i] = f.Snapshot()
	}
	return out
}

// Field returns the snapshot of the named field.
func (s Snapshot) Field(name string) (FieldSnapshot, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSnapshot{}, false
}
