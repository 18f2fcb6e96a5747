package dnf

// Crossing records the first time a monitored position reached threshold.
type Crossing struct {
	Position float64
	Index    int
}

// Monitor watches fixed positions of a field and reports each position the
// first time its activation reaches the field threshold. A reported position
// stays latched for the rest of the run.
type Monitor struct {
	positions []float64
	indices   []int
	latched   map[float64]bool
}

// NewMonitor snaps every position to its nearest grid index. Positions
// outside the grid snap to the closest edge instead of failing.
func NewMonitor(positions []float64, grid SpatialGrid) *Monitor {
	m := &Monitor{
		positions: append([]float64(nil), positions...),
		indices:   make([]int, len(positions)),
		latched:   make(map[float64]bool, len(positions)),
	}
	for i, p := range positions {
		m.indices[i] = grid.Nearest(p)
		m.latched[p] = false
	}
	return m
}

// Positions returns the monitored positions in iteration order.
func (m *Monitor) Positions() []float64 {
	return append([]float64(nil), m.positions...)
}

// Index returns the grid index monitored for the k-th position.
func (m *Monitor) Index(k int) int { return m.indices[k] }

// Latched reports whether pos has already crossed.
func (m *Monitor) Latched(pos float64) bool { return m.latched[pos] }

// Check returns the positions that reach threshold for the first time at
// time index i, in position order.
func (m *Monitor) Check(activation []float64, threshold float64, i int) []Crossing {
	var out []Crossing
	for k, p := range m.positions {
		if m.latched[p] {
			continue
		}
		if activation[m.indices[k]] >= threshold {
			m.latched[p] = true
			out = append(out, Crossing{Position: p, Index: i})
		}
	}
	return out
}

// EnableMonitor gives the field a threshold-crossing monitor over positions.
func (f *Field) EnableMonitor(positions []float64) *Monitor {
	f.monitor = NewMonitor(positions, f.Space)
	return f.monitor
}

// Monitor returns the field's monitor, or nil.
func (f *Field) Monitor() *Monitor { return f.monitor }

// CheckCrossings runs the monitor against the current activation.
func (f *Field) CheckCrossings(i int) []Crossing {
	if f.monitor == nil {
		return nil
	}
	return f.monitor.Check(f.activation, f.Threshold, i)
}
