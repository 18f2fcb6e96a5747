package dnf

// Stimulus is a Gaussian bump of external input that is active while
// Start <= t <= End. Both window ends are inclusive.
type Stimulus struct {
	Center    float64 `json:"center"`
	Amplitude float64 `json:"amplitude"`
	Width     float64 `json:"width"`
	Start     float64 `json:"active_start"`
	End       float64 `json:"active_end"`
}

// Active reports whether t lies inside the stimulus window.
func (s Stimulus) Active(t float64) bool {
	return s.Start <= t && t <= s.End
}

// AddTo adds the stimulus profile at time t to dst, evaluated over x.
func (s Stimulus) AddTo(dst, x []float64, t float64) {
	if !s.Active(t) {
		return
	}
	for i, xi := range x {
		dst[i] += gaussian(xi, s.Center, s.Amplitude, s.Width)
	}
}

// Centers returns the stimulus centers in list order.
func Centers(stimuli []Stimulus) []float64 {
	out := make([]float64, len(stimuli))
	for i, s := range stimuli {
		out[i] = s.Center
	}
	return out
}
