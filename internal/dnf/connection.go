package dnf

import "gonum.org/v1/gonum/floats"

// FieldID identifies a field inside a Simulator's registry.
type FieldID int

// NoField marks an unassigned role.
const NoField FieldID = -1

// Connection couples the activation of Source into the internal input of the
// field that holds it. A nil Threshold applies the weighted activation
// everywhere; otherwise only positions where the source activation strictly
// exceeds the threshold contribute.
type Connection struct {
	Source    FieldID
	Weight    float64
	Threshold *float64
}

// Gated reports whether the connection carries a threshold.
func (c Connection) Gated() bool { return c.Threshold != nil }

// addTo accumulates the connection's contribution from src into dst.
func (c Connection) addTo(dst, src []float64) {
	if !c.Gated() {
		floats.AddScaled(dst, c.Weight, src)
		return
	}
	th := *c.Threshold
	for i, u := range src {
		if u > th {
			dst[i] += c.Weight * u
		}
	}
}

// ActivationSource resolves a field id to the activation that connections
// read during the current step. The Simulator serves the previous step's
// published activations.
type ActivationSource interface {
	Activation(id FieldID) ([]float64, bool)
}
