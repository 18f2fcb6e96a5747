package dnf

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidGrid is returned for non-positive steps or bounds smaller than a step.
var ErrInvalidGrid = errors.New("invalid grid")

// SpatialGrid is the uniform symmetric grid [-XLim, +XLim] with spacing DX.
type SpatialGrid struct {
	XLim float64
	DX   float64
	X    []float64
}

// TimeGrid is the uniform grid [0, TLim] with spacing DT.
type TimeGrid struct {
	TLim float64
	DT   float64
	T    []float64
}

// gridPoints returns the number of samples from 0 to span inclusive with the
// given step. Rounding keeps the count stable against float drift, so
// 2*5/0.1 yields 101 points rather than 100 or 102.
func gridPoints(span, step float64) int {
	return int(math.Round(span/step)) + 1
}

func checkStep(name string, limit, step float64) error {
	if math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
		return fmt.Errorf("%w: %s step must be positive, got %v", ErrInvalidGrid, name, step)
	}
	if math.IsNaN(limit) || math.IsInf(limit, 0) || limit < step {
		return fmt.Errorf("%w: %s limit %v is smaller than step %v", ErrInvalidGrid, name, limit, step)
	}
	return nil
}

// NewSpatialGrid builds the grid x[i] = -xLim + i*dx for i in [0, Nx).
func NewSpatialGrid(xLim, dx float64) (SpatialGrid, error) {
	if err := checkStep("spatial", xLim, dx); err != nil {
		return SpatialGrid{}, err
	}
	n := gridPoints(2*xLim, dx)
	x := make([]float64, n)
	for i := range x {
		x[i] = -xLim + float64(i)*dx
	}
	return SpatialGrid{XLim: xLim, DX: dx, X: x}, nil
}

// NewTimeGrid builds the grid t[i] = i*dt for i in [0, Nt).
func NewTimeGrid(tLim, dt float64) (TimeGrid, error) {
	if err := checkStep("temporal", tLim, dt); err != nil {
		return TimeGrid{}, err
	}
	n := gridPoints(tLim, dt)
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) * dt
	}
	return TimeGrid{TLim: tLim, DT: dt, T: t}, nil
}

// Len returns Nx.
func (g SpatialGrid) Len() int { return len(g.X) }

// Len returns Nt.
func (g TimeGrid) Len() int { return len(g.T) }

// Nearest returns the index of the grid point closest to pos. Positions
// outside the grid snap to the nearest edge. On ties the lowest index wins.
func (g SpatialGrid) Nearest(pos float64) int {
	return floats.NearestIdx(g.X, pos)
}
