// Package dnf integrates coupled one-dimensional dynamic neural fields.
//
// Responsibilities: spatial and temporal grids, lateral-interaction kernels and
// their spectral convolution, the per-step field update (habituation, external
// and internal input), weighted thresholded connections between fields, the
// threshold-crossing monitor and the delayed-feedback queue, and the
// Simulator that steps every field through the shared time grid.
// Key types: Field, Connection, Monitor, DelayQueue, Simulator, Snapshot.
//
// Fields never hold pointers to each other. Connections and simulator roles
// refer to fields by FieldID, an index into the Simulator's registry, so the
// connectivity graph may contain cycles while ownership stays acyclic.
//
// The package is single threaded: a Simulator must not be stepped from more
// than one goroutine.
package dnf
