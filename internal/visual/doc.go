// Package visual renders read-only dnf snapshots: PNG line plots and heat
// maps through gonum/plot, and an interactive HTML page through go-echarts.
// Nothing here mutates simulation state.
package visual
