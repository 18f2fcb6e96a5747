package visual

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/banshee-data/neuralfield/internal/store"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoHistory is returned when a field has not taken any steps yet.
var ErrNoHistory = errors.New("field has no history")

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// FinalStates writes one PNG with the last activation of every field in
// fields (all fields when empty) and returns its path.
func FinalStates(snap dnf.Snapshot, fields []string, dir string) (string, error) {
	selected, err := selectFields(snap, fields)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Final field states"
	p.X.Label.Text = "Space"
	p.Y.Label.Text = "Activation u(x)"

	for i, fs := range selected {
		line, err := plotter.NewLine(xyPairs(fs.X, fs.FinalActivation()))
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fs.Name, line)

		theta, err := thresholdLine(fs.X[0], fs.X[len(fs.X)-1], fs.Threshold, line.Color)
		if err != nil {
			return "", err
		}
		p.Add(theta)
	}
	placeLegend(p)

	file := filepath.Join(dir, "final_states.png")
	if err := p.Save(plotWidth, plotHeight, file); err != nil {
		return "", fmt.Errorf("save %s: %w", file, err)
	}
	log.Printf("[visual] wrote %s", file)
	return file, nil
}

// ActivityAtCenters writes a PNG with the activation time course of fs at
// the grid points nearest each center.
func ActivityAtCenters(fs dnf.FieldSnapshot, centers []float64, dir string) (string, error) {
	if fs.Steps == 0 {
		return "", fmt.Errorf("%s: %w", fs.Name, ErrNoHistory)
	}
	if len(centers) == 0 {
		return "", errors.New("no input centers given")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - activity at input centers", fs.Name)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Activation u(t)"

	t := fs.T[:fs.Steps]
	for i, c := range centers {
		line, err := plotter.NewLine(xyPairs(t, fs.ActivityAt(c)))
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("x=%g", c), line)
	}
	theta, err := thresholdLine(t[0], t[len(t)-1], fs.Threshold, color.Gray{Y: 128})
	if err != nil {
		return "", err
	}
	p.Add(theta)
	p.Legend.Add("threshold", theta)
	placeLegend(p)

	file := filepath.Join(dir, store.Slug(fs.Name)+"_centers.png")
	if err := p.Save(plotWidth, plotHeight, file); err != nil {
		return "", fmt.Errorf("save %s: %w", file, err)
	}
	log.Printf("[visual] wrote %s", file)
	return file, nil
}

// HeatMap writes a space-time heat map of fs's activation history.
func HeatMap(fs dnf.FieldSnapshot, dir string) (string, error) {
	if fs.Steps == 0 {
		return "", fmt.Errorf("%s: %w", fs.Name, ErrNoHistory)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}

	grid := historyGrid{fs: fs}
	hm := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	hm.Rasterized = fs.Steps > 1
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - activation history", fs.Name)
	p.X.Label.Text = "Space"
	p.Y.Label.Text = "Time"
	p.Add(hm)

	file := filepath.Join(dir, store.Slug(fs.Name)+"_heatmap.png")
	if err := p.Save(plotWidth, plotHeight, file); err != nil {
		return "", fmt.Errorf("save %s: %w", file, err)
	}
	log.Printf("[visual] wrote %s", file)
	return file, nil
}

// historyGrid adapts the written rows of a field's activation history to
// plotter.GridXYZ. Columns are space, rows are time.
type historyGrid struct {
	fs dnf.FieldSnapshot
}

func (g historyGrid) Dims() (c, r int)   { return len(g.fs.X), g.fs.Steps }
func (g historyGrid) Z(c, r int) float64 { return g.fs.HistoryActivation.At(r, c) }
func (g historyGrid) X(c int) float64    { return g.fs.X[c] }
func (g historyGrid) Y(r int) float64    { return g.fs.T[r] }

func xyPairs(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i := range ys {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	return pts
}

func thresholdLine(from, to, theta float64, c color.Color) (*plotter.Line, error) {
	line, err := plotter.NewLine(plotter.XYs{{X: from, Y: theta}, {X: to, Y: theta}})
	if err != nil {
		return nil, err
	}
	line.Color = c
	line.Width = vg.Points(0.5)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return line, nil
}

func placeLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func selectFields(snap dnf.Snapshot, names []string) ([]dnf.FieldSnapshot, error) {
	if len(names) == 0 {
		if len(snap.Fields) == 0 {
			return nil, errors.New("snapshot has no fields")
		}
		return snap.Fields, nil
	}
	out := make([]dnf.FieldSnapshot, 0, len(names))
	for _, name := range names {
		fs, ok := snap.Field(name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, dnf.ErrUnknownField)
		}
		out = append(out, fs)
	}
	return out, nil
}
