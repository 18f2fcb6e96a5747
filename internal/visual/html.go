package visual

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// maxCells caps each heat map axis so the page stays small for long runs.
const maxCells = 200

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHTML writes an interactive page with a space-time heat map per
// field and, when centers is non-empty, the activity of each field at those
// positions.
func RenderHTML(snap dnf.Snapshot, centers []float64, w io.Writer) error {
	if len(snap.Fields) == 0 {
		return fmt.Errorf("snapshot has no fields")
	}

	page := components.NewPage()
	page.PageTitle = "Neural field run"
	for _, fs := range snap.Fields {
		if fs.Steps == 0 {
			continue
		}
		page.AddCharts(heatMapChart(fs))
		if len(centers) > 0 {
			page.AddCharts(centersChart(fs, centers))
		}
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteHTML renders the page into dir/index.html.
func WriteHTML(snap dnf.Snapshot, centers []float64, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}
	file := filepath.Join(dir, "index.html")
	f, err := os.Create(file)
	if err != nil {
		return "", err
	}
	if err := RenderHTML(snap, centers, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	log.Printf("[visual] wrote %s", file)
	return file, nil
}

func heatMapChart(fs dnf.FieldSnapshot) *charts.HeatMap {
	nx := len(fs.X)
	xStride := stride(nx)
	tStride := stride(fs.Steps)

	var xLabels, tLabels []string
	for j := 0; j < nx; j += xStride {
		xLabels = append(xLabels, strconv.FormatFloat(fs.X[j], 'f', 1, 64))
	}
	for i := 0; i < fs.Steps; i += tStride {
		tLabels = append(tLabels, strconv.FormatFloat(fs.T[i], 'f', 1, 64))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	data := make([]opts.HeatMapData, 0, len(xLabels)*len(tLabels))
	for ti, i := 0, 0; i < fs.Steps; ti, i = ti+1, i+tStride {
		for xi, j := 0, 0; j < nx; xi, j = xi+1, j+xStride {
			v := fs.HistoryActivation.At(i, j)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{xi, ti, v}})
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fs.Name, Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fs.Name, Subtitle: fmt.Sprintf("kind=%s steps=%d theta=%g", fs.Kind, fs.Steps, fs.Threshold)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Space", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: tLabels, Name: "Time", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(xLabels).AddSeries("activation", data)
	return hm
}

func centersChart(fs dnf.FieldSnapshot, centers []float64) *charts.Line {
	tLabels := make([]string, fs.Steps)
	for i := range tLabels {
		tLabels[i] = strconv.FormatFloat(fs.T[i], 'f', 1, 64)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: fs.Name + " at input centers"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(tLabels)
	for k, c := range centers {
		series := fs.ActivityAt(c)
		items := make([]opts.LineData, len(series))
		for i, v := range series {
			items[i] = opts.LineData{Value: v}
		}
		var extra []charts.SeriesOpts
		if k == 0 {
			extra = append(extra, charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "threshold", YAxis: fs.Threshold}))
		}
		line.AddSeries(fmt.Sprintf("x=%g", c), items, extra...)
	}
	return line
}

func stride(n int) int {
	if n <= maxCells {
		return 1
	}
	return (n + maxCells - 1) / maxCells
}
