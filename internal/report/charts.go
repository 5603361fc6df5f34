package report

import (
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
)

var (
	barColor  = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	lineColor = color.RGBA{R: 0, G: 100, B: 0, A: 255}
	fitColor  = color.RGBA{R: 220, G: 20, B: 60, A: 255}
)

// ChartWriter renders PNG charts into the charts directory
type ChartWriter struct {
	paths  *config.Paths
	width  vg.Length
	height vg.Length
	logger *slog.Logger
}

// NewChartWriter creates a chart writer for charts of the given size in inches
func NewChartWriter(paths *config.Paths, widthInches, heightInches float64, logger *slog.Logger) *ChartWriter {
	return &ChartWriter{
		paths:  paths,
		width:  vg.Length(widthInches) * vg.Inch,
		height: vg.Length(heightInches) * vg.Inch,
		logger: infrastructure.WithComponent(logger, "report.charts"),
	}
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	return p
}

func (w *ChartWriter) save(p *plot.Plot, name string) (string, error) {
	path := w.paths.GetChartPath(name)
	if err := os.MkdirAll(filepath.Dir(path), config.DirPermissions); err != nil {
		return "", apperrors.NewStorageError("failed to create charts directory", err)
	}
	if err := p.Save(w.width, w.height, path); err != nil {
		return "", apperrors.NewStorageError(fmt.Sprintf("failed to save chart %s", name), err)
	}
	w.logger.Info("Saved chart", slog.String("path", path))
	return path, nil
}

// BarChart draws one bar per label
func (w *ChartWriter) BarChart(name, title, xLabel, yLabel string, labels []string, values []float64) (string, error) {
	if len(values) == 0 {
		return "", apperrors.NewValidationError(fmt.Sprintf("chart %s has no data", name))
	}

	p := newPlot(title, xLabel, yLabel)
	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(20))
	if err != nil {
		return "", fmt.Errorf("bar chart %s: %w", name, err)
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)

	p.Add(bars, plotter.NewGrid())
	p.NominalX(labels...)
	if len(labels) > 6 {
		p.X.Tick.Label.Rotation = math.Pi / 3
		p.X.Tick.Label.YAlign = draw.YCenter
		p.X.Tick.Label.XAlign = draw.XRight
	}
	return w.save(p, name)
}

// TimeSeriesChart draws y over dates
func (w *ChartWriter) TimeSeriesChart(name, title, yLabel string, dates []time.Time, values []float64) (string, error) {
	if len(dates) == 0 || len(dates) != len(values) {
		return "", apperrors.NewValidationError(fmt.Sprintf("chart %s has no data", name))
	}

	p := newPlot(title, "event_date", yLabel)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	line, points, err := plotter.NewLinePoints(timeXYs(dates, values))
	if err != nil {
		return "", fmt.Errorf("time series %s: %w", name, err)
	}
	line.Color = lineColor
	line.Width = vg.Points(2)
	points.GlyphStyle.Color = lineColor

	p.Add(line, points, plotter.NewGrid())
	return w.save(p, name)
}

// BreakdownChart draws one time series line per breakdown value
func (w *ChartWriter) BreakdownChart(name, title, yLabel string, series map[string]plotter.XYs) (string, error) {
	if len(series) == 0 {
		return "", apperrors.NewValidationError(fmt.Sprintf("chart %s has no data", name))
	}

	p := newPlot(title, "event_date", yLabel)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Legend.Top = true

	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, series[k])
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return "", fmt.Errorf("breakdown chart %s: %w", name, err)
	}
	p.Add(plotter.NewGrid())
	return w.save(p, name)
}

// HistogramChart draws the frequency of values over bins buckets. A
// non-positive bins uses the square root of the number of values.
func (w *ChartWriter) HistogramChart(name, title, xLabel string, values []float64, bins int) (string, error) {
	if len(values) == 0 {
		return "", apperrors.NewValidationError(fmt.Sprintf("chart %s has no data", name))
	}
	if bins <= 0 {
		bins = defaultBins(len(values))
	}

	p := newPlot(title, xLabel, "frequency")
	hist, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return "", fmt.Errorf("histogram %s: %w", name, err)
	}
	hist.FillColor = barColor

	p.Add(hist)
	return w.save(p, name)
}

// RegressionChart draws the observations and the fitted line
func (w *ChartWriter) RegressionChart(name, title, xLabel, yLabel string, x, y, fitted []float64) (string, error) {
	if len(x) == 0 || len(x) != len(y) || len(x) != len(fitted) {
		return "", apperrors.NewValidationError(fmt.Sprintf("chart %s has no data", name))
	}

	p := newPlot(title, xLabel, yLabel)

	obs := make(plotter.XYs, len(x))
	fit := make(plotter.XYs, len(x))
	for i := range x {
		obs[i] = plotter.XY{X: x[i], Y: y[i]}
		fit[i] = plotter.XY{X: x[i], Y: fitted[i]}
	}
	sort.Slice(fit, func(i, j int) bool { return fit[i].X < fit[j].X })

	scatter, err := plotter.NewScatter(obs)
	if err != nil {
		return "", fmt.Errorf("regression chart %s: %w", name, err)
	}
	scatter.GlyphStyle.Radius = vg.Points(3)

	line, err := plotter.NewLine(fit)
	if err != nil {
		return "", fmt.Errorf("regression chart %s: %w", name, err)
	}
	line.Color = fitColor
	line.Width = vg.Points(2)

	p.Add(scatter, line, plotter.NewGrid())
	p.Legend.Add("observed", scatter)
	p.Legend.Add("fitted", line)
	return w.save(p, name)
}

func timeXYs(dates []time.Time, values []float64) plotter.XYs {
	xys := make(plotter.XYs, len(dates))
	for i := range dates {
		xys[i] = plotter.XY{X: float64(dates[i].Unix()), Y: values[i]}
	}
	return xys
}

// defaultBins is the square-root rule, at least one bin
func defaultBins(n int) int {
	return max(1, int(math.Ceil(math.Sqrt(float64(n)))))
}
