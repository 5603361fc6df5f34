package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot/plotter"

	"kpicli/internal/analysis"
	"kpicli/internal/cleaning"
	"kpicli/internal/config"
	"kpicli/internal/infrastructure"
	"kpicli/internal/kpi"
	"kpicli/pkg/contracts/domain"
)

// Data is everything a run hands to the reporting layer. Nil or empty
// parts are skipped.
type Data struct {
	Profit     *kpi.ProfitTable
	Grouped    *kpi.MetricTable
	Metrics    []*kpi.MetricTable
	Retention  []kpi.RetentionFact
	Hypotheses []*analysis.TestResult
	DaysActive analysis.Distribution
	Cleaning   []*cleaning.Report
	Cleaned    map[domain.TableName]dataframe.DataFrame
}

// Summary lists the files a Reporter wrote
type Summary struct {
	Charts   []string `json:"charts"`
	Tables   []string `json:"tables"`
	Workbook string   `json:"workbook,omitempty"`
}

// Files returns every written file
func (s *Summary) Files() []string {
	out := append([]string{}, s.Charts...)
	out = append(out, s.Tables...)
	if s.Workbook != "" {
		out = append(out, s.Workbook)
	}
	return out
}

// Reporter writes charts, CSV tables and the workbook as configured
type Reporter struct {
	cfg      config.OutputConfig
	paths    *config.Paths
	charts   *ChartWriter
	csv      *CSVWriter
	workbook *WorkbookWriter
	logger   *slog.Logger
}

// NewReporter creates a reporter writing below paths
func NewReporter(cfg config.OutputConfig, paths *config.Paths, logger *slog.Logger) *Reporter {
	return &Reporter{
		cfg:      cfg,
		paths:    paths,
		charts:   NewChartWriter(paths, cfg.ChartWidthInches, cfg.ChartHeightInches, logger),
		csv:      NewCSVWriter(paths, cfg.BOMPrefix, logger),
		workbook: NewWorkbookWriter(logger),
		logger:   infrastructure.WithComponent(logger, "report"),
	}
}

// Write produces every enabled output, checking ctx between outputs
func (r *Reporter) Write(ctx context.Context, data *Data) (*Summary, error) {
	if err := r.paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	summary := &Summary{}

	if r.cfg.CSV {
		if err := r.writeTables(ctx, data, summary); err != nil {
			return summary, err
		}
	}
	if r.cfg.CleanedTables {
		if err := r.writeCleaned(ctx, data, summary); err != nil {
			return summary, err
		}
	}
	if r.cfg.Charts {
		if err := r.writeCharts(ctx, data, summary); err != nil {
			return summary, err
		}
	}
	if r.cfg.Workbook {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.workbook.Write(r.paths.Workbook, data); err != nil {
			return summary, err
		}
		summary.Workbook = r.paths.Workbook
	}

	r.logger.InfoContext(ctx, "Reports written",
		slog.Int("charts", len(summary.Charts)),
		slog.Int("tables", len(summary.Tables)),
		slog.Bool("workbook", summary.Workbook != ""))
	return summary, nil
}

func (r *Reporter) writeTables(ctx context.Context, data *Data, summary *Summary) error {
	if data.Profit != nil {
		stream, err := r.csv.CreateStreamWriter("profit.csv", ProfitHeader)
		if err != nil {
			return err
		}
		for _, row := range data.Profit.Rows {
			if err := stream.WriteRecord(ProfitRecord(row, formatFloat)); err != nil {
				stream.Close()
				return fmt.Errorf("failed to write profit row: %w", err)
			}
		}
		if err := stream.Close(); err != nil {
			return fmt.Errorf("failed to close profit.csv: %w", err)
		}
		summary.Tables = append(summary.Tables, stream.Path())
	}

	tables := append([]*kpi.MetricTable{}, data.Metrics...)
	if data.Grouped != nil {
		tables = append(tables, data.Grouped)
	}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := r.csv.WriteSimpleCSV(metricFileName(t), t.Header(), MetricRecords(t, formatFloat))
		if err != nil {
			return err
		}
		summary.Tables = append(summary.Tables, path)
	}
	return nil
}

func (r *Reporter) writeCleaned(ctx context.Context, data *Data, summary *Summary) error {
	for _, table := range domain.AllTables {
		df, ok := data.Cleaned[table]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := r.csv.WriteFrame("cleaned_"+table.FileName(), df)
		if err != nil {
			return err
		}
		summary.Tables = append(summary.Tables, path)
	}
	return nil
}

func (r *Reporter) writeCharts(ctx context.Context, data *Data, summary *Summary) error {
	add := func(path string, err error) error {
		if err != nil {
			return err
		}
		summary.Charts = append(summary.Charts, path)
		return ctx.Err()
	}

	if g := data.Grouped; g != nil && len(g.Rows) > 0 {
		labels := make([]string, len(g.Rows))
		values := make([]float64, len(g.Rows))
		for i, row := range g.Rows {
			labels[i] = strings.Join(row.Group, " / ")
			values[i] = row.Value.Float64
		}
		name := strings.TrimSuffix(metricFileName(g), ".csv") + ".png"
		title := fmt.Sprintf("Profit (%s) by %s", g.Aggregation, g.GroupBy)
		if err := add(r.charts.BarChart(name, title, g.GroupBy.String(), kpi.MetricProfit, labels, values)); err != nil {
			return err
		}
	}

	if data.Profit != nil && len(data.Profit.Rows) > 0 {
		dates, totals := dailyProfit(data.Profit.Rows)
		if err := add(r.charts.TimeSeriesChart("profit_over_time.png", "Daily profit", kpi.MetricProfit, dates, totals)); err != nil {
			return err
		}
		series := profitByNetwork(data.Profit.Rows)
		if err := add(r.charts.BreakdownChart("profit_by_network_over_time.png", "Daily profit per network", kpi.MetricProfit, series)); err != nil {
			return err
		}
	}

	if len(data.Retention) > 0 {
		values := kpi.DaysActiveValues(data.Retention)
		if err := add(r.charts.HistogramChart("days_active_histogram.png", "Days active per install", kpi.MetricDaysActive, values, 0)); err != nil {
			return err
		}
	}

	for _, h := range data.Hypotheses {
		name := "regression_" + h.Hypothesis.Name + ".png"
		if err := add(r.charts.RegressionChart(name, h.Hypothesis.Statement, h.Hypothesis.XLabel, h.Hypothesis.YLabel, h.X, h.Y, h.Predictions)); err != nil {
			return err
		}
	}
	return nil
}

// dailyProfit sums profit per day, in date order
func dailyProfit(rows []domain.ProfitRow) ([]time.Time, []float64) {
	byDay := make(map[time.Time]float64)
	for _, r := range rows {
		if r.ProfitUSD.Valid {
			byDay[r.EventDate] += r.ProfitUSD.Float64
		}
	}
	dates := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	totals := make([]float64, len(dates))
	for i, d := range dates {
		totals[i] = byDay[d]
	}
	return dates, totals
}

// profitByNetwork sums profit per network and day, one date-ordered
// series per network
func profitByNetwork(rows []domain.ProfitRow) map[string]plotter.XYs {
	sums := make(map[string]map[time.Time]float64)
	for _, r := range rows {
		if !r.ProfitUSD.Valid {
			continue
		}
		if sums[r.NetworkID] == nil {
			sums[r.NetworkID] = make(map[time.Time]float64)
		}
		sums[r.NetworkID][r.EventDate] += r.ProfitUSD.Float64
	}

	out := make(map[string]plotter.XYs, len(sums))
	for network, byDay := range sums {
		xys := make(plotter.XYs, 0, len(byDay))
		for d, v := range byDay {
			xys = append(xys, plotter.XY{X: float64(d.Unix()), Y: v})
		}
		sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })
		out[network] = xys
	}
	return out
}
