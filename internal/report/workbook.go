package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/internal/kpi"
	"kpicli/pkg/contracts/domain"
)

// Workbook sheet names
const (
	SheetProfit       = "profit"
	SheetGrouped      = "grouped_profit"
	SheetRetention    = "retention_facts"
	SheetHypotheses   = "hypotheses"
	SheetCleaning     = "cleaning"
	SheetDaysActive   = "days_active_distribution"
	SheetRevenueShare = "revenue_share"
)

// maxSheetName is Excel's limit on sheet name length
const maxSheetName = 31

// WorkbookWriter writes the whole run into one xlsx file
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	return &WorkbookWriter{logger: infrastructure.WithComponent(logger, "report.workbook")}
}

// Write builds the workbook from data and saves it at path
func (w *WorkbookWriter) Write(path string, data *Data) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	sw := &sheetWriter{f: f, headerStyle: header}

	if err := f.SetSheetName("Sheet1", SheetProfit); err != nil {
		return fmt.Errorf("failed to rename first sheet: %w", err)
	}
	if data.Profit != nil {
		rows := make([][]interface{}, len(data.Profit.Rows))
		for i, r := range data.Profit.Rows {
			rows[i] = profitCells(r)
		}
		if err := sw.write(SheetProfit, ProfitHeader, rows); err != nil {
			return err
		}
		if err := w.revenueShare(sw, data.Profit.Rows); err != nil {
			return err
		}
	}

	if data.Grouped != nil {
		if err := sw.write(SheetGrouped, data.Grouped.Header(), metricCells(data.Grouped)); err != nil {
			return err
		}
	}
	for _, t := range data.Metrics {
		if err := sw.write(sheetName(t.Name), t.Header(), metricCells(t)); err != nil {
			return err
		}
	}

	if len(data.Retention) > 0 {
		rows := make([][]interface{}, len(data.Retention))
		for i, rf := range data.Retention {
			last := ""
			if !rf.LastActive.IsZero() {
				last = rf.LastActive.Format(domain.DateLayout)
			}
			rows[i] = []interface{}{
				rf.InstallID, rf.NetworkID, rf.CountryID,
				rf.InstallDate.Format(domain.DateLayout), last, rf.DaysActive,
			}
		}
		hdr := []string{"install_id", "network_id", "country_id", "install_date", "last_active", "days_active"}
		if err := sw.write(SheetRetention, hdr, rows); err != nil {
			return err
		}
	}

	if len(data.Hypotheses) > 0 {
		rows := make([][]interface{}, len(data.Hypotheses))
		for i, h := range data.Hypotheses {
			rows[i] = []interface{}{
				h.Hypothesis.Name, h.Hypothesis.Statement, h.N, h.Correlation, h.Intercept, h.Slope,
				h.RSquared, h.TStat, h.PValue, h.Alpha, h.Reject, h.Verdict,
			}
		}
		hdr := []string{"hypothesis", "statement", "n", "correlation", "intercept", "slope",
			"r_squared", "t_stat", "p_value", "alpha", "reject", "verdict"}
		if err := sw.write(SheetHypotheses, hdr, rows); err != nil {
			return err
		}
	}

	if data.DaysActive.Count > 0 {
		d := data.DaysActive
		rows := [][]interface{}{{d.Count, d.Mean, d.P50, d.P90, d.P99, d.Max}}
		if err := sw.write(SheetDaysActive, []string{"count", "mean", "p50", "p90", "p99", "max"}, rows); err != nil {
			return err
		}
	}

	if len(data.Cleaning) > 0 {
		rows := make([][]interface{}, len(data.Cleaning))
		for i, r := range data.Cleaning {
			rows[i] = []interface{}{
				r.Table, r.RowsIn, r.RowsOut, r.Duplicates, r.DroppedMissing,
				total(r.DateFailures), total(r.FilledWithMean), total(r.FilledWithEmpty),
				total(r.Outliers), r.OutlierRowsRemoved,
			}
		}
		hdr := []string{"table", "rows_in", "rows_out", "duplicates", "dropped_missing",
			"date_failures", "filled_with_mean", "filled_with_empty", "outliers", "outlier_rows_removed"}
		if err := sw.write(SheetCleaning, hdr, rows); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), config.DirPermissions); err != nil {
		return apperrors.NewStorageError("failed to create workbook directory", err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError("failed to save workbook", err)
	}

	w.logger.Info("Saved workbook",
		slog.String("path", path),
		slog.Int("sheets", len(f.GetSheetList())))
	return nil
}

// revenueShare writes revenue per network and a pie chart over it
func (w *WorkbookWriter) revenueShare(sw *sheetWriter, rows []domain.ProfitRow) error {
	byNetwork := make(map[string]float64)
	for _, r := range rows {
		if r.RevenueUSD.Valid {
			byNetwork[r.NetworkID] += r.RevenueUSD.Float64
		}
	}
	if len(byNetwork) == 0 {
		return nil
	}

	networks := make([]string, 0, len(byNetwork))
	for n := range byNetwork {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	cells := make([][]interface{}, len(networks))
	for i, n := range networks {
		cells[i] = []interface{}{n, byNetwork[n]}
	}
	if err := sw.write(SheetRevenueShare, []string{domain.ColumnNetworkID, "revenue"}, cells); err != nil {
		return err
	}

	last := len(networks) + 1
	chart := &excelize.Chart{
		Type: excelize.Pie,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", SheetRevenueShare),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetRevenueShare, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", SheetRevenueShare, last),
		}},
		Title:    []excelize.RichTextRun{{Text: "Revenue share per network"}},
		Legend:   excelize.ChartLegend{Position: "right"},
		PlotArea: excelize.ChartPlotArea{ShowPercent: true, ShowCatName: true},
	}
	if err := sw.f.AddChart(SheetRevenueShare, "D2", chart); err != nil {
		return fmt.Errorf("failed to add revenue share chart: %w", err)
	}
	return nil
}

type sheetWriter struct {
	f           *excelize.File
	headerStyle int
}

func (s *sheetWriter) write(sheet string, header []string, rows [][]interface{}) error {
	if idx, _ := s.f.GetSheetIndex(sheet); idx < 0 {
		if _, err := s.f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	hdr := make([]interface{}, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := s.f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	end, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := s.f.SetCellStyle(sheet, "A1", end, s.headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := s.f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}

	return s.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func profitCells(r domain.ProfitRow) []interface{} {
	return []interface{}{
		r.NetworkID, r.CountryID, r.EventDate.Format(domain.DateLayout),
		r.Year, r.Month, r.YearMonth.Format(domain.DateLayout), r.Weekday,
		r.Installs, r.SpendUSD, r.UserAcquisitionCostUSD,
		nullCell(r.RevenueUSD.Float64, r.RevenueUSD.Valid),
		nullCell(r.PayoutsUSD.Float64, r.PayoutsUSD.Valid),
		nullCell(r.DaysActive.Float64, r.DaysActive.Valid),
		r.TotalUsers, r.RetainedUsers, r.RetentionRate,
		nullCell(r.ProfitUSD.Float64, r.ProfitUSD.Valid),
	}
}

func metricCells(t *kpi.MetricTable) [][]interface{} {
	retention := t.Name == kpi.MetricRetentionRate
	out := make([][]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]interface{}, 0, len(r.Group)+3)
		for _, g := range r.Group {
			row = append(row, g)
		}
		if retention {
			row = append(row, r.TotalUsers, r.RetainedUsers)
		}
		out[i] = append(row, nullCell(r.Value.Float64, r.Value.Valid))
	}
	return out
}

func nullCell(v float64, valid bool) interface{} {
	if !valid {
		return nil
	}
	return v
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
