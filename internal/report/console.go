package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"kpicli/internal/analysis"
	"kpicli/internal/kpi"
	"kpicli/pkg/contracts/domain"
)

// PrintMetricTable renders a grouped metric as a console table
func PrintMetricTable(w io.Writer, t *kpi.MetricTable) {
	fmt.Fprintf(w, "\n%s (%s by %s)\n", t.Name, t.Aggregation, t.GroupBy)

	table := tablewriter.NewWriter(w)
	table.SetHeader(t.Header())
	table.SetAutoFormatHeaders(false)
	for _, rec := range MetricRecords(t, formatMoney) {
		table.Append(rec)
	}
	table.Render()

	if s := t.Stats; s.LeftOnly+s.RightOnly+s.MissingKey > 0 {
		fmt.Fprintf(w, "join: %d matched, %d left only, %d right only, %d without group key\n",
			s.Matched, s.LeftOnly, s.RightOnly, s.MissingKey)
	}
}

// PrintProfitRows renders assembled profit rows
func PrintProfitRows(w io.Writer, rows []domain.ProfitRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"network", "country", "date", "installs", "uac", "revenue", "payouts", "retention %", "profit"})
	table.SetAutoFormatHeaders(false)
	for _, r := range rows {
		table.Append([]string{
			r.NetworkID,
			r.CountryID,
			r.EventDate.Format(domain.DateLayout),
			strconv.Itoa(r.Installs),
			formatMoney(r.UserAcquisitionCostUSD),
			formatNull(r.RevenueUSD, formatMoney),
			formatNull(r.PayoutsUSD, formatMoney),
			formatMoney(r.RetentionRate),
			formatNull(r.ProfitUSD, formatMoney),
		})
	}
	table.Render()
}

// PrintHypotheses renders the test results followed by their verdicts
func PrintHypotheses(w io.Writer, results []*analysis.TestResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"hypothesis", "n", "r", "slope", "r²", "p", "reject H0"})
	table.SetAutoFormatHeaders(false)
	for _, r := range results {
		table.Append([]string{
			r.Hypothesis.Name,
			strconv.Itoa(r.N),
			fmt.Sprintf("%.3f", r.Correlation),
			fmt.Sprintf("%.4f", r.Slope),
			fmt.Sprintf("%.3f", r.RSquared),
			fmt.Sprintf("%.4f", r.PValue),
			strconv.FormatBool(r.Reject),
		})
	}
	table.Render()

	for _, r := range results {
		fmt.Fprintf(w, "- %s: %s\n", r.Hypothesis.Statement, r.Verdict)
	}
}

// PrintDistribution renders days-active percentiles on one line
func PrintDistribution(w io.Writer, d analysis.Distribution) {
	fmt.Fprintf(w, "days_active: n=%d mean=%.2f p50=%d p90=%d p99=%d max=%d\n",
		d.Count, d.Mean, d.P50, d.P90, d.P99, d.Max)
}
