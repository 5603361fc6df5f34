package report

import (
	"database/sql"
	"fmt"
	"strconv"

	"kpicli/internal/kpi"
	"kpicli/pkg/contracts/domain"
)

// formatFloat keeps full precision for machine-readable output
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatMoney rounds to exactly 2 decimal places for console output
func formatMoney(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatNull renders a null value as an empty cell
func formatNull(v sql.NullFloat64, format func(float64) string) string {
	if !v.Valid {
		return ""
	}
	return format(v.Float64)
}

// ProfitHeader is the column order of exported profit rows
var ProfitHeader = []string{
	domain.ColumnNetworkID, domain.ColumnCountryID, domain.ColumnEventDate,
	domain.ColumnYear, domain.ColumnMonth, domain.ColumnYearAndMonth, domain.ColumnDayOfWeek,
	"installs", "spend_usd", kpi.MetricAcquisitionCost, "revenue", "payouts",
	kpi.MetricDaysActive, "total_users", "retained_users", kpi.MetricRetentionRate, kpi.MetricProfit,
}

// ProfitRecord formats one profit row in ProfitHeader order
func ProfitRecord(r domain.ProfitRow, format func(float64) string) []string {
	return []string{
		r.NetworkID,
		r.CountryID,
		r.EventDate.Format(domain.DateLayout),
		strconv.Itoa(r.Year),
		strconv.Itoa(r.Month),
		r.YearMonth.Format(domain.DateLayout),
		r.Weekday,
		strconv.Itoa(r.Installs),
		format(r.SpendUSD),
		format(r.UserAcquisitionCostUSD),
		formatNull(r.RevenueUSD, format),
		formatNull(r.PayoutsUSD, format),
		formatNull(r.DaysActive, format),
		strconv.Itoa(r.TotalUsers),
		strconv.Itoa(r.RetainedUsers),
		format(r.RetentionRate),
		formatNull(r.ProfitUSD, format),
	}
}

// MetricRecords formats a grouped metric in Header order
func MetricRecords(t *kpi.MetricTable, format func(float64) string) [][]string {
	retention := t.Name == kpi.MetricRetentionRate
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		rec := append([]string{}, r.Group...)
		if retention {
			rec = append(rec, strconv.Itoa(r.TotalUsers), strconv.Itoa(r.RetainedUsers))
		}
		out[i] = append(rec, formatNull(r.Value, format))
	}
	return out
}

// metricFileName is the CSV name of a grouped metric, e.g.
// profit_usd_by_network_id_mean.csv
func metricFileName(t *kpi.MetricTable) string {
	name := t.Name + "_by"
	for _, d := range t.GroupBy {
		name += "_" + string(d)
	}
	return name + "_" + string(t.Aggregation) + ".csv"
}
