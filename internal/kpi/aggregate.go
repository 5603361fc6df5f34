package kpi

import (
	"database/sql"
	"slices"
)

// Metric column names
const (
	MetricAcquisitionCost   = "user_acquisition_cost_usd"
	MetricRevenuePerInstall = "revenue_per_install_usd"
	MetricPayoutsPerInstall = "payouts_per_install_usd"
	MetricDaysActive        = "days_active"
	MetricRetentionRate     = "retention_rate"
	MetricProfit            = "profit_usd"
)

// JoinStats describes one join so unmatched rows are visible instead of
// being silently folded into the aggregate.
type JoinStats struct {
	LeftRows   int `json:"left_rows"`
	RightRows  int `json:"right_rows"`
	Matched    int `json:"matched"`
	LeftOnly   int `json:"left_only"`
	RightOnly  int `json:"right_only"`
	MissingKey int `json:"missing_key"`
}

// MetricRow is one aggregated group. TotalUsers and RetainedUsers are only
// set by the retention rate calculation.
type MetricRow struct {
	Group         []string        `json:"group"`
	Value         sql.NullFloat64 `json:"value"`
	Count         int             `json:"count"`
	TotalUsers    int             `json:"total_users,omitempty"`
	RetainedUsers int             `json:"retained_users,omitempty"`
}

// MetricTable is a grouped metric with the join that produced it
type MetricTable struct {
	Name        string      `json:"name"`
	GroupBy     GroupBy     `json:"group_by"`
	Aggregation Aggregation `json:"aggregation"`
	Rows        []MetricRow `json:"rows"`
	Stats       JoinStats   `json:"stats"`
}

// Header returns the group columns followed by the metric column
func (t *MetricTable) Header() []string {
	h := t.GroupBy.Strings()
	if t.Name == MetricRetentionRate {
		h = append(h, "total_users", "retained_users")
	}
	return append(h, t.Name)
}

// Lookup returns the row for key
func (t *MetricTable) Lookup(key ...string) (MetricRow, bool) {
	for _, r := range t.Rows {
		if slices.Equal(r.Group, key) {
			return r, true
		}
	}
	return MetricRow{}, false
}

type accumulator struct {
	key []string
	sum float64
	n   int
}

// aggregate groups facts by g and folds their values with agg. Facts
// missing a key part are skipped and counted.
func aggregate(facts []fact, g GroupBy, agg Aggregation) ([]MetricRow, int) {
	groups := make(map[string]*accumulator)
	missing := 0

	for _, f := range facts {
		key, ok := groupKey(f, g)
		if !ok {
			missing++
			continue
		}
		id := joinKey(key)
		acc, ok := groups[id]
		if !ok {
			acc = &accumulator{key: key}
			groups[id] = acc
		}
		if f.value.Valid {
			acc.sum += f.value.Float64
			acc.n++
		}
	}

	rows := make([]MetricRow, 0, len(groups))
	for _, acc := range groups {
		row := MetricRow{Group: acc.key, Count: acc.n}
		switch agg {
		case AggSum:
			row.Value = sql.NullFloat64{Float64: acc.sum, Valid: true}
		default:
			if acc.n > 0 {
				row.Value = sql.NullFloat64{Float64: acc.sum / float64(acc.n), Valid: true}
			}
		}
		rows = append(rows, row)
	}
	sortRows(rows, g)
	return rows, missing
}

func sortRows(rows []MetricRow, g GroupBy) {
	slices.SortStableFunc(rows, func(a, b MetricRow) int {
		return compareKeys(g, a.Group, b.Group)
	})
}

func indexRows(rows []MetricRow) map[string]MetricRow {
	out := make(map[string]MetricRow, len(rows))
	for _, r := range rows {
		out[joinKey(r.Group)] = r
	}
	return out
}
