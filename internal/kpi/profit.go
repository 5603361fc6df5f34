package kpi

import (
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	apperrors "kpicli/internal/errors"
	"kpicli/pkg/contracts/domain"
)

// profitKey is the bucket every profit row is keyed by
var profitKey = GroupBy{DimNetworkID, DimCountryID, DimEventDate}

// ProfitTable holds the assembled profit rows, ordered by network,
// country and day, with the stats of every join that built them
type ProfitTable struct {
	Rows  []domain.ProfitRow   `json:"rows"`
	Stats map[string]JoinStats `json:"stats"`
}

// TotalProfit assembles one row per (network, country, day) bucket of
// installs: acquisition cost left joined with summed revenue, summed
// payouts and mean days active, inner joined with the retention rate.
func (c *Calculator) TotalProfit() (*ProfitTable, error) {
	buckets, acqStats := c.acquisitionBuckets()
	sortBuckets(buckets)

	revenueFacts, revStats := c.perInstallFacts(c.inputs.revenueEvents())
	revenue, missing := aggregate(revenueFacts, profitKey, AggSum)
	revStats.MissingKey = missing

	payoutFacts, payStats := c.perInstallFacts(c.inputs.payoutEvents())
	payouts, missing := aggregate(payoutFacts, profitKey, AggSum)
	payStats.MissingKey = missing

	retention, retStats := c.RetentionFacts()
	daysActive, _ := aggregate(retentionToFacts(retention), profitKey, AggMean)
	rates, _ := retentionRates(retention, profitKey)

	table := &ProfitTable{
		Stats: map[string]JoinStats{
			MetricAcquisitionCost:   acqStats,
			MetricRevenuePerInstall: revStats,
			MetricPayoutsPerInstall: payStats,
		},
	}

	revIdx, payIdx := indexRows(revenue), indexRows(payouts)
	daysIdx, rateIdx := indexRows(daysActive), indexRows(rates)
	daysStats := JoinStats{LeftRows: len(buckets), RightRows: len(daysActive), RightOnly: retStats.RightOnly}
	rateStats := JoinStats{LeftRows: len(buckets), RightRows: len(rates), RightOnly: retStats.RightOnly}

	for _, b := range buckets {
		k := b.key()
		row := domain.ProfitRow{
			NetworkID:              b.networkID,
			CountryID:              b.countryID,
			EventDate:              b.date,
			DateParts:              domain.BreakDownDate(b.date),
			Installs:               b.installs,
			SpendUSD:               b.spend,
			UserAcquisitionCostUSD: b.cost(),
		}
		if r, ok := revIdx[k]; ok {
			row.RevenueUSD = r.Value
		}
		if r, ok := payIdx[k]; ok {
			row.PayoutsUSD = r.Value
		}
		if r, ok := daysIdx[k]; ok {
			row.DaysActive = r.Value
			daysStats.Matched++
		} else {
			daysStats.LeftOnly++
		}

		r, ok := rateIdx[k]
		if !ok {
			rateStats.LeftOnly++
			continue
		}
		rateStats.Matched++
		row.TotalUsers = r.TotalUsers
		row.RetainedUsers = r.RetainedUsers
		row.RetentionRate = r.Value.Float64

		row.ComputeProfit()
		table.Rows = append(table.Rows, row)
	}
	table.Stats[MetricDaysActive] = daysStats
	table.Stats[MetricRetentionRate] = rateStats

	for name, s := range table.Stats {
		c.logJoin(name, s)
	}
	c.logger.Info("Assembled profit rows",
		slog.Int("buckets", len(buckets)),
		slog.Int("rows", len(table.Rows)))
	return table, nil
}

// GroupedProfit re-aggregates profit_usd of the assembled rows by g.
// install_id is not a profit dimension.
func (c *Calculator) GroupedProfit(g GroupBy, agg Aggregation) (*MetricTable, error) {
	if err := validate(g, agg); err != nil {
		return nil, err
	}
	for _, d := range g {
		if d == DimInstallID {
			return nil, apperrors.NewValidationError(fmt.Sprintf("profit cannot be grouped by %s", d))
		}
	}

	profit, err := c.TotalProfit()
	if err != nil {
		return nil, err
	}

	facts := make([]fact, len(profit.Rows))
	for i, r := range profit.Rows {
		facts[i] = fact{
			networkID:  r.NetworkID,
			countryID:  r.CountryID,
			attributed: true,
			date:       r.EventDate,
			value:      r.ProfitUSD,
		}
	}
	rows, missing := aggregate(facts, g, agg)
	stats := JoinStats{LeftRows: len(profit.Rows), MissingKey: missing}
	return &MetricTable{Name: MetricProfit, GroupBy: g, Aggregation: agg, Rows: rows, Stats: stats}, nil
}

func sortBuckets(buckets []bucket) {
	slices.SortStableFunc(buckets, func(a, b bucket) int {
		return compareKeys(profitKey, a.parts(), b.parts())
	})
}

// ProfitFloats returns profit_usd per row; null profits become 0
func ProfitFloats(rows []domain.ProfitRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = nullOrZero(r.ProfitUSD)
	}
	return out
}

func nullOrZero(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return 0
}
