package kpi

import (
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// Calculator computes the marketing KPIs over one set of inputs.
// Every call recomputes from the inputs.
type Calculator struct {
	inputs *Inputs
	logger *slog.Logger
}

// NewCalculator creates a calculator; a nil logger uses the default logger
func NewCalculator(inputs *Inputs, logger *slog.Logger) *Calculator {
	if inputs == nil {
		inputs = &Inputs{}
	}
	return &Calculator{
		inputs: inputs,
		logger: infrastructure.WithComponent(logger, "kpi"),
	}
}

// Inputs returns the tables the calculator reads
func (c *Calculator) Inputs() *Inputs {
	return c.inputs
}

// Metric names accepted by Metric
const (
	NameAcquisitionCost = "uac"
	NameRevenue         = "revenue"
	NamePayouts         = "payouts"
)

// Metric dispatches to a calculator by short name (uac, revenue, payouts)
func (c *Calculator) Metric(name string, g GroupBy, agg Aggregation) (*MetricTable, error) {
	switch name {
	case NameAcquisitionCost:
		return c.UserAcquisitionCosts(g, agg)
	case NameRevenue:
		return c.RevenuePerInstall(g, agg)
	case NamePayouts:
		return c.PayoutsPerInstall(g, agg)
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown metric %q", name)).
		WithContext("metric", name)
}

// bucket is one (network, country, day) acquisition group
type bucket struct {
	networkID string
	countryID string
	date      time.Time
	installs  int
	spend     float64
}

func (b bucket) parts() []string {
	return []string{b.networkID, b.countryID, b.date.Format(domain.DateLayout)}
}

func (b bucket) key() string {
	return joinKey(b.parts())
}

func (b bucket) cost() float64 {
	if b.installs == 0 {
		return 0
	}
	return b.spend / float64(b.installs)
}

// acquisitionBuckets counts installs per (network, country, day) and left
// joins the summed spend onto them. Buckets without spend cost 0.
func (c *Calculator) acquisitionBuckets() ([]bucket, JoinStats) {
	spend := make(map[string]float64)
	for _, s := range c.inputs.AdSpend {
		b := bucket{networkID: s.NetworkID, countryID: s.CountryID, date: s.EventDate}
		spend[b.key()] += s.ValueUSD
	}

	index := make(map[string]int)
	var buckets []bucket
	for _, in := range c.inputs.Installs {
		b := bucket{networkID: in.NetworkID, countryID: in.CountryID, date: in.EventDate}
		k := b.key()
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, b)
		}
		buckets[i].installs++
	}

	stats := JoinStats{LeftRows: len(buckets), RightRows: len(spend)}
	for i := range buckets {
		if v, ok := spend[buckets[i].key()]; ok {
			buckets[i].spend = v
			stats.Matched++
		} else {
			stats.LeftOnly++
		}
	}
	stats.RightOnly = len(spend) - stats.Matched
	return buckets, stats
}

// UserAcquisitionCosts returns spend per install, aggregated by g
func (c *Calculator) UserAcquisitionCosts(g GroupBy, agg Aggregation) (*MetricTable, error) {
	if err := validate(g, agg); err != nil {
		return nil, err
	}
	if slices.Contains(g, DimInstallID) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("acquisition cost cannot be grouped by %s", DimInstallID))
	}

	buckets, stats := c.acquisitionBuckets()
	facts := make([]fact, len(buckets))
	for i, b := range buckets {
		facts[i] = fact{
			networkID:  b.networkID,
			countryID:  b.countryID,
			attributed: true,
			date:       b.date,
			value:      sql.NullFloat64{Float64: b.cost(), Valid: true},
		}
	}

	rows, missing := aggregate(facts, g, agg)
	stats.MissingKey = missing
	c.logJoin(MetricAcquisitionCost, stats)
	return &MetricTable{Name: MetricAcquisitionCost, GroupBy: g, Aggregation: agg, Rows: rows, Stats: stats}, nil
}

// RevenuePerInstall returns revenue summed per install and day, outer
// joined to installs and aggregated by g
func (c *Calculator) RevenuePerInstall(g GroupBy, agg Aggregation) (*MetricTable, error) {
	return c.perInstall(MetricRevenuePerInstall, c.inputs.revenueEvents(), g, agg)
}

// PayoutsPerInstall returns payouts summed per install and day, outer
// joined to installs and aggregated by g
func (c *Calculator) PayoutsPerInstall(g GroupBy, agg Aggregation) (*MetricTable, error) {
	return c.perInstall(MetricPayoutsPerInstall, c.inputs.payoutEvents(), g, agg)
}

func (c *Calculator) perInstall(name string, events []event, g GroupBy, agg Aggregation) (*MetricTable, error) {
	if err := validate(g, agg); err != nil {
		return nil, err
	}

	facts, stats := c.perInstallFacts(events)
	rows, missing := aggregate(facts, g, agg)
	stats.MissingKey = missing
	c.logJoin(name, stats)
	return &MetricTable{Name: name, GroupBy: g, Aggregation: agg, Rows: rows, Stats: stats}, nil
}

// perInstallFacts sums events per (install, day) and outer joins the sums
// with installs on (install, day). Installs without events carry a null
// value; sums without an install carry no network or country.
func (c *Calculator) perInstallFacts(events []event) ([]fact, JoinStats) {
	type dayKey struct {
		installID string
		date      string
	}

	sums := make(map[dayKey]float64)
	var order []dayKey
	dates := make(map[dayKey]time.Time)
	for _, e := range events {
		k := dayKey{e.installID, e.date.Format(domain.DateLayout)}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
			dates[k] = e.date
		}
		sums[k] += e.value
	}

	stats := JoinStats{LeftRows: len(c.inputs.Installs), RightRows: len(sums)}
	matched := make(map[dayKey]bool)
	facts := make([]fact, 0, len(c.inputs.Installs)+len(sums))

	for _, in := range c.inputs.Installs {
		f := fact{
			installID:  in.InstallID,
			networkID:  in.NetworkID,
			countryID:  in.CountryID,
			attributed: true,
			date:       in.EventDate,
		}
		k := dayKey{in.InstallID, in.EventDate.Format(domain.DateLayout)}
		if v, ok := sums[k]; ok {
			f.value = sql.NullFloat64{Float64: v, Valid: true}
			matched[k] = true
			stats.Matched++
		} else {
			stats.LeftOnly++
		}
		facts = append(facts, f)
	}

	for _, k := range order {
		if matched[k] {
			continue
		}
		stats.RightOnly++
		facts = append(facts, fact{
			installID: k.installID,
			date:      dates[k],
			value:     sql.NullFloat64{Float64: sums[k], Valid: true},
		})
	}
	return facts, stats
}

func (c *Calculator) logJoin(metric string, stats JoinStats) {
	c.logger.Debug("Joined metric inputs",
		slog.String("metric", metric),
		slog.Int("left_rows", stats.LeftRows),
		slog.Int("right_rows", stats.RightRows),
		slog.Int("matched", stats.Matched),
		slog.Int("left_only", stats.LeftOnly),
		slog.Int("right_only", stats.RightOnly))
	if stats.MissingKey > 0 {
		c.logger.Warn("Rows excluded from grouping",
			slog.String("metric", metric),
			slog.Int("rows", stats.MissingKey))
	}
}

func validate(g GroupBy, agg Aggregation) error {
	if len(g) == 0 {
		return apperrors.NewValidationError("group by needs at least one dimension")
	}
	for _, d := range g {
		if _, err := ParseDimension(string(d)); err != nil {
			return err
		}
	}
	if agg != AggMean && agg != AggSum {
		return apperrors.NewValidationError(fmt.Sprintf("unknown aggregation %q", agg))
	}
	return nil
}
