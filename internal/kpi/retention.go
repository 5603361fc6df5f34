package kpi

import (
	"database/sql"
	"math"
	"slices"
	"time"
)

// RetentionFact is the activity summary of one install. LastActive is zero
// when the install never earned revenue or received a payout.
type RetentionFact struct {
	InstallID   string    `json:"install_id"`
	NetworkID   string    `json:"network_id"`
	CountryID   string    `json:"country_id"`
	InstallDate time.Time `json:"install_date"`
	LastActive  time.Time `json:"last_active"`
	DaysActive  int       `json:"days_active"`
}

// Retained reports whether the install counts towards retained users,
// which is the case when it has no activity after its install day.
func (f RetentionFact) Retained() bool {
	return f.DaysActive == 0
}

func (f RetentionFact) fact() fact {
	return fact{
		installID:  f.InstallID,
		networkID:  f.NetworkID,
		countryID:  f.CountryID,
		attributed: true,
		date:       f.InstallDate,
		value:      sql.NullFloat64{Float64: float64(f.DaysActive), Valid: true},
	}
}

// RetentionFacts computes, per install, the last payout or revenue date
// and the whole days between install and that date, clamped at 0
func (c *Calculator) RetentionFacts() ([]RetentionFact, JoinStats) {
	last := make(map[string]time.Time)
	track := func(events []event) {
		for _, e := range events {
			if e.date.After(last[e.installID]) {
				last[e.installID] = e.date
			}
		}
	}
	track(c.inputs.payoutEvents())
	track(c.inputs.revenueEvents())

	stats := JoinStats{LeftRows: len(c.inputs.Installs), RightRows: len(last)}
	seen := make(map[string]bool)
	facts := make([]RetentionFact, len(c.inputs.Installs))

	for i, in := range c.inputs.Installs {
		f := RetentionFact{
			InstallID:   in.InstallID,
			NetworkID:   in.NetworkID,
			CountryID:   in.CountryID,
			InstallDate: in.EventDate,
		}
		if t, ok := last[in.InstallID]; ok {
			f.LastActive = t
			f.DaysActive = daysBetween(in.EventDate, t)
			seen[in.InstallID] = true
			stats.Matched++
		} else {
			stats.LeftOnly++
		}
		facts[i] = f
	}
	stats.RightOnly = len(last) - len(seen)
	return facts, stats
}

func daysBetween(from, to time.Time) int {
	d := int(math.Round(to.Sub(from).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

// UserRetentionRate groups installs by g (the install day stands in for
// event_date). With daysActive it returns the mean days active per group;
// otherwise the share of distinct installs with no later activity, in
// percent, together with the total and retained user counts.
func (c *Calculator) UserRetentionRate(g GroupBy, daysActive bool) (*MetricTable, error) {
	if err := validate(g, AggMean); err != nil {
		return nil, err
	}

	facts, stats := c.RetentionFacts()
	var (
		name string
		rows []MetricRow
	)
	if daysActive {
		name = MetricDaysActive
		rows, stats.MissingKey = aggregate(retentionToFacts(facts), g, AggMean)
	} else {
		name = MetricRetentionRate
		rows, stats.MissingKey = retentionRates(facts, g)
	}

	c.logJoin(name, stats)
	return &MetricTable{Name: name, GroupBy: g, Aggregation: AggMean, Rows: rows, Stats: stats}, nil
}

func retentionToFacts(facts []RetentionFact) []fact {
	out := make([]fact, len(facts))
	for i, f := range facts {
		out[i] = f.fact()
	}
	return out
}

func retentionRates(facts []RetentionFact, g GroupBy) ([]MetricRow, int) {
	type users struct {
		key      []string
		total    map[string]bool
		retained map[string]bool
	}

	groups := make(map[string]*users)
	missing := 0
	for _, rf := range facts {
		key, ok := groupKey(rf.fact(), g)
		if !ok {
			missing++
			continue
		}
		id := joinKey(key)
		u, ok := groups[id]
		if !ok {
			u = &users{key: key, total: make(map[string]bool), retained: make(map[string]bool)}
			groups[id] = u
		}
		u.total[rf.InstallID] = true
		if rf.Retained() {
			u.retained[rf.InstallID] = true
		}
	}

	rows := make([]MetricRow, 0, len(groups))
	for _, u := range groups {
		total, retained := len(u.total), len(u.retained)
		rows = append(rows, MetricRow{
			Group:         u.key,
			Value:         sql.NullFloat64{Float64: float64(retained) / float64(total) * 100, Valid: true},
			Count:         total,
			TotalUsers:    total,
			RetainedUsers: retained,
		})
	}
	sortRows(rows, g)
	return rows, missing
}

// DaysActiveValues returns days_active for every install, in input order
func DaysActiveValues(facts []RetentionFact) []float64 {
	out := make([]float64, len(facts))
	for i, f := range facts {
		out[i] = float64(f.DaysActive)
	}
	return out
}

// SortRetentionFacts orders facts by install day then install id
func SortRetentionFacts(facts []RetentionFact) {
	slices.SortStableFunc(facts, func(a, b RetentionFact) int {
		if c := a.InstallDate.Compare(b.InstallDate); c != 0 {
			return c
		}
		if a.InstallID < b.InstallID {
			return -1
		}
		if a.InstallID > b.InstallID {
			return 1
		}
		return 0
	})
}
