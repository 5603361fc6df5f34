package kpi

import (
	"cmp"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "kpicli/internal/errors"
	"kpicli/pkg/contracts/domain"
)

// Dimension is a column rows can be grouped by
type Dimension string

const (
	DimNetworkID    Dimension = domain.ColumnNetworkID
	DimCountryID    Dimension = domain.ColumnCountryID
	DimInstallID    Dimension = domain.ColumnInstallID
	DimEventDate    Dimension = domain.ColumnEventDate
	DimYear         Dimension = domain.ColumnYear
	DimMonth        Dimension = domain.ColumnMonth
	DimYearAndMonth Dimension = domain.ColumnYearAndMonth
	DimDayOfWeek    Dimension = domain.ColumnDayOfWeek
)

// AllDimensions lists every groupable dimension
var AllDimensions = []Dimension{
	DimNetworkID, DimCountryID, DimInstallID, DimEventDate,
	DimYear, DimMonth, DimYearAndMonth, DimDayOfWeek,
}

// GroupBy is an ordered list of grouping dimensions
type GroupBy []Dimension

// Strings returns the dimension names in order
func (g GroupBy) Strings() []string {
	out := make([]string, len(g))
	for i, d := range g {
		out[i] = string(d)
	}
	return out
}

func (g GroupBy) String() string {
	return strings.Join(g.Strings(), ",")
}

// ParseGroupBy validates names and returns the matching GroupBy
func ParseGroupBy(names []string) (GroupBy, error) {
	if len(names) == 0 {
		return nil, apperrors.NewValidationError("group by needs at least one dimension")
	}
	out := make(GroupBy, 0, len(names))
	seen := make(map[Dimension]bool, len(names))
	for _, name := range names {
		d, err := ParseDimension(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("dimension %s listed twice", d))
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// ParseDimension maps a column name to a Dimension
func ParseDimension(name string) (Dimension, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, d := range AllDimensions {
		if string(d) == name {
			return d, nil
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown dimension %q", name)).
		WithContext("dimension", name)
}

// Aggregation folds a group of values into one
type Aggregation string

const (
	// AggMean ignores nulls and is null when the group has no values
	AggMean Aggregation = "mean"
	// AggSum ignores nulls and is 0 when the group has no values
	AggSum Aggregation = "sum"
)

// ParseAggregation accepts mean or sum
func ParseAggregation(name string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(name))) {
	case AggMean:
		return AggMean, nil
	case AggSum:
		return AggSum, nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown aggregation %q", name))
}

// fact is one joined row before grouping. attributed is false for metric
// rows with no matching install, which have no network or country.
type fact struct {
	installID  string
	networkID  string
	countryID  string
	attributed bool
	date       time.Time
	value      sql.NullFloat64
}

func (f fact) key(d Dimension) (string, bool) {
	switch d {
	case DimInstallID:
		return f.installID, f.installID != ""
	case DimNetworkID:
		return f.networkID, f.attributed
	case DimCountryID:
		return f.countryID, f.attributed
	}

	if f.date.IsZero() {
		return "", false
	}
	parts := domain.BreakDownDate(f.date)
	switch d {
	case DimEventDate:
		return f.date.Format(domain.DateLayout), true
	case DimYear:
		return strconv.Itoa(parts.Year), true
	case DimMonth:
		return strconv.Itoa(parts.Month), true
	case DimYearAndMonth:
		return parts.YearMonth.Format(domain.DateLayout), true
	case DimDayOfWeek:
		return parts.Weekday, true
	}
	return "", false
}

// groupKey returns the key of f under g, false when any part is missing
func groupKey(f fact, g GroupBy) ([]string, bool) {
	key := make([]string, len(g))
	for i, d := range g {
		v, ok := f.key(d)
		if !ok {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}

// compareKeys orders group keys: numeric parts numerically, weekdays
// Sunday first, everything else (including ISO dates) lexically
func compareKeys(g GroupBy, a, b []string) int {
	for i, d := range g {
		if c := compareKey(d, a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareKey(d Dimension, a, b string) int {
	switch d {
	case DimYear, DimMonth:
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		if aerr == nil && berr == nil {
			return cmp.Compare(ai, bi)
		}
	case DimDayOfWeek:
		return cmp.Compare(weekdayIndex(a), weekdayIndex(b))
	}
	return strings.Compare(a, b)
}

func weekdayIndex(name string) int {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return int(d)
		}
	}
	return 7
}

func joinKey(parts []string) string {
	return strings.Join(parts, "\x1f")
}
