package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// Fill policies for missing values in non-numeric columns
const (
	FillDrop  = config.FillPolicyDrop
	FillEmpty = config.FillPolicyEmpty
	FillError = config.FillPolicyError
)

// dateLayouts are tried in order when coercing date columns
var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// numericColumns are coerced to float and must parse
var numericColumns = map[string]bool{
	domain.ColumnValueUSD: true,
}

// Options controls the cleaning steps
type Options struct {
	FillPolicy     string
	RemoveOutliers bool
	IQRMultiplier  float64
	StrictDates    bool
	DropDuplicates bool
}

// OptionsFromConfig maps the cleaning section of the configuration
func OptionsFromConfig(cfg config.CleaningConfig) Options {
	return Options{
		FillPolicy:     cfg.FillPolicy,
		RemoveOutliers: cfg.RemoveOutliers,
		IQRMultiplier:  cfg.IQRMultiplier,
		StrictDates:    cfg.StrictDates,
		DropDuplicates: cfg.DropDuplicates,
	}
}

// DefaultOptions returns the options of the default configuration
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Cleaning)
}

// Bounds are the IQR fences of one numeric column
type Bounds struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Report records what cleaning did to one table
type Report struct {
	Table              string            `json:"table"`
	RowsIn             int               `json:"rows_in"`
	RowsOut            int               `json:"rows_out"`
	Duplicates         int               `json:"duplicates"`
	DuplicatesDropped  bool              `json:"duplicates_dropped"`
	NumericColumns     []string          `json:"numeric_columns"`
	DateFailures       map[string]int    `json:"date_failures"`
	FilledWithMean     map[string]int    `json:"filled_with_mean"`
	FilledWithEmpty    map[string]int    `json:"filled_with_empty"`
	DroppedMissing     int               `json:"dropped_missing"`
	Outliers           map[string]int    `json:"outliers"`
	OutlierBounds      map[string]Bounds `json:"outlier_bounds"`
	OutlierRowsRemoved int               `json:"outlier_rows_removed"`
}

func newReport(table string, rows int) *Report {
	return &Report{
		Table:           table,
		RowsIn:          rows,
		DateFailures:    make(map[string]int),
		FilledWithMean:  make(map[string]int),
		FilledWithEmpty: make(map[string]int),
		Outliers:        make(map[string]int),
		OutlierBounds:   make(map[string]Bounds),
	}
}

// Cleaner prepares raw string tables for metric calculation
type Cleaner struct {
	opts   Options
	logger *slog.Logger
}

// NewCleaner creates a cleaner. A zero IQR multiplier falls back to 1.5.
func NewCleaner(opts Options, logger *slog.Logger) *Cleaner {
	if opts.IQRMultiplier <= 0 {
		opts.IQRMultiplier = config.DefaultIQRMultiplier
	}
	if opts.FillPolicy == "" {
		opts.FillPolicy = FillDrop
	}
	return &Cleaner{
		opts:   opts,
		logger: infrastructure.WithComponent(logger, "cleaning"),
	}
}

// Clean runs every step in order and returns the cleaned frame with its
// report.
func (c *Cleaner) Clean(ctx context.Context, table domain.TableName, df dataframe.DataFrame) (dataframe.DataFrame, *Report, error) {
	rep := newReport(string(table), df.Nrow())

	df = c.IDColumnsToString(df)

	df, err := c.DateColumnsToDate(ctx, df, rep)
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}

	df, err = c.NumericColumnsToFloat(df, rep)
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}

	df = c.CheckDuplicates(ctx, df, rep)

	df, err = c.FillMissingValues(ctx, df, rep)
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}

	df = c.CheckForOutliers(ctx, df, rep, c.opts.RemoveOutliers)

	df, err = c.BreakDownDate(df)
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}

	rep.RowsOut = df.Nrow()
	c.logger.InfoContext(ctx, "Cleaned table",
		slog.String("table", rep.Table),
		slog.Int("rows_in", rep.RowsIn),
		slog.Int("rows_out", rep.RowsOut),
		slog.Int("duplicates", rep.Duplicates),
		slog.Int("dropped_missing", rep.DroppedMissing),
		slog.Int("outlier_rows_removed", rep.OutlierRowsRemoved))

	return df, rep, nil
}

// CleanAll cleans every table, stopping at the first failure
func (c *Cleaner) CleanAll(ctx context.Context, tables map[domain.TableName]dataframe.DataFrame) (map[domain.TableName]dataframe.DataFrame, []*Report, error) {
	cleaned := make(map[domain.TableName]dataframe.DataFrame, len(tables))
	reports := make([]*Report, 0, len(tables))

	for _, table := range domain.AllTables {
		df, ok := tables[table]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, reports, err
		}
		out, rep, err := c.Clean(ctx, table, df)
		reports = append(reports, rep)
		if err != nil {
			return nil, reports, fmt.Errorf("cleaning %s: %w", table, err)
		}
		cleaned[table] = out
	}
	return cleaned, reports, nil
}

// IDColumnsToString makes every identifier column a string series
func (c *Cleaner) IDColumnsToString(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		if !isIDColumn(name) {
			continue
		}
		col := df.Col(name)
		if col.Type() == series.String {
			continue
		}
		df = replaceColumn(df, series.New(columnStrings(col), series.String, name))
	}
	return df
}

// DateColumnsToDate normalises date columns to 2006-01-02. Unparseable
// cells become missing; in strict mode they are a parsing error.
func (c *Cleaner) DateColumnsToDate(ctx context.Context, df dataframe.DataFrame, rep *Report) (dataframe.DataFrame, error) {
	for _, name := range df.Names() {
		if !isDateColumn(name) {
			continue
		}

		cells := columnStrings(df.Col(name))
		out := make([]string, len(cells))
		failures := 0
		firstBad := ""
		for i, cell := range cells {
			if isMissing(cell) {
				out[i] = missing
				continue
			}
			t, ok := parseDate(cell)
			if !ok {
				if failures == 0 {
					firstBad = cell
				}
				failures++
				out[i] = missing
				continue
			}
			out[i] = t.Format(domain.DateLayout)
		}

		if failures > 0 {
			rep.DateFailures[name] = failures
			c.logger.WarnContext(ctx, "Unparseable dates",
				slog.String("table", rep.Table),
				slog.String("column", name),
				slog.Int("count", failures),
				slog.String("example", firstBad))
			if c.opts.StrictDates {
				return dataframe.DataFrame{}, apperrors.NewParsingError(
					fmt.Sprintf("table %s column %s has %d unparseable dates, e.g. %q", rep.Table, name, failures, firstBad), nil).
					WithContext("table", rep.Table).
					WithContext("column", name)
			}
		}

		df = replaceColumn(df, series.New(out, series.String, name))
	}
	return df, nil
}

// ParseDate parses a date in any accepted layout
func ParseDate(s string) (time.Time, bool) {
	return parseDate(s)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// NumericColumnsToFloat converts non-identifier, non-date columns whose
// present cells all parse as numbers. value_usd must parse.
func (c *Cleaner) NumericColumnsToFloat(df dataframe.DataFrame, rep *Report) (dataframe.DataFrame, error) {
	rep.NumericColumns = rep.NumericColumns[:0]
	for _, name := range df.Names() {
		if isIDColumn(name) || isDateColumn(name) {
			continue
		}

		cells := columnStrings(df.Col(name))
		vals := make([]float64, len(cells))
		present := 0
		numeric := true
		badCell := ""
		for i, cell := range cells {
			if isMissing(cell) {
				vals[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				numeric = false
				badCell = cell
				break
			}
			vals[i] = v
			present++
		}

		if !numeric {
			if numericColumns[name] {
				return dataframe.DataFrame{}, apperrors.NewParsingError(
					fmt.Sprintf("table %s column %s has non-numeric value %q", rep.Table, name, badCell), nil).
					WithContext("table", rep.Table).
					WithContext("column", name)
			}
			continue
		}
		if present == 0 && !numericColumns[name] {
			continue
		}

		df = replaceColumn(df, floatSeries(name, vals))
		rep.NumericColumns = append(rep.NumericColumns, name)
	}
	return df, nil
}

// CheckDuplicates counts exact duplicate rows and, unless disabled, keeps
// only the first occurrence of each.
func (c *Cleaner) CheckDuplicates(ctx context.Context, df dataframe.DataFrame, rep *Report) dataframe.DataFrame {
	names := df.Names()
	cols := make([][]string, len(names))
	for i, name := range names {
		cols[i] = columnStrings(df.Col(name))
	}

	seen := make(map[string]struct{}, df.Nrow())
	keep := make([]int, 0, df.Nrow())
	var b strings.Builder
	for row := 0; row < df.Nrow(); row++ {
		b.Reset()
		for _, col := range cols {
			b.WriteString(col[row])
			b.WriteByte(0x1f)
		}
		key := b.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, row)
	}

	rep.Duplicates = df.Nrow() - len(keep)
	if rep.Duplicates == 0 {
		return df
	}

	c.logger.InfoContext(ctx, "Duplicate rows found",
		slog.String("table", rep.Table),
		slog.Int("count", rep.Duplicates),
		slog.Bool("dropped", c.opts.DropDuplicates))

	if !c.opts.DropDuplicates {
		return df
	}
	rep.DuplicatesDropped = true
	return take(df, keep)
}

// FillMissingValues fills numeric columns with the column mean and applies
// the fill policy to the rest. Rows missing a date are always dropped
// unless the policy is error.
func (c *Cleaner) FillMissingValues(ctx context.Context, df dataframe.DataFrame, rep *Report) (dataframe.DataFrame, error) {
	numeric := make(map[string]bool, len(rep.NumericColumns))
	for _, name := range rep.NumericColumns {
		numeric[name] = true
	}

	drop := make(map[int]bool)
	for _, name := range df.Names() {
		col := df.Col(name)

		if numeric[name] {
			vals := floatValues(col)
			present := make([]float64, 0, len(vals))
			for _, v := range vals {
				if !math.IsNaN(v) {
					present = append(present, v)
				}
			}
			filled := len(vals) - len(present)
			if filled == 0 {
				continue
			}
			mean := 0.0
			if len(present) > 0 {
				mean = stat.Mean(present, nil)
			} else {
				c.logger.WarnContext(ctx, "Numeric column has no values, filling with 0",
					slog.String("table", rep.Table), slog.String("column", name))
			}
			for i, v := range vals {
				if math.IsNaN(v) {
					vals[i] = mean
				}
			}
			df = replaceColumn(df, floatSeries(name, vals))
			rep.FilledWithMean[name] = filled
			continue
		}

		cells := columnStrings(col)
		var missingRows []int
		for i, cell := range cells {
			if isMissing(cell) {
				missingRows = append(missingRows, i)
			}
		}
		if len(missingRows) == 0 {
			continue
		}

		switch {
		case c.opts.FillPolicy == FillError:
			return dataframe.DataFrame{}, apperrors.NewValidationError(
				fmt.Sprintf("table %s column %s has %d missing values", rep.Table, name, len(missingRows))).
				WithContext("table", rep.Table).
				WithContext("column", name)
		case c.opts.FillPolicy == FillDrop || isDateColumn(name):
			for _, i := range missingRows {
				drop[i] = true
			}
		default:
			for _, i := range missingRows {
				cells[i] = ""
			}
			df = replaceColumn(df, series.New(cells, series.String, name))
			rep.FilledWithEmpty[name] = len(missingRows)
		}
	}

	if len(drop) == 0 {
		return df, nil
	}

	keep := make([]int, 0, df.Nrow()-len(drop))
	for i := 0; i < df.Nrow(); i++ {
		if !drop[i] {
			keep = append(keep, i)
		}
	}
	rep.DroppedMissing = len(drop)
	c.logger.InfoContext(ctx, "Dropped rows with missing values",
		slog.String("table", rep.Table),
		slog.Int("count", rep.DroppedMissing))
	return take(df, keep), nil
}

// CheckForOutliers flags values outside [Q1 - k*IQR, Q3 + k*IQR] in each
// numeric non-identifier column. Bounds come from the unfiltered table;
// with remove set, a row outside any column's bounds is dropped.
func (c *Cleaner) CheckForOutliers(ctx context.Context, df dataframe.DataFrame, rep *Report, remove bool) dataframe.DataFrame {
	flagged := make(map[int]bool)

	for _, name := range rep.NumericColumns {
		if isIDColumn(name) || !hasColumn(df, name) {
			continue
		}
		vals := floatValues(df.Col(name))
		b, ok := iqrBounds(vals, c.opts.IQRMultiplier)
		if !ok {
			continue
		}
		rep.OutlierBounds[name] = b

		count := 0
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			if v < b.Lower || v > b.Upper {
				count++
				flagged[i] = true
			}
		}
		rep.Outliers[name] = count
		if count > 0 {
			c.logger.InfoContext(ctx, "Outliers found",
				slog.String("table", rep.Table),
				slog.String("column", name),
				slog.Int("count", count),
				slog.Float64("lower", b.Lower),
				slog.Float64("upper", b.Upper))
		}
	}

	if !remove || len(flagged) == 0 {
		return df
	}

	keep := make([]int, 0, df.Nrow()-len(flagged))
	for i := 0; i < df.Nrow(); i++ {
		if !flagged[i] {
			keep = append(keep, i)
		}
	}
	rep.OutlierRowsRemoved = len(flagged)
	return take(df, keep)
}

// iqrBounds computes the fences over the present values of vals
func iqrBounds(vals []float64, k float64) (Bounds, bool) {
	sorted := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Bounds{}, false
	}
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	return Bounds{
		Q1:    q1,
		Q3:    q3,
		Lower: q1 - k*iqr,
		Upper: q3 + k*iqr,
	}, true
}

// BreakDownDate adds year, month, year_and_month and day_of_week columns
// derived from event_date.
func (c *Cleaner) BreakDownDate(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if !hasColumn(df, domain.ColumnEventDate) {
		return df, nil
	}

	cells := columnStrings(df.Col(domain.ColumnEventDate))
	n := len(cells)
	years := make([]string, n)
	months := make([]string, n)
	yearMonths := make([]string, n)
	weekdays := make([]string, n)

	for i, cell := range cells {
		t, ok := parseDate(cell)
		if isMissing(cell) || !ok {
			years[i], months[i], yearMonths[i], weekdays[i] = missing, missing, missing, missing
			continue
		}
		parts := domain.BreakDownDate(t)
		years[i] = strconv.Itoa(parts.Year)
		months[i] = strconv.Itoa(parts.Month)
		yearMonths[i] = parts.YearMonth.Format(domain.DateLayout)
		weekdays[i] = parts.Weekday
	}

	for _, s := range []series.Series{
		series.New(years, series.Int, domain.ColumnYear),
		series.New(months, series.Int, domain.ColumnMonth),
		series.New(yearMonths, series.String, domain.ColumnYearAndMonth),
		series.New(weekdays, series.String, domain.ColumnDayOfWeek),
	} {
		df = replaceColumn(df, s)
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("adding %s: %w", s.Name, df.Err)
		}
	}
	return df, nil
}
