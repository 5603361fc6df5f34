package domain

import (
	"time"
)

// DateLayout is the canonical event_date format used across the pipeline
const DateLayout = "2006-01-02"

// TableName identifies one of the four source fact tables
type TableName string

const (
	TableAdSpend  TableName = "adspend"
	TableInstalls TableName = "installs"
	TablePayouts  TableName = "payouts"
	TableRevenue  TableName = "revenue"
)

// AllTables lists the source tables in load order
var AllTables = []TableName{TableAdSpend, TableInstalls, TablePayouts, TableRevenue}

// Column names shared by the source tables
const (
	ColumnInstallID = "install_id"
	ColumnNetworkID = "network_id"
	ColumnCountryID = "country_id"
	ColumnEventDate = "event_date"
	ColumnValueUSD  = "value_usd"
)

// Columns derived from event_date
const (
	ColumnYear         = "year"
	ColumnMonth        = "month"
	ColumnYearAndMonth = "year_and_month"
	ColumnDayOfWeek    = "day_of_week"
)

// RequiredColumns returns the columns a source table must provide
func (t TableName) RequiredColumns() []string {
	switch t {
	case TableAdSpend:
		return []string{ColumnNetworkID, ColumnCountryID, ColumnEventDate, ColumnValueUSD}
	case TableInstalls:
		return []string{ColumnInstallID, ColumnNetworkID, ColumnCountryID, ColumnEventDate}
	case TablePayouts, TableRevenue:
		return []string{ColumnInstallID, ColumnEventDate, ColumnValueUSD}
	default:
		return nil
	}
}

// FileName returns the conventional file name for the table
func (t TableName) FileName() string {
	return string(t) + ".csv"
}

// AdSpend is the money spent on a network in a country on a given day
type AdSpend struct {
	NetworkID string    `json:"network_id" db:"network_id"`
	CountryID string    `json:"country_id" db:"country_id"`
	EventDate time.Time `json:"event_date" db:"event_date"`
	ValueUSD  float64   `json:"value_usd" db:"value_usd"`
}

// Install is a single user acquisition event
type Install struct {
	InstallID string    `json:"install_id" db:"install_id"`
	NetworkID string    `json:"network_id" db:"network_id"`
	CountryID string    `json:"country_id" db:"country_id"`
	EventDate time.Time `json:"event_date" db:"event_date"`
}

// Payout is money paid out to an install on a given day
type Payout struct {
	InstallID string    `json:"install_id" db:"install_id"`
	EventDate time.Time `json:"event_date" db:"event_date"`
	ValueUSD  float64   `json:"value_usd" db:"value_usd"`
}

// Revenue is money earned from an install on a given day
type Revenue struct {
	InstallID string    `json:"install_id" db:"install_id"`
	EventDate time.Time `json:"event_date" db:"event_date"`
	ValueUSD  float64   `json:"value_usd" db:"value_usd"`
}

// DateParts is the decomposition of an event date used for grouping
type DateParts struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	YearMonth time.Time `json:"year_and_month"`
	Weekday   string    `json:"day_of_week"`
}

// BreakDownDate decomposes t into year, month, first of month and weekday name
func BreakDownDate(t time.Time) DateParts {
	return DateParts{
		Year:      t.Year(),
		Month:     int(t.Month()),
		YearMonth: time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC),
		Weekday:   t.Weekday().String(),
	}
}
