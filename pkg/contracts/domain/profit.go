package domain

import (
	"database/sql"
	"time"
)

// ProfitRow is the assembled KPI row for one (network, country, day) bucket.
// Revenue, payouts and days active are nullable because they come from left joins.
type ProfitRow struct {
	NetworkID string    `json:"network_id"`
	CountryID string    `json:"country_id"`
	EventDate time.Time `json:"event_date"`
	DateParts

	Installs               int             `json:"installs"`
	SpendUSD               float64         `json:"spend_usd"`
	UserAcquisitionCostUSD float64         `json:"user_acquisition_cost_usd"`
	RevenueUSD             sql.NullFloat64 `json:"revenue"`
	PayoutsUSD             sql.NullFloat64 `json:"payouts"`
	DaysActive             sql.NullFloat64 `json:"days_active"`
	TotalUsers             int             `json:"total_users"`
	RetainedUsers          int             `json:"retained_users"`
	RetentionRate          float64         `json:"retention_rate"`
	ProfitUSD              sql.NullFloat64 `json:"profit_usd"`
}

// ComputeProfit sets ProfitUSD from revenue, payouts and acquisition cost.
// Assembled rows always carry revenue and payout sums, 0 for installs with
// no events, so profit is only null for rows whose caller left either unset.
func (r *ProfitRow) ComputeProfit() {
	if !r.RevenueUSD.Valid || !r.PayoutsUSD.Valid {
		r.ProfitUSD = sql.NullFloat64{}
		return
	}
	r.ProfitUSD = sql.NullFloat64{
		Float64: r.RevenueUSD.Float64 - r.PayoutsUSD.Float64 - r.UserAcquisitionCostUSD,
		Valid:   true,
	}
}
