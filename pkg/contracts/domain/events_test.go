package domain

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakDownDate(t *testing.T) {
	parts := BreakDownDate(time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 2023, parts.Year)
	assert.Equal(t, 3, parts.Month)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), parts.YearMonth)
	assert.Equal(t, "Wednesday", parts.Weekday)
}

func TestTableName_RequiredColumns(t *testing.T) {
	tests := []struct {
		table    TableName
		expected []string
	}{
		{TableAdSpend, []string{"network_id", "country_id", "event_date", "value_usd"}},
		{TableInstalls, []string{"install_id", "network_id", "country_id", "event_date"}},
		{TablePayouts, []string{"install_id", "event_date", "value_usd"}},
		{TableRevenue, []string{"install_id", "event_date", "value_usd"}},
		{TableName("unknown"), nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.table), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.table.RequiredColumns())
		})
	}
	assert.Equal(t, "installs.csv", TableInstalls.FileName())
}

func TestProfitRow_ComputeProfit(t *testing.T) {
	t.Run("all values present", func(t *testing.T) {
		row := ProfitRow{
			UserAcquisitionCostUSD: 2.5,
			RevenueUSD:             sql.NullFloat64{Float64: 10, Valid: true},
			PayoutsUSD:             sql.NullFloat64{Float64: 4, Valid: true},
		}
		row.ComputeProfit()

		assert.True(t, row.ProfitUSD.Valid)
		assert.Equal(t, 3.5, row.ProfitUSD.Float64)
	})

	t.Run("null revenue keeps profit null", func(t *testing.T) {
		row := ProfitRow{
			UserAcquisitionCostUSD: 2.5,
			PayoutsUSD:             sql.NullFloat64{Float64: 4, Valid: true},
		}
		row.ComputeProfit()

		assert.False(t, row.ProfitUSD.Valid)
	})
}
