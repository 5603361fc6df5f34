package analysis

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kpicli/internal/errors"
	"kpicli/internal/shared/testutil"
	"kpicli/pkg/contracts/domain"
)

var testHypothesis = Hypothesis{Name: "x_vs_y", XLabel: "x", YLabel: "y"}

func TestLinearTest(t *testing.T) {
	tests := []struct {
		name        string
		x, y        []float64
		slope       float64
		intercept   float64
		correlation float64
		rSquared    float64
		pValue      float64
		reject      bool
	}{
		{
			name:  "exact line",
			x:     []float64{1, 2, 3, 4, 5},
			y:     []float64{3, 5, 7, 9, 11},
			slope: 2, intercept: 1, correlation: 1, rSquared: 1, pValue: 0, reject: true,
		},
		{
			// with two degrees of freedom the t CDF has a closed form:
			// t = 1.8856 gives a two-sided p of exactly 0.2
			name:  "noisy",
			x:     []float64{1, 2, 3, 4},
			y:     []float64{1, 3, 2, 4},
			slope: 0.8, intercept: 0.5, correlation: 0.8, rSquared: 0.64, pValue: 0.2, reject: false,
		},
		{
			name:  "no relationship",
			x:     []float64{1, 2, 3, 4, 5},
			y:     []float64{2, 4, 3, 4, 2},
			slope: 0, intercept: 3, correlation: 0, rSquared: 0, pValue: 1, reject: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := LinearTest(testHypothesis, tt.x, tt.y, 0.05)
			require.NoError(t, err)

			assert.Equal(t, len(tt.x), res.N)
			assert.InDelta(t, tt.slope, res.Slope, 1e-9)
			assert.InDelta(t, tt.intercept, res.Intercept, 1e-9)
			assert.InDelta(t, tt.correlation, res.Correlation, 1e-9)
			assert.InDelta(t, tt.rSquared, res.RSquared, 1e-9)
			assert.InDelta(t, tt.pValue, res.PValue, 1e-6)
			assert.Equal(t, tt.reject, res.Reject)
			assert.Len(t, res.Predictions, len(tt.x))
			if tt.reject {
				assert.Contains(t, res.Verdict, "reject H0")
			} else {
				assert.Contains(t, res.Verdict, "fail to reject H0")
			}
		})
	}
}

func TestLinearTest_Predictions(t *testing.T) {
	res, err := LinearTest(testHypothesis, []float64{1, 2, 3, 4}, []float64{1, 3, 2, 4}, 0)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{1.3, 2.1, 2.9, 3.7}, res.Predictions, 1e-9)
	assert.Equal(t, 0.05, res.Alpha)
}

func TestLinearTest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
	}{
		{"length mismatch", []float64{1, 2, 3}, []float64{1, 2}},
		{"too few points", []float64{1, 2}, []float64{1, 2}},
		{"constant x", []float64{2, 2, 2}, []float64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LinearTest(testHypothesis, tt.x, tt.y, 0.05)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
		})
	}
}

func profitRow(uac, rate, profit float64) domain.ProfitRow {
	return domain.ProfitRow{
		UserAcquisitionCostUSD: uac,
		RetentionRate:          rate,
		ProfitUSD:              sql.NullFloat64{Float64: profit, Valid: true},
	}
}

func TestUserRetentionAnalysis_Run(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	rows := []domain.ProfitRow{
		profitRow(50, 100, -39),
		profitRow(60, 0, -60),
		profitRow(30, 200.0/3, -22),
		profitRow(40, 100, -38.5),
		{UserAcquisitionCostUSD: 99},
	}

	a := NewUserRetentionAnalysis(rows, 0.05, logger)
	assert.Len(t, a.AcquisitionCosts, 4)

	results, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, CostDrivesRetention.Name, results[0].Hypothesis.Name)
	assert.Equal(t, RetentionDrivesProfit.Name, results[1].Hypothesis.Name)
	assert.Equal(t, CostDrivesProfit.Name, results[2].Hypothesis.Name)

	// profit falls as acquisition cost rises in this data
	assert.Less(t, results[2].Slope, 0.0)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.PValue, 0.0)
		assert.LessOrEqual(t, r.PValue, 1.0)
	}

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "Hypothesis tested")
}

func TestUserRetentionAnalysis_TooFewRows(t *testing.T) {
	a := NewUserRetentionAnalysis([]domain.ProfitRow{profitRow(1, 2, 3)}, 0.05, nil)
	_, err := a.Run(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestUserRetentionAnalysis_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewUserRetentionAnalysis(nil, 0.05, nil)
	_, err := a.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDaysActiveDistribution(t *testing.T) {
	dist := DaysActiveDistribution([]int{0, 0, 3, 0, 2, 0, 0})

	assert.Equal(t, int64(7), dist.Count)
	assert.Equal(t, int64(0), dist.P50)
	assert.Equal(t, int64(2), dist.P90)
	assert.Equal(t, int64(3), dist.P99)
	assert.Equal(t, int64(3), dist.Max)
	assert.InDelta(t, 5.0/7, dist.Mean, 1e-9)
	assert.Zero(t, dist.Clamped)

	empty := DaysActiveDistribution(nil)
	assert.Zero(t, empty.Count)
}

func TestDaysActiveDistribution_Clamps(t *testing.T) {
	dist := DaysActiveDistribution([]int{maxTrackedDays * 10, -4, 1})

	assert.Equal(t, int64(3), dist.Count)
	assert.Equal(t, int64(2), dist.Clamped)
	assert.InDelta(t, float64(maxTrackedDays), float64(dist.Max), float64(maxTrackedDays)*0.001)
}
