package analysis

import (
	"context"
	"log/slog"

	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// The hypothesis chain: spending more to acquire users retains more of
// them, and retained users raise profit.
var (
	CostDrivesRetention = Hypothesis{
		Name:      "acquisition_cost_vs_retention",
		Statement: "higher user acquisition cost leads to a higher retention rate",
		XLabel:    "user_acquisition_cost_usd",
		YLabel:    "retention_rate",
	}
	RetentionDrivesProfit = Hypothesis{
		Name:      "retention_vs_profit",
		Statement: "a higher retention rate leads to a higher profit",
		XLabel:    "retention_rate",
		YLabel:    "profit_usd",
	}
	CostDrivesProfit = Hypothesis{
		Name:      "acquisition_cost_vs_profit",
		Statement: "higher user acquisition cost leads to a higher profit",
		XLabel:    "user_acquisition_cost_usd",
		YLabel:    "profit_usd",
	}
)

// UserRetentionAnalysis tests the hypothesis chain over assembled profit
// rows. Rows without a profit are left out.
type UserRetentionAnalysis struct {
	AcquisitionCosts []float64
	RetentionRates   []float64
	Profits          []float64
	Alpha            float64

	logger *slog.Logger
}

// NewUserRetentionAnalysis collects the three series from rows
func NewUserRetentionAnalysis(rows []domain.ProfitRow, alpha float64, logger *slog.Logger) *UserRetentionAnalysis {
	a := &UserRetentionAnalysis{
		Alpha:  alpha,
		logger: infrastructure.WithComponent(logger, "analysis"),
	}
	for _, r := range rows {
		if !r.ProfitUSD.Valid {
			continue
		}
		a.AcquisitionCosts = append(a.AcquisitionCosts, r.UserAcquisitionCostUSD)
		a.RetentionRates = append(a.RetentionRates, r.RetentionRate)
		a.Profits = append(a.Profits, r.ProfitUSD.Float64)
	}
	return a
}

// Run tests every hypothesis of the chain in order
func (a *UserRetentionAnalysis) Run(ctx context.Context) ([]*TestResult, error) {
	tests := []struct {
		h    Hypothesis
		x, y []float64
	}{
		{CostDrivesRetention, a.AcquisitionCosts, a.RetentionRates},
		{RetentionDrivesProfit, a.RetentionRates, a.Profits},
		{CostDrivesProfit, a.AcquisitionCosts, a.Profits},
	}

	results := make([]*TestResult, 0, len(tests))
	for _, tt := range tests {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := LinearTest(tt.h, tt.x, tt.y, a.Alpha)
		if err != nil {
			return results, err
		}
		a.logger.InfoContext(ctx, "Hypothesis tested",
			slog.String("hypothesis", tt.h.Name),
			slog.Int("n", res.N),
			slog.Float64("slope", res.Slope),
			slog.Float64("p_value", res.PValue),
			slog.Bool("reject", res.Reject))
		results = append(results, res)
	}
	return results, nil
}
