package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
)

// Hypothesis names a claimed linear relationship between two metrics
type Hypothesis struct {
	Name      string `json:"name"`
	Statement string `json:"statement"`
	XLabel    string `json:"x_label"`
	YLabel    string `json:"y_label"`
}

// TestResult is the outcome of a two-sided test on the slope of an
// ordinary least squares fit of Y on X
type TestResult struct {
	Hypothesis  Hypothesis `json:"hypothesis"`
	N           int        `json:"n"`
	Correlation float64    `json:"correlation"`
	Intercept   float64    `json:"intercept"`
	Slope       float64    `json:"slope"`
	RSquared    float64    `json:"r_squared"`
	SlopeStdErr float64    `json:"slope_std_err"`
	TStat       float64    `json:"t_stat"`
	PValue      float64    `json:"p_value"`
	Alpha       float64    `json:"alpha"`
	Reject      bool       `json:"reject"`
	Verdict     string     `json:"verdict"`

	X           []float64 `json:"-"`
	Y           []float64 `json:"-"`
	Predictions []float64 `json:"-"`
}

// LinearTest fits y = a + b·x and tests H0: b = 0 against a Student t
// distribution with n-2 degrees of freedom. alpha <= 0 uses the default
// significance level.
func LinearTest(h Hypothesis, x, y []float64, alpha float64) (*TestResult, error) {
	if len(x) != len(y) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s: %d x values but %d y values", h.Name, len(x), len(y)))
	}
	n := len(x)
	if n < 3 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("%s: need at least 3 observations, got %d", h.Name, n)).
			WithContext("hypothesis", h.Name)
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = config.DefaultAlpha
	}

	xMean := stat.Mean(x, nil)
	sxx := 0.0
	for _, v := range x {
		sxx += (v - xMean) * (v - xMean)
	}
	if sxx == 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s: %s is constant", h.Name, h.XLabel))
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)

	res := &TestResult{
		Hypothesis:  h,
		N:           n,
		Intercept:   intercept,
		Slope:       slope,
		Alpha:       alpha,
		X:           x,
		Y:           y,
		Predictions: make([]float64, n),
	}

	ssr := 0.0
	for i := range x {
		res.Predictions[i] = intercept + slope*x[i]
		r := y[i] - res.Predictions[i]
		ssr += r * r
	}

	res.Correlation = stat.Correlation(x, y, nil)
	res.RSquared = stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(res.Correlation) {
		res.Correlation = 0
	}
	if math.IsNaN(res.RSquared) {
		res.RSquared = 0
	}

	dof := float64(n - 2)
	res.SlopeStdErr = math.Sqrt(ssr / dof / sxx)
	switch {
	case res.SlopeStdErr > 0:
		res.TStat = slope / res.SlopeStdErr
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
		res.PValue = 2 * dist.Survival(math.Abs(res.TStat))
	case slope != 0:
		res.TStat = math.Inf(1)
		if slope < 0 {
			res.TStat = math.Inf(-1)
		}
		res.PValue = 0
	default:
		res.PValue = 1
	}

	res.Reject = res.PValue < alpha
	res.Verdict = verdict(res)
	return res, nil
}

func verdict(r *TestResult) string {
	if r.Reject {
		return fmt.Sprintf("reject H0 at alpha=%g: %s has a significant linear effect on %s (slope=%.4f, p=%.4f)",
			r.Alpha, r.Hypothesis.XLabel, r.Hypothesis.YLabel, r.Slope, r.PValue)
	}
	return fmt.Sprintf("fail to reject H0 at alpha=%g: no significant linear effect of %s on %s (slope=%.4f, p=%.4f)",
		r.Alpha, r.Hypothesis.XLabel, r.Hypothesis.YLabel, r.Slope, r.PValue)
}
