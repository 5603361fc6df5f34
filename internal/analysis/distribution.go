package analysis

import (
	"github.com/HdrHistogram/hdrhistogram-go"
)

// maxTrackedDays bounds the histogram; a century of activity is plenty
const maxTrackedDays = 36500

// Distribution summarises a non-negative integer metric
type Distribution struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	P50   int64   `json:"p50"`
	P90   int64   `json:"p90"`
	P99   int64   `json:"p99"`
	Max   int64   `json:"max"`

	// Clamped counts values pulled into [0, maxTrackedDays] before recording
	Clamped int64 `json:"clamped"`
}

// DaysActiveDistribution records days into an HDR histogram and reads back
// its percentiles. Values outside [0, maxTrackedDays] are clamped to the
// nearest bound and counted in Clamped.
func DaysActiveDistribution(days []int) Distribution {
	h := hdrhistogram.New(1, maxTrackedDays, 3)
	var clamped int64
	for _, d := range days {
		v := int64(d)
		if v < 0 || v > maxTrackedDays {
			v = min(max(v, 0), maxTrackedDays)
			clamped++
		}
		// in range after clamping
		_ = h.RecordValue(v)
	}

	if h.TotalCount() == 0 {
		return Distribution{}
	}
	return Distribution{
		Count:   h.TotalCount(),
		Mean:    h.Mean(),
		P50:     h.ValueAtQuantile(50),
		P90:     h.ValueAtQuantile(90),
		P99:     h.ValueAtQuantile(99),
		Max:     h.Max(),
		Clamped: clamped,
	}
}
