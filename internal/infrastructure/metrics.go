package infrastructure

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments recorded during a run
type PipelineMetrics struct {
	RowsLoaded   metric.Int64Counter
	RowsDropped  metric.Int64Counter
	Outliers     metric.Int64Counter
	StepDuration metric.Float64Histogram
	Runs         metric.Int64Counter

	// lastSuccess is registered directly on the Prometheus registry; it is
	// nil when metrics are disabled.
	lastSuccess prometheus.Gauge
}

// CreatePipelineMetrics creates the run instruments on meter. When registry
// is non-nil a last-success timestamp gauge is registered on it as well.
func CreatePipelineMetrics(meter metric.Meter, registry *prometheus.Registry) (*PipelineMetrics, error) {
	rowsLoaded, err := meter.Int64Counter(
		"kpi_rows_loaded",
		metric.WithDescription("Rows read from each source table"),
	)
	if err != nil {
		return nil, err
	}

	rowsDropped, err := meter.Int64Counter(
		"kpi_rows_dropped",
		metric.WithDescription("Rows removed while cleaning, by reason"),
	)
	if err != nil {
		return nil, err
	}

	outliers, err := meter.Int64Counter(
		"kpi_outliers",
		metric.WithDescription("Values outside the IQR bounds, by table and column"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"kpi_step_duration_seconds",
		metric.WithDescription("Pipeline step duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter(
		"kpi_runs",
		metric.WithDescription("Pipeline runs by final status"),
	)
	if err != nil {
		return nil, err
	}

	m := &PipelineMetrics{
		RowsLoaded:   rowsLoaded,
		RowsDropped:  rowsDropped,
		Outliers:     outliers,
		StepDuration: stepDuration,
		Runs:         runs,
	}

	if registry != nil {
		m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kpi_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		})
		if err := registry.Register(m.lastSuccess); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordRowsLoaded records the row count of a loaded table
func (m *PipelineMetrics) RecordRowsLoaded(ctx context.Context, table string, rows int) {
	if m == nil {
		return
	}
	m.RowsLoaded.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("table", table)))
}

// RecordRowsDropped records rows removed from a table for a reason
func (m *PipelineMetrics) RecordRowsDropped(ctx context.Context, table, reason string, rows int) {
	if m == nil || rows == 0 {
		return
	}
	m.RowsDropped.Add(ctx, int64(rows), metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("reason", reason),
	))
}

// RecordOutliers records outliers flagged in one column
func (m *PipelineMetrics) RecordOutliers(ctx context.Context, table, column string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Outliers.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("column", column),
	))
}

// RecordStep records a step duration with its outcome
func (m *PipelineMetrics) RecordStep(ctx context.Context, stepID string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.StepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("step.id", stepID),
		attribute.String("status", status),
	))
}

// RecordRun records a finished run
func (m *PipelineMetrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == "completed" && m.lastSuccess != nil {
		m.lastSuccess.SetToCurrentTime()
	}
}
