package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestOTelInitialization tests OpenTelemetry initialization
func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	// default config: no tracer provider, noop tracer, metrics on
	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestOTelConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *OTelConfig
		wantErr bool
	}{
		{
			name: "stdout tracing",
			cfg:  &OTelConfig{ServiceName: "kpi-test", ServiceVersion: "1.0.0", TraceExporter: "stdout", TraceWriter: io.Discard},
		},
		{
			name: "metrics disabled",
			cfg:  &OTelConfig{ServiceName: "kpi-test", ServiceVersion: "1.0.0", TraceExporter: "none"},
		},
		{
			name:    "unknown exporter",
			cfg:     &OTelConfig{ServiceName: "kpi-test", TraceExporter: "jaeger"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers, err := InitializeOTel(tt.cfg, discardLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, providers.Tracer)
			assert.NotNil(t, providers.Meter)
			assert.NoError(t, providers.Shutdown(context.Background()))
		})
	}
}

func TestSpanExport(t *testing.T) {
	var out bytes.Buffer
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "kpi-test",
		ServiceVersion: "1.0.0",
		TraceExporter:  "stdout",
		TraceWriter:    &out,
	}, discardLogger())
	require.NoError(t, err)

	ctx, span := providers.Tracer.Start(context.Background(), "pipeline.step.clean")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	AddSpanEvent(ctx, "rows", map[string]int{"rows_in": 10, "rows_out": 8})
	RecordError(ctx, errors.New("boom"))
	span.End()

	require.NoError(t, providers.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "pipeline.step.clean")
	assert.Contains(t, out.String(), "rows_in")
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
	// helpers are safe without a recording span
	AddSpanEvent(context.Background(), "noop", map[string]int{"x": 1})
	RecordError(context.Background(), errors.New("ignored"))
}

func TestPipelineMetrics_Textfile(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreatePipelineMetrics(providers.Meter, providers.Registry)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRowsLoaded(ctx, "installs", 42)
	metrics.RecordRowsDropped(ctx, "installs", "duplicate", 2)
	metrics.RecordOutliers(ctx, "adspend", "value_usd", 1)
	metrics.RecordStep(ctx, "clean", 150*time.Millisecond, true)
	metrics.RecordRun(ctx, "completed")

	path := filepath.Join(t.TempDir(), "kpi.prom")
	require.NoError(t, providers.WriteMetricsTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "kpi_rows_loaded")
	assert.Contains(t, text, "kpi_rows_dropped")
	assert.Contains(t, text, "kpi_outliers")
	assert.Contains(t, text, "kpi_step_duration_seconds")
	assert.Contains(t, text, "kpi_runs")
	assert.Contains(t, text, "kpi_last_success_timestamp_seconds")
}

func TestPipelineMetrics_Disabled(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{ServiceName: "kpi-test", TraceExporter: "none"}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, providers.Registry)

	metrics, err := CreatePipelineMetrics(providers.Meter, providers.Registry)
	require.NoError(t, err)
	metrics.RecordRun(context.Background(), "completed")

	// nothing to write
	assert.NoError(t, providers.WriteMetricsTextfile(filepath.Join(t.TempDir(), "x.prom")))

	var nilMetrics *PipelineMetrics
	nilMetrics.RecordRowsLoaded(context.Background(), "installs", 1)
}
