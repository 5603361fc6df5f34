package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"kpicli/internal/infrastructure"
)

// Tracer instruments runs and steps with spans and pipeline metrics
type Tracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewTracer creates a tracer. Nil providers or metrics disable the
// corresponding instrumentation.
func NewTracer(providers *infrastructure.OTelProviders, metrics *infrastructure.PipelineMetrics) *Tracer {
	var tracer trace.Tracer
	if providers != nil && providers.Tracer != nil {
		tracer = providers.Tracer
	} else {
		tracer = tracenoop.NewTracerProvider().Tracer(infrastructure.MeterName)
	}
	return &Tracer{tracer: tracer, metrics: metrics}
}

// Metrics returns the pipeline metrics, nil when disabled
func (t *Tracer) Metrics() *infrastructure.PipelineMetrics {
	return t.metrics
}

// StartRun opens the span covering a whole run
func (t *Tracer) StartRun(ctx context.Context, runID string, steps int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.steps", steps),
		),
	)
}

// StartStep opens the span of one step
func (t *Tracer) StartStep(ctx context.Context, runID string, step Step) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", step.ID()),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", step.ID()),
			attribute.String("step.name", step.Name()),
		),
	)
}

// EndStep records the step outcome on its span and in the metrics
func (t *Tracer) EndStep(ctx context.Context, span trace.Span, stepID string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	t.metrics.RecordStep(ctx, stepID, duration, err == nil)
}

// EndRun records the final run status
func (t *Tracer) EndRun(ctx context.Context, span trace.Span, status RunStatus, duration time.Duration) {
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
	)
	if status != RunStatusCompleted {
		span.SetStatus(codes.Error, string(status))
	}
	span.End()
	t.metrics.RecordRun(ctx, string(status))
}
