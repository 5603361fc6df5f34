package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kpicli/internal/infrastructure"
)

// Runner executes the registered steps one after another
type Runner struct {
	registry *Registry
	tracer   *Tracer
	logger   *slog.Logger
}

// NewRunner creates a runner. A nil tracer disables spans and metrics.
func NewRunner(registry *Registry, tracer *Tracer, logger *slog.Logger) *Runner {
	if tracer == nil {
		tracer = NewTracer(nil, nil)
	}
	return &Runner{
		registry: registry,
		tracer:   tracer,
		logger:   infrastructure.WithComponent(logger, "pipeline"),
	}
}

// Run executes every step over state. Cancellation is checked before each
// step; the first failure fails the run and skips the remaining steps.
func (r *Runner) Run(ctx context.Context, state *RunState) error {
	steps := r.registry.List()
	ctx = infrastructure.WithRunID(ctx, state.ID)
	ctx, span := r.tracer.StartRun(ctx, state.ID, len(steps))

	for _, step := range steps {
		state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	state.Start()
	r.logger.InfoContext(ctx, "Run started", slog.Int("steps", len(steps)))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			serr := NewCancellationError(step.ID(), err)
			skipFrom(state, steps[i:], "run cancelled")
			state.Cancel(serr)
			r.logger.WarnContext(ctx, "Run cancelled", slog.String("step", step.ID()))
			r.tracer.EndRun(ctx, span, RunStatusCancelled, state.Duration())
			return serr
		}

		if err := r.runStep(ctx, step, state); err != nil {
			skipFrom(state, steps[i+1:], "previous step failed")

			status := RunStatusFailed
			if GetErrorType(err) == ErrorTypeCancellation {
				status = RunStatusCancelled
				state.Cancel(err)
			} else {
				state.Fail(err)
			}
			r.logger.ErrorContext(ctx, "Run failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			r.tracer.EndRun(ctx, span, status, state.Duration())
			return err
		}
	}

	state.Complete()
	r.logger.InfoContext(ctx, "Run completed", slog.Duration("duration", state.Duration()))
	r.tracer.EndRun(ctx, span, RunStatusCompleted, state.Duration())
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step, state *RunState) error {
	stepState := state.GetStep(step.ID())

	if err := step.Validate(state); err != nil {
		var serr *StepError
		if !errors.As(err, &serr) {
			serr = NewValidationError(step.ID(), err.Error())
		}
		stepState.Fail(serr)
		return serr
	}

	ctx, span := r.tracer.StartStep(ctx, state.ID, step)
	stepState.Start()
	r.logger.InfoContext(ctx, "Step started", slog.String("step", step.ID()))

	start := time.Now()
	err := step.Execute(ctx, state)
	duration := time.Since(start)

	if err != nil {
		var serr *StepError
		switch {
		case errors.As(err, &serr):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			serr = NewCancellationError(step.ID(), err)
		default:
			serr = NewExecutionError(step.ID(), err)
		}
		stepState.Fail(serr)
		r.tracer.EndStep(ctx, span, step.ID(), duration, serr)
		return serr
	}

	stepState.Complete()
	r.tracer.EndStep(ctx, span, step.ID(), duration, nil)
	r.logger.InfoContext(ctx, "Step completed",
		slog.String("step", step.ID()),
		slog.Duration("duration", duration))
	return nil
}

func skipFrom(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		if st := state.GetStep(step.ID()); st != nil {
			st.Skip(reason)
		}
	}
}
