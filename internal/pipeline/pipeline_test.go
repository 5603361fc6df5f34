package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpicli/internal/config"
	"kpicli/internal/infrastructure"
	"kpicli/internal/shared/testutil"
)

// fakeStep records whether it ran and returns err
type fakeStep struct {
	BaseStep
	err         error
	validateErr error
	ran         bool
}

func newFakeStep(id string) *fakeStep {
	return &fakeStep{BaseStep: NewBaseStep(id, "fake "+id)}
}

func (s *fakeStep) Validate(*RunState) error { return s.validateErr }

func (s *fakeStep) Execute(ctx context.Context, _ *RunState) error {
	s.ran = true
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func registryOf(t *testing.T, steps ...Step) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, s := range steps {
		require.NoError(t, r.Register(s))
	}
	return r
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newFakeStep("")))

	require.NoError(t, r.Register(newFakeStep("b")))
	require.NoError(t, r.Register(newFakeStep("a")))
	assert.Error(t, r.Register(newFakeStep("a")), "duplicate id")

	assert.Equal(t, []string{"b", "a"}, r.ListIDs())
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))

	step, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "fake a", step.Name())
	_, err = r.Get("c")
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	first, second := newFakeStep("first"), newFakeStep("second")
	logger, handler := testutil.NewTestLogger(t)

	state := NewRunState("")
	require.NoError(t, NewRunner(registryOf(t, first, second), nil, logger).Run(context.Background(), state))

	assert.NotEmpty(t, state.ID)
	assert.True(t, first.ran)
	assert.True(t, second.ran)
	assert.Equal(t, RunStatusCompleted, state.GetStatus())
	for _, id := range []string{"first", "second"} {
		assert.Equal(t, StepStatusCompleted, state.GetStep(id).GetStatus())
		assert.NotNil(t, state.GetStep(id).EndTime)
	}
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "Run completed")
	testutil.AssertLogAttr(t, handler, "step", "second")
	testutil.AssertNoErrors(t, handler)
}

func TestRunner_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		setup      func(s *fakeStep)
		wantType   ErrorType
		wantStatus RunStatus
		wantRan    bool
	}{
		{
			name:       "execution error",
			setup:      func(s *fakeStep) { s.err = boom },
			wantType:   ErrorTypeExecution,
			wantStatus: RunStatusFailed,
			wantRan:    true,
		},
		{
			name:       "validation error",
			setup:      func(s *fakeStep) { s.validateErr = errors.New("missing input") },
			wantType:   ErrorTypeValidation,
			wantStatus: RunStatusFailed,
		},
		{
			name:       "step error kept as is",
			setup:      func(s *fakeStep) { s.err = NewValidationError("middle", "bad payload") },
			wantType:   ErrorTypeValidation,
			wantStatus: RunStatusFailed,
			wantRan:    true,
		},
		{
			name:       "cancelled inside step",
			setup:      func(s *fakeStep) { s.err = context.Canceled },
			wantType:   ErrorTypeCancellation,
			wantStatus: RunStatusCancelled,
			wantRan:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, middle, last := newFakeStep("first"), newFakeStep("middle"), newFakeStep("last")
			tt.setup(middle)

			state := NewRunState("run-1")
			err := NewRunner(registryOf(t, first, middle, last), nil, nil).Run(context.Background(), state)
			require.Error(t, err)

			assert.Equal(t, tt.wantType, GetErrorType(err))
			assert.Equal(t, "middle", FailedStep(err))
			assert.Equal(t, tt.wantStatus, state.GetStatus())
			assert.Equal(t, err, state.Error)
			assert.Equal(t, tt.wantRan, middle.ran)
			assert.False(t, last.ran)

			assert.Equal(t, StepStatusCompleted, state.GetStep("first").GetStatus())
			assert.Equal(t, StepStatusFailed, state.GetStep("middle").GetStatus())
			assert.Equal(t, StepStatusSkipped, state.GetStep("last").GetStatus())
		})
	}
}

func TestRunner_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := newFakeStep("first"), newFakeStep("second")
	wrapped := &cancellingStep{fakeStep: first, cancel: cancel}

	state := NewRunState("")
	err := NewRunner(registryOf(t, wrapped, second), nil, nil).Run(ctx, state)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, "second", FailedStep(err))
	assert.False(t, second.ran)
	assert.Equal(t, RunStatusCancelled, state.GetStatus())
	assert.Equal(t, StepStatusCompleted, state.GetStep("first").GetStatus())
	assert.Equal(t, StepStatusSkipped, state.GetStep("second").GetStatus())
}

// cancellingStep succeeds and then cancels the run
type cancellingStep struct {
	*fakeStep
	cancel context.CancelFunc
}

func (s *cancellingStep) Execute(ctx context.Context, state *RunState) error {
	err := s.fakeStep.Execute(ctx, state)
	s.cancel()
	return err
}

func TestStepError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewExecutionError("report", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[execution] report: step execution failed: disk full", err.Error())
	assert.Equal(t, ErrorTypeExecution, GetErrorType(cause))
	assert.Equal(t, ErrorType(""), GetErrorType(nil))
	assert.Equal(t, "", FailedStep(cause))
}

func TestDefaultRegistry_InvalidGrouping(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.GroupBy = []string{"continent"}

	_, err := NewDefaultRegistry(cfg, config.NewPaths(cfg), nil, nil)
	assert.Error(t, err)
}

func TestDefaultRegistry_StepValidation(t *testing.T) {
	cfg := config.Default()
	registry, err := NewDefaultRegistry(cfg, config.NewPaths(cfg), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{StepIDLoad, StepIDClean, StepIDKPI, StepIDAnalysis, StepIDReport}, registry.ListIDs())

	empty := NewRunState("")
	for _, id := range []string{StepIDClean, StepIDKPI, StepIDAnalysis, StepIDReport} {
		step, err := registry.Get(id)
		require.NoError(t, err)
		assert.Equal(t, ErrorTypeValidation, GetErrorType(step.Validate(empty)), id)
	}
}

func TestDefaultRegistry_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Input.Dir = testutil.WriteSampleCSVs(t)
	cfg.Output.Dir = t.TempDir()
	paths := config.NewPaths(cfg)

	otelCfg := infrastructure.DefaultOTelConfig()
	providers, err := infrastructure.InitializeOTel(otelCfg, nil)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())
	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter, providers.Registry)
	require.NoError(t, err)

	_, handler := testutil.NewTestLogger(t)
	logger := slog.New(infrastructure.NewRunHandler(handler))
	registry, err := NewDefaultRegistry(cfg, paths, metrics, logger)
	require.NoError(t, err)

	state := NewRunState("")
	require.NoError(t, NewRunner(registry, NewTracer(providers, metrics), logger).Run(context.Background(), state))

	assert.Equal(t, RunStatusCompleted, state.GetStatus())
	assert.Len(t, state.Raw, 4)
	assert.Len(t, state.Cleaning, 4)
	assert.Len(t, state.Profit.Rows, 4)
	assert.Len(t, state.Metrics, 5)
	assert.Len(t, state.Retention, 7)
	assert.Len(t, state.Hypotheses, 3)
	assert.EqualValues(t, 7, state.DaysActive.Count)

	row, ok := state.Grouped.Lookup("N2")
	require.True(t, ok)
	assert.InDelta(t, -30.25, row.Value.Float64, 1e-9)

	require.NotNil(t, state.Summary)
	assert.Len(t, state.Summary.Tables, 7)
	assert.Len(t, state.Summary.Charts, 7)
	assert.FileExists(t, paths.Workbook)
	assert.FileExists(t, filepath.Join(paths.TablesDir, "profit.csv"))

	textfile := filepath.Join(t.TempDir(), "kpi.prom")
	require.NoError(t, providers.WriteMetricsTextfile(textfile))
	assert.FileExists(t, textfile)

	testutil.AssertLogAttr(t, handler, "run_id", state.ID)
	testutil.AssertNoErrors(t, handler)
}
