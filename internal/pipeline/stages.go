package pipeline

import (
	"context"
	"log/slog"

	"kpicli/internal/analysis"
	"kpicli/internal/cleaning"
	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/internal/kpi"
	"kpicli/internal/report"
	"kpicli/internal/source"
)

// Step IDs, in execution order
const (
	StepIDLoad     = "load"
	StepIDClean    = "clean"
	StepIDKPI      = "kpi"
	StepIDAnalysis = "analysis"
	StepIDReport   = "report"
)

// Step names
const (
	StepNameLoad     = "Load source tables"
	StepNameClean    = "Clean tables"
	StepNameKPI      = "Calculate KPIs"
	StepNameAnalysis = "Test hypotheses"
	StepNameReport   = "Write reports"
)

// NewDefaultRegistry registers the full load, clean, kpi, analysis and
// report chain for cfg
func NewDefaultRegistry(cfg *config.Config, paths *config.Paths, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*Registry, error) {
	kpiStep, err := NewKPIStep(cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	for _, step := range []Step{
		NewLoadStep(cfg.Input, paths, metrics, logger),
		NewCleanStep(cleaning.OptionsFromConfig(cfg.Cleaning), metrics, logger),
		kpiStep,
		NewAnalysisStep(cfg.Analysis.Alpha, logger),
		NewReportStep(cfg.Output, paths, logger),
	} {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// LoadStep reads the four raw tables
type LoadStep struct {
	BaseStep
	input   config.InputConfig
	paths   *config.Paths
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewLoadStep creates the load step
func NewLoadStep(input config.InputConfig, paths *config.Paths, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *LoadStep {
	return &LoadStep{
		BaseStep: NewBaseStep(StepIDLoad, StepNameLoad),
		input:    input,
		paths:    paths,
		metrics:  metrics,
		logger:   logger,
	}
}

// Validate has nothing to check; the source reports missing inputs
func (s *LoadStep) Validate(*RunState) error { return nil }

// Execute loads every table into state.Raw
func (s *LoadStep) Execute(ctx context.Context, state *RunState) error {
	loader, err := source.New(s.input, s.paths, s.logger)
	if err != nil {
		return err
	}
	defer loader.Close()

	tables, err := source.LoadAll(ctx, loader, s.logger)
	if err != nil {
		return err
	}

	counts := make(map[string]int, len(tables))
	for table, df := range tables {
		counts[string(table)] = df.Nrow()
		s.metrics.RecordRowsLoaded(ctx, string(table), df.Nrow())
	}
	infrastructure.AddSpanEvent(ctx, "tables.loaded", counts)

	state.Raw = tables
	return nil
}

// CleanStep types and filters the raw tables
type CleanStep struct {
	BaseStep
	cleaner *cleaning.Cleaner
	metrics *infrastructure.PipelineMetrics
}

// NewCleanStep creates the clean step
func NewCleanStep(opts cleaning.Options, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *CleanStep {
	return &CleanStep{
		BaseStep: NewBaseStep(StepIDClean, StepNameClean),
		cleaner:  cleaning.NewCleaner(opts, logger),
		metrics:  metrics,
	}
}

// Validate requires the raw tables
func (s *CleanStep) Validate(state *RunState) error {
	if len(state.Raw) == 0 {
		return NewValidationError(s.ID(), "no raw tables loaded")
	}
	return nil
}

// Execute cleans every table into state.Cleaned
func (s *CleanStep) Execute(ctx context.Context, state *RunState) error {
	cleaned, reports, err := s.cleaner.CleanAll(ctx, state.Raw)
	if err != nil {
		return err
	}

	for _, rep := range reports {
		if rep.DuplicatesDropped {
			s.metrics.RecordRowsDropped(ctx, rep.Table, "duplicate", rep.Duplicates)
		}
		s.metrics.RecordRowsDropped(ctx, rep.Table, "missing", rep.DroppedMissing)
		s.metrics.RecordRowsDropped(ctx, rep.Table, "outlier", rep.OutlierRowsRemoved)
		for column, n := range rep.Outliers {
			s.metrics.RecordOutliers(ctx, rep.Table, column, n)
		}
		infrastructure.AddSpanEvent(ctx, "table.cleaned", map[string]int{
			"rows_in":  rep.RowsIn,
			"rows_out": rep.RowsOut,
		})
	}

	state.Cleaned = cleaned
	state.Cleaning = reports
	return nil
}

// KPIStep computes the per-install metrics, retention and profit
type KPIStep struct {
	BaseStep
	groupBy kpi.GroupBy
	agg     kpi.Aggregation
	logger  *slog.Logger
}

// NewKPIStep creates the kpi step, rejecting an invalid grouping
func NewKPIStep(cfg config.AnalysisConfig, logger *slog.Logger) (*KPIStep, error) {
	g, err := kpi.ParseGroupBy(cfg.GroupBy)
	if err != nil {
		return nil, err
	}
	agg, err := kpi.ParseAggregation(cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	return &KPIStep{
		BaseStep: NewBaseStep(StepIDKPI, StepNameKPI),
		groupBy:  g,
		agg:      agg,
		logger:   logger,
	}, nil
}

// Validate requires the cleaned tables
func (s *KPIStep) Validate(state *RunState) error {
	if len(state.Cleaned) == 0 {
		return NewValidationError(s.ID(), "no cleaned tables")
	}
	return nil
}

// Execute fills the calculator, metric tables, retention facts and profit
func (s *KPIStep) Execute(ctx context.Context, state *RunState) error {
	inputs, err := kpi.InputsFromFrames(state.Cleaned)
	if err != nil {
		return err
	}
	calc := kpi.NewCalculator(inputs, s.logger)

	profit, err := calc.TotalProfit()
	if err != nil {
		return err
	}
	grouped, err := calc.GroupedProfit(s.groupBy, s.agg)
	if err != nil {
		return err
	}

	var metrics []*kpi.MetricTable
	for _, name := range []string{kpi.NameAcquisitionCost, kpi.NameRevenue, kpi.NamePayouts} {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := calc.Metric(name, s.groupBy, s.agg)
		if err != nil {
			return err
		}
		metrics = append(metrics, t)
	}
	for _, daysActive := range []bool{false, true} {
		t, err := calc.UserRetentionRate(s.groupBy, daysActive)
		if err != nil {
			return err
		}
		metrics = append(metrics, t)
	}

	facts, _ := calc.RetentionFacts()
	kpi.SortRetentionFacts(facts)

	infrastructure.AddSpanEvent(ctx, "kpi.calculated", map[string]int{
		"profit_rows":  len(profit.Rows),
		"grouped_rows": len(grouped.Rows),
		"installs":     len(facts),
	})

	state.Calculator = calc
	state.Profit = profit
	state.Grouped = grouped
	state.Metrics = metrics
	state.Retention = facts
	return nil
}

// AnalysisStep runs the hypothesis chain and the days-active distribution
type AnalysisStep struct {
	BaseStep
	alpha  float64
	logger *slog.Logger
}

// NewAnalysisStep creates the analysis step
func NewAnalysisStep(alpha float64, logger *slog.Logger) *AnalysisStep {
	return &AnalysisStep{
		BaseStep: NewBaseStep(StepIDAnalysis, StepNameAnalysis),
		alpha:    alpha,
		logger:   infrastructure.WithComponent(logger, "analysis"),
	}
}

// Validate requires assembled profit rows
func (s *AnalysisStep) Validate(state *RunState) error {
	if state.Profit == nil {
		return NewValidationError(s.ID(), "no profit rows")
	}
	return nil
}

// Execute tests the hypotheses. Too little data for a test is logged and
// leaves the remaining results out rather than failing the run.
func (s *AnalysisStep) Execute(ctx context.Context, state *RunState) error {
	results, err := analysis.NewUserRetentionAnalysis(state.Profit.Rows, s.alpha, s.logger).Run(ctx)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrTypeValidation) {
			return err
		}
		s.logger.WarnContext(ctx, "Hypothesis tests incomplete",
			slog.Int("tested", len(results)),
			slog.String("reason", err.Error()))
	}

	days := make([]int, len(state.Retention))
	for i, f := range state.Retention {
		days[i] = f.DaysActive
	}
	dist := analysis.DaysActiveDistribution(days)
	if dist.Clamped > 0 {
		s.logger.WarnContext(ctx, "Days active values clamped",
			slog.Int64("clamped", dist.Clamped))
	}

	state.Hypotheses = results
	state.DaysActive = dist
	return nil
}

// ReportStep writes charts, tables and the workbook
type ReportStep struct {
	BaseStep
	reporter *report.Reporter
}

// NewReportStep creates the report step
func NewReportStep(cfg config.OutputConfig, paths *config.Paths, logger *slog.Logger) *ReportStep {
	return &ReportStep{
		BaseStep: NewBaseStep(StepIDReport, StepNameReport),
		reporter: report.NewReporter(cfg, paths, logger),
	}
}

// Validate requires assembled profit rows
func (s *ReportStep) Validate(state *RunState) error {
	if state.Profit == nil {
		return NewValidationError(s.ID(), "no profit rows")
	}
	return nil
}

// Execute writes every enabled report
func (s *ReportStep) Execute(ctx context.Context, state *RunState) error {
	summary, err := s.reporter.Write(ctx, state.ReportData())
	state.Summary = summary
	return err
}
