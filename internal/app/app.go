package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"kpicli/internal/config"
	"kpicli/internal/infrastructure"
	"kpicli/internal/pipeline"
	"kpicli/pkg/contracts"
)

// Application wires configuration, logging and telemetry to the pipeline
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.PipelineMetrics

	closers []io.Closer
}

// NewApplication builds the logger and telemetry providers for cfg. Console
// log output goes to console.
func NewApplication(cfg *config.Config, console io.Writer) (*Application, error) {
	logger, logCloser, err := infrastructure.NewLogger(cfg.Logging, console)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		Config: cfg,
		Paths:  config.NewPaths(cfg),
		Logger: logger,
	}
	if logCloser != nil {
		app.closers = append(app.closers, logCloser)
	}

	logger.Info("Application starting",
		slog.String("version", contracts.Version),
		slog.String("input_format", cfg.Input.Format),
		slog.String("output_dir", app.Paths.OutputDir))

	otelCfg := &infrastructure.OTelConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: contracts.Version,
		Environment:    cfg.Telemetry.Environment,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		EnableMetrics:  true,
	}
	if cfg.Telemetry.TraceExporter == "stdout" && cfg.Telemetry.TraceFile != "" {
		f, err := createFile(cfg.Telemetry.TraceFile)
		if err != nil {
			app.closeAll()
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		app.closers = append(app.closers, f)
		otelCfg.TraceWriter = f
	}

	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	app.OTelProviders = providers

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter, providers.Registry)
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	app.Metrics = metrics

	return app, nil
}

// Registry returns the default step chain cut after the step with ID last.
// An empty last keeps every step.
func (a *Application) Registry(last string) (*pipeline.Registry, error) {
	full, err := pipeline.NewDefaultRegistry(a.Config, a.Paths, a.Metrics, a.Logger)
	if err != nil {
		return nil, err
	}
	if last == "" {
		return full, nil
	}
	if !full.Has(last) {
		return nil, fmt.Errorf("unknown step %q", last)
	}

	registry := pipeline.NewRegistry()
	for _, step := range full.List() {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
		if step.ID() == last {
			break
		}
	}
	return registry, nil
}

// Run executes the pipeline up to and including the step last and returns
// the run state, which is also returned alongside a failure.
func (a *Application) Run(ctx context.Context, last string) (*pipeline.RunState, error) {
	registry, err := a.Registry(last)
	if err != nil {
		return nil, err
	}

	state := pipeline.NewRunState("")
	runner := pipeline.NewRunner(registry, pipeline.NewTracer(a.OTelProviders, a.Metrics), a.Logger)
	if err := runner.Run(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Stop writes the metrics textfile, flushes telemetry and closes open files
func (a *Application) Stop(ctx context.Context) error {
	var errs []error

	if a.OTelProviders != nil {
		if err := a.OTelProviders.WriteMetricsTextfile(a.Config.Telemetry.MetricsFile); err != nil {
			errs = append(errs, err)
		}
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Logger.InfoContext(ctx, "Application stopped")
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), config.DirPermissions); err != nil {
		return nil, err
	}
	return os.Create(path)
}
