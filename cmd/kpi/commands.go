package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kpicli/internal/app"
	"kpicli/internal/config"
	"kpicli/internal/kpi"
	"kpicli/internal/pipeline"
	"kpicli/internal/report"
	"kpicli/pkg/contracts"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	inputDir   string
	outputDir  string
	logLevel   string
}

// groupFlags select the grouping of a metric table
type groupFlags struct {
	groupBy []string
	agg     string
}

func newRootCmd(out, logOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "kpi",
		Short: "Marketing KPI and profit calculator",
		Long: `Compute user acquisition cost, revenue and payouts per install, retention
and profit from four tables: adspend, installs, payouts and revenue.

Inputs are read from CSV files, an xlsx workbook or a SQL database as
configured in kpi.yaml or KPI_* environment variables.`,
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML config file")
	pf.StringVar(&flags.inputDir, "input-dir", "", "Directory holding the input tables")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for charts, tables and the workbook")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(flags, logOut),
		newProfitCmd(flags, logOut),
		newMetricCmd(flags, logOut),
		newRetentionCmd(flags, logOut),
		newHypothesisCmd(flags, logOut),
	)
	return root
}

func newRunCmd(flags *globalFlags, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and write every report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, logOut, func(ctx context.Context, a *app.Application) error {
				state, err := a.Run(ctx, "")
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				report.PrintMetricTable(w, state.Grouped)
				fmt.Fprintln(w)
				report.PrintHypotheses(w, state.Hypotheses)
				report.PrintDistribution(w, state.DaysActive)

				fmt.Fprintf(w, "\nrun %s wrote %d files:\n", state.ID, len(state.Summary.Files()))
				for _, f := range state.Summary.Files() {
					fmt.Fprintf(w, "  %s\n", f)
				}
				return nil
			})
		},
	}
}

func newProfitCmd(flags *globalFlags, logOut io.Writer) *cobra.Command {
	gf := &groupFlags{}
	var rows bool

	cmd := &cobra.Command{
		Use:   "profit",
		Short: "Print profit grouped by the chosen dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCalculator(cmd, flags, logOut, func(cfg *config.Config, calc *kpi.Calculator) error {
				g, agg, err := gf.parse(cfg)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()

				if rows {
					profit, err := calc.TotalProfit()
					if err != nil {
						return err
					}
					report.PrintProfitRows(w, profit.Rows)
				}

				table, err := calc.GroupedProfit(g, agg)
				if err != nil {
					return err
				}
				report.PrintMetricTable(w, table)
				return nil
			})
		},
	}
	gf.register(cmd)
	cmd.Flags().BoolVar(&rows, "rows", false, "Also print the per network, country and day profit rows")
	return cmd
}

func newMetricCmd(flags *globalFlags, logOut io.Writer) *cobra.Command {
	gf := &groupFlags{}
	var name string

	cmd := &cobra.Command{
		Use:   "metric",
		Short: "Print one per-install metric grouped by the chosen dimensions",
		Long: `Print one per-install metric:

  uac       user acquisition cost
  revenue   revenue per install
  payouts   payouts per install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCalculator(cmd, flags, logOut, func(cfg *config.Config, calc *kpi.Calculator) error {
				g, agg, err := gf.parse(cfg)
				if err != nil {
					return err
				}
				table, err := calc.Metric(name, g, agg)
				if err != nil {
					return err
				}
				report.PrintMetricTable(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	gf.register(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", kpi.NameAcquisitionCost, "Metric to print: uac, revenue or payouts")
	return cmd
}

func newRetentionCmd(flags *globalFlags, logOut io.Writer) *cobra.Command {
	gf := &groupFlags{}
	var daysActive bool

	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Print the retention rate, or mean days active, per group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCalculator(cmd, flags, logOut, func(cfg *config.Config, calc *kpi.Calculator) error {
				g, _, err := gf.parse(cfg)
				if err != nil {
					return err
				}
				table, err := calc.UserRetentionRate(g, daysActive)
				if err != nil {
					return err
				}
				report.PrintMetricTable(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&gf.groupBy, "group-by", "g", nil, "Comma-separated grouping dimensions")
	cmd.Flags().BoolVar(&daysActive, "days-active", false, "Print mean days active instead of the retention rate")
	return cmd
}

func newHypothesisCmd(flags *globalFlags, logOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "hypothesis",
		Short: "Test the acquisition cost, retention and profit hypotheses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, logOut, func(ctx context.Context, a *app.Application) error {
				state, err := a.Run(ctx, pipeline.StepIDAnalysis)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				report.PrintHypotheses(w, state.Hypotheses)
				report.PrintDistribution(w, state.DaysActive)
				return nil
			})
		},
	}
}

func (gf *groupFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&gf.groupBy, "group-by", "g", nil, "Comma-separated grouping dimensions (default from config)")
	cmd.Flags().StringVarP(&gf.agg, "agg", "a", "", "Aggregation: mean or sum (default from config)")
}

// parse resolves the flags, falling back to the analysis section of cfg
func (gf *groupFlags) parse(cfg *config.Config) (kpi.GroupBy, kpi.Aggregation, error) {
	names := gf.groupBy
	if len(names) == 0 {
		names = cfg.Analysis.GroupBy
	}
	g, err := kpi.ParseGroupBy(names)
	if err != nil {
		return nil, "", err
	}

	aggName := gf.agg
	if aggName == "" {
		aggName = cfg.Analysis.Aggregation
	}
	agg, err := kpi.ParseAggregation(aggName)
	if err != nil {
		return nil, "", err
	}
	return g, agg, nil
}

// load reads the configuration and applies the command line overrides
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.inputDir != "" {
		cfg.Input.Dir = f.inputDir
	}
	if f.outputDir != "" {
		cfg.Output.Dir = f.outputDir
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp builds the application, runs fn under a context cancelled on
// SIGINT or SIGTERM and stops the application afterwards
func withApp(cmd *cobra.Command, flags *globalFlags, logOut io.Writer, fn func(context.Context, *app.Application) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	a, err := app.NewApplication(cfg, logOut)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, a)
	return errors.Join(runErr, a.Stop(context.Background()))
}

// withCalculator runs the pipeline through the kpi step and hands the
// calculator to fn
func withCalculator(cmd *cobra.Command, flags *globalFlags, logOut io.Writer, fn func(*config.Config, *kpi.Calculator) error) error {
	return withApp(cmd, flags, logOut, func(ctx context.Context, a *app.Application) error {
		state, err := a.Run(ctx, pipeline.StepIDKPI)
		if err != nil {
			return err
		}
		return fn(a.Config, state.Calculator)
	})
}
