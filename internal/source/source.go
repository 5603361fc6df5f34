package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/sync/errgroup"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// MissingValues are the cell spellings loaded as missing
var MissingValues = []string{"", "NA", "NaN", "nan", "null", "NULL", "<nil>"}

// Loader reads one raw fact table. Every cell is loaded as a string;
// typing is the cleaner's job.
type Loader interface {
	Name() string
	Load(ctx context.Context, table domain.TableName) (dataframe.DataFrame, error)
	Close() error
}

// Tables holds the loaded frames keyed by table
type Tables map[domain.TableName]dataframe.DataFrame

// New returns the loader for the configured input format
func New(cfg config.InputConfig, paths *config.Paths, logger *slog.Logger) (Loader, error) {
	switch cfg.Format {
	case "csv", "":
		files, err := ResolveInputFiles(paths.InputDir, map[domain.TableName]string{
			domain.TableAdSpend:  cfg.AdSpendFile,
			domain.TableInstalls: cfg.InstallsFile,
			domain.TablePayouts:  cfg.PayoutsFile,
			domain.TableRevenue:  cfg.RevenueFile,
		})
		if err != nil {
			return nil, err
		}
		return NewCSVSource(files, logger), nil
	case "xlsx":
		return NewXLSXSource(paths.GetInputPath(cfg.Workbook), nil, logger), nil
	case "sql":
		return NewSQLSource(cfg.SQLDriver, cfg.SQLDSN, map[domain.TableName]string{
			domain.TableAdSpend:  cfg.AdSpendTable,
			domain.TableInstalls: cfg.InstallsTable,
			domain.TablePayouts:  cfg.PayoutsTable,
			domain.TableRevenue:  cfg.RevenueTable,
		}, logger)
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported input format %q", cfg.Format), nil)
	}
}

// LoadAll loads the four tables concurrently and validates their columns.
// The first failure cancels the remaining loads.
func LoadAll(ctx context.Context, loader Loader, logger *slog.Logger) (Tables, error) {
	logger = infrastructure.WithComponent(logger, "source")

	var (
		mu     sync.Mutex
		tables = make(Tables, len(domain.AllTables))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range domain.AllTables {
		g.Go(func() error {
			start := time.Now()
			df, err := loader.Load(gctx, table)
			if err != nil {
				return err
			}
			if err := ValidateColumns(table, df); err != nil {
				return err
			}

			logger.InfoContext(gctx, "Loaded table",
				slog.String("table", string(table)),
				slog.String("source", loader.Name()),
				slog.Int("rows", df.Nrow()),
				slog.Int("columns", df.Ncol()),
				slog.Duration("duration", time.Since(start)))

			mu.Lock()
			tables[table] = df
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// ValidateColumns checks that df carries every column the table requires.
// Extra columns are allowed.
func ValidateColumns(table domain.TableName, df dataframe.DataFrame) error {
	present := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		present[name] = true
	}
	for _, col := range table.RequiredColumns() {
		if !present[col] {
			return apperrors.NewSchemaError(string(table), col)
		}
	}
	return nil
}

// fromRecords builds a string-typed frame from a header row plus data rows
func fromRecords(table domain.TableName, records [][]string) (dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("table %s is empty", table), nil)
	}

	header := records[0]
	if len(records) == 1 {
		// gota cannot infer columns from zero rows, so build them directly
		cols := make([]series.Series, len(header))
		for i, name := range header {
			cols[i] = series.New([]string{}, series.String, name)
		}
		return dataframe.New(cols...), nil
	}

	df := dataframe.LoadRecords(records, loadOptions()...)
	if df.Err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("failed to parse table %s", table), df.Err)
	}
	return df, nil
}

func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(MissingValues),
	}
}
