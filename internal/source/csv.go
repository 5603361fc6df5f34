package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-gota/gota/dataframe"

	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// CSVSource reads each table from its own CSV file
type CSVSource struct {
	files  map[domain.TableName]string
	logger *slog.Logger
}

// NewCSVSource creates a CSV loader over resolved file paths
func NewCSVSource(files map[domain.TableName]string, logger *slog.Logger) *CSVSource {
	return &CSVSource{
		files:  files,
		logger: infrastructure.WithComponent(logger, "source.csv"),
	}
}

// Name implements Loader
func (s *CSVSource) Name() string { return "csv" }

// Load implements Loader
func (s *CSVSource) Load(ctx context.Context, table domain.TableName) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	path, ok := s.files[table]
	if !ok {
		return dataframe.DataFrame{}, apperrors.NewNotFoundError(fmt.Sprintf("input file for table %s", table))
	}

	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	s.logger.DebugContext(ctx, "Reading CSV", slog.String("table", string(table)), slog.String("path", path))

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("failed to parse %s", path), err).
			WithContext("table", string(table))
	}
	return fromRecords(table, records)
}

// Close implements Loader
func (s *CSVSource) Close() error { return nil }
