package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"

	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// XLSXSource reads each table from a sheet of one workbook
type XLSXSource struct {
	path   string
	sheets map[domain.TableName]string
	logger *slog.Logger
}

// NewXLSXSource creates a workbook loader. A nil sheets map uses the table
// names as sheet names.
func NewXLSXSource(path string, sheets map[domain.TableName]string, logger *slog.Logger) *XLSXSource {
	if sheets == nil {
		sheets = make(map[domain.TableName]string, len(domain.AllTables))
		for _, t := range domain.AllTables {
			sheets[t] = string(t)
		}
	}
	return &XLSXSource{
		path:   path,
		sheets: sheets,
		logger: infrastructure.WithComponent(logger, "source.xlsx"),
	}
}

// Name implements Loader
func (s *XLSXSource) Name() string { return "xlsx" }

// Load implements Loader. The workbook is opened per call so concurrent
// loads never share an excelize handle.
func (s *XLSXSource) Load(ctx context.Context, table domain.TableName) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	sheet, ok := s.sheets[table]
	if !ok {
		return dataframe.DataFrame{}, apperrors.NewNotFoundError(fmt.Sprintf("sheet for table %s", table))
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to open workbook %s", s.path), err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return dataframe.DataFrame{}, apperrors.NewNotFoundError(fmt.Sprintf("sheet %s in %s", sheet, s.path))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %s", sheet), err)
	}

	s.logger.DebugContext(ctx, "Read sheet",
		slog.String("table", string(table)),
		slog.String("sheet", sheet),
		slog.Int("rows", len(rows)))

	return fromRecords(table, padRows(rows))
}

// Close implements Loader
func (s *XLSXSource) Close() error { return nil }

// padRows widens short rows to the header width; excelize trims trailing
// empty cells.
func padRows(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	width := len(rows[0])
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		} else if len(row) > width {
			row = row[:width]
		}
		out = append(out, row)
	}
	return out
}
