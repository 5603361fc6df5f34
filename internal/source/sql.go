package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
	"kpicli/pkg/contracts/domain"
)

// driverNames maps the configured driver to its database/sql name
var driverNames = map[string]string{
	"sqlite": "sqlite",
	"pgx":    "pgx",
	"mysql":  "mysql",
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads each table with a full-table SELECT
type SQLSource struct {
	driver string
	db     *sql.DB
	tables map[domain.TableName]string
	logger *slog.Logger
}

// NewSQLSource opens a connection pool for driver (sqlite, pgx or mysql).
// Table names must be plain identifiers.
func NewSQLSource(driver, dsn string, tables map[domain.TableName]string, logger *slog.Logger) (*SQLSource, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported sql driver %q", driver), nil)
	}
	for table, ident := range tables {
		if !identPattern.MatchString(ident) {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid table name %q for %s", ident, table), nil)
		}
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open database", err)
	}

	return &SQLSource{
		driver: driver,
		db:     db,
		tables: tables,
		logger: infrastructure.WithComponent(logger, "source.sql"),
	}, nil
}

// Name implements Loader
func (s *SQLSource) Name() string { return "sql:" + s.driver }

// Load implements Loader
func (s *SQLSource) Load(ctx context.Context, table domain.TableName) (dataframe.DataFrame, error) {
	ident, ok := s.tables[table]
	if !ok {
		return dataframe.DataFrame{}, apperrors.NewNotFoundError(fmt.Sprintf("sql table for %s", table))
	}

	query := "SELECT * FROM " + ident
	s.logger.DebugContext(ctx, "Querying table", slog.String("table", string(table)), slog.String("query", query))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to query %s", ident), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to read columns of %s", ident), err)
	}

	records := [][]string{cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to scan %s", ident), err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("failed to iterate %s", ident), err)
	}

	return fromRecords(table, records)
}

// Close implements Loader
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// formatValue renders a scanned driver value as a raw cell
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(domain.DateLayout)
		}
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
