package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"

	"kpicli/internal/config"
	apperrors "kpicli/internal/errors"
	"kpicli/internal/infrastructure"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes report tables below the tables directory
type CSVWriter struct {
	paths  *config.Paths
	bom    bool
	logger *slog.Logger
}

// NewCSVWriter creates a CSV writer. With bom set every file starts with
// a UTF-8 byte order mark so Excel detects the encoding.
func NewCSVWriter(paths *config.Paths, bom bool, logger *slog.Logger) *CSVWriter {
	return &CSVWriter{
		paths:  paths,
		bom:    bom,
		logger: infrastructure.WithComponent(logger, "report.csv"),
	}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers []string
	Records [][]string
	Append  bool
}

// WriteCSV writes data to a CSV file with the given options and returns
// the full path
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) (string, error) {
	fullPath := w.resolvePath(filePath)

	w.logger.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(fullPath), config.DirPermissions); err != nil {
		return "", apperrors.NewStorageError("failed to create directory", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if options.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(fullPath, flags, config.FilePermissions)
	if err != nil {
		return "", apperrors.NewStorageError("failed to open file", err)
	}
	defer file.Close()

	if w.bom && !options.Append {
		if _, err := file.Write(utf8BOM); err != nil {
			return "", fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)

	if !options.Append && len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return "", fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", apperrors.NewStorageError("failed to flush CSV", err)
	}
	return fullPath, nil
}

// WriteSimpleCSV writes a new CSV file with headers and records
func (w *CSVWriter) WriteSimpleCSV(filePath string, headers []string, records [][]string) (string, error) {
	return w.WriteCSV(filePath, WriteOptions{Headers: headers, Records: records})
}

// StreamWriter writes a CSV file one record at a time
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
	path   string
}

// CreateStreamWriter creates the file and writes the header row
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	fullPath := w.resolvePath(filePath)

	w.logger.Info("Creating CSV stream writer",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("header_count", len(headers)))

	if err := os.MkdirAll(filepath.Dir(fullPath), config.DirPermissions); err != nil {
		return nil, apperrors.NewStorageError("failed to create directory", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create file", err)
	}

	if w.bom {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer, path: fullPath}, nil
}

// WriteRecord writes a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Path returns the file being written
func (s *StreamWriter) Path() string {
	return s.path
}

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// WriteFrame writes a cleaned table with gota's own CSV writer
func (w *CSVWriter) WriteFrame(filePath string, df dataframe.DataFrame) (string, error) {
	fullPath := w.resolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), config.DirPermissions); err != nil {
		return "", apperrors.NewStorageError("failed to create directory", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", apperrors.NewStorageError("failed to create file", err)
	}
	defer file.Close()

	if w.bom {
		if _, err := file.Write(utf8BOM); err != nil {
			return "", fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	if err := df.WriteCSV(file); err != nil {
		return "", apperrors.NewStorageError(fmt.Sprintf("failed to write %s", filePath), err)
	}

	w.logger.Info("Wrote cleaned table",
		slog.String("full_path", fullPath),
		slog.Int("rows", df.Nrow()))
	return fullPath, nil
}

// resolvePath keeps absolute paths and places relative ones in the
// tables directory
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return w.paths.GetTablePath(filePath)
}
