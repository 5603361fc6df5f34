package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the resolved file system locations for a run.
type Paths struct {
	InputDir  string
	OutputDir string
	ChartsDir string
	TablesDir string
	LogsDir   string
	Workbook  string
}

// NewPaths resolves the input and output locations from cfg.
func NewPaths(cfg *Config) *Paths {
	out := cfg.Output.Dir
	return &Paths{
		InputDir:  cfg.Input.Dir,
		OutputDir: out,
		ChartsDir: filepath.Join(out, ChartsSubdir),
		TablesDir: filepath.Join(out, TablesSubdir),
		LogsDir:   filepath.Join(out, LogsSubdir),
		Workbook:  filepath.Join(out, WorkbookFileName),
	}
}

// EnsureDirectories creates all output directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.OutputDir,
		p.ChartsDir,
		p.TablesDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// GetInputPath returns the path of an input file
func (p *Paths) GetInputPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(p.InputDir, filename)
}

// GetChartPath returns the path of a rendered chart
func (p *Paths) GetChartPath(filename string) string {
	return filepath.Join(p.ChartsDir, filename)
}

// GetTablePath returns the path of an exported CSV table
func (p *Paths) GetTablePath(filename string) string {
	return filepath.Join(p.TablesDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
