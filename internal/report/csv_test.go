package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpicli/internal/config"
)

func setupPaths(t *testing.T) *config.Paths {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	return config.NewPaths(cfg)
}

func readCSV(t *testing.T, path string) ([][]string, bool) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	bom := bytes.HasPrefix(data, utf8BOM)
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	return records, bom
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	tests := []struct {
		name    string
		bom     bool
		file    string
		headers []string
		records [][]string
	}{
		{
			name:    "with BOM",
			bom:     true,
			file:    "metric.csv",
			headers: []string{"network_id", "value"},
			records: [][]string{{"N1", "1.5"}, {"N2", "2"}},
		},
		{
			name:    "without BOM",
			file:    "plain.csv",
			headers: []string{"a"},
			records: [][]string{{"x,y"}},
		},
		{
			name:    "header only",
			file:    "empty.csv",
			headers: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := setupPaths(t)
			w := NewCSVWriter(paths, tt.bom, nil)

			path, err := w.WriteSimpleCSV(tt.file, tt.headers, tt.records)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(paths.TablesDir, tt.file), path)

			got, bom := readCSV(t, path)
			assert.Equal(t, tt.bom, bom)
			assert.Equal(t, append([][]string{tt.headers}, tt.records...), got)
		})
	}
}

func TestCSVWriter_Append(t *testing.T) {
	w := NewCSVWriter(setupPaths(t), true, nil)

	path, err := w.WriteSimpleCSV("log.csv", []string{"n"}, [][]string{{"1"}})
	require.NoError(t, err)
	_, err = w.WriteCSV("log.csv", WriteOptions{Records: [][]string{{"2"}}, Append: true})
	require.NoError(t, err)

	got, bom := readCSV(t, path)
	assert.True(t, bom)
	assert.Equal(t, [][]string{{"n"}, {"1"}, {"2"}}, got)
}

func TestCSVWriter_AbsolutePath(t *testing.T) {
	w := NewCSVWriter(setupPaths(t), false, nil)
	target := filepath.Join(t.TempDir(), "nested", "abs.csv")

	path, err := w.WriteSimpleCSV(target, []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, target, path)
	assert.FileExists(t, target)
}

func TestStreamWriter(t *testing.T) {
	w := NewCSVWriter(setupPaths(t), false, nil)

	stream, err := w.CreateStreamWriter("stream.csv", []string{"id", "value"})
	require.NoError(t, err)
	for _, rec := range [][]string{{"1", "a"}, {"2", "b"}} {
		require.NoError(t, stream.WriteRecord(rec))
	}
	require.NoError(t, stream.Close())

	got, _ := readCSV(t, stream.Path())
	assert.Equal(t, [][]string{{"id", "value"}, {"1", "a"}, {"2", "b"}}, got)
}

func TestCSVWriter_WriteFrame(t *testing.T) {
	w := NewCSVWriter(setupPaths(t), true, nil)
	df := dataframe.LoadRecords([][]string{
		{"install_id", "network_id"},
		{"I1", "N1"},
		{"I2", "N2"},
	}, dataframe.HasHeader(true))

	path, err := w.WriteFrame("cleaned_installs.csv", df)
	require.NoError(t, err)

	got, bom := readCSV(t, path)
	assert.True(t, bom)
	assert.Equal(t, [][]string{{"install_id", "network_id"}, {"I1", "N1"}, {"I2", "N2"}}, got)
}
