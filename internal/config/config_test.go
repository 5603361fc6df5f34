package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kpicli/internal/errors"
)

var configEnvVars = []string{
	"KPI_CONFIG",
	"KPI_LOGGING_LEVEL", "KPI_LOGGING_OUTPUT",
	"KPI_INPUT_FORMAT", "KPI_INPUT_DIR", "KPI_INPUT_WORKBOOK",
	"KPI_INPUT_SQL_DRIVER", "KPI_INPUT_SQL_DSN", "KPI_INPUT_REVENUE_TABLE",
	"KPI_CLEANING_FILL_POLICY", "KPI_CLEANING_REMOVE_OUTLIERS", "KPI_CLEANING_IQR_MULTIPLIER",
	"KPI_CLEANING_STRICT_DATES",
	"KPI_ANALYSIS_ALPHA", "KPI_ANALYSIS_GROUP_BY", "KPI_ANALYSIS_AGGREGATION",
	"KPI_OUTPUT_DIR", "KPI_OUTPUT_CHARTS",
	"KPI_TELEMETRY_TRACE_EXPORTER",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, envVar := range configEnvVars {
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kpi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		fileContent string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "default configuration with no env vars",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "csv", cfg.Input.Format)
				assert.Equal(t, "data", cfg.Input.Dir)
				assert.Equal(t, "drop", cfg.Cleaning.FillPolicy)
				assert.True(t, cfg.Cleaning.StrictDates)
				assert.True(t, cfg.Cleaning.DropDuplicates)
				assert.False(t, cfg.Cleaning.RemoveOutliers)
				assert.Equal(t, 1.5, cfg.Cleaning.IQRMultiplier)
				assert.Equal(t, 0.05, cfg.Analysis.Alpha)
				assert.Equal(t, []string{"network_id"}, cfg.Analysis.GroupBy)
				assert.Equal(t, "mean", cfg.Analysis.Aggregation)
				assert.Equal(t, "output", cfg.Output.Dir)
				assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
			},
		},
		{
			name: "environment overrides defaults",
			env: map[string]string{
				"KPI_CLEANING_FILL_POLICY":     "EMPTY",
				"KPI_CLEANING_REMOVE_OUTLIERS": "true",
				"KPI_ANALYSIS_GROUP_BY":        "network_id,country_id",
				"KPI_ANALYSIS_AGGREGATION":     "sum",
				"KPI_OUTPUT_CHARTS":            "false",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "empty", cfg.Cleaning.FillPolicy)
				assert.True(t, cfg.Cleaning.RemoveOutliers)
				assert.Equal(t, []string{"network_id", "country_id"}, cfg.Analysis.GroupBy)
				assert.Equal(t, "sum", cfg.Analysis.Aggregation)
				assert.False(t, cfg.Output.Charts)
				// untouched values keep their defaults
				assert.True(t, cfg.Cleaning.StrictDates)
			},
		},
		{
			name: "file overlays defaults",
			fileContent: `
input:
  dir: /srv/kpi
cleaning:
  iqr_multiplier: 3
analysis:
  alpha: 0.01
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/srv/kpi", cfg.Input.Dir)
				assert.Equal(t, "adspend.csv", cfg.Input.AdSpendFile)
				assert.Equal(t, 3.0, cfg.Cleaning.IQRMultiplier)
				assert.Equal(t, 0.01, cfg.Analysis.Alpha)
				assert.Equal(t, "drop", cfg.Cleaning.FillPolicy)
			},
		},
		{
			name: "environment wins over file",
			fileContent: `
cleaning:
  fill_policy: error
`,
			env: map[string]string{"KPI_CLEANING_FILL_POLICY": "drop"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "drop", cfg.Cleaning.FillPolicy)
			},
		},
		{
			name:    "sql input requires a dsn",
			env:     map[string]string{"KPI_INPUT_FORMAT": "sql"},
			wantErr: true,
		},
		{
			name: "sql input with dsn",
			env: map[string]string{
				"KPI_INPUT_FORMAT":     "sql",
				"KPI_INPUT_SQL_DRIVER": "pgx",
				"KPI_INPUT_SQL_DSN":    "postgres://localhost/kpi",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "pgx", cfg.Input.SQLDriver)
				assert.Equal(t, "postgres://localhost/kpi", cfg.Input.SQLDSN)
			},
		},
		{
			name:    "xlsx input requires a workbook",
			env:     map[string]string{"KPI_INPUT_FORMAT": "xlsx"},
			wantErr: true,
		},
		{
			name:    "unsafe table name",
			env:     map[string]string{"KPI_INPUT_REVENUE_TABLE": "revenue; DROP TABLE x"},
			wantErr: true,
		},
		{
			name:    "unknown fill policy",
			env:     map[string]string{"KPI_CLEANING_FILL_POLICY": "guess"},
			wantErr: true,
		},
		{
			name:    "alpha out of range",
			env:     map[string]string{"KPI_ANALYSIS_ALPHA": "1.5"},
			wantErr: true,
		},
		{
			name:    "unknown group by dimension",
			env:     map[string]string{"KPI_ANALYSIS_GROUP_BY": "network_id,campaign"},
			wantErr: true,
		},
		{
			name:    "invalid env value type",
			env:     map[string]string{"KPI_CLEANING_IQR_MULTIPLIER": "wide"},
			wantErr: true,
		},
		{
			name:        "malformed yaml",
			fileContent: "cleaning: [unterminated",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.fileContent != "" {
				path = writeConfigFile(t, tt.fileContent)
			} else {
				// keep getConfigFilePath from finding a stray kpi.yaml
				path = writeConfigFile(t, "{}")
			}

			cfg, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearConfigEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, "output:\n  dir: reports\n")
	t.Setenv("KPI_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "reports", cfg.Output.Dir)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_ErrorNamesField(t *testing.T) {
	cfg := Default()
	cfg.Output.ChartWidthInches = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ChartWidthInches")
}
