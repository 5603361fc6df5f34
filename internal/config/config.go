package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "kpicli/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Input     InputConfig     `yaml:"input" envconfig:"INPUT"`
	Cleaning  CleaningConfig  `yaml:"cleaning" envconfig:"CLEANING"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Output    OutputConfig    `yaml:"output" envconfig:"OUTPUT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// InputConfig describes where the four fact tables are read from.
type InputConfig struct {
	Format       string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv xlsx sql"`
	Dir          string `yaml:"dir" envconfig:"DIR"`
	AdSpendFile  string `yaml:"adspend_file" envconfig:"ADSPEND_FILE" validate:"required"`
	InstallsFile string `yaml:"installs_file" envconfig:"INSTALLS_FILE" validate:"required"`
	PayoutsFile  string `yaml:"payouts_file" envconfig:"PAYOUTS_FILE" validate:"required"`
	RevenueFile  string `yaml:"revenue_file" envconfig:"REVENUE_FILE" validate:"required"`

	// Workbook is read when Format is xlsx; each table is a sheet named after it.
	Workbook string `yaml:"workbook" envconfig:"WORKBOOK" validate:"required_if=Format xlsx"`

	SQLDriver     string `yaml:"sql_driver" envconfig:"SQL_DRIVER" validate:"oneof=sqlite pgx mysql"`
	SQLDSN        string `yaml:"sql_dsn" envconfig:"SQL_DSN" validate:"required_if=Format sql"`
	AdSpendTable  string `yaml:"adspend_table" envconfig:"ADSPEND_TABLE" validate:"sqlident"`
	InstallsTable string `yaml:"installs_table" envconfig:"INSTALLS_TABLE" validate:"sqlident"`
	PayoutsTable  string `yaml:"payouts_table" envconfig:"PAYOUTS_TABLE" validate:"sqlident"`
	RevenueTable  string `yaml:"revenue_table" envconfig:"REVENUE_TABLE" validate:"sqlident"`
}

// CleaningConfig controls the table cleaner.
type CleaningConfig struct {
	FillPolicy     string  `yaml:"fill_policy" envconfig:"FILL_POLICY" validate:"oneof=drop empty error"`
	RemoveOutliers bool    `yaml:"remove_outliers" envconfig:"REMOVE_OUTLIERS"`
	IQRMultiplier  float64 `yaml:"iqr_multiplier" envconfig:"IQR_MULTIPLIER" validate:"gt=0"`
	StrictDates    bool    `yaml:"strict_dates" envconfig:"STRICT_DATES"`
	DropDuplicates bool    `yaml:"drop_duplicates" envconfig:"DROP_DUPLICATES"`
}

// AnalysisConfig controls grouping and the hypothesis tests.
type AnalysisConfig struct {
	Alpha       float64  `yaml:"alpha" envconfig:"ALPHA" validate:"gt=0,lt=1"`
	GroupBy     []string `yaml:"group_by" envconfig:"GROUP_BY" validate:"min=1,dive,oneof=network_id country_id install_id event_date year month year_and_month day_of_week"`
	Aggregation string   `yaml:"aggregation" envconfig:"AGGREGATION" validate:"oneof=mean sum"`
}

// OutputConfig controls which reports are produced and where.
type OutputConfig struct {
	Dir               string  `yaml:"dir" envconfig:"DIR" validate:"required"`
	Charts            bool    `yaml:"charts" envconfig:"CHARTS"`
	Workbook          bool    `yaml:"workbook" envconfig:"WORKBOOK"`
	CSV               bool    `yaml:"csv" envconfig:"CSV"`
	CleanedTables     bool    `yaml:"cleaned_tables" envconfig:"CLEANED_TABLES"`
	BOMPrefix         bool    `yaml:"bom_prefix" envconfig:"BOM_PREFIX"`
	ChartWidthInches  float64 `yaml:"chart_width_inches" envconfig:"CHART_WIDTH_INCHES" validate:"gt=0"`
	ChartHeightInches float64 `yaml:"chart_height_inches" envconfig:"CHART_HEIGHT_INCHES" validate:"gt=0"`
}

// TelemetryConfig contains tracing and metrics configuration
type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment   string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	TraceFile     string `yaml:"trace_file" envconfig:"TRACE_FILE"`
	MetricsFile   string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

var sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load builds the configuration from defaults, an optional YAML file and
// KPI_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// No default tags on the struct: envconfig only overrides what is set.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("failed to read config file %s", filePath), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.NewConfigError(fmt.Sprintf("failed to parse config file %s", filePath), err)
	}

	return nil
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Input.Format = strings.ToLower(strings.TrimSpace(c.Input.Format))
	c.Cleaning.FillPolicy = strings.ToLower(strings.TrimSpace(c.Cleaning.FillPolicy))
	c.Analysis.Aggregation = strings.ToLower(strings.TrimSpace(c.Analysis.Aggregation))
	for i, g := range c.Analysis.GroupBy {
		c.Analysis.GroupBy[i] = strings.TrimSpace(g)
	}
}

// Validate checks the struct tags and returns a config error naming the
// first offending field.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentPattern.MatchString(fl.Field().String())
	}); err != nil {
		return apperrors.NewConfigError("failed to register validator", err)
	}

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewConfigError(
				fmt.Sprintf("invalid value %v for %s (%s)", fe.Value(), fe.Namespace(), fe.Tag()), err)
		}
		return apperrors.NewConfigError("invalid configuration", err)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}

	locations := []string{
		"kpi.yaml",
		"configs/kpi.yaml",
		"../configs/kpi.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/kpi.log",
		},
		Input: InputConfig{
			Format:        "csv",
			Dir:           DefaultInputDir,
			AdSpendFile:   "adspend.csv",
			InstallsFile:  "installs.csv",
			PayoutsFile:   "payouts.csv",
			RevenueFile:   "revenue.csv",
			SQLDriver:     "sqlite",
			AdSpendTable:  "adspend",
			InstallsTable: "installs",
			PayoutsTable:  "payouts",
			RevenueTable:  "revenue",
		},
		Cleaning: CleaningConfig{
			FillPolicy:     FillPolicyDrop,
			RemoveOutliers: false,
			IQRMultiplier:  DefaultIQRMultiplier,
			StrictDates:    true,
			DropDuplicates: true,
		},
		Analysis: AnalysisConfig{
			Alpha:       DefaultAlpha,
			GroupBy:     []string{"network_id"},
			Aggregation: "mean",
		},
		Output: OutputConfig{
			Dir:               DefaultOutputDir,
			Charts:            true,
			Workbook:          true,
			CSV:               true,
			CleanedTables:     false,
			BOMPrefix:         false,
			ChartWidthInches:  DefaultChartWidthInches,
			ChartHeightInches: DefaultChartHeightInches,
		},
		Telemetry: TelemetryConfig{
			ServiceName:   AppName,
			Environment:   "development",
			TraceExporter: "none",
		},
	}
}
