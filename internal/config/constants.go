package config

// Application constants
const (
	AppName   = "kpi"
	EnvPrefix = "KPI"

	DefaultInputDir  = "data"
	DefaultOutputDir = "output"

	// Output subdirectories
	ChartsSubdir = "charts"
	TablesSubdir = "tables"
	LogsSubdir   = "logs"

	WorkbookFileName = "kpi_report.xlsx"

	// Cleaning
	FillPolicyDrop       = "drop"
	FillPolicyEmpty      = "empty"
	FillPolicyError      = "error"
	DefaultIQRMultiplier = 1.5

	// Analysis
	DefaultAlpha = 0.05

	// Charts, in inches
	DefaultChartWidthInches  = 8.0
	DefaultChartHeightInches = 5.0

	// File permissions
	DirPermissions  = 0755
	FilePermissions = 0644
)
