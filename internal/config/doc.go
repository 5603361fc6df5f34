// Package config provides centralized configuration management for the KPI
// pipeline. It handles loading configuration from multiple sources, validation,
// and resolves the file system paths used by a run.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. YAML configuration file
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern KPI_<SECTION>_<FIELD>:
//
//	KPI_INPUT_FORMAT=sql
//	KPI_INPUT_SQL_DSN=file:kpi.db
//	KPI_CLEANING_FILL_POLICY=empty
//	KPI_ANALYSIS_GROUP_BY=network_id,country_id
//	KPI_LOGGING_LEVEL=debug
//
// # Path Management
//
//	cfg, err := config.Load("")
//	paths := config.NewPaths(cfg)
//	if err := paths.EnsureDirectories(); err != nil {
//	    return err
//	}
//	chart := paths.GetChartPath("profit_by_network.png")
package config
