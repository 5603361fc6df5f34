// Package app builds the process-wide pieces of a KPI run.
//
// An Application owns the logger, the OpenTelemetry providers and the
// pipeline metrics for one configuration. Run executes the default step
// chain, optionally stopping after a named step so that subcommands can
// reuse the loaded and calculated state; Stop writes the metrics textfile
// and releases what NewApplication opened. The package never exits the
// process; errors go back to the caller.
package app
