// Package report turns a finished run into files and console output.
//
// Charts are PNGs rendered with gonum/plot, tables are CSV files (with an
// optional UTF-8 BOM for Excel) and the whole run is also written to a
// single xlsx workbook with a revenue share pie chart. Console helpers
// print grouped metrics and hypothesis verdicts as text tables.
package report
