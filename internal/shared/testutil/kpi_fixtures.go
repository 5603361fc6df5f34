package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

// SampleTables returns a small, hand-checked data set for the four fact
// tables, header row first.
//
// Derived values used across package tests:
//   - N1/C1/2023-01-01: spend 100 over I1, I2 → acquisition cost 50
//   - N1/C1/2023-01-02: spend 60 over I3 → 60
//   - N2/C1/2023-01-01: spend 90 over I4, I5, I6 → 30
//   - N2/C2/2023-02-01: spend 40 over I7 → 40
//   - I1 has two same-day revenue rows (5 + 3)
//   - I3 revenue on 2023-01-05 and I5 payout on 2023-01-03 match no install
func SampleTables() map[string][][]string {
	return map[string][][]string{
		"adspend": {
			{"network_id", "country_id", "event_date", "value_usd"},
			{"N1", "C1", "2023-01-01", "100"},
			{"N1", "C1", "2023-01-02", "60"},
			{"N2", "C1", "2023-01-01", "90"},
			{"N2", "C2", "2023-02-01", "40"},
		},
		"installs": {
			{"install_id", "network_id", "country_id", "event_date"},
			{"I1", "N1", "C1", "2023-01-01"},
			{"I2", "N1", "C1", "2023-01-01"},
			{"I3", "N1", "C1", "2023-01-02"},
			{"I4", "N2", "C1", "2023-01-01"},
			{"I5", "N2", "C1", "2023-01-01"},
			{"I6", "N2", "C1", "2023-01-01"},
			{"I7", "N2", "C2", "2023-02-01"},
		},
		"payouts": {
			{"install_id", "event_date", "value_usd"},
			{"I1", "2023-01-01", "1"},
			{"I4", "2023-01-01", "2"},
			{"I5", "2023-01-03", "1"},
			{"I7", "2023-02-01", "0.5"},
		},
		"revenue": {
			{"install_id", "event_date", "value_usd"},
			{"I1", "2023-01-01", "5"},
			{"I1", "2023-01-01", "3"},
			{"I2", "2023-01-01", "4"},
			{"I4", "2023-01-01", "10"},
			{"I7", "2023-02-01", "2"},
			{"I3", "2023-01-05", "7"},
		},
	}
}

// WriteCSV writes records to dir/name and returns the path
func WriteCSV(t *testing.T, dir, name string, records [][]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteSampleCSVs writes SampleTables as <table>.csv files into a fresh
// temp directory and returns it.
func WriteSampleCSVs(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, records := range SampleTables() {
		WriteCSV(t, dir, name+".csv", records)
	}
	return dir
}
