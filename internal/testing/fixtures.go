package testing

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Layouts used by the fixture writers, matching common vendor exports.
const (
	LayoutISO      = "2006-01-02 15:04:05.000"
	LayoutDayFirst = "02.01.2006 15:04:05.000"
	LayoutDotted   = "2006.01.02 15:04:05"
)

// WriteCSV writes header and rows to dir/name and returns the path.
func WriteCSV(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	return path
}

// PriceRows returns one row per timestamp with a time column rendered in
// layout followed by the given constant payload fields.
func PriceRows(layout string, times []time.Time, payload ...string) [][]string {
	rows := make([][]string, len(times))
	for i, ts := range times {
		rows[i] = append([]string{ts.Format(layout)}, payload...)
	}
	return rows
}

// Series returns n timestamps starting at start, step apart.
func Series(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}
