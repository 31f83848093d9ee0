// Package align filters candidate chunks against a reference event series.
//
// Each reference timestamp t defines a window [t-Δ, t+Δ], inclusive at both
// ends. A price record is kept iff its timestamp falls inside the window of
// the latest reference timestamp whose window start is not after it.
package align

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xtxerr/tickstore/internal/chunk"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/source"
	"github.com/xtxerr/tickstore/internal/timecol"
)

// Window is a closed interval around one reference timestamp.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside w, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ReferenceSeries is an immutable, sorted set of reference timestamps and the
// windows derived from them. It is safe for concurrent use.
type ReferenceSeries struct {
	times   []time.Time
	windows []Window
	delta   time.Duration
}

// NewReferenceSeries copies and sorts times and derives one window per
// timestamp with half-width delta.
func NewReferenceSeries(times []time.Time, delta time.Duration) (*ReferenceSeries, error) {
	if delta < 0 {
		return nil, errors.NewInvalidValue("window", delta, "must not be negative")
	}

	sorted := make([]time.Time, len(times))
	for i, t := range times {
		sorted[i] = t.UTC()
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	windows := make([]Window, len(sorted))
	for i, t := range sorted {
		windows[i] = Window{Start: t.Add(-delta), End: t.Add(delta)}
	}

	return &ReferenceSeries{times: sorted, windows: windows, delta: delta}, nil
}

// Len returns the number of reference timestamps.
func (r *ReferenceSeries) Len() int {
	return len(r.times)
}

// Delta returns the window half-width.
func (r *ReferenceSeries) Delta() time.Duration {
	return r.delta
}

// Times returns a copy of the sorted reference timestamps.
func (r *ReferenceSeries) Times() []time.Time {
	return append([]time.Time(nil), r.times...)
}

// Windows returns a copy of the derived windows, ordered by start.
func (r *ReferenceSeries) Windows() []Window {
	return append([]Window(nil), r.windows...)
}

// Contains reports whether t falls in any window.
func (r *ReferenceSeries) Contains(t time.Time) bool {
	j := r.asOf(t)
	return j >= 0 && !t.After(r.windows[j].End)
}

// asOf returns the index of the last window whose start is not after t,
// or -1.
func (r *ReferenceSeries) asOf(t time.Time) int {
	return sort.Search(len(r.windows), func(i int) bool {
		return r.windows[i].Start.After(t)
	}) - 1
}

// LoadReference reads every timestamp of the named column from path.
// An empty column name selects the first recognized time column. Rows whose
// timestamp does not parse are skipped.
func LoadReference(path, column string, delta time.Duration, opts source.Options) (*ReferenceSeries, error) {
	src, err := source.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	defer src.Close()

	header := src.Header()
	col, idx, ok := timecol.Find(header)
	if column != "" {
		idx = -1
		for i, h := range header {
			if h == column {
				idx = i
				break
			}
		}
		if c, found := timecol.Lookup(column); found {
			col = c
		} else {
			col = timecol.Column{Header: column, Name: column, Role: timecol.RoleEvent, Formats: allFormats}
		}
		ok = idx >= 0
	}
	if !ok {
		return nil, errors.NewSchema(path, header)
	}

	var (
		times    []time.Time
		unparsed int
	)
	for seq := int64(1); ; seq++ {
		rows, err := src.Next(readBatch)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference: %w", err)
		}
		c := chunk.New(path, seq, header, rows)
		unparsed += c.ParseTimes(col, idx)
		times = append(times, c.Times...)
	}

	logging.Component("align").Info("reference series loaded",
		"file", path,
		"column", col.Header,
		"timestamps", len(times),
		"unparsed", unparsed,
		"window", delta)

	return NewReferenceSeries(times, delta)
}

const readBatch = 50000

var allFormats = []timecol.Format{
	timecol.FormatISO,
	timecol.FormatDotted,
	timecol.FormatDayFirst,
	timecol.FormatCompact,
}
