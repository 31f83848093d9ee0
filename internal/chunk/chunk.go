// Package chunk defines the bounded record batch that flows from producers
// through alignment to the writer.
package chunk

import (
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/tickstore/internal/timecol"
)

// Chunk is an ordered batch of records read from one source file.
//
// Rows are kept as raw strings; only the time column is parsed. Once
// ParseTimes has run, Times is parallel to Rows.
type Chunk struct {
	// Source is the file the chunk was read from.
	Source string

	// Seq is the chunk's position within its source, starting at 1.
	Seq int64

	// Header holds the source column names.
	Header []string

	// Rows holds the records, each aligned with Header.
	Rows [][]string

	// TimeIndex is the position of the parsed time column, -1 if unparsed.
	TimeIndex int

	// TimeColumn is the recognized time column, valid when TimeIndex >= 0.
	TimeColumn timecol.Column

	// Format is the layout resolved for this chunk.
	Format timecol.Format

	// Times holds parsed timestamps, parallel to Rows.
	Times []time.Time

	// Unparsed counts rows dropped because their timestamp did not parse.
	Unparsed int
}

// New creates an unparsed chunk.
func New(source string, seq int64, header []string, rows [][]string) *Chunk {
	return &Chunk{
		Source:    source,
		Seq:       seq,
		Header:    header,
		Rows:      rows,
		TimeIndex: -1,
	}
}

// Len returns the number of rows.
func (c *Chunk) Len() int {
	return len(c.Rows)
}

// Parsed reports whether Times is populated for every row.
func (c *Chunk) Parsed() bool {
	return c.TimeIndex >= 0 && len(c.Times) == len(c.Rows)
}

// Index returns the position of a header name, or -1.
func (c *Chunk) Index(name string) int {
	for i, h := range c.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// ParseTimes resolves the format of column idx once, then parses every row
// with it. Rows that do not parse are removed and counted in Unparsed.
// It returns the number of rows removed by this call.
func (c *Chunk) ParseTimes(col timecol.Column, idx int) int {
	values := make([]string, 0, detectWindow(len(c.Rows)))
	for _, row := range c.Rows[:detectWindow(len(c.Rows))] {
		values = append(values, field(row, idx))
	}

	c.TimeIndex = idx
	c.TimeColumn = col
	c.Format = timecol.Detect(values, col.Formats)

	times := make([]time.Time, 0, len(c.Rows))
	kept := c.Rows[:0]
	dropped := 0
	for _, row := range c.Rows {
		t, err := c.Format.Parse(field(row, idx))
		if err != nil {
			dropped++
			continue
		}
		kept = append(kept, row)
		times = append(times, t)
	}

	c.Rows = kept
	c.Times = times
	c.Unparsed += dropped
	return dropped
}

// SortByTime orders rows by parsed timestamp, keeping the source order of
// equal timestamps.
func (c *Chunk) SortByTime() {
	if !c.Parsed() || sort.SliceIsSorted(c.Times, func(i, j int) bool { return c.Times[i].Before(c.Times[j]) }) {
		return
	}

	order := make([]int, len(c.Rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.Times[order[i]].Before(c.Times[order[j]])
	})

	rows := make([][]string, len(order))
	times := make([]time.Time, len(order))
	for dst, src := range order {
		rows[dst] = c.Rows[src]
		times[dst] = c.Times[src]
	}
	c.Rows = rows
	c.Times = times
}

// Keep returns a chunk holding only the rows at the given ascending
// positions. Header and time metadata are shared.
func (c *Chunk) Keep(positions []int) *Chunk {
	out := &Chunk{
		Source:     c.Source,
		Seq:        c.Seq,
		Header:     c.Header,
		Rows:       make([][]string, 0, len(positions)),
		TimeIndex:  c.TimeIndex,
		TimeColumn: c.TimeColumn,
		Format:     c.Format,
		Unparsed:   c.Unparsed,
	}
	if c.Parsed() {
		out.Times = make([]time.Time, 0, len(positions))
	}
	for _, p := range positions {
		out.Rows = append(out.Rows, c.Rows[p])
		if out.Times != nil {
			out.Times = append(out.Times, c.Times[p])
		}
	}
	return out
}

func detectWindow(n int) int {
	if n > 64 {
		return 64
	}
	return n
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
