package align

import (
	"github.com/xtxerr/tickstore/internal/chunk"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/timecol"
)

// Result summarizes one Align call.
type Result struct {
	Input    int
	Unparsed int
	Kept     int
}

// Dropped returns the rows removed by alignment, excluding unparsed rows.
func (r Result) Dropped() int {
	return r.Input - r.Unparsed - r.Kept
}

// Align returns the rows of c that fall within a reference window, ordered
// by timestamp. The input chunk is not modified.
//
// A nil reference, or a chunk whose time column is an event column, passes
// through unfiltered but still parsed and sorted. A chunk without any
// recognized time column fails with errors.ErrSchema.
func Align(ref *ReferenceSeries, c *chunk.Chunk) (*chunk.Chunk, Result, error) {
	res := Result{Input: c.Len()}

	col, idx, ok := timecol.Find(c.Header)
	if !ok {
		return nil, res, errors.NewSchema(c.Source, c.Header)
	}

	work := chunk.New(c.Source, c.Seq, c.Header, append([][]string(nil), c.Rows...))
	work.ParseTimes(col, idx)
	work.SortByTime()
	res.Unparsed = work.Unparsed

	if ref == nil || col.Role == timecol.RoleEvent {
		res.Kept = work.Len()
		return work, res, nil
	}

	keep := merge(ref.windows, work)
	out := work.Keep(keep)
	res.Kept = out.Len()
	return out, res, nil
}

// merge walks the sorted windows and the sorted candidates once. For each
// candidate, j is the last window whose start is not after it.
func merge(windows []Window, c *chunk.Chunk) []int {
	keep := make([]int, 0, c.Len())
	j := -1
	for i, t := range c.Times {
		for j+1 < len(windows) && !windows[j+1].Start.After(t) {
			j++
		}
		if j >= 0 && !t.After(windows[j].End) {
			keep = append(keep, i)
		}
	}
	return keep
}
