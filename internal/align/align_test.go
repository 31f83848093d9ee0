package align

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tickstore/internal/chunk"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/source"
)

func at(hms string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05.000", "2024-03-01 "+hms)
	if err != nil {
		panic(err)
	}
	return t
}

func mustRef(t *testing.T, delta time.Duration, times ...string) *ReferenceSeries {
	t.Helper()
	ts := make([]time.Time, len(times))
	for i, s := range times {
		ts[i] = at(s)
	}
	ref, err := NewReferenceSeries(ts, delta)
	require.NoError(t, err)
	return ref
}

func tickChunk(times ...string) *chunk.Chunk {
	rows := make([][]string, len(times))
	for i, s := range times {
		rows[i] = []string{"2024-03-01 " + s, "1.1", "1.0"}
	}
	return chunk.New("EURUSD-ticks.csv", 1, []string{"time", "ask", "bid"}, rows)
}

func timesOf(c *chunk.Chunk) []string {
	out := make([]string, len(c.Times))
	for i, t := range c.Times {
		out[i] = t.Format("15:04:05.000")
	}
	return out
}

func TestAlignKeepsInclusiveWindow(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000")
	in := tickChunk("08:58:59.000", "08:59:00.000", "09:00:00.000", "09:01:00.000", "09:01:01.000")

	out, res, err := Align(ref, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"08:59:00.000", "09:00:00.000", "09:01:00.000"}, timesOf(out))
	assert.Equal(t, 3, res.Kept)
	assert.Equal(t, 2, res.Dropped())
	assert.Equal(t, 5, in.Len(), "input chunk must not change")
}

func TestAlignBoundaries(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000")

	tests := []struct {
		name string
		ts   string
		keep bool
	}{
		{"at reference", "09:00:00.000", true},
		{"at end", "09:01:00.000", true},
		{"just after end", "09:01:00.001", false},
		{"at start", "08:59:00.000", true},
		{"just before start", "08:58:59.999", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := Align(ref, tickChunk(tt.ts))
			require.NoError(t, err)
			assert.Equal(t, tt.keep, out.Len() == 1)
			assert.Equal(t, tt.keep, ref.Contains(at(tt.ts)))
		})
	}
}

func TestAlignDropsGapBetweenWindows(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000", "09:10:00.000")

	out, _, err := Align(ref, tickChunk("09:05:00.000", "09:09:30.000", "09:00:30.000"))
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00:30.000", "09:09:30.000"}, timesOf(out))
}

func TestAlignOverlappingWindows(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:01:00.000", "09:00:00.000")

	out, _, err := Align(ref, tickChunk("09:02:00.000", "09:00:30.000", "09:02:00.001"))
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00:30.000", "09:02:00.000"}, timesOf(out))
}

func TestAlignSortsStable(t *testing.T) {
	in := chunk.New("a.csv", 1, []string{"time", "tag"}, [][]string{
		{"2024-03-01 09:00:02", "a"},
		{"2024-03-01 09:00:01", "b"},
		{"2024-03-01 09:00:02", "c"},
	})

	out, _, err := Align(nil, in)
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "b", out.Rows[0][1])
	assert.Equal(t, "a", out.Rows[1][1])
	assert.Equal(t, "c", out.Rows[2][1])
}

func TestAlignEventColumnPassesThrough(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000")
	in := chunk.New("calendar.csv", 1, []string{"RELEASE_TIME", "ACTUAL"}, [][]string{
		{"2024.03.01 15:30:00", "3.1"},
		{"2024.03.01 09:00:00", "2.9"},
	})

	out, res, err := Align(ref, in)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Len())
	assert.Equal(t, "2.9", out.Rows[0][1])
	assert.Equal(t, 0, res.Dropped())
}

func TestAlignCountsUnparsed(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000")
	in := tickChunk("09:00:00.000", "09:00:10.000")
	in.Rows = append(in.Rows, []string{"not a time", "1", "1"})

	out, res, err := Align(ref, in)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 1, res.Unparsed)
	assert.Equal(t, 1, out.Unparsed)
}

func TestAlignEmptyResultIsValid(t *testing.T) {
	ref := mustRef(t, time.Minute, "09:00:00.000")

	out, _, err := Align(ref, tickChunk("12:00:00.000"))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestAlignWithoutTimeColumn(t *testing.T) {
	in := chunk.New("odd.csv", 1, []string{"a", "b"}, [][]string{{"1", "2"}})

	_, _, err := Align(nil, in)
	assert.True(t, errors.Is(err, errors.ErrSchema))
}

func TestReferenceSeriesIsImmutable(t *testing.T) {
	ts := []time.Time{at("09:10:00.000"), at("09:00:00.000")}
	ref, err := NewReferenceSeries(ts, time.Minute)
	require.NoError(t, err)

	ts[0] = at("23:00:00.000")
	got := ref.Times()
	got[0] = time.Time{}

	assert.Equal(t, at("09:00:00.000"), ref.Times()[0])
	assert.Equal(t, at("09:10:00.000"), ref.Times()[1])
	assert.Equal(t, at("08:59:00.000"), ref.Windows()[0].Start)
	assert.Equal(t, 2, ref.Len())
	assert.Equal(t, time.Minute, ref.Delta())
}

func TestNewReferenceSeriesRejectsNegativeDelta(t *testing.T) {
	_, err := NewReferenceSeries(nil, -time.Second)
	assert.True(t, errors.IsConfig(err))
}

func TestLoadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.csv")
	content := "RELEASE_TIME,EVENT\n" +
		"2024.03.01 09:10:00,CPI\n" +
		"garbage,NFP\n" +
		"2024.03.01 09:00,GDP\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ref, err := LoadReference(path, "", time.Minute, source.Options{})
	require.NoError(t, err)

	require.Equal(t, 2, ref.Len())
	assert.Equal(t, at("09:00:00.000"), ref.Times()[0])

	ref, err = LoadReference(path, "RELEASE_TIME", 30*time.Second, source.Options{UseMmap: true})
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Len())

	_, err = LoadReference(path, "EVENT", time.Minute, source.Options{})
	require.NoError(t, err)

	_, err = LoadReference(path, "ABSENT", time.Minute, source.Options{})
	assert.True(t, errors.Is(err, errors.ErrSchema))

	_, err = LoadReference(filepath.Join(t.TempDir(), "none.csv"), "", time.Minute, source.Options{})
	assert.True(t, errors.Is(err, errors.ErrMissingInput))
}
