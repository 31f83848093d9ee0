package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/store"
	tstest "github.com/xtxerr/tickstore/internal/testing"
)

type fixture struct {
	in, out string
	ask     string
	bid     string
	events  string
}

// newFixture writes an ask file of 11 quotes from 08:58:00 to 09:03:00 plus
// a repeated 09:00:00 quote, and an event file with one release at 09:00:00.
// The bid file is never created.
func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{in: t.TempDir(), out: t.TempDir()}

	rows := tstest.PriceRows(tstest.LayoutDayFirst, tstest.Series(nine.Add(-2*time.Minute), 30*time.Second, 11), "1.1", "10")
	rows = append(rows, []string{nine.Format(tstest.LayoutDayFirst), "9.9", "99"})
	f.ask = tstest.WriteCSV(t, f.in, "EURUSD-ask.csv", []string{"Gmt time", "Open", "Volume"}, rows)

	f.events = tstest.WriteCSV(t, f.in, "EURUSD-events.csv", []string{"RELEASE_TIME", "Currency"},
		[][]string{{nine.Format(tstest.LayoutDotted), "EUR"}})

	f.bid = filepath.Join(f.in, "EURUSD-bid.csv")
	return f
}

func (f fixture) config(backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Backend = backend
	cfg.Store.OutputDir = f.out
	cfg.Ingest.ChunkSize = 3
	cfg.Ingest.ChannelCapacity = 2
	cfg.Ingest.Reference.Path = f.events
	cfg.Writer.RetryDelay = time.Millisecond
	cfg.Backpressure.Interval = time.Millisecond
	cfg.MapFile("askPrices", f.ask)
	cfg.MapFile("bidPrices", f.bid)
	cfg.MapFile("baseInterests", f.events)
	return cfg
}

func reopen(t *testing.T, backend, path string) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Backend = backend
	cfg.Path = path
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCoordinatorRun(t *testing.T) {
	for _, backend := range []string{"sqlite", "duckdb"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			report, err := NewCoordinator(f.config(backend)).Run(ctx)
			require.NoError(t, err)

			assert.Equal(t, ModeIngest, report.Mode)
			assert.Equal(t, "EURUSD", report.Symbol)
			assert.Equal(t, filepath.Join(f.out, "EURUSD.db"), report.StorePath)
			assert.Equal(t, []string{"askPrices", "baseInterests"}, report.Tables)

			missing := report.Missing()
			require.Len(t, missing, 1)
			assert.Equal(t, "bidPrices", missing[0].Table)

			ask, ok := report.File(f.ask)
			require.True(t, ok)
			assert.Equal(t, int64(12), ask.RowsRead)
			assert.Equal(t, int64(6), ask.RowsKept)

			require.NotNil(t, report.Writer)
			assert.Equal(t, int64(7), report.Writer.RowsWritten)
			assert.Zero(t, report.Writer.ChunksDropped)
			require.NotNil(t, report.Backpressure)

			require.NotNil(t, report.Reference)
			assert.Equal(t, 1, report.Reference.Timestamps)
			assert.Equal(t, nine, report.Reference.First)
			assert.Equal(t, 2*time.Minute, report.Reference.Covered)

			require.Len(t, report.Compaction, 2)
			assert.Equal(t, "askPrices", report.Compaction[0].Table)
			assert.Equal(t, int64(6), report.Compaction[0].RowsBefore)
			assert.Equal(t, int64(5), report.Compaction[0].RowsAfter)
			assert.Equal(t, int64(1), report.Compaction[1].RowsAfter)

			s := reopen(t, backend, report.StorePath)
			times, err := s.TimeValues(ctx, "askPrices", "gmt_time")
			require.NoError(t, err)
			assert.Equal(t, tstest.Series(nine.Add(-time.Minute), 30*time.Second, 5), times)

			exists, err := s.TableExists(ctx, "bidPrices")
			require.NoError(t, err)
			assert.False(t, exists, "a table without input is not created")

			var repeated int
			require.NoError(t, s.QueryRow(ctx, `SELECT COUNT(*) FROM "askPrices" WHERE "Open" > 9`).Scan(&repeated))
			assert.Zero(t, repeated, "compaction keeps the first row per timestamp")
		})
	}
}

func TestCoordinatorRejectsInvalidTableBeforeOpeningStore(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("sqlite")
	cfg.MapFile("1bad", f.ask)

	report, err := NewCoordinator(cfg).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.True(t, errors.Is(err, errors.ErrInvalidIdentifier))
	assert.Contains(t, err.Error(), "1bad")
	assert.NotEmpty(t, report.Error)

	entries, err := os.ReadDir(f.out)
	require.NoError(t, err)
	assert.Empty(t, entries, "no store file may be created")
}

func TestCoordinatorSchemaErrorStillCompacts(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("sqlite")
	junk := tstest.WriteCSV(t, f.in, "EURUSD-junk.csv", []string{"a", "b"}, [][]string{{"1", "2"}})
	cfg.MapFile("ticks", junk)

	report, err := NewCoordinator(cfg).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsSchema(err))

	res, ok := report.File(junk)
	require.True(t, ok)
	assert.Equal(t, StatusSchemaError, res.Status)

	var compacted []string
	for _, r := range report.Compaction {
		assert.Empty(t, r.Error)
		compacted = append(compacted, r.Table)
	}
	assert.Equal(t, []string{"askPrices", "baseInterests"}, compacted)
}

func TestCoordinatorWithoutReference(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("sqlite")
	cfg.Ingest.Reference.Path = ""

	report, err := NewCoordinator(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(12), report.Compaction[0].RowsBefore)
	assert.Equal(t, int64(11), report.Compaction[0].RowsAfter)
}

func TestCoordinatorSkipIngest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := NewCoordinator(f.config("sqlite")).Run(ctx)
	require.NoError(t, err)

	c := NewCoordinator(f.config("sqlite"))
	c.SkipIngest = true
	report, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ModeCompact, report.Mode)
	assert.Nil(t, report.Writer)
	require.Len(t, report.Compaction, 2)
	for _, r := range report.Compaction {
		assert.Zero(t, r.Duplicates(), r.Table)
	}
}

// mixedHeaderConfig scans a directory holding a candle file with a
// "Gmt time" column and a tick file with a "time" column. Both go to the
// default table, whose schema comes from the candle file.
func mixedHeaderConfig(t *testing.T) *config.Config {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()

	tstest.WriteCSV(t, in, "EURUSD-a-candles.csv", []string{"Gmt time", "Open"},
		tstest.PriceRows(tstest.LayoutDayFirst, tstest.Series(nine, time.Second, 3), "1.1"))
	tstest.WriteCSV(t, in, "EURUSD-b-ticks.csv", []string{"time", "Open"},
		tstest.PriceRows(tstest.LayoutISO, tstest.Series(nine.Add(3*time.Second), time.Second, 4), "1.2"))

	cfg := config.DefaultConfig()
	cfg.Store.Backend = "sqlite"
	cfg.Store.OutputDir = out
	cfg.Ingest.InputDir = in
	cfg.Writer.RetryDelay = time.Millisecond
	cfg.Backpressure.Enabled = false
	return cfg
}

func TestCoordinatorMixedTimeHeaders(t *testing.T) {
	ctx := context.Background()
	cfg := mixedHeaderConfig(t)

	report, err := NewCoordinator(cfg).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(7), report.Writer.RowsWritten)
	assert.Equal(t, int64(0), report.Writer.ChunksDropped)
	require.Len(t, report.Compaction, 1)
	assert.Equal(t, "prices", report.Compaction[0].Table)
	assert.Equal(t, "gmt_time", report.Compaction[0].TimeColumn)
	assert.Equal(t, int64(7), report.Compaction[0].RowsBefore)
	assert.Equal(t, int64(7), report.Compaction[0].RowsAfter)

	s := reopen(t, "sqlite", report.StorePath)
	var nulls int
	require.NoError(t, s.QueryRow(ctx, `SELECT COUNT(*) FROM "prices" WHERE "gmt_time" IS NULL`).Scan(&nulls))
	assert.Zero(t, nulls)

	times, err := s.TimeValues(ctx, "prices", "gmt_time")
	require.NoError(t, err)
	assert.Equal(t, tstest.Series(nine, time.Second, 7), times)
}

func TestCoordinatorSkipIngestCompactsDefaultTable(t *testing.T) {
	ctx := context.Background()
	cfg := mixedHeaderConfig(t)

	_, err := NewCoordinator(cfg).Run(ctx)
	require.NoError(t, err)

	c := NewCoordinator(cfg)
	c.SkipIngest = true
	report, err := c.Run(ctx)
	require.NoError(t, err)

	require.Len(t, report.Compaction, 1)
	assert.Equal(t, "prices", report.Compaction[0].Table)
	assert.Equal(t, "gmt_time", report.Compaction[0].TimeColumn)
	assert.Equal(t, int64(7), report.Compaction[0].RowsAfter)
}

func TestCoordinatorSkipIngestWithoutStore(t *testing.T) {
	f := newFixture(t)
	c := NewCoordinator(f.config("sqlite"))
	c.SkipIngest = true

	_, err := c.Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrMissingInput))

	entries, err := os.ReadDir(f.out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCoordinatorExportAndReport(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("sqlite")
	cfg.Export.Enabled = true
	cfg.Export.Dir = filepath.Join(f.out, "parquet")

	report, err := NewCoordinator(cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Exports, 2)
	assert.Equal(t, int64(5), report.Exports[0].Rows)
	assert.FileExists(t, filepath.Join(f.out, "parquet", "askPrices.parquet"))
	assert.FileExists(t, filepath.Join(f.out, "parquet", "baseInterests.parquet"))

	path := filepath.Join(f.out, "report.json")
	require.NoError(t, report.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, report.RunID, decoded["run_id"])
	assert.Equal(t, "ingest", decoded["mode"])
	assert.Len(t, decoded["files"], 3)
	assert.Contains(t, decoded, "backpressure")
}
