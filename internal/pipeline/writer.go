package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/tickstore/internal/chunk"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/retry"
	"github.com/xtxerr/tickstore/internal/schema"
	"github.com/xtxerr/tickstore/internal/stats"
	"github.com/xtxerr/tickstore/internal/store"
	"github.com/xtxerr/tickstore/internal/timecol"
	"github.com/xtxerr/tickstore/internal/validation"
)

// Appender appends rows to a table. *store.Session and *store.Store
// implement it.
type Appender interface {
	AppendRows(ctx context.Context, table string, columns []string, rows [][]any) error
}

// Writer is the only component that mutates the store during ingestion.
// Exactly one Writer runs per store.
type Writer struct {
	app     Appender
	dialect store.Dialect
	tables  map[string]schema.Table
	policy  retry.Policy
	stats   *WriterStats
}

// WriterStats holds writer statistics.
type WriterStats struct {
	ChunksReceived atomic.Int64
	ChunksWritten  atomic.Int64
	ChunksDropped  atomic.Int64
	ChunksEmpty    atomic.Int64
	RowsWritten    atomic.Int64
	RowsDropped    atomic.Int64
	RowsUnparsed   atomic.Int64
	Retries        atomic.Int64

	mu     sync.Mutex
	tables map[string]int64

	latency   *stats.Distribution
	chunkRows *stats.Distribution
}

func newWriterStats(accuracy float64) *WriterStats {
	return &WriterStats{
		tables:    make(map[string]int64),
		latency:   stats.NewDistribution(accuracy),
		chunkRows: stats.NewDistribution(accuracy),
	}
}

// TableRows returns the rows written to table.
func (s *WriterStats) TableRows(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

// WriterSummary is the report view of WriterStats.
type WriterSummary struct {
	ChunksReceived int64            `json:"chunks_received"`
	ChunksWritten  int64            `json:"chunks_written"`
	ChunksDropped  int64            `json:"chunks_dropped"`
	ChunksEmpty    int64            `json:"chunks_empty"`
	RowsWritten    int64            `json:"rows_written"`
	RowsDropped    int64            `json:"rows_dropped"`
	RowsUnparsed   int64            `json:"rows_unparsed"`
	Retries        int64            `json:"retries"`
	Tables         map[string]int64 `json:"tables"`
	AppendMs       stats.Summary    `json:"append_ms"`
	ChunkRows      stats.Summary    `json:"chunk_rows"`
}

// Summary returns a snapshot of the statistics.
func (s *WriterStats) Summary() WriterSummary {
	s.mu.Lock()
	tables := make(map[string]int64, len(s.tables))
	for k, v := range s.tables {
		tables[k] = v
	}
	s.mu.Unlock()

	return WriterSummary{
		ChunksReceived: s.ChunksReceived.Load(),
		ChunksWritten:  s.ChunksWritten.Load(),
		ChunksDropped:  s.ChunksDropped.Load(),
		ChunksEmpty:    s.ChunksEmpty.Load(),
		RowsWritten:    s.RowsWritten.Load(),
		RowsDropped:    s.RowsDropped.Load(),
		RowsUnparsed:   s.RowsUnparsed.Load(),
		Retries:        s.Retries.Load(),
		Tables:         tables,
		AppendMs:       s.latency.Summary(),
		ChunkRows:      s.chunkRows.Summary(),
	}
}

// NewWriter creates a writer appending to the given tables through app.
// Time values are bound through dialect.
func NewWriter(app Appender, dialect store.Dialect, tables []schema.Table, policy retry.Policy, accuracy float64) *Writer {
	byName := make(map[string]schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	return &Writer{
		app:     app,
		dialect: dialect,
		tables:  byName,
		policy:  policy,
		stats:   newWriterStats(accuracy),
	}
}

// Stats returns the writer statistics.
func (w *Writer) Stats() *WriterStats {
	return w.stats
}

// Run drains in until it receives EndOfStream, in is closed, or ctx is
// done. A chunk that cannot be written is dropped and counted; it never
// stops the loop. Every received chunk ends up written, dropped or empty.
func (w *Writer) Run(ctx context.Context, in <-chan Item) *WriterStats {
	log := logging.Component("writer")
	log.Info("writer started", "tables", len(w.tables))

	for {
		select {
		case <-ctx.Done():
			log.Warn("writer cancelled", "error", ctx.Err())
			return w.stats
		case it, ok := <-in:
			if !ok {
				log.Warn("channel closed without end of stream")
				return w.stats
			}
			if it.IsEnd() {
				log.Info("end of stream",
					"chunks_written", w.stats.ChunksWritten.Load(),
					"chunks_dropped", w.stats.ChunksDropped.Load(),
					"rows_written", w.stats.RowsWritten.Load())
				return w.stats
			}
			w.write(ctx, it)
		}
	}
}

func (w *Writer) write(ctx context.Context, it Item) {
	w.stats.ChunksReceived.Add(1)
	if it.Chunk == nil {
		w.stats.ChunksEmpty.Add(1)
		return
	}

	t, ok := w.tables[it.Table]
	if !ok {
		w.drop(ctx, it, it.Chunk.Len(), fmt.Errorf("%s: %w", it.Table, errors.ErrTableNotFound))
		return
	}

	columns, rows, unparsed := normalize(t, it.Chunk, w.dialect)
	w.stats.RowsUnparsed.Add(int64(unparsed))
	if len(columns) == 0 || (t.TimeColumn != "" && !hasColumn(columns, t.TimeColumn)) {
		w.drop(ctx, it, len(rows), errors.NewSchema(it.Chunk.Source, it.Chunk.Header))
		return
	}
	if len(rows) == 0 {
		w.stats.ChunksEmpty.Add(1)
		return
	}

	start := time.Now()
	attempts, err := w.policy.Do(ctx, func(ctx context.Context) error {
		return w.app.AppendRows(ctx, it.Table, columns, rows)
	}, nil)
	if attempts > 1 {
		w.stats.Retries.Add(int64(attempts - 1))
	}
	if err != nil {
		w.drop(ctx, it, len(rows), err)
		return
	}

	w.stats.latency.Add(float64(time.Since(start).Microseconds()) / 1000)
	w.stats.chunkRows.Add(float64(len(rows)))
	w.stats.ChunksWritten.Add(1)
	w.stats.RowsWritten.Add(int64(len(rows)))
	w.stats.mu.Lock()
	w.stats.tables[it.Table] += int64(len(rows))
	w.stats.mu.Unlock()
}

func (w *Writer) drop(ctx context.Context, it Item, rows int, err error) {
	w.stats.ChunksDropped.Add(1)
	w.stats.RowsDropped.Add(int64(rows))

	ctx = logging.ContextWithFile(logging.ContextWithTable(ctx, it.Table), it.Chunk.Source)
	logging.WithContext(ctx).Error("chunk dropped",
		"component", "writer",
		"chunk", it.Chunk.Seq,
		"rows", rows,
		"error", err)
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// normalize converts a chunk into bind values for the columns of t present
// in the chunk header.
//
// When exactly one recognized time column is present its values are bound
// as canonical time through the dialect, and rows whose timestamp does not
// parse are removed. Otherwise every value is bound as read.
func normalize(t schema.Table, c *chunk.Chunk, d store.Dialect) ([]string, [][]any, int) {
	rows := c.Rows

	var (
		parsed   []time.Time
		timeIdx  = -1
		unparsed int
	)
	if col, idx, ok := timecol.FindUnique(c.Header); ok {
		timeIdx = idx
		if c.Parsed() && c.TimeIndex == idx {
			parsed = c.Times
		} else {
			work := chunk.New(c.Source, c.Seq, c.Header, append([][]string(nil), c.Rows...))
			unparsed = work.ParseTimes(col, idx)
			rows, parsed = work.Rows, work.Times
		}
	}

	proj := t.Project(c.Header)
	var (
		columns []string
		src     []int
		types   []validation.ColumnType
	)
	for i, p := range proj {
		if p < 0 {
			continue
		}
		columns = append(columns, t.Columns[i].Name)
		src = append(src, p)
		types = append(types, t.Columns[i].Type)
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		vals := make([]any, len(src))
		for i, p := range src {
			if p == timeIdx && types[i] == validation.TypeTimestamp {
				vals[i] = d.BindTime(parsed[r])
				continue
			}
			vals[i] = convert(field(row, p), types[i])
		}
		out[r] = vals
	}
	return columns, out, unparsed
}

// convert binds a raw field according to the declared column type. Empty
// fields and numbers that do not parse become NULL.
func convert(raw string, ct validation.ColumnType) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	switch ct {
	case validation.TypeReal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return nil
	case validation.TypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		return nil
	default:
		return raw
	}
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
