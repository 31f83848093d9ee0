package pipeline

import (
	"context"
	"io"

	"github.com/xtxerr/tickstore/internal/align"
	"github.com/xtxerr/tickstore/internal/chunk"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/source"
)

// File statuses reported in FileResult.
const (
	StatusOK          = "ok"
	StatusMissing     = "missing"
	StatusSchemaError = "schema_error"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
)

// FileResult describes what one producer did with its file.
type FileResult struct {
	Path     string `json:"path"`
	Table    string `json:"table"`
	Status   string `json:"status"`
	Chunks   int64  `json:"chunks"`
	Empty    int64  `json:"empty_chunks"`
	RowsRead int64  `json:"rows_read"`
	RowsKept int64  `json:"rows_kept"`
	Unparsed int64  `json:"rows_unparsed"`
	Error    string `json:"error,omitempty"`
}

// Producer reads files in chunks and aligns every chunk against the
// reference series. A Producer holds no per-file state and may serve any
// number of concurrent Produce calls.
type Producer struct {
	ref       *align.ReferenceSeries
	chunkSize int
	opts      source.Options
}

// NewProducer creates a producer. A nil ref disables alignment.
func NewProducer(ref *align.ReferenceSeries, chunkSize int, opts source.Options) *Producer {
	if chunkSize <= 0 {
		chunkSize = 100000
	}
	return &Producer{ref: ref, chunkSize: chunkSize, opts: opts}
}

// Produce reads path chunk by chunk and sends the aligned chunks for table
// to out. Sending blocks while out is full.
//
// A missing file is reported in the result and returns a nil error without
// sending anything. A file without a recognized time column returns an error
// wrapping errors.ErrSchema. Empty aligned chunks are counted, not sent.
func (p *Producer) Produce(ctx context.Context, path, table string, out chan<- Item) (FileResult, error) {
	res := FileResult{Path: path, Table: table, Status: StatusOK}
	log := logging.WithContext(logging.ContextWithFile(logging.ContextWithTable(ctx, table), path)).
		With("component", "producer")

	src, err := source.Open(path, p.opts)
	if err != nil {
		if errors.Is(err, errors.ErrMissingInput) {
			res.Status = StatusMissing
			res.Error = errors.NewMissingInput(table, path).Error()
			log.Warn("file not found")
			return res, nil
		}
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Error("open failed", "error", err)
		return res, err
	}
	defer src.Close()

	header := src.Header()
	for seq := int64(1); ; seq++ {
		rows, err := src.Next(p.chunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
			log.Error("read failed", "chunk", seq, "error", err)
			return res, err
		}
		res.RowsRead += int64(len(rows))

		aligned, ar, err := align.Align(p.ref, chunk.New(path, seq, header, rows))
		if err != nil {
			res.Status = StatusSchemaError
			res.Error = err.Error()
			log.Error("alignment failed", "error", err)
			return res, err
		}
		res.Unparsed += int64(ar.Unparsed)
		res.RowsKept += int64(ar.Kept)

		if aligned.Len() == 0 {
			res.Empty++
			continue
		}

		select {
		case out <- Item{Table: table, Chunk: aligned}:
			res.Chunks++
		case <-ctx.Done():
			res.Status = StatusCancelled
			res.Error = ctx.Err().Error()
			return res, ctx.Err()
		}
	}

	log.Info("file done",
		"chunks", res.Chunks,
		"rows_read", res.RowsRead,
		"rows_kept", res.RowsKept,
		"rows_unparsed", res.Unparsed)
	return res, nil
}
