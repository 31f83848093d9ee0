// Package export writes compacted tables to Parquet files.
//
// The Parquet schema is derived from the table's column types as reported by
// the store: floating point columns become DOUBLE, integer columns INT64 and
// everything else, timestamps included, a UTF-8 string. Timestamps use the
// canonical text layout so that an exported file can be ingested again.
// Every column is optional.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/store"
	"github.com/xtxerr/tickstore/internal/timecol"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the number of rows buffered per WriteRows call
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 10000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Result describes one exported table.
type Result struct {
	Table    string        `json:"table"`
	Path     string        `json:"path"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// kind is the Parquet physical representation of one column.
type kind int

const (
	kindString kind = iota
	kindDouble
	kindInt64
)

func kindOf(databaseType string) kind {
	t := strings.ToUpper(databaseType)
	switch {
	case strings.Contains(t, "DOUBLE"), strings.Contains(t, "REAL"),
		strings.Contains(t, "FLOAT"), strings.Contains(t, "DECIMAL"):
		return kindDouble
	case strings.Contains(t, "INT"):
		return kindInt64
	default:
		return kindString
	}
}

func (k kind) node() parquet.Node {
	switch k {
	case kindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case kindInt64:
		return parquet.Optional(parquet.Int(64))
	default:
		return parquet.Optional(parquet.String())
	}
}

// Table writes every row of table, ordered by orderBy, to
// <dir>/<table>.parquet. The file is written under a temporary name and
// renamed once complete.
func Table(ctx context.Context, s *store.Store, table, orderBy, dir string, opts Options) (Result, error) {
	res := Result{Table: table, Path: filepath.Join(dir, table+".parquet")}
	start := time.Now()

	n, err := writeTable(ctx, s, table, orderBy, res.Path, opts)
	res.Rows = n
	res.Duration = time.Since(start)

	log := logging.Component("export")
	if err != nil {
		res.Error = err.Error()
		log.Error("export failed", "table", table, "error", err)
		return res, err
	}
	log.Info("table exported", "table", table, "path", res.Path, "rows", n, "duration", res.Duration)
	return res, nil
}

func writeTable(ctx context.Context, s *store.Store, table, orderBy, path string, opts Options) (int64, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", table, errors.ErrTableNotFound)
	}

	rows, err := s.Rows(ctx, table, orderBy)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return 0, fmt.Errorf("column types of %s: %w", table, err)
	}

	kinds := make([]kind, len(types))
	group := make(parquet.Group, len(types))
	for i, ct := range types {
		kinds[i] = kindOf(ct.DatabaseTypeName())
		group[ct.Name()] = kinds[i].node()
	}
	sch := parquet.NewSchema(table, group)

	// Group fields are laid out by name, not in table order.
	leaf := make(map[string]int, len(types))
	for i, p := range sch.Columns() {
		leaf[p[0]] = i
	}
	index := make([]int, len(types))
	for i, ct := range types {
		index[i] = leaf[ct.Name()]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := copyRows(rows, sch, kinds, index, f, opts)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return n, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return n, nil
}

func copyRows(rows *sql.Rows, sch *parquet.Schema, kinds []kind, index []int, f *os.File, opts Options) (int64, error) {
	batch := opts.RowGroupSize
	if batch <= 0 {
		batch = DefaultOptions().RowGroupSize
	}

	w := parquet.NewWriter(f, sch, parquet.Compression(getCompression(opts.Compression)))

	scanned := make([]any, len(kinds))
	ptrs := make([]any, len(kinds))
	for i := range scanned {
		ptrs[i] = &scanned[i]
	}

	var (
		total int64
		buf   = make([]parquet.Row, 0, batch)
	)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := w.WriteRows(buf); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		total += int64(len(buf))
		buf = buf[:0]
		return nil
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return total, fmt.Errorf("scan row: %w", err)
		}
		row := make(parquet.Row, len(kinds))
		for i, v := range scanned {
			val := toValue(v, kinds[i])
			row[index[i]] = val.Level(0, definition(val), index[i])
		}
		buf = append(buf, row)
		if len(buf) == batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, fmt.Errorf("read rows: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	if err := w.Close(); err != nil {
		return total, fmt.Errorf("close writer: %w", err)
	}
	return total, nil
}

func definition(v parquet.Value) int {
	if v.IsNull() {
		return 0
	}
	return 1
}

// toValue converts a scanned database value into the column's Parquet kind.
// Values that cannot be represented become null.
func toValue(v any, k kind) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}

	switch k {
	case kindDouble:
		switch x := v.(type) {
		case float64:
			return parquet.DoubleValue(x)
		case float32:
			return parquet.DoubleValue(float64(x))
		case int64:
			return parquet.DoubleValue(float64(x))
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return parquet.DoubleValue(f)
			}
		case []byte:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return parquet.DoubleValue(f)
			}
		}
		return parquet.NullValue()

	case kindInt64:
		switch x := v.(type) {
		case int64:
			return parquet.Int64Value(x)
		case int32:
			return parquet.Int64Value(int64(x))
		case int:
			return parquet.Int64Value(int64(x))
		case float64:
			return parquet.Int64Value(int64(x))
		case string:
			if i, err := strconv.ParseInt(x, 10, 64); err == nil {
				return parquet.Int64Value(i)
			}
		}
		return parquet.NullValue()

	default:
		switch x := v.(type) {
		case string:
			return parquet.ByteArrayValue([]byte(x))
		case []byte:
			return parquet.ByteArrayValue(x)
		case time.Time:
			return parquet.ByteArrayValue([]byte(timecol.FormatCanonical(x)))
		default:
			return parquet.ByteArrayValue([]byte(fmt.Sprint(x)))
		}
	}
}
