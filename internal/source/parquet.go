package source

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ParquetSource reads a flat Parquet file. Every leaf column becomes one
// header entry; values are rendered as strings.
type ParquetSource struct {
	path   string
	file   *os.File
	reader *parquet.Reader
	header []string
	buf    []parquet.Row
	done   bool
}

func openParquet(path string, size int64) (*ParquetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	columns := pf.Schema().Columns()
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = strings.Join(col, ".")
	}

	return &ParquetSource{
		path:   path,
		file:   f,
		reader: parquet.NewReader(pf),
		header: header,
	}, nil
}

// Path returns the file path.
func (s *ParquetSource) Path() string {
	return s.path
}

// Header returns the leaf column names in column order.
func (s *ParquetSource) Header() []string {
	return s.header
}

// Next returns up to n rows.
func (s *ParquetSource) Next(n int) ([][]string, error) {
	if s.done {
		return nil, io.EOF
	}
	if n <= 0 {
		n = 1
	}
	if cap(s.buf) < n {
		s.buf = make([]parquet.Row, n)
	}
	buf := s.buf[:n]

	rows := make([][]string, 0, n)
	for len(rows) < n {
		count, err := s.reader.ReadRows(buf[:n-len(rows)])
		for _, row := range buf[:count] {
			rows = append(rows, s.render(row))
		}
		if err == io.EOF {
			s.done = true
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read %s: %w", s.path, err)
		}
		if count == 0 {
			s.done = true
			break
		}
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

func (s *ParquetSource) render(row parquet.Row) []string {
	out := make([]string, len(s.header))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(out) || v.IsNull() {
			continue
		}
		out[col] = formatValue(v)
	}
	return out
}

func formatValue(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// Close closes the reader and the file.
func (s *ParquetSource) Close() error {
	if s.file == nil {
		return nil
	}
	rerr := s.reader.Close()
	err := s.file.Close()
	s.file = nil
	if rerr != nil {
		return rerr
	}
	return err
}
