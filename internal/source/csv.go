package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
)

const readBufferSize = 1 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSource reads a comma-separated file whose first record is the header.
type CSVSource struct {
	path   string
	file   *os.File
	mapped mmap.MMap
	reader *csv.Reader
	header []string

	// Skipped counts malformed records that were skipped.
	Skipped int
}

func openCSV(path string, size int64, opts Options) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &CSVSource{path: path, file: f}

	var r io.Reader
	if opts.UseMmap && size > 0 {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		s.mapped = m
		r = bytes.NewReader(bytes.TrimPrefix(m, utf8BOM))
	} else {
		br := bufio.NewReaderSize(f, readBufferSize)
		if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
			br.Discard(len(utf8BOM))
		}
		r = br
	}

	s.reader = csv.NewReader(r)
	s.reader.LazyQuotes = true
	s.reader.TrimLeadingSpace = true
	s.reader.FieldsPerRecord = -1

	header, err := s.reader.Read()
	if err != nil && err != io.EOF {
		s.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	s.header = header

	return s, nil
}

// Path returns the file path.
func (s *CSVSource) Path() string {
	return s.path
}

// Header returns the column names.
func (s *CSVSource) Header() []string {
	return s.header
}

// Next returns up to n records. Malformed records are skipped.
func (s *CSVSource) Next(n int) ([][]string, error) {
	if s.header == nil {
		return nil, io.EOF
	}
	if n <= 0 {
		n = 1
	}

	rows := make([][]string, 0, n)
	for len(rows) < n {
		rec, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.Skipped++
				logging.Component("source").Debug("skipping malformed record",
					"file", s.path, "line", perr.Line, "error", perr.Err)
				continue
			}
			return rows, fmt.Errorf("read %s: %w", s.path, err)
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}

// Close unmaps and closes the file.
func (s *CSVSource) Close() error {
	var unmapErr error
	if s.mapped != nil {
		unmapErr = s.mapped.Unmap()
		s.mapped = nil
	}
	if s.file == nil {
		return unmapErr
	}
	err := s.file.Close()
	s.file = nil
	if unmapErr != nil {
		return unmapErr
	}
	return err
}
