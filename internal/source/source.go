// Package source reads tabular input files in bounded batches of string
// records.
//
// Two formats are supported: CSV (optionally memory-mapped) and Parquet.
// Every source exposes its header once and then yields rows in file order.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xtxerr/tickstore/internal/errors"
)

// Source is an open input file.
type Source interface {
	// Path returns the file the source reads.
	Path() string

	// Header returns the column names.
	Header() []string

	// Next returns up to n rows. It returns io.EOF once the file is
	// exhausted; a final partial batch is returned with a nil error.
	Next(n int) ([][]string, error)

	// Close releases the file.
	Close() error
}

// Options configures how sources are opened.
type Options struct {
	// UseMmap maps CSV files into memory instead of reading them through
	// a buffered file handle.
	UseMmap bool
}

// Extensions lists the file extensions Discover picks up.
var Extensions = []string{".csv", ".parquet"}

// Open opens path with the reader matching its extension.
// A missing file yields an error wrapping errors.ErrMissingInput.
func Open(path string, opts Options) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, errors.ErrMissingInput)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, errors.ErrUnsupportedSource)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return openCSV(path, info.Size(), opts)
	case ".parquet":
		return openParquet(path, info.Size())
	default:
		return nil, fmt.Errorf("%s: %w", path, errors.ErrUnsupportedSource)
	}
}

// Peek returns the header and first row of path without keeping it open.
// first is nil for a file without data rows.
func Peek(path string, opts Options) (header, first []string, err error) {
	src, err := Open(path, opts)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()

	rows, err := src.Next(1)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	if len(rows) > 0 {
		first = rows[0]
	}
	return src.Header(), first, nil
}

// Discover lists the regular files in dir with a supported extension, in
// lexical order.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input directory %s: %w", dir, errors.ErrMissingInput)
		}
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Symbol derives the instrument symbol from a file name: the base name up to
// the first '-', '_' or '.'. EURUSD-ticks.csv yields EURUSD.
func Symbol(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexAny(base, "-_."); i >= 0 {
		base = base[:i]
	}
	return base
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
