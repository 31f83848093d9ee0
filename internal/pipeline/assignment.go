package pipeline

import (
	"path/filepath"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/source"
)

// Entry assigns one input file to a destination table.
type Entry struct {
	Path  string `json:"path"`
	Table string `json:"table"`
}

// Assignment is the static file-to-table mapping of a run.
type Assignment []Entry

// BuildAssignment returns the explicit mappings followed by every file in
// the input directory that is not mapped explicitly; those go to the
// default table. A missing input directory is logged and ignored.
func BuildAssignment(cfg config.IngestConfig) (Assignment, error) {
	var out Assignment
	named := make(map[string]bool, len(cfg.Files))

	for _, f := range cfg.Files {
		if f.Path == "" {
			continue
		}
		out = append(out, Entry{Path: f.Path, Table: f.Table})
		named[clean(f.Path)] = true
	}

	if cfg.InputDir == "" {
		return out, nil
	}

	files, err := source.Discover(cfg.InputDir)
	if err != nil {
		if errors.Is(err, errors.ErrMissingInput) {
			logging.Component("pipeline").Warn("input directory not found", "dir", cfg.InputDir)
			return out, nil
		}
		return nil, err
	}

	for _, path := range files {
		if named[clean(path)] {
			continue
		}
		out = append(out, Entry{Path: path, Table: cfg.DefaultTable})
	}
	return out, nil
}

// Tables returns the distinct destination tables in order of first use.
func (a Assignment) Tables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range a {
		if !seen[e.Table] {
			seen[e.Table] = true
			out = append(out, e.Table)
		}
	}
	return out
}

// Files returns the paths assigned to table.
func (a Assignment) Files(table string) []string {
	var out []string
	for _, e := range a {
		if e.Table == table {
			out = append(out, e.Path)
		}
	}
	return out
}

func clean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
