// Package schema describes persisted tables and resolves their columns,
// either from configuration or from the header of a source file.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/timecol"
	"github.com/xtxerr/tickstore/internal/validation"
)

// Column is one persisted column.
type Column struct {
	// Name is the persisted identifier.
	Name string `yaml:"name" json:"name"`

	// Type is one of TEXT, TIMESTAMP, REAL, INTEGER.
	Type validation.ColumnType `yaml:"type" json:"type"`

	// Source is the header in input files, when it differs from Name.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// SourceName returns the header this column is read from.
func (c Column) SourceName() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Name
}

// Table is a persisted table.
type Table struct {
	Name string `yaml:"name" json:"name"`

	// TimeColumn names the column compaction orders and deduplicates on.
	TimeColumn string `yaml:"time_column" json:"time_column"`

	Columns []Column `yaml:"columns,omitempty" json:"columns,omitempty"`
}

// Resolved reports whether the table has its columns.
func (t Table) Resolved() bool {
	return len(t.Columns) > 0
}

// Validate checks every identifier and type. It does not coerce.
func (t Table) Validate() error {
	if err := validation.ValidateIdentifier("table", t.Name); err != nil {
		return err
	}
	if t.TimeColumn != "" {
		if err := validation.ValidateIdentifier("column", t.TimeColumn); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := validation.ValidateIdentifier("column", c.Name); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if _, err := validation.ParseColumnType(c.Name, string(c.Type)); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return errors.NewInvalidValue("column", c.Name, "duplicate in table "+t.Name)
		}
		seen[key] = true
	}

	if t.Resolved() && t.TimeColumn != "" && t.Column(t.TimeColumn) == nil {
		return errors.NewInvalidValue("time_column", t.TimeColumn, "not a column of table "+t.Name)
	}
	return nil
}

// Column returns the column with the given persisted name, or nil.
func (t Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the persisted column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Normalize uppercases declared types.
func (t *Table) Normalize() {
	for i := range t.Columns {
		if ct, err := validation.ParseColumnType(t.Columns[i].Name, string(t.Columns[i].Type)); err == nil {
			t.Columns[i].Type = ct
		}
	}
}

// Infer builds the columns of t from a source header and its first data row.
//
// Recognized time headers become TIMESTAMP columns under their canonical
// name; columns whose first value is numeric become REAL; the rest are TEXT.
// A header that is not a valid identifier fails with ErrInvalidIdentifier.
func Infer(name string, header, first []string) (Table, error) {
	t := Table{Name: name}

	for i, h := range header {
		h = strings.TrimSpace(h)
		if tc, ok := timecol.Lookup(h); ok {
			t.Columns = append(t.Columns, Column{Name: tc.Name, Type: validation.TypeTimestamp, Source: h})
			if t.TimeColumn == "" {
				t.TimeColumn = tc.Name
			}
			continue
		}

		col := Column{Name: h, Type: validation.TypeText}
		if i < len(first) && numeric(first[i]) {
			col.Type = validation.TypeReal
		}
		t.Columns = append(t.Columns, col)
	}

	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("infer schema of %s: %w", name, err)
	}
	return t, nil
}

// Project maps a source header onto the table's columns. The result holds,
// for each table column, the header index it is read from, or -1 when the
// source lacks it.
//
// When the table's time column has no match by name, the header's only
// recognized time column of the same role is read into it, so files of one
// table may use different time headers ("time" and "Gmt time").
func (t Table) Project(header []string) []int {
	out := make([]int, len(t.Columns))
	used := make(map[int]bool, len(header))
	for i, c := range t.Columns {
		out[i] = -1
		for j, h := range header {
			h = strings.TrimSpace(h)
			if h == c.SourceName() || h == c.Name {
				out[i] = j
				break
			}
		}
		if out[i] < 0 && c.Type == validation.TypeTimestamp {
			if tc, ok := timecol.Lookup(c.Name); ok {
				for j, h := range header {
					if strings.TrimSpace(h) == tc.Header {
						out[i] = j
						break
					}
				}
			}
		}
		if out[i] >= 0 {
			used[out[i]] = true
		}
	}

	ti := t.timeIndex()
	if ti < 0 || out[ti] >= 0 {
		return out
	}
	found, j, ok := timecol.FindUnique(header)
	if !ok || used[j] {
		return out
	}
	if want, known := timecol.Lookup(t.Columns[ti].Name); known && want.Role != found.Role {
		return out
	}
	out[ti] = j
	return out
}

// timeIndex returns the position of the time column in Columns, or -1.
func (t Table) timeIndex() int {
	if t.TimeColumn == "" {
		return -1
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, t.TimeColumn) {
			return i
		}
	}
	return -1
}

func numeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
