package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/schema"
	"github.com/xtxerr/tickstore/internal/timecol"
)

// CreateTableIfAbsent creates t unless a table of that name exists. The
// schema is validated first; nothing is executed for an invalid schema.
func (s *Store) CreateTableIfAbsent(ctx context.Context, t schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if !t.Resolved() {
		return errors.NewInvalidValue("table", t.Name, "has no columns")
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(s.dialect.Quote(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.dialect.Quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(s.dialect.ColumnType(c.Type))
	}
	b.WriteString(")")

	if _, err := s.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// TableExists reports whether a table exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var q string
	switch s.dialect.Name() {
	case "sqlite":
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	default:
		q = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`
	}

	var n int
	if err := s.QueryRow(ctx, q, name).Scan(&n); err != nil {
		return false, s.classify("table exists", err)
	}
	return n > 0, nil
}

// Tables lists the user tables.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	var q string
	switch s.dialect.Name() {
	case "sqlite":
		q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		q = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`
	}

	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.classify("scan table name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Columns returns the column names of table in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.Query(ctx, "SELECT * FROM "+s.dialect.Quote(table)+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, s.classify("columns of "+table, err)
	}
	return cols, nil
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + s.dialect.Quote(table)
	if err := s.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, s.classify("count "+table, err)
	}
	return n, nil
}

// TimeValues returns column in storage order. NULLs are skipped.
func (s *Store) TimeValues(ctx context.Context, table, column string) ([]time.Time, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY rowid",
		s.dialect.Quote(column), s.dialect.Quote(table), s.dialect.Quote(column))

	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, s.classify("scan "+column, err)
		}
		t, err := ScanTime(v)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ScanTime converts a scanned TIMESTAMP value into UTC time.
func ScanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		return timecol.ParseStored(x)
	case []byte:
		return timecol.ParseStored(string(x))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T: %w", v, errors.ErrParse)
	}
}

// Rows streams every row of table ordered by orderBy.
func (s *Store) Rows(ctx context.Context, table, orderBy string) (*sql.Rows, error) {
	q := "SELECT * FROM " + s.dialect.Quote(table)
	if orderBy != "" {
		q += " ORDER BY " + s.dialect.Quote(orderBy)
	}
	return s.Query(ctx, q)
}
