package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/xtxerr/tickstore/internal/errors"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendRows inserts rows into table using a short-lived connection.
// All rows are committed in one transaction or not at all.
func (s *Store) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.insertBatches(ctx, tx, table, columns, rows)
	})
	return s.classifyAppend(table, err)
}

// Session is a single pinned connection. The ingestion writer holds one
// session for its whole run so that every append goes through the same
// connection.
type Session struct {
	store *Store
	conn  *sql.Conn
}

// Session pins a connection from the pool.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, s.classify("pin connection", err)
	}
	return &Session{store: s, conn: conn}, nil
}

// AppendRows inserts rows into table in one transaction on the pinned
// connection.
func (ss *Session) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	err := runTx(ctx, ss.conn, func(tx *sql.Tx) error {
		return ss.store.insertBatches(ctx, tx, table, columns, rows)
	})
	return ss.store.classifyAppend(table, err)
}

// Dialect returns the dialect of the owning store.
func (ss *Session) Dialect() Dialect {
	return ss.store.dialect
}

// Close returns the connection to the pool.
func (ss *Session) Close() error {
	return ss.conn.Close()
}

func (s *Store) classifyAppend(table string, err error) error {
	if err == nil || errors.Is(err, errors.ErrTransientWrite) || errors.Is(err, errors.ErrDatabase) {
		return err
	}
	return s.classify("append to "+table, err)
}

// insertBatches splits rows so that no statement exceeds the dialect's
// placeholder limit.
func (s *Store) insertBatches(ctx context.Context, ex execer, table string, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("append to %s: no columns: %w", table, errors.ErrInternal)
	}

	perStmt := s.dialect.MaxParams() / len(columns)
	if perStmt < 1 {
		perStmt = 1
	}

	for i := 0; i < len(rows); i += perStmt {
		end := i + perStmt
		if end > len(rows) {
			end = len(rows)
		}
		query, args := s.buildMultiRowInsert(table, columns, rows[i:end])
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return s.classify("append to "+table, err)
		}
	}
	return nil
}

// buildMultiRowInsert builds one INSERT with a VALUES tuple per row.
func (s *Store) buildMultiRowInsert(table string, columns []string, rows [][]any) (string, []any) {
	args := make([]any, 0, len(rows)*len(columns))

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var query strings.Builder
	query.Grow(64 + len(rows)*(len(tuple)+1))

	query.WriteString("INSERT INTO ")
	query.WriteString(s.dialect.Quote(table))
	query.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString(s.dialect.Quote(c))
	}
	query.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString(tuple)
		for j := range columns {
			if j < len(row) {
				args = append(args, row[j])
			} else {
				args = append(args, nil)
			}
		}
	}

	return query.String(), args
}
