package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/timecol"
	"github.com/xtxerr/tickstore/internal/validation"
)

// Dialect hides the differences between the supported engines.
type Dialect interface {
	// Name is the backend name used in configuration.
	Name() string

	// Driver is the database/sql driver name.
	Driver() string

	// DSN builds the connection string for a database file.
	DSN(cfg Config) string

	// Quote quotes a validated identifier.
	Quote(ident string) string

	// ColumnType maps a declared type onto the engine's type.
	ColumnType(t validation.ColumnType) string

	// BindTime converts a timestamp into the value bound for TIMESTAMP
	// columns.
	BindTime(t time.Time) any

	// IsBusy reports whether err is lock contention worth retrying.
	IsBusy(err error) bool

	// MaxParams bounds the placeholders of a single statement.
	MaxParams() int
}

// DialectFor returns the dialect for a backend name.
func DialectFor(backend string) (Dialect, error) {
	switch strings.ToLower(backend) {
	case "duckdb", "":
		return duckDialect{}, nil
	case "sqlite":
		return sqliteDialect{}, nil
	default:
		return nil, errors.NewInvalidValue("backend", backend, "must be one of: duckdb, sqlite")
	}
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// =============================================================================
// DuckDB
// =============================================================================

type duckDialect struct{}

func (duckDialect) Name() string   { return "duckdb" }
func (duckDialect) Driver() string { return "duckdb" }

func (duckDialect) DSN(cfg Config) string {
	if cfg.MemoryLimit == "" {
		return cfg.Path
	}
	return cfg.Path + "?" + url.Values{"memory_limit": {cfg.MemoryLimit}}.Encode()
}

func (duckDialect) Quote(ident string) string { return quoteIdent(ident) }

func (duckDialect) ColumnType(t validation.ColumnType) string {
	switch t {
	case validation.TypeReal:
		return "DOUBLE"
	case validation.TypeInteger:
		return "BIGINT"
	case validation.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (duckDialect) BindTime(t time.Time) any { return t.UTC() }

// DuckDB reports write-write conflicts and file locks only through the
// message text.
func (duckDialect) IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict") ||
		strings.Contains(msg, "Could not set lock") ||
		strings.Contains(msg, "database is locked")
}

func (duckDialect) MaxParams() int { return 30000 }

// =============================================================================
// SQLite
// =============================================================================

type sqliteDialect struct{}

func (sqliteDialect) Name() string   { return "sqlite" }
func (sqliteDialect) Driver() string { return "sqlite" }

func (sqliteDialect) DSN(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeoutMs))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + cfg.Path + "?" + q.Encode()
}

func (sqliteDialect) Quote(ident string) string { return quoteIdent(ident) }

func (sqliteDialect) ColumnType(t validation.ColumnType) string {
	return string(t)
}

// SQLite has no time type. Fixed-width text keeps ORDER BY and the unique
// index chronological.
func (sqliteDialect) BindTime(t time.Time) any { return timecol.FormatCanonical(t) }

func (sqliteDialect) IsBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// SQLITE_MAX_VARIABLE_NUMBER is 32766 since 3.32.
func (sqliteDialect) MaxParams() int { return 32000 }
