// Package store provides the embedded database behind tickstore.
//
// One Store owns one database file. DuckDB is the default engine; SQLite is
// available for environments without cgo. Identifiers reaching this package
// have already been validated and are quoted, never interpolated raw.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
)

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Backend is duckdb or sqlite.
	Backend string

	// Path is the database file. Empty opens an in-memory DuckDB.
	Path string

	// BusyTimeoutMs is how long SQLite waits on a lock.
	BusyTimeoutMs int

	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// PingTimeout bounds the connectivity check in Open.
	PingTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       "duckdb",
		BusyTimeoutMs: 5000,
		MaxOpenConns:  4,
		PingTimeout:   5 * time.Second,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides database operations.
//
// Store is safe for concurrent use, but ingestion funnels every append
// through a single Session.
type Store struct {
	db      *sql.DB
	dialect Dialect
	config  Config
	mu      sync.RWMutex
	closed  bool
}

// Open opens or creates the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dialect, err := DialectFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(dialect.Driver(), dialect.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %v: %w", err, errors.ErrDatabase)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := &Store{
		db:      db,
		dialect: dialect,
		config:  cfg,
	}
	if err := s.Health(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	logging.Component("store").Debug("database opened",
		"backend", dialect.Name(),
		"path", cfg.Path)

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// Dialect returns the engine dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.config.Path
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrStoreClosed
	}
	return nil
}

// classify wraps a driver error as transient or fatal.
func (s *Store) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsBusy(err) {
		return fmt.Errorf("%s: %v: %w", op, err, errors.ErrTransientWrite)
	}
	return fmt.Errorf("%s: %v: %w", op, err, errors.ErrDatabase)
}

// =============================================================================
// Transaction Support
// =============================================================================

// TransactionContext executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return runTx(ctx, s.db, fn)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func runTx(ctx context.Context, db txBeginner, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// =============================================================================
// Query Helpers
// =============================================================================

// Exec executes an administrative statement.
func (s *Store) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, s.classify("exec", err)
	}
	return res, nil
}

// Query executes a query and returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify("query", err)
	}
	return rows, nil
}

// QueryRow executes a query that returns a single row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %v: %w", err, errors.ErrDatabase)
	}
	return nil
}
