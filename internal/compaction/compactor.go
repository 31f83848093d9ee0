// Package compaction deduplicates and reorders tables after ingestion.
//
// Compacting one table runs three steps:
//
//	drop the time index, if any
//	in one transaction: delete rows whose time value repeats, keeping the
//	lowest rowid, copy the survivors ordered by time into a scratch table,
//	then empty the table and refill it from the scratch table
//	create the unique time index
//
// Refilling the original table keeps its declared column types on every
// engine. DuckDB refuses to build an index over uncommitted changes, so the
// index is handled outside the transaction.
package compaction

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/store"
	"github.com/xtxerr/tickstore/internal/validation"
)

// scratchSuffix names the temporary copy of a table being compacted.
const scratchSuffix = "__compact"

// Compactor compacts tables of one store. It must not run while the
// ingestion writer is active.
type Compactor struct {
	store *store.Store
	stats Stats
}

// Stats holds compaction statistics.
type Stats struct {
	TablesCompacted atomic.Int64
	TablesFailed    atomic.Int64
	RowsRemoved     atomic.Int64
}

// Result describes one compacted table.
type Result struct {
	Table      string        `json:"table"`
	TimeColumn string        `json:"time_column"`
	RowsBefore int64         `json:"rows_before"`
	RowsAfter  int64         `json:"rows_after"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Duplicates returns the number of rows removed.
func (r Result) Duplicates() int64 {
	return r.RowsBefore - r.RowsAfter
}

// New creates a compactor for s.
func New(s *store.Store) *Compactor {
	return &Compactor{store: s}
}

// Stats returns the compactor statistics.
func (c *Compactor) Stats() *Stats {
	return &c.stats
}

// IndexName returns the name of the unique time index of table.
func IndexName(table, timeColumn string) string {
	return "idx_" + table + "_" + timeColumn
}

// Compact deduplicates table on timeColumn, rewrites it in ascending time
// order and builds the unique index. Running it twice yields the same rows.
func (c *Compactor) Compact(ctx context.Context, table, timeColumn string) (Result, error) {
	res := Result{Table: table, TimeColumn: timeColumn}
	start := time.Now()

	err := c.compact(ctx, table, timeColumn, &res)
	res.Duration = time.Since(start)

	log := logging.Component("compaction")
	if err != nil {
		c.stats.TablesFailed.Add(1)
		res.Error = err.Error()
		log.Error("compaction failed", "table", table, "error", err)
		return res, err
	}

	c.stats.TablesCompacted.Add(1)
	c.stats.RowsRemoved.Add(res.Duplicates())
	log.Info("table compacted",
		"table", table,
		"time_column", timeColumn,
		"rows_before", res.RowsBefore,
		"rows_after", res.RowsAfter,
		"duration", res.Duration)
	return res, nil
}

func (c *Compactor) compact(ctx context.Context, table, timeColumn string, res *Result) error {
	if err := validation.ValidateIdentifier("table", table); err != nil {
		return err
	}
	if err := validation.ValidateIdentifier("column", timeColumn); err != nil {
		return err
	}

	exists, err := c.store.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", table, errors.ErrTableNotFound)
	}

	d := c.store.Dialect()
	t := d.Quote(table)
	col := d.Quote(timeColumn)
	scratch := d.Quote(table + scratchSuffix)
	index := d.Quote(IndexName(table, timeColumn))

	if _, err := c.store.Exec(ctx, "DROP INDEX IF EXISTS "+index); err != nil {
		return errors.Wrapf(err, "compact %s", table)
	}

	err = c.store.TransactionContext(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&res.RowsBefore); err != nil {
			return fmt.Errorf("count %s: %v: %w", table, err, errors.ErrDatabase)
		}

		steps := []string{
			"DROP TABLE IF EXISTS " + scratch,
			fmt.Sprintf("DELETE FROM %s WHERE rowid NOT IN (SELECT MIN(rowid) FROM %s GROUP BY %s)", t, t, col),
			fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s ORDER BY %s", scratch, t, col),
			"DELETE FROM " + t,
			fmt.Sprintf("INSERT INTO %s SELECT * FROM %s ORDER BY %s", t, scratch, col),
			"DROP TABLE " + scratch,
		}
		for _, stmt := range steps {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("compact %s: %s: %v: %w", table, stmt, err, errors.ErrDatabase)
			}
		}

		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&res.RowsAfter); err != nil {
			return fmt.Errorf("count %s: %v: %w", table, err, errors.ErrDatabase)
		}
		return nil
	})
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", index, t, col)
	if _, err := c.store.Exec(ctx, stmt); err != nil {
		return errors.Wrapf(err, "index %s", table)
	}
	return nil
}

// CompactAll compacts every table in order. A failing table does not stop
// the others; the failures are joined into the returned error.
func (c *Compactor) CompactAll(ctx context.Context, tables map[string]string, order []string) ([]Result, error) {
	results := make([]Result, 0, len(order))
	var errs []error
	for _, name := range order {
		res, err := c.Compact(ctx, name, tables[name])
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
