package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/align"
	"github.com/xtxerr/tickstore/internal/backpressure"
	"github.com/xtxerr/tickstore/internal/compaction"
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/export"
	"github.com/xtxerr/tickstore/internal/logging"
	"github.com/xtxerr/tickstore/internal/retry"
	"github.com/xtxerr/tickstore/internal/schema"
	"github.com/xtxerr/tickstore/internal/source"
	"github.com/xtxerr/tickstore/internal/store"
	"github.com/xtxerr/tickstore/internal/timecol"
)

// Coordinator runs one ingestion from configuration to compacted tables.
type Coordinator struct {
	cfg *config.Config

	// SkipIngest compacts the tables of an existing store without reading
	// any input.
	SkipIngest bool
}

// NewCoordinator creates a coordinator for cfg.
func NewCoordinator(cfg *config.Config) *Coordinator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Coordinator{cfg: cfg}
}

// Run executes the pipeline:
//
//  1. validate the configuration and every table schema
//  2. build the file assignment and resolve missing schemas
//  3. load the reference series
//  4. open the store and create the tables
//  5. run one writer and one producer per file; after the producers return,
//     send EndOfStream and wait for the writer
//  6. compact every created table, then export if enabled
//
// Configuration errors abort before the store is opened. Missing files and
// dropped chunks are recorded in the report only. Schema-shape failures of
// producers and compaction failures are joined into the returned error,
// after every table has been compacted.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	report := newReport(c.cfg.Store.Backend)
	ctx = logging.ContextWithRunID(ctx, report.RunID)
	log := logging.WithContext(ctx).With("component", "coordinator")

	err := c.run(ctx, log, report)
	report.finish(err)

	if err != nil {
		log.Error("run failed", "error", err, "duration", report.Duration)
	} else {
		log.Info("run complete", "duration", report.Duration, "missing_files", len(report.Missing()))
	}
	return report, err
}

func (c *Coordinator) run(ctx context.Context, log *slog.Logger, report *Report) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	assignment, err := BuildAssignment(c.cfg.Ingest)
	if err != nil {
		return err
	}
	report.Assignment = assignment

	if c.SkipIngest {
		report.Mode = ModeCompact
		return c.compactExisting(ctx, log, assignment, report)
	}
	report.Mode = ModeIngest

	tables, err := c.resolveTables(log, assignment)
	if err != nil {
		return err
	}

	var ref *align.ReferenceSeries
	if rc := c.cfg.Ingest.Reference; rc.Path != "" {
		ref, err = align.LoadReference(rc.Path, rc.TimeColumn, rc.Window, c.sourceOptions())
		if err != nil {
			return err
		}
		report.Reference = summarizeReference(rc.Path, ref)
	} else {
		log.Info("no reference series, alignment disabled")
	}

	s, err := c.openStore(ctx, assignment, report)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, t := range tables {
		if err := s.CreateTableIfAbsent(ctx, t); err != nil {
			return err
		}
		report.Tables = append(report.Tables, t.Name)
	}
	log.Info("tables ready", "tables", report.Tables, "files", len(assignment))

	ingestErr := c.ingest(ctx, s, tables, assignment, ref, report)

	compactErr := c.compact(ctx, log, s, tables, report)
	exportErr := c.export(ctx, s, report)

	return errors.Join(ingestErr, compactErr, exportErr)
}

// resolveTables returns the schema of every table that receives at least one
// existing file. Tables without declared columns take their schema from the
// first readable file assigned to them.
func (c *Coordinator) resolveTables(log *slog.Logger, a Assignment) ([]schema.Table, error) {
	var out []schema.Table
	for _, name := range a.Tables() {
		t, ok := c.cfg.Table(name)
		if !ok {
			t = schema.Table{Name: name}
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}

		files := a.Files(name)
		if t.Resolved() {
			if !anyExists(files) {
				log.Warn("no input for table, not created", "table", name)
				continue
			}
			out = append(out, t)
			continue
		}

		inferred, found, err := c.inferTable(log, t, files)
		if err != nil {
			return nil, err
		}
		if !found {
			log.Warn("no input for table, not created", "table", name)
			continue
		}
		out = append(out, inferred)
	}
	return out, nil
}

func (c *Coordinator) inferTable(log *slog.Logger, t schema.Table, files []string) (schema.Table, bool, error) {
	for _, path := range files {
		header, first, err := source.Peek(path, c.sourceOptions())
		if err != nil {
			log.Debug("cannot peek file", "table", t.Name, "file", path, "error", err)
			continue
		}

		inferred, err := schema.Infer(t.Name, header, first)
		if err != nil {
			return schema.Table{}, false, fmt.Errorf("file %s: %w", path, err)
		}
		if t.TimeColumn != "" && inferred.Column(t.TimeColumn) != nil {
			inferred.TimeColumn = t.TimeColumn
		}

		log.Info("schema inferred",
			"table", t.Name,
			"file", path,
			"columns", inferred.ColumnNames(),
			"time_column", inferred.TimeColumn)
		return inferred, true, nil
	}
	return t, false, nil
}

func (c *Coordinator) sourceOptions() source.Options {
	return source.Options{UseMmap: c.cfg.Ingest.UseMmap}
}

// openStore opens <output_dir>/<symbol>.db, the symbol coming from the
// configuration or from the first assigned file.
func (c *Coordinator) openStore(ctx context.Context, a Assignment, report *Report) (*store.Store, error) {
	symbol := c.cfg.Store.Symbol
	if symbol == "" && len(a) > 0 {
		symbol = source.Symbol(a[0].Path)
	}

	cfg := store.DefaultConfig()
	cfg.Backend = c.cfg.Store.Backend
	cfg.Path = c.cfg.Store.DBPath(symbol)
	cfg.BusyTimeoutMs = c.cfg.Store.BusyTimeoutMs
	cfg.MemoryLimit = c.cfg.Store.MemoryLimit

	report.Symbol = symbol
	report.StorePath = cfg.Path

	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logging.Component("coordinator").Info("store opened",
		"backend", cfg.Backend,
		"path", cfg.Path,
		"symbol", symbol)
	return s, nil
}

// ingest runs the writer and the producers with the two-phase join:
// producers first, then the sentinel, then the writer.
func (c *Coordinator) ingest(ctx context.Context, s *store.Store, tables []schema.Table, a Assignment, ref *align.ReferenceSeries, report *Report) error {
	session, err := s.Session(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	items := make(chan Item, c.cfg.Ingest.ChannelCapacity)

	policy := retry.Policy{
		MaxAttempts: c.cfg.Writer.MaxAttempts,
		Delay:       c.cfg.Writer.RetryDelay,
	}
	writer := NewWriter(session, s.Dialect(), tables, policy, c.cfg.Writer.PercentileAccuracy)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(ctx, items)
	}()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monitorDone := make(chan struct{})
	var monitor *backpressure.Controller
	if bp := c.cfg.Backpressure; bp.Enabled {
		monitor = backpressure.New(backpressure.Config{
			Warning:    bp.Warning,
			Critical:   bp.Critical,
			Hysteresis: bp.Hysteresis,
			Interval:   bp.Interval,
		}, backpressure.NewChannelGauge(items))
		go func() {
			defer close(monitorDone)
			monitor.Run(monitorCtx)
		}()
	} else {
		close(monitorDone)
	}

	producer := NewProducer(ref, c.cfg.Ingest.ChunkSize, c.sourceOptions())
	results := make([]FileResult, len(a))
	errs := make([]error, len(a))

	// Producer failures stay isolated to their file, so no goroutine
	// returns an error to the group.
	var g errgroup.Group
	for i, e := range a {
		g.Go(func() error {
			results[i], errs[i] = producer.Produce(ctx, e.Path, e.Table, items)
			return nil
		})
	}
	_ = g.Wait()

	select {
	case items <- EndOfStream:
	case <-writerDone:
	}
	<-writerDone

	stopMonitor()
	<-monitorDone

	report.Files = results
	summary := writer.Stats().Summary()
	report.Writer = &summary
	if monitor != nil {
		bp := monitor.Summary()
		report.Backpressure = &bp
	}
	return errors.Join(errs...)
}

// compact compacts every table that has a time column.
func (c *Coordinator) compact(ctx context.Context, log *slog.Logger, s *store.Store, tables []schema.Table, report *Report) error {
	timeColumns := make(map[string]string, len(tables))
	var order []string
	for _, t := range tables {
		if t.TimeColumn == "" {
			log.Warn("table has no time column, not compacted", "table", t.Name)
			continue
		}
		timeColumns[t.Name] = t.TimeColumn
		order = append(order, t.Name)
	}

	results, err := compaction.New(s).CompactAll(ctx, timeColumns, order)
	report.Compaction = results
	return err
}

// compactExisting compacts the tables of an existing store. Candidates are
// the declared tables, the assigned tables and the default table; those the
// store holds are compacted. A table whose time column is not declared, or
// not stored under the declared name, uses the recognized time column among
// its stored columns.
func (c *Coordinator) compactExisting(ctx context.Context, log *slog.Logger, a Assignment, report *Report) error {
	path := c.cfg.Store.DBPath(c.cfg.Store.Symbol)
	if c.cfg.Store.Symbol == "" && len(a) > 0 {
		path = c.cfg.Store.DBPath(source.Symbol(a[0].Path))
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("existing database %s: %w", path, errors.ErrMissingInput)
	}

	s, err := c.openStore(ctx, a, report)
	if err != nil {
		return err
	}
	defer s.Close()

	stored, err := s.Tables(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(stored))
	for _, name := range stored {
		have[name] = true
	}

	var present []schema.Table
	seen := make(map[string]bool)
	for _, t := range c.existingCandidates(a) {
		if seen[t.Name] || !have[t.Name] {
			continue
		}
		seen[t.Name] = true

		cols, err := s.Columns(ctx, t.Name)
		if err != nil {
			return err
		}
		if !hasColumn(cols, t.TimeColumn) {
			t.TimeColumn = ""
			if _, i, ok := timecol.Find(cols); ok {
				t.TimeColumn = cols[i]
			}
		}
		present = append(present, t)
	}
	log.Info("compacting existing store", "path", s.Path(), "tables", len(present))

	compactErr := c.compact(ctx, log, s, present, report)
	exportErr := c.export(ctx, s, report)
	return errors.Join(compactErr, exportErr)
}

func (c *Coordinator) existingCandidates(a Assignment) []schema.Table {
	out := append([]schema.Table(nil), c.cfg.Tables...)
	names := append(a.Tables(), c.cfg.Ingest.DefaultTable)
	for _, name := range names {
		if t, ok := c.cfg.Table(name); ok {
			out = append(out, t)
		} else {
			out = append(out, schema.Table{Name: name})
		}
	}
	return out
}

// export writes every successfully compacted table to Parquet.
func (c *Coordinator) export(ctx context.Context, s *store.Store, report *Report) error {
	if !c.cfg.Export.Enabled {
		return nil
	}

	opts := export.DefaultOptions()
	opts.Compression = export.ParseCompressionType(c.cfg.Export.Compression)

	var errs []error
	for _, r := range report.Compaction {
		if r.Error != "" {
			continue
		}
		res, err := export.Table(ctx, s, r.Table, r.TimeColumn, c.cfg.ExportDir(), opts)
		report.Exports = append(report.Exports, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func anyExists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func newRunID() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}
