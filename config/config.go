package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tickstore/internal/schema"
)

// Config represents the complete tickstore configuration.
type Config struct {
	// Store selects the embedded database and where it lives.
	Store StoreConfig `yaml:"store"`

	// Ingest configures discovery, alignment and chunking.
	Ingest IngestConfig `yaml:"ingest"`

	// Writer configures the single committing writer.
	Writer WriterConfig `yaml:"writer"`

	// Tables declares destination tables. Tables without columns get
	// their schema from the first input file assigned to them.
	Tables []schema.Table `yaml:"tables"`

	// Export configures Parquet export of compacted tables.
	Export ExportConfig `yaml:"export"`

	// Backpressure configures the channel fill monitor.
	Backpressure BackpressureConfig `yaml:"backpressure"`

	// Log configures process logging.
	Log LogConfig `yaml:"log"`
}

// StoreConfig selects the embedded database.
type StoreConfig struct {
	// Backend is the database engine: duckdb or sqlite.
	Backend string `yaml:"backend"`

	// OutputDir holds one database file per symbol.
	OutputDir string `yaml:"output_dir"`

	// Path overrides the derived <output_dir>/<symbol>.db location.
	Path string `yaml:"path"`

	// Symbol overrides the symbol derived from the first input file.
	Symbol string `yaml:"symbol"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`

	// MemoryLimit is the DuckDB memory limit, e.g. "2GB".
	MemoryLimit string `yaml:"memory_limit"`
}

// IngestConfig configures discovery, alignment and chunking.
type IngestConfig struct {
	// InputDir is scanned for .csv and .parquet files.
	InputDir string `yaml:"input_dir"`

	// DefaultTable receives scanned files without an explicit mapping.
	DefaultTable string `yaml:"default_table"`

	// Files maps individual files to tables.
	Files []FileMapping `yaml:"files"`

	// Reference configures the event series used for alignment.
	Reference ReferenceConfig `yaml:"reference"`

	// ChunkSize is the number of records per chunk.
	ChunkSize int `yaml:"chunk_size"`

	// ChannelCapacity bounds the queue between producers and the writer.
	ChannelCapacity int `yaml:"channel_capacity"`

	// UseMmap memory-maps CSV inputs.
	UseMmap bool `yaml:"use_mmap"`
}

// FileMapping assigns one input file to a table.
type FileMapping struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// ReferenceConfig configures the reference series.
type ReferenceConfig struct {
	// Path is the reference file. Empty disables alignment.
	Path string `yaml:"path"`

	// TimeColumn names the timestamp column. Empty selects the first
	// recognized time column.
	TimeColumn string `yaml:"time_column"`

	// Window is the half-width kept around each reference timestamp.
	// Format: "1m", "30s"
	Window time.Duration `yaml:"window"`
}

// WriterConfig configures the writer retry policy.
type WriterConfig struct {
	// MaxAttempts is the number of append attempts per chunk.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// PercentileAccuracy is the relative accuracy of latency quantiles.
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Enabled exports every compacted table.
	Enabled bool `yaml:"enabled"`

	// Dir receives <table>.parquet files. Defaults to the output dir.
	Dir string `yaml:"dir"`

	// Compression is the codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// BackpressureConfig configures the channel fill monitor.
type BackpressureConfig struct {
	// Enabled starts the monitor during ingestion.
	Enabled bool `yaml:"enabled"`

	// Interval is the sampling period.
	Interval time.Duration `yaml:"interval"`

	// Warning threshold (0.0-1.0).
	Warning float64 `yaml:"warning"`

	// Critical threshold (0.0-1.0).
	Critical float64 `yaml:"critical"`

	// Hysteresis to prevent flapping (0.0-1.0).
	Hysteresis float64 `yaml:"hysteresis"`
}

// LogConfig configures process logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file. Environment variables in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:       DefaultBackend,
			OutputDir:     DefaultOutputDir,
			BusyTimeoutMs: DefaultBusyTimeoutMs,
		},
		Ingest: IngestConfig{
			InputDir:        "",
			DefaultTable:    DefaultTable,
			ChunkSize:       DefaultChunkSize,
			ChannelCapacity: DefaultChannelCapacity,
			Reference: ReferenceConfig{
				Window: DefaultAlignWindow,
			},
		},
		Writer: WriterConfig{
			MaxAttempts:        DefaultWriteAttempts,
			RetryDelay:         DefaultWriteRetryDelay,
			PercentileAccuracy: 0.01,
		},
		Tables: DefaultTables(),
		Export: ExportConfig{
			Compression: "zstd",
		},
		Backpressure: BackpressureConfig{
			Enabled:    true,
			Interval:   DefaultBackpressureInterval,
			Warning:    DefaultBackpressureWarning,
			Critical:   DefaultBackpressureCritical,
			Hysteresis: DefaultBackpressureHysteresis,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultTables returns the standard per-category tables. Their columns are
// inferred from input files.
func DefaultTables() []schema.Table {
	return []schema.Table{
		{Name: "ticks", TimeColumn: "time"},
		{Name: "askPrices", TimeColumn: "gmt_time"},
		{Name: "bidPrices", TimeColumn: "gmt_time"},
		{Name: "baseInterests", TimeColumn: "release_time"},
		{Name: "quoteInterests", TimeColumn: "release_time"},
	}
}

// Normalize canonicalizes declared column types and trims paths.
func (c *Config) Normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	for i := range c.Tables {
		c.Tables[i].Normalize()
	}
	for i := range c.Ingest.Files {
		c.Ingest.Files[i].Path = strings.TrimSpace(c.Ingest.Files[i].Path)
	}
}

// Table returns the declared table with the given name.
func (c *Config) Table(name string) (schema.Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return schema.Table{}, false
}

// MapFile assigns path to table, replacing an earlier mapping of the same
// table.
func (c *Config) MapFile(table, path string) {
	for i := range c.Ingest.Files {
		if c.Ingest.Files[i].Table == table {
			c.Ingest.Files[i].Path = path
			return
		}
	}
	c.Ingest.Files = append(c.Ingest.Files, FileMapping{Path: path, Table: table})
}

// DBPath returns the database file for symbol.
func (c *StoreConfig) DBPath(symbol string) string {
	if c.Path != "" {
		return c.Path
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return filepath.Join(c.OutputDir, symbol+".db")
}

// ExportDir returns where Parquet exports are written.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	return c.Store.OutputDir
}
