// Package config provides configuration defaults and utilities
// for the tickstore application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultChunkSize is the number of records a producer reads per chunk.
	// Override via config: ingest.chunk_size
	DefaultChunkSize = 100000

	// DefaultChannelCapacity is the number of chunks that may be queued
	// between producers and the writer. Producers block when it is full.
	// Override via config: ingest.channel_capacity
	DefaultChannelCapacity = 8

	// DefaultAlignWindow is the half-width of the window kept around each
	// reference timestamp.
	// Override via config: ingest.window
	DefaultAlignWindow = time.Minute

	// DefaultTable receives every discovered file that is not mapped explicitly.
	// Override via config: ingest.default_table
	DefaultTable = "prices"
)

// =============================================================================
// Writer Defaults
// =============================================================================

const (
	// DefaultWriteAttempts is the number of append attempts per chunk before
	// the chunk is dropped.
	// Override via config: writer.max_attempts
	DefaultWriteAttempts = 5

	// DefaultWriteRetryDelay is the fixed pause between append attempts.
	// Override via config: writer.retry_delay
	DefaultWriteRetryDelay = time.Second
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultBackend is the embedded store used when none is configured.
	// Override via config: store.backend
	DefaultBackend = "duckdb"

	// DefaultOutputDir is where per-symbol store files are created.
	// Override via config: store.output_dir
	DefaultOutputDir = "."

	// DefaultBusyTimeoutMs is how long SQLite waits on a locked database
	// before returning SQLITE_BUSY to the writer.
	// Override via config: store.busy_timeout_ms
	DefaultBusyTimeoutMs = 5000

	// DefaultSymbol names the store file when no symbol can be derived.
	DefaultSymbol = "series"
)

// =============================================================================
// Backpressure Defaults
// =============================================================================

const (
	// DefaultBackpressureInterval is how often the channel fill ratio is sampled.
	// Override via config: backpressure.interval
	DefaultBackpressureInterval = 500 * time.Millisecond

	// DefaultBackpressureWarning is the fill ratio reported as warning.
	DefaultBackpressureWarning = 0.50

	// DefaultBackpressureCritical is the fill ratio reported as critical.
	DefaultBackpressureCritical = 0.90

	// DefaultBackpressureHysteresis prevents level flapping.
	DefaultBackpressureHysteresis = 0.10
)
