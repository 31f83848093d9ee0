package config

import (
	"github.com/xtxerr/tickstore/internal/errors"
	"github.com/xtxerr/tickstore/internal/validation"
)

// Backends lists the supported store engines.
var Backends = []string{"duckdb", "sqlite"}

// Validate checks the configuration for errors. Every section is checked
// and all problems are reported together; each is a configuration error.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	v.Add(errors.Wrap(c.Store.Validate(), "store"))
	v.Add(errors.Wrap(c.Ingest.Validate(), "ingest"))
	v.Add(errors.Wrap(c.Writer.Validate(), "writer"))
	v.Add(errors.Wrap(c.ValidateTables(), "tables"))
	v.Add(errors.Wrap(c.Export.Validate(), "export"))
	v.Add(errors.Wrap(c.Backpressure.Validate(), "backpressure"))

	return v.Err()
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	v := errors.NewValidationErrors()

	valid := false
	for _, b := range Backends {
		if c.Backend == b {
			valid = true
		}
	}
	if !valid {
		v.Add(errors.NewInvalidValue("backend", c.Backend, "must be one of: duckdb, sqlite"))
	}

	if c.OutputDir == "" && c.Path == "" {
		v.AddMissing("output_dir")
	}

	if c.BusyTimeoutMs < 0 {
		v.AddField("busy_timeout_ms", "must not be negative")
	}

	return v.Err()
}

// Validate checks the ingest configuration.
func (c *IngestConfig) Validate() error {
	v := errors.NewValidationErrors()

	if err := validation.ValidateIdentifier("table", c.DefaultTable); err != nil {
		v.Add(errors.Wrap(err, "default_table"))
	}

	for _, f := range c.Files {
		if f.Path == "" {
			v.AddMissing("files.path")
		}
		if err := validation.ValidateIdentifier("table", f.Table); err != nil {
			v.Add(errors.Wrap(err, "files"))
		}
	}

	if c.ChunkSize <= 0 {
		v.AddField("chunk_size", "must be positive")
	}

	if c.ChannelCapacity <= 0 {
		v.AddField("channel_capacity", "must be positive")
	}

	if c.Reference.Window < 0 {
		v.AddField("reference.window", "must not be negative")
	}

	if c.Reference.TimeColumn != "" && c.Reference.Path == "" {
		v.AddMissing("reference.path")
	}

	return v.Err()
}

// Validate checks the writer configuration.
func (c *WriterConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.MaxAttempts < 1 {
		v.AddField("max_attempts", "must be at least 1")
	}

	if c.RetryDelay < 0 {
		v.AddField("retry_delay", "must not be negative")
	}

	if c.PercentileAccuracy <= 0 || c.PercentileAccuracy >= 1 {
		v.AddField("percentile_accuracy", "must be between 0 and 1")
	}

	return v.Err()
}

// ValidateTables checks every declared table and rejects duplicates.
func (c *Config) ValidateTables() error {
	v := errors.NewValidationErrors()

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if err := t.Validate(); err != nil {
			v.Add(err)
			continue
		}
		if seen[t.Name] {
			v.Add(errors.NewInvalidValue("table", t.Name, "declared twice"))
		}
		seen[t.Name] = true
	}

	return v.Err()
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	switch c.Compression {
	case "snappy", "zstd", "lz4", "gzip", "none", "":
		return nil
	default:
		return errors.NewInvalidValue("compression", c.Compression, "must be one of: snappy, zstd, lz4, gzip, none")
	}
}

// Validate checks the backpressure configuration.
func (c *BackpressureConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	v := errors.NewValidationErrors()

	if c.Interval <= 0 {
		v.AddField("interval", "must be positive")
	}

	if c.Warning <= 0 || c.Warning >= 1 {
		v.AddField("warning", "must be between 0 and 1")
	}

	if c.Critical <= c.Warning || c.Critical > 1 {
		v.AddField("critical", "must be above warning and at most 1")
	}

	if c.Hysteresis < 0 || c.Hysteresis >= c.Warning {
		v.AddField("hysteresis", "must be below the warning threshold")
	}

	return v.Err()
}
