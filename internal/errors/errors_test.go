package errors

import (
	"fmt"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		config    bool
		input     bool
		schema    bool
		retriable bool
	}{
		{"identifier", fmt.Errorf("table 1bad: %w", ErrInvalidIdentifier), true, false, false, false},
		{"column type", ErrInvalidColumnType, true, false, false, false},
		{"missing input", NewMissingInput("ticks", "/nope.csv"), false, true, false, false},
		{"parse", ErrParse, false, true, false, false},
		{"schema", NewSchema("a.csv", []string{"x"}), false, false, true, false},
		{"transient", Wrap(ErrTransientWrite, "append ticks"), false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfig(tt.err); got != tt.config {
				t.Errorf("IsConfig = %v, want %v", got, tt.config)
			}
			if got := IsInput(tt.err); got != tt.input {
				t.Errorf("IsInput = %v, want %v", got, tt.input)
			}
			if got := IsSchema(tt.err); got != tt.schema {
				t.Errorf("IsSchema = %v, want %v", got, tt.schema)
			}
			if got := IsRetriable(tt.err); got != tt.retriable {
				t.Errorf("IsRetriable = %v, want %v", got, tt.retriable)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{NewValidation("ingest.chunk_size", "must be positive"), ExitConfig},
		{NewSchema("a.csv", nil), ExitSchema},
		{Wrap(ErrDatabase, "open"), ExitStore},
		{Wrapf(ErrMissingInput, "existing database %s", "EURUSD.db"), ExitInput},
		{fmt.Errorf("boom"), ExitInternal},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.Add(nil)
	v.AddField("store.backend", "unknown backend")
	v.Add(fmt.Errorf("column 2x: %w", ErrInvalidIdentifier))

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	err := v.Err()
	if !Is(err, ErrInvalidIdentifier) {
		t.Error("collector should unwrap to every collected error")
	}
	if !Is(err, ErrInvalidConfig) {
		t.Error("collector should unwrap to the field error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
