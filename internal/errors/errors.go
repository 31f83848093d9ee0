// Package errors holds the error definitions shared by every tickstore package.
//
// This file provides:
// - Process exit codes for the command line tool
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Exit codes - returned by cmd/tickstore
// ============================================================================

const (
	ExitOK        = 0
	ExitInternal  = 1
	ExitConfig    = 2
	ExitSchema    = 3
	ExitStore     = 4
	ExitInput     = 5
	ExitCancelled = 130
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Configuration errors, fatal before ingestion starts
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidColumnType = errors.New("invalid column type")
	ErrMissingField      = errors.New("missing required field")

	// Input errors, isolated to one file or row
	ErrMissingInput      = errors.New("file not found")
	ErrUnsupportedSource = errors.New("unsupported source format")
	ErrParse             = errors.New("timestamp parse failed")

	// Schema-shape errors, fatal for one alignment call
	ErrSchema = errors.New("no recognized time column")

	// Store errors
	ErrTransientWrite = errors.New("store temporarily locked")
	ErrDatabase       = errors.New("database error")
	ErrTableNotFound  = errors.New("table not found")
	ErrStoreClosed    = errors.New("store is closed")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsConfig returns true if err is a configuration-time error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInvalidColumnType) ||
		errors.Is(err, ErrMissingField)
}

// IsInput returns true if err is isolated to a single input file or row.
func IsInput(err error) bool {
	return errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrUnsupportedSource) ||
		errors.Is(err, ErrParse)
}

// IsSchema returns true if err is a schema-shape error.
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransientWrite)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsConfig(err):
		return ExitConfig
	case IsSchema(err):
		return ExitSchema
	case errors.Is(err, ErrDatabase), errors.Is(err, ErrTableNotFound):
		return ExitStore
	case IsInput(err):
		return ExitInput
	default:
		return ExitInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewMissingInput reports a mapped input file that does not exist.
func NewMissingInput(table, path string) error {
	return fmt.Errorf("file for %s table was not found (%s): %w", table, path, ErrMissingInput)
}

// NewSchema reports a chunk without a recognized time column.
func NewSchema(source string, header []string) error {
	return fmt.Errorf("%s: header %q: %w", source, header, ErrSchema)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
