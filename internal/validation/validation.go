// Package validation provides centralized input validation for tickstore.
//
// Table and column names end up inside SQL statements, so they are checked
// against a strict identifier pattern instead of being escaped.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xtxerr/tickstore/internal/errors"
)

// =============================================================================
// Identifier Validation
// =============================================================================

// MaxIdentifierLength bounds table and column names.
const MaxIdentifierLength = 128

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether name is a valid table or column identifier.
func IsIdentifier(name string) bool {
	return len(name) <= MaxIdentifierLength && identifierPattern.MatchString(name)
}

// ValidateIdentifier validates a table or column name.
// kind is used in the error message ("table", "column").
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is empty: %w", kind, errors.ErrInvalidIdentifier)
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%s name %q longer than %d characters: %w",
			kind, name, MaxIdentifierLength, errors.ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid %s name: %q: %w", kind, name, errors.ErrInvalidIdentifier)
	}
	return nil
}

// =============================================================================
// Column Type Validation
// =============================================================================

// ColumnType is a declared storage type.
type ColumnType string

const (
	TypeText      ColumnType = "TEXT"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeReal      ColumnType = "REAL"
	TypeInteger   ColumnType = "INTEGER"
)

// ValidColumnTypes contains all valid column types
var ValidColumnTypes = []ColumnType{TypeText, TypeTimestamp, TypeReal, TypeInteger}

// ParseColumnType normalizes a declared type. Case is ignored; anything
// outside ValidColumnTypes is rejected.
func ParseColumnType(column, declared string) (ColumnType, error) {
	t := ColumnType(strings.ToUpper(strings.TrimSpace(declared)))
	for _, valid := range ValidColumnTypes {
		if t == valid {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid column type for %s: %q: %w", column, declared, errors.ErrInvalidColumnType)
}
