package timecol

import (
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/tickstore/internal/errors"
)

// Format is a source timestamp layout family. A format is resolved once per
// chunk and then applied to every row of it.
type Format int

const (
	// FormatUnknown means no supported layout matched.
	FormatUnknown Format = iota

	// FormatISO is year-first with dashes: 2024-03-01 09:00:00.000
	FormatISO

	// FormatDayFirst is day-first with dots: 01.03.2024 09:00:00.000
	FormatDayFirst

	// FormatDotted is year-first with dots, as used by event calendars:
	// 2024.03.01 09:00:00
	FormatDotted

	// FormatCompact is compact numeric: 20240301090000
	FormatCompact
)

// CanonicalLayout is the persisted text representation. Fixed width keeps
// lexical and chronological order identical.
const CanonicalLayout = "2006-01-02 15:04:05.000000"

// Fractional seconds are accepted by time.Parse after the seconds field even
// when the layout does not carry them.
var layouts = map[Format][]string{
	FormatISO:      {"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05"},
	FormatDayFirst: {"02.01.2006 15:04:05"},
	FormatDotted:   {"2006.01.02 15:04:05", "2006.01.02 15:04"},
	FormatCompact:  {"20060102150405", "20060102 150405"},
}

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatISO:
		return "iso"
	case FormatDayFirst:
		return "day-first"
	case FormatDotted:
		return "dotted"
	case FormatCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// Parse parses s with this format. The result is always UTC.
func (f Format) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts[f] {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q as %s: %w", s, f, errors.ErrParse)
}

// detectSample bounds how many non-empty values Detect inspects.
const detectSample = 16

// Detect returns the first candidate format that parses one of the leading
// non-empty values, or FormatUnknown.
func Detect(values []string, candidates []Format) Format {
	seen := 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		for _, f := range candidates {
			if _, err := f.Parse(v); err == nil {
				return f
			}
		}
		seen++
		if seen >= detectSample {
			break
		}
	}
	return FormatUnknown
}

// FormatCanonical renders t in the persisted representation.
func FormatCanonical(t time.Time) string {
	return t.UTC().Format(CanonicalLayout)
}

// ParseStored parses a timestamp read back from a store. Drivers return
// either the canonical text or an RFC 3339 rendering.
func ParseStored(s string) (time.Time, error) {
	for _, layout := range []string{CanonicalLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, errors.ErrParse)
}
