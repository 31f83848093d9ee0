// Package timecol knows the time columns tickstore recognizes in source files
// and the timestamp layouts each of them may carry.
//
// There are exactly two column shapes:
//   - price columns ("time", "Gmt time") are aligned against the reference
//     series;
//   - event columns ("RELEASE_TIME") are reference-like data and pass through
//     alignment unfiltered.
package timecol

import "strings"

// Role says how alignment treats a time column.
type Role int

const (
	// RolePrice columns are filtered against the reference windows.
	RolePrice Role = iota

	// RoleEvent columns pass through alignment unchanged.
	RoleEvent
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RolePrice:
		return "price"
	case RoleEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Column describes one recognized time column.
type Column struct {
	// Header is the name used in source files.
	Header string

	// Name is the persisted column identifier.
	Name string

	// Role decides whether alignment filters on this column.
	Role Role

	// Formats are the candidate layouts, in detection order.
	Formats []Format
}

// Known lists the recognized time columns in lookup priority order.
var Known = []Column{
	{Header: "time", Name: "time", Role: RolePrice, Formats: []Format{FormatISO, FormatCompact}},
	{Header: "Gmt time", Name: "gmt_time", Role: RolePrice, Formats: []Format{FormatDayFirst, FormatISO}},
	{Header: "RELEASE_TIME", Name: "release_time", Role: RoleEvent, Formats: []Format{FormatDotted, FormatISO}},
}

// Lookup matches a single header against the registry. Both the source
// header and the persisted name are accepted.
func Lookup(header string) (Column, bool) {
	h := strings.TrimSpace(header)
	for _, c := range Known {
		if h == c.Header || h == c.Name {
			return c, true
		}
	}
	return Column{}, false
}

// Find returns the highest-priority recognized time column present in
// header and its index.
func Find(header []string) (Column, int, bool) {
	for _, c := range Known {
		for i, h := range header {
			h = strings.TrimSpace(h)
			if h == c.Header || h == c.Name {
				return c, i, true
			}
		}
	}
	return Column{}, -1, false
}

// FindUnique returns the recognized time column only if exactly one header
// matches the registry.
func FindUnique(header []string) (Column, int, bool) {
	var (
		found Column
		index = -1
	)
	for i, h := range header {
		c, ok := Lookup(h)
		if !ok {
			continue
		}
		if index >= 0 {
			return Column{}, -1, false
		}
		found, index = c, i
	}
	return found, index, index >= 0
}
