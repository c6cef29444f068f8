package evidence

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// dateFormats covers the date spellings seen in Indian policy and
// repudiation documents. Day-first formats are assumed for numeric dates.
var dateFormats = []string{
	"2006-01-02",
	"2-1-2006",
	"2/1/2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses a document date in any supported format, returning a
// date-only UTC time.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("evidence: unsupported date format: %q", value)
}

// isoDate formats a time as ISO 8601 date.
func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// daysBetween returns whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
