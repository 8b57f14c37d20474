// Package dates handles the canonical timestamp format used across
// every persisted record: RFC 3339 in UTC with a trailing Z.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Zulu is the canonical storage format for all dates and timestamps.
const Zulu = "2006-01-02T15:04:05Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// Now returns the current instant in canonical form.
func Now() string {
	return time.Now().UTC().Format(Zulu)
}

// Parse interprets value using the accepted layouts. Values without an
// explicit zone are treated as UTC.
func Parse(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("parse date: empty value")
	}
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date: unrecognized value %q", value)
}

// ToZulu converts any accepted date string to canonical form.
// Malformed input is an error, never silently defaulted.
func ToZulu(value string) (string, error) {
	t, err := Parse(value)
	if err != nil {
		return "", err
	}
	return t.Format(Zulu), nil
}

// SubtractDays returns value minus the given number of days, in
// canonical form.
func SubtractDays(value string, days int) (string, error) {
	t, err := Parse(value)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -days).Format(Zulu), nil
}

// Format renders t in canonical form.
func Format(t time.Time) string {
	return t.UTC().Format(Zulu)
}
