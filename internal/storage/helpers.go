package storage

import (
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so lexicographic order on TEXT columns matches
// chronological order in both dialects.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in the canonical stored form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reads a stored timestamp. RFC3339 values written by hand are accepted too.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString maps "" to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps nil or zero to SQL NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// Placeholders returns "?,?,?" for count arguments.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
