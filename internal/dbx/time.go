package dbx

import (
	"fmt"
	"time"
)

// SQLite has no native date/time types; all repositories store timestamps as
// RFC 3339 text and calendar dates as YYYY-MM-DD text so rows stay readable
// and lexicographic ordering matches chronological ordering.

const dateLayout = "2006-01-02"

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NullTime formats an optional timestamp, mapping nil to SQL NULL.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// NullDate formats an optional date, mapping nil to SQL NULL.
func NullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatDate(*t)
}
