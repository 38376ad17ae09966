package device

import "time"

// timestampLayout stores times in UTC with fixed microsecond precision so
// that text ordering in SQLite matches chronological ordering.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the storage layout and plain RFC3339 for rows
// written by hand or by older tooling.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
