package utils

import (
	"fmt"
	"time"
)

// DayStartMillis parses a YYYY-MM-DD date and returns the Unix
// milliseconds of that day's midnight UTC.
func DayStartMillis(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return t.UnixMilli(), nil
}

// DayEndMillis parses a YYYY-MM-DD date and returns the Unix milliseconds
// of the last instant of that day in UTC. Used for inclusive end-date
// filters.
func DayEndMillis(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, time.UTC)
	return end.UnixMilli(), nil
}

// MillisToTime converts Unix milliseconds to a UTC time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
