// Package units converts and formats the values shown on the report: report
// timestamps, record counts and distances.
package units

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // containers often ship without /usr/share/zoneinfo
)

// timestampLayouts are the layouts the backend emits for report times:
// pandas' str() of a UTC timestamp, ISO8601 with and without zone, and
// plain dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a report timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsTimezoneValid checks the timezone against the system tz database.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts a UTC time to the specified timezone for display.
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime.UTC(), nil
	}

	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}
	return utcTime.In(loc), nil
}

// FormatTimestamp renders a backend timestamp in the given timezone. Values
// that do not parse are returned unchanged.
func FormatTimestamp(s, timezone string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	local, err := ConvertTime(t, timezone)
	if err != nil {
		local = t
	}
	return local.Format("2006-01-02 15:04:05 MST")
}
