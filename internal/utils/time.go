package utils

import (
	"time"
)

// TruncateToMinute normalizes a timestamp to its UTC minute boundary.
func TruncateToMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// DayStart returns midnight UTC of the calendar day containing t. Calendar
// days are always derived by truncation, never from a stored date column.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayEnd returns midnight UTC of the day after the one containing t.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).Add(24 * time.Hour)
}

// MinuteBoundaries expands [start, end) into every minute boundary it
// contains, ascending. Start is rounded up to a boundary, end is exclusive.
func MinuteBoundaries(start, end time.Time) []time.Time {
	first := TruncateToMinute(start)
	if first.Before(start.UTC()) {
		first = first.Add(time.Minute)
	}
	var out []time.Time
	for m := first; m.Before(end.UTC()); m = m.Add(time.Minute) {
		out = append(out, m)
	}
	return out
}

// MissingMinutes returns the boundaries of [start, end) that have no entry in
// existing, ascending.
func MissingMinutes(start, end time.Time, existing []time.Time) []time.Time {
	have := make(map[int64]struct{}, len(existing))
	for _, m := range existing {
		have[TruncateToMinute(m).Unix()] = struct{}{}
	}
	var missing []time.Time
	for _, m := range MinuteBoundaries(start, end) {
		if _, ok := have[m.Unix()]; !ok {
			missing = append(missing, m)
		}
	}
	return missing
}

// ParseDay parses a YYYY-MM-DD string into midnight UTC of that day.
func ParseDay(value string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return d.UTC(), nil
}

// FormatDay renders midnight-truncated timestamps back into YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
