package sender

import "time"

// withinOfficeHours reports whether the hour of t falls in [start, end).
func withinOfficeHours(t time.Time, start, end int) bool {
	h := t.Hour()
	return h >= start && h < end
}

// nextWindowOpen returns the start of the next office window at or after t.
// Every calendar day has a window; weekends are not skipped.
func nextWindowOpen(t time.Time, start, end int) time.Time {
	open := time.Date(t.Year(), t.Month(), t.Day(), start, 0, 0, 0, t.Location())
	if t.Hour() < start {
		return open
	}
	return open.AddDate(0, 0, 1)
}
