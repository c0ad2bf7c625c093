package credits

import "time"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindow returns the UTC calendar month containing now.
func MonthWindow(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
