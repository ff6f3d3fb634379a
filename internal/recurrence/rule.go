// Package recurrence computes next occurrences for repeating tasks.
package recurrence

import "time"

type Type string

const (
	Daily   Type = "daily"
	Weekly  Type = "weekly"
	Monthly Type = "monthly"
)

// Rule is the canonical recurrence rule carried on repeating tasks.
// Weekday is numbered 0=Sunday through 6=Saturday.
type Rule struct {
	Type       Type       `json:"type"`
	Interval   int        `json:"interval"`
	Weekday    *int       `json:"weekday,omitempty"`
	DayOfMonth *int       `json:"day_of_month,omitempty"`
	AnchorDate *time.Time `json:"anchor_date,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

func (r Rule) Valid() bool {
	switch r.Type {
	case Daily, Weekly, Monthly:
	default:
		return false
	}
	if r.Weekday != nil && (*r.Weekday < 0 || *r.Weekday > 6) {
		return false
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		return false
	}
	return true
}

// Next returns the first occurrence strictly after from. The second return
// is false when the rule is invalid or the series has run past its end date.
//
// When from already falls on the target weekday, the occurrence advances a
// full cadence rather than landing on from itself: "next" is never from.
func (r Rule) Next(from time.Time) (time.Time, bool) {
	if !r.Valid() {
		return time.Time{}, false
	}
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	if r.StartDate != nil && from.Before(*r.StartDate) {
		from = *r.StartDate
	}

	var next time.Time
	switch r.Type {
	case Daily:
		next = from.AddDate(0, 0, interval)
	case Weekly:
		if r.Weekday == nil {
			next = from.AddDate(0, 0, 7*interval)
			break
		}
		delta := (*r.Weekday - int(from.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		next = from.AddDate(0, 0, delta+7*(interval-1))
	case Monthly:
		day := from.Day()
		if r.DayOfMonth != nil {
			day = *r.DayOfMonth
		}
		// Anchor at the first of the month so AddDate cannot overflow a
		// short target month before clamping.
		y, m, _ := from.Date()
		target := time.Date(y, m, 1, from.Hour(), from.Minute(), from.Second(), 0, from.Location()).
			AddDate(0, interval, 0)
		if max := daysInMonth(target.Year(), target.Month()); day > max {
			day = max
		}
		next = time.Date(target.Year(), target.Month(), day,
			from.Hour(), from.Minute(), from.Second(), 0, from.Location())
	}

	if r.EndDate != nil && next.After(*r.EndDate) {
		return time.Time{}, false
	}
	return next, true
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
