package domain

import "time"

// Fine policy: a 3-day grace window after the due date, then the whole
// overdue period is charged at 3 currency units per day.
const (
	FinePerDay = 3
	GraceDays  = 3
)

// OverdueFine computes the fine owed when a loan due on due is returned
// at returnedAt. Within the grace window (inclusive) the fine is zero;
// past it, every elapsed overdue day is charged, not just the days
// beyond the grace.
func OverdueFine(due, returnedAt time.Time) int {
	extra := DaysBetween(due, returnedAt)
	if extra <= GraceDays {
		return 0
	}
	return extra * FinePerDay
}

// OverdueFinePreview is the fine estimate the overdue scan reports. It
// charges from the first overdue day with no grace window, matching the
// mail job this replaces rather than the return-time calculation.
func OverdueFinePreview(due, now time.Time) int {
	extra := DaysBetween(due, now)
	if extra <= 0 {
		return 0
	}
	return extra * FinePerDay
}

// DaysBetween returns whole calendar days from a to b in UTC, negative
// when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// DateOnly truncates t to its UTC calendar date. Circulation dates are
// kept at day granularity.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
