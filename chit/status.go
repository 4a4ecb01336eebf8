package chit

import "time"

// GroupStatusAt derives a group's lifecycle phase from its start month and
// tenure. Pure function: upcoming before the start month begins, active
// within [start, start+tenure months), completed after.
//
// The start date's day component is ignored; a group starting "2025-01-15"
// is active for all of January 2025.
func GroupStatusAt(startMonth time.Time, tenure int, now time.Time) GroupStatus {
	start := MonthKeyFor(startMonth).Date()
	end := start.AddDate(0, tenure, 0)

	switch {
	case now.Before(start):
		return GroupUpcoming
	case now.Before(end):
		return GroupActive
	default:
		return GroupCompleted
	}
}
