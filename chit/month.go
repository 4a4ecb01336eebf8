package chit

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - Calendar month identity ("July 2025")
// =============================================================================

// MonthKey identifies one calendar month. It is the unit of the obligation
// ledger: one entry per member per MonthKey. The display form ("July 2025")
// is also the persisted form, matching the ledger's natural key.
type MonthKey struct {
	Year  int
	Month time.Month
}

const monthKeyLayout = "January 2006"

// MonthKeyFor returns the month containing t.
func MonthKeyFor(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// ParseMonthKey parses the display form, e.g. "July 2025".
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: bad month key %q", ErrInvalidInput, s)
	}
	return MonthKeyFor(t), nil
}

func (m MonthKey) String() string {
	return m.Date().Format(monthKeyLayout)
}

// Date returns the first day of the month, UTC midnight.
func (m MonthKey) Date() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Index is the total month count since year zero: year*12 + month-index.
// Two MonthKeys compare by Index.
func (m MonthKey) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

func (m MonthKey) Add(n int) MonthKey {
	return MonthKeyFor(m.Date().AddDate(0, n, 0))
}

func (m MonthKey) Before(o MonthKey) bool { return m.Index() < o.Index() }
func (m MonthKey) After(o MonthKey) bool  { return m.Index() > o.Index() }
func (m MonthKey) Equal(o MonthKey) bool  { return m.Index() == o.Index() }
func (m MonthKey) IsZero() bool           { return m.Year == 0 && m.Month == 0 }

// =============================================================================
// CLASSIFICATION - Where a month sits relative to the wall clock
// =============================================================================

// ClassifyMonth maps a ledger month onto its initial status:
// strictly before the current calendar month -> due, the current month ->
// pending, later -> upcoming.
func ClassifyMonth(m MonthKey, now time.Time) EntryStatus {
	current := MonthKeyFor(now)
	switch {
	case m.Before(current):
		return EntryDue
	case m.Equal(current):
		return EntryPending
	default:
		return EntryUpcoming
	}
}
