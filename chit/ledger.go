/*
ledger.go - Monthly obligation entries and their generator

PURPOSE:
  When a member joins a group, their entire payment schedule is materialized
  up front: one LedgerEntry per month of the group's tenure. Entries are
  created once, in a single batch, and then only mutated in place as payments
  are confirmed. There is no regeneration path.

STATE MACHINE:
  upcoming -> pending -> due -> paid

  Time moves entries toward due (the generator classifies against the wall
  clock at creation); an explicit payment moves any non-paid entry straight
  to paid. Paid is terminal and records method + date. Payment failures are
  a Request-layer concern; entries have no failed state.

SEE ALSO:
  - enroll.go:   persists the generated batch atomically with the member add
  - pricing.go:  monthly due rounding and prebook premiums
*/
package chit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER ENTRY - One member's obligation for one calendar month
// =============================================================================

// LedgerEntry is keyed by (GroupID, UserID, Month); the triple is unique.
type LedgerEntry struct {
	ID      string
	GroupID GroupID
	UserID  UserID
	Month   MonthKey

	Status EntryStatus

	// MonthDue is the base monthly obligation: share / tenure, rounded.
	MonthDue Money

	// Set only once Status is paid.
	PaymentMethod string
	PaymentDate   *time.Time

	CreatedAt time.Time
}

// StatusAt reclassifies a non-paid entry against the wall clock. The stored
// status is a creation-time snapshot; readers want the current one.
func (e *LedgerEntry) StatusAt(now time.Time) EntryStatus {
	if e.Status == EntryPaid {
		return EntryPaid
	}
	return ClassifyMonth(e.Month, now)
}

// MarkPaid moves the entry to paid, recording how and when. Any non-paid
// entry may be paid regardless of how it got to its current state.
func (e *LedgerEntry) MarkPaid(method string, at time.Time) error {
	if e.Status == EntryPaid {
		return ErrEntryAlreadyPaid
	}
	if method == "" {
		return fmt.Errorf("%w: payment method required", ErrInvalidInput)
	}
	e.Status = EntryPaid
	e.PaymentMethod = method
	e.PaymentDate = &at
	return nil
}

// =============================================================================
// LEDGER GENERATOR
// =============================================================================

// GenerateLedger produces the ordered monthly-obligation entries for a member:
// one per calendar month starting at startMonth's month (day normalized to
// the 1st), each classified against now. Deterministic given now; no side
// effects.
func GenerateLedger(groupID GroupID, userID UserID, startMonth time.Time, tenure int, share Money, now time.Time) ([]LedgerEntry, error) {
	if startMonth.IsZero() {
		return nil, fmt.Errorf("%w: start month required", ErrInvalidInput)
	}
	if tenure <= 0 {
		return nil, fmt.Errorf("%w: tenure must be positive", ErrInvalidInput)
	}
	if !share.IsPositive() {
		return nil, ErrInvalidShare
	}

	due := MonthlyDue(share, tenure)
	start := MonthKeyFor(startMonth)

	entries := make([]LedgerEntry, tenure)
	for i := 0; i < tenure; i++ {
		month := start.Add(i)
		entries[i] = LedgerEntry{
			ID:        uuid.NewString(),
			GroupID:   groupID,
			UserID:    userID,
			Month:     month,
			Status:    ClassifyMonth(month, now),
			MonthDue:  due,
			CreatedAt: now,
		}
	}
	return entries, nil
}
