/*
errors.go - Centralized error types for the chit engine

PURPOSE:
  All domain errors in one place, in four classes: validation (caller's
  fault, not retried), conflict (caller must reconcile state), not-found,
  and persistence failures (safe to retry the whole operation because every
  mutation is atomic).

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, chit.ErrAlreadyMember) { ... }

  or classify for transport mapping:

    if chit.IsConflict(err) { status = 409 }

SEE ALSO:
  - workflow.go: produces most of these
  - api/handlers.go: maps classes onto HTTP statuses
*/
package chit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed or missing caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidShare is returned when a share amount is zero or negative.
	ErrInvalidShare = errors.New("share amount must be positive")

	// ErrAlreadyMember is returned when enrolling a user who is already an
	// active member of the group.
	ErrAlreadyMember = errors.New("user is already a member of this group")

	// ErrDuplicatePending is returned when an equivalent request is already
	// awaiting an admin decision.
	ErrDuplicatePending = errors.New("an equivalent request is already pending")

	// ErrAlreadyProcessed is returned when approving or rejecting a request
	// that has already been resolved. Terminal statuses never change.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrGroupStarted is returned when trying to leave a group whose computed
	// status is no longer upcoming.
	ErrGroupStarted = errors.New("group has started, leaving is no longer possible")

	// ErrMissingGroupSelection is returned when a join_group approval arrives
	// without the admin-selected target group.
	ErrMissingGroupSelection = errors.New("a target group must be selected to approve a join request")

	// ErrMonthNotInSchedule is returned when a prebook names a month outside
	// the group's generated month keys.
	ErrMonthNotInSchedule = errors.New("month is not part of the group schedule")

	// ErrMonthAlreadyBooked is returned when another member already holds the
	// payout month being prebooked.
	ErrMonthAlreadyBooked = errors.New("month is already prebooked by another member")

	// ErrEntryAlreadyPaid is returned when marking a paid ledger entry paid
	// again. Paid is terminal.
	ErrEntryAlreadyPaid = errors.New("ledger entry is already paid")

	// ErrGroupNotFound, ErrMemberNotFound, ErrLedgerEntryNotFound and
	// ErrRequestNotFound report missing records.
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("user is not a member of this group")
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")
	ErrRequestNotFound     = errors.New("request not found")

	// ErrPersistence wraps storage failures. The whole operation is safe to
	// retry: atomicity guarantees no partial effect was left behind.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PersistenceError wraps an underlying storage error with the operation that
// failed. Unwraps to ErrPersistence.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// IsValidation reports whether the error is the caller's fault and should
// not be retried as-is.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidShare) ||
		errors.Is(err, ErrMissingGroupSelection) ||
		errors.Is(err, ErrMonthNotInSchedule)
}

// IsConflict reports whether the error means the caller's view of state is
// stale and must be reconciled before retrying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyMember) ||
		errors.Is(err, ErrDuplicatePending) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrGroupStarted) ||
		errors.Is(err, ErrMonthAlreadyBooked) ||
		errors.Is(err, ErrEntryAlreadyPaid)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrLedgerEntryNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}

// IsRetryable reports whether retrying the whole operation might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
