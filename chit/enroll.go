/*
enroll.go - Atomic member enrollment

PURPOSE:
  Adding a member to a group means two writes: append the member record and
  insert their full monthly obligation ledger. They happen inside one
  storage transaction: either both succeed or neither is visible. On any
  failure the group is left exactly as it was: no orphaned ledger rows, no
  member without a ledger.

CONCURRENCY:
  The already-a-member precondition is re-checked against the group state
  read INSIDE the transaction, immediately before mutating. Two concurrent
  enrollments of the same user into the same group race on the store's
  per-group serialization plus the (group_id, user_id) primary key; a naive
  read-then-write against an earlier snapshot would be a correctness bug.

SIDE EFFECTS:
  None beyond the atomic write. Notifications and audit records belong to
  the caller (the request workflow).
*/
package chit

import (
	"context"
	"time"
)

// Enroll adds a member to the group and persists their generated ledger as a
// single atomic unit.
//
// Failures: ErrInvalidShare, ErrGroupNotFound, ErrAlreadyMember, or a
// wrapped persistence error (retryable; no partial effect remains).
func Enroll(ctx context.Context, store TxStore, groupID GroupID, userID UserID, share Money, now time.Time) error {
	if !share.IsPositive() {
		return ErrInvalidShare
	}
	return store.WithTx(ctx, func(s Store) error {
		return enroll(ctx, s, groupID, userID, share, now)
	})
}

// enroll runs inside an already-open transaction. The workflow engine calls
// this directly when a join approval needs the request update in the same
// transaction.
func enroll(ctx context.Context, s Store, groupID GroupID, userID UserID, share Money, now time.Time) error {
	if !share.IsPositive() {
		return ErrInvalidShare
	}

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.ActiveMember(userID) != nil {
		return ErrAlreadyMember
	}

	entries, err := GenerateLedger(group.ID, userID, group.StartMonth, group.Tenure, share, now)
	if err != nil {
		return err
	}

	members := append(group.Members, Member{
		UserID:      userID,
		ShareAmount: share,
		Status:      MemberActive,
	})
	if err := s.UpdateMembers(ctx, group.ID, members); err != nil {
		return persistence("enroll: update members", err)
	}
	if err := s.InsertLedgerEntries(ctx, entries); err != nil {
		return persistence("enroll: insert ledger", err)
	}
	return nil
}
