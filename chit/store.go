/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines what the engine requires from a storage layer and from its
  out-of-scope collaborators (audit log, notifications). Implementations:

  - store/sqlite: production SQLite via database/sql
  - store/memory: in-memory TxStore for tests, with fault injection

CONTRACT:
  The storage layer must provide
  (a) atomic multi-row writes via WithTx (enrollment: member append + ledger
      batch are one unit, either both visible or neither),
  (b) uniqueness enforcement: group numbers, (group, user, month) ledger
      keys, the pending-request predicates, and one prebooked month per
      group,
  (c) serialization of mutations to a single group's member list, so two
      admins resolving requests against the same group cannot lose updates.

  Reads inside WithTx observe the transaction's own writes. Every workflow
  mutation re-checks its preconditions against state read inside the
  transaction, never against an earlier snapshot.
*/
package chit

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Persistence required by the engine
// =============================================================================

type Store interface {
	// Groups. GetGroup returns ErrGroupNotFound for missing IDs.
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id GroupID) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	GroupsForUser(ctx context.Context, userID UserID) ([]Group, error)

	// UpdateMembers replaces the group's member list. The store serializes
	// these per group; callers always write a list derived from a read made
	// inside the same transaction.
	UpdateMembers(ctx context.Context, id GroupID, members []Member) error

	// Ledger.
	InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error
	GetLedgerEntry(ctx context.Context, groupID GroupID, userID UserID, month MonthKey) (*LedgerEntry, error)
	LedgerForMember(ctx context.Context, groupID GroupID, userID UserID) ([]LedgerEntry, error)
	LedgerForUser(ctx context.Context, userID UserID, groupIDs []GroupID) ([]LedgerEntry, error)
	UpdateLedgerEntry(ctx context.Context, e *LedgerEntry) error

	// DeleteLedgerForMember removes every ledger row for (group, user) and
	// returns how many were deleted. Destructive; only the leave-group
	// resolution calls it, inside the same transaction as the member removal.
	DeleteLedgerForMember(ctx context.Context, groupID GroupID, userID UserID) (int, error)

	// Requests. CreateRequest surfaces ErrDuplicatePending when a uniqueness
	// predicate is violated at the constraint level.
	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// HasPendingRequest checks the duplicate-pending predicates. For
	// join_group only userID and t are considered; for month-scoped types
	// the (user, group, month) triple must match.
	HasPendingRequest(ctx context.Context, userID UserID, t RequestType, groupID GroupID, month *MonthKey) (bool, error)

	ListPendingRequests(ctx context.Context) ([]Request, error)
	RequestsForUser(ctx context.Context, userID UserID) ([]Request, error)

	// ResolveRequest moves a request out of pending, optionally stamping the
	// admin-selected group. It must be guarded on the current status:
	// ErrAlreadyProcessed if the request is no longer pending,
	// ErrRequestNotFound if it does not exist.
	ResolveRequest(ctx context.Context, id RequestID, status RequestStatus, groupID GroupID) error

	// DeletePendingRequest removes the owner's matching pending request
	// (by user, type, amount) or returns ErrRequestNotFound. This is the only
	// deletion path for requests; admins resolve, never delete.
	DeletePendingRequest(ctx context.Context, userID UserID, t RequestType, amount Money) error

	// NextSequence atomically fetch-and-increments a named counter. Used for
	// group numbers (and numeric user IDs in the surrounding system).
	NextSequence(ctx context.Context, name string) (int64, error)
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back and none of its writes are visible.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT SINK - Append-only record of admin decisions
// =============================================================================

// AuditEntry captures who did what to which record.
type AuditEntry struct {
	ID          string
	Action      string
	PerformedBy UserID
	TargetID    string
	Details     map[string]any
	Timestamp   time.Time
}

const (
	AuditRequestApproved = "request_approved"
	AuditRequestRejected = "request_rejected"
	AuditGroupCreated    = "group_created"
	AuditMemberLeft      = "member_left"
)

// AuditSink records resolutions. Best-effort from the engine's perspective;
// durability is the collaborator's concern.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// NopAuditSink discards entries.
type NopAuditSink struct{}

func (NopAuditSink) Record(ctx context.Context, e AuditEntry) error { return nil }

// =============================================================================
// NOTIFIER - Fire-and-forget member notifications
// =============================================================================

// Notifier delivers member-facing events (e.g. the welcome mail after a
// successful join). Failures never fail the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, event string, recipient UserID, payload map[string]any) error
}

const EventMemberJoined = "member_joined"

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, event string, recipient UserID, payload map[string]any) error {
	return nil
}
