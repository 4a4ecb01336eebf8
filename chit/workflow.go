/*
workflow.go - Member request lifecycle and admin resolution

PURPOSE:
  Every member action (join, leave, prebook a payout month, confirm a cash
  payment) becomes a Request. An admin resolves it exactly once, and each
  resolution triggers type-specific side effects on group and ledger state:

    month_prebook        -> stamp the member's PreBookedMonth
    join_group           -> atomic enrollment (member + full ledger)
    confirm_cash_payment -> mark the (group, user, month) ledger entry paid
    leave_group          -> remove the member AND delete their ledger rows

REQUEST FLOW:
  submit (guarded against duplicates) -> pending -> approve | reject
  A pending request may also be withdrawn by its owner; that deletes it.

FAILURE SEMANTICS:
  Each resolution runs inside one storage transaction. If any side effect
  fails (e.g. enrollment during a join approval), the whole transaction
  rolls back and the request REMAINS pending so the admin can retry.
  Audit records and notifications happen after commit and are best-effort:
  their failure never undoes a resolution.

DESTRUCTIVE SIDE EFFECT:
  leave_group approval deletes the member's ledger rows for that group.
  There is no undo. It is only permitted while the group's computed status
  is still upcoming, it runs in the same transaction as the member removal,
  and the engine logs at warn level before issuing the delete.

SEE ALSO:
  - enroll.go: the join side effect
  - store.go:  the transactional contract this engine leans on
*/
package chit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// WORKFLOW ENGINE
// =============================================================================

// Workflow mediates member requests and admin decisions.
type Workflow struct {
	Store    TxStore
	Audit    AuditSink
	Notifier Notifier

	// Now is the wall clock; overridable in tests.
	Now func() time.Time
}

// NewWorkflow wires the engine. audit and notifier may be nil; no-op
// collaborators are substituted.
func NewWorkflow(store TxStore, audit AuditSink, notifier Notifier) *Workflow {
	if audit == nil {
		audit = NopAuditSink{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Workflow{Store: store, Audit: audit, Notifier: notifier, Now: time.Now}
}

func (w *Workflow) now() time.Time { return w.Now() }

// =============================================================================
// GROUP ADMINISTRATION
// =============================================================================

// CreateGroup allocates the next sequential group number (G001, G002, ...)
// and persists a new group.
func (w *Workflow) CreateGroup(ctx context.Context, chitValue Money, startMonth time.Time, tenure int, foremanCommission decimal.Decimal, createdBy UserID) (*Group, error) {
	var group *Group
	err := w.Store.WithTx(ctx, func(s Store) error {
		seq, err := s.NextSequence(ctx, "group_no")
		if err != nil {
			return persistence("create group: next sequence", err)
		}
		g := &Group{
			ID:                GroupID(uuid.NewString()),
			GroupNo:           FormatGroupNo(seq),
			ChitValue:         chitValue,
			StartMonth:        startMonth,
			Tenure:            tenure,
			ForemanCommission: foremanCommission,
			CreatedAt:         w.now(),
		}
		if err := g.Validate(); err != nil {
			return err
		}
		if err := s.CreateGroup(ctx, g); err != nil {
			return persistence("create group", err)
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, AuditGroupCreated, createdBy, string(group.ID), map[string]any{
		"group_no":   group.GroupNo,
		"chit_value": group.ChitValue.String(),
		"tenure":     group.Tenure,
	})
	return group, nil
}

// =============================================================================
// SUBMISSION - Members create pending requests
// =============================================================================

// SubmitJoin files a request to join some group; the admin picks the group
// at approval time. At most one pending join request per user.
func (w *Workflow) SubmitJoin(ctx context.Context, userID UserID, amount Money) (*Request, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidShare
	}
	dup, err := w.Store.HasPendingRequest(ctx, userID, RequestJoinGroup, "", nil)
	if err != nil {
		return nil, persistence("submit join: pending check", err)
	}
	if dup {
		return nil, ErrDuplicatePending
	}

	r := newRequest(userID, RequestJoinGroup, w.now())
	r.Amount = amount
	if err := w.Store.CreateRequest(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitLeave files a request to leave a group the user is an active member
// of.
func (w *Workflow) SubmitLeave(ctx context.Context, userID UserID, groupID GroupID) (*Request, error) {
	group, err := w.Store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.ActiveMember(userID) == nil {
		return nil, ErrMemberNotFound
	}

	r := newRequest(userID, RequestLeaveGroup, w.now())
	r.GroupID = groupID
	if err := w.Store.CreateRequest(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitPrebook files a claim on a payout month. At most one pending prebook
// per (user, group, month).
func (w *Workflow) SubmitPrebook(ctx context.Context, userID UserID, groupID GroupID, month MonthKey, share Money) (*Request, error) {
	if groupID == "" || month.IsZero() || !share.IsPositive() {
		return nil, ErrInvalidInput
	}
	dup, err := w.Store.HasPendingRequest(ctx, userID, RequestPrebook, groupID, &month)
	if err != nil {
		return nil, persistence("submit prebook: pending check", err)
	}
	if dup {
		return nil, ErrDuplicatePending
	}

	r := newRequest(userID, RequestPrebook, w.now())
	r.GroupID = groupID
	r.Month = &month
	r.Amount = share
	if err := w.Store.CreateRequest(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitCashPayment asks an admin to confirm a cash payment for one ledger
// month. Guarded like prebooks: one pending per (user, group, month).
func (w *Workflow) SubmitCashPayment(ctx context.Context, userID UserID, groupID GroupID, month MonthKey, amount Money) (*Request, error) {
	if groupID == "" || month.IsZero() || !amount.IsPositive() {
		return nil, ErrInvalidInput
	}
	dup, err := w.Store.HasPendingRequest(ctx, userID, RequestCashPayment, groupID, &month)
	if err != nil {
		return nil, persistence("submit cash payment: pending check", err)
	}
	if dup {
		return nil, ErrDuplicatePending
	}

	r := newRequest(userID, RequestCashPayment, w.now())
	r.GroupID = groupID
	r.Month = &month
	r.Amount = amount
	if err := w.Store.CreateRequest(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Withdraw deletes the owner's matching pending request. Members may only
// withdraw what has not been resolved; admins never delete requests.
func (w *Workflow) Withdraw(ctx context.Context, userID UserID, t RequestType, amount Money) error {
	return w.Store.DeletePendingRequest(ctx, userID, t, amount)
}

// =============================================================================
// RESOLUTION - Admin decisions
// =============================================================================

// Approve resolves a pending request, applying its type-specific side
// effects in one transaction. selectedGroup is required for join_group and
// ignored otherwise. If a side effect fails the request remains pending.
func (w *Workflow) Approve(ctx context.Context, id RequestID, adminID UserID, selectedGroup GroupID) (*Request, error) {
	now := w.now()
	var req *Request

	err := w.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != RequestPending {
			return ErrAlreadyProcessed
		}

		switch r.Type {
		case RequestPrebook:
			if err := approvePrebook(ctx, s, r); err != nil {
				return err
			}
		case RequestJoinGroup:
			if selectedGroup == "" {
				return ErrMissingGroupSelection
			}
			if err := enroll(ctx, s, selectedGroup, r.UserID, r.Amount, now); err != nil {
				return err
			}
			r.GroupID = selectedGroup
		case RequestCashPayment:
			if err := approveCashPayment(ctx, s, r, now); err != nil {
				return err
			}
		case RequestLeaveGroup:
			if err := approveLeave(ctx, s, r, now); err != nil {
				return err
			}
		default:
			return ErrInvalidInput
		}

		if err := s.ResolveRequest(ctx, r.ID, RequestApproved, r.GroupID); err != nil {
			return err
		}
		r.Status = RequestApproved
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.record(ctx, AuditRequestApproved, adminID, string(req.ID), requestDetails(req))
	if req.Type == RequestJoinGroup {
		// Fire-and-forget: a failed welcome mail never fails the join.
		if err := w.Notifier.Notify(ctx, EventMemberJoined, req.UserID, map[string]any{
			"group_id": string(req.GroupID),
			"share":    req.Amount.String(),
		}); err != nil {
			slog.Warn("welcome notification failed", "user", req.UserID, "error", err)
		}
	}
	return req, nil
}

// Reject resolves a pending request with no side effect beyond the status
// change and the audit record.
func (w *Workflow) Reject(ctx context.Context, id RequestID, adminID UserID) (*Request, error) {
	var req *Request
	err := w.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != RequestPending {
			return ErrAlreadyProcessed
		}
		if err := s.ResolveRequest(ctx, r.ID, RequestRejected, r.GroupID); err != nil {
			return err
		}
		r.Status = RequestRejected
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, AuditRequestRejected, adminID, string(req.ID), requestDetails(req))
	return req, nil
}

// =============================================================================
// RESOLUTION SIDE EFFECTS
// =============================================================================

func approvePrebook(ctx context.Context, s Store, r *Request) error {
	if r.Month == nil {
		return ErrInvalidInput
	}
	group, err := s.GetGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	member := group.ActiveMember(r.UserID)
	if member == nil {
		return ErrMemberNotFound
	}
	if !group.InSchedule(*r.Month) {
		return ErrMonthNotInSchedule
	}
	if holder := group.BookedBy(*r.Month); holder != nil && holder.UserID != r.UserID {
		return ErrMonthAlreadyBooked
	}

	member.PreBookedMonth = r.Month
	if err := s.UpdateMembers(ctx, group.ID, group.Members); err != nil {
		return persistence("approve prebook: update members", err)
	}
	return nil
}

func approveCashPayment(ctx context.Context, s Store, r *Request, now time.Time) error {
	if r.Month == nil {
		return ErrInvalidInput
	}
	entry, err := s.GetLedgerEntry(ctx, r.GroupID, r.UserID, *r.Month)
	if err != nil {
		return err
	}
	if err := entry.MarkPaid("cash", now); err != nil {
		return err
	}
	if err := s.UpdateLedgerEntry(ctx, entry); err != nil {
		return persistence("approve cash payment: update entry", err)
	}
	return nil
}

func approveLeave(ctx context.Context, s Store, r *Request, now time.Time) error {
	group, err := s.GetGroup(ctx, r.GroupID)
	if err != nil {
		return err
	}
	// One consistent policy for both leave paths: members may only back out
	// of a group that has not started.
	if group.StatusAt(now) != GroupUpcoming {
		return ErrGroupStarted
	}
	if group.ActiveMember(r.UserID) == nil {
		return ErrMemberNotFound
	}

	members := make([]Member, 0, len(group.Members))
	for _, m := range group.Members {
		if m.UserID != r.UserID {
			members = append(members, m)
		}
	}
	if err := s.UpdateMembers(ctx, group.ID, members); err != nil {
		return persistence("approve leave: update members", err)
	}

	// Irreversible: the member's obligation history for this group is wiped.
	slog.Warn("deleting ledger rows for leaving member",
		"group", group.GroupNo, "user", r.UserID)
	deleted, err := s.DeleteLedgerForMember(ctx, group.ID, r.UserID)
	if err != nil {
		return persistence("approve leave: delete ledger", err)
	}
	slog.Info("ledger rows deleted", "group", group.GroupNo, "user", r.UserID, "rows", deleted)
	return nil
}

// =============================================================================
// DIRECT PATHS - Member actions that need no admin decision
// =============================================================================

// LeaveGroup lets a member back out of a group directly. Same temporal gate
// and same destructive ledger wipe as the request-based path.
func (w *Workflow) LeaveGroup(ctx context.Context, userID UserID, groupID GroupID) error {
	now := w.now()
	err := w.Store.WithTx(ctx, func(s Store) error {
		r := &Request{UserID: userID, GroupID: groupID}
		return approveLeave(ctx, s, r, now)
	})
	if err != nil {
		return err
	}
	w.record(ctx, AuditMemberLeft, userID, string(groupID), map[string]any{
		"user": string(userID),
	})
	return nil
}

// RecordPayment marks a member's own ledger month paid with the given
// method and date (the non-cash path; cash goes through admin confirmation).
func (w *Workflow) RecordPayment(ctx context.Context, userID UserID, groupID GroupID, month MonthKey, method string, date time.Time) error {
	return w.Store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetLedgerEntry(ctx, groupID, userID, month)
		if err != nil {
			return err
		}
		if err := entry.MarkPaid(method, date); err != nil {
			return err
		}
		if err := s.UpdateLedgerEntry(ctx, entry); err != nil {
			return persistence("record payment: update entry", err)
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (w *Workflow) record(ctx context.Context, action string, by UserID, target string, details map[string]any) {
	e := AuditEntry{
		ID:          uuid.NewString(),
		Action:      action,
		PerformedBy: by,
		TargetID:    target,
		Details:     details,
		Timestamp:   w.now(),
	}
	if err := w.Audit.Record(ctx, e); err != nil {
		slog.Warn("audit record failed", "action", action, "target", target, "error", err)
	}
}

func requestDetails(r *Request) map[string]any {
	d := map[string]any{
		"type":   string(r.Type),
		"user":   string(r.UserID),
		"amount": r.Amount.String(),
	}
	if r.GroupID != "" {
		d["group"] = string(r.GroupID)
	}
	if r.Month != nil {
		d["month"] = r.Month.String()
	}
	return d
}
