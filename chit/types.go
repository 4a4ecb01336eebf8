/*
Package chit implements the financial-lifecycle engine for rotating-savings
("chit fund") groups.

PURPOSE:
  A chit group pools a fixed monthly contribution from every member and pays
  the pool out to one member per month, in rotation. This package owns the
  rules that keep those financial records correct:

  - Group temporal status (upcoming/active/completed) from start date + tenure
  - Atomic enrollment: add a member AND materialize their full monthly
    obligation ledger, all-or-nothing
  - The member-request / admin-approval workflow (join, leave, prebook a
    payout month, confirm a cash payment) and its type-specific side effects
  - Prebooking premiums and payout economics

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a currency amount backed by decimal.Decimal (no float drift)
  - UserID/GroupID/RequestID: type-safe identifiers
  - Status enums for groups, members, ledger entries, and requests

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, rounded explicitly
  2. Type safety: IDs are distinct string types; statuses are validated enums
  3. Typed failures: every rule violation maps to an error in errors.go

SEE ALSO:
  - month.go:    month-key arithmetic ("July 2025")
  - ledger.go:   monthly obligation entries and their state machine
  - workflow.go: the request approval engine
*/
package chit

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount with explicit rounding
// =============================================================================

// Money is a currency amount. The zero value is ₹0.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromFloat(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

// ParseMoney parses a decimal amount string.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: bad money amount %q", ErrInvalidInput, s)
	}
	return Money{Value: d}, nil
}

// MustParseMoney is ParseMoney for literals; panics on a bad amount.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money                { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money                { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money      { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money      { return Money{Value: m.Value.Div(s)} }
func (m Money) Round() Money                     { return Money{Value: m.Value.Round(0)} }
func (m Money) Neg() Money                       { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                     { return m.Value.IsZero() }
func (m Money) IsPositive() bool                 { return m.Value.IsPositive() }
func (m Money) IsNegative() bool                 { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool               { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool         { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool            { return m.Value.LessThan(o.Value) }
func (m Money) String() string                   { return m.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type GroupID string
type RequestID string

// =============================================================================
// STATUS ENUMS
// =============================================================================

// GroupStatus is derived from the group's start month and tenure; it is never
// stored.
type GroupStatus string

const (
	GroupUpcoming  GroupStatus = "upcoming"
	GroupActive    GroupStatus = "active"
	GroupCompleted GroupStatus = "completed"
)

func (s GroupStatus) Valid() bool {
	switch s {
	case GroupUpcoming, GroupActive, GroupCompleted:
		return true
	}
	return false
}

// MemberStatus tracks whether a member is still participating in a group.
type MemberStatus string

const (
	MemberActive MemberStatus = "active"
	MemberLeft   MemberStatus = "left"
)

func (s MemberStatus) Valid() bool {
	return s == MemberActive || s == MemberLeft
}

// EntryStatus is the state of one monthly obligation.
// Transitions: upcoming -> pending -> due -> paid (time advances entries
// toward due; an explicit payment moves any non-paid entry to paid).
type EntryStatus string

const (
	EntryUpcoming EntryStatus = "upcoming"
	EntryPending  EntryStatus = "pending"
	EntryDue      EntryStatus = "due"
	EntryPaid     EntryStatus = "paid"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryUpcoming, EntryPending, EntryDue, EntryPaid:
		return true
	}
	return false
}

// RequestStatus is the state of a member-submitted request.
// pending -> approved | rejected, both terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// RequestType identifies what a member is asking the admin to do.
type RequestType string

const (
	RequestJoinGroup   RequestType = "join_group"
	RequestLeaveGroup  RequestType = "leave_group"
	RequestCashPayment RequestType = "confirm_cash_payment"
	RequestPrebook     RequestType = "month_prebook"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestJoinGroup, RequestLeaveGroup, RequestCashPayment, RequestPrebook:
		return true
	}
	return false
}
