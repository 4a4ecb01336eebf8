/*
group.go - Chit group and membership model

PURPOSE:
  A Group is the unit of contention in this system: its member list and each
  member's prebooked payout month live together and are mutated under one
  storage transaction. Everything derived (temporal status, the month
  schedule) is computed, never stored.

GROUP NUMBERS:
  Human-readable sequential identifiers: G001, G002, ... The numeric part
  comes from an atomic fetch-and-increment counter in the store; FormatGroupNo
  only formats, it never allocates.

SEE ALSO:
  - status.go:   derived lifecycle phase
  - enroll.go:   the only way members are added
  - workflow.go: the only way members leave or prebook
*/
package chit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUP
// =============================================================================

// Member is one participant's slot in a group.
type Member struct {
	UserID      UserID
	ShareAmount Money
	Status      MemberStatus

	// PreBookedMonth, when set, is this member's approved claim on a payout
	// month. At most one member per group may hold a given month.
	PreBookedMonth *MonthKey
}

// Group is a rotating-savings pool.
type Group struct {
	ID      GroupID
	GroupNo string

	// ChitValue is the total amount pooled each month.
	ChitValue Money

	// StartMonth anchors the schedule; only its calendar month matters.
	StartMonth time.Time

	// Tenure is the number of months the group runs.
	Tenure int

	// ForemanCommission is the organizer's percentage cut of each payout.
	// This field is authoritative for payout math.
	ForemanCommission decimal.Decimal

	Members   []Member
	CreatedAt time.Time
}

// FormatGroupNo renders the sequential group number, e.g. 7 -> "G007".
func FormatGroupNo(seq int64) string {
	return fmt.Sprintf("G%03d", seq)
}

// Validate checks the stored invariants of a group.
func (g *Group) Validate() error {
	if g.GroupNo == "" {
		return fmt.Errorf("%w: group number required", ErrInvalidInput)
	}
	if !g.ChitValue.IsPositive() {
		return fmt.Errorf("%w: chit value must be positive", ErrInvalidInput)
	}
	if g.StartMonth.IsZero() {
		return fmt.Errorf("%w: start month required", ErrInvalidInput)
	}
	if g.Tenure <= 0 {
		return fmt.Errorf("%w: tenure must be positive", ErrInvalidInput)
	}
	if g.ForemanCommission.IsNegative() || g.ForemanCommission.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: foreman commission must be a percentage", ErrInvalidInput)
	}
	for i := range g.Members {
		if !g.Members[i].ShareAmount.IsPositive() {
			return fmt.Errorf("%w: member %s share must be positive", ErrInvalidInput, g.Members[i].UserID)
		}
	}
	return nil
}

// StatusAt returns the group's derived lifecycle phase.
func (g *Group) StatusAt(now time.Time) GroupStatus {
	return GroupStatusAt(g.StartMonth, g.Tenure, now)
}

// ActiveMember returns the active member record for the user, or nil.
func (g *Group) ActiveMember(id UserID) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == id && g.Members[i].Status == MemberActive {
			return &g.Members[i]
		}
	}
	return nil
}

// MonthKeys returns the group's full month schedule in order.
func (g *Group) MonthKeys() []MonthKey {
	start := MonthKeyFor(g.StartMonth)
	keys := make([]MonthKey, g.Tenure)
	for i := 0; i < g.Tenure; i++ {
		keys[i] = start.Add(i)
	}
	return keys
}

// InSchedule reports whether m is one of the group's generated month keys.
func (g *Group) InSchedule(m MonthKey) bool {
	start := MonthKeyFor(g.StartMonth)
	offset := m.Index() - start.Index()
	return offset >= 0 && offset < g.Tenure
}

// BookedBy returns the active member holding m as a prebooked payout month,
// or nil if the month is unclaimed.
func (g *Group) BookedBy(m MonthKey) *Member {
	for i := range g.Members {
		mem := &g.Members[i]
		if mem.Status == MemberActive && mem.PreBookedMonth != nil && mem.PreBookedMonth.Equal(m) {
			return mem
		}
	}
	return nil
}
