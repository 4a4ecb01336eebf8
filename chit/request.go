package chit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// REQUEST - A member action awaiting an admin decision
// =============================================================================

// Request is a member-submitted action. Admins resolve it exactly once:
// pending -> approved | rejected.
type Request struct {
	ID     RequestID
	UserID UserID

	// GroupID is empty for join_group until an admin selects the target
	// group at approval time.
	GroupID GroupID

	Type RequestType

	// Month is set for month_prebook and confirm_cash_payment.
	Month *MonthKey

	// Amount is the requested share (join, prebook) or the payment amount
	// (cash confirmation).
	Amount Money

	Status    RequestStatus
	CreatedAt time.Time
}

// newRequest builds a pending request with a fresh ID.
func newRequest(userID UserID, t RequestType, now time.Time) Request {
	return Request{
		ID:        RequestID(uuid.NewString()),
		UserID:    userID,
		Type:      t,
		Status:    RequestPending,
		CreatedAt: now,
	}
}

// Message renders the human-readable summary shown to admins in the pending
// queue.
func (r *Request) Message() string {
	switch r.Type {
	case RequestJoinGroup:
		return fmt.Sprintf("Request to join a group (%s)", r.Amount)
	case RequestLeaveGroup:
		return "Request to leave group"
	case RequestCashPayment:
		return fmt.Sprintf("Cash payment confirmation for %s", r.Month)
	case RequestPrebook:
		return fmt.Sprintf("Pre-book payout for %s", r.Month)
	default:
		return "Request"
	}
}
