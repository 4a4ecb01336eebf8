/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator struct tags and are checked
  in decodeAndValidate before reaching domain logic. Domain rules (schedule
  membership, duplicate guards) stay in the chit package; tags cover only
  shape and presence.

MONEY:
  Amounts travel as JSON strings ("5000") and are parsed into decimals.
  Floats never touch money.

SEE ALSO:
  - handlers.go: Uses these types
  - chit/types.go: The domain model these map onto
*/
package api

import (
	"time"

	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateGroupRequest is the admin request to open a new group.
type CreateGroupRequest struct {
	ChitValue         string `json:"chit_value" validate:"required"`
	StartMonth        string `json:"start_month" validate:"required"`
	TenureMonths      int    `json:"tenure_months" validate:"required,gt=0,lte=120"`
	ForemanCommission string `json:"foreman_commission" validate:"required"`
}

// JoinRequestDTO asks to join some group; the admin picks which at approval.
type JoinRequestDTO struct {
	Amount string `json:"amount" validate:"required"`
}

// LeaveRequestDTO asks to leave a specific group.
type LeaveRequestDTO struct {
	GroupID string `json:"group_id" validate:"required"`
}

// PrebookRequestDTO claims a payout month.
type PrebookRequestDTO struct {
	GroupID string `json:"group_id" validate:"required"`
	Month   string `json:"month" validate:"required"`
	Amount  string `json:"amount" validate:"required"`
}

// CashPaymentRequestDTO asks an admin to confirm a cash payment.
type CashPaymentRequestDTO struct {
	GroupID string `json:"group_id" validate:"required"`
	Month   string `json:"month" validate:"required"`
	Amount  string `json:"amount" validate:"required"`
}

// WithdrawRequestDTO removes the caller's own pending request.
type WithdrawRequestDTO struct {
	Type   string `json:"type" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

// ApproveRequestDTO carries the admin's group selection for join approvals.
type ApproveRequestDTO struct {
	GroupID string `json:"group_id,omitempty"`
}

// RecordPaymentRequest marks the caller's own ledger month paid.
type RecordPaymentRequest struct {
	Month  string `json:"month" validate:"required"`
	Method string `json:"method" validate:"required,oneof=upi card netbanking cash"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GroupDTO represents a group in API responses.
type GroupDTO struct {
	ID                string      `json:"id"`
	GroupNo           string      `json:"group_no"`
	ChitValue         string      `json:"chit_value"`
	StartMonth        string      `json:"start_month"`
	TenureMonths      int         `json:"tenure_months"`
	ForemanCommission string      `json:"foreman_commission"`
	Status            string      `json:"status"`
	Members           []MemberDTO `json:"members"`
	CreatedAt         string      `json:"created_at,omitempty"`
}

// MemberDTO represents one member slot.
type MemberDTO struct {
	UserID         string  `json:"user_id"`
	ShareAmount    string  `json:"share_amount"`
	Status         string  `json:"status"`
	PreBookedMonth *string `json:"prebooked_month,omitempty"`
}

// MonthDTO is one row of a member's month schedule: the month, who holds it,
// and what this member owes for it (premium included).
type MonthDTO struct {
	Month     string `json:"month"`
	AmountDue string `json:"amount_due"`
	Booked    bool   `json:"booked"`
	BookedBy  string `json:"booked_by,omitempty"`
	Payout    string `json:"payout"`
}

// LedgerEntryDTO represents one monthly obligation.
type LedgerEntryDTO struct {
	ID            string `json:"id"`
	GroupID       string `json:"group_id"`
	Month         string `json:"month"`
	Status        string `json:"status"`
	MonthDue      string `json:"month_due"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentDate   string `json:"payment_date,omitempty"`
}

// RequestDTO represents a member request.
type RequestDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	GroupID   string `json:"group_id,omitempty"`
	Type      string `json:"type"`
	Month     string `json:"month,omitempty"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toGroupDTO(g *chit.Group, now time.Time) GroupDTO {
	members := make([]MemberDTO, len(g.Members))
	for i, m := range g.Members {
		members[i] = MemberDTO{
			UserID:      string(m.UserID),
			ShareAmount: m.ShareAmount.String(),
			Status:      string(m.Status),
		}
		if m.PreBookedMonth != nil {
			v := m.PreBookedMonth.String()
			members[i].PreBookedMonth = &v
		}
	}
	return GroupDTO{
		ID:                string(g.ID),
		GroupNo:           g.GroupNo,
		ChitValue:         g.ChitValue.String(),
		StartMonth:        chit.MonthKeyFor(g.StartMonth).String(),
		TenureMonths:      g.Tenure,
		ForemanCommission: g.ForemanCommission.String(),
		Status:            string(g.StatusAt(now)),
		Members:           members,
		CreatedAt:         g.CreatedAt.Format(time.RFC3339),
	}
}

func toLedgerEntryDTO(e *chit.LedgerEntry, now time.Time) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		ID:            e.ID,
		GroupID:       string(e.GroupID),
		Month:         e.Month.String(),
		Status:        string(e.StatusAt(now)),
		MonthDue:      e.MonthDue.String(),
		PaymentMethod: e.PaymentMethod,
	}
	if e.PaymentDate != nil {
		dto.PaymentDate = e.PaymentDate.Format(time.RFC3339)
	}
	return dto
}

func toRequestDTO(r *chit.Request) RequestDTO {
	dto := RequestDTO{
		ID:        string(r.ID),
		UserID:    string(r.UserID),
		GroupID:   string(r.GroupID),
		Type:      string(r.Type),
		Amount:    r.Amount.String(),
		Status:    string(r.Status),
		Message:   r.Message(),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
	if r.Month != nil {
		dto.Month = r.Month.String()
	}
	return dto
}
