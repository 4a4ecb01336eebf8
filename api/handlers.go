/*
handlers.go - HTTP API handlers for the chit fund engine

PURPOSE:
  Exposes the chit engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Groups:
    GET    /api/groups                  List groups (?status= filter)
    POST   /api/groups                  Create group (admin)
    GET    /api/groups/{id}             Get group with members
    GET    /api/groups/{id}/months      Month schedule with caller's dues
    POST   /api/groups/{id}/payments    Mark caller's month paid
    POST   /api/groups/{id}/leave       Leave directly (upcoming groups only)

  Me:
    GET    /api/me/groups               Caller's groups
    GET    /api/me/ledger               Caller's ledger across groups
    GET    /api/me/requests             Caller's request history

  Requests:
    POST   /api/requests/join           Ask to join a group
    POST   /api/requests/leave          Ask to leave a group
    POST   /api/requests/prebook        Claim a payout month
    POST   /api/requests/cash-payment   Ask admin to confirm cash
    DELETE /api/requests                Withdraw caller's pending request
    GET    /api/requests/pending        Admin queue
    POST   /api/requests/{id}/approve   Approve (admin)
    POST   /api/requests/{id}/reject    Reject (admin)

IDENTITY:
  The caller is whoever the X-User-ID header says. Admin endpoints read
  X-Admin-ID instead. There is NO authentication; both headers are trusted
  as-is and an API gateway is expected to set them.

ERROR HANDLING:
  Domain errors map onto HTTP statuses via their class:
  - 400: validation errors, invalid input
  - 404: record not found
  - 409: conflict (duplicates, already processed, month taken)
  - 500: persistence and everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - chit/workflow.go: The engine these handlers delegate to
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  chit.TxStore
	Engine *chit.Workflow

	// Now is the wall clock; overridable in tests.
	Now func() time.Time

	validate *validator.Validate
}

// NewHandler creates a new handler around the store and workflow engine.
func NewHandler(store chit.TxStore, engine *chit.Workflow) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine,
		Now:      time.Now,
		validate: validator.New(),
	}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// CreateGroup opens a new group with the next sequential group number.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	chitValue, err := parseMoney(req.ChitValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid chit value", err)
		return
	}
	commission, err := decimal.NewFromString(req.ForemanCommission)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid foreman commission", err)
		return
	}
	startMonth, err := chit.ParseMonthKey(req.StartMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start month", err)
		return
	}

	group, err := h.Engine.CreateGroup(r.Context(), chitValue, startMonth.Date(), req.TenureMonths, commission, admin)
	if err != nil {
		h.writeDomainError(w, "Failed to create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupDTO(group, h.Now()))
}

// ListGroups returns all groups, optionally filtered by derived status.
// GET /api/groups?status=active
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	now := h.Now()
	filter := r.URL.Query().Get("status")
	if filter != "" && !chit.GroupStatus(filter).Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	dtos := make([]GroupDTO, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		if filter != "" && string(g.StatusAt(now)) != filter {
			continue
		}
		dtos = append(dtos, toGroupDTO(g, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroup returns a single group with its member list.
// GET /api/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := chit.GroupID(chi.URLParam(r, "id"))

	group, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(group, h.Now()))
}

// ListGroupMonths returns the group's month schedule. When the caller is an
// active member, each row carries what they owe for that month, premium
// included.
// GET /api/groups/{id}/months
func (h *Handler) ListGroupMonths(w http.ResponseWriter, r *http.Request) {
	id := chit.GroupID(chi.URLParam(r, "id"))

	group, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get group", err)
		return
	}

	member := group.ActiveMember(h.userID(r))
	payout := chit.Payout(group.ChitValue, group.ForemanCommission)

	months := group.MonthKeys()
	dtos := make([]MonthDTO, len(months))
	for i, m := range months {
		dto := MonthDTO{
			Month:  m.String(),
			Payout: payout.String(),
		}
		if holder := group.BookedBy(m); holder != nil {
			dto.Booked = true
			dto.BookedBy = string(holder.UserID)
		}
		if member != nil {
			base := chit.MonthlyDue(member.ShareAmount, group.Tenure)
			dto.AmountDue = chit.AmountForMonth(base, m, member.PreBookedMonth).String()
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment marks one of the caller's own ledger months paid.
// POST /api/groups/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id := chit.GroupID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	month, err := chit.ParseMonthKey(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	if err := h.Engine.RecordPayment(r.Context(), user, id, month, req.Method, h.Now()); err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

// LeaveGroup removes the caller from an upcoming group, wiping their ledger.
// POST /api/groups/{id}/leave
func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id := chit.GroupID(chi.URLParam(r, "id"))

	if err := h.Engine.LeaveGroup(r.Context(), user, id); err != nil {
		h.writeDomainError(w, "Failed to leave group", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// =============================================================================
// ME HANDLERS - The caller's own view
// =============================================================================

// MyGroups returns the groups the caller is an active member of.
// GET /api/me/groups
func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	groups, err := h.Store.GroupsForUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	now := h.Now()
	dtos := make([]GroupDTO, len(groups))
	for i := range groups {
		dtos[i] = toGroupDTO(&groups[i], now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MyLedger returns the caller's obligations across all their groups.
// GET /api/me/ledger
func (h *Handler) MyLedger(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	groups, err := h.Store.GroupsForUser(ctx, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}
	ids := make([]chit.GroupID, len(groups))
	for i := range groups {
		ids[i] = groups[i].ID
	}

	entries, err := h.Store.LedgerForUser(ctx, user, ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	now := h.Now()
	dtos := make([]LedgerEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toLedgerEntryDTO(&entries[i], now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MyRequests returns the caller's full request history.
// GET /api/me/requests
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	requests, err := h.Store.RequestsForUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}

	dtos := make([]RequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST SUBMISSION HANDLERS
// =============================================================================

// SubmitJoin files a join request; the target group is chosen at approval.
// POST /api/requests/join
func (h *Handler) SubmitJoin(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req JoinRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	created, err := h.Engine.SubmitJoin(r.Context(), user, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to submit join request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// SubmitLeave files a leave request for one of the caller's groups.
// POST /api/requests/leave
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req LeaveRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.Engine.SubmitLeave(r.Context(), user, chit.GroupID(req.GroupID))
	if err != nil {
		h.writeDomainError(w, "Failed to submit leave request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// SubmitPrebook files a claim on a payout month.
// POST /api/requests/prebook
func (h *Handler) SubmitPrebook(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req PrebookRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	month, err := chit.ParseMonthKey(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	created, err := h.Engine.SubmitPrebook(r.Context(), user, chit.GroupID(req.GroupID), month, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to submit prebook request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// SubmitCashPayment asks an admin to confirm a cash payment.
// POST /api/requests/cash-payment
func (h *Handler) SubmitCashPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CashPaymentRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	month, err := chit.ParseMonthKey(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	created, err := h.Engine.SubmitCashPayment(r.Context(), user, chit.GroupID(req.GroupID), month, amount)
	if err != nil {
		h.writeDomainError(w, "Failed to submit cash payment request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// WithdrawRequest deletes the caller's matching pending request.
// DELETE /api/requests
func (h *Handler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req WithdrawRequestDTO
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	t := chit.RequestType(req.Type)
	if !t.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid request type", nil)
		return
	}
	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if err := h.Engine.Withdraw(r.Context(), user, t, amount); err != nil {
		h.writeDomainError(w, "Failed to withdraw request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

// =============================================================================
// ADMIN RESOLUTION HANDLERS
// =============================================================================

// ListPendingRequests returns the admin queue, oldest first.
// GET /api/requests/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	requests, err := h.Store.ListPendingRequests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending requests", err)
		return
	}

	dtos := make([]RequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveRequest resolves a pending request, applying its side effects.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := chit.RequestID(chi.URLParam(r, "id"))

	var req ApproveRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	resolved, err := h.Engine.Approve(r.Context(), id, admin, chit.GroupID(req.GroupID))
	if err != nil {
		h.writeDomainError(w, "Failed to approve request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(resolved))
}

// RejectRequest resolves a pending request without side effects.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	id := chit.RequestID(chi.URLParam(r, "id"))

	resolved, err := h.Engine.Reject(r.Context(), id, admin)
	if err != nil {
		h.writeDomainError(w, "Failed to reject request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(resolved))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) userID(r *http.Request) chit.UserID {
	return chit.UserID(r.Header.Get("X-User-ID"))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (chit.UserID, bool) {
	user := h.userID(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header required", nil)
		return "", false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (chit.UserID, bool) {
	admin := chit.UserID(r.Header.Get("X-Admin-ID"))
	if admin == "" {
		writeError(w, http.StatusUnauthorized, "X-Admin-ID header required", nil)
		return "", false
	}
	return admin, true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps a domain error class onto an HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case chit.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case chit.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case chit.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseMoney(s string) (chit.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return chit.Money{}, err
	}
	return chit.Money{Value: d}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
