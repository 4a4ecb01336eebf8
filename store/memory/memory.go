/*
Package memory provides an in-memory chit.TxStore.

PURPOSE:
  A process-local store with the same contract as store/sqlite: atomic
  WithTx with rollback, the uniqueness predicates, and guarded request
  resolution. It exists for tests and for the demo server's -db "" mode.

ROLLBACK:
  WithTx snapshots the whole state (deep copy), runs fn under the write
  lock, and restores the snapshot if fn fails. Deep copies on every read
  and write keep callers from aliasing internal state.

FAULT INJECTION:
  FailOnce(op, err) arms a one-shot failure for the named operation, e.g.

    st.FailOnce("InsertLedgerEntries", errors.New("disk full"))

  which is how atomicity is exercised in tests: inject a failure mid
  transaction and assert that nothing became visible.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// STORE
// =============================================================================

// Store is an in-memory chit.TxStore. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	groups   map[chit.GroupID]*chit.Group
	entries  []chit.LedgerEntry
	requests map[chit.RequestID]*chit.Request
	counters map[string]int64
	audit    []chit.AuditEntry
	failOn   map[string]error
}

var _ chit.TxStore = (*Store)(nil)
var _ chit.AuditSink = (*Store)(nil)

func New() *Store {
	return &Store{
		groups:   make(map[chit.GroupID]*chit.Group),
		requests: make(map[chit.RequestID]*chit.Request),
		counters: make(map[string]int64),
		failOn:   make(map[string]error),
	}
}

// FailOnce arms a one-shot injected failure for the named operation.
func (s *Store) FailOnce(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *Store) fail(op string) error {
	if err, ok := s.failOn[op]; ok {
		delete(s.failOn, op)
		return err
	}
	return nil
}

// =============================================================================
// TRANSACTIONS - Snapshot and restore
// =============================================================================

type snapshot struct {
	groups   map[chit.GroupID]*chit.Group
	entries  []chit.LedgerEntry
	requests map[chit.RequestID]*chit.Request
	counters map[string]int64
	audit    []chit.AuditEntry
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		groups:   make(map[chit.GroupID]*chit.Group, len(s.groups)),
		entries:  make([]chit.LedgerEntry, len(s.entries)),
		requests: make(map[chit.RequestID]*chit.Request, len(s.requests)),
		counters: make(map[string]int64, len(s.counters)),
		audit:    append([]chit.AuditEntry(nil), s.audit...),
	}
	for id, g := range s.groups {
		snap.groups[id] = copyGroup(g)
	}
	for i := range s.entries {
		snap.entries[i] = copyEntry(&s.entries[i])
	}
	for id, r := range s.requests {
		snap.requests[id] = copyRequest(r)
	}
	for name, v := range s.counters {
		snap.counters[name] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.groups = snap.groups
	s.entries = snap.entries
	s.requests = snap.requests
	s.counters = snap.counters
	s.audit = snap.audit
}

// WithTx runs fn against a transactional view. If fn returns an error the
// pre-transaction state is restored wholesale.
func (s *Store) WithTx(ctx context.Context, fn func(chit.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&txStore{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStore exposes the lock-free internals to a function already holding the
// write lock. Nested WithTx is not supported.
type txStore struct {
	s *Store
}

func (t *txStore) CreateGroup(ctx context.Context, g *chit.Group) error {
	return t.s.createGroup(g)
}
func (t *txStore) GetGroup(ctx context.Context, id chit.GroupID) (*chit.Group, error) {
	return t.s.getGroup(id)
}
func (t *txStore) ListGroups(ctx context.Context) ([]chit.Group, error) {
	return t.s.listGroups()
}
func (t *txStore) GroupsForUser(ctx context.Context, userID chit.UserID) ([]chit.Group, error) {
	return t.s.groupsForUser(userID)
}
func (t *txStore) UpdateMembers(ctx context.Context, id chit.GroupID, members []chit.Member) error {
	return t.s.updateMembers(id, members)
}
func (t *txStore) InsertLedgerEntries(ctx context.Context, entries []chit.LedgerEntry) error {
	return t.s.insertLedgerEntries(entries)
}
func (t *txStore) GetLedgerEntry(ctx context.Context, groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	return t.s.getLedgerEntry(groupID, userID, month)
}
func (t *txStore) LedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	return t.s.ledgerForMember(groupID, userID)
}
func (t *txStore) LedgerForUser(ctx context.Context, userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	return t.s.ledgerForUser(userID, groupIDs)
}
func (t *txStore) UpdateLedgerEntry(ctx context.Context, e *chit.LedgerEntry) error {
	return t.s.updateLedgerEntry(e)
}
func (t *txStore) DeleteLedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) (int, error) {
	return t.s.deleteLedgerForMember(groupID, userID)
}
func (t *txStore) CreateRequest(ctx context.Context, r *chit.Request) error {
	return t.s.createRequest(r)
}
func (t *txStore) GetRequest(ctx context.Context, id chit.RequestID) (*chit.Request, error) {
	return t.s.getRequest(id)
}
func (t *txStore) HasPendingRequest(ctx context.Context, userID chit.UserID, rt chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	return t.s.hasPendingRequest(userID, rt, groupID, month)
}
func (t *txStore) ListPendingRequests(ctx context.Context) ([]chit.Request, error) {
	return t.s.listPendingRequests()
}
func (t *txStore) RequestsForUser(ctx context.Context, userID chit.UserID) ([]chit.Request, error) {
	return t.s.requestsForUser(userID)
}
func (t *txStore) ResolveRequest(ctx context.Context, id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	return t.s.resolveRequest(id, status, groupID)
}
func (t *txStore) DeletePendingRequest(ctx context.Context, userID chit.UserID, rt chit.RequestType, amount chit.Money) error {
	return t.s.deletePendingRequest(userID, rt, amount)
}
func (t *txStore) NextSequence(ctx context.Context, name string) (int64, error) {
	return t.s.nextSequence(name)
}

// =============================================================================
// GROUPS
// =============================================================================

func (s *Store) CreateGroup(ctx context.Context, g *chit.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createGroup(g)
}

func (s *Store) createGroup(g *chit.Group) error {
	if err := s.fail("CreateGroup"); err != nil {
		return err
	}
	s.groups[g.ID] = copyGroup(g)
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id chit.GroupID) (*chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getGroup(id)
}

func (s *Store) getGroup(id chit.GroupID) (*chit.Group, error) {
	if err := s.fail("GetGroup"); err != nil {
		return nil, err
	}
	g, ok := s.groups[id]
	if !ok {
		return nil, chit.ErrGroupNotFound
	}
	return copyGroup(g), nil
}

func (s *Store) ListGroups(ctx context.Context) ([]chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listGroups()
}

func (s *Store) listGroups() ([]chit.Group, error) {
	out := make([]chit.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNo < out[j].GroupNo })
	return out, nil
}

func (s *Store) GroupsForUser(ctx context.Context, userID chit.UserID) ([]chit.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsForUser(userID)
}

func (s *Store) groupsForUser(userID chit.UserID) ([]chit.Group, error) {
	var out []chit.Group
	for _, g := range s.groups {
		if g.ActiveMember(userID) != nil {
			out = append(out, *copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNo < out[j].GroupNo })
	return out, nil
}

func (s *Store) UpdateMembers(ctx context.Context, id chit.GroupID, members []chit.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMembers(id, members)
}

func (s *Store) updateMembers(id chit.GroupID, members []chit.Member) error {
	if err := s.fail("UpdateMembers"); err != nil {
		return err
	}
	g, ok := s.groups[id]
	if !ok {
		return chit.ErrGroupNotFound
	}
	// One prebooked month per group, same predicate as the sqlite partial
	// unique index.
	seen := make(map[int]chit.UserID)
	for i := range members {
		m := &members[i]
		if m.Status != chit.MemberActive || m.PreBookedMonth == nil {
			continue
		}
		if holder, ok := seen[m.PreBookedMonth.Index()]; ok && holder != m.UserID {
			return chit.ErrMonthAlreadyBooked
		}
		seen[m.PreBookedMonth.Index()] = m.UserID
	}
	g.Members = copyMembers(members)
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) InsertLedgerEntries(ctx context.Context, entries []chit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLedgerEntries(entries)
}

func (s *Store) insertLedgerEntries(entries []chit.LedgerEntry) error {
	if err := s.fail("InsertLedgerEntries"); err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		// (group, user, month) is unique; a collision means the user already
		// holds a ledger in this group.
		if s.findEntry(e.GroupID, e.UserID, e.Month) >= 0 {
			return chit.ErrAlreadyMember
		}
		s.entries = append(s.entries, copyEntry(e))
	}
	return nil
}

func (s *Store) findEntry(groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) int {
	for i := range s.entries {
		e := &s.entries[i]
		if e.GroupID == groupID && e.UserID == userID && e.Month.Equal(month) {
			return i
		}
	}
	return -1
}

func (s *Store) GetLedgerEntry(ctx context.Context, groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLedgerEntry(groupID, userID, month)
}

func (s *Store) getLedgerEntry(groupID chit.GroupID, userID chit.UserID, month chit.MonthKey) (*chit.LedgerEntry, error) {
	if err := s.fail("GetLedgerEntry"); err != nil {
		return nil, err
	}
	i := s.findEntry(groupID, userID, month)
	if i < 0 {
		return nil, chit.ErrLedgerEntryNotFound
	}
	e := copyEntry(&s.entries[i])
	return &e, nil
}

func (s *Store) LedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerForMember(groupID, userID)
}

func (s *Store) ledgerForMember(groupID chit.GroupID, userID chit.UserID) ([]chit.LedgerEntry, error) {
	var out []chit.LedgerEntry
	for i := range s.entries {
		e := &s.entries[i]
		if e.GroupID == groupID && e.UserID == userID {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s *Store) LedgerForUser(ctx context.Context, userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerForUser(userID, groupIDs)
}

func (s *Store) ledgerForUser(userID chit.UserID, groupIDs []chit.GroupID) ([]chit.LedgerEntry, error) {
	want := make(map[chit.GroupID]bool, len(groupIDs))
	for _, id := range groupIDs {
		want[id] = true
	}
	var out []chit.LedgerEntry
	for i := range s.entries {
		e := &s.entries[i]
		if e.UserID == userID && want[e.GroupID] {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s *Store) UpdateLedgerEntry(ctx context.Context, e *chit.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLedgerEntry(e)
}

func (s *Store) updateLedgerEntry(e *chit.LedgerEntry) error {
	if err := s.fail("UpdateLedgerEntry"); err != nil {
		return err
	}
	i := s.findEntry(e.GroupID, e.UserID, e.Month)
	if i < 0 {
		return chit.ErrLedgerEntryNotFound
	}
	s.entries[i] = copyEntry(e)
	return nil
}

func (s *Store) DeleteLedgerForMember(ctx context.Context, groupID chit.GroupID, userID chit.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLedgerForMember(groupID, userID)
}

func (s *Store) deleteLedgerForMember(groupID chit.GroupID, userID chit.UserID) (int, error) {
	if err := s.fail("DeleteLedgerForMember"); err != nil {
		return 0, err
	}
	kept := s.entries[:0]
	deleted := 0
	for i := range s.entries {
		e := s.entries[i]
		if e.GroupID == groupID && e.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r *chit.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRequest(r)
}

func (s *Store) createRequest(r *chit.Request) error {
	if err := s.fail("CreateRequest"); err != nil {
		return err
	}
	// Constraint-level duplicate guards, mirroring the sqlite partial
	// unique indexes.
	switch r.Type {
	case chit.RequestJoinGroup:
		dup, _ := s.hasPendingRequest(r.UserID, r.Type, "", nil)
		if dup {
			return chit.ErrDuplicatePending
		}
	case chit.RequestPrebook, chit.RequestCashPayment:
		dup, _ := s.hasPendingRequest(r.UserID, r.Type, r.GroupID, r.Month)
		if dup {
			return chit.ErrDuplicatePending
		}
	}
	s.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id chit.RequestID) (*chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequest(id)
}

func (s *Store) getRequest(id chit.RequestID) (*chit.Request, error) {
	if err := s.fail("GetRequest"); err != nil {
		return nil, err
	}
	r, ok := s.requests[id]
	if !ok {
		return nil, chit.ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (s *Store) HasPendingRequest(ctx context.Context, userID chit.UserID, rt chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPendingRequest(userID, rt, groupID, month)
}

func (s *Store) hasPendingRequest(userID chit.UserID, rt chit.RequestType, groupID chit.GroupID, month *chit.MonthKey) (bool, error) {
	for _, r := range s.requests {
		if r.Status != chit.RequestPending || r.UserID != userID || r.Type != rt {
			continue
		}
		if groupID != "" && r.GroupID != groupID {
			continue
		}
		if month != nil && (r.Month == nil || !r.Month.Equal(*month)) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPendingRequests()
}

func (s *Store) listPendingRequests() ([]chit.Request, error) {
	var out []chit.Request
	for _, r := range s.requests {
		if r.Status == chit.RequestPending {
			out = append(out, *copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RequestsForUser(ctx context.Context, userID chit.UserID) ([]chit.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestsForUser(userID)
}

func (s *Store) requestsForUser(userID chit.UserID) ([]chit.Request, error) {
	var out []chit.Request
	for _, r := range s.requests {
		if r.UserID == userID {
			out = append(out, *copyRequest(r))
		}
	}
	// Newest first; the pending queue is the opposite.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ResolveRequest(ctx context.Context, id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveRequest(id, status, groupID)
}

func (s *Store) resolveRequest(id chit.RequestID, status chit.RequestStatus, groupID chit.GroupID) error {
	if err := s.fail("ResolveRequest"); err != nil {
		return err
	}
	r, ok := s.requests[id]
	if !ok {
		return chit.ErrRequestNotFound
	}
	if r.Status != chit.RequestPending {
		return chit.ErrAlreadyProcessed
	}
	r.Status = status
	if groupID != "" {
		r.GroupID = groupID
	}
	return nil
}

func (s *Store) DeletePendingRequest(ctx context.Context, userID chit.UserID, rt chit.RequestType, amount chit.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePendingRequest(userID, rt, amount)
}

func (s *Store) deletePendingRequest(userID chit.UserID, rt chit.RequestType, amount chit.Money) error {
	if err := s.fail("DeletePendingRequest"); err != nil {
		return err
	}
	for id, r := range s.requests {
		if r.Status == chit.RequestPending && r.UserID == userID && r.Type == rt && r.Amount.Equal(amount) {
			delete(s.requests, id)
			return nil
		}
	}
	return chit.ErrRequestNotFound
}

// =============================================================================
// COUNTERS AND AUDIT
// =============================================================================

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequence(name)
}

func (s *Store) nextSequence(name string) (int64, error) {
	if err := s.fail("NextSequence"); err != nil {
		return 0, err
	}
	s.counters[name]++
	return s.counters[name], nil
}

// Record implements chit.AuditSink.
func (s *Store) Record(ctx context.Context, e chit.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Record"); err != nil {
		return err
	}
	s.audit = append(s.audit, e)
	return nil
}

// AuditLog returns a copy of the recorded audit entries, oldest first.
func (s *Store) AuditLog() []chit.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chit.AuditEntry(nil), s.audit...)
}

// =============================================================================
// DEEP COPIES
// =============================================================================

func copyGroup(g *chit.Group) *chit.Group {
	out := *g
	out.Members = copyMembers(g.Members)
	return &out
}

func copyMembers(members []chit.Member) []chit.Member {
	out := make([]chit.Member, len(members))
	for i := range members {
		out[i] = members[i]
		if members[i].PreBookedMonth != nil {
			m := *members[i].PreBookedMonth
			out[i].PreBookedMonth = &m
		}
	}
	return out
}

func copyEntry(e *chit.LedgerEntry) chit.LedgerEntry {
	out := *e
	if e.PaymentDate != nil {
		d := *e.PaymentDate
		out.PaymentDate = &d
	}
	return out
}

func copyRequest(r *chit.Request) *chit.Request {
	out := *r
	if r.Month != nil {
		m := *r.Month
		out.Month = &m
	}
	return &out
}
