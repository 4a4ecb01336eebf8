package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chit-engine/chit"
	"github.com/warp/chit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testGroup(id chit.GroupID, groupNo string) *chit.Group {
	return &chit.Group{
		ID:                id,
		GroupNo:           groupNo,
		ChitValue:         chit.NewMoney(120000),
		StartMonth:        time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		Tenure:            12,
		ForemanCommission: decimal.NewFromInt(3),
		CreatedAt:         time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testEntries(t *testing.T, groupID chit.GroupID, userID chit.UserID) []chit.LedgerEntry {
	t.Helper()
	now := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	entries, err := chit.GenerateLedger(groupID, userID, start, 12, chit.NewMoney(60000), now)
	require.NoError(t, err)
	return entries
}

// =============================================================================
// GROUP ROUND-TRIP TESTS
// =============================================================================

func TestGroup_RoundTrip(t *testing.T) {
	// GIVEN: A group with two members, one holding a prebooked month
	// WHEN: Stored and loaded again
	// THEN: Every field survives, member order included

	st := newTestStore(t)
	ctx := context.Background()

	oct := chit.MonthKey{Year: 2025, Month: time.October}
	g := testGroup("g1", "G001")
	g.Members = []chit.Member{
		{UserID: "alice", ShareAmount: chit.NewMoney(60000), Status: chit.MemberActive, PreBookedMonth: &oct},
		{UserID: "bob", ShareAmount: chit.MustParseMoney("60000.50"), Status: chit.MemberActive},
	}
	require.NoError(t, st.CreateGroup(ctx, g))

	got, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, "G001", got.GroupNo)
	assert.Equal(t, "120000", got.ChitValue.String())
	assert.Equal(t, 12, got.Tenure)
	assert.Equal(t, "3", got.ForemanCommission.String())
	require.Len(t, got.Members, 2)
	assert.Equal(t, chit.UserID("alice"), got.Members[0].UserID)
	require.NotNil(t, got.Members[0].PreBookedMonth)
	assert.True(t, got.Members[0].PreBookedMonth.Equal(oct))
	assert.Equal(t, "60000.5", got.Members[1].ShareAmount.String())
	assert.Nil(t, got.Members[1].PreBookedMonth)
}

func TestGroup_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, chit.ErrGroupNotFound)
}

func TestGroup_DuplicateGroupNo_Rejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	err := st.CreateGroup(ctx, testGroup("g2", "G001"))
	assert.Error(t, err)
}

func TestGroupsForUser_ActiveMembershipOnly(t *testing.T) {
	// GIVEN: Alice active in g1, left in g2
	// THEN: Only g1 comes back

	st := newTestStore(t)
	ctx := context.Background()

	g1 := testGroup("g1", "G001")
	g1.Members = []chit.Member{{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive}}
	require.NoError(t, st.CreateGroup(ctx, g1))

	g2 := testGroup("g2", "G002")
	g2.Members = []chit.Member{{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberLeft}}
	require.NoError(t, st.CreateGroup(ctx, g2))

	groups, err := st.GroupsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, chit.GroupID("g1"), groups[0].ID)
}

func TestUpdateMembers_PrebookedMonthUnique(t *testing.T) {
	// GIVEN: Two active members
	// WHEN: Both are written holding October 2025
	// THEN: The partial unique index rejects the write

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))

	oct := chit.MonthKey{Year: 2025, Month: time.October}
	err := st.UpdateMembers(ctx, "g1", []chit.Member{
		{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive, PreBookedMonth: &oct},
		{UserID: "bob", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive, PreBookedMonth: &oct},
	})
	assert.ErrorIs(t, err, chit.ErrMonthAlreadyBooked)
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedger_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))

	entries := testEntries(t, "g1", "alice")
	require.NoError(t, st.InsertLedgerEntries(ctx, entries))

	got, err := st.LedgerForMember(ctx, "g1", "alice")
	require.NoError(t, err)
	require.Len(t, got, 12)
	assert.Equal(t, "July 2025", got[0].Month.String())
	assert.Equal(t, "June 2026", got[11].Month.String())
	assert.Equal(t, "5000", got[0].MonthDue.String())
}

func TestLedger_DuplicateMonth_Rejected(t *testing.T) {
	// GIVEN: Alice already has a July 2025 row in g1
	// WHEN: Inserting the same (group, user, month) again
	// THEN: The unique index rejects it as a membership conflict

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice")))

	err := st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice"))
	assert.ErrorIs(t, err, chit.ErrAlreadyMember)
}

func TestLedger_UpdateEntry_PaymentSurvives(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice")))

	july := chit.MonthKey{Year: 2025, Month: time.July}
	entry, err := st.GetLedgerEntry(ctx, "g1", "alice", july)
	require.NoError(t, err)

	paidAt := time.Date(2025, time.July, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, entry.MarkPaid("upi", paidAt))
	require.NoError(t, st.UpdateLedgerEntry(ctx, entry))

	got, err := st.GetLedgerEntry(ctx, "g1", "alice", july)
	require.NoError(t, err)
	assert.Equal(t, chit.EntryPaid, got.Status)
	assert.Equal(t, "upi", got.PaymentMethod)
	require.NotNil(t, got.PaymentDate)
	assert.True(t, got.PaymentDate.Equal(paidAt))
}

func TestLedger_DeleteForMember_CountsAndScopes(t *testing.T) {
	// GIVEN: Ledgers for Alice and Bob in the same group
	// WHEN: Deleting Alice's
	// THEN: 12 rows reported gone, Bob untouched

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "bob")))

	n, err := st.DeleteLedgerForMember(ctx, "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	bob, err := st.LedgerForMember(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Len(t, bob, 12)
}

func TestLedgerForUser_AcrossGroups(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	require.NoError(t, st.CreateGroup(ctx, testGroup("g2", "G002")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g2", "alice")))

	got, err := st.LedgerForUser(ctx, "alice", []chit.GroupID{"g1", "g2"})
	require.NoError(t, err)
	assert.Len(t, got, 24)

	got, err = st.LedgerForUser(ctx, "alice", []chit.GroupID{"g1"})
	require.NoError(t, err)
	assert.Len(t, got, 12)

	got, err = st.LedgerForUser(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// REQUEST TESTS
// =============================================================================

func pendingJoin(id chit.RequestID, user chit.UserID) *chit.Request {
	return &chit.Request{
		ID:        id,
		UserID:    user,
		Type:      chit.RequestJoinGroup,
		Amount:    chit.NewMoney(50000),
		Status:    chit.RequestPending,
		CreatedAt: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRequest_PendingJoinUnique(t *testing.T) {
	// GIVEN: A pending join for Alice
	// WHEN: Inserting a second pending join for Alice
	// THEN: ErrDuplicatePending from the partial unique index

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRequest(ctx, pendingJoin("r1", "alice")))
	err := st.CreateRequest(ctx, pendingJoin("r2", "alice"))
	assert.ErrorIs(t, err, chit.ErrDuplicatePending)

	// A different user is unaffected.
	assert.NoError(t, st.CreateRequest(ctx, pendingJoin("r3", "bob")))
}

func TestRequest_ResolvedJoinFreesTheSlot(t *testing.T) {
	// GIVEN: Alice's join was approved
	// WHEN: She submits a new join later
	// THEN: The partial index only covers pending rows, so it succeeds

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRequest(ctx, pendingJoin("r1", "alice")))
	require.NoError(t, st.ResolveRequest(ctx, "r1", chit.RequestApproved, "g1"))

	assert.NoError(t, st.CreateRequest(ctx, pendingJoin("r2", "alice")))
}

func TestRequest_MonthScopedUnique(t *testing.T) {
	// GIVEN: A pending prebook for (alice, g1, October)
	// WHEN: Repeating it, then varying the month
	// THEN: Duplicate rejected, different month accepted

	st := newTestStore(t)
	ctx := context.Background()

	oct := chit.MonthKey{Year: 2025, Month: time.October}
	nov := chit.MonthKey{Year: 2025, Month: time.November}

	mk := func(id chit.RequestID, m chit.MonthKey) *chit.Request {
		return &chit.Request{
			ID: id, UserID: "alice", GroupID: "g1",
			Type: chit.RequestPrebook, Month: &m,
			Amount: chit.NewMoney(50000), Status: chit.RequestPending,
			CreatedAt: time.Now().UTC(),
		}
	}

	require.NoError(t, st.CreateRequest(ctx, mk("r1", oct)))
	assert.ErrorIs(t, st.CreateRequest(ctx, mk("r2", oct)), chit.ErrDuplicatePending)
	assert.NoError(t, st.CreateRequest(ctx, mk("r3", nov)))
}

func TestResolveRequest_Guarded(t *testing.T) {
	// GIVEN: An approved request
	// WHEN: Resolving again
	// THEN: ErrAlreadyProcessed; unknown IDs report ErrRequestNotFound

	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRequest(ctx, pendingJoin("r1", "alice")))
	require.NoError(t, st.ResolveRequest(ctx, "r1", chit.RequestApproved, "g1"))

	err := st.ResolveRequest(ctx, "r1", chit.RequestRejected, "")
	assert.ErrorIs(t, err, chit.ErrAlreadyProcessed)

	err = st.ResolveRequest(ctx, "missing", chit.RequestApproved, "")
	assert.ErrorIs(t, err, chit.ErrRequestNotFound)

	// The approval stamped the admin-selected group.
	got, err := st.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, chit.GroupID("g1"), got.GroupID)
	assert.Equal(t, chit.RequestApproved, got.Status)
}

func TestHasPendingRequest_Predicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	oct := chit.MonthKey{Year: 2025, Month: time.October}
	r := &chit.Request{
		ID: "r1", UserID: "alice", GroupID: "g1",
		Type: chit.RequestPrebook, Month: &oct,
		Amount: chit.NewMoney(50000), Status: chit.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateRequest(ctx, r))

	found, err := st.HasPendingRequest(ctx, "alice", chit.RequestPrebook, "g1", &oct)
	require.NoError(t, err)
	assert.True(t, found)

	nov := chit.MonthKey{Year: 2025, Month: time.November}
	found, err = st.HasPendingRequest(ctx, "alice", chit.RequestPrebook, "g1", &nov)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = st.HasPendingRequest(ctx, "alice", chit.RequestJoinGroup, "", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeletePendingRequest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRequest(ctx, pendingJoin("r1", "alice")))
	require.NoError(t, st.DeletePendingRequest(ctx, "alice", chit.RequestJoinGroup, chit.NewMoney(50000)))

	err := st.DeletePendingRequest(ctx, "alice", chit.RequestJoinGroup, chit.NewMoney(50000))
	assert.ErrorIs(t, err, chit.ErrRequestNotFound)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a group and then fails
	// WHEN: It returns an error
	// THEN: Nothing is visible afterwards

	st := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(s chit.Store) error {
		if err := s.CreateGroup(ctx, testGroup("g1", "G001")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetGroup(ctx, "g1")
	assert.ErrorIs(t, err, chit.ErrGroupNotFound)
}

func TestWithTx_ReadsSeeOwnWrites(t *testing.T) {
	// GIVEN: A transaction that creates a group
	// WHEN: Reading it back inside the same transaction
	// THEN: The write is visible before commit

	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s chit.Store) error {
		if err := s.CreateGroup(ctx, testGroup("g1", "G001")); err != nil {
			return err
		}
		got, err := s.GetGroup(ctx, "g1")
		if err != nil {
			return err
		}
		assert.Equal(t, "G001", got.GroupNo)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// COUNTER TESTS
// =============================================================================

func TestNextSequence_Monotonic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := st.NextSequence(ctx, "group_no")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Independent counters do not interfere.
	got, err := st.NextSequence(ctx, "user_no")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

// =============================================================================
// AUDIT TESTS
// =============================================================================

func TestAudit_RecordAndQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	e := chit.AuditEntry{
		ID:          "a1",
		Action:      chit.AuditRequestApproved,
		PerformedBy: "admin",
		TargetID:    "r1",
		Details:     map[string]any{"type": "join_group"},
		Timestamp:   time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.Record(ctx, e))

	got, err := st.AuditLog(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chit.AuditRequestApproved, got[0].Action)
	assert.Equal(t, chit.UserID("admin"), got[0].PerformedBy)
	assert.Equal(t, "join_group", got[0].Details["type"])
}

// =============================================================================
// CORRUPT ROW TESTS - Bad persisted values must fail reads, not become zeros
// =============================================================================

func newFileStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chit.db")
	st, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, path
}

// mangleRow rewrites a stored row through a second connection, the way disk
// corruption or a foreign writer would.
func mangleRow(t *testing.T, path, stmt string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(stmt)
	require.NoError(t, err)
}

func TestGetGroup_CorruptAmount_Errors(t *testing.T) {
	// GIVEN: A stored group whose chit_value was mangled on disk
	// THEN: The read fails loudly instead of returning a zero amount

	st, path := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	mangleRow(t, path, "UPDATE groups SET chit_value = 'not-a-number' WHERE id = 'g1'")

	_, err := st.GetGroup(ctx, "g1")
	require.Error(t, err)
	assert.ErrorIs(t, err, chit.ErrInvalidInput)
}

func TestLedger_CorruptTimestamp_Errors(t *testing.T) {
	// GIVEN: A ledger row whose created_at is not a timestamp anymore
	// THEN: The read reports it instead of yielding a zero time

	st, path := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateGroup(ctx, testGroup("g1", "G001")))
	require.NoError(t, st.InsertLedgerEntries(ctx, testEntries(t, "g1", "alice")))
	mangleRow(t, path, "UPDATE ledger_entries SET created_at = 'garbage' WHERE user_id = 'alice'")

	_, err := st.LedgerForMember(ctx, "g1", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")
}
