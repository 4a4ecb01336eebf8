package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chit-engine/chit"
	"github.com/warp/chit-engine/store/memory"
)

func testGroup(id chit.GroupID) *chit.Group {
	return &chit.Group{
		ID:                id,
		GroupNo:           "G001",
		ChitValue:         chit.NewMoney(120000),
		StartMonth:        time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		Tenure:            12,
		ForemanCommission: decimal.NewFromInt(3),
	}
}

func TestWithTx_RollbackRestoresEverything(t *testing.T) {
	// GIVEN: A store holding one group
	// WHEN: A transaction mutates members and counters, then fails
	// THEN: The pre-transaction state is back wholesale

	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1")))

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(s chit.Store) error {
		if err := s.UpdateMembers(ctx, "g1", []chit.Member{
			{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive},
		}); err != nil {
			return err
		}
		if _, err := s.NextSequence(ctx, "group_no"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	g, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, g.Members)

	// The counter increment rolled back too.
	n, err := st.NextSequence(ctx, "group_no")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFailOnce_OneShot(t *testing.T) {
	// GIVEN: An armed failure on CreateGroup
	// THEN: The first call fails, the second succeeds

	st := memory.New()
	ctx := context.Background()

	injected := errors.New("injected")
	st.FailOnce("CreateGroup", injected)

	assert.ErrorIs(t, st.CreateGroup(ctx, testGroup("g1")), injected)
	assert.NoError(t, st.CreateGroup(ctx, testGroup("g1")))
}

func TestReads_ReturnCopies(t *testing.T) {
	// GIVEN: A stored group
	// WHEN: A caller mutates what GetGroup returned
	// THEN: The stored state is unaffected

	st := memory.New()
	ctx := context.Background()

	g := testGroup("g1")
	g.Members = []chit.Member{{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive}}
	require.NoError(t, st.CreateGroup(ctx, g))

	got, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	got.Members[0].Status = chit.MemberLeft

	again, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, chit.MemberActive, again.Members[0].Status)
}

func TestUpdateMembers_PrebookedMonthUnique(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.CreateGroup(ctx, testGroup("g1")))

	oct := chit.MonthKey{Year: 2025, Month: time.October}
	err := st.UpdateMembers(ctx, "g1", []chit.Member{
		{UserID: "alice", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive, PreBookedMonth: &oct},
		{UserID: "bob", ShareAmount: chit.NewMoney(1000), Status: chit.MemberActive, PreBookedMonth: &oct},
	})
	assert.ErrorIs(t, err, chit.ErrMonthAlreadyBooked)
}
