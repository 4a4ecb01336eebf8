package chit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// LEDGER GENERATOR TESTS
// =============================================================================

func TestGenerateLedger_OneEntryPerTenureMonth(t *testing.T) {
	// GIVEN: A 12-month group starting January 2025 and a 60000 share
	// WHEN: Generating a member's ledger
	// THEN: Exactly 12 consecutive months, each owing share/tenure

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	entries, err := chit.GenerateLedger("grp-1", "user-1", start, 12, chit.NewMoney(60000), now)
	require.NoError(t, err)
	require.Len(t, entries, 12)

	expected := chit.MonthKey{Year: 2025, Month: time.January}
	for i, e := range entries {
		assert.True(t, e.Month.Equal(expected), "entry %d: got %s want %s", i, e.Month, expected)
		assert.Equal(t, "5000", e.MonthDue.String())
		assert.Equal(t, chit.GroupID("grp-1"), e.GroupID)
		assert.Equal(t, chit.UserID("user-1"), e.UserID)
		assert.NotEmpty(t, e.ID)
		expected = expected.Add(1)
	}
}

func TestGenerateLedger_MidTenureJoin_BackMonthsDue(t *testing.T) {
	// GIVEN: A group that started in January, joined in June
	// WHEN: Generating the ledger
	// THEN: January-May are due, June is pending, July onward upcoming

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	entries, err := chit.GenerateLedger("grp-1", "user-1", start, 12, chit.NewMoney(60000), now)
	require.NoError(t, err)

	for i, e := range entries {
		switch {
		case i < 5:
			assert.Equal(t, chit.EntryDue, e.Status, "month %s", e.Month)
		case i == 5:
			assert.Equal(t, chit.EntryPending, e.Status, "month %s", e.Month)
		default:
			assert.Equal(t, chit.EntryUpcoming, e.Status, "month %s", e.Month)
		}
	}
}

func TestGenerateLedger_StartDayNormalized(t *testing.T) {
	// GIVEN: A start date of March 25th
	// THEN: The first ledger month is March, not April

	start := time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC)
	now := start

	entries, err := chit.GenerateLedger("grp-1", "user-1", start, 3, chit.NewMoney(3000), now)
	require.NoError(t, err)
	assert.Equal(t, "March 2025", entries[0].Month.String())
}

func TestGenerateLedger_InvalidInputs(t *testing.T) {
	now := time.Now()
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := chit.GenerateLedger("g", "u", time.Time{}, 12, chit.NewMoney(1000), now)
	assert.ErrorIs(t, err, chit.ErrInvalidInput)

	_, err = chit.GenerateLedger("g", "u", start, 0, chit.NewMoney(1000), now)
	assert.ErrorIs(t, err, chit.ErrInvalidInput)

	_, err = chit.GenerateLedger("g", "u", start, 12, chit.NewMoney(0), now)
	assert.ErrorIs(t, err, chit.ErrInvalidShare)
}

// =============================================================================
// ENTRY STATE MACHINE TESTS
// =============================================================================

func TestLedgerEntry_MarkPaid(t *testing.T) {
	// GIVEN: A due entry
	// WHEN: Marking it paid via UPI
	// THEN: Status paid with method and date recorded

	e := chit.LedgerEntry{Status: chit.EntryDue}
	at := time.Date(2025, time.July, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, e.MarkPaid("upi", at))

	assert.Equal(t, chit.EntryPaid, e.Status)
	assert.Equal(t, "upi", e.PaymentMethod)
	require.NotNil(t, e.PaymentDate)
	assert.Equal(t, at, *e.PaymentDate)
}

func TestLedgerEntry_MarkPaid_Twice_Rejected(t *testing.T) {
	// GIVEN: A paid entry
	// WHEN: Paying it again
	// THEN: ErrEntryAlreadyPaid; paid is terminal

	e := chit.LedgerEntry{Status: chit.EntryDue}
	require.NoError(t, e.MarkPaid("upi", time.Now()))

	err := e.MarkPaid("cash", time.Now())
	assert.ErrorIs(t, err, chit.ErrEntryAlreadyPaid)
}

func TestLedgerEntry_MarkPaid_MethodRequired(t *testing.T) {
	e := chit.LedgerEntry{Status: chit.EntryPending}
	err := e.MarkPaid("", time.Now())
	assert.ErrorIs(t, err, chit.ErrInvalidInput)
}

func TestLedgerEntry_StatusAt_ReclassifiesWithTime(t *testing.T) {
	// GIVEN: An entry created as upcoming for August 2025
	// WHEN: Read in September
	// THEN: It now reads as due; paid entries never reclassify

	e := chit.LedgerEntry{
		Month:  chit.MonthKey{Year: 2025, Month: time.August},
		Status: chit.EntryUpcoming,
	}
	september := time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, chit.EntryDue, e.StatusAt(september))

	require.NoError(t, e.MarkPaid("upi", september))
	assert.Equal(t, chit.EntryPaid, e.StatusAt(september.AddDate(1, 0, 0)))
}
