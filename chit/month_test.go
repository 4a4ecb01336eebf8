package chit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// MONTH KEY TESTS
// =============================================================================

func TestMonthKey_ParseAndFormat_RoundTrip(t *testing.T) {
	// GIVEN: A month in display form
	// WHEN: Parsing and formatting again
	// THEN: The same string comes back

	mk, err := chit.ParseMonthKey("July 2025")
	require.NoError(t, err)

	assert.Equal(t, 2025, mk.Year)
	assert.Equal(t, time.July, mk.Month)
	assert.Equal(t, "July 2025", mk.String())
}

func TestMonthKey_Parse_Invalid(t *testing.T) {
	// GIVEN: Strings that are not "January 2006" shaped
	// THEN: ErrInvalidInput

	for _, bad := range []string{"", "2025-07", "Jul 2025", "July"} {
		_, err := chit.ParseMonthKey(bad)
		assert.ErrorIs(t, err, chit.ErrInvalidInput, "input %q", bad)
	}
}

func TestMonthKey_Add_CrossesYearBoundary(t *testing.T) {
	// GIVEN: November 2025
	// WHEN: Adding 3 months
	// THEN: February 2026

	nov := chit.MonthKey{Year: 2025, Month: time.November}
	feb := nov.Add(3)

	assert.Equal(t, 2026, feb.Year)
	assert.Equal(t, time.February, feb.Month)
}

func TestMonthKey_Index_OrdersAcrossYears(t *testing.T) {
	// GIVEN: December 2025 and January 2026
	// THEN: December sorts strictly before January

	dec := chit.MonthKey{Year: 2025, Month: time.December}
	jan := chit.MonthKey{Year: 2026, Month: time.January}

	assert.True(t, dec.Before(jan))
	assert.True(t, jan.After(dec))
	assert.Equal(t, dec.Index()+1, jan.Index())
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassifyMonth(t *testing.T) {
	// GIVEN: The clock reads mid-June 2025
	// THEN: May is due, June is pending, July is upcoming

	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	may := chit.MonthKey{Year: 2025, Month: time.May}
	june := chit.MonthKey{Year: 2025, Month: time.June}
	july := chit.MonthKey{Year: 2025, Month: time.July}

	assert.Equal(t, chit.EntryDue, chit.ClassifyMonth(may, now))
	assert.Equal(t, chit.EntryPending, chit.ClassifyMonth(june, now))
	assert.Equal(t, chit.EntryUpcoming, chit.ClassifyMonth(july, now))
}

func TestClassifyMonth_DayWithinMonthIrrelevant(t *testing.T) {
	// GIVEN: The current month
	// WHEN: Classified on the 1st and on the 31st
	// THEN: Pending both times; only the calendar month matters

	first := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC)
	march := chit.MonthKey{Year: 2025, Month: time.March}

	assert.Equal(t, chit.EntryPending, chit.ClassifyMonth(march, first))
	assert.Equal(t, chit.EntryPending, chit.ClassifyMonth(march, last))
}
