package chit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/chit-engine/chit"
)

// =============================================================================
// GROUP STATUS TESTS
// =============================================================================

func TestGroupStatusAt_FullLifecycle(t *testing.T) {
	// GIVEN: A 12-month group starting January 2025
	// THEN: upcoming before January, active mid-tenure, completed after

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tenure := 12

	cases := []struct {
		name string
		now  time.Time
		want chit.GroupStatus
	}{
		{"before start", time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), chit.GroupUpcoming},
		{"moment of start", start, chit.GroupActive},
		{"mid tenure", time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC), chit.GroupActive},
		{"final month", time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), chit.GroupActive},
		{"after end", time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), chit.GroupCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chit.GroupStatusAt(start, tenure, tc.now))
		})
	}
}

func TestGroupStatusAt_StartDayNormalized(t *testing.T) {
	// GIVEN: A start date of January 20th
	// WHEN: Checking status on January 5th
	// THEN: Active; only the calendar month of the start date matters

	start := time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, chit.GroupActive, chit.GroupStatusAt(start, 12, now))
}

func TestGroupStatusAt_CompletesExactlyAfterTenure(t *testing.T) {
	// GIVEN: A 3-month group starting March 2025 (March, April, May)
	// THEN: Still active in May, completed from June 1st

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	may := time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC)
	june := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, chit.GroupActive, chit.GroupStatusAt(start, 3, may))
	assert.Equal(t, chit.GroupCompleted, chit.GroupStatusAt(start, 3, june))
}
