package service

import (
	"testing"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaLedger_TodayUsesConfiguredZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}

	// 23:30 UTC on March 14 is already March 15 in Berlin.
	now := time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC)
	ledger := NewQuotaLedger(berlin, func() time.Time { return now })

	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ledger.Today())
}

func TestQuotaLedger_Reconcile(t *testing.T) {
	clock := &testClock{t: baseTime}
	ledger := NewQuotaLedger(time.UTC, clock.Now)
	today := ledger.Today()
	yesterday := today.AddDate(0, 0, -1)

	sub := &domain.Subscription{RequestsUsedToday: 7, LastRequestDate: &yesterday}
	assert.True(t, ledger.Reconcile(sub))
	assert.Equal(t, int64(0), sub.RequestsUsedToday)
	require.NotNil(t, sub.LastRequestDate)
	assert.True(t, sub.LastRequestDate.Equal(today))

	sub.RequestsUsedToday = 3
	assert.False(t, ledger.Reconcile(sub), "same day is a no-op")
	assert.Equal(t, int64(3), sub.RequestsUsedToday)
}

func TestQuotaLedger_CanMakeRequest(t *testing.T) {
	clock := &testClock{t: baseTime}
	ledger := NewQuotaLedger(time.UTC, clock.Now)
	today := ledger.Today()
	yesterday := today.AddDate(0, 0, -1)

	tests := []struct {
		name  string
		limit int64
		used  int64
		last  *time.Time
		want  bool
	}{
		{name: "under limit", limit: 10, used: 9, last: &today, want: true},
		{name: "at limit", limit: 10, used: 10, last: &today, want: false},
		{name: "stale counter", limit: 10, used: 10, last: &yesterday, want: true},
		{name: "never used", limit: 10, used: 0, last: nil, want: true},
		{name: "zero limit", limit: 0, used: 0, last: nil, want: false},
		{name: "unlimited", limit: domain.Unlimited, used: 1_000_000, last: &today, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &domain.Subscription{
				Plan:              domain.Plan{RequestsPerDay: tt.limit},
				RequestsUsedToday: tt.used,
				LastRequestDate:   tt.last,
			}
			assert.Equal(t, tt.want, ledger.CanMakeRequest(sub))
			assert.Equal(t, tt.used, sub.RequestsUsedToday, "checking must not mutate")
		})
	}
}

func TestQuotaLedger_Increment(t *testing.T) {
	clock := &testClock{t: baseTime}
	ledger := NewQuotaLedger(time.UTC, clock.Now)
	yesterday := ledger.Today().AddDate(0, 0, -1)

	sub := &domain.Subscription{
		Plan:              domain.Plan{RequestsPerDay: 10},
		RequestsUsedToday: 10,
		LastRequestDate:   &yesterday,
	}

	ledger.Increment(sub)
	assert.Equal(t, int64(1), sub.RequestsUsedToday)
	assert.Equal(t, int64(9), ledger.Remaining(sub))

	ledger.Increment(sub)
	assert.Equal(t, int64(2), sub.RequestsUsedToday)
}

func TestQuotaLedger_RemainingNeverNegative(t *testing.T) {
	clock := &testClock{t: baseTime}
	ledger := NewQuotaLedger(time.UTC, clock.Now)
	today := ledger.Today()

	// Counter above the limit after a mid-day downgrade from basic.
	sub := &domain.Subscription{
		Plan:              domain.Plan{RequestsPerDay: 10},
		RequestsUsedToday: 57,
		LastRequestDate:   &today,
	}
	assert.Equal(t, int64(0), ledger.Remaining(sub))
}
