package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func ptr(t time.Time) *time.Time { return &t }

func TestSubscription_TrialBoundary(t *testing.T) {
	end := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{IsTrial: true, TrialEndDate: ptr(end), TrialUsedAt: ptr(end.Add(-14 * 24 * time.Hour))}

	assert.True(t, sub.IsTrialActiveAt(end.Add(-time.Second)))
	assert.False(t, sub.IsTrialActiveAt(end))
	assert.False(t, sub.IsTrialActiveAt(end.Add(time.Second)))

	assert.True(t, sub.TrialExpiredAt(end))
	assert.False(t, sub.TrialExpiredAt(end.Add(-time.Second)))
}

func TestSubscription_TrialDaysRemainingAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	end := start.Add(14 * 24 * time.Hour)
	sub := &Subscription{IsTrial: true, TrialEndDate: ptr(end)}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "at trial start", now: start, want: 14},
		{name: "one hour in", now: start.Add(time.Hour), want: 14},
		{name: "exactly one day in", now: start.Add(24 * time.Hour), want: 13},
		{name: "one second before end", now: end.Add(-time.Second), want: 1},
		{name: "at end", now: end, want: 0},
		{name: "long after end", now: end.Add(30 * 24 * time.Hour), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sub.TrialDaysRemainingAt(tt.now)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestSubscription_TrialStateAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sub  Subscription
		want TrialState
	}{
		{
			name: "never trialed",
			sub:  Subscription{},
			want: TrialStateNone,
		},
		{
			name: "running trial",
			sub:  Subscription{IsTrial: true, TrialEndDate: ptr(now.Add(time.Hour))},
			want: TrialStateActive,
		},
		{
			name: "trial ran out but not reconciled",
			sub:  Subscription{IsTrial: true, TrialEndDate: ptr(now.Add(-time.Hour))},
			want: TrialStateExpired,
		},
		{
			name: "reconciled after expiry",
			sub:  Subscription{TrialUsedAt: ptr(now.Add(-20 * 24 * time.Hour))},
			want: TrialStateExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.TrialStateAt(now))
		})
	}
}

func TestSubscription_FixedTermExpiredAt(t *testing.T) {
	end := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	sub := &Subscription{EndDate: ptr(end)}

	assert.False(t, sub.FixedTermExpiredAt(end))
	assert.True(t, sub.FixedTermExpiredAt(end.Add(time.Second)))

	sub.IsTrial = true
	assert.False(t, sub.FixedTermExpiredAt(end.Add(time.Second)), "trial path owns expiry while IsTrial is set")
}

func TestSubscription_UsedOnTreatsStaleCounterAsZero(t *testing.T) {
	today := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	sub := &Subscription{
		Plan:              Plan{RequestsPerDay: 10},
		RequestsUsedToday: 10,
		LastRequestDate:   ptr(yesterday),
	}

	assert.True(t, sub.IsStaleOn(today))
	assert.Equal(t, int64(0), sub.UsedOn(today))
	assert.Equal(t, int64(10), sub.RemainingOn(today))
	assert.Equal(t, int64(10), sub.UsedOn(yesterday))
	assert.Equal(t, int64(0), sub.RemainingOn(yesterday))

	sub.LastRequestDate = nil
	assert.True(t, sub.IsStaleOn(today))
}

func TestSubscription_RemainingOnNeverNegative(t *testing.T) {
	today := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{
		Plan:              Plan{RequestsPerDay: 10},
		RequestsUsedToday: 42,
		LastRequestDate:   ptr(today),
	}
	assert.Equal(t, int64(0), sub.RemainingOn(today))
}

func TestCivilDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 23:30 UTC on March 1 is already March 2 in Berlin.
	instant := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), CivilDay(instant, berlin))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), CivilDay(instant, time.UTC))
}

func TestNewSubscription(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	userID := uuid.New()
	sub := NewSubscription(userID, Plan{Name: PlanFree, RequestsPerDay: 10}, now)

	assert.Equal(t, userID, sub.UserID)
	assert.Equal(t, PlanFree, sub.Plan.Name)
	assert.True(t, sub.IsActive)
	assert.Equal(t, now, sub.StartDate)
	assert.Zero(t, sub.RequestsUsedToday)
	assert.Nil(t, sub.LastRequestDate)
	assert.False(t, sub.HasUsedTrial())
}
