// Package domain contains core business types and interfaces.
//
// This file defines the per-user Subscription record. Its methods are pure
// functions of the record and an explicit point in time, so the lifecycle
// rules can be exercised without a clock or a database.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrialState is the position of a subscription in the trial state machine.
type TrialState string

const (
	TrialStateNone    TrialState = "none"
	TrialStateActive  TrialState = "active"
	TrialStateExpired TrialState = "expired"
)

// Subscription binds one user to a plan and carries the mutable usage and
// trial state. There is exactly one per user.
type Subscription struct {
	UserID   uuid.UUID
	Plan     Plan
	IsActive bool

	StartDate time.Time
	// EndDate is the legacy fixed-term expiry used by administrative grants.
	EndDate *time.Time

	IsTrial      bool
	TrialEndDate *time.Time
	// TrialUsedAt is set once when a trial starts and never cleared.
	TrialUsedAt *time.Time

	RequestsUsedToday int64
	// LastRequestDate is a civil date normalised to midnight UTC, see CivilDay.
	LastRequestDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription returns the record lazily created for a user on first access.
func NewSubscription(userID uuid.UUID, plan Plan, now time.Time) *Subscription {
	return &Subscription{
		UserID:    userID,
		Plan:      plan,
		IsActive:  true,
		StartDate: now,
	}
}

// TrialStateAt returns the trial state at the given instant.
func (s *Subscription) TrialStateAt(now time.Time) TrialState {
	if s.IsTrial && s.TrialEndDate != nil {
		if now.Before(*s.TrialEndDate) {
			return TrialStateActive
		}
		return TrialStateExpired
	}
	if s.HasUsedTrial() {
		return TrialStateExpired
	}
	return TrialStateNone
}

// IsTrialActiveAt reports whether a trial is running at the given instant.
func (s *Subscription) IsTrialActiveAt(now time.Time) bool {
	return s.TrialStateAt(now) == TrialStateActive
}

// TrialDaysRemainingAt returns the whole days left in the trial, rounding
// partial days up. It is 0 when no trial is active and never negative.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.IsTrialActiveAt(now) {
		return 0
	}
	remaining := s.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := remaining / (24 * time.Hour)
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return int(days)
}

// HasUsedTrial reports whether the user has ever started a trial.
// Rows written before TrialUsedAt existed fall back to the IsTrial flag.
func (s *Subscription) HasUsedTrial() bool {
	return s.TrialUsedAt != nil || s.IsTrial
}

// TrialExpiredAt reports whether a trial has run out and still needs the
// downgrade applied.
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	return s.IsTrial && s.TrialEndDate != nil && !now.Before(*s.TrialEndDate)
}

// FixedTermExpiredAt reports whether a non-trial fixed-term grant has lapsed.
func (s *Subscription) FixedTermExpiredAt(now time.Time) bool {
	return !s.IsTrial && s.EndDate != nil && now.After(*s.EndDate)
}

// IsStaleOn reports whether the daily counter belongs to a different day.
func (s *Subscription) IsStaleOn(day time.Time) bool {
	return s.LastRequestDate == nil || !s.LastRequestDate.Equal(day)
}

// UsedOn returns the requests consumed on day, treating a stale counter as 0.
func (s *Subscription) UsedOn(day time.Time) int64 {
	if s.IsStaleOn(day) {
		return 0
	}
	return s.RequestsUsedToday
}

// RemainingOn returns the requests still available on day, never negative.
// The counter can exceed the limit after a mid-day downgrade.
func (s *Subscription) RemainingOn(day time.Time) int64 {
	remaining := s.Plan.RequestsPerDay - s.UsedOn(day)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CivilDay returns the calendar date of t in loc, normalised to midnight UTC
// so it compares equal to DATE values read back from the database.
func CivilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
