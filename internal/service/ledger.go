// Package service contains the business logic layer.
//
// This file implements the quota ledger: the per-day request counter with
// lazy rollover. The ledger only mutates the in-memory record; callers
// persist it while holding the subscription row lock.
package service

import (
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
)

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

// QuotaLedger enforces at most Plan.RequestsPerDay admitted requests per
// calendar day, with day boundaries in one process-wide timezone.
type QuotaLedger struct {
	loc *time.Location
	now Clock
}

// NewQuotaLedger creates a ledger using loc for day boundaries.
func NewQuotaLedger(loc *time.Location, now Clock) *QuotaLedger {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &QuotaLedger{loc: loc, now: now}
}

// Now returns the ledger's current instant.
func (l *QuotaLedger) Now() time.Time {
	return l.now()
}

// Location returns the timezone used for day boundaries.
func (l *QuotaLedger) Location() *time.Location {
	return l.loc
}

// Today returns the current civil date, see domain.CivilDay.
func (l *QuotaLedger) Today() time.Time {
	return domain.CivilDay(l.now(), l.loc)
}

// Reconcile resets a counter left over from an earlier day and reports
// whether it changed anything.
func (l *QuotaLedger) Reconcile(sub *domain.Subscription) bool {
	today := l.Today()
	if !sub.IsStaleOn(today) {
		return false
	}
	sub.RequestsUsedToday = 0
	sub.LastRequestDate = &today
	return true
}

// CanMakeRequest reports whether one more request fits in today's quota.
// A stale counter counts as zero. A limit of 0 never admits.
func (l *QuotaLedger) CanMakeRequest(sub *domain.Subscription) bool {
	return sub.UsedOn(l.Today()) < sub.Plan.RequestsPerDay
}

// Increment charges one request against today's quota.
func (l *QuotaLedger) Increment(sub *domain.Subscription) {
	l.Reconcile(sub)
	sub.RequestsUsedToday++
}

// Remaining returns the requests left today, never negative.
func (l *QuotaLedger) Remaining(sub *domain.Subscription) int64 {
	return sub.RemainingOn(l.Today())
}

// Used returns the requests charged today.
func (l *QuotaLedger) Used(sub *domain.Subscription) int64 {
	return sub.UsedOn(l.Today())
}
