// Package service contains the business logic layer.
//
// This file implements the trial lifecycle: starting a time-boxed premium
// trial and the lazy downgrade applied when a trial or a fixed-term grant
// runs out.
package service

import (
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
)

// DefaultTrialDuration is the length of a premium trial.
const DefaultTrialDuration = 14 * 24 * time.Hour

// Downgrade causes, used as log and metric labels.
const (
	DowngradeTrialExpired     = "trial_expired"
	DowngradeFixedTermExpired = "fixed_term_expired"
	DowngradeRequested        = "requested"
	DowngradeCanceled         = "subscription_canceled"
)

// TrialLifecycle evaluates trial state against a clock. Expiry is checked
// lazily on access; there is no background timer.
type TrialLifecycle struct {
	duration time.Duration
	now      Clock
}

// NewTrialLifecycle creates a lifecycle granting trials of the given length.
func NewTrialLifecycle(duration time.Duration, now Clock) *TrialLifecycle {
	if duration <= 0 {
		duration = DefaultTrialDuration
	}
	if now == nil {
		now = time.Now
	}
	return &TrialLifecycle{duration: duration, now: now}
}

// Start moves sub onto a premium trial. It returns domain.ErrAlreadyInTrial
// while a trial is running and domain.ErrAlreadyUsedTrial once one has been
// consumed. Call Reconcile first so an expired trial is seen as used.
func (t *TrialLifecycle) Start(sub *domain.Subscription, premium domain.Plan) error {
	now := t.now()
	if sub.IsTrialActiveAt(now) {
		return domain.ErrAlreadyInTrial
	}
	if sub.HasUsedTrial() {
		return domain.ErrAlreadyUsedTrial
	}

	end := now.Add(t.duration)
	sub.Plan = premium
	sub.IsActive = true
	sub.IsTrial = true
	sub.TrialEndDate = &end
	sub.TrialUsedAt = &now
	sub.EndDate = nil
	sub.StartDate = now
	sub.RequestsUsedToday = 0
	return nil
}

// IsActive reports whether a trial is running now.
func (t *TrialLifecycle) IsActive(sub *domain.Subscription) bool {
	return sub.IsTrialActiveAt(t.now())
}

// DaysRemaining returns the whole days left in a running trial, rounded up.
func (t *TrialLifecycle) DaysRemaining(sub *domain.Subscription) int {
	return sub.TrialDaysRemainingAt(t.now())
}

// Due returns the downgrade cause that applies to sub now, or "".
func (t *TrialLifecycle) Due(sub *domain.Subscription) string {
	now := t.now()
	switch {
	case sub.TrialExpiredAt(now):
		return DowngradeTrialExpired
	case sub.FixedTermExpiredAt(now):
		return DowngradeFixedTermExpired
	}
	return ""
}

// Reconcile applies a due downgrade to the free plan and returns its cause,
// or "" when nothing was due. Safe to call on every access.
func (t *TrialLifecycle) Reconcile(sub *domain.Subscription, free domain.Plan) string {
	cause := t.Due(sub)
	if cause == "" {
		return ""
	}
	if sub.IsTrial && sub.TrialUsedAt == nil {
		sub.TrialUsedAt = sub.TrialEndDate
	}
	sub.Plan = free
	sub.IsTrial = false
	sub.TrialEndDate = nil
	sub.EndDate = nil
	return cause
}
