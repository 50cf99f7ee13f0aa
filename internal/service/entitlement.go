// Package service contains the business logic layer.
//
// This file implements the entitlement service: the admission decision made
// for every metered dashboard request, plus the plan and trial transitions
// callers trigger explicitly.
//
// Every operation runs as one transaction holding the user's subscription
// row lock: load or create, reconcile expiry, check, mutate, commit.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/metrics"
	"github.com/google/uuid"
)

// MaxGrantDays bounds administrative fixed-term grants.
const MaxGrantDays = 3650

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService defines the operations web-layer callers use to gate
// metered work and change a user's plan.
type EntitlementService interface {
	// Evaluate decides whether the request may proceed and charges one unit
	// of today's quota when it does. Denials are returned as a result with
	// Allowed=false, not as errors. On any persistence failure the result is
	// a denial and the error is returned alongside it.
	Evaluate(ctx context.Context, req domain.AdmissionRequest) (*domain.AdmissionResult, error)

	// StartTrial moves the user onto a premium trial.
	// Returns domain.ECONFLICT wrapping domain.ErrAlreadyInTrial or
	// domain.ErrAlreadyUsedTrial.
	StartTrial(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// UpgradePlan records a plan assignment, typically after payment
	// confirmation. Payment itself is not validated here.
	// Returns domain.ENOTFOUND wrapping domain.ErrUnknownPlan.
	UpgradePlan(ctx context.Context, userID uuid.UUID, name domain.PlanName) (*domain.Subscription, error)

	// DowngradeToFree moves the user back to the free plan, keeping today's
	// counter. cause is used for logging and metrics only.
	DowngradeToFree(ctx context.Context, userID uuid.UUID, cause string) (*domain.Subscription, error)

	// GrantPlan assigns a plan for a fixed number of days, after which the
	// next access downgrades the user to free.
	GrantPlan(ctx context.Context, userID uuid.UUID, name domain.PlanName, days int) (*domain.Subscription, error)

	// GetUsageSummary returns the reconciled usage for display.
	GetUsageSummary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)

	// CanShare reports whether the user's plan allows sharing lead lists.
	CanShare(ctx context.Context, userID uuid.UUID) (bool, error)
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	store  Store
	ledger *QuotaLedger
	trials *TrialLifecycle
	audit  AuditSink
	logger *slog.Logger
}

// NewEntitlementService creates a new EntitlementService. audit may be nil.
func NewEntitlementService(
	store Store,
	ledger *QuotaLedger,
	trials *TrialLifecycle,
	audit AuditSink,
	logger *slog.Logger,
) EntitlementService {
	return &entitlementService{
		store:  store,
		ledger: ledger,
		trials: trials,
		audit:  audit,
		logger: logger,
	}
}

// Evaluate implements the admission policy.
func (s *entitlementService) Evaluate(ctx context.Context, req domain.AdmissionRequest) (*domain.AdmissionResult, error) {
	const op = "entitlement.evaluate"

	denied := &domain.AdmissionResult{Allowed: false, FilterCount: req.FilterCount}

	if req.UserID == uuid.Nil {
		return denied, domain.Invalid(op, "user id is required")
	}
	if req.FilterCount < 0 {
		return denied, domain.Invalid(op, "filter count must not be negative")
	}

	var (
		result    *domain.AdmissionResult
		downgrade string
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		sub, err := s.getOrCreate(ctx, tx, req.UserID, op)
		if err != nil {
			return err
		}

		downgrade, err = s.reconcile(ctx, tx, sub, op)
		if err != nil {
			return err
		}

		result = s.decide(sub, req)

		if result.Allowed || downgrade != "" {
			if err := tx.SaveSubscription(ctx, sub); err != nil {
				return domain.Internal(err, op, "failed to save subscription")
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Admission failed closed",
			"user_id", req.UserID,
			"endpoint", req.Endpoint,
			"error", err,
		)
		metrics.AdmissionFailed()
		s.record(ctx, req, denied, err)
		return denied, err
	}

	s.noteDowngrade(req.UserID, downgrade)

	if result.Allowed {
		metrics.AdmissionAllowed(string(result.PlanName))
	} else {
		metrics.AdmissionDenied(string(result.PlanName), string(result.Reason))
		s.logger.Info("Admission denied",
			"user_id", req.UserID,
			"plan", result.PlanName,
			"reason", result.Reason,
			"used", result.RequestsUsedToday,
			"limit", result.RequestsPerDay,
			"filter_count", req.FilterCount,
			"max_filters", result.MaxFilters,
		)
	}

	s.record(ctx, req, result, nil)
	return result, nil
}

// decide runs the gates in order and charges the quota only after all of
// them pass.
func (s *entitlementService) decide(sub *domain.Subscription, req domain.AdmissionRequest) *domain.AdmissionResult {
	plan := sub.Plan

	reason := domain.DenialNone
	switch {
	case req.WantsExport && !plan.CanExport:
		reason = domain.DenialExportNotAllowed
	case !s.ledger.CanMakeRequest(sub):
		reason = domain.DenialDailyLimitExceeded
	case int64(req.FilterCount) > plan.MaxFilters:
		reason = domain.DenialTooManyFilters
	default:
		s.ledger.Increment(sub)
	}

	result := &domain.AdmissionResult{
		Allowed:            reason == domain.DenialNone,
		Reason:             reason,
		RemainingRequests:  s.ledger.Remaining(sub),
		RequestsPerDay:     plan.RequestsPerDay,
		RequestsUsedToday:  s.ledger.Used(sub),
		MaxFilters:         plan.MaxFilters,
		FilterCount:        req.FilterCount,
		PlanName:           plan.Name,
		IsTrialActive:      s.trials.IsActive(sub),
		TrialDaysRemaining: s.trials.DaysRemaining(sub),
	}
	if reason == domain.DenialDailyLimitExceeded {
		result.RemainingRequests = 0
	}
	return result
}

func (s *entitlementService) StartTrial(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "entitlement.start_trial"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}

	var (
		sub       *domain.Subscription
		downgrade string
		rejected  error
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		rejected = nil
		sub, err = s.getOrCreate(ctx, tx, userID, op)
		if err != nil {
			return err
		}

		downgrade, err = s.reconcile(ctx, tx, sub, op)
		if err != nil {
			return err
		}

		premium, err := lookupPlan(ctx, tx, op, domain.PlanPremium)
		if err != nil {
			return err
		}

		if err := s.trials.Start(sub, *premium); err != nil {
			rejected = trialConflict(err, op)
			if downgrade == "" {
				return nil
			}
			// The expiry downgrade is still committed.
		}

		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return domain.Internal(err, op, "failed to save subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.noteDowngrade(userID, downgrade)
	if rejected != nil {
		s.logger.Info("Trial start rejected", "user_id", userID, "reason", domain.ErrorMessage(rejected))
		return nil, rejected
	}

	metrics.TrialStarted()
	s.logger.Info("Trial started",
		"user_id", userID,
		"trial_end_date", sub.TrialEndDate,
	)
	return sub, nil
}

func (s *entitlementService) UpgradePlan(ctx context.Context, userID uuid.UUID, name domain.PlanName) (*domain.Subscription, error) {
	const op = "entitlement.upgrade_plan"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}

	sub, err := s.assignPlan(ctx, op, userID, name, func(sub *domain.Subscription, plan domain.Plan, now time.Time) {
		sub.Plan = plan
		sub.IsActive = true
		sub.StartDate = now
		sub.EndDate = nil
		sub.IsTrial = false
		sub.TrialEndDate = nil
		if plan.Name.IsPaid() {
			today := s.ledger.Today()
			sub.RequestsUsedToday = 0
			sub.LastRequestDate = &today
		}
	})
	if err != nil {
		return nil, err
	}

	metrics.PlanChanged(string(name))
	s.logger.Info("Plan updated", "user_id", userID, "plan", name)
	return sub, nil
}

func (s *entitlementService) DowngradeToFree(ctx context.Context, userID uuid.UUID, cause string) (*domain.Subscription, error) {
	const op = "entitlement.downgrade_to_free"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}

	var previous domain.PlanName
	sub, err := s.assignPlan(ctx, op, userID, domain.PlanFree, func(sub *domain.Subscription, plan domain.Plan, now time.Time) {
		previous = sub.Plan.Name
		sub.Plan = plan
		sub.IsActive = true
		sub.StartDate = now
		sub.EndDate = nil
		sub.IsTrial = false
		sub.TrialEndDate = nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PlanChanged(string(domain.PlanFree))
	if previous != domain.PlanFree {
		s.noteDowngrade(userID, cause)
	}
	return sub, nil
}

func (s *entitlementService) GrantPlan(ctx context.Context, userID uuid.UUID, name domain.PlanName, days int) (*domain.Subscription, error) {
	const op = "entitlement.grant_plan"

	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}
	if days < 1 || days > MaxGrantDays {
		return nil, domain.Errorf(domain.EINVALID, op, "days must be between 1 and %d", MaxGrantDays)
	}

	sub, err := s.assignPlan(ctx, op, userID, name, func(sub *domain.Subscription, plan domain.Plan, now time.Time) {
		end := now.Add(time.Duration(days) * 24 * time.Hour)
		sub.Plan = plan
		sub.IsActive = true
		sub.StartDate = now
		sub.EndDate = &end
		sub.IsTrial = false
		sub.TrialEndDate = nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PlanChanged(string(name))
	s.logger.Info("Plan granted",
		"user_id", userID,
		"plan", name,
		"end_date", sub.EndDate,
	)
	return sub, nil
}

func (s *entitlementService) GetUsageSummary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "entitlement.get_usage_summary"

	sub, err := s.reconciled(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	used := s.ledger.Used(sub)
	limit := sub.Plan.RequestsPerDay

	return &domain.UsageSummary{
		PlanName:           sub.Plan.Name,
		PlanDisplayName:    sub.Plan.DisplayName,
		RequestsUsedToday:  used,
		RequestsPerDay:     limit,
		RemainingRequests:  s.ledger.Remaining(sub),
		UsagePercent:       usagePercent(used, limit),
		MaxFilters:         sub.Plan.MaxFilters,
		CanExport:          sub.Plan.CanExport,
		CanShare:           sub.Plan.CanShare,
		IsTrialActive:      s.trials.IsActive(sub),
		TrialDaysRemaining: s.trials.DaysRemaining(sub),
		HasUsedTrial:       sub.HasUsedTrial(),
		EndDate:            sub.EndDate,
	}, nil
}

func (s *entitlementService) CanShare(ctx context.Context, userID uuid.UUID) (bool, error) {
	const op = "entitlement.can_share"

	sub, err := s.reconciled(ctx, op, userID)
	if err != nil {
		return false, err
	}
	return sub.Plan.CanShare, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// getOrCreate locks the user's subscription, creating it on the free plan
// first if needed. Concurrent first calls converge on a single row.
func (s *entitlementService) getOrCreate(ctx context.Context, tx Tx, userID uuid.UUID, op string) (*domain.Subscription, error) {
	sub, err := tx.LockSubscription(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	free, err := lookupDefaultPlan(ctx, tx, op)
	if err != nil {
		return nil, err
	}

	created, err := tx.CreateSubscription(ctx, domain.NewSubscription(userID, *free, s.ledger.Now()))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create subscription")
	}
	if created {
		s.logger.Debug("Subscription created", "user_id", userID, "plan", free.Name)
	}

	sub, err = tx.LockSubscription(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return sub, nil
}

// reconcile applies a due trial or fixed-term downgrade and returns its cause.
func (s *entitlementService) reconcile(ctx context.Context, tx Tx, sub *domain.Subscription, op string) (string, error) {
	if s.trials.Due(sub) == "" {
		return "", nil
	}
	free, err := lookupDefaultPlan(ctx, tx, op)
	if err != nil {
		return "", err
	}
	return s.trials.Reconcile(sub, *free), nil
}

// reconciled loads the subscription for a read, persisting a due downgrade.
func (s *entitlementService) reconciled(ctx context.Context, op string, userID uuid.UUID) (*domain.Subscription, error) {
	if userID == uuid.Nil {
		return nil, domain.Invalid(op, "user id is required")
	}

	var (
		sub       *domain.Subscription
		downgrade string
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		sub, err = s.getOrCreate(ctx, tx, userID, op)
		if err != nil {
			return err
		}
		downgrade, err = s.reconcile(ctx, tx, sub, op)
		if err != nil {
			return err
		}
		if downgrade != "" {
			if err := tx.SaveSubscription(ctx, sub); err != nil {
				return domain.Internal(err, op, "failed to save subscription")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.noteDowngrade(userID, downgrade)
	return sub, nil
}

func (s *entitlementService) assignPlan(
	ctx context.Context,
	op string,
	userID uuid.UUID,
	name domain.PlanName,
	apply func(sub *domain.Subscription, plan domain.Plan, now time.Time),
) (*domain.Subscription, error) {
	var sub *domain.Subscription
	err := s.store.InTx(ctx, func(tx Tx) error {
		plan, err := lookupPlan(ctx, tx, op, name)
		if err != nil {
			return err
		}

		sub, err = s.getOrCreate(ctx, tx, userID, op)
		if err != nil {
			return err
		}

		apply(sub, *plan, s.ledger.Now())

		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return domain.Internal(err, op, "failed to save subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *entitlementService) noteDowngrade(userID uuid.UUID, cause string) {
	if cause == "" {
		return
	}
	metrics.PlanDowngraded(cause)
	s.logger.Info("Subscription downgraded to free", "user_id", userID, "cause", cause)
}

// record hands the decision to the audit sink. Nothing it does can change
// the outcome returned to the caller.
func (s *entitlementService) record(ctx context.Context, req domain.AdmissionRequest, result *domain.AdmissionResult, evalErr error) {
	if s.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Audit sink panicked", "user_id", req.UserID, "panic", r)
		}
	}()

	entry := domain.RequestLog{
		UserID:    req.UserID,
		Endpoint:  req.Endpoint,
		Timestamp: s.ledger.Now(),
		Success:   result.Allowed,
	}
	switch {
	case evalErr != nil:
		entry.ErrorMessage = domain.ErrorCode(evalErr)
	case !result.Allowed:
		entry.ErrorMessage = string(result.Reason)
	}
	if len(req.Filters) > 0 {
		if raw, err := json.Marshal(req.Filters); err == nil {
			entry.Filters = raw
		}
	}

	if err := s.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("Failed to record request", "user_id", req.UserID, "error", err)
	}
}

func trialConflict(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyInTrial):
		return domain.Conflict(err, op, "A trial is already active.")
	case errors.Is(err, domain.ErrAlreadyUsedTrial):
		return domain.Conflict(err, op, "The free trial has already been used.")
	}
	return domain.Internal(err, op, "failed to start trial")
}

func usagePercent(used, limit int64) float64 {
	switch {
	case limit >= domain.Unlimited:
		return 0
	case limit <= 0:
		return 100
	}
	pct := float64(used) * 100 / float64(limit)
	if pct > 100 {
		return 100
	}
	return pct
}
