package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/DukeRupert/plantleads/internal/auth"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// =============================================================================
// Fake services
// =============================================================================

type fakeEntitlements struct {
	EvaluateFunc        func(ctx context.Context, req domain.AdmissionRequest) (*domain.AdmissionResult, error)
	StartTrialFunc      func(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	UpgradePlanFunc     func(ctx context.Context, userID uuid.UUID, name domain.PlanName) (*domain.Subscription, error)
	DowngradeToFreeFunc func(ctx context.Context, userID uuid.UUID, cause string) (*domain.Subscription, error)
	GetUsageSummaryFunc func(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)
	CanShareFunc        func(ctx context.Context, userID uuid.UUID) (bool, error)

	upgrades   []domain.PlanName
	downgrades []string
}

func (f *fakeEntitlements) Evaluate(ctx context.Context, req domain.AdmissionRequest) (*domain.AdmissionResult, error) {
	return f.EvaluateFunc(ctx, req)
}

func (f *fakeEntitlements) StartTrial(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return f.StartTrialFunc(ctx, userID)
}

func (f *fakeEntitlements) UpgradePlan(ctx context.Context, userID uuid.UUID, name domain.PlanName) (*domain.Subscription, error) {
	f.upgrades = append(f.upgrades, name)
	if f.UpgradePlanFunc != nil {
		return f.UpgradePlanFunc(ctx, userID, name)
	}
	return &domain.Subscription{UserID: userID, Plan: domain.Plan{Name: name}}, nil
}

func (f *fakeEntitlements) DowngradeToFree(ctx context.Context, userID uuid.UUID, cause string) (*domain.Subscription, error) {
	f.downgrades = append(f.downgrades, cause)
	if f.DowngradeToFreeFunc != nil {
		return f.DowngradeToFreeFunc(ctx, userID, cause)
	}
	return &domain.Subscription{UserID: userID, Plan: domain.Plan{Name: domain.PlanFree}}, nil
}

func (f *fakeEntitlements) GrantPlan(ctx context.Context, userID uuid.UUID, name domain.PlanName, days int) (*domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEntitlements) GetUsageSummary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	if f.GetUsageSummaryFunc != nil {
		return f.GetUsageSummaryFunc(ctx, userID)
	}
	return &domain.UsageSummary{PlanName: domain.PlanFree}, nil
}

func (f *fakeEntitlements) CanShare(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f.CanShareFunc(ctx, userID)
}

type fakeCatalog struct {
	plans []domain.Plan
	err   error
}

func (f *fakeCatalog) GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	for i := range f.plans {
		if f.plans[i].Name == name {
			return &f.plans[i], nil
		}
	}
	return nil, domain.UnknownPlan("catalog.get_plan", name)
}

func (f *fakeCatalog) DefaultPlan(ctx context.Context) (*domain.Plan, error) {
	return f.GetPlan(ctx, domain.PlanFree)
}

func (f *fakeCatalog) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return f.plans, f.err
}

func (f *fakeCatalog) SeedPlans(ctx context.Context, plans []domain.Plan) ([]domain.Plan, error) {
	return nil, errors.New("not implemented")
}

type fakeActivity struct {
	gotDays int
	err     error
}

func (f *fakeActivity) DailyUsage(ctx context.Context, userID uuid.UUID, days int) ([]domain.DailyUsage, error) {
	f.gotDays = days
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DailyUsage{{Day: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Requests: 4}}, nil
}

type fakeBilling struct {
	event     stripe.Event
	verifyErr error

	checkoutURL  string
	checkoutErr  error
	checkoutPlan domain.PlanName
	checkoutMail string

	prices map[string]domain.PlanName
}

func (f *fakeBilling) CreateCheckoutSession(userID uuid.UUID, email string, plan domain.PlanName, successURL, cancelURL string) (string, error) {
	f.checkoutPlan = plan
	f.checkoutMail = email
	return f.checkoutURL, f.checkoutErr
}

func (f *fakeBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	return f.event, f.verifyErr
}

func (f *fakeBilling) PlanForPriceID(priceID string) domain.PlanName {
	return f.prices[priceID]
}

// =============================================================================
// Helpers
// =============================================================================

// newRequest builds a request carrying userID, or an anonymous one for uuid.Nil.
func newRequest(method, target, body string, userID uuid.UUID) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != uuid.Nil {
		r = r.WithContext(auth.SetUserID(r.Context(), userID))
	}
	return r
}

// passThrough stands in for the identity middleware in route tests.
func passThrough(next http.Handler) http.Handler { return next }

func testPlans() []domain.Plan {
	return domain.DefaultPlans()
}
