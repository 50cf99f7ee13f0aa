// Package service contains the business logic layer.
//
// This file implements the plan catalog: lookups used by the entitlement
// core and the administrative seeding operation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DukeRupert/plantleads/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PlanCatalog defines read and seed operations on subscription plans.
type PlanCatalog interface {
	// GetPlan returns domain.ENOTFOUND wrapping domain.ErrUnknownPlan when
	// the name is not seeded.
	GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error)

	// DefaultPlan returns the free plan. A missing free plan is a
	// deployment error and returns domain.ECONFIG.
	DefaultPlan(ctx context.Context) (*domain.Plan, error)

	// ListPlans returns all plans ordered by price.
	ListPlans(ctx context.Context) ([]domain.Plan, error)

	// SeedPlans upserts the given plans.
	SeedPlans(ctx context.Context, plans []domain.Plan) ([]domain.Plan, error)
}

// =============================================================================
// Implementation
// =============================================================================

type planCatalog struct {
	store  Store
	logger *slog.Logger
}

// NewPlanCatalog creates a new PlanCatalog.
func NewPlanCatalog(store Store, logger *slog.Logger) PlanCatalog {
	return &planCatalog{
		store:  store,
		logger: logger,
	}
}

func (c *planCatalog) GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	const op = "catalog.get_plan"
	return lookupPlan(ctx, c.store, op, name)
}

func (c *planCatalog) DefaultPlan(ctx context.Context) (*domain.Plan, error) {
	const op = "catalog.default_plan"
	return lookupDefaultPlan(ctx, c.store, op)
}

func (c *planCatalog) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	const op = "catalog.list_plans"

	plans, err := c.store.ListPlans(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}
	return plans, nil
}

func (c *planCatalog) SeedPlans(ctx context.Context, plans []domain.Plan) ([]domain.Plan, error) {
	const op = "catalog.seed_plans"

	for _, p := range plans {
		if err := validatePlan(p); err != nil {
			return nil, domain.Invalid(op, err.Error())
		}
	}

	seeded := make([]domain.Plan, 0, len(plans))
	for _, p := range plans {
		saved, err := c.store.UpsertPlan(ctx, p)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to upsert plan")
		}
		c.logger.Info("Plan seeded",
			"plan", saved.Name,
			"requests_per_day", saved.RequestsPerDay,
			"max_filters", saved.MaxFilters,
		)
		seeded = append(seeded, *saved)
	}
	return seeded, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func lookupPlan(ctx context.Context, src PlanReader, op string, name domain.PlanName) (*domain.Plan, error) {
	if !name.Valid() {
		return nil, domain.UnknownPlan(op, name)
	}
	plan, err := src.GetPlan(ctx, name)
	if errors.Is(err, domain.ErrUnknownPlan) {
		return nil, domain.UnknownPlan(op, name)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load plan")
	}
	return plan, nil
}

func lookupDefaultPlan(ctx context.Context, src PlanReader, op string) (*domain.Plan, error) {
	plan, err := src.GetPlan(ctx, domain.PlanFree)
	if errors.Is(err, domain.ErrUnknownPlan) {
		return nil, domain.Configuration(domain.ErrPlanNotSeeded, op, "the free plan is not seeded")
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load default plan")
	}
	return plan, nil
}

func validatePlan(p domain.Plan) error {
	switch {
	case !p.Name.Valid():
		return errors.New("plan name must be free, basic or premium")
	case p.DisplayName == "":
		return errors.New("plan display name is required")
	case p.PriceCents < 0:
		return errors.New("plan price must not be negative")
	case p.RequestsPerDay < 0 || p.RequestsPerDay > domain.Unlimited:
		return errors.New("requests per day must be between 0 and the unlimited sentinel")
	case p.MaxFilters < 0 || p.MaxFilters > domain.Unlimited:
		return errors.New("max filters must be between 0 and the unlimited sentinel")
	}
	return nil
}
