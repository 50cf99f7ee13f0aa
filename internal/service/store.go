// Package service contains the business logic layer.
//
// This file defines the persistence boundary the entitlement core depends on.
// The Postgres implementation lives in internal/store.
package service

import (
	"context"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
)

// PlanReader resolves catalog entries. Both Store and Tx implement it.
type PlanReader interface {
	// GetPlan returns domain.ErrUnknownPlan when no row has the name.
	GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error)
}

// Store is the transactional entry point to plans and subscriptions.
type Store interface {
	PlanReader

	ListPlans(ctx context.Context) ([]domain.Plan, error)
	UpsertPlan(ctx context.Context, plan domain.Plan) (*domain.Plan, error)

	// InTx runs fn in a single transaction and commits when fn returns nil.
	// fn may be invoked more than once when the database reports a
	// serialization failure, so it must not have effects outside tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the per-user critical section. A subscription returned by
// LockSubscription stays locked until the transaction ends.
type Tx interface {
	PlanReader

	// LockSubscription returns domain.ErrSubscriptionNotFound when the user
	// has no row yet.
	LockSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// CreateSubscription inserts sub unless a row for the user exists and
	// reports whether this call created it.
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (bool, error)

	SaveSubscription(ctx context.Context, sub *domain.Subscription) error
}

// AuditSink receives one entry per admission decision. Implementations must
// not block; returned errors are logged and discarded.
type AuditSink interface {
	Record(ctx context.Context, entry domain.RequestLog) error
}

// UsageReader aggregates the request log.
type UsageReader interface {
	CountRequestsByDay(ctx context.Context, userID uuid.UUID, loc *time.Location, since time.Time) ([]domain.DailyUsage, error)
}
