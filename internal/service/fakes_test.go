package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// In-memory Store
// =============================================================================

// memStore mimics the row-lock semantics of the Postgres store: a
// transaction that touches a user's subscription holds that user's lock
// until it ends, and writes become visible only on commit.
type memStore struct {
	mu      sync.Mutex
	plans   map[domain.PlanName]domain.Plan
	subs    map[uuid.UUID]domain.Subscription
	rows    map[uuid.UUID]*sync.Mutex
	inserts int

	saveErr error
	lockErr error
}

func newMemStore(plans ...domain.Plan) *memStore {
	s := &memStore{
		plans: make(map[domain.PlanName]domain.Plan),
		subs:  make(map[uuid.UUID]domain.Subscription),
		rows:  make(map[uuid.UUID]*sync.Mutex),
	}
	for _, p := range plans {
		s.plans[p.Name] = p
	}
	return s
}

func (s *memStore) GetPlan(_ context.Context, name domain.PlanName) (*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[name]
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	return &p, nil
}

func (s *memStore) ListPlans(_ context.Context) ([]domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plans := make([]domain.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].PriceCents < plans[j].PriceCents })
	return plans, nil
}

func (s *memStore) UpsertPlan(_ context.Context, plan domain.Plan) (*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.Name] = plan
	return &plan, nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:   s,
		held:    make(map[uuid.UUID]*sync.Mutex),
		pending: make(map[uuid.UUID]domain.Subscription),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	for id, sub := range tx.pending {
		s.subs[id] = sub
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) rowLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		m = &sync.Mutex{}
		s.rows[id] = m
	}
	return m
}

func (s *memStore) put(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = sub
}

func (s *memStore) get(id uuid.UUID) (domain.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type memTx struct {
	store   *memStore
	held    map[uuid.UUID]*sync.Mutex
	pending map[uuid.UUID]domain.Subscription
}

func (t *memTx) lock(id uuid.UUID) {
	if _, ok := t.held[id]; ok {
		return
	}
	m := t.store.rowLock(id)
	m.Lock()
	t.held[id] = m
}

func (t *memTx) release() {
	for _, m := range t.held {
		m.Unlock()
	}
}

func (t *memTx) GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	return t.store.GetPlan(ctx, name)
}

func (t *memTx) LockSubscription(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	if t.store.lockErr != nil {
		return nil, t.store.lockErr
	}
	t.lock(userID)

	if sub, ok := t.pending[userID]; ok {
		return &sub, nil
	}
	sub, ok := t.store.get(userID)
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (t *memTx) CreateSubscription(_ context.Context, sub *domain.Subscription) (bool, error) {
	t.lock(sub.UserID)

	if _, ok := t.pending[sub.UserID]; ok {
		return false, nil
	}
	t.store.mu.Lock()
	_, exists := t.store.subs[sub.UserID]
	if !exists {
		t.store.inserts++
	}
	t.store.mu.Unlock()
	if exists {
		return false, nil
	}

	t.pending[sub.UserID] = *sub
	return true, nil
}

func (t *memTx) SaveSubscription(_ context.Context, sub *domain.Subscription) error {
	if t.store.saveErr != nil {
		return t.store.saveErr
	}
	t.pending[sub.UserID] = *sub
	return nil
}

// =============================================================================
// Audit Sinks
// =============================================================================

type memAudit struct {
	mu      sync.Mutex
	entries []domain.RequestLog
}

func (a *memAudit) Record(_ context.Context, entry domain.RequestLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memAudit) all() []domain.RequestLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.RequestLog(nil), a.entries...)
}

type panickingAudit struct{}

func (panickingAudit) Record(context.Context, domain.RequestLog) error {
	panic("audit backend exploded")
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, domain.RequestLog) error {
	return errors.New("buffer full")
}

// =============================================================================
// Fixture
// =============================================================================

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var baseTime = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memStore
	clock  *testClock
	audit  *memAudit
	ledger *QuotaLedger
	trials *TrialLifecycle
	svc    EntitlementService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(plans ...domain.Plan) *fixture {
	if len(plans) == 0 {
		plans = domain.DefaultPlans()
	}
	f := &fixture{
		store: newMemStore(plans...),
		clock: &testClock{t: baseTime},
		audit: &memAudit{},
	}
	f.ledger = NewQuotaLedger(time.UTC, f.clock.Now)
	f.trials = NewTrialLifecycle(DefaultTrialDuration, f.clock.Now)
	f.svc = NewEntitlementService(f.store, f.ledger, f.trials, f.audit, discardLogger())
	return f
}

func planByName(name domain.PlanName) domain.Plan {
	for _, p := range domain.DefaultPlans() {
		if p.Name == name {
			return p
		}
	}
	panic("unknown plan " + string(name))
}

func ptr[T any](v T) *T {
	return &v
}
