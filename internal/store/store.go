// Package store implements the service persistence interfaces on Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/metrics"
	"github.com/DukeRupert/plantleads/internal/repository"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeForeignKeyViolation  = "23503"
)

// DefaultMaxAttempts is used when New is given a non-positive attempt count.
const DefaultMaxAttempts = 3

// Store is the Postgres implementation of service.Store.
type Store struct {
	db          *sql.DB
	queries     *repository.Queries
	maxAttempts int
	logger      *slog.Logger
}

// New creates a Store. maxAttempts bounds how often a transaction is run
// when Postgres reports a serialization failure or deadlock.
func New(db *sql.DB, maxAttempts int, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{
		db:          db,
		queries:     repository.New(db),
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

var _ service.Store = (*Store)(nil)

func (s *Store) GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	return getPlan(ctx, s.queries, name)
}

func (s *Store) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.queries.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	plans := make([]domain.Plan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, planFromRow(row))
	}
	return plans, nil
}

func (s *Store) UpsertPlan(ctx context.Context, plan domain.Plan) (*domain.Plan, error) {
	row, err := s.queries.UpsertPlan(ctx, repository.UpsertPlanParams{
		Name:           string(plan.Name),
		DisplayName:    plan.DisplayName,
		Description:    plan.Description,
		PriceCents:     plan.PriceCents,
		RequestsPerDay: plan.RequestsPerDay,
		MaxFilters:     plan.MaxFilters,
		CanExport:      plan.CanExport,
		CanShare:       plan.CanShare,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert plan %s: %w", plan.Name, err)
	}
	p := planFromRow(row)
	return &p, nil
}

// InTx runs fn in a read-committed transaction, retrying the whole
// transaction on serialization failures and deadlocks.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt < s.maxAttempts {
			metrics.TxRetriesTotal.Inc()
			s.logger.Warn("Retrying transaction",
				"attempt", attempt,
				"max_attempts", s.maxAttempts,
				"error", err,
			)
			if waitErr := backoff(ctx, attempt); waitErr != nil {
				return waitErr
			}
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx service.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{queries: s.queries.WithTx(sqlTx)}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountRequestsByDay implements service.UsageReader.
func (s *Store) CountRequestsByDay(ctx context.Context, userID uuid.UUID, loc *time.Location, since time.Time) ([]domain.DailyUsage, error) {
	rows, err := s.queries.CountRequestsByDay(ctx, repository.CountRequestsByDayParams{
		UserID:   userID,
		Timezone: loc.String(),
		Since:    since,
	})
	if err != nil {
		return nil, fmt.Errorf("count requests by day: %w", err)
	}
	usage := make([]domain.DailyUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, domain.DailyUsage{
			Day:      domain.CivilDay(row.Day, time.UTC),
			Requests: row.Requests,
		})
	}
	return usage, nil
}

// InsertRequestLog appends one entry to the request log.
func (s *Store) InsertRequestLog(ctx context.Context, entry domain.RequestLog) error {
	err := s.queries.InsertRequestLog(ctx, repository.InsertRequestLogParams{
		UserID:       entry.UserID,
		Endpoint:     entry.Endpoint,
		Filters:      pqtype.NullRawMessage{RawMessage: entry.Filters, Valid: len(entry.Filters) > 0},
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// =============================================================================
// Transaction
// =============================================================================

type tx struct {
	queries *repository.Queries
}

func (t *tx) GetPlan(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	return getPlan(ctx, t.queries, name)
}

func (t *tx) LockSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	row, err := t.queries.GetSubscriptionForUpdate(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	return subscriptionFromRow(row.Subscription, planFromRow(row.Plan)), nil
}

func (t *tx) CreateSubscription(ctx context.Context, sub *domain.Subscription) (bool, error) {
	n, err := t.queries.InsertSubscription(ctx, repository.InsertSubscriptionParams{
		UserID:    sub.UserID,
		PlanName:  string(sub.Plan.Name),
		IsActive:  sub.IsActive,
		StartDate: sub.StartDate,
	})
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", classify(err))
	}
	return n == 1, nil
}

func (t *tx) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	n, err := t.queries.UpdateSubscription(ctx, repository.UpdateSubscriptionParams{
		UserID:            sub.UserID,
		PlanName:          string(sub.Plan.Name),
		IsActive:          sub.IsActive,
		StartDate:         sub.StartDate,
		EndDate:           nullTime(sub.EndDate),
		IsTrial:           sub.IsTrial,
		TrialEndDate:      nullTime(sub.TrialEndDate),
		TrialUsedAt:       nullTime(sub.TrialUsedAt),
		RequestsUsedToday: sub.RequestsUsedToday,
		LastRequestDate:   nullTime(sub.LastRequestDate),
	})
	if err != nil {
		return fmt.Errorf("update subscription: %w", classify(err))
	}
	if n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func getPlan(ctx context.Context, q *repository.Queries, name domain.PlanName) (*domain.Plan, error) {
	row, err := q.GetPlanByName(ctx, string(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownPlan
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", name, err)
	}
	p := planFromRow(row)
	return &p, nil
}

// classify maps constraint violations onto domain sentinels. Anything else,
// including retryable errors, is returned unchanged.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPlan, pgErr.ConstraintName)
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * 10 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func planFromRow(row repository.Plan) domain.Plan {
	return domain.Plan{
		Name:           domain.PlanName(row.Name),
		DisplayName:    row.DisplayName,
		Description:    row.Description,
		PriceCents:     row.PriceCents,
		RequestsPerDay: row.RequestsPerDay,
		MaxFilters:     row.MaxFilters,
		CanExport:      row.CanExport,
		CanShare:       row.CanShare,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func subscriptionFromRow(row repository.Subscription, plan domain.Plan) *domain.Subscription {
	sub := &domain.Subscription{
		UserID:            row.UserID,
		Plan:              plan,
		IsActive:          row.IsActive,
		StartDate:         row.StartDate,
		EndDate:           timePtr(row.EndDate),
		IsTrial:           row.IsTrial,
		TrialEndDate:      timePtr(row.TrialEndDate),
		TrialUsedAt:       timePtr(row.TrialUsedAt),
		RequestsUsedToday: row.RequestsUsedToday,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.LastRequestDate.Valid {
		day := domain.CivilDay(row.LastRequestDate.Time, time.UTC)
		sub.LastRequestDate = &day
	}
	return sub
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
