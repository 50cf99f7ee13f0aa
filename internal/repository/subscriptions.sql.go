package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const getSubscriptionForUpdate = `-- name: GetSubscriptionForUpdate :one
SELECT s.user_id, s.plan_name, s.is_active, s.start_date, s.end_date, s.is_trial,
       s.trial_end_date, s.trial_used_at, s.requests_used_today, s.last_request_date,
       s.created_at, s.updated_at,
       p.name, p.display_name, p.description, p.price_cents, p.requests_per_day,
       p.max_filters, p.can_export, p.can_share, p.created_at, p.updated_at
FROM subscriptions s
JOIN plans p ON p.name = s.plan_name
WHERE s.user_id = $1
FOR UPDATE OF s
`

type GetSubscriptionForUpdateRow struct {
	Subscription Subscription
	Plan         Plan
}

// GetSubscriptionForUpdate locks the user's row until the surrounding
// transaction ends. Must be called on a Queries bound to a *sql.Tx.
func (q *Queries) GetSubscriptionForUpdate(ctx context.Context, userID uuid.UUID) (GetSubscriptionForUpdateRow, error) {
	row := q.db.QueryRowContext(ctx, getSubscriptionForUpdate, userID)
	var i GetSubscriptionForUpdateRow
	err := row.Scan(
		&i.Subscription.UserID,
		&i.Subscription.PlanName,
		&i.Subscription.IsActive,
		&i.Subscription.StartDate,
		&i.Subscription.EndDate,
		&i.Subscription.IsTrial,
		&i.Subscription.TrialEndDate,
		&i.Subscription.TrialUsedAt,
		&i.Subscription.RequestsUsedToday,
		&i.Subscription.LastRequestDate,
		&i.Subscription.CreatedAt,
		&i.Subscription.UpdatedAt,
		&i.Plan.Name,
		&i.Plan.DisplayName,
		&i.Plan.Description,
		&i.Plan.PriceCents,
		&i.Plan.RequestsPerDay,
		&i.Plan.MaxFilters,
		&i.Plan.CanExport,
		&i.Plan.CanShare,
		&i.Plan.CreatedAt,
		&i.Plan.UpdatedAt,
	)
	return i, err
}

const insertSubscription = `-- name: InsertSubscription :execrows
INSERT INTO subscriptions (user_id, plan_name, is_active, start_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO NOTHING
`

type InsertSubscriptionParams struct {
	UserID    uuid.UUID
	PlanName  string
	IsActive  bool
	StartDate time.Time
}

// InsertSubscription returns 0 rows affected when another transaction
// created the row first.
func (q *Queries) InsertSubscription(ctx context.Context, arg InsertSubscriptionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertSubscription,
		arg.UserID,
		arg.PlanName,
		arg.IsActive,
		arg.StartDate,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSubscription = `-- name: UpdateSubscription :execrows
UPDATE subscriptions
SET plan_name           = $2,
    is_active           = $3,
    start_date          = $4,
    end_date            = $5,
    is_trial            = $6,
    trial_end_date      = $7,
    trial_used_at       = $8,
    requests_used_today = $9,
    last_request_date   = $10,
    updated_at          = NOW()
WHERE user_id = $1
`

type UpdateSubscriptionParams struct {
	UserID            uuid.UUID
	PlanName          string
	IsActive          bool
	StartDate         time.Time
	EndDate           sql.NullTime
	IsTrial           bool
	TrialEndDate      sql.NullTime
	TrialUsedAt       sql.NullTime
	RequestsUsedToday int64
	LastRequestDate   sql.NullTime
}

func (q *Queries) UpdateSubscription(ctx context.Context, arg UpdateSubscriptionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSubscription,
		arg.UserID,
		arg.PlanName,
		arg.IsActive,
		arg.StartDate,
		arg.EndDate,
		arg.IsTrial,
		arg.TrialEndDate,
		arg.TrialUsedAt,
		arg.RequestsUsedToday,
		arg.LastRequestDate,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
