package repository

import (
	"context"
)

const getPlanByName = `-- name: GetPlanByName :one
SELECT name, display_name, description, price_cents, requests_per_day, max_filters,
       can_export, can_share, created_at, updated_at
FROM plans
WHERE name = $1
`

func (q *Queries) GetPlanByName(ctx context.Context, name string) (Plan, error) {
	row := q.db.QueryRowContext(ctx, getPlanByName, name)
	var i Plan
	err := row.Scan(
		&i.Name,
		&i.DisplayName,
		&i.Description,
		&i.PriceCents,
		&i.RequestsPerDay,
		&i.MaxFilters,
		&i.CanExport,
		&i.CanShare,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listPlans = `-- name: ListPlans :many
SELECT name, display_name, description, price_cents, requests_per_day, max_filters,
       can_export, can_share, created_at, updated_at
FROM plans
ORDER BY price_cents, name
`

func (q *Queries) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := q.db.QueryContext(ctx, listPlans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Plan
	for rows.Next() {
		var i Plan
		if err := rows.Scan(
			&i.Name,
			&i.DisplayName,
			&i.Description,
			&i.PriceCents,
			&i.RequestsPerDay,
			&i.MaxFilters,
			&i.CanExport,
			&i.CanShare,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPlan = `-- name: UpsertPlan :one
INSERT INTO plans (name, display_name, description, price_cents, requests_per_day, max_filters, can_export, can_share)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name) DO UPDATE SET
    display_name     = EXCLUDED.display_name,
    description      = EXCLUDED.description,
    price_cents      = EXCLUDED.price_cents,
    requests_per_day = EXCLUDED.requests_per_day,
    max_filters      = EXCLUDED.max_filters,
    can_export       = EXCLUDED.can_export,
    can_share        = EXCLUDED.can_share,
    updated_at       = NOW()
RETURNING name, display_name, description, price_cents, requests_per_day, max_filters,
          can_export, can_share, created_at, updated_at
`

type UpsertPlanParams struct {
	Name           string
	DisplayName    string
	Description    string
	PriceCents     int64
	RequestsPerDay int64
	MaxFilters     int64
	CanExport      bool
	CanShare       bool
}

func (q *Queries) UpsertPlan(ctx context.Context, arg UpsertPlanParams) (Plan, error) {
	row := q.db.QueryRowContext(ctx, upsertPlan,
		arg.Name,
		arg.DisplayName,
		arg.Description,
		arg.PriceCents,
		arg.RequestsPerDay,
		arg.MaxFilters,
		arg.CanExport,
		arg.CanShare,
	)
	var i Plan
	err := row.Scan(
		&i.Name,
		&i.DisplayName,
		&i.Description,
		&i.PriceCents,
		&i.RequestsPerDay,
		&i.MaxFilters,
		&i.CanExport,
		&i.CanShare,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
