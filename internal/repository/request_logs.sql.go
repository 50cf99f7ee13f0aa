package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertRequestLog = `-- name: InsertRequestLog :exec
INSERT INTO request_logs (user_id, endpoint, filters, success, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

type InsertRequestLogParams struct {
	UserID       uuid.UUID
	Endpoint     string
	Filters      pqtype.NullRawMessage
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

func (q *Queries) InsertRequestLog(ctx context.Context, arg InsertRequestLogParams) error {
	_, err := q.db.ExecContext(ctx, insertRequestLog,
		arg.UserID,
		arg.Endpoint,
		arg.Filters,
		arg.Success,
		arg.ErrorMessage,
		arg.CreatedAt,
	)
	return err
}

const countRequestsByDay = `-- name: CountRequestsByDay :many
SELECT (created_at AT TIME ZONE $2::text)::date AS day, COUNT(*) AS requests
FROM request_logs
WHERE user_id = $1
  AND success
  AND created_at >= $3
GROUP BY day
ORDER BY day
`

type CountRequestsByDayParams struct {
	UserID   uuid.UUID
	Timezone string
	Since    time.Time
}

type CountRequestsByDayRow struct {
	Day      time.Time
	Requests int64
}

// CountRequestsByDay groups admitted requests by calendar day in the given zone.
func (q *Queries) CountRequestsByDay(ctx context.Context, arg CountRequestsByDayParams) ([]CountRequestsByDayRow, error) {
	rows, err := q.db.QueryContext(ctx, countRequestsByDay, arg.UserID, arg.Timezone, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountRequestsByDayRow
	for rows.Next() {
		var i CountRequestsByDayRow
		if err := rows.Scan(&i.Day, &i.Requests); err != nil {
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
