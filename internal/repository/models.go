package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Plan struct {
	Name           string
	DisplayName    string
	Description    string
	PriceCents     int64
	RequestsPerDay int64
	MaxFilters     int64
	CanExport      bool
	CanShare       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type RequestLog struct {
	ID           int64
	UserID       uuid.UUID
	Endpoint     string
	Filters      pqtype.NullRawMessage
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

type Subscription struct {
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
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
