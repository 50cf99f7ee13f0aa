// Package domain contains core business types and interfaces.
//
// This file defines the admission request/decision types exchanged between
// the entitlement core and its web-layer callers, plus the usage read models.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DenialReason identifies which gate rejected a request.
type DenialReason string

const (
	DenialNone               DenialReason = ""
	DenialExportNotAllowed   DenialReason = "export_not_allowed"
	DenialDailyLimitExceeded DenialReason = "daily_limit_exceeded"
	DenialTooManyFilters     DenialReason = "too_many_filters"
)

// AdmissionRequest describes one metered dashboard operation.
// Endpoint and Filters are only forwarded to the request log.
type AdmissionRequest struct {
	UserID      uuid.UUID
	FilterCount int
	WantsExport bool
	Endpoint    string
	Filters     map[string]string
}

// AdmissionResult is the decision returned for an AdmissionRequest. Denials
// carry the numeric limits so the caller can render an actionable message.
type AdmissionResult struct {
	Allowed            bool         `json:"allowed"`
	Reason             DenialReason `json:"reason,omitempty"`
	RemainingRequests  int64        `json:"remaining_requests"`
	RequestsPerDay     int64        `json:"requests_per_day"`
	RequestsUsedToday  int64        `json:"requests_used_today"`
	MaxFilters         int64        `json:"max_filters"`
	FilterCount        int          `json:"filter_count"`
	PlanName           PlanName     `json:"plan_name"`
	IsTrialActive      bool         `json:"is_trial_active"`
	TrialDaysRemaining int          `json:"trial_days_remaining"`
}

// Denied reports whether the request was rejected by a gate.
func (r *AdmissionResult) Denied() bool {
	return !r.Allowed && r.Reason != DenialNone
}

// UsageSummary is the read model behind the usage page.
type UsageSummary struct {
	PlanName           PlanName   `json:"plan_name"`
	PlanDisplayName    string     `json:"plan_display_name"`
	RequestsUsedToday  int64      `json:"requests_used_today"`
	RequestsPerDay     int64      `json:"requests_per_day"`
	RemainingRequests  int64      `json:"remaining_requests"`
	UsagePercent       float64    `json:"usage_percent"`
	MaxFilters         int64      `json:"max_filters"`
	CanExport          bool       `json:"can_export"`
	CanShare           bool       `json:"can_share"`
	IsTrialActive      bool       `json:"is_trial_active"`
	TrialDaysRemaining int        `json:"trial_days_remaining"`
	HasUsedTrial       bool       `json:"has_used_trial"`
	EndDate            *time.Time `json:"end_date,omitempty"`
}

// RequestLog is one append-only audit entry written after an admission decision.
type RequestLog struct {
	UserID       uuid.UUID
	Endpoint     string
	Filters      json.RawMessage
	Timestamp    time.Time
	Success      bool
	ErrorMessage string
}

// DailyUsage is the number of logged requests on one calendar day.
type DailyUsage struct {
	Day      time.Time `json:"day"`
	Requests int64     `json:"requests"`
}
