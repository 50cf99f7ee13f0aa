// Package handler contains HTTP handlers for the plantleads API.
//
// This file implements the entitlement endpoints the dashboard calls before
// doing metered work, plus the plan and usage read endpoints.
//
// Routes handled:
//   - POST /api/admission          -> Admit
//   - GET  /api/usage              -> Usage
//   - GET  /api/usage/history      -> UsageHistory
//   - POST /api/trial              -> StartTrial
//   - POST /api/plans/free         -> DowngradeToFree
//   - GET  /api/features/share     -> CanShare
//   - GET  /api/plans              -> ListPlans (public)
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DukeRupert/plantleads/internal/auth"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

// defaultHistoryDays is used when /api/usage/history has no days parameter.
const defaultHistoryDays = 7

// EntitlementHandler handles admission, usage and plan HTTP requests.
type EntitlementHandler struct {
	entitlements service.EntitlementService
	catalog      service.PlanCatalog
	activity     service.ActivityService
	lang         language.Tag
	logger       *slog.Logger
}

// NewEntitlementHandler creates a new EntitlementHandler. lang controls
// price formatting in plan listings.
func NewEntitlementHandler(
	entitlements service.EntitlementService,
	catalog service.PlanCatalog,
	activity service.ActivityService,
	lang language.Tag,
	logger *slog.Logger,
) *EntitlementHandler {
	return &EntitlementHandler{
		entitlements: entitlements,
		catalog:      catalog,
		activity:     activity,
		lang:         lang,
		logger:       logger,
	}
}

// RegisterRoutes registers entitlement routes on the provided mux.
// requireUser wraps every route that acts on the caller's subscription.
func (h *EntitlementHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/admission", requireUser(http.HandlerFunc(h.Admit)))
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Usage)))
	mux.Handle("GET /api/usage/history", requireUser(http.HandlerFunc(h.UsageHistory)))
	mux.Handle("POST /api/trial", requireUser(http.HandlerFunc(h.StartTrial)))
	mux.Handle("POST /api/plans/free", requireUser(http.HandlerFunc(h.DowngradeToFree)))
	mux.Handle("GET /api/features/share", requireUser(http.HandlerFunc(h.CanShare)))
	mux.HandleFunc("GET /api/plans", h.ListPlans)
}

// =============================================================================
// Request / Response Types
// =============================================================================

// AdmissionRequest is the body of POST /api/admission.
// FilterCount defaults to len(Filters) when omitted.
type AdmissionRequest struct {
	FilterCount *int              `json:"filter_count,omitempty"`
	WantsExport bool              `json:"wants_export"`
	Endpoint    string            `json:"endpoint"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// SubscriptionResponse is the JSON view of a subscription after a plan change.
type SubscriptionResponse struct {
	PlanName           domain.PlanName `json:"plan_name"`
	IsActive           bool            `json:"is_active"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            *time.Time      `json:"end_date,omitempty"`
	IsTrial            bool            `json:"is_trial"`
	TrialEndDate       *time.Time      `json:"trial_end_date,omitempty"`
	TrialDaysRemaining int             `json:"trial_days_remaining"`
	RequestsPerDay     int64           `json:"requests_per_day"`
	UnlimitedRequests  bool            `json:"unlimited_requests"`
}

// PlanResponse is one entry of GET /api/plans.
type PlanResponse struct {
	Name              domain.PlanName `json:"name"`
	DisplayName       string          `json:"display_name"`
	Description       string          `json:"description"`
	PriceCents        int64           `json:"price_cents"`
	PriceDisplay      string          `json:"price_display"`
	RequestsPerDay    int64           `json:"requests_per_day"`
	UnlimitedRequests bool            `json:"unlimited_requests"`
	MaxFilters        int64           `json:"max_filters"`
	UnlimitedFilters  bool            `json:"unlimited_filters"`
	CanExport         bool            `json:"can_export"`
	CanShare          bool            `json:"can_share"`
}

// =============================================================================
// Handlers
// =============================================================================

// Admit evaluates one metered request. Allowed and denied decisions are
// both answered with 200; the body carries the reason and limits.
func (h *EntitlementHandler) Admit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.admit"

	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	var body AdmissionRequest
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	filterCount := len(body.Filters)
	if body.FilterCount != nil {
		filterCount = *body.FilterCount
	}

	result, err := h.entitlements.Evaluate(r.Context(), domain.AdmissionRequest{
		UserID:      userID,
		FilterCount: filterCount,
		WantsExport: body.WantsExport,
		Endpoint:    body.Endpoint,
		Filters:     body.Filters,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Usage returns the caller's reconciled usage summary.
func (h *EntitlementHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.entitlements.GetUsageSummary(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// UsageHistory returns per-day request counts for the last N days.
func (h *EntitlementHandler) UsageHistory(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage_history"

	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "days must be a whole number"))
			return
		}
		days = n
	}

	history, err := h.activity.DailyUsage(r.Context(), userID, days)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": history})
}

// StartTrial starts the caller's one-time premium trial.
func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	sub, err := h.entitlements.StartTrial(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub, time.Now()))
}

// DowngradeToFree moves the caller back to the free plan.
func (h *EntitlementHandler) DowngradeToFree(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	sub, err := h.entitlements.DowngradeToFree(r.Context(), userID, service.DowngradeRequested)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub, time.Now()))
}

// CanShare reports whether the caller may share lead lists.
func (h *EntitlementHandler) CanShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	allowed, err := h.entitlements.CanShare(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"can_share": allowed})
}

// ListPlans returns the catalog with prices formatted for the configured locale.
func (h *EntitlementHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListPlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]PlanResponse, 0, len(plans))
	for i := range plans {
		resp = append(resp, h.toPlanResponse(&plans[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"plans": resp})
}

// =============================================================================
// Helpers
// =============================================================================

// requireUserID reads the caller's identity, writing a 401 if absent.
func requireUserID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromRequest(r)
	if !ok {
		UnauthorizedResponse(w, r, logger)
		return uuid.Nil, false
	}
	return userID, true
}

func (h *EntitlementHandler) toPlanResponse(p *domain.Plan) PlanResponse {
	return PlanResponse{
		Name:              p.Name,
		DisplayName:       p.DisplayName,
		Description:       p.Description,
		PriceCents:        p.PriceCents,
		PriceDisplay:      p.FormatPrice(h.lang),
		RequestsPerDay:    p.RequestsPerDay,
		UnlimitedRequests: p.HasUnlimitedRequests(),
		MaxFilters:        p.MaxFilters,
		UnlimitedFilters:  p.HasUnlimitedFilters(),
		CanExport:         p.CanExport,
		CanShare:          p.CanShare,
	}
}

func toSubscriptionResponse(sub *domain.Subscription, now time.Time) SubscriptionResponse {
	return SubscriptionResponse{
		PlanName:           sub.Plan.Name,
		IsActive:           sub.IsActive,
		StartDate:          sub.StartDate,
		EndDate:            sub.EndDate,
		IsTrial:            sub.IsTrial,
		TrialEndDate:       sub.TrialEndDate,
		TrialDaysRemaining: sub.TrialDaysRemainingAt(now),
		RequestsPerDay:     sub.Plan.RequestsPerDay,
		UnlimitedRequests:  sub.Plan.HasUnlimitedRequests(),
	}
}

// decodeJSON decodes a bounded JSON body. An empty body decodes to the zero value.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("request body must be valid JSON")
	}
	return nil
}
