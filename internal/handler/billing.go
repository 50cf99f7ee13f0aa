// Package handler contains HTTP handlers for the plantleads API.
//
// This file implements the Stripe checkout handler for paid plans.
//
// Routes handled:
//   - POST /api/billing/checkout/{plan} -> CreateCheckout
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/plantleads/internal/billing"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/service"
)

// BillingHandler starts Stripe checkouts. The plan change itself happens
// when the webhook confirms payment.
type BillingHandler struct {
	billing billing.Service
	catalog service.PlanCatalog
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, catalog service.PlanCatalog, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		catalog: catalog,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout/{plan}", requireUser(http.HandlerFunc(h.CreateCheckout)))
}

// checkoutRequest is the optional body of a checkout call.
type checkoutRequest struct {
	Email string `json:"email"`
}

// CreateCheckout creates a Stripe Checkout session and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.create_checkout"

	if h.billing == nil {
		h.logger.Warn("checkout attempted but Stripe is not configured")
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not enabled"))
		return
	}

	userID, ok := requireUserID(w, r, h.logger)
	if !ok {
		return
	}

	name := domain.PlanName(r.PathValue("plan"))
	if name.Valid() && !name.IsPaid() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "only paid plans can be purchased"))
		return
	}
	plan, err := h.catalog.GetPlan(r.Context(), name)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body checkoutRequest
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	successURL := h.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := h.baseURL + "/billing/canceled"

	url, err := h.billing.CreateCheckoutSession(userID, body.Email, plan.Name, successURL, cancelURL)
	if err != nil {
		if errors.Is(err, billing.ErrNoPrice) {
			ErrorResponse(w, r, h.logger, domain.Configuration(err, op, "plan has no Stripe price"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create checkout session"))
		return
	}

	h.logger.Info("checkout session created", "user_id", userID, "plan", plan.Name)
	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}
