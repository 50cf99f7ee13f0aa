// Package handler contains HTTP handlers for the plantleads API.
//
// This file implements the Stripe webhook handler that turns confirmed
// billing events into plan changes.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no identity middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/plantleads/internal/billing"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// maxWebhookBody matches Stripe's documented payload ceiling for our events.
const maxWebhookBody = 65536

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing      billing.Service
	entitlements service.EntitlementService
	logger       *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, entitlements service.EntitlementService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:      billingService,
		entitlements: entitlements,
		logger:       logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC: no identity middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
//
// Events that cannot be attributed to a user are acknowledged and logged.
// Persistence failures answer 500 so Stripe redelivers the event.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx := context.WithoutCancel(r.Context())
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		err = h.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	if err != nil {
		h.logger.Error("failed to apply webhook event", "type", event.Type, "id", event.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return nil
	}

	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		h.logger.Info("checkout completed without payment, waiting for confirmation", "session_id", session.ID)
		return nil
	}

	userID, plan, err := billing.ParseMetadata(session.Metadata)
	if err != nil || !plan.IsPaid() {
		h.logger.Warn("checkout session has no usable metadata", "session_id", session.ID, "error", err)
		return nil
	}

	return h.applyPlan(ctx, userID, plan, "checkout")
}

func (h *WebhookHandler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return nil
	}

	userID, plan, err := billing.ParseMetadata(sub.Metadata)
	if err != nil {
		h.logger.Warn("subscription has no usable metadata", "subscription_id", sub.ID, "error", err)
		return nil
	}

	switch sub.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		return h.downgrade(ctx, userID, sub.ID, string(sub.Status))
	case stripe.SubscriptionStatusActive:
		// A plan switch in the customer portal changes the price, not the metadata.
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			if byPrice := h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID); byPrice != "" {
				plan = byPrice
			}
		}
		if !plan.IsPaid() {
			return nil
		}
		return h.applyPlan(ctx, userID, plan, "subscription_updated")
	default:
		h.logger.Debug("ignoring subscription status", "subscription_id", sub.ID, "status", sub.Status)
		return nil
	}
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return nil
	}

	userID, _, err := billing.ParseMetadata(sub.Metadata)
	if err != nil {
		h.logger.Warn("deleted subscription has no usable metadata", "subscription_id", sub.ID, "error", err)
		return nil
	}

	return h.downgrade(ctx, userID, sub.ID, "deleted")
}

// applyPlan upgrades the user unless they are already on plan outside a
// trial. Stripe redelivers events, and a repeated upgrade would reset the
// day's counter.
func (h *WebhookHandler) applyPlan(ctx context.Context, userID uuid.UUID, plan domain.PlanName, source string) error {
	summary, err := h.entitlements.GetUsageSummary(ctx, userID)
	if err != nil {
		return fmt.Errorf("load usage for %s: %w", userID, err)
	}
	if summary.PlanName == plan && !summary.IsTrialActive {
		h.logger.Debug("plan already applied", "user_id", userID, "plan", plan, "source", source)
		return nil
	}

	if _, err := h.entitlements.UpgradePlan(ctx, userID, plan); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			h.logger.Error("paid plan is not seeded", "plan", plan, "error", err)
			return nil
		}
		return err
	}

	h.logger.Info("plan applied from billing", "user_id", userID, "plan", plan, "source", source)
	return nil
}

func (h *WebhookHandler) downgrade(ctx context.Context, userID uuid.UUID, subscriptionID, status string) error {
	if _, err := h.entitlements.DowngradeToFree(ctx, userID, service.DowngradeCanceled); err != nil {
		return err
	}
	h.logger.Info("subscription ended", "user_id", userID, "subscription_id", subscriptionID, "status", status)
	return nil
}
