// Package billing provides the Stripe integration that confirms payment for
// paid plans. The entitlement core never talks to Stripe; the webhook handler
// translates confirmed events into plan changes.
package billing

import (
	"errors"
	"fmt"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys attached to checkout sessions and the subscriptions they create.
const (
	MetadataUserID   = "user_id"
	MetadataPlanName = "plan_name"
)

// ErrNoPrice is returned when a plan has no Stripe price configured.
var ErrNoPrice = errors.New("no stripe price configured for plan")

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session subscribing the
	// user to plan. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(userID uuid.UUID, email string, plan domain.PlanName, successURL, cancelURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan a Stripe price ID sells, or "" if unknown.
	PlanForPriceID(priceID string) domain.PlanName
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	BasicPriceID   string
	PremiumPriceID string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	planToPrice   map[domain.PlanName]string
	priceToPlan   map[string]domain.PlanName
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey
	return newStripeService(webhookSecret, prices)
}

func newStripeService(webhookSecret string, prices PriceConfig) *stripeService {
	s := &stripeService{
		webhookSecret: webhookSecret,
		planToPrice:   make(map[domain.PlanName]string),
		priceToPlan:   make(map[string]domain.PlanName),
	}
	for plan, priceID := range map[domain.PlanName]string{
		domain.PlanBasic:   prices.BasicPriceID,
		domain.PlanPremium: prices.PremiumPriceID,
	} {
		if priceID == "" {
			continue
		}
		s.planToPrice[plan] = priceID
		s.priceToPlan[priceID] = plan
	}
	return s
}

func (s *stripeService) CreateCheckoutSession(userID uuid.UUID, email string, plan domain.PlanName, successURL, cancelURL string) (string, error) {
	priceID, ok := s.planToPrice[plan]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoPrice, plan)
	}

	metadata := CheckoutMetadata(userID, plan)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) domain.PlanName {
	return s.priceToPlan[priceID]
}

// CheckoutMetadata returns the metadata identifying who bought which plan.
func CheckoutMetadata(userID uuid.UUID, plan domain.PlanName) map[string]string {
	return map[string]string{
		MetadataUserID:   userID.String(),
		MetadataPlanName: string(plan),
	}
}

// ParseMetadata reads the subscriber back from checkout or subscription
// metadata. The plan is "" when the key is absent.
func ParseMetadata(metadata map[string]string) (uuid.UUID, domain.PlanName, error) {
	raw, ok := metadata[MetadataUserID]
	if !ok {
		return uuid.Nil, "", fmt.Errorf("metadata has no %s", MetadataUserID)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("metadata %s: %w", MetadataUserID, err)
	}

	plan := domain.PlanName(metadata[MetadataPlanName])
	if plan != "" && !plan.Valid() {
		return uuid.Nil, "", fmt.Errorf("metadata %s: unknown plan %q", MetadataPlanName, plan)
	}
	return userID, plan, nil
}
