package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func TestPlanForPriceID(t *testing.T) {
	s := newStripeService(testWebhookSecret, PriceConfig{
		BasicPriceID:   "price_basic",
		PremiumPriceID: "price_premium",
	})

	assert.Equal(t, domain.PlanBasic, s.PlanForPriceID("price_basic"))
	assert.Equal(t, domain.PlanPremium, s.PlanForPriceID("price_premium"))
	assert.Equal(t, domain.PlanName(""), s.PlanForPriceID("price_other"))
	assert.Equal(t, domain.PlanName(""), s.PlanForPriceID(""))
}

func TestCreateCheckoutSession_RejectsPlanWithoutPrice(t *testing.T) {
	s := newStripeService(testWebhookSecret, PriceConfig{BasicPriceID: "price_basic"})

	for _, plan := range []domain.PlanName{domain.PlanPremium, domain.PlanFree} {
		_, err := s.CreateCheckoutSession(uuid.New(), "", plan, "https://x/ok", "https://x/cancel")
		assert.ErrorIs(t, err, ErrNoPrice, plan)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	userID := uuid.New()

	gotUser, gotPlan, err := ParseMetadata(CheckoutMetadata(userID, domain.PlanPremium))

	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, domain.PlanPremium, gotPlan)
}

func TestParseMetadata_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing user": {MetadataPlanName: "basic"},
		"bad user":     {MetadataUserID: "nope"},
		"unknown plan": {MetadataUserID: uuid.NewString(), MetadataPlanName: "gold"},
	}
	for name, md := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseMetadata(md)
			assert.Error(t, err)
		})
	}

	_, plan, err := ParseMetadata(map[string]string{MetadataUserID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanName(""), plan)
}

func signedEvent(t *testing.T, secret string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        "customer.subscription.deleted",
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": map[string]any{"id": "sub_test", "object": "subscription"}},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestVerifyWebhookSignature(t *testing.T) {
	s := newStripeService(testWebhookSecret, PriceConfig{})

	payload, header := signedEvent(t, testWebhookSecret)
	event, err := s.VerifyWebhookSignature(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_test", event.ID)
	assert.Equal(t, stripe.EventType("customer.subscription.deleted"), event.Type)

	payload, header = signedEvent(t, "whsec_someone_else")
	_, err = s.VerifyWebhookSignature(payload, header)
	assert.Error(t, err)

	_, err = s.VerifyWebhookSignature(payload, "")
	assert.Error(t, err)
}
