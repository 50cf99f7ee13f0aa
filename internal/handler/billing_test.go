package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/plantleads/internal/billing"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serveCheckout(h *BillingHandler, plan, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, passThrough)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newRequest("POST", "/api/billing/checkout/"+plan, body, userID))
	return rec
}

func TestCreateCheckout_ReturnsURL(t *testing.T) {
	fb := &fakeBilling{checkoutURL: "https://checkout.stripe.com/c/pay/cs_test"}
	h := NewBillingHandler(fb, &fakeCatalog{plans: testPlans()}, "https://app.example/", discardLogger())

	rec := serveCheckout(h, "premium", `{"email":"owner@example.com"}`, uuid.New())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cs_test")
	assert.Equal(t, domain.PlanPremium, fb.checkoutPlan)
	assert.Equal(t, "owner@example.com", fb.checkoutMail)
}

func TestCreateCheckout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		billing billing.Service
		plan    string
		want    int
	}{
		{"billing disabled", nil, "basic", http.StatusNotImplemented},
		{"free plan", &fakeBilling{}, "free", http.StatusBadRequest},
		{"unknown plan", &fakeBilling{}, "gold", http.StatusNotFound},
		{"no price configured", &fakeBilling{checkoutErr: fmt.Errorf("%w: basic", billing.ErrNoPrice)}, "basic", http.StatusInternalServerError},
		{"stripe failure", &fakeBilling{checkoutErr: errors.New("card_declined")}, "basic", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBillingHandler(tt.billing, &fakeCatalog{plans: testPlans()}, "https://app.example", discardLogger())

			rec := serveCheckout(h, tt.plan, "", uuid.New())

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCreateCheckout_RequiresIdentity(t *testing.T) {
	h := NewBillingHandler(&fakeBilling{}, &fakeCatalog{plans: testPlans()}, "https://app.example", discardLogger())

	rec := serveCheckout(h, "basic", "", uuid.Nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
