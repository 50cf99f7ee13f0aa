package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func scrape(mw *MetricsAuthMiddleware, prepare func(r *http.Request)) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte("metrics data"))
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	mw.Handler(handler).ServeHTTP(rec, req)
	return rec, called
}

func TestMetricsAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123", newTestLogger())

	rec, called := scrape(mw, func(r *http.Request) { r.SetBasicAuth("admin", "secret123") })

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics data", rec.Body.String())
}

func TestMetricsAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123", newTestLogger())

	tests := []struct {
		name    string
		prepare func(r *http.Request)
	}{
		{"no credentials", nil},
		{"wrong username", func(r *http.Request) { r.SetBasicAuth("root", "secret123") }},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") }},
		{"both wrong", func(r *http.Request) { r.SetBasicAuth("root", "wrong") }},
		{"empty credentials", func(r *http.Request) { r.SetBasicAuth("", "") }},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Basic not-base64!") }},
		{"bearer scheme", func(r *http.Request) { r.Header.Set("Authorization", "Bearer admin:secret123") }},
		{"header injection", func(r *http.Request) {
			malicious := base64.StdEncoding.EncodeToString([]byte("admin:secret123\r\nX-Injected: header"))
			r.Header.Set("Authorization", "Basic "+malicious)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := scrape(mw, tt.prepare)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, `Basic realm="plantleads metrics"`, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("", "", newTestLogger())

	rec, called := scrape(mw, nil)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
