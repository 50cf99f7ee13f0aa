package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// MetricsAuthMiddleware protects the Prometheus scrape endpoint with basic auth.
type MetricsAuthMiddleware struct {
	username []byte
	password []byte
	enabled  bool
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// If both username and password are empty, authentication is disabled and a
// warning is logged once.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	enabled := username != "" || password != ""
	if !enabled && logger != nil {
		logger.Warn("metrics endpoint is unauthenticated; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	return &MetricsAuthMiddleware{
		username: []byte(username),
		password: []byte(password),
		enabled:  enabled,
	}
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !m.matches(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="plantleads metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// matches compares both fields in constant time; both are always evaluated.
func (m *MetricsAuthMiddleware) matches(user, pass string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(user), m.username)
	passMatch := subtle.ConstantTimeCompare([]byte(pass), m.password)
	return userMatch&passMatch == 1
}
