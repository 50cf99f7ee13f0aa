// Package middleware contains HTTP middleware for the plantleads API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/plantleads/internal/auth"
	"github.com/DukeRupert/plantleads/internal/handler"
	"github.com/google/uuid"
)

// DefaultUserIDHeader is the header the upstream auth layer forwards the
// authenticated user's ID in.
const DefaultUserIDHeader = "X-User-ID"

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityMiddleware attaches the caller's identity to the request context.
//
// Authentication itself happens in front of this service (gateway or session
// layer). This middleware only trusts and parses the forwarded user ID, so it
// must never be exposed without that layer in front of it.
type IdentityMiddleware struct {
	header string
	logger *slog.Logger
}

// NewIdentityMiddleware creates a new IdentityMiddleware reading the given
// header. An empty header name falls back to DefaultUserIDHeader.
func NewIdentityMiddleware(header string, logger *slog.Logger) *IdentityMiddleware {
	if header == "" {
		header = DefaultUserIDHeader
	}
	return &IdentityMiddleware{
		header: header,
		logger: logger,
	}
}

// WithUser parses the identity header and stores the user ID in the context.
// Requests without a usable header continue anonymously.
//
// The user ID can be retrieved in handlers using:
//
//	userID, ok := auth.GetUserIDFromRequest(r)
func (m *IdentityMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(m.header))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			m.logger.Warn("ignoring malformed identity header",
				"header", m.header,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUserID(r.Context(), id)))
	})
}

// RequireUser rejects requests without an identity with a 401 JSON error.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
//	mux.Handle("GET /api/usage", idMw.WithUser(idMw.RequireUser(usageHandler)))
func (m *IdentityMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetUserIDFromRequest(r); !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticated is WithUser followed by RequireUser.
func (m *IdentityMiddleware) Authenticated(next http.Handler) http.Handler {
	return m.WithUser(m.RequireUser(next))
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
//	stack := Stack(loggingMw.Handler, idMw.WithUser, idMw.RequireUser)
//	mux.Handle("GET /api/usage", stack(usageHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&IdentityMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&IdentityMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&IdentityMiddleware{}).Authenticated
)
