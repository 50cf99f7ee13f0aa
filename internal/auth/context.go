// Package auth provides identity context helpers.
//
// Authentication happens upstream; this service only carries the resulting
// user ID. The package is imported by both middleware and handler packages
// without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// userIDContextKey is the key used to store the caller's user ID in context.
	userIDContextKey contextKey = "user_id"
)

// GetUserID retrieves the caller's user ID from the context.
//
// Returns uuid.Nil and false if no identity was attached.
//
// Usage:
//
//	userID, ok := auth.GetUserID(r.Context())
//	if !ok {
//	    // Handle anonymous request
//	}
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetUserIDFromRequest is a convenience wrapper around GetUserID.
func GetUserIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	return GetUserID(r.Context())
}

// SetUserID stores the caller's user ID in the context.
func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}
