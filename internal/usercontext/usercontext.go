// Package usercontext carries the resolved user identity through request
// contexts. Authentication happens upstream; the gateway only needs the ID.
package usercontext

import (
	"context"
	"strings"
)

// UserContextKey is the request context key for the active user ID.
type UserContextKey struct{}

// WithUserID stores the user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserContextKey{}, strings.TrimSpace(userID))
}

// UserIDFromContext returns the user ID from context, if set.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(UserContextKey{}).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
