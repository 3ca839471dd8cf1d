package http

import "context"

type contextKey string

const ownerIDKey = contextKey("ownerID")

// OwnerIDFromContext returns the authenticated principal id placed there by
// the JWT middleware.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(string)
	return ownerID, ok && ownerID != ""
}

// WithOwnerID is exported for tests that need an authenticated context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}
