package middleware

import (
	"context"

	"incident-command-plane/internal/security"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// WithIdentity returns a context carrying the resolved caller identity.
// Handlers and rbac read it via GetIdentity.
func WithIdentity(ctx context.Context, ident security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// GetIdentity returns the caller identity from context and true if set.
func GetIdentity(ctx context.Context) (security.Identity, bool) {
	v, ok := ctx.Value(identityKey).(security.Identity)
	return v, ok
}
