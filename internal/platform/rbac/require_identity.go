// Package rbac provides the access guard shared by every protected handler.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/security"
	"incident-command-plane/internal/server/middleware"
)

// RequireIdentity ensures the caller is authenticated with a complete identity
// (session, user, tenant). Returns the identity on success; returns an
// Unauthenticated error on failure.
func RequireIdentity(ctx context.Context) (security.Identity, error) {
	ident, ok := middleware.GetIdentity(ctx)
	if !ok || ident.UserID == "" || ident.TenantID == "" || ident.SessionID == "" {
		return security.Identity{}, status.Error(codes.Unauthenticated, "caller identity required")
	}
	return ident, nil
}
