package middleware

import (
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/security"
	"incident-command-plane/internal/server/httpapi"
)

const bearerPrefix = "bearer "

// Auth returns middleware that validates the Bearer (access) token from the
// Authorization header and sets the caller identity in context for protected
// routes. publicPaths is the set of exact paths that do not require a token
// (e.g. login, refresh, health).
func Auth(tokens *security.TokenProvider, publicPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			public := publicPaths[r.URL.Path]

			if token == "" {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				httpapi.WriteError(w, status.Error(codes.Unauthenticated, "missing or invalid authorization"))
				return
			}

			ident, err := tokens.ValidateAccess(token)
			if err != nil {
				if public {
					next.ServeHTTP(w, r)
					return
				}
				httpapi.WriteError(w, status.Error(codes.Unauthenticated, "missing or invalid authorization"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// extractBearer returns the Bearer token from the request, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
