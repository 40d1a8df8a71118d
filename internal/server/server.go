// Package server assembles the HTTP API: router, middleware, and the feature
// handlers' route tables.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithandler "incident-command-plane/internal/audit/handler"
	auditrepo "incident-command-plane/internal/audit/repository"
	handoffhandler "incident-command-plane/internal/handoff/handler"
	handoffservice "incident-command-plane/internal/handoff/service"
	identityhandler "incident-command-plane/internal/identity/handler"
	identityservice "incident-command-plane/internal/identity/service"
	incidenthandler "incident-command-plane/internal/incident/handler"
	incidentservice "incident-command-plane/internal/incident/service"
	"incident-command-plane/internal/notify"
	"incident-command-plane/internal/security"
	"incident-command-plane/internal/server/httpapi"
	"incident-command-plane/internal/server/middleware"
	sessionhandler "incident-command-plane/internal/session/handler"
	sessionservice "incident-command-plane/internal/session/service"
)

// publicPaths are the routes reachable without a bearer token.
var publicPaths = map[string]bool{
	"/healthz":         true,
	"/v1/auth/login":   true,
	"/v1/auth/refresh": true,
	"/v1/auth/logout":  true,
}

// Deps are the assembled services the server routes to.
type Deps struct {
	Tokens    *security.TokenProvider
	Auth      *identityservice.AuthService
	Sessions  *sessionservice.Service
	Incidents *incidentservice.Service
	Handoffs  *handoffservice.Service
	AuditRepo auditrepo.Repository
	Hub       *notify.Hub
}

// New builds the HTTP server.
func New(addr string, deps Deps) *http.Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Auth(deps.Tokens, publicPaths))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	tables := [][]httpapi.Route{
		identityhandler.NewHandler(deps.Auth).Routes(),
		sessionhandler.NewHandler(deps.Sessions).Routes(),
		incidenthandler.NewHandler(deps.Incidents).Routes(),
		handoffhandler.NewHandler(deps.Handoffs).Routes(),
		audithandler.NewHandler(deps.AuditRepo).Routes(),
	}
	if deps.Hub != nil {
		tables = append(tables, notify.NewWSHandler(deps.Hub).Routes())
	}
	for _, routes := range tables {
		for _, rt := range routes {
			r.Method(rt.Method, rt.Pattern, rt.Handler)
		}
	}

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
