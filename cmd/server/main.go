// Server runs the incident command plane HTTP API: auth, sessions, incidents,
// command handoffs, the audit trail, and the websocket change feed.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	auditrepo "incident-command-plane/internal/audit/repository"
	"incident-command-plane/internal/config"
	"incident-command-plane/internal/db"
	handoffservice "incident-command-plane/internal/handoff/service"
	identityrepo "incident-command-plane/internal/identity/repository"
	identityservice "incident-command-plane/internal/identity/service"
	incidentservice "incident-command-plane/internal/incident/service"
	"incident-command-plane/internal/notify"
	"incident-command-plane/internal/policy/engine"
	"incident-command-plane/internal/security"
	"incident-command-plane/internal/server"
	sessionrepo "incident-command-plane/internal/session/repository"
	sessionservice "incident-command-plane/internal/session/service"
	"incident-command-plane/internal/telemetry/otel"

	"incident-command-plane/internal/audit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("server: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "icp-server", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()
	database := db.New(sqlDB)

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	lockoutPolicy, err := engine.NewOPAEvaluator()
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	auditRepo := auditrepo.NewPostgresRepository(database.Q())
	auditLog := audit.NewLogger(auditRepo)

	sessions := sessionservice.NewService(database, lockoutPolicy, auditLog)
	incidents := incidentservice.NewService(database, auditLog)
	handoffs := handoffservice.NewService(database, auditLog)

	userRepo := identityrepo.NewPostgresRepository(database.Q())
	sessRepo := sessionrepo.NewPostgresRepository(database.Q())
	auth := identityservice.NewAuthService(userRepo, sessions, sessRepo, tokens, hasher)

	hub := notify.NewHub()
	listener := notify.NewListener(cfg.DatabaseURL, hub.Broadcast)
	go func() {
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("notify: listener stopped: %v", err)
		}
	}()

	srv := server.New(cfg.HTTPAddr, server.Deps{
		Tokens:    tokens,
		Auth:      auth,
		Sessions:  sessions,
		Incidents: incidents,
		Handoffs:  handoffs,
		AuditRepo: auditRepo,
		Hub:       hub,
	})
	if err := server.Run(ctx, srv); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Println("server stopped")
}
