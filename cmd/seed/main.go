// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev commander (commander@example.com)
// already exists.
package main

import (
	"context"
	"log"
	"time"

	"incident-command-plane/internal/config"
	"incident-command-plane/internal/db"
	identitydomain "incident-command-plane/internal/identity/domain"
	identityrepo "incident-command-plane/internal/identity/repository"
	incidentdomain "incident-command-plane/internal/incident/domain"
	incidentrepo "incident-command-plane/internal/incident/repository"
	"incident-command-plane/internal/security"
	tenantdomain "incident-command-plane/internal/tenant/domain"
	tenantrepo "incident-command-plane/internal/tenant/repository"
)

const (
	devTenantID       = "dev-tenant-001"
	devCommanderID    = "dev-user-001"
	devResponderID    = "dev-user-002"
	devIncidentID     = "dev-incident-001"
	devCommanderEmail = "commander@example.com"
	devResponderEmail = "responder@example.com"
	devPassword       = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is required")
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := identityrepo.NewPostgresRepository(sqlDB)
	tenants := tenantrepo.NewPostgresRepository(sqlDB)
	incidents := incidentrepo.NewPostgresRepository(sqlDB)

	if existing, err := users.GetByEmail(ctx, devCommanderEmail); err != nil {
		log.Fatalf("seed: check existing user: %v", err)
	} else if existing != nil {
		log.Println("seed: dev data already present; nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	now := time.Now().UTC()

	tenant := &tenantdomain.Tenant{
		ID:                 devTenantID,
		Name:               "Dev Fire District",
		Status:             tenantdomain.TenantStatusActive,
		MaxTotalSessions:   5,
		MaxCommandLicenses: 2,
		CreatedAt:          now,
	}
	if err := tenant.Validate(); err != nil {
		log.Fatalf("seed: tenant: %v", err)
	}
	if err := tenants.Create(ctx, tenant); err != nil {
		log.Fatalf("seed: create tenant: %v", err)
	}

	seedUsers := []*identitydomain.User{
		{
			ID:           devCommanderID,
			TenantID:     devTenantID,
			Email:        devCommanderEmail,
			Name:         "Dev Commander",
			PasswordHash: passwordHash,
			LicenseTier:  identitydomain.TierProfessional,
			Status:       identitydomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:           devResponderID,
			TenantID:     devTenantID,
			Email:        devResponderEmail,
			Name:         "Dev Responder",
			PasswordHash: passwordHash,
			LicenseTier:  identitydomain.TierEssentials,
			Status:       identitydomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	for _, u := range seedUsers {
		if err := u.Validate(); err != nil {
			log.Fatalf("seed: user %s: %v", u.Email, err)
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed: create user %s: %v", u.Email, err)
		}
	}

	incident := &incidentdomain.Incident{
		ID:        devIncidentID,
		TenantID:  devTenantID,
		Number:    "2026-0042",
		Name:      "Structure Fire - Main St",
		Status:    incidentdomain.IncidentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := incident.Validate(); err != nil {
		log.Fatalf("seed: incident: %v", err)
	}
	if err := incidents.Create(ctx, incident); err != nil {
		log.Fatalf("seed: create incident: %v", err)
	}

	log.Printf("seed: created tenant %s, users %s / %s (password %q), incident %s",
		devTenantID, devCommanderEmail, devResponderEmail, devPassword, devIncidentID)
}
