// Worker runs the liveness reaper: the hourly stale-command sweep and the
// daily retention sweep. Cadences come from REAPER_HOURLY_INTERVAL and
// REAPER_DAILY_HOUR.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"incident-command-plane/internal/audit"
	auditrepo "incident-command-plane/internal/audit/repository"
	"incident-command-plane/internal/config"
	"incident-command-plane/internal/db"
	"incident-command-plane/internal/reaper"
	"incident-command-plane/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "icp-worker", cfg.OTLPInsecure)
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

	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(database.Q()))

	r := reaper.New(database, auditLog)
	log.Printf("worker: reaper running (hourly=%s daily_hour=%d)", cfg.HourlyInterval(), cfg.ReaperDailyHour)
	r.Run(ctx, cfg.HourlyInterval(), cfg.ReaperDailyHour)
	log.Println("worker stopped")
}
