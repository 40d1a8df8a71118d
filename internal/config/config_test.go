package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.JWTIssuer != "icp-auth" || cfg.JWTAudience != "icp-api" {
		t.Fatalf("jwt defaults = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Fatalf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Fatalf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.HourlyInterval() != time.Hour {
		t.Fatalf("HourlyInterval = %v, want 1h", cfg.HourlyInterval())
	}
	if cfg.ReaperDailyHour != 3 {
		t.Fatalf("ReaperDailyHour = %d, want 3", cfg.ReaperDailyHour)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("REAPER_HOURLY_INTERVAL", "30m")
	t.Setenv("REAPER_DAILY_HOUR", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Fatalf("AccessTTL = %v, want 5m", cfg.AccessTTL())
	}
	if cfg.HourlyInterval() != 30*time.Minute {
		t.Fatalf("HourlyInterval = %v, want 30m", cfg.HourlyInterval())
	}
	if cfg.ReaperDailyHour != 5 {
		t.Fatalf("ReaperDailyHour = %d, want 5", cfg.ReaperDailyHour)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("BCRYPT_COST", "99")
	if _, err := Load(); err == nil {
		t.Fatal("BCRYPT_COST=99 should be rejected")
	}
}

func TestLoadRejectsBadDailyHour(t *testing.T) {
	t.Setenv("REAPER_DAILY_HOUR", "24")
	if _, err := Load(); err == nil {
		t.Fatal("REAPER_DAILY_HOUR=24 should be rejected")
	}
}

func TestTTLFallbacks(t *testing.T) {
	cfg := &Config{JWTAccessTTL: "garbage", JWTRefreshTTL: "-1h", ReaperHourlyInterval: ""}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Fatalf("AccessTTL fallback = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Fatalf("RefreshTTL fallback = %v", cfg.RefreshTTL())
	}
	if cfg.HourlyInterval() != time.Hour {
		t.Fatalf("HourlyInterval fallback = %v", cfg.HourlyInterval())
	}
}
