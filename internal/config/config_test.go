package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_PATH", "DB_BUSY_TIMEOUT", "SERVER_ADDR", "RESERVATION_TTL", "SWEEP_BATCH_SIZE", "SIGNUP_CREDITS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "credits.db" {
		t.Errorf("Expected default database path, got %s", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 5*time.Second {
		t.Errorf("Expected 5s busy timeout, got %v", cfg.Database.BusyTimeout)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Entitlements.ReservationTTL != 5*time.Minute {
		t.Errorf("Expected 5m reservation TTL, got %v", cfg.Entitlements.ReservationTTL)
	}
	if cfg.Entitlements.SweepBatchSize != 100 {
		t.Errorf("Expected batch size 100, got %d", cfg.Entitlements.SweepBatchSize)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/var/lib/credits/ledger.db")
	t.Setenv("DB_BUSY_TIMEOUT", "250ms")
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("SERVER_H2C", "true")
	t.Setenv("RAZORPAY_KEY_SECRET", "key")
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "hook")
	t.Setenv("POLICY_FILE", "policy.yaml")
	t.Setenv("SIGNUP_CREDITS", "25")
	t.Setenv("RESERVATION_TTL", "90s")
	t.Setenv("SWEEP_BATCH_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/var/lib/credits/ledger.db" {
		t.Errorf("Unexpected path %s", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 250*time.Millisecond {
		t.Errorf("Unexpected busy timeout %v", cfg.Database.BusyTimeout)
	}
	if !cfg.Server.EnableH2C || cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Payments.KeySecret != "key" || cfg.Payments.WebhookSecret != "hook" {
		t.Errorf("Unexpected payment secrets")
	}
	if cfg.Entitlements.SignupCredits != 25 {
		t.Errorf("Expected 25 signup credits, got %d", cfg.Entitlements.SignupCredits)
	}
	if cfg.Entitlements.ReservationTTL != 90*time.Second {
		t.Errorf("Unexpected reservation TTL %v", cfg.Entitlements.ReservationTTL)
	}
	if cfg.Entitlements.PolicyFile != "policy.yaml" || cfg.Entitlements.SweepBatchSize != 10 {
		t.Errorf("Unexpected entitlements config %+v", cfg.Entitlements)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid duration")
	}

	t.Setenv("RESERVATION_TTL", "")
	t.Setenv("SIGNUP_CREDITS", "ten")
	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid signup credits")
	}

	t.Setenv("SIGNUP_CREDITS", "-5")
	if _, err := Load(); err == nil {
		t.Error("Expected error for negative signup credits")
	}
}
