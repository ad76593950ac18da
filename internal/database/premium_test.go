package database

import (
	"context"
	"testing"
	"time"
)

func TestActivatePremium(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)

	account, err := service.ActivatePremium(ctx, "acct1", 30*24*time.Hour, testNow)
	if err != nil {
		t.Fatalf("ActivatePremium failed: %v", err)
	}
	if !account.IsPremium {
		t.Fatal("Expected account to be premium")
	}
	expected := testNow.Add(30 * 24 * time.Hour)
	if account.PremiumExpiresAt == nil || !account.PremiumExpiresAt.Equal(expected) {
		t.Errorf("Expected expiry %v, got %v", expected, account.PremiumExpiresAt)
	}

	// Extending a live period stacks on the current expiry
	later := testNow.Add(10 * 24 * time.Hour)
	account, err = service.ActivatePremium(ctx, "acct1", 30*24*time.Hour, later)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	expected = expected.Add(30 * 24 * time.Hour)
	if !account.PremiumExpiresAt.Equal(expected) {
		t.Errorf("Expected extended expiry %v, got %v", expected, account.PremiumExpiresAt)
	}
}

func TestActivatePremium_AfterLapse(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)

	if _, err := service.ActivatePremium(ctx, "acct1", 24*time.Hour, testNow); err != nil {
		t.Fatalf("ActivatePremium failed: %v", err)
	}

	// The old period is over; the new one starts now
	later := testNow.Add(72 * time.Hour)
	account, err := service.ActivatePremium(ctx, "acct1", 24*time.Hour, later)
	if err != nil {
		t.Fatalf("ActivatePremium failed: %v", err)
	}
	if expected := later.Add(24 * time.Hour); !account.PremiumExpiresAt.Equal(expected) {
		t.Errorf("Expected expiry %v, got %v", expected, account.PremiumExpiresAt)
	}
}

func TestExpirePremium(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)

	if _, err := service.ActivatePremium(ctx, "acct1", time.Hour, testNow); err != nil {
		t.Fatalf("ActivatePremium failed: %v", err)
	}

	expired, err := service.ExpirePremium(ctx, "acct1", testNow.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ExpirePremium failed: %v", err)
	}
	if expired {
		t.Error("Expected live premium to stay active")
	}

	// Exactly at the expiry instant the period still counts
	expired, _ = service.ExpirePremium(ctx, "acct1", testNow.Add(time.Hour))
	if expired {
		t.Error("Expected premium to remain active at the expiry instant")
	}

	expired, err = service.ExpirePremium(ctx, "acct1", testNow.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ExpirePremium failed: %v", err)
	}
	if !expired {
		t.Fatal("Expected premium to expire")
	}

	account, _ := service.GetAccount(ctx, "acct1")
	if account.IsPremium {
		t.Error("Expected account to be freemium after expiry")
	}

	// Second transition is a no-op
	expired, _ = service.ExpirePremium(ctx, "acct1", testNow.Add(3*time.Hour))
	if expired {
		t.Error("Expected repeated expiry to report no transition")
	}
}

func TestExpirePremium_OpenEnded(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)

	if _, err := service.db.Exec("UPDATE accounts SET is_premium = 1, premium_expires_at = NULL WHERE id = ?", "acct1"); err != nil {
		t.Fatalf("Failed to set open-ended premium: %v", err)
	}

	expired, err := service.ExpirePremium(ctx, "acct1", testNow.Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("ExpirePremium failed: %v", err)
	}
	if expired {
		t.Error("Open-ended premium must not expire")
	}

	account, err := service.ActivatePremium(ctx, "acct1", 24*time.Hour, testNow)
	if err != nil {
		t.Fatalf("ActivatePremium failed: %v", err)
	}
	if account.PremiumExpiresAt != nil {
		t.Errorf("Expected open-ended premium to stay open-ended, got %v", account.PremiumExpiresAt)
	}
}
