package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestOrder(t *testing.T, service *Service, orderId string, credits int64, premiumDays int) *models.Order {
	order, err := service.CreateOrder(context.Background(), store.CreateOrderParams{
		OrderId:     orderId,
		AccountId:   "acct1",
		PackId:      "test_pack",
		Credits:     credits,
		PremiumDays: premiumDays,
		Amount:      decimal.RequireFromString("499.00"),
		Currency:    "INR",
		Now:         testNow,
	})
	if err != nil {
		t.Fatalf("Failed to create order %s: %v", orderId, err)
	}
	return order
}

func paymentParams(paymentId, orderId string) store.ApplyPaymentParams {
	return store.ApplyPaymentParams{
		PaymentId:   paymentId,
		OrderId:     orderId,
		Description: "Credit pack purchase",
		Now:         testNow,
	}
}

func TestApplyPayment_Once(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_1", 500, 0)

	record, entry, err := service.ApplyPayment(ctx, paymentParams("pay_123", "order_1"))
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if record.Status != models.PaymentStatusSettled {
		t.Errorf("Expected settled status, got %s", record.Status)
	}
	if entry == nil || entry.BalanceAfter != 500 {
		t.Fatalf("Expected credit entry with balance 500, got %+v", entry)
	}
	if record.LedgerEntryId != entry.Id {
		t.Errorf("Expected record to reference entry %s, got %s", entry.Id, record.LedgerEntryId)
	}

	again, _, err := service.ApplyPayment(ctx, paymentParams("pay_123", "order_1"))
	if !errors.Is(err, store.ErrAlreadyApplied) {
		t.Fatalf("Expected ErrAlreadyApplied, got %v", err)
	}
	if again == nil || again.LedgerEntryId != entry.Id {
		t.Errorf("Expected stored record on replay, got %+v", again)
	}

	account, _ := service.GetAccount(ctx, "acct1")
	if account.Credits != 500 {
		t.Errorf("Expected balance 500, got %d", account.Credits)
	}

	stored, err := service.GetPayment(ctx, "pay_123")
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if !stored.Amount.Equal(decimal.RequireFromString("499")) {
		t.Errorf("Expected amount 499, got %s", stored.Amount)
	}

	order, err := service.GetOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if order.Status != models.OrderPaid || order.PaymentId != "pay_123" {
		t.Errorf("Expected order paid by pay_123, got %s/%s", order.Status, order.PaymentId)
	}

	if err := service.ReconcileAccount(ctx, "acct1"); err != nil {
		t.Errorf("Reconcile failed: %v", err)
	}
}

func TestApplyPayment_GrantComesFromOrder(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestAccount(t, service, "acct2", 0)
	createTestOrder(t, service, "order_small", 10, 0)

	// The payment carries no grant of its own; whatever the caller
	// believes it bought, the order row decides.
	record, entry, err := service.ApplyPayment(ctx, paymentParams("pay_small", "order_small"))
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if record.CreditsGranted != 10 || entry.CreditsDelta != 10 {
		t.Errorf("Expected 10 credits granted, got record %d entry %d", record.CreditsGranted, entry.CreditsDelta)
	}
	if record.AccountId != "acct1" || record.PremiumDays != 0 {
		t.Errorf("Expected grant to acct1 without premium, got %+v", record)
	}

	acct1, _ := service.GetAccount(ctx, "acct1")
	acct2, _ := service.GetAccount(ctx, "acct2")
	if acct1.Credits != 10 || acct2.Credits != 0 {
		t.Errorf("Expected balances 10/0, got %d/%d", acct1.Credits, acct2.Credits)
	}
	if acct1.IsPremium {
		t.Error("Expected no premium from a credits-only order")
	}
}

func TestApplyPayment_AmountMismatch(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_1", 500, 0)

	params := paymentParams("pay_1", "order_1")
	params.Amount = decimal.RequireFromString("1.00")
	_, _, err := service.ApplyPayment(ctx, params)
	if !errors.Is(err, store.ErrPaymentMismatch) {
		t.Fatalf("Expected ErrPaymentMismatch, got %v", err)
	}

	params.Amount = decimal.RequireFromString("499")
	if _, _, err := service.ApplyPayment(ctx, params); err != nil {
		t.Fatalf("Expected matching amount to settle, got %v", err)
	}
}

func TestApplyPayment_Mismatch(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_1", 100, 0)
	createTestOrder(t, service, "order_2", 900, 0)

	if _, _, err := service.ApplyPayment(ctx, paymentParams("pay_1", "order_1")); err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}

	// Same payment replayed against a different order.
	_, _, err := service.ApplyPayment(ctx, paymentParams("pay_1", "order_2"))
	if !errors.Is(err, store.ErrPaymentMismatch) {
		t.Errorf("Expected ErrPaymentMismatch, got %v", err)
	}

	// A second payment cannot pay an order twice.
	_, _, err = service.ApplyPayment(ctx, paymentParams("pay_2", "order_1"))
	if !errors.Is(err, store.ErrPaymentMismatch) {
		t.Errorf("Expected ErrPaymentMismatch for paid order, got %v", err)
	}

	account, _ := service.GetAccount(ctx, "acct1")
	if account.Credits != 100 {
		t.Errorf("Expected balance 100, got %d", account.Credits)
	}
}

func TestApplyPayment_PremiumGrant(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_prem", 200, 30)

	if _, _, err := service.ApplyPayment(ctx, paymentParams("pay_prem", "order_prem")); err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}

	account, _ := service.GetAccount(ctx, "acct1")
	if !account.IsPremium {
		t.Fatal("Expected premium to be granted")
	}
	if expected := testNow.Add(30 * 24 * time.Hour); !account.PremiumExpiresAt.Equal(expected) {
		t.Errorf("Expected expiry %v, got %v", expected, account.PremiumExpiresAt)
	}
	if account.Credits != 200 {
		t.Errorf("Expected balance 200, got %d", account.Credits)
	}
}

func TestApplyPayment_PremiumOnly(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_sub", 0, 7)

	record, entry, err := service.ApplyPayment(ctx, paymentParams("pay_sub", "order_sub"))
	if err != nil {
		t.Fatalf("ApplyPayment failed: %v", err)
	}
	if entry != nil || record.LedgerEntryId != "" {
		t.Errorf("Expected no ledger entry for premium-only payment")
	}
}

func TestApplyPayment_UnknownOrder(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	createTestAccount(t, service, "acct1", 0)

	_, _, err := service.ApplyPayment(context.Background(), paymentParams("pay_x", "order_missing"))
	if !errors.Is(err, store.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}

	record, err := service.GetPayment(context.Background(), "pay_x")
	if err != nil || record != nil {
		t.Errorf("Expected no payment record, got %+v, %v", record, err)
	}
}

func TestCreateOrder(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", 0)
	createTestOrder(t, service, "order_1", 100, 0)

	params := store.CreateOrderParams{OrderId: "order_1", AccountId: "acct1", Credits: 5, Now: testNow}
	if _, err := service.CreateOrder(ctx, params); !errors.Is(err, store.ErrOrderExists) {
		t.Errorf("Expected ErrOrderExists, got %v", err)
	}

	params.OrderId = "order_2"
	params.AccountId = "ghost"
	if _, err := service.CreateOrder(ctx, params); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}

	params.AccountId = "acct1"
	params.Credits = 0
	if _, err := service.CreateOrder(ctx, params); err == nil {
		t.Error("Expected error for an order with no grant")
	}

	if _, err := service.GetOrder(ctx, "order_2"); !errors.Is(err, store.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}
