package settlement

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/database"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/signature"
	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	keySecret     = "rzp_key_secret"
	webhookSecret = "rzp_webhook_secret"
)

var start = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func setupHandler(t *testing.T) (*Handler, *database.Service) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "settle.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateAccount(context.Background(), store.CreateAccountParams{
		AccountId: "acct1",
		Email:     "acct1@example.com",
		Now:       start,
	})
	require.NoError(t, err)

	catalog, err := policy.Parse([]byte(`
packs:
  - id: pro-month
    credits: 300
    price: "299.00"
    currency: INR
    premium_days: 30
`))
	require.NoError(t, err)

	handler := NewHandler(db, signature.NewVerifier(keySecret, webhookSecret), catalog, clock.NewFakeClock(start))
	return handler, db
}

func registerOrder(t *testing.T, handler *Handler, orderId string, credits int64) {
	t.Helper()
	_, err := handler.CreateOrder(context.Background(), OrderRequest{
		OrderId:   orderId,
		AccountId: "acct1",
		Credits:   credits,
		Amount:    decimal.RequireFromString("499"),
		Currency:  "INR",
	})
	require.NoError(t, err)
}

func signedRequest(paymentId, orderId string) SettleRequest {
	return SettleRequest{
		PaymentId: paymentId,
		OrderId:   orderId,
		Signature: signature.SignPayment(keySecret, orderId, paymentId),
	}
}

func balance(t *testing.T, db *database.Service) int64 {
	t.Helper()
	account, err := db.GetAccount(context.Background(), "acct1")
	require.NoError(t, err)
	return account.Credits
}

func TestSettle_ExactlyOnce(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()
	registerOrder(t, handler, "order_9", 500)
	req := signedRequest("pay_123", "order_9")

	first, err := handler.Settle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, first.Status)
	assert.Equal(t, int64(500), first.Balance)

	second, err := handler.Settle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyApplied, second.Status)
	assert.Equal(t, int64(500), second.Balance)
	assert.Equal(t, int64(500), balance(t, db))

	entries, err := db.GetLedgerEntries(ctx, "acct1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NoError(t, db.ReconcileAccount(ctx, "acct1"))
}

func TestSettle_ConcurrentDeliveries(t *testing.T) {
	handler, db := setupHandler(t)
	registerOrder(t, handler, "order_dup", 250)
	req := signedRequest("pay_dup", "order_dup")

	var applied atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			result, err := handler.Settle(ctx, req)
			if err != nil {
				return err
			}
			if result.Status == StatusApplied {
				applied.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int64(250), balance(t, db))
}

func TestSettle_TamperedOrder(t *testing.T) {
	handler, db := setupHandler(t)
	registerOrder(t, handler, "order_9", 500)
	registerOrder(t, handler, "order_10", 5000)
	req := signedRequest("pay_123", "order_9")
	req.OrderId = "order_10"

	_, err := handler.Settle(context.Background(), req)
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)
	assert.Equal(t, int64(0), balance(t, db))

	payment, err := db.GetPayment(context.Background(), "pay_123")
	require.NoError(t, err)
	assert.Nil(t, payment)
}

// A valid signature for a cheap order must not buy a larger grant: the
// confirmation has no say over credits, premium or the account credited.
func TestSettle_CannotOverClaim(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()
	_, err := db.CreateAccount(ctx, store.CreateAccountParams{AccountId: "acct2", Email: "acct2@example.com", Now: start})
	require.NoError(t, err)

	registerOrder(t, handler, "order_small", 10)

	result, err := handler.Settle(ctx, signedRequest("pay_small", "order_small"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.CreditsGranted)
	assert.Equal(t, 0, result.PremiumDays)
	assert.Equal(t, "acct1", result.AccountId)
	assert.Equal(t, int64(10), balance(t, db))

	other, err := db.GetAccount(ctx, "acct2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.Credits)
	assert.False(t, other.IsPremium)

	// Claiming a different amount than the order was created for fails.
	registerOrder(t, handler, "order_cheap", 10)
	req := signedRequest("pay_cheap", "order_cheap")
	req.Amount = decimal.RequireFromString("1")
	_, err = handler.Settle(ctx, req)
	assert.ErrorIs(t, err, store.ErrPaymentMismatch)
	assert.Equal(t, int64(10), balance(t, db))
}

func TestSettle_UnknownOrder(t *testing.T) {
	handler, db := setupHandler(t)

	_, err := handler.Settle(context.Background(), signedRequest("pay_1", "order_never"))
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
	assert.Equal(t, int64(0), balance(t, db))
}

func TestCreateOrder_Pack(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()

	order, err := handler.CreateOrder(ctx, OrderRequest{
		OrderId:   "order_pack",
		AccountId: "acct1",
		PackId:    "pro-month",
		// Ignored in favour of the pack.
		Credits: 1_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), order.Credits)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("299")))

	result, err := handler.Settle(ctx, signedRequest("pay_pack", "order_pack"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.CreditsGranted)
	assert.Equal(t, 30, result.PremiumDays)
	assert.True(t, result.Payment.Amount.Equal(decimal.RequireFromString("299")))

	account, err := db.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.IsPremium)
	assert.True(t, account.PremiumExpiresAt.Equal(start.Add(30*24*time.Hour)))
}

func TestCreateOrder_InvalidRequests(t *testing.T) {
	handler, _ := setupHandler(t)
	ctx := context.Background()

	_, err := handler.CreateOrder(ctx, OrderRequest{OrderId: "order_1", AccountId: "acct1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = handler.CreateOrder(ctx, OrderRequest{OrderId: "order_2", AccountId: "acct1", PackId: "enterprise"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = handler.CreateOrder(ctx, OrderRequest{OrderId: "order_3", AccountId: "ghost", Credits: 10})
	assert.ErrorIs(t, err, store.ErrAccountNotFound)

	registerOrder(t, handler, "order_4", 10)
	_, err = handler.CreateOrder(ctx, OrderRequest{OrderId: "order_4", AccountId: "acct1", Credits: 10})
	assert.ErrorIs(t, err, store.ErrOrderExists)

	_, err = handler.Settle(ctx, SettleRequest{OrderId: "order_4"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSettle_OrderPaidTwice(t *testing.T) {
	handler, _ := setupHandler(t)
	ctx := context.Background()
	registerOrder(t, handler, "order_1", 100)

	_, err := handler.Settle(ctx, signedRequest("pay_1", "order_1"))
	require.NoError(t, err)

	_, err = handler.Settle(ctx, signedRequest("pay_2", "order_1"))
	assert.ErrorIs(t, err, store.ErrPaymentMismatch)
}

func webhookBody(event, paymentId, orderId string, amount int64, notes string) []byte {
	return []byte(fmt.Sprintf(`{
  "entity": "event",
  "event": %q,
  "payload": {
    "payment": {
      "entity": {
        "id": %q,
        "order_id": %q,
        "amount": %d,
        "currency": "INR",
        "status": "captured",
        "notes": %s
      }
    }
  }
}`, event, paymentId, orderId, amount, notes))
}

func TestSettleWebhook_Captured(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()
	registerOrder(t, handler, "order_wh", 500)
	body := webhookBody("payment.captured", "pay_wh", "order_wh", 49900, `{"account_id":"acct1","credits":"5000000"}`)

	result, err := handler.SettleWebhook(ctx, body, signature.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(500), result.CreditsGranted)
	assert.True(t, result.Payment.Amount.Equal(decimal.RequireFromString("499")))

	result, err = handler.SettleWebhook(ctx, body, signature.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyApplied, result.Status)
	assert.Equal(t, int64(500), balance(t, db))
}

func TestSettleWebhook_AfterCheckout(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()
	registerOrder(t, handler, "order_both", 500)

	_, err := handler.Settle(ctx, signedRequest("pay_both", "order_both"))
	require.NoError(t, err)

	body := webhookBody("payment.captured", "pay_both", "order_both", 49900, `[]`)
	result, err := handler.SettleWebhook(ctx, body, signature.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyApplied, result.Status)
	assert.Equal(t, int64(500), balance(t, db))
}

func TestSettleWebhook_UnregisteredOrder(t *testing.T) {
	handler, db := setupHandler(t)
	body := webhookBody("payment.captured", "pay_u", "order_u", 49900, `{"account_id":"acct1","credits":500}`)

	result, err := handler.SettleWebhook(context.Background(), body, signature.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, result.Status)
	assert.Equal(t, int64(0), balance(t, db))
}

func TestSettleWebhook_Rejects(t *testing.T) {
	handler, db := setupHandler(t)
	ctx := context.Background()
	registerOrder(t, handler, "order_x", 5)

	body := webhookBody("payment.captured", "pay_x", "order_x", 49900, `{"account_id":"acct1"}`)
	_, err := handler.SettleWebhook(ctx, body, signature.Sign(keySecret, body))
	assert.ErrorIs(t, err, signature.ErrInvalidSignature)

	short := webhookBody("payment.captured", "pay_y", "order_x", 100, `[]`)
	_, err = handler.SettleWebhook(ctx, short, signature.Sign(webhookSecret, short))
	assert.ErrorIs(t, err, store.ErrPaymentMismatch)

	bad := webhookBody("payment.captured", "pay_z", "order_x", 49900, `"not an object"`)
	_, err = handler.SettleWebhook(ctx, bad, signature.Sign(webhookSecret, bad))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	garbage := []byte("not json")
	_, err = handler.SettleWebhook(ctx, garbage, signature.Sign(webhookSecret, garbage))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.Equal(t, int64(0), balance(t, db))
}

func TestSettleWebhook_IgnoresOtherEvents(t *testing.T) {
	handler, db := setupHandler(t)
	registerOrder(t, handler, "order_f", 5)
	body := webhookBody("payment.failed", "pay_f", "order_f", 49900, `[]`)

	result, err := handler.SettleWebhook(context.Background(), body, signature.Sign(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, result.Status)
	assert.Equal(t, int64(0), balance(t, db))
}
