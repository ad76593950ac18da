package settlement

import (
	"context"
	"errors"
	"fmt"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/signature"
	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidRequest = errors.New("invalid settlement request")
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Status reports how a settlement resolved. Both values are successes.
type Status string

const (
	StatusApplied        Status = "applied"
	StatusAlreadyApplied Status = "already_applied"
	StatusIgnored        Status = "ignored"
)

// OrderRequest registers what a gateway order will grant once paid.
type OrderRequest struct {
	OrderId   string
	AccountId string
	// PackId names a policy pack; its credits, premium days and price
	// replace the explicit grant.
	PackId      string
	Credits     int64
	PremiumDays int
	Amount      decimal.Decimal
	Currency    string
}

// SettleRequest carries a checkout confirmation. The grant is not part of
// it: credits and premium days come from the order registered under OrderId.
type SettleRequest struct {
	PaymentId string
	OrderId   string
	Signature string
	// Amount is the gateway-reported amount, when known. A non-zero value
	// must match the order.
	Amount decimal.Decimal
}

type Result struct {
	Status         Status
	PaymentId      string
	AccountId      string
	CreditsGranted int64
	PremiumDays    int
	Balance        int64
	Payment        *models.PaymentRecord
}

// Store is the slice of the backend settlement writes to.
type Store interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	store.PaymentStore
}

// Handler turns verified gateway confirmations into ledger credits, exactly
// once per payment id.
type Handler struct {
	store    Store
	verifier *signature.Verifier
	catalog  *policy.Catalog
	clock    clock.Clock
}

func NewHandler(s Store, verifier *signature.Verifier, catalog *policy.Catalog, c clock.Clock) *Handler {
	return &Handler{
		store:    s,
		verifier: verifier,
		catalog:  catalog,
		clock:    c,
	}
}

// CreateOrder records the grant for an order before checkout starts.
// Settlement later reads the grant back from here, never from the client.
func (h *Handler) CreateOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if req.PackId != "" {
		pack, err := h.catalog.Pack(req.PackId)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req.Credits = pack.Credits
		req.PremiumDays = pack.PremiumDays
		req.Amount = pack.Price
		req.Currency = pack.Currency
	}

	if req.OrderId == "" || req.AccountId == "" {
		return nil, fmt.Errorf("%w: order id and account id are required", ErrInvalidRequest)
	}
	if req.Credits < 0 || req.PremiumDays < 0 || (req.Credits == 0 && req.PremiumDays == 0) {
		return nil, fmt.Errorf("%w: order grants %d credits and %d premium days", ErrInvalidRequest, req.Credits, req.PremiumDays)
	}

	return h.store.CreateOrder(ctx, store.CreateOrderParams{
		OrderId:     req.OrderId,
		AccountId:   req.AccountId,
		PackId:      req.PackId,
		Credits:     req.Credits,
		PremiumDays: req.PremiumDays,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Now:         h.clock.Now(),
	})
}

// Settle verifies the checkout signature over orderId and paymentId and then
// applies the order's grant. A repeated payment id reports
// StatusAlreadyApplied. Store failures are returned so the caller can retry
// safely.
func (h *Handler) Settle(ctx context.Context, req SettleRequest) (*Result, error) {
	if req.PaymentId == "" || req.OrderId == "" {
		return nil, fmt.Errorf("%w: payment id and order id are required", ErrInvalidRequest)
	}
	if err := h.verifier.VerifyPayment(req.OrderId, req.PaymentId, req.Signature); err != nil {
		metrics.SettlementsTotal.WithLabelValues("invalid_signature").Inc()
		zap.L().Warn("Rejected payment confirmation",
			zap.String("payment_id", req.PaymentId),
			zap.String("order_id", req.OrderId),
			zap.Error(err))
		return nil, err
	}
	return h.apply(ctx, req, "Checkout payment")
}

func (h *Handler) apply(ctx context.Context, req SettleRequest, source string) (*Result, error) {
	record, _, err := h.store.ApplyPayment(ctx, store.ApplyPaymentParams{
		PaymentId:   req.PaymentId,
		OrderId:     req.OrderId,
		Amount:      req.Amount,
		Description: fmt.Sprintf("%s %s (order %s)", source, req.PaymentId, req.OrderId),
		Now:         h.clock.Now(),
	})

	status := StatusApplied
	switch {
	case err == nil:
	case errors.Is(err, store.ErrAlreadyApplied):
		status = StatusAlreadyApplied
	case errors.Is(err, store.ErrPaymentMismatch):
		metrics.SettlementsTotal.WithLabelValues("mismatch").Inc()
		zap.L().Error("Payment does not match its order",
			zap.String("payment_id", req.PaymentId),
			zap.String("order_id", req.OrderId),
			zap.Error(err))
		return nil, err
	default:
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues(string(status)).Inc()

	result := &Result{
		Status:         status,
		PaymentId:      req.PaymentId,
		AccountId:      record.AccountId,
		CreditsGranted: record.CreditsGranted,
		PremiumDays:    record.PremiumDays,
		Payment:        record,
	}

	account, err := h.store.GetAccount(ctx, record.AccountId)
	if err != nil {
		// The payment is settled; only the balance echo is missing.
		zap.L().Warn("Unable to read balance after settlement",
			zap.String("account_id", record.AccountId),
			zap.Error(err))
		return result, nil
	}
	result.Balance = account.Credits

	zap.L().Info("Settlement completed",
		zap.String("payment_id", req.PaymentId),
		zap.String("account_id", record.AccountId),
		zap.String("status", string(status)),
		zap.Int64("credits", record.CreditsGranted),
		zap.Int64("balance", account.Credits))
	return result, nil
}
