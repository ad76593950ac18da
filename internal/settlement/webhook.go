package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const eventPaymentCaptured = "payment.captured"

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	Id       string          `json:"id"`
	OrderId  string          `json:"order_id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

// SettleWebhook verifies a gateway webhook body against its signature header
// and settles payment.captured events against the registered order. Other
// events, and orders this service never registered, are acknowledged and
// ignored.
func (h *Handler) SettleWebhook(ctx context.Context, body []byte, signatureHeader string) (*Result, error) {
	if err := h.verifier.VerifyWebhook(body, signatureHeader); err != nil {
		metrics.SettlementsTotal.WithLabelValues("invalid_signature").Inc()
		zap.L().Warn("Rejected webhook delivery", zap.Error(err))
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.Event != eventPaymentCaptured {
		zap.L().Debug("Ignoring webhook event", zap.String("event", event.Event))
		return &Result{Status: StatusIgnored}, nil
	}

	entity := event.Payload.Payment.Entity
	if entity.Id == "" || entity.OrderId == "" {
		return nil, fmt.Errorf("%w: payment id and order id are required", ErrInvalidPayload)
	}

	notes, err := parseNotes(entity.Notes)
	if err != nil {
		return nil, err
	}

	order, err := h.store.GetOrder(ctx, entity.OrderId)
	if errors.Is(err, store.ErrOrderNotFound) {
		metrics.SettlementsTotal.WithLabelValues(string(StatusIgnored)).Inc()
		zap.L().Warn("Ignoring payment for unregistered order",
			zap.String("payment_id", entity.Id),
			zap.String("order_id", entity.OrderId))
		return &Result{Status: StatusIgnored, PaymentId: entity.Id}, nil
	}
	if err != nil {
		return nil, err
	}
	if accountId := notes["account_id"]; accountId != "" && accountId != order.AccountId {
		zap.L().Warn("Webhook notes name a different account than the order",
			zap.String("order_id", order.OrderId),
			zap.String("order_account_id", order.AccountId),
			zap.String("notes_account_id", accountId))
	}

	return h.apply(ctx, SettleRequest{
		PaymentId: entity.Id,
		OrderId:   entity.OrderId,
		// Amounts arrive in the currency's minor unit
		Amount: decimal.New(entity.Amount, -2),
	}, "Webhook payment")
}

// parseNotes accepts the notes object, or the empty array the gateway sends
// when an order carries no notes. Values may be strings or numbers.
func parseNotes(raw json.RawMessage) (map[string]string, error) {
	notes := map[string]string{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return notes, nil
	}

	var values map[string]any
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, fmt.Errorf("%w: notes: %v", ErrInvalidPayload, err)
	}
	for key, value := range values {
		switch v := value.(type) {
		case string:
			notes[key] = strings.TrimSpace(v)
		case float64:
			notes[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return notes, nil
}
