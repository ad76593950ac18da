package api

import (
	"context"
	"fmt"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/settlement"
)

// CreateOrder registers a gateway order for a credit pack. Only packs from
// the policy catalog can be ordered over the API.
func (s *LedgerService) CreateOrder(ctx context.Context, accountId, packId, orderId string) (*models.OrderResult, error) {
	if accountId == "" || packId == "" || orderId == "" {
		return nil, fmt.Errorf("%w: account id, pack_id and order_id are required", settlement.ErrInvalidRequest)
	}

	order, err := s.settlement.CreateOrder(ctx, settlement.OrderRequest{
		OrderId:   orderId,
		AccountId: accountId,
		PackId:    packId,
	})
	if err != nil {
		return nil, err
	}
	return &models.OrderResult{
		OrderId:     order.OrderId,
		AccountId:   order.AccountId,
		PackId:      order.PackId,
		Credits:     order.Credits,
		PremiumDays: order.PremiumDays,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Status:      order.Status,
	}, nil
}

// SettlePayment applies a checkout confirmation from the payment gateway
func (s *LedgerService) SettlePayment(ctx context.Context, req settlement.SettleRequest) (*models.SettlementResult, error) {
	if req.PaymentId == "" || req.OrderId == "" {
		return nil, fmt.Errorf("%w: payment_id and order_id are required", settlement.ErrInvalidRequest)
	}

	result, err := s.settlement.Settle(ctx, req)
	if err != nil {
		return nil, err
	}
	return toSettlementResult(result), nil
}

// SettleWebhook applies a signed webhook delivery from the payment gateway
func (s *LedgerService) SettleWebhook(ctx context.Context, body []byte, signature string) (*models.SettlementResult, error) {
	result, err := s.settlement.SettleWebhook(ctx, body, signature)
	if err != nil {
		return nil, err
	}
	return toSettlementResult(result), nil
}

func toSettlementResult(result *settlement.Result) *models.SettlementResult {
	out := &models.SettlementResult{
		Status:         string(result.Status),
		PaymentId:      result.PaymentId,
		AccountId:      result.AccountId,
		CreditsGranted: result.CreditsGranted,
		PremiumDays:    result.PremiumDays,
		Balance:        result.Balance,
	}
	if result.Payment != nil {
		out.Amount = result.Payment.Amount
		out.Currency = result.Payment.Currency
	}
	return out
}
