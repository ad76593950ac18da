package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ActionCreditPurchase is the ledger action recorded for settled payments.
const ActionCreditPurchase = "credit_purchase"

// CreateOrder registers the grant a gateway order pays for. It is written
// when the order is created, before the buyer sees the checkout.
func (s *Service) CreateOrder(ctx context.Context, params store.CreateOrderParams) (*models.Order, error) {
	if params.OrderId == "" || params.AccountId == "" {
		return nil, fmt.Errorf("order id and account id are required")
	}
	if params.Credits < 0 || params.PremiumDays < 0 {
		return nil, fmt.Errorf("order grant cannot be negative, got %d credits and %d premium days", params.Credits, params.PremiumDays)
	}
	if params.Credits == 0 && params.PremiumDays == 0 {
		return nil, fmt.Errorf("order grants neither credits nor premium")
	}

	order := &models.Order{
		OrderId:     params.OrderId,
		AccountId:   params.AccountId,
		PackId:      params.PackId,
		Credits:     params.Credits,
		PremiumDays: params.PremiumDays,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Status:      models.OrderCreated,
		CreatedAt:   params.Now,
	}

	_, err := s.db.ExecContext(ctx, queryInsertOrder,
		order.OrderId, order.AccountId, order.PackId, order.Credits, order.PremiumDays,
		order.Amount.String(), order.Currency, order.Status, order.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%w: %s", store.ErrOrderExists, params.OrderId)
		case isForeignKeyViolation(err):
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, params.AccountId)
		}
		return nil, classify(fmt.Errorf("failed to insert order: %w", err))
	}

	zap.L().Info("Order registered",
		zap.String("order_id", order.OrderId),
		zap.String("account_id", order.AccountId),
		zap.String("pack_id", order.PackId),
		zap.Int64("credits", order.Credits),
		zap.Int("premium_days", order.PremiumDays),
		zap.String("amount", order.Amount.String()))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderId string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, queryGetOrder, orderId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrOrderNotFound, orderId)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get order: %w", err))
	}
	return order, nil
}

// ApplyPayment settles a verified payment exactly once. The grant is read
// from the registered order inside the transaction; the credit, the optional
// premium grant, the order transition and the payment record commit together.
func (s *Service) ApplyPayment(ctx context.Context, params store.ApplyPaymentParams) (*models.PaymentRecord, *models.LedgerEntry, error) {
	if params.PaymentId == "" || params.OrderId == "" {
		return nil, nil, fmt.Errorf("payment id and order id are required")
	}

	zap.L().Info("Applying payment",
		zap.String("payment_id", params.PaymentId),
		zap.String("order_id", params.OrderId),
		zap.String("reported_amount", params.Amount.String()))

	var record *models.PaymentRecord
	var entry *models.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanPayment(tx.QueryRowContext(ctx, queryGetPayment, params.PaymentId))
		if err == nil {
			record = existing
			if existing.OrderId != params.OrderId {
				return fmt.Errorf("%w: %s was settled for order %s", store.ErrPaymentMismatch, params.PaymentId, existing.OrderId)
			}
			return fmt.Errorf("%w: %s", store.ErrAlreadyApplied, params.PaymentId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check for existing payment: %w", err)
		}

		order, err := scanOrder(tx.QueryRowContext(ctx, queryGetOrder, params.OrderId))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrOrderNotFound, params.OrderId)
		}
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		if !params.Amount.IsZero() && !order.Amount.IsZero() && !params.Amount.Equal(order.Amount) {
			return fmt.Errorf("%w: paid %s, order %s is for %s", store.ErrPaymentMismatch, params.Amount, order.OrderId, order.Amount)
		}

		result, err := tx.ExecContext(ctx, queryMarkOrderPaid, models.OrderPaid, params.PaymentId, order.OrderId, models.OrderCreated)
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: order %s already paid by %s", store.ErrPaymentMismatch, order.OrderId, order.PaymentId)
		}

		description := params.Description
		if description == "" {
			description = fmt.Sprintf("Payment %s (order %s)", params.PaymentId, order.OrderId)
		}

		if order.Credits > 0 {
			entry, err = s.subledger.applyEntry(ctx, tx, entryParams{
				AccountId:      order.AccountId,
				ActionType:     ActionCreditPurchase,
				Delta:          order.Credits,
				Description:    description,
				IdempotencyKey: params.PaymentId,
				Now:            params.Now,
			})
			// A bare Credit with the same key may have landed first; adopt its entry.
			if err != nil && !(errors.Is(err, store.ErrAlreadyApplied) && entry != nil) {
				return err
			}
		}

		if order.PremiumDays > 0 {
			period := time.Duration(order.PremiumDays) * 24 * time.Hour
			if _, err := activatePremiumTx(ctx, tx, order.AccountId, period, params.Now); err != nil {
				return err
			}
		}

		record = &models.PaymentRecord{
			PaymentId:      params.PaymentId,
			OrderId:        order.OrderId,
			AccountId:      order.AccountId,
			CreditsGranted: order.Credits,
			Amount:         order.Amount,
			Currency:       order.Currency,
			PremiumDays:    order.PremiumDays,
			Status:         models.PaymentStatusSettled,
			CreatedAt:      params.Now,
		}
		if entry != nil {
			record.LedgerEntryId = entry.Id
		}

		_, err = tx.ExecContext(ctx, queryInsertPayment,
			record.PaymentId, record.OrderId, record.AccountId, record.CreditsGranted,
			record.Amount.String(), record.Currency, record.PremiumDays, record.LedgerEntryId,
			record.Status, record.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", store.ErrAlreadyApplied, params.PaymentId)
			}
			return fmt.Errorf("failed to insert payment record: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			zap.L().Info("Payment already settled, skipping",
				zap.String("payment_id", params.PaymentId),
				zap.String("order_id", params.OrderId))
			return record, nil, err
		}
		zap.L().Error("Payment settlement failed",
			zap.String("payment_id", params.PaymentId),
			zap.String("order_id", params.OrderId),
			zap.Error(err))
		return nil, nil, err
	}

	zap.L().Info("Payment settled successfully",
		zap.String("payment_id", params.PaymentId),
		zap.String("account_id", record.AccountId),
		zap.Int64("credits", record.CreditsGranted))
	return record, entry, nil
}

func (s *Service) GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error) {
	record, err := scanPayment(s.db.QueryRowContext(ctx, queryGetPayment, paymentId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get payment: %w", err))
	}
	return record, nil
}

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	var amountStr string
	err := row.Scan(&record.PaymentId, &record.OrderId, &record.AccountId, &record.CreditsGranted,
		&amountStr, &record.Currency, &record.PremiumDays, &record.LedgerEntryId,
		&record.Status, &record.CreatedAt)
	if err != nil {
		return nil, err
	}
	record.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment amount '%s': %w", amountStr, err)
	}
	return &record, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var amountStr string
	err := row.Scan(&order.OrderId, &order.AccountId, &order.PackId, &order.Credits,
		&order.PremiumDays, &amountStr, &order.Currency, &order.Status, &order.PaymentId,
		&order.CreatedAt)
	if err != nil {
		return nil, err
	}
	order.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order amount '%s': %w", amountStr, err)
	}
	return &order, nil
}
