package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// TryDebit atomically removes amount credits from the account. It never
// retries: after an indeterminate failure callers must re-authorize.
func (s *Service) TryDebit(ctx context.Context, params store.DebitParams) (*models.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", params.Amount)
	}

	zap.L().Debug("Processing debit",
		zap.String("account_id", params.AccountId),
		zap.String("action", params.ActionType),
		zap.Int64("amount", params.Amount))

	var entry *models.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:      params.AccountId,
			ActionType:     params.ActionType,
			Delta:          -params.Amount,
			Description:    params.Description,
			IdempotencyKey: params.IdempotencyKey,
			Now:            params.Now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return entry, err
		}
		if !errors.Is(err, store.ErrInsufficientFunds) {
			zap.L().Error("Debit failed",
				zap.String("account_id", params.AccountId),
				zap.String("action", params.ActionType),
				zap.Error(err))
		}
		return nil, err
	}

	zap.L().Info("Debit applied",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", params.AccountId),
		zap.String("action", params.ActionType),
		zap.Int64("old_balance", entry.BalanceBefore),
		zap.Int64("new_balance", entry.BalanceAfter))
	return entry, nil
}

// Credit atomically adds amount credits. The idempotency key is checked in
// the same transaction that writes the entry, so a retried credit is a no-op
// returning the original entry alongside ErrAlreadyApplied.
func (s *Service) Credit(ctx context.Context, params store.CreditParams) (*models.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", params.Amount)
	}
	if params.IdempotencyKey == "" {
		return nil, fmt.Errorf("credit requires an idempotency key")
	}

	var entry *models.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:      params.AccountId,
			ActionType:     params.ActionType,
			Delta:          params.Amount,
			Description:    params.Description,
			IdempotencyKey: params.IdempotencyKey,
			Now:            params.Now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return entry, err
		}
		zap.L().Error("Credit failed",
			zap.String("account_id", params.AccountId),
			zap.String("idempotency_key", params.IdempotencyKey),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Credit applied",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", params.AccountId),
		zap.String("idempotency_key", params.IdempotencyKey),
		zap.Int64("old_balance", entry.BalanceBefore),
		zap.Int64("new_balance", entry.BalanceAfter))
	return entry, nil
}

func (s *Service) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, queryGetEntryByIdempotencyKey, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to look up idempotency key: %w", err))
	}
	return entry, nil
}

func (s *Service) GetLedgerEntries(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error) {
	return s.subledger.GetLedgerEntries(ctx, accountId, limit, offset)
}
