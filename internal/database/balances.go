package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReconcileAccount verifies that the cached balance matches the sum of the ledger
func (s *Service) ReconcileAccount(ctx context.Context, accountId string) error {
	zap.L().Info("Reconciling balance", zap.String("account_id", accountId))

	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	// Calculate balance from ledger history
	var calculatedBalance int64
	err = s.db.QueryRowContext(ctx, queryReconcileBalance, accountId).Scan(&calculatedBalance)
	if err != nil {
		return classify(fmt.Errorf("failed to calculate balance from ledger entries: %w", err))
	}

	if account.Credits != calculatedBalance {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.Int64("current_balance", account.Credits),
			zap.Int64("calculated_balance", calculatedBalance),
			zap.Int64("difference", account.Credits-calculatedBalance))
		return fmt.Errorf("balance mismatch: current=%d, calculated=%d", account.Credits, calculatedBalance)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.Int64("balance", account.Credits))
	return nil
}
