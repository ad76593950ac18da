package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// TryIncrement creates the month row on first use and then bumps every
// checked counter in a single conditional UPDATE. Either all fields move or
// none do.
func (s *Service) TryIncrement(ctx context.Context, accountId, monthKey string, now time.Time, checks ...store.CapCheck) error {
	if len(checks) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return incrementTx(ctx, tx, accountId, monthKey, now, checks)
	})
	if err != nil {
		if errors.Is(err, store.ErrCapExceeded) {
			zap.L().Info("Usage cap reached",
				zap.String("account_id", accountId),
				zap.String("month", monthKey),
				zap.String("fields", describeChecks(checks)))
		}
		return err
	}

	zap.L().Debug("Usage counter incremented",
		zap.String("account_id", accountId),
		zap.String("month", monthKey),
		zap.String("fields", describeChecks(checks)))
	return nil
}

// MeteredDebit consumes the capped counters and debits the balance in one
// transaction. A used idempotency key returns the original entry with
// ErrAlreadyApplied before any counter moves. On ErrInsufficientFunds the
// counters stay consumed.
func (s *Service) MeteredDebit(ctx context.Context, params store.MeteredDebitParams) (*models.LedgerEntry, error) {
	debit := params.Debit
	if debit.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", debit.Amount)
	}

	var entry *models.LedgerEntry
	var debitErr error
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if debit.IdempotencyKey != "" {
			existing, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryByIdempotencyKey, debit.IdempotencyKey))
			if err == nil {
				entry = existing
				return fmt.Errorf("%w: %s", store.ErrAlreadyApplied, debit.IdempotencyKey)
			} else if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
		}

		if len(params.Checks) > 0 {
			if err := incrementTx(ctx, tx, debit.AccountId, params.MonthKey, debit.Now, params.Checks); err != nil {
				return err
			}
		}

		entry, debitErr = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:      debit.AccountId,
			ActionType:     debit.ActionType,
			Delta:          -debit.Amount,
			Description:    debit.Description,
			IdempotencyKey: debit.IdempotencyKey,
			Now:            debit.Now,
		})
		if errors.Is(debitErr, store.ErrInsufficientFunds) {
			// commit the counters, report the denial after
			return nil
		}
		return debitErr
	})
	if err == nil && debitErr != nil {
		return nil, debitErr
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyApplied):
			return entry, err
		case errors.Is(err, store.ErrCapExceeded):
			zap.L().Info("Usage cap reached",
				zap.String("account_id", debit.AccountId),
				zap.String("month", params.MonthKey),
				zap.String("fields", describeChecks(params.Checks)))
		default:
			zap.L().Error("Metered debit failed",
				zap.String("account_id", debit.AccountId),
				zap.String("action", debit.ActionType),
				zap.Error(err))
		}
		return nil, err
	}

	zap.L().Info("Metered debit applied",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", debit.AccountId),
		zap.String("action", debit.ActionType),
		zap.String("month", params.MonthKey),
		zap.Int64("new_balance", entry.BalanceAfter))
	return entry, nil
}

// incrementTx runs inside the caller's transaction.
func incrementTx(ctx context.Context, tx *sql.Tx, accountId, monthKey string, now time.Time, checks []store.CapCheck) error {
	query, args, err := buildIncrement(accountId, monthKey, now, checks)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, queryEnsureUsageCounter, accountId, monthKey, now, now); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountId)
		}
		return fmt.Errorf("failed to create usage counter: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrCapExceeded
	}
	return nil
}

func (s *Service) GetUsage(ctx context.Context, accountId, monthKey string) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := s.db.QueryRowContext(ctx, queryGetUsageCounter, accountId, monthKey).Scan(
		&counter.AccountId, &counter.MonthKey, &counter.MemorySaves, &counter.MemorySavesWithMedia,
		&counter.AISearches, &counter.CreatedAt, &counter.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// No row yet means nothing used this month
		return &models.UsageCounter{AccountId: accountId, MonthKey: monthKey}, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get usage counter: %w", err))
	}
	return &counter, nil
}

// buildIncrement renders the conditional UPDATE. Column names come from the
// closed store.UsageField set, never from caller input.
func buildIncrement(accountId, monthKey string, now time.Time, checks []store.CapCheck) (string, []any, error) {
	sets := make([]string, 0, len(checks)+1)
	conds := make([]string, 0, len(checks))
	capArgs := make([]any, 0, len(checks))
	seen := make(map[store.UsageField]bool, len(checks))

	for _, check := range checks {
		if !check.Field.Valid() {
			return "", nil, fmt.Errorf("unknown usage field %q", check.Field)
		}
		if seen[check.Field] {
			return "", nil, fmt.Errorf("usage field %q checked twice", check.Field)
		}
		seen[check.Field] = true
		col := string(check.Field)
		sets = append(sets, fmt.Sprintf("%s = %s + 1", col, col))
		conds = append(conds, fmt.Sprintf("%s < ?", col))
		capArgs = append(capArgs, check.Cap)
	}
	sets = append(sets, "updated_at = ?")

	query := fmt.Sprintf("UPDATE usage_counters SET %s WHERE account_id = ? AND month_key = ? AND %s",
		strings.Join(sets, ", "), strings.Join(conds, " AND "))

	args := make([]any, 0, len(capArgs)+3)
	args = append(args, now, accountId, monthKey)
	args = append(args, capArgs...)
	return query, args, nil
}

func describeChecks(checks []store.CapCheck) string {
	parts := make([]string, len(checks))
	for i, c := range checks {
		parts[i] = fmt.Sprintf("%s<%d", c.Field, c.Cap)
	}
	return strings.Join(parts, ",")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
