package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// ExpirePremium flips an expired premium account back to freemium. The
// condition lives in the UPDATE itself, so concurrent callers race safely and
// only one of them reports the transition.
func (s *Service) ExpirePremium(ctx context.Context, accountId string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryExpirePremium, now, accountId, now.UnixMilli())
	if err != nil {
		return false, classify(fmt.Errorf("failed to expire premium: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Info("Premium period expired",
			zap.String("account_id", accountId),
			zap.Time("at", now))
	}
	return rowsAffected > 0, nil
}

// ActivatePremium starts a premium period, or extends one that is still live.
func (s *Service) ActivatePremium(ctx context.Context, accountId string, period time.Duration, now time.Time) (*models.Account, error) {
	if period <= 0 {
		return nil, fmt.Errorf("premium period must be positive, got %v", period)
	}

	var until time.Time
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		until, err = activatePremiumTx(ctx, tx, accountId, period, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Premium activated",
		zap.String("account_id", accountId),
		zap.Time("expires_at", until))
	return s.GetAccount(ctx, accountId)
}

func activatePremiumTx(ctx context.Context, tx *sql.Tx, accountId string, period time.Duration, now time.Time) (time.Time, error) {
	var isPremium bool
	var expiresAt sql.NullInt64
	var version int64
	err := tx.QueryRowContext(ctx, queryGetPremiumState, accountId).Scan(&isPremium, &expiresAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountId)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read premium state: %w", err)
	}

	if isPremium && !expiresAt.Valid {
		// Open-ended premium is never shortened by a timed grant
		return time.Time{}, nil
	}

	start := now
	if current := millisToTime(expiresAt); isPremium && current != nil && current.After(now) {
		start = *current
	}
	until := start.Add(period).UTC()

	result, err := tx.ExecContext(ctx, queryActivatePremium, until.UnixMilli(), now, accountId, version)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to activate premium: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return time.Time{}, fmt.Errorf("premium update failed - %w", store.ErrConcurrentModification)
	}
	return until, nil
}
