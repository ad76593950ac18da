/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubledgerService owns the append-only credit history and the single
// code path that moves an account balance.
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

func (s *SubledgerService) InitSchema() error {
	schema := `
	-- Ledger Entries Table (Audit Trail - Cold Data)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		action_type TEXT NOT NULL,
		credits_delta INTEGER NOT NULL,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		description TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		reservation_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	-- Performance Indexes for Ledger Entries
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_action ON ledger_entries(action_type);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reservation ON ledger_entries(reservation_id);

	-- Entries are immutable once written
	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_update
	BEFORE UPDATE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger entries are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_delete
	BEFORE DELETE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger entries are append-only');
	END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// entryParams contains the parameters for appending one ledger entry
type entryParams struct {
	AccountId      string
	ActionType     string
	Delta          int64
	Description    string
	IdempotencyKey string
	ReservationId  string
	Now            time.Time
}

// applyEntry moves the account balance by Delta and appends the matching
// entry. It must run inside the caller's transaction; the balance row is
// version-checked so a concurrent writer surfaces as ErrConcurrentModification
// instead of a lost update.
func (s *SubledgerService) applyEntry(ctx context.Context, tx *sql.Tx, params entryParams) (*models.LedgerEntry, error) {
	if params.IdempotencyKey != "" {
		existing, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryByIdempotencyKey, params.IdempotencyKey))
		if err == nil {
			zap.L().Info("Idempotency key already applied, skipping",
				zap.String("idempotency_key", params.IdempotencyKey),
				zap.String("existing_entry_id", existing.Id))
			return existing, fmt.Errorf("%w: %s", store.ErrAlreadyApplied, params.IdempotencyKey)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	var currentBalance, version int64
	err := tx.QueryRowContext(ctx, queryGetAccountBalance, params.AccountId).Scan(&currentBalance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, params.AccountId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	if params.Delta > 0 && params.Delta > math.MaxInt64-currentBalance {
		return nil, fmt.Errorf("%w: balance %d, credit %d", store.ErrBalanceOverflow, currentBalance, params.Delta)
	}

	newBalance := currentBalance + params.Delta
	if newBalance < 0 {
		return nil, fmt.Errorf("%w: balance %d, requested %d", store.ErrInsufficientFunds, currentBalance, -params.Delta)
	}

	entry := &models.LedgerEntry{
		Id:             uuid.New().String(),
		AccountId:      params.AccountId,
		ActionType:     params.ActionType,
		CreditsDelta:   params.Delta,
		BalanceBefore:  currentBalance,
		BalanceAfter:   newBalance,
		Description:    params.Description,
		IdempotencyKey: params.IdempotencyKey,
		ReservationId:  params.ReservationId,
		CreatedAt:      params.Now,
	}

	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		entry.Id, entry.AccountId, entry.ActionType, entry.CreditsDelta,
		entry.BalanceBefore, entry.BalanceAfter, entry.Description,
		nullableString(entry.IdempotencyKey), entry.ReservationId, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrAlreadyApplied, params.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, newBalance, params.Now, params.AccountId, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	return entry, nil
}

// GetLedgerEntries returns paginated history for an account, newest first
func (s *SubledgerService) GetLedgerEntries(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger entries",
		zap.String("account_id", accountId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetLedgerEntries, accountId, limit, offset)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get ledger entries: %w", err))
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger entry row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}

	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var idempotencyKey sql.NullString
	err := row.Scan(&entry.Id, &entry.AccountId, &entry.ActionType, &entry.CreditsDelta,
		&entry.BalanceBefore, &entry.BalanceAfter, &entry.Description,
		&idempotencyKey, &entry.ReservationId, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.IdempotencyKey = idempotencyKey.String
	return &entry, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
