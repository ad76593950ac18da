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

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionSignupGrant is the ledger action recorded for the opening balance.
const ActionSignupGrant = "signup_grant"

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	zap.L().Debug("Querying accounts")

	rows, err := s.db.QueryContext(ctx, queryListAccounts)
	if err != nil {
		zap.L().Error("Failed to query accounts", zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query accounts: %w", err))
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			zap.L().Error("Failed to scan account row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during account row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	zap.L().Debug("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	zap.L().Debug("Querying account by ID", zap.String("account_id", accountId))

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountId)
		}
		zap.L().Error("Failed to query account by ID", zap.String("account_id", accountId), zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query account by ID: %w", err))
	}

	return account, nil
}

func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	zap.L().Debug("Querying account by email", zap.String("email", email))

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, email)
		}
		zap.L().Error("Failed to query account by email", zap.String("email", email), zap.Error(err))
		return nil, classify(fmt.Errorf("unable to query account by email: %w", err))
	}

	return account, nil
}

// CreateAccount opens an account in the freemium state. The opening balance
// goes through the subledger so the history sums to the cached balance.
func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	if params.AccountId == "" {
		params.AccountId = uuid.New().String()
	}
	if params.InitialCredits < 0 {
		return nil, fmt.Errorf("initial credits cannot be negative, got %d", params.InitialCredits)
	}

	zap.L().Info("Creating account",
		zap.String("account_id", params.AccountId),
		zap.String("email", params.Email),
		zap.Int64("initial_credits", params.InitialCredits))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, queryInsertAccount, params.AccountId, params.Name, params.Email, params.Now, params.Now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", store.ErrAccountExists, params.Email)
			}
			return fmt.Errorf("unable to insert account: %w", err)
		}

		if params.InitialCredits == 0 {
			return nil
		}
		_, err = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:   params.AccountId,
			ActionType:  ActionSignupGrant,
			Delta:       params.InitialCredits,
			Description: "Opening balance",
			Now:         params.Now,
		})
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrAccountExists) {
			zap.L().Error("Failed to create account", zap.String("email", params.Email), zap.Error(err))
		}
		return nil, err
	}

	zap.L().Info("Account created successfully",
		zap.String("account_id", params.AccountId),
		zap.String("email", params.Email))

	return s.GetAccount(ctx, params.AccountId)
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var premiumExpiresAt sql.NullInt64
	err := row.Scan(&account.Id, &account.Name, &account.Email, &account.Credits,
		&account.IsPremium, &premiumExpiresAt, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.PremiumExpiresAt = millisToTime(premiumExpiresAt)
	return &account, nil
}
