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

package api

import (
	"context"
	"fmt"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/premium"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// CreateAccount opens an account with the configured signup balance
func (s *LedgerService) CreateAccount(ctx context.Context, name, email string) (*models.Account, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	account, err := s.db.CreateAccount(ctx, store.CreateAccountParams{
		Name:           name,
		Email:          email,
		InitialCredits: s.signupCredits,
		Now:            s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// ActivatePremium grants or extends premium for an account
func (s *LedgerService) ActivatePremium(ctx context.Context, accountId string, days int) (*models.Account, error) {
	account, err := s.premium.Activate(ctx, accountId, days)
	if err != nil {
		zap.L().Error("Failed to activate premium",
			zap.String("account_id", accountId),
			zap.Int("days", days),
			zap.Error(err))
		return nil, fmt.Errorf("failed to activate premium: %w", err)
	}
	return account, nil
}

// GetAccountSummary returns balance, tier and this month's usage. Reading the
// summary applies a pending premium expiry first.
func (s *LedgerService) GetAccountSummary(ctx context.Context, accountId string) (*models.AccountSummary, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}

	account, err := s.premium.Refresh(ctx, accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve account: %w", err)
	}

	now := s.clock.Now()
	month := clock.MonthKey(now)
	usage, err := s.db.GetUsage(ctx, accountId, month)
	if err != nil {
		zap.L().Error("Failed to get usage",
			zap.String("account_id", accountId),
			zap.String("month", month),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve usage: %w", err)
	}

	state := premium.StateOf(account, now)
	summary := &models.AccountSummary{
		AccountId: account.Id,
		Name:      account.Name,
		Email:     account.Email,
		Credits:   account.Credits,
		State:     string(state),
		Usage: models.UsageSummary{
			Month:                   month,
			MemorySaves:             usage.MemorySaves,
			MemorySavesCap:          s.catalog.Cap(store.FieldMemorySaves),
			MemorySavesWithMedia:    usage.MemorySavesWithMedia,
			MemorySavesWithMediaCap: s.catalog.Cap(store.FieldMemorySavesWithMedia),
			AISearches:              usage.AISearches,
			AISearchesCap:           s.catalog.Cap(store.FieldAISearches),
			Capped:                  state == premium.StateFreemium,
		},
	}
	if state == premium.StatePremium {
		summary.PremiumExpiresAt = account.PremiumExpiresAt
	}
	return summary, nil
}

// GetLedgerHistory returns the most recent entries for an account
func (s *LedgerService) GetLedgerHistory(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntryRecord, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.db.GetAccount(ctx, accountId); err != nil {
		return nil, fmt.Errorf("failed to retrieve account: %w", err)
	}

	entries, err := s.db.GetLedgerEntries(ctx, accountId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get ledger history",
			zap.String("account_id", accountId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger history: %w", err)
	}

	result := make([]models.LedgerEntryRecord, len(entries))
	for i, entry := range entries {
		result[i] = models.LedgerEntryRecord{
			Id:            entry.Id,
			ActionType:    entry.ActionType,
			CreditsDelta:  entry.CreditsDelta,
			BalanceAfter:  entry.BalanceAfter,
			Description:   entry.Description,
			ReservationId: entry.ReservationId,
			CreatedAt:     entry.CreatedAt,
		}
	}

	return result, nil
}
