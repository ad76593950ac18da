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

package main

import (
	"context"
	"flag"
	"fmt"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/common"
	"memory-credits-go/internal/config"
	"memory-credits-go/internal/database"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

type reportStats struct {
	totalAccounts   int
	premiumAccounts int
	totalCredits    int64
	driftedAccounts int
}

func tierOf(account *models.Account, c clock.Clock) string {
	if account.PremiumActive(c.Now()) {
		return "premium (expires " + common.FormatExpiry(account.PremiumExpiresAt) + ")"
	}
	return "freemium"
}

func printAccountHeader(info common.AccountInfo, account *models.Account, c clock.Clock) {
	fmt.Printf("\n┌─ Account: %s (%s)\n", info.Name, info.Email)
	fmt.Printf("│  ID: %s\n", info.Id)
	fmt.Printf("│  Tier: %s\n", tierOf(account, c))
	common.PrintBoxSeparator(78)
}

func printUsage(usage *models.UsageCounter, catalog *policy.Catalog, reconciled string) {
	fmt.Printf("%s %-24s: %s\n", common.BoxPrefix(false), "month", usage.MonthKey)
	fmt.Printf("%s %-24s: %s\n", common.BoxPrefix(false), store.FieldMemorySaves,
		common.FormatUsage(usage.MemorySaves, catalog.Cap(store.FieldMemorySaves)))
	fmt.Printf("%s %-24s: %s\n", common.BoxPrefix(false), store.FieldMemorySavesWithMedia,
		common.FormatUsage(usage.MemorySavesWithMedia, catalog.Cap(store.FieldMemorySavesWithMedia)))
	fmt.Printf("%s %-24s: %s\n", common.BoxPrefix(reconciled == ""), store.FieldAISearches,
		common.FormatUsage(usage.AISearches, catalog.Cap(store.FieldAISearches)))
	if reconciled != "" {
		fmt.Printf("%s %-24s: %s\n", common.BoxPrefix(true), "ledger", reconciled)
	}
}

func processAccount(ctx context.Context, info common.AccountInfo, dbService *database.Service, catalog *policy.Catalog, c clock.Clock, reconcile bool, stats *reportStats) error {
	account, err := dbService.GetAccount(ctx, info.Id)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	usage, err := dbService.GetUsage(ctx, info.Id, clock.MonthKey(c.Now()))
	if err != nil {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	var lastEntry string
	entries, err := dbService.GetLedgerEntries(ctx, info.Id, 1, 0)
	if err != nil {
		return fmt.Errorf("failed to get ledger entries: %w", err)
	}
	if len(entries) > 0 {
		lastEntry = entries[0].Id
	}

	var reconciled string
	if reconcile {
		reconciled = "ok"
		if err := dbService.ReconcileAccount(ctx, info.Id); err != nil {
			zap.L().Warn("Ledger drift detected",
				zap.String("account_id", info.Id),
				zap.Error(err))
			reconciled = "DRIFT: " + err.Error()
			stats.driftedAccounts++
		}
	}

	printAccountHeader(info, account, c)
	fmt.Printf("%s %-24s: %d (v%d, last_entry: %s, updated: %s)\n",
		common.BoxPrefix(false),
		"credits",
		account.Credits,
		account.Version,
		common.ShortId(lastEntry),
		account.UpdatedAt.Format("2006-01-02 15:04:05"))
	printUsage(usage, catalog, reconciled)

	stats.totalCredits += account.Credits
	if account.PremiumActive(c.Now()) {
		stats.premiumAccounts++
	}
	return nil
}

func processAccountsAndGenerateReport(ctx context.Context, accounts []common.AccountInfo, dbService *database.Service, catalog *policy.Catalog, reconcile bool, logger *zap.Logger) reportStats {
	stats := reportStats{}
	c := clock.Real()

	for _, info := range accounts {
		stats.totalAccounts++

		if err := processAccount(ctx, info, dbService, catalog, c, reconcile, &stats); err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", info.Id),
				zap.String("email", info.Email),
				zap.Error(err))
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific account email (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Check each cached balance against its ledger history")
	flag.Parse()

	logger.Info("Starting credit report")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	catalog, err := policy.Load(cfg.Entitlements.PolicyFile)
	if err != nil {
		logger.Fatal("Failed to load policy", zap.Error(err))
	}

	// Read-only report; the gate and settlement handler are not needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := common.InitializeAccounts(ctx, dbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT CREDIT REPORT", common.DefaultWidth)

	stats := processAccountsAndGenerateReport(ctx, accounts, dbService, catalog, *reconcileFlag, logger)

	summary := fmt.Sprintf("SUMMARY: %d accounts, %d premium, %d credits outstanding",
		stats.totalAccounts, stats.premiumAccounts, stats.totalCredits)
	if *reconcileFlag {
		summary += fmt.Sprintf(", %d with ledger drift", stats.driftedAccounts)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Credit report completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("premium_accounts", stats.premiumAccounts),
		zap.Int64("total_credits", stats.totalCredits),
		zap.Int("drifted_accounts", stats.driftedAccounts))
}
