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
	"memory-credits-go/internal/entitlement"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/premium"
	"memory-credits-go/internal/settlement"
	"memory-credits-go/internal/store"
)

// LedgerServiceConfig wires the ledger components together
type LedgerServiceConfig struct {
	Store         store.Store
	Gate          *entitlement.Gate
	Premium       *premium.Manager
	Settlement    *settlement.Handler
	Catalog       *policy.Catalog
	Clock         clock.Clock
	SignupCredits int64
}

// LedgerService is the caller-facing API over the credit ledger
type LedgerService struct {
	db            store.Store
	gate          *entitlement.Gate
	premium       *premium.Manager
	settlement    *settlement.Handler
	catalog       *policy.Catalog
	clock         clock.Clock
	signupCredits int64
}

func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &LedgerService{
		db:            cfg.Store,
		gate:          cfg.Gate,
		premium:       cfg.Premium,
		settlement:    cfg.Settlement,
		catalog:       cfg.Catalog,
		clock:         cfg.Clock,
		signupCredits: cfg.SignupCredits,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
