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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageSummary reports the current month's capped counters for an account
type UsageSummary struct {
	Month                   string `json:"month"`
	MemorySaves             int64  `json:"memory_saves"`
	MemorySavesCap          int64  `json:"memory_saves_cap"`
	MemorySavesWithMedia    int64  `json:"memory_saves_with_media"`
	MemorySavesWithMediaCap int64  `json:"memory_saves_with_media_cap"`
	AISearches              int64  `json:"ai_searches"`
	AISearchesCap           int64  `json:"ai_searches_cap"`
	// Capped is false while premium waives the limits
	Capped bool `json:"capped"`
}

// AccountSummary is the read-only view of balance, tier and usage
type AccountSummary struct {
	AccountId        string       `json:"account_id"`
	Name             string       `json:"name,omitempty"`
	Email            string       `json:"email"`
	Credits          int64        `json:"credits"`
	State            string       `json:"state"` // "freemium", "premium"
	PremiumExpiresAt *time.Time   `json:"premium_expires_at,omitempty"`
	Usage            UsageSummary `json:"usage"`
}

// LedgerEntryRecord represents an entry in the account's credit history
type LedgerEntryRecord struct {
	Id            string    `json:"id"`
	ActionType    string    `json:"action_type"`
	CreditsDelta  int64     `json:"credits_delta"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description,omitempty"`
	ReservationId string    `json:"reservation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuthorizationResult represents the outcome of an entitlement check
type AuthorizationResult struct {
	Outcome       string     `json:"outcome"`
	Action        string     `json:"action"`
	Cost          int64      `json:"cost"`
	Balance       int64      `json:"balance"`
	EntryId       string     `json:"entry_id,omitempty"`
	Premium       bool       `json:"premium"`
	Replayed      bool       `json:"replayed,omitempty"`
	ReservationId string     `json:"reservation_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ReservationResult represents a reservation after commit or release
type ReservationResult struct {
	ReservationId string     `json:"reservation_id"`
	AccountId     string     `json:"account_id"`
	Status        string     `json:"status"`
	Credits       int64      `json:"credits"`
	RefundEntryId string     `json:"refund_entry_id,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// OrderResult represents a registered gateway order and the grant it carries
type OrderResult struct {
	OrderId     string          `json:"order_id"`
	AccountId   string          `json:"account_id"`
	PackId      string          `json:"pack_id,omitempty"`
	Credits     int64           `json:"credits"`
	PremiumDays int             `json:"premium_days,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Status      string          `json:"status"`
}

// SettlementResult represents the result of settling a payment
type SettlementResult struct {
	Status         string          `json:"status"` // "applied", "already_applied", "ignored"
	PaymentId      string          `json:"payment_id,omitempty"`
	AccountId      string          `json:"account_id,omitempty"`
	CreditsGranted int64           `json:"credits_granted"`
	PremiumDays    int             `json:"premium_days,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Balance        int64           `json:"balance"`
}
