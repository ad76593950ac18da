package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the cached credit balance and premium state for a user
type Account struct {
	Id               string     `db:"id"`
	Name             string     `db:"name"`
	Email            string     `db:"email"`
	Credits          int64      `db:"credits"`
	IsPremium        bool       `db:"is_premium"`
	PremiumExpiresAt *time.Time `db:"premium_expires_at"`
	Version          int64      `db:"version"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// PremiumActive reports whether the account holds premium privileges at now.
// A premium flag whose expiry has passed does not count, even before the
// lazy transition has been written back.
func (a *Account) PremiumActive(now time.Time) bool {
	if a == nil || !a.IsPremium {
		return false
	}
	if a.PremiumExpiresAt == nil {
		return true
	}
	return !now.After(*a.PremiumExpiresAt)
}

// PremiumExpired reports whether the stored premium flag is stale at now
func (a *Account) PremiumExpired(now time.Time) bool {
	return a != nil && a.IsPremium && a.PremiumExpiresAt != nil && now.After(*a.PremiumExpiresAt)
}

// LedgerEntry is an immutable row of the credit history (cold data)
type LedgerEntry struct {
	Id             string    `db:"id"`
	AccountId      string    `db:"account_id"`
	ActionType     string    `db:"action_type"`
	CreditsDelta   int64     `db:"credits_delta"`
	BalanceBefore  int64     `db:"balance_before"`
	BalanceAfter   int64     `db:"balance_after"`
	Description    string    `db:"description"`
	IdempotencyKey string    `db:"idempotency_key"`
	ReservationId  string    `db:"reservation_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// UsageCounter tracks capped freemium actions for one account and calendar month
type UsageCounter struct {
	AccountId            string    `db:"account_id"`
	MonthKey             string    `db:"month_key"`
	MemorySaves          int64     `db:"memory_saves"`
	MemorySavesWithMedia int64     `db:"memory_saves_with_media"`
	AISearches           int64     `db:"ai_searches"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// PaymentRecord is written once per settled gateway payment
type PaymentRecord struct {
	PaymentId      string          `db:"payment_id"`
	OrderId        string          `db:"order_id"`
	AccountId      string          `db:"account_id"`
	CreditsGranted int64           `db:"credits_granted"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	PremiumDays    int             `db:"premium_days"`
	LedgerEntryId  string          `db:"ledger_entry_id"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
}

const PaymentStatusSettled = "settled"

// Order states
const (
	OrderCreated = "created"
	OrderPaid    = "paid"
)

// Order is registered when a gateway order is created and fixes what its
// payment grants; the checkout callback cannot change it
type Order struct {
	OrderId     string          `db:"order_id"`
	AccountId   string          `db:"account_id"`
	PackId      string          `db:"pack_id"`
	Credits     int64           `db:"credits"`
	PremiumDays int             `db:"premium_days"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	Status      string          `db:"status"`
	PaymentId   string          `db:"payment_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Reservation states
const (
	ReservationHeld      = "held"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
	ReservationExpired   = "expired"
)

// Reservation is a debit held on behalf of an in-flight action until the
// caller commits it or it is released back to the balance
type Reservation struct {
	Id            string     `db:"id"`
	AccountId     string     `db:"account_id"`
	ActionType    string     `db:"action_type"`
	Credits       int64      `db:"credits"`
	Status        string     `db:"status"`
	DebitEntryId  string     `db:"debit_entry_id"`
	RefundEntryId string     `db:"refund_entry_id"`
	ExpiresAt     time.Time  `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
	ClosedAt      *time.Time `db:"closed_at"`
}
