package store

import (
	"context"
	"errors"
	"time"

	"memory-credits-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrInsufficientFunds      = errors.New("insufficient credits")
	ErrCapExceeded            = errors.New("monthly usage cap exceeded")
	ErrAlreadyApplied         = errors.New("idempotency key already applied")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("account already exists")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationClosed      = errors.New("reservation already closed")
	ErrPaymentMismatch        = errors.New("payment already settled with different parameters")
	ErrBalanceOverflow        = errors.New("credit would overflow balance")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderExists            = errors.New("order already registered")
)

// UsageField names a capped counter column. The set is closed; see policy.
type UsageField string

const (
	FieldMemorySaves          UsageField = "memory_saves"
	FieldMemorySavesWithMedia UsageField = "memory_saves_with_media"
	FieldAISearches           UsageField = "ai_searches"
)

// Valid reports whether f is one of the known counter columns.
func (f UsageField) Valid() bool {
	switch f {
	case FieldMemorySaves, FieldMemorySavesWithMedia, FieldAISearches:
		return true
	}
	return false
}

// CapCheck pairs a counter with the ceiling it must stay under.
type CapCheck struct {
	Field UsageField
	Cap   int64
}

// CreateAccountParams contains the parameters for opening an account.
type CreateAccountParams struct {
	AccountId      string
	Name           string
	Email          string
	InitialCredits int64
	Now            time.Time
}

// DebitParams contains the parameters for an atomic debit.
type DebitParams struct {
	AccountId      string
	Amount         int64
	ActionType     string
	Description    string
	IdempotencyKey string // optional
	Now            time.Time
}

// CreditParams contains the parameters for an idempotent credit.
type CreditParams struct {
	AccountId      string
	Amount         int64
	ActionType     string
	Description    string
	IdempotencyKey string
	Now            time.Time
}

// MeteredDebitParams pairs a debit with the capped counters it consumes.
// Checks may be empty for accounts that are not capped.
type MeteredDebitParams struct {
	Debit    DebitParams
	MonthKey string
	Checks   []CapCheck
}

// CreateOrderParams records what a gateway order grants once it is paid.
type CreateOrderParams struct {
	OrderId     string
	AccountId   string
	PackId      string
	Credits     int64
	PremiumDays int
	Amount      decimal.Decimal
	Currency    string
	Now         time.Time
}

// ApplyPaymentParams captures a verified gateway payment to settle. The grant
// comes from the registered order; Amount, when set, is the gateway-reported
// amount and must match the order.
type ApplyPaymentParams struct {
	PaymentId   string
	OrderId     string
	Amount      decimal.Decimal
	Description string
	Now         time.Time
}

// ReserveParams contains the parameters for holding a debit.
type ReserveParams struct {
	AccountId   string
	Amount      int64
	ActionType  string
	Description string
	ExpiresAt   time.Time
	Now         time.Time
}

// LedgerStore holds balances and the append-only credit history.
type LedgerStore interface {
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// TryDebit returns ErrInsufficientFunds without writing when amount exceeds the balance.
	TryDebit(ctx context.Context, params DebitParams) (*models.LedgerEntry, error)
	// Credit returns ErrAlreadyApplied when the idempotency key was already used.
	Credit(ctx context.Context, params CreditParams) (*models.LedgerEntry, error)

	GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileAccount(ctx context.Context, accountId string) error
}

// UsageStore holds per-month freemium counters.
type UsageStore interface {
	// TryIncrement bumps every checked field by one, or none of them with ErrCapExceeded.
	TryIncrement(ctx context.Context, accountId, monthKey string, now time.Time, checks ...CapCheck) error
	// MeteredDebit runs TryIncrement and TryDebit in one transaction, after
	// the idempotency key check.
	MeteredDebit(ctx context.Context, params MeteredDebitParams) (*models.LedgerEntry, error)
	GetUsage(ctx context.Context, accountId, monthKey string) (*models.UsageCounter, error)
}

// PremiumStore persists premium transitions.
type PremiumStore interface {
	// ExpirePremium flips a premium account whose expiry is before now. It
	// reports whether a transition was written.
	ExpirePremium(ctx context.Context, accountId string, now time.Time) (bool, error)
	ActivatePremium(ctx context.Context, accountId string, period time.Duration, now time.Time) (*models.Account, error)
}

// PaymentStore registers gateway orders and settles their payments.
type PaymentStore interface {
	// CreateOrder returns ErrOrderExists for a reused order id.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*models.Order, error)
	GetOrder(ctx context.Context, orderId string) (*models.Order, error)

	// ApplyPayment grants the order's credits and premium days and records
	// the payment in one transaction. A repeated payment id returns the
	// stored record and ErrAlreadyApplied; an order is paid at most once.
	ApplyPayment(ctx context.Context, params ApplyPaymentParams) (*models.PaymentRecord, *models.LedgerEntry, error)
	GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error)
}

// ReservationStore holds two-phase debits.
type ReservationStore interface {
	CreateReservation(ctx context.Context, params ReserveParams) (*models.Reservation, *models.LedgerEntry, error)
	GetReservation(ctx context.Context, reservationId string) (*models.Reservation, error)
	CommitReservation(ctx context.Context, reservationId string, now time.Time) (*models.Reservation, error)
	// ReleaseReservation refunds a held reservation and closes it with status.
	ReleaseReservation(ctx context.Context, reservationId, status string, now time.Time) (*models.Reservation, *models.LedgerEntry, error)
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

// Store is the full contract the SQLite backend satisfies.
type Store interface {
	LedgerStore
	UsageStore
	PremiumStore
	PaymentStore
	ReservationStore

	Ping(ctx context.Context) error
	Close()
}
