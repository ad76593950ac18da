package premium

import (
	"context"
	"fmt"
	"time"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// State is the entitlement tier of an account.
type State string

const (
	StateFreemium State = "freemium"
	StatePremium  State = "premium"
)

// StateOf evaluates the tier at now without trusting a stale premium flag.
func StateOf(account *models.Account, now time.Time) State {
	if account.PremiumActive(now) {
		return StatePremium
	}
	return StateFreemium
}

// AccountStore is the slice of the store the manager needs.
type AccountStore interface {
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	store.PremiumStore
}

// Manager moves accounts between freemium and premium. Expiry is applied
// lazily on access rather than by a background job.
type Manager struct {
	store AccountStore
	clock clock.Clock
}

func NewManager(accounts AccountStore, c clock.Clock) *Manager {
	return &Manager{store: accounts, clock: c}
}

// Refresh loads the account and, if its premium period has lapsed, writes
// the transition back before returning it. It must run before any cap check
// or debit in the same request.
func (m *Manager) Refresh(ctx context.Context, accountId string) (*models.Account, error) {
	account, err := m.store.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if !account.PremiumExpired(now) {
		return account, nil
	}

	transitioned, err := m.store.ExpirePremium(ctx, accountId, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire premium: %w", err)
	}
	if transitioned {
		metrics.PremiumExpirationsTotal.Inc()
		zap.L().Info("Account moved to freemium",
			zap.String("account_id", accountId),
			zap.Timep("premium_expired_at", account.PremiumExpiresAt))
	}

	return m.store.GetAccount(ctx, accountId)
}

// Activate grants or extends premium for the given number of days.
func (m *Manager) Activate(ctx context.Context, accountId string, days int) (*models.Account, error) {
	if days <= 0 {
		return nil, fmt.Errorf("premium days must be positive, got %d", days)
	}
	return m.store.ActivatePremium(ctx, accountId, time.Duration(days)*24*time.Hour, m.clock.Now())
}

// Status is the read-only premium view of an account.
type Status struct {
	State     State
	ExpiresAt *time.Time
}

// Status refreshes the account and reports its tier.
func (m *Manager) Status(ctx context.Context, accountId string) (*Status, error) {
	account, err := m.Refresh(ctx, accountId)
	if err != nil {
		return nil, err
	}
	status := &Status{State: StateOf(account, m.clock.Now())}
	if status.State == StatePremium {
		status.ExpiresAt = account.PremiumExpiresAt
	}
	return status, nil
}
