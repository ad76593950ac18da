package premium

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/database"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func setupManager(t *testing.T) (*Manager, *database.Service, *clock.FakeClock) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "premium.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateAccount(context.Background(), store.CreateAccountParams{
		AccountId:      "acct1",
		Email:          "acct1@example.com",
		InitialCredits: 10,
		Now:            start,
	})
	require.NoError(t, err)

	c := clock.NewFakeClock(start)
	return NewManager(db, c), db, c
}

func TestRefresh_Freemium(t *testing.T) {
	manager, _, _ := setupManager(t)

	account, err := manager.Refresh(context.Background(), "acct1")
	require.NoError(t, err)
	assert.False(t, account.IsPremium)
	assert.Equal(t, StateFreemium, StateOf(account, start))
}

func TestRefresh_ExpiresLapsedPremium(t *testing.T) {
	manager, db, c := setupManager(t)
	ctx := context.Background()

	_, err := manager.Activate(ctx, "acct1", 30)
	require.NoError(t, err)

	c.Advance(29 * 24 * time.Hour)
	account, err := manager.Refresh(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.IsPremium)

	c.Advance(2 * 24 * time.Hour)
	account, err = manager.Refresh(ctx, "acct1")
	require.NoError(t, err)
	assert.False(t, account.IsPremium)
	assert.Nil(t, account.PremiumExpiresAt)

	stored, err := db.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.False(t, stored.IsPremium, "transition must be persisted")
}

func TestStatus(t *testing.T) {
	manager, _, c := setupManager(t)
	ctx := context.Background()

	status, err := manager.Status(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, StateFreemium, status.State)
	assert.Nil(t, status.ExpiresAt)

	_, err = manager.Activate(ctx, "acct1", 7)
	require.NoError(t, err)

	status, err = manager.Status(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, StatePremium, status.State)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.Equal(start.Add(7*24*time.Hour)))

	c.Advance(8 * 24 * time.Hour)
	status, err = manager.Status(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, StateFreemium, status.State)
}

func TestActivate_RejectsNonPositive(t *testing.T) {
	manager, _, _ := setupManager(t)

	_, err := manager.Activate(context.Background(), "acct1", 0)
	assert.Error(t, err)
}

func TestRefresh_UnknownAccount(t *testing.T) {
	manager, _, _ := setupManager(t)

	_, err := manager.Refresh(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestStateOf_StaleFlag(t *testing.T) {
	expired := start.Add(-time.Minute)
	account := &models.Account{IsPremium: true, PremiumExpiresAt: &expired}
	assert.Equal(t, StateFreemium, StateOf(account, start))

	open := &models.Account{IsPremium: true}
	assert.Equal(t, StatePremium, StateOf(open, start))
}
