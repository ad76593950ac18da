package sweeper

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

var start = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func setupSweeper(t *testing.T, batchSize int) (*ReservationSweeper, *database.Service, *clock.FakeClock) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "sweeper.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateAccount(context.Background(), store.CreateAccountParams{
		AccountId:      "acct1",
		Email:          "acct1@example.com",
		InitialCredits: 20,
		Now:            start,
	})
	require.NoError(t, err)

	c := clock.NewFakeClock(start)
	s := NewReservationSweeper(ReservationSweeperConfig{
		Store:           db,
		Clock:           c,
		PollingInterval: time.Hour,
		BatchSize:       batchSize,
	})
	return s, db, c
}

func hold(t *testing.T, db *database.Service, credits int64, ttl time.Duration) *models.Reservation {
	t.Helper()
	reservation, _, err := db.CreateReservation(context.Background(), store.ReserveParams{
		AccountId:  "acct1",
		Amount:     credits,
		ActionType: "ai_search",
		ExpiresAt:  start.Add(ttl),
		Now:        start,
	})
	require.NoError(t, err)
	return reservation
}

func TestSweepOnce_RefundsExpired(t *testing.T) {
	s, db, c := setupSweeper(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		hold(t, db, 2, time.Minute)
	}
	live := hold(t, db, 3, time.Hour)

	account, _ := db.GetAccount(ctx, "acct1")
	require.Equal(t, int64(7), account.Credits)

	released, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released, "nothing has expired yet")

	c.Advance(2 * time.Minute)
	released, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, released)

	account, _ = db.GetAccount(ctx, "acct1")
	assert.Equal(t, int64(17), account.Credits)

	stored, err := db.GetReservation(ctx, live.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationHeld, stored.Status)

	released, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.NoError(t, db.ReconcileAccount(ctx, "acct1"))
}

func TestSweepOnce_SkipsCommitted(t *testing.T) {
	s, db, c := setupSweeper(t, 10)
	ctx := context.Background()

	committed := hold(t, db, 4, time.Minute)
	_, err := db.CommitReservation(ctx, committed.Id, start)
	require.NoError(t, err)

	c.Advance(time.Hour)
	released, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	account, _ := db.GetAccount(ctx, "acct1")
	assert.Equal(t, int64(16), account.Credits)
}

func TestStartStop(t *testing.T) {
	s, db, c := setupSweeper(t, 10)
	ctx := context.Background()

	expired := hold(t, db, 5, time.Minute)
	c.Advance(time.Hour)

	require.NoError(t, s.Start(ctx))
	s.Stop()

	stored, err := db.GetReservation(ctx, expired.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationExpired, stored.Status)
	assert.NotEmpty(t, stored.RefundEntryId)
}
