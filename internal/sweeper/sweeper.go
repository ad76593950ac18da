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

package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// ReservationSweeperConfig contains configuration for ReservationSweeper
type ReservationSweeperConfig struct {
	Store           store.ReservationStore
	Clock           clock.Clock
	PollingInterval time.Duration
	BatchSize       int
}

// ReservationSweeper refunds held reservations whose deadline has passed
type ReservationSweeper struct {
	store           store.ReservationStore
	clock           clock.Clock
	pollingInterval time.Duration
	batchSize       int

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewReservationSweeper creates a new reservation sweeper
func NewReservationSweeper(cfg ReservationSweeperConfig) *ReservationSweeper {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ReservationSweeper{
		store:           cfg.Store,
		clock:           cfg.Clock,
		pollingInterval: cfg.PollingInterval,
		batchSize:       cfg.BatchSize,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start performs a recovery sweep for holds that lapsed while the process was
// down, then keeps polling in the background.
func (s *ReservationSweeper) Start(ctx context.Context) error {
	zap.L().Info("Starting reservation sweeper")

	if _, err := s.SweepOnce(ctx); err != nil {
		zap.L().Error("Startup sweep failed", zap.Error(err))
		return fmt.Errorf("startup sweep failed: %w", err)
	}

	go s.pollLoop(ctx)

	zap.L().Info("Reservation sweeper started successfully",
		zap.Duration("polling_interval", s.pollingInterval),
		zap.Int("batch_size", s.batchSize))
	return nil
}

// Stop gracefully stops the sweeper
func (s *ReservationSweeper) Stop() {
	zap.L().Info("Stopping reservation sweeper")
	close(s.stopChan)
	<-s.doneChan
	zap.L().Info("Reservation sweeper stopped")
}

func (s *ReservationSweeper) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				zap.L().Error("Reservation sweep failed", zap.Error(err))
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce releases expired holds in batches until none remain and returns
// how many were refunded. A hold closed concurrently by its owner is skipped.
func (s *ReservationSweeper) SweepOnce(ctx context.Context) (int, error) {
	var released int
	for {
		now := s.clock.Now()
		expired, err := s.store.ListExpiredReservations(ctx, now, s.batchSize)
		if err != nil {
			return released, fmt.Errorf("failed to list expired reservations: %w", err)
		}
		if len(expired) == 0 {
			break
		}

		progressed := false
		for _, reservation := range expired {
			if err := s.release(ctx, reservation, now); err != nil {
				if errors.Is(err, store.ErrReservationClosed) {
					zap.L().Debug("Reservation closed before sweep",
						zap.String("reservation_id", reservation.Id))
					progressed = true
					continue
				}
				return released, err
			}
			released++
			progressed = true
		}

		if !progressed || len(expired) < s.batchSize {
			break
		}
	}

	if released > 0 {
		zap.L().Info("Expired reservations refunded", zap.Int("count", released))
	}
	return released, nil
}

func (s *ReservationSweeper) release(ctx context.Context, reservation models.Reservation, now time.Time) error {
	_, refund, err := s.store.ReleaseReservation(ctx, reservation.Id, models.ReservationExpired, now)
	if err != nil {
		return err
	}
	metrics.ReservationsReleasedTotal.WithLabelValues(models.ReservationExpired).Inc()
	zap.L().Info("Reservation expired and refunded",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", reservation.AccountId),
		zap.Int64("credits", reservation.Credits),
		zap.String("refund_entry_id", refund.Id))
	return nil
}
