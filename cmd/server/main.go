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
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"memory-credits-go/internal/common"
	"memory-credits-go/internal/config"
	"memory-credits-go/internal/httpapi"
	"memory-credits-go/internal/sweeper"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zap.L().Info("Starting memory credits server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	reservationSweeper := sweeper.NewReservationSweeper(sweeper.ReservationSweeperConfig{
		Store:           services.DbService,
		Clock:           services.Clock,
		PollingInterval: cfg.Entitlements.SweepInterval,
		BatchSize:       cfg.Entitlements.SweepBatchSize,
	})
	if err := reservationSweeper.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start reservation sweeper", zap.Error(err))
	}

	var handler http.Handler = httpapi.NewServer(services.Ledger).Handler()
	if cfg.Server.EnableH2C {
		// Cleartext HTTP/2 for callers behind a TLS-terminating proxy
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("HTTP server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("h2c", cfg.Server.EnableH2C))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		zap.L().Info("Shutdown signal received, stopping server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		err := server.Shutdown(shutdownCtx)
		reservationSweeper.Stop()
		if err != nil {
			zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
			return err
		}
		zap.L().Info("Server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Server exited with error", zap.Error(err))
	}
}
