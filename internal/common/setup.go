package common

import (
	"context"
	"log"
	"strings"

	"memory-credits-go/internal/api"
	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/database"
	"memory-credits-go/internal/entitlement"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/premium"
	"memory-credits-go/internal/settlement"
	"memory-credits-go/internal/signature"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Catalog    *policy.Catalog
	Clock      clock.Clock
	Premium    *premium.Manager
	Gate       *entitlement.Gate
	Settlement *settlement.Handler
	Ledger     *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database, loads the action policy and wires
// the gate, premium manager and settlement handler behind the ledger API.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	return initializeServices(ctx, cfg, clock.Real())
}

func initializeServices(ctx context.Context, cfg *models.Config, c clock.Clock) (*Services, error) {
	zap.L().Info("Loading entitlement policy", zap.String("file", cfg.Entitlements.PolicyFile))
	catalog, err := policy.Load(cfg.Entitlements.PolicyFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Payments.KeySecret == "" {
		zap.L().Warn("RAZORPAY_KEY_SECRET is not set; checkout confirmations will be rejected")
	}
	if cfg.Payments.WebhookSecret == "" {
		zap.L().Warn("RAZORPAY_WEBHOOK_SECRET is not set; webhook deliveries will be rejected")
	}

	premiumManager := premium.NewManager(dbService, c)
	gate := entitlement.NewGate(dbService, premiumManager, catalog, c, cfg.Entitlements.ReservationTTL)
	verifier := signature.NewVerifier(cfg.Payments.KeySecret, cfg.Payments.WebhookSecret)
	settlementHandler := settlement.NewHandler(dbService, verifier, catalog, c)

	ledger := api.NewLedgerService(api.LedgerServiceConfig{
		Store:         dbService,
		Gate:          gate,
		Premium:       premiumManager,
		Settlement:    settlementHandler,
		Catalog:       catalog,
		Clock:         c,
		SignupCredits: cfg.Entitlements.SignupCredits,
	})

	return &Services{
		DbService:  dbService,
		Catalog:    catalog,
		Clock:      c,
		Premium:    premiumManager,
		Gate:       gate,
		Settlement: settlementHandler,
		Ledger:     ledger,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
