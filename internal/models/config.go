package models

import "time"

// Config represents the application configuration
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Payments     PaymentsConfig
	Entitlements EntitlementsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	EnableH2C       bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// PaymentsConfig holds the gateway shared secrets
type PaymentsConfig struct {
	KeySecret     string
	WebhookSecret string
}

// EntitlementsConfig holds policy and reservation settings
type EntitlementsConfig struct {
	PolicyFile     string
	SignupCredits  int64
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
}
