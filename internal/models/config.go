package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Custody  CustodyConfig
	Sweeper  SweeperConfig
	Prime    PrimeConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// CustodyConfig holds workflow defaults and bounds
type CustodyConfig struct {
	DefaultExpiresInHours int
	MaxUpdateAttempts     int
	ExecutionClaimTimeout time.Duration
	RecoveryRequestTTL    time.Duration
	MinTimeLockDays       int
	MaxTimeLockDays       int
	DefaultTimeLockDays   int
	PresetsFile           string
}

// SweeperConfig holds expiry sweeper settings
type SweeperConfig struct {
	Interval time.Duration
}

// PrimeConfig holds Coinbase Prime broadcast settings
type PrimeConfig struct {
	PortfolioId string
}
