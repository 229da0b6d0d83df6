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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"institutional-custody-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	recoveryTTL, err := getEnvDuration("RECOVERY_REQUEST_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}

	claimTimeout, err := getEnvDuration("EXECUTION_CLAIM_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("SWEEPER_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:             getEnvString("DATABASE_PATH", "custody.db"),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			BusyTimeout:      busyTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Custody: models.CustodyConfig{
			DefaultExpiresInHours: getEnvInt("TX_DEFAULT_EXPIRES_HOURS", 24),
			MaxUpdateAttempts:     getEnvInt("MAX_UPDATE_ATTEMPTS", 3),
			ExecutionClaimTimeout: claimTimeout,
			RecoveryRequestTTL:    recoveryTTL,
			MinTimeLockDays:       getEnvInt("RECOVERY_MIN_TIME_LOCK_DAYS", 1),
			MaxTimeLockDays:       getEnvInt("RECOVERY_MAX_TIME_LOCK_DAYS", 30),
			DefaultTimeLockDays:   getEnvInt("RECOVERY_DEFAULT_TIME_LOCK_DAYS", 7),
			PresetsFile:           getEnvString("WALLET_PRESETS_FILE", "presets.yaml"),
		},
		Sweeper: models.SweeperConfig{
			Interval: sweepInterval,
		},
		Prime: models.PrimeConfig{
			PortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
