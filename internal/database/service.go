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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.UserDirectory.
var _ store.UserDirectory = (*Service)(nil)

// querier is the subset of *sql.DB and *sql.Tx the repository methods need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the repository methods. It runs either directly against the
// pool or inside a Tx.
type Queries struct {
	q querier
}

type Service struct {
	*Queries
	db *sql.DB
}

// Tx is a unit of work. Callers must Commit or Rollback; Rollback after
// Commit is a no-op so it is safe to defer.
type Tx struct {
	*Queries
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		zap.L().Warn("Failed to roll back transaction", zap.Error(err))
	}
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))

	// _txlock=immediate takes the write lock at BEGIN, which serializes
	// read-check-write units on the same rows across connections.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=%d",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := NewServiceWithDB(db)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, err
	}

	if cfg.CreateDummyUsers {
		service.createDummyUsers(ctx)
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already opened handle and ensures the schema exists.
func NewServiceWithDB(db *sql.DB) (*Service, error) {
	service := &Service{Queries: &Queries{q: db}, db: db}
	if err := service.InitSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a unit of work.
func (s *Service) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{Queries: &Queries{q: tx}, tx: tx}, nil
}

func (s *Service) InitSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Service) createDummyUsers(ctx context.Context) {
	users := []struct {
		id    string
		name  string
		email string
	}{
		{uuid.New().String(), "Alice Johnson", "alice.johnson@example.com"},
		{uuid.New().String(), "Bob Smith", "bob.smith@example.com"},
		{uuid.New().String(), "Carol Williams", "carol.williams@example.com"},
	}

	for _, user := range users {
		_, err := s.db.ExecContext(ctx, queryInsertUser, user.id, user.name, user.email)
		if err != nil {
			zap.L().Error("Failed to insert dummy user", zap.String("name", user.name), zap.Error(err))
		} else {
			zap.L().Info("Dummy user created", zap.String("id", user.id), zap.String("name", user.name))
		}
	}
}

const schema = `
	-- Platform users (identity directory)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	-- Institutional wallets
	CREATE TABLE IF NOT EXISTS institutional_wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_type TEXT NOT NULL,
		wallet_address TEXT NOT NULL DEFAULT '',
		chain_id INTEGER NOT NULL,
		multisig_type TEXT NOT NULL DEFAULT '',
		required_signatures INTEGER NOT NULL,
		total_signers INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		unlock_time TIMESTAMP,
		label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '{}',
		balance TEXT NOT NULL DEFAULT '0',
		balance_updated_at TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (required_signatures >= 1)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_user_id ON institutional_wallets(user_id);
	CREATE INDEX IF NOT EXISTS idx_wallets_status ON institutional_wallets(status);

	-- Signer association (wallet, user, role)
	CREATE TABLE IF NOT EXISTS wallet_signers (
		wallet_id TEXT NOT NULL REFERENCES institutional_wallets(id),
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (wallet_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_signers_user_id ON wallet_signers(user_id);

	-- Transactions awaiting signatures
	CREATE TABLE IF NOT EXISTS pending_transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES institutional_wallets(id),
		transaction_type TEXT NOT NULL,
		to_address TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT '',
		chain_id INTEGER NOT NULL,
		transaction_data TEXT NOT NULL,
		signatures TEXT NOT NULL DEFAULT '{}',
		required_signatures INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expires_at TIMESTAMP NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_wallet_id ON pending_transactions(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_transactions(status);
	CREATE INDEX IF NOT EXISTS idx_pending_expires_at ON pending_transactions(expires_at);

	-- Executed transactions (immutable apart from confirmations)
	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES institutional_wallets(id),
		pending_transaction_id TEXT NOT NULL UNIQUE REFERENCES pending_transactions(id),
		transaction_hash TEXT NOT NULL DEFAULT '',
		transaction_type TEXT NOT NULL,
		from_address TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT '',
		chain_id INTEGER NOT NULL,
		executed_by TEXT NOT NULL,
		signatures TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		block_number INTEGER,
		confirmations INTEGER NOT NULL DEFAULT 0,
		gas_used INTEGER,
		gas_price INTEGER,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_wallet_id ON wallet_transactions(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_hash ON wallet_transactions(transaction_hash);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS wallet_access_logs (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_access_logs_wallet_id ON wallet_access_logs(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_access_logs_user_id ON wallet_access_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_access_logs_created_at ON wallet_access_logs(created_at);

	-- Social recovery guardians
	CREATE TABLE IF NOT EXISTS social_recovery_guardians (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES institutional_wallets(id),
		guardian_user_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		verification_token TEXT NOT NULL DEFAULT '',
		verified_at TIMESTAMP,
		added_by TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_guardians_wallet_id ON social_recovery_guardians(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_guardians_user_id ON social_recovery_guardians(guardian_user_id);

	-- Recovery requests
	CREATE TABLE IF NOT EXISTS recovery_requests (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES institutional_wallets(id),
		requester_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		required_approvals INTEGER NOT NULL,
		current_approvals INTEGER NOT NULL DEFAULT 0,
		time_lock_days INTEGER NOT NULL,
		unlock_time TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		executed_by TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recovery_requests_wallet_id ON recovery_requests(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_recovery_requests_status ON recovery_requests(status);

	-- Guardian votes, one per guardian per request
	CREATE TABLE IF NOT EXISTS recovery_approvals (
		id TEXT PRIMARY KEY,
		recovery_request_id TEXT NOT NULL REFERENCES recovery_requests(id),
		guardian_id TEXT NOT NULL REFERENCES social_recovery_guardians(id),
		approver_id TEXT NOT NULL,
		decision TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (recovery_request_id, guardian_id)
	);

	CREATE INDEX IF NOT EXISTS idx_recovery_approvals_request_id ON recovery_approvals(recovery_request_id);
`
