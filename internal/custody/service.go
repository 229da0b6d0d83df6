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

package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SystemActor is recorded as the acting user for unattended transitions.
const SystemActor = "system"

type Service struct {
	db          *database.Service
	users       store.UserDirectory // nil means the users table
	broadcaster store.Broadcaster
	clock       clockwork.Clock
	cfg         models.CustodyConfig
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithBroadcaster(broadcaster store.Broadcaster) Option {
	return func(s *Service) {
		s.broadcaster = broadcaster
	}
}

// WithUserDirectory replaces the users table as the source of identities.
func WithUserDirectory(users store.UserDirectory) Option {
	return func(s *Service) {
		s.users = users
	}
}

func NewService(db *database.Service, cfg models.CustodyConfig, opts ...Option) *Service {
	s := &Service{
		db:    db,
		clock: clockwork.NewRealClock(),
		cfg:   withDefaults(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func withDefaults(cfg models.CustodyConfig) models.CustodyConfig {
	if cfg.DefaultExpiresInHours <= 0 {
		cfg.DefaultExpiresInHours = 24
	}
	if cfg.MaxUpdateAttempts <= 0 {
		cfg.MaxUpdateAttempts = 3
	}
	if cfg.ExecutionClaimTimeout <= 0 {
		cfg.ExecutionClaimTimeout = 5 * time.Minute
	}
	if cfg.RecoveryRequestTTL <= 0 {
		cfg.RecoveryRequestTTL = 72 * time.Hour
	}
	if cfg.MinTimeLockDays <= 0 {
		cfg.MinTimeLockDays = 1
	}
	if cfg.MaxTimeLockDays < cfg.MinTimeLockDays {
		cfg.MaxTimeLockDays = 30
	}
	if cfg.DefaultTimeLockDays <= 0 {
		cfg.DefaultTimeLockDays = 7
	}
	return cfg
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// auditRecord describes the audit entry a unit of work leaves behind. fn may
// fill in fields that are only known once entities are loaded.
type auditRecord struct {
	walletId     string
	userId       string
	action       string
	resourceType string
	resourceId   string
	details      map[string]string
}

func (r *auditRecord) detail(key, value string) {
	if r.details == nil {
		r.details = map[string]string{}
	}
	r.details[key] = value
}

func (r *auditRecord) entry(ctx context.Context, err error, now time.Time) *models.AccessLog {
	entry := &models.AccessLog{
		Id:           uuid.New().String(),
		WalletId:     r.walletId,
		UserId:       r.userId,
		Action:       r.action,
		ResourceType: r.resourceType,
		ResourceId:   r.resourceId,
		Success:      err == nil,
		Details:      r.details,
		CreatedAt:    now,
	}
	if err != nil {
		entry.ErrorMessage = publicMessage(err)
	}
	if rm := models.GetRequestMetadata(ctx); rm != nil {
		entry.IpAddress = rm.IpAddress
		entry.UserAgent = rm.UserAgent
	}
	return entry
}

// audited runs fn as one unit of work that commits together with its
// success audit entry. When fn fails the unit is rolled back and a failure
// entry is written on its own. Version conflicts are retried up to
// MaxUpdateAttempts. Every call leaves exactly one audit entry.
func (s *Service) audited(ctx context.Context, rec *auditRecord, fn func(tx *database.Tx) error) error {
	return s.unit(ctx, rec, true, fn)
}

// staged runs fn like audited but commits a success without an audit entry.
// It is the first step of an operation that finishes in a later audited unit;
// a failure still leaves the operation's single failure entry.
func (s *Service) staged(ctx context.Context, rec *auditRecord, fn func(tx *database.Tx) error) error {
	return s.unit(ctx, rec, false, fn)
}

func (s *Service) unit(ctx context.Context, rec *auditRecord, recordSuccess bool, fn func(tx *database.Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		var recorded bool
		recorded, err = s.attempt(ctx, rec, recordSuccess, fn)
		if recorded {
			return err
		}
		if errors.Is(err, store.ErrConcurrentModification) && attempt < s.cfg.MaxUpdateAttempts {
			zap.L().Warn("Concurrent modification, retrying",
				zap.String("action", rec.action),
				zap.String("resource_id", rec.resourceId),
				zap.Int("attempt", attempt))
			continue
		}
		break
	}

	var classified *Error
	if !errors.As(err, &classified) {
		zap.L().Error("Custody operation failed",
			zap.String("action", rec.action),
			zap.String("resource_id", rec.resourceId),
			zap.Error(err))
	}

	if logErr := s.db.InsertAccessLog(ctx, rec.entry(ctx, err, s.now())); logErr != nil {
		zap.L().Error("Failed to record failed attempt in audit log",
			zap.String("action", rec.action),
			zap.Error(logErr))
	}
	return err
}

// attempt reports whether the audit entry was committed along with the unit.
func (s *Service) attempt(ctx context.Context, rec *auditRecord, recordSuccess bool, fn func(tx *database.Tx) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	fnErr := fn(tx)

	var ctf *commitThenFail
	if errors.As(fnErr, &ctf) {
		if err := tx.InsertAccessLog(ctx, rec.entry(ctx, ctf.err, s.now())); err != nil {
			return false, ctf.err
		}
		if err := tx.Commit(); err != nil {
			return false, ctf.err
		}
		return true, ctf.err
	}
	if fnErr != nil {
		return false, fnErr
	}

	if recordSuccess {
		if err := tx.InsertAccessLog(ctx, rec.entry(ctx, nil, s.now())); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}
