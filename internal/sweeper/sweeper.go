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
	"fmt"
	"sync/atomic"
	"time"

	"institutional-custody-go/internal/custody"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type expirer interface {
	ExpireStale(ctx context.Context) (custody.ExpiryReport, error)
}

// Sweeper periodically expires proposals and recovery requests nobody touched
// after their deadline.
type Sweeper struct {
	expirer   expirer
	interval  time.Duration
	clock     clockwork.Clock
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	runs      atomic.Int64
}

func NewSweeper(expirer expirer, interval time.Duration, clock clockwork.Clock) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
		clock:    clock,
	}
}

// Start schedules the sweep and runs the first one immediately
func (s *Sweeper) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("expire-stale"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	zap.L().Info("Expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() {
	if s.scheduler == nil {
		return
	}
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		zap.L().Warn("Failed to shut down scheduler", zap.Error(err))
	}
	s.scheduler = nil
	zap.L().Info("Expiry sweeper stopped", zap.Int64("runs", s.runs.Load()))
}

// Runs reports how many sweeps have completed
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

func (s *Sweeper) sweep() {
	defer s.runs.Add(1)

	report, err := s.expirer.ExpireStale(s.ctx)
	if err != nil {
		zap.L().Error("Expiry sweep failed", zap.Error(err))
		return
	}
	zap.L().Debug("Expiry sweep completed",
		zap.Int("transactions", report.Transactions),
		zap.Int("recovery_requests", report.RecoveryRequests))
}
