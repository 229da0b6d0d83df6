package custody

import (
	"context"
	"errors"
	"fmt"

	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ExpiryReport counts what one sweep expired.
type ExpiryReport struct {
	Transactions     int
	RecoveryRequests int
}

// ExpireStale expires every open proposal and pending recovery request past
// its deadline. Each expiry is its own audited unit with the system actor.
// Expiry on access stays in force; this only catches entities nobody touches.
// A failing entity does not stop the sweep; all failures are returned together.
func (s *Service) ExpireStale(ctx context.Context) (ExpiryReport, error) {
	var report ExpiryReport
	var errs error
	now := s.now()

	stale, err := s.db.ListExpiredPendingTransactions(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to list expired transactions: %w", err))
	}
	for _, p := range stale {
		expired, err := s.expireTransaction(ctx, p.Id)
		if err != nil {
			zap.L().Warn("Failed to expire transaction", zap.String("transaction_id", p.Id), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("transaction %s: %w", p.Id, err))
			continue
		}
		if expired {
			report.Transactions++
		}
	}

	requests, err := s.db.ListExpiredRecoveryRequests(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to list expired recovery requests: %w", err))
	}
	for _, r := range requests {
		expired, err := s.expireRecoveryRequest(ctx, r.Id)
		if err != nil {
			zap.L().Warn("Failed to expire recovery request", zap.String("recovery_request_id", r.Id), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("recovery request %s: %w", r.Id, err))
			continue
		}
		if expired {
			report.RecoveryRequests++
		}
	}

	if report.Transactions > 0 || report.RecoveryRequests > 0 {
		zap.L().Info("Expired stale entities",
			zap.Int("transactions", report.Transactions),
			zap.Int("recovery_requests", report.RecoveryRequests))
	}
	return report, errs
}

func (s *Service) expireTransaction(ctx context.Context, transactionId string) (bool, error) {
	rec := &auditRecord{
		userId:       SystemActor,
		action:       "expire_transaction",
		resourceType: "transaction",
		resourceId:   transactionId,
	}

	var expired bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		expired = false
		_, err := s.loadPendingForUpdate(ctx, tx, rec, transactionId)
		var ctf *commitThenFail
		if errors.As(err, &ctf) {
			// The expiry itself is the success here.
			expired = rec.details["status"] == string(models.TransactionExpired)
			return nil
		}
		if err != nil {
			return err
		}
		rec.detail("result", "not_expired")
		return nil
	})
	return expired, err
}

func (s *Service) expireRecoveryRequest(ctx context.Context, requestId string) (bool, error) {
	rec := &auditRecord{
		userId:       SystemActor,
		action:       "expire_recovery_request",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}

	var expired bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		expired = false
		_, err := s.loadRecoveryForUpdate(ctx, tx, rec, requestId)
		var ctf *commitThenFail
		if errors.As(err, &ctf) {
			expired = true
			return nil
		}
		if errors.Is(err, ErrExpired) {
			rec.detail("result", "already_expired")
			return nil
		}
		if err != nil {
			return err
		}
		rec.detail("result", "not_expired")
		return nil
	})
	return expired, err
}
