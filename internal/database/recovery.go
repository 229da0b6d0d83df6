package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"go.uber.org/zap"
)

func (s *Queries) InsertGuardian(ctx context.Context, g *models.Guardian) error {
	_, err := s.q.ExecContext(ctx, queryInsertGuardian,
		g.Id, g.WalletId, g.GuardianUserId, g.Email, g.Phone, string(g.Status), g.VerificationToken,
		nullableTime(g.VerifiedAt), g.AddedBy, g.Notes, utc(g.CreatedAt), utc(g.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to insert guardian", zap.String("wallet_id", g.WalletId), zap.Error(err))
		return fmt.Errorf("unable to insert guardian: %w", err)
	}
	return nil
}

func (s *Queries) GetGuardian(ctx context.Context, guardianId string) (*models.Guardian, error) {
	g, err := scanGuardian(s.q.QueryRowContext(ctx, queryGetGuardian, guardianId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("guardian %s: %w", guardianId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query guardian: %w", err)
	}
	return g, nil
}

// ListGuardians returns a wallet's guardians in the order they were added.
// An empty status matches every status.
func (s *Queries) ListGuardians(ctx context.Context, walletId string, status models.GuardianStatus) ([]models.Guardian, error) {
	rows, err := s.q.QueryContext(ctx, queryListGuardians, walletId, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("unable to query guardians: %w", err)
	}
	defer closeRows(rows)

	var guardians []models.Guardian
	for rows.Next() {
		g, err := scanGuardian(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan guardian row: %w", err)
		}
		guardians = append(guardians, *g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guardian rows: %w", err)
	}
	return guardians, nil
}

// HasActiveGuardian reports whether a non-revoked guardian with the same user
// id or e-mail (case-insensitive) already exists on the wallet.
func (s *Queries) HasActiveGuardian(ctx context.Context, walletId, guardianUserId, email string) (bool, error) {
	var id string
	err := s.q.QueryRowContext(ctx, queryFindDuplicateGuardian,
		walletId, guardianUserId, guardianUserId, email, email).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("unable to check guardian duplicates: %w", err)
	}
	return true, nil
}

// UpdateGuardianStatus moves a guardian from one status to another. A
// guardian no longer in the expected status yields ErrConcurrentModification.
func (s *Queries) UpdateGuardianStatus(ctx context.Context, guardianId string, from, to models.GuardianStatus, verifiedAt *time.Time, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateGuardianStatus, string(to), nullableTime(verifiedAt), utc(now), guardianId, string(from))
	if err != nil {
		return fmt.Errorf("failed to update guardian status: %w", err)
	}
	return expectAffected(result, "guardian")
}

func (s *Queries) InsertRecoveryRequest(ctx context.Context, r *models.RecoveryRequest) error {
	_, err := s.q.ExecContext(ctx, queryInsertRecoveryRequest,
		r.Id, r.WalletId, r.RequesterId, r.Reason, string(r.Status), r.RequiredApprovals, r.CurrentApprovals,
		r.TimeLockDays, nullableTime(r.UnlockTime), utc(r.ExpiresAt), nullableTime(r.CompletedAt), r.ExecutedBy,
		r.Version, utc(r.CreatedAt), utc(r.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to insert recovery request", zap.String("wallet_id", r.WalletId), zap.Error(err))
		return fmt.Errorf("unable to insert recovery request: %w", err)
	}
	return nil
}

func (s *Queries) GetRecoveryRequest(ctx context.Context, requestId string) (*models.RecoveryRequest, error) {
	r, err := scanRecoveryRequest(s.q.QueryRowContext(ctx, queryGetRecoveryRequest, requestId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recovery request %s: %w", requestId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query recovery request: %w", err)
	}
	return r, nil
}

func (s *Queries) ListRecoveryRequests(ctx context.Context, walletId string, status models.RecoveryStatus) ([]models.RecoveryRequest, error) {
	rows, err := s.q.QueryContext(ctx, queryListRecoveryRequests, walletId, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("unable to query recovery requests: %w", err)
	}
	return collectRecoveryRequests(rows)
}

// ListExpiredRecoveryRequests returns pending requests whose expiry is before now.
func (s *Queries) ListExpiredRecoveryRequests(ctx context.Context, now time.Time) ([]models.RecoveryRequest, error) {
	rows, err := s.q.QueryContext(ctx, queryListExpiredRecoveryRequests, utc(now))
	if err != nil {
		return nil, fmt.Errorf("unable to query expired recovery requests: %w", err)
	}
	return collectRecoveryRequests(rows)
}

// UpdateRecoveryRequest writes the mutable fields of r, guarded by r.Version.
func (s *Queries) UpdateRecoveryRequest(ctx context.Context, r *models.RecoveryRequest, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateRecoveryRequest,
		string(r.Status), r.CurrentApprovals, nullableTime(r.UnlockTime), nullableTime(r.CompletedAt), r.ExecutedBy,
		utc(now), r.Id, r.Version)
	if err != nil {
		return fmt.Errorf("failed to update recovery request: %w", err)
	}
	return expectAffected(result, "recovery request")
}

// InsertRecoveryApproval records a vote. A second vote by the same guardian
// on the same request yields store.ErrDuplicate.
func (s *Queries) InsertRecoveryApproval(ctx context.Context, a *models.RecoveryApproval) error {
	_, err := s.q.ExecContext(ctx, queryInsertRecoveryApproval,
		a.Id, a.RecoveryRequestId, a.GuardianId, a.ApproverId, string(a.Decision), a.Signature,
		a.Reason, a.IpAddress, a.UserAgent, utc(a.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("vote by guardian %s: %w", a.GuardianId, store.ErrDuplicate)
		}
		return fmt.Errorf("unable to insert recovery approval: %w", err)
	}
	return nil
}

func (s *Queries) HasRecoveryVote(ctx context.Context, requestId, guardianId string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, queryHasRecoveryVote, requestId, guardianId).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("unable to check recovery vote: %w", err)
	}
	return true, nil
}

func (s *Queries) CountRecoveryApprovals(ctx context.Context, requestId string) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, queryCountRecoveryApprovals, requestId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count recovery approvals: %w", err)
	}
	return count, nil
}

func (s *Queries) ListRecoveryApprovals(ctx context.Context, requestId string) ([]models.RecoveryApproval, error) {
	rows, err := s.q.QueryContext(ctx, queryListRecoveryApprovals, requestId)
	if err != nil {
		return nil, fmt.Errorf("unable to query recovery approvals: %w", err)
	}
	defer closeRows(rows)

	var approvals []models.RecoveryApproval
	for rows.Next() {
		var a models.RecoveryApproval
		var decision string
		err := rows.Scan(&a.Id, &a.RecoveryRequestId, &a.GuardianId, &a.ApproverId, &decision, &a.Signature,
			&a.Reason, &a.IpAddress, &a.UserAgent, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to scan recovery approval row: %w", err)
		}
		a.Decision = models.VoteDecision(decision)
		a.CreatedAt = a.CreatedAt.UTC()
		approvals = append(approvals, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery approval rows: %w", err)
	}
	return approvals, nil
}

func collectRecoveryRequests(rows *sql.Rows) ([]models.RecoveryRequest, error) {
	defer closeRows(rows)

	var requests []models.RecoveryRequest
	for rows.Next() {
		r, err := scanRecoveryRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan recovery request row: %w", err)
		}
		requests = append(requests, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery request rows: %w", err)
	}
	return requests, nil
}

func scanGuardian(row rowScanner) (*models.Guardian, error) {
	var g models.Guardian
	var status string
	var verifiedAt sql.NullTime

	err := row.Scan(&g.Id, &g.WalletId, &g.GuardianUserId, &g.Email, &g.Phone, &status, &g.VerificationToken,
		&verifiedAt, &g.AddedBy, &g.Notes, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	g.Status = models.GuardianStatus(status)
	g.VerifiedAt = timePtr(verifiedAt)
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return &g, nil
}

func scanRecoveryRequest(row rowScanner) (*models.RecoveryRequest, error) {
	var r models.RecoveryRequest
	var status string
	var unlockTime, completedAt sql.NullTime

	err := row.Scan(&r.Id, &r.WalletId, &r.RequesterId, &r.Reason, &status, &r.RequiredApprovals, &r.CurrentApprovals,
		&r.TimeLockDays, &unlockTime, &r.ExpiresAt, &completedAt, &r.ExecutedBy, &r.Version,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = models.RecoveryStatus(status)
	r.UnlockTime = timePtr(unlockTime)
	r.CompletedAt = timePtr(completedAt)
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
