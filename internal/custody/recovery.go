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
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddGuardianParams contains the parameters for registering a guardian. At
// least one of GuardianUserId, Email or Phone is required.
type AddGuardianParams struct {
	WalletId       string
	GuardianUserId string
	Email          string
	Phone          string
	AddedBy        string
	Notes          string
}

// CreateRecoveryRequestParams contains the parameters for a recovery request
type CreateRecoveryRequestParams struct {
	WalletId          string
	RequesterId       string
	Reason            string
	RequiredApprovals int // zero means a majority of verified guardians
	TimeLockDays      int // zero means the configured default
}

// AddGuardian registers a pending guardian and issues the verification token
// the guardian must present to VerifyGuardian.
func (s *Service) AddGuardian(ctx context.Context, params AddGuardianParams) (*models.Guardian, error) {
	guardianId := uuid.New().String()
	rec := &auditRecord{
		walletId:     params.WalletId,
		userId:       params.AddedBy,
		action:       "add_guardian",
		resourceType: "guardian",
		resourceId:   guardianId,
	}

	var guardian *models.Guardian
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		wallet, err := loadWalletForActor(ctx, tx, params.WalletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, params.AddedBy, models.PermissionAdmin) {
			return permissionError("admin permission required")
		}

		email := strings.TrimSpace(params.Email)
		phone := strings.TrimSpace(params.Phone)
		if params.GuardianUserId == "" && email == "" && phone == "" {
			return validationError("a guardian needs a user id, email or phone")
		}
		if email != "" && !strings.Contains(email, "@") {
			return validationError("invalid guardian email %q", email)
		}
		if params.GuardianUserId != "" {
			if params.GuardianUserId == wallet.UserId {
				return validationError("the wallet owner cannot be their own guardian")
			}
			if err := s.requireUser(ctx, tx.Queries, params.GuardianUserId, "guardian"); err != nil {
				return err
			}
		}

		dup, err := tx.HasActiveGuardian(ctx, wallet.Id, params.GuardianUserId, email)
		if err != nil {
			return err
		}
		if dup {
			return validationError("guardian is already registered for this wallet")
		}

		now := s.now()
		g := &models.Guardian{
			Id:                guardianId,
			WalletId:          wallet.Id,
			GuardianUserId:    params.GuardianUserId,
			Email:             email,
			Phone:             phone,
			Status:            models.GuardianPending,
			VerificationToken: uuid.New().String(),
			AddedBy:           params.AddedBy,
			Notes:             params.Notes,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertGuardian(ctx, g); err != nil {
			return err
		}
		guardian = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Guardian added", zap.String("wallet_id", params.WalletId), zap.String("guardian_id", guardian.Id))
	return guardian, nil
}

// VerifyGuardian confirms a pending guardian that presents its token.
func (s *Service) VerifyGuardian(ctx context.Context, guardianId, token string) error {
	rec := &auditRecord{
		action:       "verify_guardian",
		resourceType: "guardian",
		resourceId:   guardianId,
	}

	return s.audited(ctx, rec, func(tx *database.Tx) error {
		g, err := tx.GetGuardian(ctx, guardianId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				rec.userId = guardianId
				return notFoundError("guardian %s", guardianId)
			}
			return err
		}
		rec.walletId = g.WalletId
		rec.userId = guardianActor(g)

		if g.Status != models.GuardianPending {
			return validationError("guardian is %s", g.Status)
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(g.VerificationToken)) != 1 {
			return permissionError("invalid verification token")
		}
		now := s.now()
		return tx.UpdateGuardianStatus(ctx, g.Id, models.GuardianPending, models.GuardianVerified, &now, now)
	})
}

func guardianActor(g *models.Guardian) string {
	switch {
	case g.GuardianUserId != "":
		return g.GuardianUserId
	case g.Email != "":
		return g.Email
	case g.Phone != "":
		return g.Phone
	}
	return g.Id
}

// RemoveGuardian revokes a guardian. It returns false if already revoked.
func (s *Service) RemoveGuardian(ctx context.Context, walletId, guardianId, removedBy string) (bool, error) {
	rec := &auditRecord{
		walletId:     walletId,
		userId:       removedBy,
		action:       "remove_guardian",
		resourceType: "guardian",
		resourceId:   guardianId,
	}

	var removed bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		removed = false
		wallet, err := loadWalletForActor(ctx, tx, walletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, removedBy, models.PermissionAdmin) {
			return permissionError("admin permission required")
		}

		g, err := tx.GetGuardian(ctx, guardianId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError("guardian %s", guardianId)
			}
			return err
		}
		if g.WalletId != walletId {
			return notFoundError("guardian %s", guardianId)
		}
		if g.Status == models.GuardianRevoked {
			rec.detail("result", "already_revoked")
			return nil
		}
		if err := tx.UpdateGuardianStatus(ctx, g.Id, g.Status, models.GuardianRevoked, nil, s.now()); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		zap.L().Info("Guardian revoked", zap.String("wallet_id", walletId), zap.String("guardian_id", guardianId))
	}
	return removed, nil
}

// GetGuardians lists a wallet's guardians. Verification tokens are not returned.
func (s *Service) GetGuardians(ctx context.Context, walletId string, status models.GuardianStatus) ([]models.Guardian, error) {
	guardians, err := s.db.ListGuardians(ctx, walletId, status)
	if err != nil {
		return nil, err
	}
	for i := range guardians {
		guardians[i].VerificationToken = ""
	}
	return guardians, nil
}

// CreateRecoveryRequest opens a recovery request. Any user may ask; the
// quorum is taken from the wallet's verified guardians.
func (s *Service) CreateRecoveryRequest(ctx context.Context, params CreateRecoveryRequestParams) (*models.RecoveryRequest, error) {
	requestId := uuid.New().String()
	rec := &auditRecord{
		walletId:     params.WalletId,
		userId:       params.RequesterId,
		action:       "create_recovery_request",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}

	var request *models.RecoveryRequest
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		wallet, err := tx.GetWallet(ctx, params.WalletId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError("wallet %s", params.WalletId)
			}
			return err
		}
		if wallet.Status == models.WalletStatusArchived {
			return validationError("wallet is archived")
		}
		if err := s.requireUser(ctx, tx.Queries, params.RequesterId, "requester"); err != nil {
			return err
		}
		if strings.TrimSpace(params.Reason) == "" {
			return validationError("a reason is required")
		}

		open, err := s.openRecoveryRequests(ctx, tx, wallet.Id)
		if err != nil {
			return err
		}
		if open > 0 {
			return validationError("a recovery request is already in progress for this wallet")
		}

		verified, err := tx.ListGuardians(ctx, wallet.Id, models.GuardianVerified)
		if err != nil {
			return err
		}
		if len(verified) == 0 {
			return validationError("wallet has no verified guardians")
		}

		required := params.RequiredApprovals
		if required == 0 {
			required = len(verified)/2 + 1
		}
		if required < 1 || required > len(verified) {
			return validationError("required approvals must be between 1 and %d", len(verified))
		}

		days := params.TimeLockDays
		if days == 0 {
			days = s.cfg.DefaultTimeLockDays
		}
		if days < s.cfg.MinTimeLockDays || days > s.cfg.MaxTimeLockDays {
			return validationError("time lock must be between %d and %d days", s.cfg.MinTimeLockDays, s.cfg.MaxTimeLockDays)
		}

		now := s.now()
		r := &models.RecoveryRequest{
			Id:                requestId,
			WalletId:          wallet.Id,
			RequesterId:       params.RequesterId,
			Reason:            params.Reason,
			Status:            models.RecoveryPending,
			RequiredApprovals: required,
			TimeLockDays:      days,
			ExpiresAt:         now.Add(s.cfg.RecoveryRequestTTL),
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertRecoveryRequest(ctx, r); err != nil {
			return err
		}
		request = r
		rec.detail("required_approvals", strconv.Itoa(required))
		rec.detail("time_lock_days", strconv.Itoa(days))
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Recovery request created",
		zap.String("recovery_request_id", request.Id),
		zap.String("wallet_id", request.WalletId),
		zap.String("requester_id", request.RequesterId),
		zap.Int("required_approvals", request.RequiredApprovals))
	return request, nil
}

// openRecoveryRequests counts requests still able to take effect. Pending
// requests past their deadline do not count.
func (s *Service) openRecoveryRequests(ctx context.Context, tx *database.Tx, walletId string) (int, error) {
	requests, err := tx.ListRecoveryRequests(ctx, walletId, "")
	if err != nil {
		return 0, err
	}
	now := s.now()
	open := 0
	for _, r := range requests {
		switch r.Status {
		case models.RecoveryApproved:
			open++
		case models.RecoveryPending:
			if !now.After(r.ExpiresAt) {
				open++
			}
		}
	}
	return open, nil
}

// loadRecoveryForUpdate loads a request inside a unit of work and applies
// lazy expiry to requests still waiting for quorum.
func (s *Service) loadRecoveryForUpdate(ctx context.Context, tx *database.Tx, rec *auditRecord, requestId string) (*models.RecoveryRequest, error) {
	r, err := tx.GetRecoveryRequest(ctx, requestId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("recovery request %s", requestId)
		}
		return nil, err
	}
	rec.walletId = r.WalletId

	now := s.now()
	if r.Status == models.RecoveryPending && now.After(r.ExpiresAt) {
		r.Status = models.RecoveryExpired
		if err := tx.UpdateRecoveryRequest(ctx, r, now); err != nil {
			return nil, err
		}
		rec.detail("status", string(models.RecoveryExpired))
		return nil, &commitThenFail{err: newError(ErrExpired, "recovery request %s expired at %s", r.Id, r.ExpiresAt.Format(time.RFC3339))}
	}
	if r.Status == models.RecoveryExpired {
		return nil, newError(ErrExpired, "recovery request %s expired", r.Id)
	}
	return r, nil
}

// checkGuardianVote loads the voting guardian and confirms voterId speaks for
// a verified guardian of the request's wallet.
func checkGuardianVote(ctx context.Context, tx *database.Tx, r *models.RecoveryRequest, guardianId, voterId string) (*models.Guardian, error) {
	g, err := tx.GetGuardian(ctx, guardianId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, permissionError("not a verified guardian of this wallet")
		}
		return nil, err
	}
	if g.WalletId != r.WalletId || g.Status != models.GuardianVerified || !guardianMatches(g, voterId) {
		return nil, permissionError("not a verified guardian of this wallet")
	}
	return g, nil
}

func guardianMatches(g *models.Guardian, voterId string) bool {
	if voterId == "" {
		return false
	}
	if g.GuardianUserId != "" {
		return voterId == g.GuardianUserId
	}
	return strings.EqualFold(voterId, g.Email) || (g.Phone != "" && voterId == g.Phone)
}

func (s *Service) recordVote(ctx context.Context, tx *database.Tx, r *models.RecoveryRequest, g *models.Guardian, voterId string, decision models.VoteDecision, signature, reason string) (bool, error) {
	voted, err := tx.HasRecoveryVote(ctx, r.Id, g.Id)
	if err != nil {
		return false, err
	}
	if voted {
		return false, nil
	}

	vote := &models.RecoveryApproval{
		Id:                uuid.New().String(),
		RecoveryRequestId: r.Id,
		GuardianId:        g.Id,
		ApproverId:        voterId,
		Decision:          decision,
		Signature:         signature,
		Reason:            reason,
		CreatedAt:         s.now(),
	}
	if rm := models.GetRequestMetadata(ctx); rm != nil {
		vote.IpAddress = rm.IpAddress
		vote.UserAgent = rm.UserAgent
	}
	if err := tx.InsertRecoveryApproval(ctx, vote); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ApproveRecovery records a guardian's approval. It returns false without
// error if the guardian already voted. The approval that reaches quorum
// starts the time lock.
func (s *Service) ApproveRecovery(ctx context.Context, requestId, guardianId, approverId, signature string) (bool, error) {
	rec := &auditRecord{
		userId:       approverId,
		action:       "approve_recovery",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}
	rec.detail("guardian_id", guardianId)

	var recorded bool
	var request *models.RecoveryRequest
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		recorded = false
		r, err := s.loadRecoveryForUpdate(ctx, tx, rec, requestId)
		if err != nil {
			return err
		}
		if r.Status != models.RecoveryPending {
			return validationError("recovery request is %s", r.Status)
		}
		g, err := checkGuardianVote(ctx, tx, r, guardianId, approverId)
		if err != nil {
			return err
		}

		ok, err := s.recordVote(ctx, tx, r, g, approverId, models.VoteApprove, signature, "")
		if err != nil {
			return err
		}
		if !ok {
			rec.detail("result", "duplicate")
			return nil
		}

		approvals, err := tx.CountRecoveryApprovals(ctx, r.Id)
		if err != nil {
			return err
		}
		now := s.now()
		r.CurrentApprovals = approvals
		if r.QuorumReached() {
			unlock := now.Add(time.Duration(r.TimeLockDays) * 24 * time.Hour)
			r.UnlockTime = &unlock
			r.Status = models.RecoveryApproved
			rec.detail("unlock_time", unlock.Format(time.RFC3339))
		}
		if err := tx.UpdateRecoveryRequest(ctx, r, now); err != nil {
			return err
		}
		rec.detail("current_approvals", strconv.Itoa(r.CurrentApprovals))
		recorded = true
		request = r
		return nil
	})
	if err != nil {
		return false, err
	}

	if recorded {
		zap.L().Info("Recovery approval recorded",
			zap.String("recovery_request_id", requestId),
			zap.String("guardian_id", guardianId),
			zap.Int("current_approvals", request.CurrentApprovals),
			zap.Int("required_approvals", request.RequiredApprovals))
	} else {
		zap.L().Warn("Guardian already voted, skipping",
			zap.String("recovery_request_id", requestId),
			zap.String("guardian_id", guardianId))
	}
	return recorded, nil
}

// RejectRecovery records a guardian's rejection. A single rejection vetoes
// the request, including during the time lock. Returns false without error
// if the guardian already voted.
func (s *Service) RejectRecovery(ctx context.Context, requestId, guardianId, rejectorId, reason string) (bool, error) {
	rec := &auditRecord{
		userId:       rejectorId,
		action:       "reject_recovery",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}
	rec.detail("guardian_id", guardianId)

	var recorded bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		recorded = false
		r, err := s.loadRecoveryForUpdate(ctx, tx, rec, requestId)
		if err != nil {
			return err
		}
		if r.Status != models.RecoveryPending && r.Status != models.RecoveryApproved {
			return validationError("recovery request is %s", r.Status)
		}
		g, err := checkGuardianVote(ctx, tx, r, guardianId, rejectorId)
		if err != nil {
			return err
		}

		ok, err := s.recordVote(ctx, tx, r, g, rejectorId, models.VoteReject, "", reason)
		if err != nil {
			return err
		}
		if !ok {
			rec.detail("result", "duplicate")
			return nil
		}

		now := s.now()
		r.Status = models.RecoveryRejected
		r.CompletedAt = &now
		if err := tx.UpdateRecoveryRequest(ctx, r, now); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if recorded {
		zap.L().Info("Recovery request vetoed",
			zap.String("recovery_request_id", requestId),
			zap.String("guardian_id", guardianId))
	}
	return recorded, nil
}

// CancelRecovery lets the current wallet owner stop a request before it executes.
func (s *Service) CancelRecovery(ctx context.Context, requestId, ownerId string) error {
	rec := &auditRecord{
		userId:       ownerId,
		action:       "cancel_recovery",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}

	return s.audited(ctx, rec, func(tx *database.Tx) error {
		r, err := s.loadRecoveryForUpdate(ctx, tx, rec, requestId)
		if err != nil {
			return err
		}
		wallet, err := loadWalletForActor(ctx, tx, r.WalletId)
		if err != nil {
			return err
		}
		if wallet.UserId != ownerId {
			return permissionError("only the wallet owner may cancel a recovery")
		}
		if r.Status != models.RecoveryPending && r.Status != models.RecoveryApproved {
			return validationError("recovery request is %s", r.Status)
		}

		now := s.now()
		r.Status = models.RecoveryRejected
		r.CompletedAt = &now
		return tx.UpdateRecoveryRequest(ctx, r, now)
	})
}

// ExecuteRecovery hands the wallet to the requester once quorum has been
// reached and the time lock has elapsed. The previous owner keeps view access.
func (s *Service) ExecuteRecovery(ctx context.Context, requestId, executorId string) (bool, error) {
	rec := &auditRecord{
		userId:       executorId,
		action:       "execute_recovery",
		resourceType: "recovery_request",
		resourceId:   requestId,
	}

	var previousOwner string
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		r, err := s.loadRecoveryForUpdate(ctx, tx, rec, requestId)
		if err != nil {
			return err
		}
		if r.RequesterId != executorId {
			return permissionError("only the requester may execute a recovery")
		}
		if r.Status != models.RecoveryApproved {
			return validationError("recovery request is %s, quorum not reached", r.Status)
		}
		now := s.now()
		if r.UnlockTime == nil {
			return newError(ErrTimeLocked, "recovery has no unlock time")
		}
		if now.Before(*r.UnlockTime) {
			return newError(ErrTimeLocked, "recovery unlocks at %s", r.UnlockTime.Format(time.RFC3339))
		}

		wallet, err := tx.GetWallet(ctx, r.WalletId)
		if err != nil {
			return err
		}
		previousOwner = wallet.UserId
		if err := s.transferOwnership(ctx, tx, wallet, r.RequesterId, now); err != nil {
			return err
		}

		r.Status = models.RecoveryExecuted
		r.CompletedAt = &now
		r.ExecutedBy = executorId
		if err := tx.UpdateRecoveryRequest(ctx, r, now); err != nil {
			return err
		}
		rec.detail("previous_owner", previousOwner)
		rec.detail("new_owner", r.RequesterId)
		return nil
	})
	if err != nil {
		return false, err
	}

	zap.L().Info("Recovery executed",
		zap.String("recovery_request_id", requestId),
		zap.String("previous_owner", previousOwner),
		zap.String("new_owner", executorId))
	return true, nil
}

func (s *Service) transferOwnership(ctx context.Context, tx *database.Tx, wallet *models.Wallet, newOwner string, now time.Time) error {
	if wallet.UserId != newOwner {
		if err := s.setRole(ctx, tx, wallet.Id, wallet.UserId, models.RoleViewer, now); err != nil {
			return err
		}
	}
	if err := s.setRole(ctx, tx, wallet.Id, newOwner, models.RoleOwner, now); err != nil {
		return err
	}

	signing, err := tx.CountSigningSigners(ctx, wallet.Id)
	if err != nil {
		return err
	}
	return tx.UpdateWalletOwner(ctx, wallet.Id, newOwner, signing, wallet.Version, now)
}

func (s *Service) setRole(ctx context.Context, tx *database.Tx, walletId, userId string, role models.SignerRole, now time.Time) error {
	err := tx.UpdateSignerRole(ctx, walletId, userId, role)
	if errors.Is(err, store.ErrNotFound) {
		return tx.InsertSigner(ctx, models.Signer{WalletId: walletId, UserId: userId, Role: role, CreatedAt: now})
	}
	return err
}

// GetRecoveryRequest reports the request's status as of now.
func (s *Service) GetRecoveryRequest(ctx context.Context, requestId string) (*models.RecoveryRequest, error) {
	r, err := s.db.GetRecoveryRequest(ctx, requestId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("recovery request %s", requestId)
		}
		return nil, err
	}
	r.Status = r.EffectiveStatus(s.now())
	return r, nil
}

func (s *Service) GetRecoveryApprovals(ctx context.Context, requestId string) ([]models.RecoveryApproval, error) {
	return s.db.ListRecoveryApprovals(ctx, requestId)
}

func (s *Service) GetWalletRecoveryRequests(ctx context.Context, walletId string, status models.RecoveryStatus) ([]models.RecoveryRequest, error) {
	all, err := s.db.ListRecoveryRequests(ctx, walletId, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]models.RecoveryRequest, 0, len(all))
	for _, r := range all {
		r.Status = r.EffectiveStatus(now)
		if status == "" || r.Status == status {
			result = append(result, r)
		}
	}
	return result, nil
}
