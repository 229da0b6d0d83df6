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
	"strconv"
	"time"

	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePendingTransactionParams contains the parameters for proposing a transaction
type CreatePendingTransactionParams struct {
	WalletId        string
	TransactionType string
	Payload         models.TransactionPayload
	CreatorId       string
	Description     string
	ExpiresInHours  *int // nil means the configured default; zero expires at once
}

// CreatePendingTransaction proposes a transaction on behalf of a signer. The
// wallet's current threshold is copied onto the proposal.
func (s *Service) CreatePendingTransaction(ctx context.Context, params CreatePendingTransactionParams) (*models.PendingTransaction, error) {
	transactionId := uuid.New().String()
	rec := &auditRecord{
		walletId:     params.WalletId,
		userId:       params.CreatorId,
		action:       "create_pending_transaction",
		resourceType: "transaction",
		resourceId:   transactionId,
	}
	rec.detail("transaction_type", params.TransactionType)

	var pending *models.PendingTransaction
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		wallet, err := loadWalletForActor(ctx, tx, params.WalletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, params.CreatorId, models.PermissionSign) {
			return permissionError("sign permission required")
		}

		now := s.now()
		if err := checkWalletAcceptsProposals(wallet, now); err != nil {
			return err
		}
		if params.TransactionType == "" {
			return validationError("transaction type is required")
		}
		if params.Payload.Value.IsNegative() {
			return validationError("amount cannot be negative")
		}
		chainId := params.Payload.ChainId
		if chainId == 0 {
			chainId = wallet.ChainId
		} else if chainId != wallet.ChainId {
			return validationError("payload chain %d does not match wallet chain %d", chainId, wallet.ChainId)
		}

		hours := s.cfg.DefaultExpiresInHours
		if params.ExpiresInHours != nil {
			hours = *params.ExpiresInHours
		}
		if hours < 0 {
			return validationError("expires_in_hours cannot be negative")
		}

		p := &models.PendingTransaction{
			Id:                 transactionId,
			WalletId:           wallet.Id,
			TransactionType:    params.TransactionType,
			ToAddress:          params.Payload.To,
			Amount:             params.Payload.Value,
			Currency:           params.Payload.Currency,
			ChainId:            chainId,
			Payload:            params.Payload,
			Signatures:         map[string]models.SignatureData{},
			RequiredSignatures: wallet.RequiredSignatures,
			Status:             models.TransactionPending,
			ExpiresAt:          now.Add(time.Duration(hours) * time.Hour),
			Description:        params.Description,
			CreatedBy:          params.CreatorId,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.InsertPendingTransaction(ctx, p); err != nil {
			return err
		}
		pending = p
		rec.detail("required_signatures", strconv.Itoa(p.RequiredSignatures))
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Pending transaction created",
		zap.String("transaction_id", pending.Id),
		zap.String("wallet_id", pending.WalletId),
		zap.String("amount", pending.Amount.String()),
		zap.Int("required_signatures", pending.RequiredSignatures),
		zap.Time("expires_at", pending.ExpiresAt))
	return pending, nil
}

func checkWalletAcceptsProposals(wallet *models.Wallet, now time.Time) error {
	if wallet.Status != models.WalletStatusActive {
		return validationError("wallet is %s", wallet.Status)
	}
	if wallet.WalletType == models.WalletTypeTimelock && wallet.UnlockTime != nil && now.Before(*wallet.UnlockTime) {
		return validationError("wallet is time-locked until %s", wallet.UnlockTime.Format(time.RFC3339))
	}
	return nil
}

// loadPendingForUpdate loads a proposal inside a unit of work and applies
// lazy expiry. When an open proposal has reached its deadline it is marked
// expired and the returned error commits that change before failing.
// Proposals claimed for execution do not expire.
func (s *Service) loadPendingForUpdate(ctx context.Context, tx *database.Tx, rec *auditRecord, transactionId string) (*models.PendingTransaction, error) {
	p, err := tx.GetPendingTransaction(ctx, transactionId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("transaction %s", transactionId)
		}
		return nil, err
	}
	rec.walletId = p.WalletId

	now := s.now()
	if p.Status.Open() && p.Expired(now) {
		if err := tx.UpdatePendingStatus(ctx, p.Id, models.TransactionExpired, p.RejectionReason, p.Version, now); err != nil {
			return nil, err
		}
		rec.detail("status", string(models.TransactionExpired))
		p.Status = models.TransactionExpired
	}
	if p.Status == models.TransactionExpired {
		return nil, &commitThenFail{err: newError(ErrExpired, "transaction %s expired at %s", p.Id, p.ExpiresAt.Format(time.RFC3339))}
	}
	return p, nil
}

// SignTransaction records userId's signature and reports whether the
// transaction is now fully signed. A repeated signature by the same user
// returns false and changes nothing.
func (s *Service) SignTransaction(ctx context.Context, transactionId, userId string, signature models.SignatureData) (bool, error) {
	rec := &auditRecord{
		userId:       userId,
		action:       "sign_transaction",
		resourceType: "transaction",
		resourceId:   transactionId,
	}

	var fullySigned bool
	var count int
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		fullySigned = false
		p, err := s.loadPendingForUpdate(ctx, tx, rec, transactionId)
		if err != nil {
			return err
		}

		wallet, err := loadWalletForActor(ctx, tx, p.WalletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, userId, models.PermissionSign) {
			return permissionError("sign permission required")
		}
		if !p.Status.Open() {
			return validationError("transaction is %s", p.Status)
		}
		if wallet.Status != models.WalletStatusActive {
			return validationError("wallet is %s", wallet.Status)
		}

		if _, ok := p.Signatures[userId]; ok {
			rec.detail("result", "duplicate")
			return nil
		}
		if signature.Signature == "" {
			return validationError("signature is required")
		}

		now := s.now()
		if signature.SignedAt.IsZero() {
			signature.SignedAt = now
		}
		p.Signatures[userId] = signature
		if p.Status == models.TransactionPending && p.SignatureCount() >= p.RequiredSignatures {
			p.Status = models.TransactionSigned
		}
		if err := tx.UpdatePendingSignatures(ctx, p, now); err != nil {
			return err
		}

		count = p.SignatureCount()
		fullySigned = p.Status == models.TransactionSigned
		rec.detail("signatures", strconv.Itoa(count))
		rec.detail("status", string(p.Status))
		return nil
	})
	if err != nil {
		return false, err
	}

	zap.L().Info("Transaction signed",
		zap.String("transaction_id", transactionId),
		zap.String("user_id", userId),
		zap.Int("signatures", count),
		zap.Bool("fully_signed", fullySigned))
	return fullySigned, nil
}

// RejectTransaction cancels an open proposal. Requires execute permission.
func (s *Service) RejectTransaction(ctx context.Context, transactionId, userId, reason string) error {
	rec := &auditRecord{
		userId:       userId,
		action:       "reject_transaction",
		resourceType: "transaction",
		resourceId:   transactionId,
	}

	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		p, err := s.loadPendingForUpdate(ctx, tx, rec, transactionId)
		if err != nil {
			return err
		}
		wallet, err := loadWalletForActor(ctx, tx, p.WalletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, userId, models.PermissionExecute) {
			return permissionError("execute permission required")
		}
		if !p.Status.Open() {
			return validationError("transaction is %s", p.Status)
		}
		return tx.UpdatePendingStatus(ctx, p.Id, models.TransactionRejected, reason, p.Version, s.now())
	})
	if err != nil {
		return err
	}

	zap.L().Info("Transaction rejected", zap.String("transaction_id", transactionId), zap.String("user_id", userId))
	return nil
}

// ExecuteTransaction broadcasts a fully signed transaction and records the
// result. The proposal is first claimed as executing and committed, so the
// venue call holds no database lock. The broadcaster is keyed on the pending
// transaction id; a claim abandoned for longer than ExecutionClaimTimeout may
// be taken over and re-broadcast without submitting twice.
func (s *Service) ExecuteTransaction(ctx context.Context, transactionId, executorId string) (*models.WalletTransaction, error) {
	rec := &auditRecord{
		userId:       executorId,
		action:       "execute_transaction",
		resourceType: "transaction",
		resourceId:   transactionId,
	}

	claimed, wallet, err := s.claimForExecution(ctx, rec, transactionId, executorId)
	if err != nil {
		return nil, err
	}

	result, broadcastErr := s.broadcaster.Broadcast(ctx, wallet, claimed)

	var executed *models.WalletTransaction
	err = s.audited(ctx, rec, func(tx *database.Tx) error {
		p, err := tx.GetPendingTransaction(ctx, claimed.Id)
		if err != nil {
			return err
		}
		if p.Status != models.TransactionExecuting || p.Version != claimed.Version {
			return validationError("transaction %s was taken over by another executor", p.Id)
		}

		now := s.now()
		if broadcastErr != nil {
			// release the claim so the proposal can be executed again
			if err := tx.UpdatePendingStatus(ctx, p.Id, models.TransactionSigned, "", p.Version, now); err != nil {
				return err
			}
			return &commitThenFail{err: fmt.Errorf("broadcast failed: %w", broadcastErr)}
		}

		if err := tx.UpdatePendingStatus(ctx, p.Id, models.TransactionExecuted, "", p.Version, now); err != nil {
			return err
		}

		from := result.FromAddress
		if from == "" {
			from = wallet.WalletAddress
		}
		wt := &models.WalletTransaction{
			Id:                   uuid.New().String(),
			WalletId:             wallet.Id,
			PendingTransactionId: p.Id,
			TransactionHash:      result.TransactionHash,
			TransactionType:      p.TransactionType,
			FromAddress:          from,
			ToAddress:            p.ToAddress,
			Amount:               p.Amount,
			Currency:             p.Currency,
			ChainId:              p.ChainId,
			ExecutedBy:           executorId,
			Signatures:           p.Signatures,
			Status:               "pending",
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.InsertWalletTransaction(ctx, wt); err != nil {
			return err
		}
		executed = wt
		rec.detail("transaction_hash", wt.TransactionHash)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Transaction executed",
		zap.String("transaction_id", transactionId),
		zap.String("wallet_transaction_id", executed.Id),
		zap.String("transaction_hash", executed.TransactionHash))
	return executed, nil
}

// claimForExecution moves a signed proposal to executing in its own unit.
// Only a failed claim is audited here; the outcome is audited once the
// broadcast result is recorded.
func (s *Service) claimForExecution(ctx context.Context, rec *auditRecord, transactionId, executorId string) (*models.PendingTransaction, *models.Wallet, error) {
	var claimed *models.PendingTransaction
	var wallet *models.Wallet
	err := s.staged(ctx, rec, func(tx *database.Tx) error {
		p, err := s.loadPendingForUpdate(ctx, tx, rec, transactionId)
		if err != nil {
			return err
		}
		w, err := loadWalletForActor(ctx, tx, p.WalletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, w, executorId, models.PermissionExecute) {
			return permissionError("execute permission required")
		}

		now := s.now()
		switch {
		case p.Status == models.TransactionSigned:
		case p.Status == models.TransactionExecuting && now.Sub(p.UpdatedAt) >= s.cfg.ExecutionClaimTimeout:
			rec.detail("reclaimed", "true")
		case p.Status == models.TransactionExecuting:
			return validationError("transaction is already being executed")
		default:
			return validationError("transaction is %s, not signed", p.Status)
		}
		if w.Status != models.WalletStatusActive {
			return validationError("wallet is %s", w.Status)
		}
		if s.broadcaster == nil {
			return validationError("no execution venue configured")
		}

		if err := tx.UpdatePendingStatus(ctx, p.Id, models.TransactionExecuting, "", p.Version, now); err != nil {
			return err
		}
		p.Status = models.TransactionExecuting
		p.Version++
		p.UpdatedAt = now
		claimed, wallet = p, w
		return nil
	})
	return claimed, wallet, err
}

// UpdateConfirmations stores chain progress for an executed transaction.
func (s *Service) UpdateConfirmations(ctx context.Context, walletTransactionId string, confirmations int, blockNumber *int64) error {
	rec := &auditRecord{
		userId:       SystemActor,
		action:       "update_confirmations",
		resourceType: "wallet_transaction",
		resourceId:   walletTransactionId,
	}
	rec.detail("confirmations", strconv.Itoa(confirmations))

	return s.audited(ctx, rec, func(tx *database.Tx) error {
		wt, err := tx.GetWalletTransaction(ctx, walletTransactionId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return notFoundError("wallet transaction %s", walletTransactionId)
			}
			return err
		}
		rec.walletId = wt.WalletId
		if confirmations < 0 {
			return validationError("confirmations cannot be negative")
		}

		status := wt.Status
		if confirmations > 0 {
			status = "confirmed"
		}
		return tx.UpdateConfirmations(ctx, wt.Id, confirmations, blockNumber, status, s.now())
	})
}

// ListPendingTransactions returns the wallet's proposals, optionally by
// status. Statuses are reported as of now, so an open proposal past its
// deadline is listed as expired.
func (s *Service) ListPendingTransactions(ctx context.Context, walletId, userId string, status models.TransactionStatus) ([]models.PendingTransaction, error) {
	if !s.HasPermission(ctx, walletId, userId, models.PermissionView) {
		return nil, permissionError("not authorized for wallet %s", walletId)
	}
	all, err := s.db.ListPendingTransactions(ctx, walletId, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]models.PendingTransaction, 0, len(all))
	for _, p := range all {
		p.Status = p.EffectiveStatus(now)
		if status == "" || p.Status == status {
			result = append(result, p)
		}
	}
	return result, nil
}

// GetPendingTransaction returns nil without error when the user may not view
// the owning wallet. The status is reported as of now.
func (s *Service) GetPendingTransaction(ctx context.Context, transactionId, userId string) (*models.PendingTransaction, error) {
	p, err := s.db.GetPendingTransaction(ctx, transactionId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !s.HasPermission(ctx, p.WalletId, userId, models.PermissionView) {
		return nil, nil
	}
	p.Status = p.EffectiveStatus(s.now())
	return p, nil
}

func (s *Service) ListWalletTransactions(ctx context.Context, walletId, userId string) ([]models.WalletTransaction, error) {
	if !s.HasPermission(ctx, walletId, userId, models.PermissionView) {
		return nil, permissionError("not authorized for wallet %s", walletId)
	}
	return s.db.ListWalletTransactions(ctx, walletId)
}
