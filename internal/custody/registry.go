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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateWalletParams contains the parameters for creating a wallet
type CreateWalletParams struct {
	OwnerId            string
	WalletType         models.WalletType
	ChainId            int64
	MultisigType       models.MultisigType
	RequiredSignatures int
	TotalSigners       int
	SignerIds          []string
	WalletAddress      string
	Label              string
	Description        string
	UnlockTime         *time.Time
	Config             models.WalletConfig
}

type ListWalletsFilter struct {
	WalletType models.WalletType
	Status     models.WalletStatus
}

// CreateWallet registers the owner with role owner and every listed user as
// a signer. The wallet starts pending and is active once it has enough
// signing members.
func (s *Service) CreateWallet(ctx context.Context, params CreateWalletParams) (*models.Wallet, error) {
	walletId := uuid.New().String()
	rec := &auditRecord{
		walletId:     walletId,
		userId:       params.OwnerId,
		action:       "create_wallet",
		resourceType: "wallet",
		resourceId:   walletId,
	}
	rec.detail("wallet_type", string(params.WalletType))
	rec.detail("multisig_type", string(params.MultisigType))

	var wallet *models.Wallet
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		if err := s.validateCreateWallet(ctx, tx.Queries, params); err != nil {
			return err
		}

		now := s.now()
		config := params.Config
		if config == nil {
			config = models.WalletConfig{}
		}

		signers := []models.Signer{{WalletId: walletId, UserId: params.OwnerId, Role: models.RoleOwner, CreatedAt: now}}
		seen := map[string]bool{params.OwnerId: true}
		for _, signerId := range params.SignerIds {
			if seen[signerId] {
				continue
			}
			seen[signerId] = true
			signers = append(signers, models.Signer{WalletId: walletId, UserId: signerId, Role: models.RoleSigner, CreatedAt: now})
		}
		if len(signers) > params.TotalSigners {
			return validationError("%d signers listed for a %d-signer wallet", len(signers), params.TotalSigners)
		}

		w := &models.Wallet{
			Id:                 walletId,
			UserId:             params.OwnerId,
			WalletType:         params.WalletType,
			WalletAddress:      params.WalletAddress,
			ChainId:            params.ChainId,
			MultisigType:       params.MultisigType,
			RequiredSignatures: params.RequiredSignatures,
			TotalSigners:       len(signers),
			Status:             activationStatus(models.WalletStatusPending, len(signers), params.RequiredSignatures),
			UnlockTime:         params.UnlockTime,
			Label:              params.Label,
			Description:        params.Description,
			Config:             config,
			Balance:            decimal.Zero,
			Version:            1,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.InsertWallet(ctx, w); err != nil {
			return err
		}
		for _, signer := range signers {
			if err := tx.InsertSigner(ctx, signer); err != nil {
				return err
			}
		}

		w.Signers = signers
		wallet = w
		rec.detail("status", string(w.Status))
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Wallet created",
		zap.String("wallet_id", wallet.Id),
		zap.String("owner_id", wallet.UserId),
		zap.String("status", string(wallet.Status)),
		zap.Int("required_signatures", wallet.RequiredSignatures),
		zap.Int("total_signers", wallet.TotalSigners))
	return wallet, nil
}

func (s *Service) validateCreateWallet(ctx context.Context, q *database.Queries, params CreateWalletParams) error {
	if !params.WalletType.Valid() {
		return validationError("unknown wallet type %q", params.WalletType)
	}
	if params.RequiredSignatures < 1 || params.RequiredSignatures > params.TotalSigners {
		return validationError("required_signatures must be between 1 and total_signers (%d of %d)",
			params.RequiredSignatures, params.TotalSigners)
	}

	if params.WalletType == models.WalletTypeMultisig {
		if !params.MultisigType.Valid() {
			return validationError("multisig wallets need a multisig type")
		}
		if m, n, fixed := schemeShape(params.MultisigType); fixed && (params.RequiredSignatures != m || params.TotalSigners != n) {
			return validationError("%s wallets need %d of %d signatures", params.MultisigType, m, n)
		}
	} else if params.MultisigType != "" && !params.MultisigType.Valid() {
		return validationError("unknown multisig type %q", params.MultisigType)
	}

	if params.WalletType == models.WalletTypeTimelock {
		if params.UnlockTime == nil {
			return validationError("timelock wallets need an unlock time")
		}
		if !params.UnlockTime.After(s.now()) {
			return validationError("unlock time must be in the future")
		}
	}

	if err := s.requireUser(ctx, q, params.OwnerId, "owner"); err != nil {
		return err
	}
	for _, signerId := range params.SignerIds {
		if err := s.requireUser(ctx, q, signerId, "signer"); err != nil {
			return err
		}
	}
	return nil
}

func schemeShape(t models.MultisigType) (int, int, bool) {
	switch t {
	case models.MultisigTwoOfThree:
		return 2, 3, true
	case models.MultisigThreeOfFive:
		return 3, 5, true
	}
	return 0, 0, false
}

// activationStatus promotes a pending wallet once it has enough signing members.
func activationStatus(current models.WalletStatus, signing, required int) models.WalletStatus {
	if current == models.WalletStatusPending && signing >= required {
		return models.WalletStatusActive
	}
	return current
}

// requireUser checks userId against the external directory when one is
// configured, otherwise against the users table through q.
func (s *Service) requireUser(ctx context.Context, q *database.Queries, userId, label string) error {
	if userId == "" {
		return validationError("%s id is required", label)
	}
	var users store.UserDirectory = q
	if s.users != nil {
		users = s.users
	}
	if _, err := users.GetUserById(ctx, userId); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationError("%s %s does not exist", label, userId)
		}
		return fmt.Errorf("failed to look up %s: %w", label, err)
	}
	return nil
}

// AddSigner grants role to signerUserId. Only the owner may add signers.
// It returns false without error when the user already holds a role.
func (s *Service) AddSigner(ctx context.Context, walletId, signerUserId string, role models.SignerRole, actingUserId string) (bool, error) {
	rec := &auditRecord{
		walletId:     walletId,
		userId:       actingUserId,
		action:       "add_signer",
		resourceType: "signer",
		resourceId:   signerUserId,
	}
	rec.detail("role", string(role))

	var added bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		added = false
		wallet, err := loadWalletForActor(ctx, tx, walletId)
		if err != nil {
			return err
		}
		if wallet.UserId != actingUserId {
			return permissionError("only the wallet owner may add signers")
		}
		if wallet.Status == models.WalletStatusArchived {
			return validationError("wallet is archived")
		}
		if !role.Valid() || role == models.RoleOwner {
			return validationError("role %q cannot be granted", role)
		}
		if err := s.requireUser(ctx, tx.Queries, signerUserId, "signer"); err != nil {
			return err
		}

		if _, err := tx.GetSignerRole(ctx, walletId, signerUserId); err == nil {
			rec.detail("result", "already_signer")
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.now()
		if err := tx.InsertSigner(ctx, models.Signer{WalletId: walletId, UserId: signerUserId, Role: role, CreatedAt: now}); err != nil {
			return err
		}
		if err := s.recountSigners(ctx, tx, wallet, now); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if added {
		zap.L().Info("Signer added",
			zap.String("wallet_id", walletId),
			zap.String("user_id", signerUserId),
			zap.String("role", string(role)))
	} else {
		zap.L().Warn("User is already a signer, skipping",
			zap.String("wallet_id", walletId),
			zap.String("user_id", signerUserId))
	}
	return added, nil
}

// RemoveSigner revokes signerUserId's role. The wallet owner can never be
// removed this way.
func (s *Service) RemoveSigner(ctx context.Context, walletId, signerUserId, actingUserId string) (bool, error) {
	rec := &auditRecord{
		walletId:     walletId,
		userId:       actingUserId,
		action:       "remove_signer",
		resourceType: "signer",
		resourceId:   signerUserId,
	}

	var removed bool
	err := s.audited(ctx, rec, func(tx *database.Tx) error {
		removed = false
		wallet, err := loadWalletForActor(ctx, tx, walletId)
		if err != nil {
			return err
		}
		if signerUserId == wallet.UserId {
			return validationError("the wallet owner cannot be removed")
		}
		if wallet.UserId != actingUserId {
			return permissionError("only the wallet owner may remove signers")
		}

		role, err := tx.GetSignerRole(ctx, walletId, signerUserId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				rec.detail("result", "not_signer")
				return nil
			}
			return err
		}
		rec.detail("role", string(role))

		if role.CanSign() && wallet.Status == models.WalletStatusActive {
			signing, err := tx.CountSigningSigners(ctx, walletId)
			if err != nil {
				return err
			}
			if signing-1 < wallet.RequiredSignatures {
				return validationError("removing %s leaves fewer than %d signers", signerUserId, wallet.RequiredSignatures)
			}
		}

		ok, err := tx.DeleteSigner(ctx, walletId, signerUserId)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := s.recountSigners(ctx, tx, wallet, s.now()); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		zap.L().Info("Signer removed", zap.String("wallet_id", walletId), zap.String("user_id", signerUserId))
	}
	return removed, nil
}

// recountSigners derives total_signers from the association table and
// applies the activation trigger.
func (s *Service) recountSigners(ctx context.Context, tx *database.Tx, wallet *models.Wallet, now time.Time) error {
	signing, err := tx.CountSigningSigners(ctx, wallet.Id)
	if err != nil {
		return err
	}
	if signing < 1 {
		signing = 1
	}
	status := activationStatus(wallet.Status, signing, wallet.RequiredSignatures)
	if err := tx.UpdateWalletSigners(ctx, wallet.Id, signing, status, wallet.Version, now); err != nil {
		return err
	}
	wallet.TotalSigners = signing
	wallet.Status = status
	wallet.Version++
	return nil
}

// SetWalletStatus moves a wallet between administrative states. Archived is
// terminal and a wallet only becomes active with enough signing members.
func (s *Service) SetWalletStatus(ctx context.Context, walletId string, status models.WalletStatus, actingUserId string) error {
	rec := &auditRecord{
		walletId:     walletId,
		userId:       actingUserId,
		action:       "set_wallet_status",
		resourceType: "wallet",
		resourceId:   walletId,
	}
	rec.detail("status", string(status))

	return s.audited(ctx, rec, func(tx *database.Tx) error {
		wallet, err := loadWalletForActor(ctx, tx, walletId)
		if err != nil {
			return err
		}
		if !s.permitted(ctx, tx.Queries, wallet, actingUserId, models.PermissionAdmin) {
			return permissionError("admin permission required")
		}
		if !status.Valid() || status == models.WalletStatusPending {
			return validationError("cannot move a wallet to status %q", status)
		}
		if wallet.Status == models.WalletStatusArchived {
			return validationError("wallet is archived")
		}
		if status == models.WalletStatusActive {
			signing, err := tx.CountSigningSigners(ctx, walletId)
			if err != nil {
				return err
			}
			if signing < wallet.RequiredSignatures {
				return validationError("wallet has %d of %d required signers", signing, wallet.RequiredSignatures)
			}
		}
		rec.detail("previous_status", string(wallet.Status))
		return tx.UpdateWalletStatus(ctx, walletId, status, wallet.Version, s.now())
	})
}

// GetWallet returns nil without error when the user may not view the wallet,
// whether or not it exists.
func (s *Service) GetWallet(ctx context.Context, walletId, userId string) (*models.Wallet, error) {
	wallet, err := s.db.GetWallet(ctx, walletId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !s.permitted(ctx, s.db.Queries, wallet, userId, models.PermissionView) {
		return nil, nil
	}

	signers, err := s.db.ListSigners(ctx, walletId)
	if err != nil {
		return nil, err
	}
	wallet.Signers = signers
	return wallet, nil
}

// ListWallets returns every wallet the user owns or holds a role on.
func (s *Service) ListWallets(ctx context.Context, userId string, filter ListWalletsFilter) ([]models.Wallet, error) {
	return s.db.ListWalletsForUser(ctx, userId, filter.WalletType, filter.Status)
}

func (s *Service) ListSigners(ctx context.Context, walletId, userId string) ([]models.Signer, error) {
	if !s.HasPermission(ctx, walletId, userId, models.PermissionView) {
		return nil, permissionError("not authorized for wallet %s", walletId)
	}
	return s.db.ListSigners(ctx, walletId)
}
