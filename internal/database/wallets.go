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
	"errors"
	"fmt"
	"time"

	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Queries) InsertWallet(ctx context.Context, w *models.Wallet) error {
	config, err := encodeJSON(w.Config)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, queryInsertWallet,
		w.Id, w.UserId, string(w.WalletType), w.WalletAddress, w.ChainId, string(w.MultisigType),
		w.RequiredSignatures, w.TotalSigners, string(w.Status), nullableTime(w.UnlockTime),
		w.Label, w.Description, config, w.Balance.String(), nullableTime(w.BalanceUpdatedAt),
		w.Version, utc(w.CreatedAt), utc(w.UpdatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("wallet %s: %w", w.Id, store.ErrDuplicate)
		}
		zap.L().Error("Failed to insert wallet", zap.String("wallet_id", w.Id), zap.Error(err))
		return fmt.Errorf("unable to insert wallet: %w", err)
	}
	return nil
}

func (s *Queries) GetWallet(ctx context.Context, walletId string) (*models.Wallet, error) {
	w, err := scanWallet(s.q.QueryRowContext(ctx, queryGetWallet, walletId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s: %w", walletId, store.ErrNotFound)
		}
		zap.L().Error("Failed to query wallet", zap.String("wallet_id", walletId), zap.Error(err))
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}
	return w, nil
}

// ListWalletsForUser returns wallets the user owns or holds any role on,
// newest first. Empty filter values match everything.
func (s *Queries) ListWalletsForUser(ctx context.Context, userId string, walletType models.WalletType, status models.WalletStatus) ([]models.Wallet, error) {
	zap.L().Debug("Querying wallets for user", zap.String("user_id", userId))

	rows, err := s.q.QueryContext(ctx, queryListWalletsForUser,
		userId, userId, string(walletType), string(walletType), string(status), string(status))
	if err != nil {
		zap.L().Error("Failed to query wallets", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			zap.L().Error("Failed to scan wallet row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	return wallets, nil
}

// UpdateWalletSigners stores a recomputed signer total and status, guarded by version.
func (s *Queries) UpdateWalletSigners(ctx context.Context, walletId string, totalSigners int, status models.WalletStatus, version int64, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateWalletSigners, totalSigners, string(status), utc(now), walletId, version)
	if err != nil {
		return fmt.Errorf("failed to update wallet signers: %w", err)
	}
	return expectAffected(result, "wallet")
}

func (s *Queries) UpdateWalletStatus(ctx context.Context, walletId string, status models.WalletStatus, version int64, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateWalletStatus, string(status), utc(now), walletId, version)
	if err != nil {
		return fmt.Errorf("failed to update wallet status: %w", err)
	}
	return expectAffected(result, "wallet")
}

func (s *Queries) UpdateWalletOwner(ctx context.Context, walletId, ownerId string, totalSigners int, version int64, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateWalletOwner, ownerId, totalSigners, utc(now), walletId, version)
	if err != nil {
		return fmt.Errorf("failed to update wallet owner: %w", err)
	}
	return expectAffected(result, "wallet")
}

// InsertSigner adds an association; an existing (wallet, user) pair yields store.ErrDuplicate.
func (s *Queries) InsertSigner(ctx context.Context, signer models.Signer) error {
	_, err := s.q.ExecContext(ctx, queryInsertSigner, signer.WalletId, signer.UserId, string(signer.Role), utc(signer.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("signer %s on wallet %s: %w", signer.UserId, signer.WalletId, store.ErrDuplicate)
		}
		return fmt.Errorf("unable to insert signer: %w", err)
	}
	return nil
}

func (s *Queries) GetSignerRole(ctx context.Context, walletId, userId string) (models.SignerRole, error) {
	var role string
	err := s.q.QueryRowContext(ctx, queryGetSignerRole, walletId, userId).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("signer %s on wallet %s: %w", userId, walletId, store.ErrNotFound)
		}
		return "", fmt.Errorf("unable to query signer role: %w", err)
	}
	return models.SignerRole(role), nil
}

func (s *Queries) UpdateSignerRole(ctx context.Context, walletId, userId string, role models.SignerRole) error {
	result, err := s.q.ExecContext(ctx, queryUpdateSignerRole, string(role), walletId, userId)
	if err != nil {
		return fmt.Errorf("failed to update signer role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("signer %s on wallet %s: %w", userId, walletId, store.ErrNotFound)
	}
	return nil
}

// DeleteSigner reports whether an association was removed.
func (s *Queries) DeleteSigner(ctx context.Context, walletId, userId string) (bool, error) {
	result, err := s.q.ExecContext(ctx, queryDeleteSigner, walletId, userId)
	if err != nil {
		return false, fmt.Errorf("failed to delete signer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (s *Queries) ListSigners(ctx context.Context, walletId string) ([]models.Signer, error) {
	rows, err := s.q.QueryContext(ctx, queryListSigners, walletId)
	if err != nil {
		return nil, fmt.Errorf("unable to query signers: %w", err)
	}
	defer closeRows(rows)

	var signers []models.Signer
	for rows.Next() {
		var signer models.Signer
		var role string
		if err := rows.Scan(&signer.WalletId, &signer.UserId, &role, &signer.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan signer row: %w", err)
		}
		signer.Role = models.SignerRole(role)
		signer.CreatedAt = signer.CreatedAt.UTC()
		signers = append(signers, signer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signer rows: %w", err)
	}
	return signers, nil
}

// CountSigningSigners counts associations whose role can sign.
func (s *Queries) CountSigningSigners(ctx context.Context, walletId string) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, queryCountSigningSigners, walletId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count signers: %w", err)
	}
	return count, nil
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var walletType, multisigType, status, config, balance string
	var unlockTime, balanceUpdatedAt sql.NullTime

	err := row.Scan(&w.Id, &w.UserId, &walletType, &w.WalletAddress, &w.ChainId, &multisigType,
		&w.RequiredSignatures, &w.TotalSigners, &status, &unlockTime, &w.Label, &w.Description,
		&config, &balance, &balanceUpdatedAt, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.WalletType = models.WalletType(walletType)
	w.MultisigType = models.MultisigType(multisigType)
	w.Status = models.WalletStatus(status)
	w.UnlockTime = timePtr(unlockTime)
	w.BalanceUpdatedAt = timePtr(balanceUpdatedAt)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()

	if err := decodeJSON(config, &w.Config); err != nil {
		return nil, err
	}
	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balance, err)
	}
	return &w, nil
}
