package custody

import (
	"context"
	"errors"

	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"go.uber.org/zap"
)

// roleAllows is the permission lattice for signer associations. The wallet
// owner is handled before this is consulted.
func roleAllows(role models.SignerRole, permission models.Permission) bool {
	switch permission {
	case models.PermissionView:
		return role.Valid()
	case models.PermissionSign:
		return role == models.RoleOwner || role == models.RoleSigner || role == models.RoleAdmin
	case models.PermissionExecute, models.PermissionAdmin:
		return role == models.RoleOwner || role == models.RoleAdmin
	}
	return false
}

// HasPermission reports whether userId holds permission on the wallet. A
// missing wallet, a missing association, or a failed lookup all deny.
func (s *Service) HasPermission(ctx context.Context, walletId, userId string, permission models.Permission) bool {
	wallet, err := s.db.GetWallet(ctx, walletId)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("Permission lookup failed", zap.String("wallet_id", walletId), zap.Error(err))
		}
		return false
	}
	return s.permitted(ctx, s.db.Queries, wallet, userId, permission)
}

// permitted evaluates permission for an already loaded wallet using q, so it
// can run inside a unit of work.
func (s *Service) permitted(ctx context.Context, q *database.Queries, wallet *models.Wallet, userId string, permission models.Permission) bool {
	if userId == "" {
		return false
	}
	if wallet.UserId == userId {
		return true
	}

	role, err := q.GetSignerRole(ctx, wallet.Id, userId)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Error("Signer role lookup failed",
				zap.String("wallet_id", wallet.Id),
				zap.String("user_id", userId),
				zap.Error(err))
		}
		return false
	}
	return roleAllows(role, permission)
}

// loadWalletForActor loads a wallet inside a unit of work. A missing wallet is
// reported as a permission failure so callers cannot probe for existence.
func loadWalletForActor(ctx context.Context, tx *database.Tx, walletId string) (*models.Wallet, error) {
	wallet, err := tx.GetWallet(ctx, walletId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, permissionError("not authorized for wallet %s", walletId)
		}
		return nil, err
	}
	return wallet, nil
}
