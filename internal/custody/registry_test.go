package custody

import (
	"context"
	"errors"
	"testing"
	"time"

	"institutional-custody-go/internal/models"
)

func TestCreateWallet_TwoOfThree(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)

	if wallet.RequiredSignatures != 2 || wallet.TotalSigners != 3 {
		t.Errorf("Expected 2 of 3, got %d of %d", wallet.RequiredSignatures, wallet.TotalSigners)
	}
	if wallet.Status != models.WalletStatusActive {
		t.Errorf("Expected fully staffed wallet to be active, got %s", wallet.Status)
	}

	got, err := env.svc.GetWallet(ctx, wallet.Id, "u3")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if got == nil || len(got.Signers) != 3 {
		t.Fatalf("Expected wallet with 3 signers, got %+v", got)
	}
	if got.Signers[0].UserId != "u1" || got.Signers[0].Role != models.RoleOwner {
		t.Errorf("Expected creator registered as owner, got %+v", got.Signers[0])
	}

	if n := env.auditCount(t, wallet.Id); n != 1 {
		t.Errorf("Expected 1 audit entry for creation, got %d", n)
	}
}

func TestCreateWallet_OwnerOnlyDefaults(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet, err := env.svc.CreateWallet(ctx, CreateWalletParams{
		OwnerId:            "u1",
		WalletType:         models.WalletTypeTreasury,
		ChainId:            1,
		RequiredSignatures: 1,
		TotalSigners:       1,
	})
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if wallet.TotalSigners != 1 || wallet.Status != models.WalletStatusActive {
		t.Errorf("Expected single-owner active wallet, got total=%d status=%s", wallet.TotalSigners, wallet.Status)
	}
	if len(wallet.Signers) != 1 || wallet.Signers[0].Role != models.RoleOwner {
		t.Errorf("Expected owner alone, got %+v", wallet.Signers)
	}
}

func TestCreateWallet_Validation(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	past := env.clock.Now().Add(-time.Hour)

	tests := []struct {
		name   string
		params CreateWalletParams
	}{
		{"multisig without scheme", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeMultisig, ChainId: 1, RequiredSignatures: 2, TotalSigners: 3}},
		{"M greater than N", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeMultisig, ChainId: 1, MultisigType: models.MultisigCustom, RequiredSignatures: 4, TotalSigners: 3}},
		{"zero threshold", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeMultisig, ChainId: 1, MultisigType: models.MultisigCustom, RequiredSignatures: 0, TotalSigners: 3}},
		{"scheme mismatch", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeMultisig, ChainId: 1, MultisigType: models.MultisigTwoOfThree, RequiredSignatures: 3, TotalSigners: 5}},
		{"unknown type", CreateWalletParams{OwnerId: "u1", WalletType: "vault", ChainId: 1, RequiredSignatures: 1, TotalSigners: 1}},
		{"timelock without unlock", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeTimelock, ChainId: 1, RequiredSignatures: 1, TotalSigners: 1}},
		{"timelock in the past", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeTimelock, ChainId: 1, RequiredSignatures: 1, TotalSigners: 1, UnlockTime: &past}},
		{"unknown owner", CreateWalletParams{OwnerId: "nobody", WalletType: models.WalletTypeTreasury, ChainId: 1, RequiredSignatures: 1, TotalSigners: 1}},
		{"unknown signer", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeMultisig, ChainId: 1, MultisigType: models.MultisigTwoOfThree, RequiredSignatures: 2, TotalSigners: 3, SignerIds: []string{"nobody"}}},
		{"too many signers", CreateWalletParams{OwnerId: "u1", WalletType: models.WalletTypeTreasury, ChainId: 1, RequiredSignatures: 1, TotalSigners: 2, SignerIds: []string{"u2", "u3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet, err := env.svc.CreateWallet(ctx, tt.params)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
			if wallet != nil {
				t.Errorf("Expected no wallet, got %+v", wallet)
			}
		})
	}

	wallets, err := env.svc.ListWallets(ctx, "u1", ListWalletsFilter{})
	if err != nil {
		t.Fatalf("ListWallets failed: %v", err)
	}
	if len(wallets) != 0 {
		t.Errorf("Expected failed creations to leave nothing behind, got %d wallets", len(wallets))
	}
}

func TestAddSigner_ActivatesWallet(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet, err := env.svc.CreateWallet(ctx, CreateWalletParams{
		OwnerId:            "u1",
		WalletType:         models.WalletTypeMultisig,
		ChainId:            1,
		MultisigType:       models.MultisigTwoOfThree,
		RequiredSignatures: 2,
		TotalSigners:       3,
	})
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if wallet.Status != models.WalletStatusPending {
		t.Fatalf("Expected owner-only 2 of 3 wallet to be pending, got %s", wallet.Status)
	}

	added, err := env.svc.AddSigner(ctx, wallet.Id, "u2", models.RoleSigner, "u1")
	if err != nil || !added {
		t.Fatalf("AddSigner failed: %v (%v)", added, err)
	}

	got, _ := env.svc.GetWallet(ctx, wallet.Id, "u1")
	if got.Status != models.WalletStatusActive || got.TotalSigners != 2 {
		t.Errorf("Expected active wallet with 2 signers, got status=%s total=%d", got.Status, got.TotalSigners)
	}
}

func TestAddSigner_Rules(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)

	if _, err := env.svc.AddSigner(ctx, wallet.Id, "u4", models.RoleSigner, "u2"); !errors.Is(err, ErrPermission) {
		t.Errorf("Expected ErrPermission for non-owner, got %v", err)
	}
	if _, err := env.svc.AddSigner(ctx, wallet.Id, "nobody", models.RoleSigner, "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown user, got %v", err)
	}
	if _, err := env.svc.AddSigner(ctx, wallet.Id, "u4", models.RoleOwner, "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for owner role, got %v", err)
	}
	if _, err := env.svc.AddSigner(ctx, "missing", "u4", models.RoleSigner, "u1"); !errors.Is(err, ErrPermission) {
		t.Errorf("Expected missing wallet to look like a permission failure, got %v", err)
	}

	added, err := env.svc.AddSigner(ctx, wallet.Id, "u2", models.RoleAdmin, "u1")
	if err != nil {
		t.Fatalf("Expected duplicate add to succeed quietly, got %v", err)
	}
	if added {
		t.Error("Expected duplicate add to return false")
	}

	role, _ := env.db.GetSignerRole(ctx, wallet.Id, "u2")
	if role != models.RoleSigner {
		t.Errorf("Expected duplicate add to leave role unchanged, got %s", role)
	}

	// creation, three refused attempts and the no-op
	if n := env.auditCount(t, wallet.Id); n != 5 {
		t.Errorf("Expected 5 audit entries, got %d", n)
	}
}

func TestRemoveSigner_OwnerIrremovable(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)
	before := env.auditCount(t, wallet.Id)

	for _, actor := range []string{"u1", "u2", "outsider"} {
		removed, err := env.svc.RemoveSigner(ctx, wallet.Id, "u1", actor)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("RemoveSigner(owner) by %s: expected ErrValidation, got %v", actor, err)
		}
		if removed {
			t.Errorf("RemoveSigner(owner) by %s reported removal", actor)
		}
	}

	got, _ := env.svc.GetWallet(ctx, wallet.Id, "u1")
	if got.TotalSigners != 3 || len(got.Signers) != 3 {
		t.Errorf("Expected wallet unchanged, got total=%d signers=%d", got.TotalSigners, len(got.Signers))
	}

	logs, _ := env.svc.ExportAuditLogs(ctx, wallet.Id, AuditFilter{})
	if len(logs)-before != 3 {
		t.Fatalf("Expected one audit entry per attempt, got %d", len(logs)-before)
	}
	if logs[0].Success || logs[0].Action != "remove_signer" || logs[0].ErrorMessage == "" {
		t.Errorf("Expected failed remove_signer entry, got %+v", logs[0])
	}
}

func TestRemoveSigner(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)
	if _, err := env.svc.AddSigner(ctx, wallet.Id, "u4", models.RoleSigner, "u1"); err != nil {
		t.Fatalf("AddSigner failed: %v", err)
	}

	if _, err := env.svc.RemoveSigner(ctx, wallet.Id, "u4", "u2"); !errors.Is(err, ErrPermission) {
		t.Errorf("Expected ErrPermission for non-owner, got %v", err)
	}

	removed, err := env.svc.RemoveSigner(ctx, wallet.Id, "u4", "u1")
	if err != nil || !removed {
		t.Fatalf("RemoveSigner failed: %v (%v)", removed, err)
	}
	removed, err = env.svc.RemoveSigner(ctx, wallet.Id, "u4", "u1")
	if err != nil || removed {
		t.Errorf("Expected second removal to be a no-op, got %v (%v)", removed, err)
	}

	if _, err := env.svc.RemoveSigner(ctx, wallet.Id, "u3", "u1"); err != nil {
		t.Fatalf("RemoveSigner failed: %v", err)
	}
	got, _ := env.svc.GetWallet(ctx, wallet.Id, "u1")
	if got.TotalSigners != 2 {
		t.Errorf("Expected 2 signers, got %d", got.TotalSigners)
	}

	if _, err := env.svc.RemoveSigner(ctx, wallet.Id, "u2", "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected removal below threshold to fail, got %v", err)
	}
}

func TestGetWallet_HidesExistence(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)

	got, err := env.svc.GetWallet(ctx, wallet.Id, "outsider")
	if err != nil || got != nil {
		t.Errorf("Expected nil, nil for outsider, got %v, %v", got, err)
	}
	got, err = env.svc.GetWallet(ctx, "missing", "u1")
	if err != nil || got != nil {
		t.Errorf("Expected nil, nil for missing wallet, got %v, %v", got, err)
	}
	if _, err := env.svc.ListSigners(ctx, wallet.Id, "outsider"); !errors.Is(err, ErrPermission) {
		t.Errorf("Expected ErrPermission listing signers, got %v", err)
	}
}

func TestListWallets(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	multisig := env.newTwoOfThree(t)
	treasury, err := env.svc.CreateWallet(ctx, CreateWalletParams{
		OwnerId:            "u2",
		WalletType:         models.WalletTypeTreasury,
		ChainId:            1,
		RequiredSignatures: 1,
		TotalSigners:       1,
	})
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	wallets, _ := env.svc.ListWallets(ctx, "u2", ListWalletsFilter{})
	if len(wallets) != 2 {
		t.Errorf("Expected u2 to see owned and signed wallets, got %d", len(wallets))
	}

	wallets, _ = env.svc.ListWallets(ctx, "u2", ListWalletsFilter{WalletType: models.WalletTypeTreasury})
	if len(wallets) != 1 || wallets[0].Id != treasury.Id {
		t.Errorf("Expected only the treasury wallet, got %+v", wallets)
	}

	wallets, _ = env.svc.ListWallets(ctx, "u3", ListWalletsFilter{Status: models.WalletStatusActive})
	if len(wallets) != 1 || wallets[0].Id != multisig.Id {
		t.Errorf("Expected u3 to see the multisig wallet, got %+v", wallets)
	}
}

func TestSetWalletStatus(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	wallet := env.newTwoOfThree(t)

	if err := env.svc.SetWalletStatus(ctx, wallet.Id, models.WalletStatusFrozen, "u2"); !errors.Is(err, ErrPermission) {
		t.Errorf("Expected signer to be refused, got %v", err)
	}
	if err := env.svc.SetWalletStatus(ctx, wallet.Id, models.WalletStatusFrozen, "u1"); err != nil {
		t.Fatalf("SetWalletStatus failed: %v", err)
	}

	_, err := env.svc.CreatePendingTransaction(ctx, CreatePendingTransactionParams{
		WalletId:        wallet.Id,
		TransactionType: "transfer",
		CreatorId:       "u1",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected frozen wallet to refuse proposals, got %v", err)
	}

	if err := env.svc.SetWalletStatus(ctx, wallet.Id, models.WalletStatusArchived, "u1"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := env.svc.SetWalletStatus(ctx, wallet.Id, models.WalletStatusActive, "u1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected archived to be terminal, got %v", err)
	}
}
