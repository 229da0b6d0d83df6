package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	service, err := NewServiceWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func newTestWallet(now time.Time) *models.Wallet {
	return &models.Wallet{
		Id:                 uuid.New().String(),
		UserId:             "owner",
		WalletType:         models.WalletTypeMultisig,
		ChainId:            1,
		MultisigType:       models.MultisigTwoOfThree,
		RequiredSignatures: 2,
		TotalSigners:       1,
		Status:             models.WalletStatusPending,
		Label:              "treasury",
		Config:             models.WalletConfig{"prime_wallet_id": "pw-1"},
		Balance:            decimal.Zero,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestUserDirectory(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()

	user, err := service.CreateUser(ctx, "u1", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Id != "u1" {
		t.Errorf("Expected id u1, got %s", user.Id)
	}

	if _, err := service.CreateUser(ctx, "u2", "Alice Again", "alice@example.com"); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for repeated email, got %v", err)
	}

	if _, err := service.GetUserById(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	users, err := service.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(users))
	}
}

func TestWalletRoundTrip(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	wallet := newTestWallet(now)

	if err := service.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	got, err := service.GetWallet(ctx, wallet.Id)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if got.RequiredSignatures != 2 || got.MultisigType != models.MultisigTwoOfThree {
		t.Errorf("Unexpected wallet scheme: %+v", got)
	}
	if got.Config["prime_wallet_id"] != "pw-1" {
		t.Errorf("Expected config to round trip, got %v", got.Config)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at %v, got %v", now, got.CreatedAt)
	}
	if got.UnlockTime != nil {
		t.Errorf("Expected nil unlock time, got %v", got.UnlockTime)
	}

	if _, err := service.GetWallet(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateWalletSigners_VersionGuard(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	wallet := newTestWallet(now)
	if err := service.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	if err := service.UpdateWalletSigners(ctx, wallet.Id, 2, models.WalletStatusActive, 1, now); err != nil {
		t.Fatalf("First update failed: %v", err)
	}

	// Stale version must be rejected
	err := service.UpdateWalletSigners(ctx, wallet.Id, 3, models.WalletStatusActive, 1, now)
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected ErrConcurrentModification, got %v", err)
	}

	got, _ := service.GetWallet(ctx, wallet.Id)
	if got.TotalSigners != 2 || got.Version != 2 || got.Status != models.WalletStatusActive {
		t.Errorf("Unexpected wallet after update: total=%d version=%d status=%s", got.TotalSigners, got.Version, got.Status)
	}
}

func TestSigners(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	wallet := newTestWallet(now)
	if err := service.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	signers := []models.Signer{
		{WalletId: wallet.Id, UserId: "owner", Role: models.RoleOwner, CreatedAt: now},
		{WalletId: wallet.Id, UserId: "s1", Role: models.RoleSigner, CreatedAt: now.Add(time.Second)},
		{WalletId: wallet.Id, UserId: "v1", Role: models.RoleViewer, CreatedAt: now.Add(2 * time.Second)},
	}
	for _, signer := range signers {
		if err := service.InsertSigner(ctx, signer); err != nil {
			t.Fatalf("InsertSigner failed: %v", err)
		}
	}

	if err := service.InsertSigner(ctx, signers[1]); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	count, err := service.CountSigningSigners(ctx, wallet.Id)
	if err != nil {
		t.Fatalf("CountSigningSigners failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 signing signers, got %d", count)
	}

	role, err := service.GetSignerRole(ctx, wallet.Id, "v1")
	if err != nil || role != models.RoleViewer {
		t.Errorf("Expected viewer role, got %s (%v)", role, err)
	}

	removed, err := service.DeleteSigner(ctx, wallet.Id, "s1")
	if err != nil || !removed {
		t.Errorf("Expected signer removal, got %v (%v)", removed, err)
	}
	removed, _ = service.DeleteSigner(ctx, wallet.Id, "s1")
	if removed {
		t.Error("Expected second removal to report false")
	}

	list, err := service.ListSigners(ctx, wallet.Id)
	if err != nil {
		t.Fatalf("ListSigners failed: %v", err)
	}
	if len(list) != 2 || list[0].UserId != "owner" {
		t.Errorf("Unexpected signers: %+v", list)
	}

	wallets, err := service.ListWalletsForUser(ctx, "v1", "", "")
	if err != nil {
		t.Fatalf("ListWalletsForUser failed: %v", err)
	}
	if len(wallets) != 1 {
		t.Errorf("Expected viewer to see 1 wallet, got %d", len(wallets))
	}

	wallets, _ = service.ListWalletsForUser(ctx, "v1", models.WalletTypeTreasury, "")
	if len(wallets) != 0 {
		t.Errorf("Expected type filter to exclude wallet, got %d", len(wallets))
	}
}

func TestPendingTransactions(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	wallet := newTestWallet(now)
	if err := service.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	pending := &models.PendingTransaction{
		Id:                 uuid.New().String(),
		WalletId:           wallet.Id,
		TransactionType:    "transfer",
		ToAddress:          "0xabc",
		Amount:             decimal.RequireFromString("1.25"),
		Currency:           "ETH",
		ChainId:            1,
		Payload:            models.TransactionPayload{To: "0xabc", Value: decimal.RequireFromString("1.25"), Currency: "ETH", ChainId: 1},
		Signatures:         map[string]models.SignatureData{},
		RequiredSignatures: 2,
		Status:             models.TransactionPending,
		ExpiresAt:          now.Add(time.Hour),
		CreatedBy:          "owner",
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := service.InsertPendingTransaction(ctx, pending); err != nil {
		t.Fatalf("InsertPendingTransaction failed: %v", err)
	}

	got, err := service.GetPendingTransaction(ctx, pending.Id)
	if err != nil {
		t.Fatalf("GetPendingTransaction failed: %v", err)
	}
	if !got.Amount.Equal(pending.Amount) || got.Payload.To != "0xabc" {
		t.Errorf("Unexpected pending transaction: %+v", got)
	}

	got.Signatures["owner"] = models.SignatureData{Signature: "sig", SignedAt: now}
	if err := service.UpdatePendingSignatures(ctx, got, now); err != nil {
		t.Fatalf("UpdatePendingSignatures failed: %v", err)
	}
	if err := service.UpdatePendingSignatures(ctx, got, now); !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected stale version to be rejected, got %v", err)
	}

	reread, _ := service.GetPendingTransaction(ctx, pending.Id)
	if reread.SignatureCount() != 1 || reread.Version != 2 {
		t.Errorf("Expected 1 signature at version 2, got %d at %d", reread.SignatureCount(), reread.Version)
	}

	expired, err := service.ListExpiredPendingTransactions(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListExpiredPendingTransactions failed: %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("Expected 1 expired transaction, got %d", len(expired))
	}
	expired, _ = service.ListExpiredPendingTransactions(ctx, now.Add(30*time.Minute))
	if len(expired) != 0 {
		t.Errorf("Expected no expired transactions yet, got %d", len(expired))
	}

	executed := &models.WalletTransaction{
		Id:                   uuid.New().String(),
		WalletId:             wallet.Id,
		PendingTransactionId: pending.Id,
		TransactionHash:      "0xhash",
		TransactionType:      "transfer",
		Amount:               pending.Amount,
		ChainId:              1,
		ExecutedBy:           "owner",
		Signatures:           reread.Signatures,
		Status:               "pending",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := service.InsertWalletTransaction(ctx, executed); err != nil {
		t.Fatalf("InsertWalletTransaction failed: %v", err)
	}
	executed.Id = uuid.New().String()
	if err := service.InsertWalletTransaction(ctx, executed); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected one execution record per pending transaction, got %v", err)
	}
}

func TestExportAccessLogs_NewestFirstWithFilters(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.AccessLog{
		{Id: "a", WalletId: "w1", UserId: "alice", Action: "create_wallet", ResourceType: "wallet", Success: true, CreatedAt: base},
		{Id: "b", WalletId: "w1", UserId: "bob", Action: "sign_transaction", ResourceType: "transaction", Success: false, ErrorMessage: "permission denied", CreatedAt: base.Add(time.Minute)},
		{Id: "c", WalletId: "w1", UserId: "alice", Action: "add_signer", ResourceType: "wallet", Success: true, Details: map[string]string{"role": "signer"}, CreatedAt: base.Add(2 * time.Minute)},
		{Id: "d", WalletId: "w2", UserId: "alice", Action: "create_wallet", ResourceType: "wallet", Success: true, CreatedAt: base},
	}
	for i := range entries {
		if err := service.InsertAccessLog(ctx, &entries[i]); err != nil {
			t.Fatalf("InsertAccessLog failed: %v", err)
		}
	}

	logs, err := service.ExportAccessLogs(ctx, "w1", nil, nil, "")
	if err != nil {
		t.Fatalf("ExportAccessLogs failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(logs))
	}
	if logs[0].Id != "c" || logs[2].Id != "a" {
		t.Errorf("Expected newest first, got %s..%s", logs[0].Id, logs[2].Id)
	}
	if logs[0].Details["role"] != "signer" {
		t.Errorf("Expected details to round trip, got %v", logs[0].Details)
	}
	if logs[1].Success || logs[1].ErrorMessage != "permission denied" {
		t.Errorf("Expected failed entry to keep its error, got %+v", logs[1])
	}

	from := base.Add(30 * time.Second)
	logs, _ = service.ExportAccessLogs(ctx, "w1", &from, nil, "alice")
	if len(logs) != 1 || logs[0].Id != "c" {
		t.Errorf("Expected only entry c, got %+v", logs)
	}

	to := base
	logs, _ = service.ExportAccessLogs(ctx, "w1", nil, &to, "")
	if len(logs) != 1 || logs[0].Id != "a" {
		t.Errorf("Expected only entry a, got %+v", logs)
	}
}

func TestGuardiansAndVotes(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	wallet := newTestWallet(now)
	if err := service.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	guardian := &models.Guardian{
		Id:        uuid.New().String(),
		WalletId:  wallet.Id,
		Email:     "Guardian@Example.com",
		Status:    models.GuardianPending,
		AddedBy:   "owner",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.InsertGuardian(ctx, guardian); err != nil {
		t.Fatalf("InsertGuardian failed: %v", err)
	}

	dup, err := service.HasActiveGuardian(ctx, wallet.Id, "", "guardian@example.com")
	if err != nil || !dup {
		t.Errorf("Expected case-insensitive duplicate, got %v (%v)", dup, err)
	}
	dup, _ = service.HasActiveGuardian(ctx, wallet.Id, "someone", "")
	if dup {
		t.Error("Expected no duplicate for unrelated user id")
	}

	if err := service.UpdateGuardianStatus(ctx, guardian.Id, models.GuardianPending, models.GuardianVerified, &now, now); err != nil {
		t.Fatalf("UpdateGuardianStatus failed: %v", err)
	}
	err = service.UpdateGuardianStatus(ctx, guardian.Id, models.GuardianPending, models.GuardianVerified, &now, now)
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("Expected status guard, got %v", err)
	}

	verified, _ := service.ListGuardians(ctx, wallet.Id, models.GuardianVerified)
	if len(verified) != 1 || verified[0].VerifiedAt == nil {
		t.Fatalf("Expected one verified guardian with timestamp, got %+v", verified)
	}

	request := &models.RecoveryRequest{
		Id:                uuid.New().String(),
		WalletId:          wallet.Id,
		RequesterId:       "requester",
		Reason:            "lost key",
		Status:            models.RecoveryPending,
		RequiredApprovals: 1,
		TimeLockDays:      1,
		ExpiresAt:         now.Add(72 * time.Hour),
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := service.InsertRecoveryRequest(ctx, request); err != nil {
		t.Fatalf("InsertRecoveryRequest failed: %v", err)
	}

	vote := &models.RecoveryApproval{
		Id:                uuid.New().String(),
		RecoveryRequestId: request.Id,
		GuardianId:        guardian.Id,
		ApproverId:        "g-user",
		Decision:          models.VoteApprove,
		CreatedAt:         now,
	}
	if err := service.InsertRecoveryApproval(ctx, vote); err != nil {
		t.Fatalf("InsertRecoveryApproval failed: %v", err)
	}
	vote.Id = uuid.New().String()
	if err := service.InsertRecoveryApproval(ctx, vote); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for second vote, got %v", err)
	}

	voted, _ := service.HasRecoveryVote(ctx, request.Id, guardian.Id)
	if !voted {
		t.Error("Expected vote to be recorded")
	}
	count, _ := service.CountRecoveryApprovals(ctx, request.Id)
	if count != 1 {
		t.Errorf("Expected 1 approval, got %d", count)
	}

	unlock := now.Add(24 * time.Hour)
	request.Status = models.RecoveryApproved
	request.CurrentApprovals = 1
	request.UnlockTime = &unlock
	if err := service.UpdateRecoveryRequest(ctx, request, now); err != nil {
		t.Fatalf("UpdateRecoveryRequest failed: %v", err)
	}
	got, _ := service.GetRecoveryRequest(ctx, request.Id)
	if got.Status != models.RecoveryApproved || got.UnlockTime == nil || !got.UnlockTime.Equal(unlock) {
		t.Errorf("Unexpected recovery request after update: %+v", got)
	}
}

func TestTxRollback(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	tx, err := service.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	wallet := newTestWallet(time.Now())
	if err := tx.InsertWallet(ctx, wallet); err != nil {
		t.Fatalf("InsertWallet in tx failed: %v", err)
	}
	tx.Rollback()

	if _, err := service.GetWallet(ctx, wallet.Id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected rolled back wallet to be absent, got %v", err)
	}
}
