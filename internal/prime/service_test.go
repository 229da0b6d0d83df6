package prime

import (
	"testing"

	"institutional-custody-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestWithdrawalRequest(t *testing.T) {
	s := &Service{defaultPortfolio: "portfolio-default"}
	wallet := &models.Wallet{
		Id:            "w1",
		WalletAddress: "0xfrom",
		Config:        models.WalletConfig{ConfigWalletId: "prime-wallet-1"},
	}
	tx := &models.PendingTransaction{
		Id:        "tx-1",
		ToAddress: "0xdest",
		Amount:    decimal.RequireFromString("1.25"),
		Currency:  "ETH-ethereum-mainnet",
	}

	request, err := s.withdrawalRequest(wallet, tx)
	if err != nil {
		t.Fatalf("withdrawalRequest failed: %v", err)
	}
	if request.PortfolioId != "portfolio-default" || request.SourceWalletId != "prime-wallet-1" {
		t.Errorf("Unexpected routing: %s / %s", request.PortfolioId, request.SourceWalletId)
	}
	if request.IdempotencyKey != "tx-1" {
		t.Errorf("Expected idempotency key to be the transaction id, got %s", request.IdempotencyKey)
	}
	if request.Symbol != "ETH" || request.Amount != "1.25" {
		t.Errorf("Unexpected asset: %s %s", request.Amount, request.Symbol)
	}
	if request.BlockchainAddress.Network == nil || request.BlockchainAddress.Network.Id != "ethereum" {
		t.Errorf("Expected network details, got %+v", request.BlockchainAddress.Network)
	}

	wallet.Config[ConfigPortfolioId] = "portfolio-treasury"
	tx.Currency = "USDC"
	request, err = s.withdrawalRequest(wallet, tx)
	if err != nil {
		t.Fatalf("withdrawalRequest failed: %v", err)
	}
	if request.PortfolioId != "portfolio-treasury" || request.BlockchainAddress.Network != nil {
		t.Errorf("Expected wallet portfolio and no network, got %+v", request)
	}
}

func TestWithdrawalRequest_Rejects(t *testing.T) {
	s := &Service{}
	tests := []struct {
		name   string
		config models.WalletConfig
		tx     models.PendingTransaction
	}{
		{"no portfolio", models.WalletConfig{ConfigWalletId: "pw"}, models.PendingTransaction{ToAddress: "0x1", Amount: decimal.NewFromInt(1), Currency: "ETH"}},
		{"no prime wallet", models.WalletConfig{ConfigPortfolioId: "p"}, models.PendingTransaction{ToAddress: "0x1", Amount: decimal.NewFromInt(1), Currency: "ETH"}},
		{"no destination", models.WalletConfig{ConfigPortfolioId: "p", ConfigWalletId: "pw"}, models.PendingTransaction{Amount: decimal.NewFromInt(1), Currency: "ETH"}},
		{"zero amount", models.WalletConfig{ConfigPortfolioId: "p", ConfigWalletId: "pw"}, models.PendingTransaction{ToAddress: "0x1", Currency: "ETH"}},
		{"no currency", models.WalletConfig{ConfigPortfolioId: "p", ConfigWalletId: "pw"}, models.PendingTransaction{ToAddress: "0x1", Amount: decimal.NewFromInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.withdrawalRequest(&models.Wallet{Id: "w1", Config: tt.config}, &tt.tx); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
