package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Wallet config keys that route a custody wallet to its Prime counterpart
const (
	ConfigPortfolioId = "prime_portfolio_id"
	ConfigWalletId    = "prime_wallet_id"
)

var _ store.Broadcaster = (*Service)(nil)

type Service struct {
	client           client.RestClient
	portfoliosSvc    portfolios.PortfoliosService
	transactionsSvc  transactions.TransactionsService
	defaultPortfolio string
}

func NewService(creds *credentials.Credentials, defaultPortfolio string) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:           restClient,
		portfoliosSvc:    portfolios.NewPortfoliosService(restClient),
		transactionsSvc:  transactions.NewTransactionsService(restClient),
		defaultPortfolio: defaultPortfolio,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}

	return nil, fmt.Errorf("default portfolio not found")
}

// UseDefaultPortfolio sets the portfolio used for wallets that do not name one
func (s *Service) UseDefaultPortfolio(portfolioId string) {
	s.defaultPortfolio = portfolioId
}

// Broadcast submits a fully signed proposal as a Prime wallet withdrawal. The
// pending transaction id is the idempotency key, so a retry after a lost
// response does not withdraw twice.
func (s *Service) Broadcast(ctx context.Context, wallet *models.Wallet, tx *models.PendingTransaction) (*models.BroadcastResult, error) {
	request, err := s.withdrawalRequest(wallet, tx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Submitting withdrawal via Prime API",
		zap.String("portfolio_id", request.PortfolioId),
		zap.String("prime_wallet_id", request.SourceWalletId),
		zap.String("transaction_id", tx.Id),
		zap.String("symbol", request.Symbol),
		zap.String("amount", request.Amount),
		zap.String("destination", tx.ToAddress))

	zap.L().Debug("Withdrawal request details",
		zap.String("destination_type", request.DestinationType),
		zap.String("idempotency_key", request.IdempotencyKey),
		zap.Any("blockchain_address", request.BlockchainAddress))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("transaction_id", tx.Id),
			zap.String("amount", request.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("transaction_id", tx.Id))

	return &models.BroadcastResult{
		TransactionHash: response.ActivityId,
		FromAddress:     wallet.WalletAddress,
		IdempotencyKey:  request.IdempotencyKey,
	}, nil
}

func (s *Service) withdrawalRequest(wallet *models.Wallet, tx *models.PendingTransaction) (*transactions.CreateWalletWithdrawalRequest, error) {
	portfolioId := wallet.Config[ConfigPortfolioId]
	if portfolioId == "" {
		portfolioId = s.defaultPortfolio
	}
	if portfolioId == "" {
		return nil, fmt.Errorf("wallet %s has no Prime portfolio", wallet.Id)
	}
	primeWalletId := wallet.Config[ConfigWalletId]
	if primeWalletId == "" {
		return nil, fmt.Errorf("wallet %s has no %s in its config", wallet.Id, ConfigWalletId)
	}
	if tx.ToAddress == "" {
		return nil, fmt.Errorf("transaction %s has no destination address", tx.Id)
	}
	if !tx.Amount.IsPositive() {
		return nil, fmt.Errorf("transaction %s has non-positive amount %s", tx.Id, tx.Amount)
	}

	// Currency is either SYMBOL or SYMBOL-network-type, e.g. ETH-ethereum-mainnet
	parts := strings.Split(tx.Currency, "-")
	symbol := parts[0]
	if symbol == "" {
		return nil, fmt.Errorf("transaction %s has no currency", tx.Id)
	}

	blockchainAddr := &model.BlockchainAddress{
		Address: tx.ToAddress,
	}
	if len(parts) >= 3 {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   parts[1],
			Type: parts[2],
		}
	}

	return &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       portfolioId,
		SourceWalletId:    primeWalletId,
		Amount:            tx.Amount.String(),
		IdempotencyKey:    tx.Id,
		Symbol:            symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}, nil
}
