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

func (s *Queries) InsertPendingTransaction(ctx context.Context, p *models.PendingTransaction) error {
	payload, err := encodeJSON(p.Payload)
	if err != nil {
		return err
	}
	signatures, err := encodeSignatures(p.Signatures)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, queryInsertPendingTransaction,
		p.Id, p.WalletId, p.TransactionType, p.ToAddress, p.Amount.String(), p.Currency, p.ChainId,
		payload, signatures, p.RequiredSignatures, string(p.Status), utc(p.ExpiresAt),
		p.Description, p.CreatedBy, p.RejectionReason, p.Version, utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		zap.L().Error("Failed to insert pending transaction", zap.String("transaction_id", p.Id), zap.Error(err))
		return fmt.Errorf("unable to insert pending transaction: %w", err)
	}
	return nil
}

func (s *Queries) GetPendingTransaction(ctx context.Context, transactionId string) (*models.PendingTransaction, error) {
	p, err := scanPendingTransaction(s.q.QueryRowContext(ctx, queryGetPendingTransaction, transactionId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending transaction %s: %w", transactionId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query pending transaction: %w", err)
	}
	return p, nil
}

// ListPendingTransactions returns a wallet's proposals newest first. An empty
// status matches every status.
func (s *Queries) ListPendingTransactions(ctx context.Context, walletId string, status models.TransactionStatus) ([]models.PendingTransaction, error) {
	rows, err := s.q.QueryContext(ctx, queryListPendingTransactions, walletId, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("unable to query pending transactions: %w", err)
	}
	return collectPendingTransactions(rows)
}

// ListExpiredPendingTransactions returns open proposals whose deadline is at or before now.
func (s *Queries) ListExpiredPendingTransactions(ctx context.Context, now time.Time) ([]models.PendingTransaction, error) {
	rows, err := s.q.QueryContext(ctx, queryListExpiredPendingTransactions, utc(now))
	if err != nil {
		return nil, fmt.Errorf("unable to query expired pending transactions: %w", err)
	}
	return collectPendingTransactions(rows)
}

// UpdatePendingSignatures stores the signature set and status, guarded by version.
func (s *Queries) UpdatePendingSignatures(ctx context.Context, p *models.PendingTransaction, now time.Time) error {
	signatures, err := encodeSignatures(p.Signatures)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, queryUpdatePendingSignatures, signatures, string(p.Status), utc(now), p.Id, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update signatures: %w", err)
	}
	return expectAffected(result, "pending transaction")
}

func (s *Queries) UpdatePendingStatus(ctx context.Context, transactionId string, status models.TransactionStatus, reason string, version int64, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdatePendingStatus, string(status), reason, utc(now), transactionId, version)
	if err != nil {
		return fmt.Errorf("failed to update pending transaction status: %w", err)
	}
	return expectAffected(result, "pending transaction")
}

// InsertWalletTransaction records an executed transaction. A second record for
// the same pending transaction yields store.ErrDuplicate.
func (s *Queries) InsertWalletTransaction(ctx context.Context, wt *models.WalletTransaction) error {
	signatures, err := encodeSignatures(wt.Signatures)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, queryInsertWalletTransaction,
		wt.Id, wt.WalletId, wt.PendingTransactionId, wt.TransactionHash, wt.TransactionType,
		wt.FromAddress, wt.ToAddress, wt.Amount.String(), wt.Currency, wt.ChainId, wt.ExecutedBy, signatures,
		wt.Status, nullableInt(wt.BlockNumber), wt.Confirmations, nullableInt(wt.GasUsed), nullableInt(wt.GasPrice),
		utc(wt.CreatedAt), utc(wt.UpdatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("wallet transaction for %s: %w", wt.PendingTransactionId, store.ErrDuplicate)
		}
		zap.L().Error("Failed to insert wallet transaction", zap.String("pending_transaction_id", wt.PendingTransactionId), zap.Error(err))
		return fmt.Errorf("unable to insert wallet transaction: %w", err)
	}
	return nil
}

func (s *Queries) GetWalletTransaction(ctx context.Context, id string) (*models.WalletTransaction, error) {
	wt, err := scanWalletTransaction(s.q.QueryRowContext(ctx, queryGetWalletTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("wallet transaction %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query wallet transaction: %w", err)
	}
	return wt, nil
}

func (s *Queries) ListWalletTransactions(ctx context.Context, walletId string) ([]models.WalletTransaction, error) {
	rows, err := s.q.QueryContext(ctx, queryListWalletTransactions, walletId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet transactions: %w", err)
	}
	defer closeRows(rows)

	var txs []models.WalletTransaction
	for rows.Next() {
		wt, err := scanWalletTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet transaction row: %w", err)
		}
		txs = append(txs, *wt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transaction rows: %w", err)
	}
	return txs, nil
}

// UpdateConfirmations is the only mutation allowed on an executed record.
func (s *Queries) UpdateConfirmations(ctx context.Context, id string, confirmations int, blockNumber *int64, status string, now time.Time) error {
	result, err := s.q.ExecContext(ctx, queryUpdateConfirmations, confirmations, nullableInt(blockNumber), status, utc(now), id)
	if err != nil {
		return fmt.Errorf("failed to update confirmations: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet transaction %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func collectPendingTransactions(rows *sql.Rows) ([]models.PendingTransaction, error) {
	defer closeRows(rows)

	var txs []models.PendingTransaction
	for rows.Next() {
		p, err := scanPendingTransaction(rows)
		if err != nil {
			zap.L().Error("Failed to scan pending transaction row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan pending transaction row: %w", err)
		}
		txs = append(txs, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending transaction rows: %w", err)
	}
	return txs, nil
}

func scanPendingTransaction(row rowScanner) (*models.PendingTransaction, error) {
	var p models.PendingTransaction
	var amount, payload, signatures, status string

	err := row.Scan(&p.Id, &p.WalletId, &p.TransactionType, &p.ToAddress, &amount, &p.Currency, &p.ChainId,
		&payload, &signatures, &p.RequiredSignatures, &status, &p.ExpiresAt,
		&p.Description, &p.CreatedBy, &p.RejectionReason, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Status = models.TransactionStatus(status)
	p.ExpiresAt = p.ExpiresAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	if err := decodeJSON(payload, &p.Payload); err != nil {
		return nil, err
	}
	if err := decodeJSON(signatures, &p.Signatures); err != nil {
		return nil, err
	}
	if p.Signatures == nil {
		p.Signatures = map[string]models.SignatureData{}
	}
	return &p, nil
}

func scanWalletTransaction(row rowScanner) (*models.WalletTransaction, error) {
	var wt models.WalletTransaction
	var amount, signatures string
	var blockNumber, gasUsed, gasPrice sql.NullInt64

	err := row.Scan(&wt.Id, &wt.WalletId, &wt.PendingTransactionId, &wt.TransactionHash, &wt.TransactionType,
		&wt.FromAddress, &wt.ToAddress, &amount, &wt.Currency, &wt.ChainId, &wt.ExecutedBy, &signatures,
		&wt.Status, &blockNumber, &wt.Confirmations, &gasUsed, &gasPrice, &wt.CreatedAt, &wt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	wt.BlockNumber = int64Ptr(blockNumber)
	wt.GasUsed = int64Ptr(gasUsed)
	wt.GasPrice = int64Ptr(gasPrice)
	wt.CreatedAt = wt.CreatedAt.UTC()
	wt.UpdatedAt = wt.UpdatedAt.UTC()

	wt.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	if err := decodeJSON(signatures, &wt.Signatures); err != nil {
		return nil, err
	}
	return &wt, nil
}

func encodeSignatures(signatures map[string]models.SignatureData) (string, error) {
	if signatures == nil {
		signatures = map[string]models.SignatureData{}
	}
	return encodeJSON(signatures)
}
