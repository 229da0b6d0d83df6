package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSigned    TransactionStatus = "signed"
	TransactionExecuting TransactionStatus = "executing" // claimed for broadcast
	TransactionExecuted  TransactionStatus = "executed"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionExpired   TransactionStatus = "expired"
)

// Open reports whether the proposal still collects signatures and can expire.
func (s TransactionStatus) Open() bool {
	return s == TransactionPending || s == TransactionSigned
}

// TransactionPayload is the proposed operation. The custody core only reads
// the routing fields; Data is carried through untouched.
type TransactionPayload struct {
	To       string          `json:"to,omitempty"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency,omitempty"`
	ChainId  int64           `json:"chain_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// SignatureData is one signer's contribution to a pending transaction
type SignatureData struct {
	Signature   string    `json:"signature"`
	MessageHash string    `json:"message_hash,omitempty"`
	PublicKey   string    `json:"public_key,omitempty"`
	SignedAt    time.Time `json:"signed_at"`
}

// PendingTransaction is a proposed wallet operation awaiting signatures
type PendingTransaction struct {
	Id                 string                   `db:"id"`
	WalletId           string                   `db:"wallet_id"`
	TransactionType    string                   `db:"transaction_type"`
	ToAddress          string                   `db:"to_address"`
	Amount             decimal.Decimal          `db:"amount"`
	Currency           string                   `db:"currency"`
	ChainId            int64                    `db:"chain_id"`
	Payload            TransactionPayload       `db:"transaction_data"`
	Signatures         map[string]SignatureData `db:"signatures"`
	RequiredSignatures int                      `db:"required_signatures"`
	Status             TransactionStatus        `db:"status"`
	ExpiresAt          time.Time                `db:"expires_at"`
	Description        string                   `db:"description"`
	CreatedBy          string                   `db:"created_by"`
	RejectionReason    string                   `db:"rejection_reason"`
	Version            int64                    `db:"version"`
	CreatedAt          time.Time                `db:"created_at"`
	UpdatedAt          time.Time                `db:"updated_at"`
}

func (p *PendingTransaction) SignatureCount() int {
	return len(p.Signatures)
}

// Expired reports whether the deadline has been reached. A proposal created
// with a zero-hour window is expired from its first touch.
func (p *PendingTransaction) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// EffectiveStatus is the status a reader should see at now. Open proposals
// past their deadline read as expired before anything persists the change.
func (p *PendingTransaction) EffectiveStatus(now time.Time) TransactionStatus {
	if p.Status.Open() && p.Expired(now) {
		return TransactionExpired
	}
	return p.Status
}

// WalletTransaction is the settled record left behind once a fully signed
// pending transaction has been broadcast.
type WalletTransaction struct {
	Id                   string                   `db:"id"`
	WalletId             string                   `db:"wallet_id"`
	PendingTransactionId string                   `db:"pending_transaction_id"`
	TransactionHash      string                   `db:"transaction_hash"`
	TransactionType      string                   `db:"transaction_type"`
	FromAddress          string                   `db:"from_address"`
	ToAddress            string                   `db:"to_address"`
	Amount               decimal.Decimal          `db:"amount"`
	Currency             string                   `db:"currency"`
	ChainId              int64                    `db:"chain_id"`
	ExecutedBy           string                   `db:"executed_by"`
	Signatures           map[string]SignatureData `db:"signatures"`
	Status               string                   `db:"status"` // "pending", "confirmed", "failed"
	BlockNumber          *int64                   `db:"block_number"`
	Confirmations        int                      `db:"confirmations"`
	GasUsed              *int64                   `db:"gas_used"`
	GasPrice             *int64                   `db:"gas_price"`
	CreatedAt            time.Time                `db:"created_at"`
	UpdatedAt            time.Time                `db:"updated_at"`
}
