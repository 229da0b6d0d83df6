package store

import (
	"context"
	"errors"

	"institutional-custody-go/internal/models"
)

// Sentinel errors shared across persistence implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// UserDirectory resolves platform users. The custody core only uses it to
// check that referenced users exist.
type UserDirectory interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
}

// Broadcaster submits a fully signed transaction to the execution venue.
// Implementations must be idempotent on the pending transaction id.
type Broadcaster interface {
	Broadcast(ctx context.Context, wallet *models.Wallet, tx *models.PendingTransaction) (*models.BroadcastResult, error)
}
