package services

import (
	"context"
	"time"

	"sports-prediction/internal/models"
)

// CreatePoolRequest describes a new staking pool on the ledger
type CreatePoolRequest struct {
	Creator      string
	OptionLabels [2]string
	CloseTime    time.Time
	FeeBps       uint16
}

// CreatePoolResult is returned by create_pool. Pool is nil when the ledger
// publishes the pool identity asynchronously; use LookupPool with TxRef.
type CreatePoolResult struct {
	TxRef string
	Pool  *models.PoolRef
}

// StakeRequest places a stake on one option of a pool
type StakeRequest struct {
	PoolID      string
	OptionIndex int
	Amount      uint64
	Bettor      string
}

// StakeReceipt describes a confirmed stake transaction
type StakeReceipt struct {
	TxRef       string
	PoolID      string
	Bettor      string
	OptionIndex int
	Amount      uint64
}

// TxResult carries the reference of a committed ledger transaction
type TxResult struct {
	TxRef string
}

// ClaimResult is returned by a successful claim
type ClaimResult struct {
	TxRef  string `json:"transaction_hash"`
	Payout uint64 `json:"payout"`
}

// Ledger is the narrow interface to the external pool ledger
type Ledger interface {
	CreatePool(ctx context.Context, req CreatePoolRequest) (*CreatePoolResult, error)
	// LookupPool resolves the pool created by a create_pool transaction.
	// It returns ErrPoolNotIndexed while the transaction is not yet visible
	// and ErrLedgerTxFailed when it is final and failed.
	LookupPool(ctx context.Context, txRef string) (*models.PoolRef, error)
	GetPool(ctx context.Context, poolID string) (*models.Pool, error)
	PlaceStake(ctx context.Context, req StakeRequest) (*TxResult, error)
	// ConfirmStake verifies a stake transaction signed by a user's wallet
	ConfirmStake(ctx context.Context, txRef string) (*StakeReceipt, error)
	ClosePool(ctx context.Context, poolID, matchRef string) (*TxResult, error)
	PostResult(ctx context.Context, poolID, matchRef string, resultIndex int) (*TxResult, error)
	HasClaimed(ctx context.Context, poolID, userAddress string) (bool, error)
	Claim(ctx context.Context, poolID, userAddress string) (*ClaimResult, error)
}
