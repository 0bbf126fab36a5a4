package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bet is one user's stake on one prediction event. Bets are append-only.
type Bet struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PredictionID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bets_prediction_user;index" json:"prediction_id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_bets_prediction_user" json:"user_id"`
	UserLedgerAddress string    `gorm:"size:64;not null;index" json:"user_address"`
	Option            string    `gorm:"size:255;not null" json:"option"`
	OptionIndex       int       `gorm:"not null" json:"option_index"`
	Amount            uint64    `gorm:"not null" json:"amount"`
	LedgerTxRef       string    `gorm:"size:128;not null;uniqueIndex" json:"transaction_hash"`
	PoolID            string    `gorm:"size:64;not null" json:"pool_id"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}

func (Bet) TableName() string {
	return "bets"
}

// PlaceBetRequest is a user's stake request. When TxRef is set the stake was
// signed by the user's wallet and only needs confirming.
type PlaceBetRequest struct {
	Option string `json:"option" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
	TxRef  string `json:"transaction_hash"`
}

// BetSummaryEntry is a user's position on a single prediction
type BetSummaryEntry struct {
	Option        string          `json:"option"`
	Amount        uint64          `json:"amount"`
	DisplayAmount decimal.Decimal `json:"display_amount"`
	TxRef         string          `json:"transaction_hash"`
	CreatedAt     time.Time       `json:"created_at"`
}
