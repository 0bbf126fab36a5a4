package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of a prediction event
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusEnded     EventStatus = "ended"
	EventStatusCompleted EventStatus = "completed"
)

// Valid reports whether s is one of the known lifecycle states
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusApproved, EventStatusRejected, EventStatusEnded, EventStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s EventStatus) Terminal() bool {
	switch s {
	case EventStatusRejected, EventStatusCompleted:
		return true
	case EventStatusPending, EventStatusApproved, EventStatusEnded:
		return false
	}
	return false
}

// HasPool reports whether events in state s must carry a ledger pool
func (s EventStatus) HasPool() bool {
	switch s {
	case EventStatusApproved, EventStatusEnded, EventStatusCompleted:
		return true
	case EventStatusPending, EventStatusRejected:
		return false
	}
	return false
}

// PredictionEvent is a proposed binary-outcome question about a match
type PredictionEvent struct {
	ID                   uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	GameID               string      `gorm:"size:100;not null;index" json:"game_id"`
	Statement            string      `gorm:"type:text;not null" json:"statement"`
	OptionA              string      `gorm:"size:255;not null" json:"option_a"`
	OptionB              string      `gorm:"size:255;not null" json:"option_b"`
	Duration             int         `gorm:"not null" json:"duration"`
	Status               EventStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	CreatorID            uint        `gorm:"not null;index" json:"creator_id"`
	CreatorLedgerAddress *string     `gorm:"size:64" json:"creator_ledger_address,omitempty"`
	PoolID               *string     `gorm:"size:64;index" json:"pool_id,omitempty"`
	MatchRef             *string     `gorm:"size:64" json:"match_ref,omitempty"`
	PoolTxRef            *string     `gorm:"size:128" json:"pool_tx_ref,omitempty"`
	ResultIndex          *int        `json:"result_index,omitempty"`
	TotalBets            int64       `gorm:"not null;default:0" json:"total_bets"`
	TotalAmount          uint64      `gorm:"not null;default:0" json:"total_amount"`
	CreatedAt            time.Time   `json:"created_at"`
	ExpiresAt            time.Time   `gorm:"not null;index" json:"expires_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (PredictionEvent) TableName() string {
	return "prediction_events"
}

// Options returns the two outcome labels in ledger order
func (e *PredictionEvent) Options() [2]string {
	return [2]string{e.OptionA, e.OptionB}
}

// OptionIndex maps a label to its ledger index by equality
func (e *PredictionEvent) OptionIndex(label string) (int, bool) {
	switch label {
	case e.OptionA:
		return 0, true
	case e.OptionB:
		return 1, true
	}
	return -1, false
}

// HasCreatorAddress reports whether a ledger creator principal is available
func (e *PredictionEvent) HasCreatorAddress() bool {
	return e.CreatorLedgerAddress != nil && *e.CreatorLedgerAddress != ""
}

// SubmitPredictionRequest is the draft of a new prediction event
type SubmitPredictionRequest struct {
	GameID               string    `json:"game_id" binding:"required"`
	Statement            string    `json:"prediction"`
	OptionA              string    `json:"option_a"`
	OptionB              string    `json:"option_b"`
	Deadline             time.Time `json:"deadline" binding:"required"`
	CreatorLedgerAddress string    `json:"user_address"`
}

// ResolvePredictionRequest names the winning label chosen by the operator
type ResolvePredictionRequest struct {
	WinningOption string `json:"winning_option" binding:"required"`
}
