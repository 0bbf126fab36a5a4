package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool is the mirrored ledger state of a staking pool. It is never written by
// this service, only replaced on refresh.
type Pool struct {
	PoolID       string    `json:"pool_id"`
	Creator      string    `json:"creator"`
	OptionLabels [2]string `json:"option_labels"`
	Totals       [2]uint64 `json:"totals"`
	CloseTime    time.Time `json:"close_time"`
	ResultIndex  *int      `json:"result_index,omitempty"`
	FeeBps       uint16    `json:"fee_bps"`
	Closed       bool      `json:"closed"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// PoolView is the derived, display-only projection of a Pool
type PoolView struct {
	PoolID        string          `json:"pool_id"`
	OptionLabels  [2]string       `json:"option_labels"`
	Totals        [2]uint64       `json:"totals"`
	Percentages   []int64         `json:"percentages"`
	TotalStaked   decimal.Decimal `json:"total_staked"`
	TimeLeftHours int64           `json:"time_left_hours"`
	IsExpired     bool            `json:"is_expired"`
	ResultIndex   *int            `json:"result_index,omitempty"`
	Closed        bool            `json:"closed"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// PoolRef identifies a created pool on the ledger
type PoolRef struct {
	PoolID   string `json:"pool_id"`
	MatchRef string `json:"match_ref"`
}

// ClaimEligibility is the computed claim state of a user on an event
type ClaimEligibility struct {
	PredictionID string `json:"prediction_id"`
	Eligible     bool   `json:"eligible"`
	Reason       string `json:"reason,omitempty"`
	ResultIndex  *int   `json:"result_index,omitempty"`
	BetOption    string `json:"bet_option,omitempty"`
}
