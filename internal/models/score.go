package models

import (
	"time"

	"github.com/google/uuid"
)

// Scoring weights. They sum to 1.
const (
	WeightQuality    = 0.35
	WeightDemand     = 0.25
	WeightReputation = 0.20
	WeightNovelty    = 0.10
	WeightEconomic   = 0.10
)

// SubScores are the five evaluator criteria, each in [0,100]
type SubScores struct {
	Quality    float64 `json:"quality_score"`
	Demand     float64 `json:"demand_score"`
	Reputation float64 `json:"reputation_score"`
	Novelty    float64 `json:"novelty_score"`
	Economic   float64 `json:"economic_score"`
}

// Total is the weighted composite of the five criteria
func (s SubScores) Total() float64 {
	return WeightQuality*s.Quality +
		WeightDemand*s.Demand +
		WeightReputation*s.Reputation +
		WeightNovelty*s.Novelty +
		WeightEconomic*s.Economic
}

// Clamped returns a copy with every criterion limited to [0,100]
func (s SubScores) Clamped() SubScores {
	return SubScores{
		Quality:    clampScore(s.Quality),
		Demand:     clampScore(s.Demand),
		Reputation: clampScore(s.Reputation),
		Novelty:    clampScore(s.Novelty),
		Economic:   clampScore(s.Economic),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ScoreDetails holds the per-criterion breakdown reported by the evaluator
type ScoreDetails struct {
	Quality    map[string]float64 `json:"quality_details"`
	Demand     map[string]float64 `json:"demand_details"`
	Reputation map[string]float64 `json:"reputation_details"`
	Novelty    map[string]float64 `json:"novelty_details"`
	Economic   map[string]float64 `json:"economic_details"`
}

// PredictionScore is the single current score of a prediction event
type PredictionScore struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	PredictionID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"prediction_id"`
	Quality      float64      `gorm:"not null" json:"quality_score"`
	Demand       float64      `gorm:"not null" json:"demand_score"`
	Reputation   float64      `gorm:"not null" json:"reputation_score"`
	Novelty      float64      `gorm:"not null" json:"novelty_score"`
	Economic     float64      `gorm:"not null" json:"economic_score"`
	TotalScore   float64      `gorm:"not null;index" json:"total_score"`
	Details      ScoreDetails `gorm:"serializer:json;type:text" json:"details"`
	Reasoning    string       `gorm:"type:text" json:"ai_reasoning"`
	Fallback     bool         `gorm:"not null;default:false" json:"fallback"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (PredictionScore) TableName() string {
	return "prediction_scores"
}

// SubScores returns the stored criteria
func (p *PredictionScore) SubScores() SubScores {
	return SubScores{
		Quality:    p.Quality,
		Demand:     p.Demand,
		Reputation: p.Reputation,
		Novelty:    p.Novelty,
		Economic:   p.Economic,
	}
}

// Total recomputes the composite from the stored criteria
func (p *PredictionScore) Total() float64 {
	return p.SubScores().Total()
}

// ScoredEvent pairs an event with its current score for ranking
type ScoredEvent struct {
	Event    *PredictionEvent `json:"event"`
	Score    *PredictionScore `json:"score"`
	Eligible bool             `json:"eligible"`
}
