// Package metrics provides Prometheus metrics for the settlement service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// SettlementMetrics collects lifecycle, ledger and scoring metrics.
// A nil *SettlementMetrics is valid and records nothing.
type SettlementMetrics struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	TransitionsTotal *prometheus.CounterVec

	// Ledger metrics
	LedgerCallsTotal   *prometheus.CounterVec
	LedgerCallDuration *prometheus.HistogramVec
	DiscoveryAttempts  prometheus.Histogram

	// Scoring metrics
	ScoresTotal   *prometheus.CounterVec
	ScoreTotals   prometheus.Histogram
	EvaluatorTime prometheus.Histogram

	// Mirror metrics
	PoolRefreshTotal *prometheus.CounterVec
	PoolStaked       *prometheus.GaugeVec

	// Bet metrics
	BetsTotal *prometheus.CounterVec
}

// NewSettlementMetrics creates a collector with its own registry.
func NewSettlementMetrics() *SettlementMetrics {
	registry := prometheus.NewRegistry()

	m := &SettlementMetrics{
		registry: registry,

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_transitions_total",
				Help: "Lifecycle transitions attempted, by target status and result",
			},
			[]string{"to", "result"},
		),
		LedgerCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_calls_total",
				Help: "Ledger client calls, by operation and result",
			},
			[]string{"op", "result"},
		),
		LedgerCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_call_duration_seconds",
				Help:    "Ledger client call latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		DiscoveryAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pool_discovery_attempts",
				Help:    "Lookups needed before a created pool became visible",
				Buckets: []float64{1, 2, 3, 5, 8, 10},
			},
		),
		ScoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prediction_scores_total",
				Help: "Scores computed, by source (evaluator or fallback)",
			},
			[]string{"source"},
		),
		ScoreTotals: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prediction_score_total",
				Help:    "Distribution of weighted score totals",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		EvaluatorTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evaluator_duration_seconds",
				Help:    "External evaluator latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		PoolRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_refresh_total",
				Help: "Pool mirror refreshes, by result",
			},
			[]string{"result"},
		),
		PoolStaked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pool_total_staked",
				Help: "Total staked per mirrored pool in display units",
			},
			[]string{"pool_id"},
		),
		BetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bets_recorded_total",
				Help: "Bets recorded, by stake path",
			},
			[]string{"path"},
		),
	}

	m.registry.MustRegister(
		m.TransitionsTotal,
		m.LedgerCallsTotal,
		m.LedgerCallDuration,
		m.DiscoveryAttempts,
		m.ScoresTotal,
		m.ScoreTotals,
		m.EvaluatorTime,
		m.PoolRefreshTotal,
		m.PoolStaked,
		m.BetsTotal,
	)

	return m
}

// Registry returns the prometheus registry.
func (m *SettlementMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SettlementMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordTransition records a lifecycle transition attempt.
func (m *SettlementMetrics) RecordTransition(to string, ok bool) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to, result(ok)).Inc()
}

// RecordLedgerCall records a ledger client call and its latency.
func (m *SettlementMetrics) RecordLedgerCall(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.LedgerCallsTotal.WithLabelValues(op, result(err == nil)).Inc()
	m.LedgerCallDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// RecordDiscovery records how many lookups pool discovery needed.
func (m *SettlementMetrics) RecordDiscovery(attempts int) {
	if m == nil {
		return
	}
	m.DiscoveryAttempts.Observe(float64(attempts))
}

// RecordScore records a computed score.
func (m *SettlementMetrics) RecordScore(fallback bool, total float64, evaluatorTime time.Duration) {
	if m == nil {
		return
	}
	source := "evaluator"
	if fallback {
		source = "fallback"
	}
	m.ScoresTotal.WithLabelValues(source).Inc()
	m.ScoreTotals.Observe(total)
	m.EvaluatorTime.Observe(evaluatorTime.Seconds())
}

// RecordPoolRefresh records a mirror refresh and the pool's staked total.
func (m *SettlementMetrics) RecordPoolRefresh(poolID string, staked decimal.Decimal, err error) {
	if m == nil {
		return
	}
	m.PoolRefreshTotal.WithLabelValues(result(err == nil)).Inc()
	if err == nil {
		m.PoolStaked.WithLabelValues(poolID).Set(DecimalToFloat64(staked))
	}
}

// RecordBet records a bet by stake path ("wallet" or "custodial").
func (m *SettlementMetrics) RecordBet(path string) {
	if m == nil {
		return
	}
	m.BetsTotal.WithLabelValues(path).Inc()
}

// DecimalToFloat64 converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
