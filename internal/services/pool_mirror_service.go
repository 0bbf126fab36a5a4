package services

import (
	"context"
	"log"
	"math"
	"math/big"
	"sync"
	"time"

	"sports-prediction/internal/cache"
	"sports-prediction/internal/metrics"
	"sports-prediction/internal/models"

	"github.com/shopspring/decimal"
)

const poolCacheKeyPrefix = "pool:"

// PoolSubscriber receives the fresh view of a pool after every refresh
type PoolSubscriber func(view models.PoolView)

// PoolMirrorService keeps a read-only copy of ledger pools. The in-process map
// is authoritative for this process; Redis is a shared write-through copy.
type PoolMirrorService struct {
	ledger   Ledger
	cache    *cache.CacheService
	decimals int32
	ttl      time.Duration
	channel  string
	metrics  *metrics.SettlementMetrics
	now      func() time.Time

	mu    sync.RWMutex
	pools map[string]*models.Pool

	subsMu      sync.RWMutex
	subscribers []PoolSubscriber
}

// NewPoolMirrorService creates a new PoolMirrorService. cacheSvc may be nil.
func NewPoolMirrorService(
	ledger Ledger,
	cacheSvc *cache.CacheService,
	decimals int32,
	ttl time.Duration,
	channel string,
	m *metrics.SettlementMetrics,
) *PoolMirrorService {
	return &PoolMirrorService{
		ledger:   ledger,
		cache:    cacheSvc,
		decimals: decimals,
		ttl:      ttl,
		channel:  channel,
		metrics:  m,
		now:      time.Now,
		pools:    make(map[string]*models.Pool),
	}
}

// Subscribe registers fn for pool updates
func (s *PoolMirrorService) Subscribe(fn PoolSubscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Refresh re-reads a pool from the ledger and replaces the cached copy. On
// failure the previous copy is kept.
func (s *PoolMirrorService) Refresh(ctx context.Context, poolID string) (*models.Pool, error) {
	started := time.Now()
	pool, err := s.ledger.GetPool(ctx, poolID)
	s.metrics.RecordLedgerCall("get_pool", started, err)
	if err != nil {
		s.metrics.RecordPoolRefresh(poolID, decimal.Zero, err)
		return nil, &LedgerReadError{Op: "get_pool", Err: err}
	}

	if pool.FetchedAt.IsZero() {
		pool.FetchedAt = s.now()
	}

	s.mu.Lock()
	s.pools[poolID] = pool
	s.mu.Unlock()

	view := s.View(pool, s.now())
	s.metrics.RecordPoolRefresh(poolID, view.TotalStaked, nil)

	if err := s.cache.Set(ctx, poolCacheKeyPrefix+poolID, pool, s.ttl); err != nil {
		log.Printf("[PoolMirror] Warning: failed to cache pool %s: %v", poolID, err)
	}
	if err := s.cache.Publish(ctx, s.channel, view); err != nil {
		log.Printf("[PoolMirror] Warning: failed to publish pool %s: %v", poolID, err)
	}

	s.notify(view)
	return pool, nil
}

// Get returns the cached pool. Absence means odds are unknown.
func (s *PoolMirrorService) Get(poolID string) (*models.Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[poolID]
	return pool, ok
}

// Load returns the cached pool, warming the map from Redis and then from the
// ledger on a miss.
func (s *PoolMirrorService) Load(ctx context.Context, poolID string) (*models.Pool, error) {
	if pool, ok := s.Get(poolID); ok {
		return pool, nil
	}

	var cached models.Pool
	hit, err := s.cache.Get(ctx, poolCacheKeyPrefix+poolID, &cached)
	if err != nil {
		log.Printf("[PoolMirror] Warning: failed to read cached pool %s: %v", poolID, err)
	}
	if hit {
		s.mu.Lock()
		s.pools[poolID] = &cached
		s.mu.Unlock()
		return &cached, nil
	}

	return s.Refresh(ctx, poolID)
}

// RefreshAll refreshes every pool. Individual failures are logged and counted.
func (s *PoolMirrorService) RefreshAll(ctx context.Context, poolIDs []string) (int, int) {
	refreshed, failed := 0, 0
	for _, id := range poolIDs {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Refresh(ctx, id); err != nil {
			log.Printf("[PoolMirror] Failed to refresh pool %s: %v", id, err)
			failed++
			continue
		}
		refreshed++
	}
	return refreshed, failed
}

// View derives the display projection of pool at now
func (s *PoolMirrorService) View(pool *models.Pool, now time.Time) models.PoolView {
	return BuildPoolView(pool, now, s.decimals)
}

// BuildPoolView derives odds, staked total and remaining time. Nothing here
// is persisted or used in settlement math.
func BuildPoolView(pool *models.Pool, now time.Time, decimals int32) models.PoolView {
	sum := new(big.Int)
	for _, t := range pool.Totals {
		sum.Add(sum, new(big.Int).SetUint64(t))
	}

	var percentages []int64
	if sum.Sign() > 0 {
		total := decimal.NewFromBigInt(sum, 0)
		percentages = make([]int64, len(pool.Totals))
		for i, t := range pool.Totals {
			pct := decimal.NewFromBigInt(new(big.Int).SetUint64(t), 0).
				Mul(decimal.NewFromInt(100)).
				Div(total).
				Round(0)
			percentages[i] = pct.IntPart()
		}
	}

	timeLeft := int64(math.Ceil(pool.CloseTime.Sub(now).Hours()))

	return models.PoolView{
		PoolID:        pool.PoolID,
		OptionLabels:  pool.OptionLabels,
		Totals:        pool.Totals,
		Percentages:   percentages,
		TotalStaked:   decimal.NewFromBigInt(sum, -decimals),
		TimeLeftHours: timeLeft,
		IsExpired:     timeLeft <= 0,
		ResultIndex:   pool.ResultIndex,
		Closed:        pool.Closed,
		FetchedAt:     pool.FetchedAt,
	}
}

func (s *PoolMirrorService) notify(view models.PoolView) {
	s.subsMu.RLock()
	subs := make([]PoolSubscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(view)
	}
}

