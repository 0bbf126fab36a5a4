package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/mr-tron/base58"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testAddress returns a valid base58 ledger address derived from n
func testAddress(n byte) string {
	return base58.Encode(bytes.Repeat([]byte{n}, 32))
}

// fakeLedger is an in-memory pool program
type fakeLedger struct {
	mu sync.Mutex

	pools   map[string]*models.Pool
	claimed map[string]bool
	nextID  int

	createResult *CreatePoolResult
	createErr    error
	lookupErr    error
	getErr       error
	receipt      *StakeReceipt

	created      map[string]models.PoolRef
	createCalls  int
	lookupCalls  int
	stakeCalls   int
	closeCalls   int
	postCalls    int
	claimCalls   int
	lastStakeReq StakeRequest
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		pools:   make(map[string]*models.Pool),
		claimed: make(map[string]bool),
		created: make(map[string]models.PoolRef),
	}
}

func (f *fakeLedger) CreatePool(ctx context.Context, req CreatePoolRequest) (*CreatePoolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if f.createResult != nil || f.createErr != nil {
		return f.createResult, f.createErr
	}

	f.nextID++
	txRef := fmt.Sprintf("tx-create-%d", f.nextID)
	ref := models.PoolRef{
		PoolID:   fmt.Sprintf("pool-%d", f.nextID),
		MatchRef: fmt.Sprintf("match-%d", f.nextID),
	}
	f.created[txRef] = ref
	f.pools[ref.PoolID] = &models.Pool{
		PoolID:       ref.PoolID,
		Creator:      req.Creator,
		OptionLabels: req.OptionLabels,
		CloseTime:    req.CloseTime,
		FeeBps:       req.FeeBps,
	}
	return &CreatePoolResult{TxRef: txRef}, nil
}

// publish makes a pool visible for txRef as if its transaction had landed
func (f *fakeLedger) publish(txRef string, ref models.PoolRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[txRef] = ref
	f.pools[ref.PoolID] = &models.Pool{PoolID: ref.PoolID, OptionLabels: [2]string{"Yes", "No"}}
}

func (f *fakeLedger) LookupPool(ctx context.Context, txRef string) (*models.PoolRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++

	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	ref, ok := f.created[txRef]
	if !ok {
		return nil, ErrPoolNotIndexed
	}
	return &ref, nil
}

func (f *fakeLedger) GetPool(ctx context.Context, poolID string) (*models.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	pool, ok := f.pools[poolID]
	if !ok {
		return nil, errors.New("account not found")
	}
	cp := *pool
	return &cp, nil
}

func (f *fakeLedger) PlaceStake(ctx context.Context, req StakeRequest) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakeCalls++
	f.lastStakeReq = req

	pool, ok := f.pools[req.PoolID]
	if !ok {
		return nil, errors.New("pool not found")
	}
	pool.Totals[req.OptionIndex] += req.Amount
	return &TxResult{TxRef: fmt.Sprintf("tx-stake-%d", f.stakeCalls)}, nil
}

func (f *fakeLedger) ConfirmStake(ctx context.Context, txRef string) (*StakeReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return nil, fmt.Errorf("transaction %s is not confirmed yet", txRef)
	}
	r := *f.receipt
	r.TxRef = txRef
	return &r, nil
}

func (f *fakeLedger) ClosePool(ctx context.Context, poolID, matchRef string) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.pools[poolID].Closed = true
	return &TxResult{TxRef: "tx-close"}, nil
}

func (f *fakeLedger) PostResult(ctx context.Context, poolID, matchRef string, resultIndex int) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	idx := resultIndex
	f.pools[poolID].ResultIndex = &idx
	return &TxResult{TxRef: "tx-result"}, nil
}

func (f *fakeLedger) HasClaimed(ctx context.Context, poolID, userAddress string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed[poolID+"/"+userAddress], nil
}

func (f *fakeLedger) Claim(ctx context.Context, poolID, userAddress string) (*ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	f.claimed[poolID+"/"+userAddress] = true
	pool := f.pools[poolID]
	return &ClaimResult{TxRef: "tx-claim", Payout: pool.Totals[0] + pool.Totals[1]}, nil
}

// fakeEvaluator returns uniform sub-scores keyed by statement
type fakeEvaluator struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, in EvaluationInput) (*Evaluation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.scores[in.Statement]
	if !ok {
		return nil, errors.New("no score configured")
	}
	return &Evaluation{
		Scores:    models.SubScores{Quality: v, Demand: v, Reputation: v, Novelty: v, Economic: v},
		Reasoning: "fixed",
	}, nil
}

type testEnv struct {
	repo       *repository.Repository
	ledger     *fakeLedger
	evaluator  *fakeEvaluator
	lifecycle  *LifecycleService
	scoring    *ScoringService
	mirror     *PoolMirrorService
	settlement *SettlementService
	bets       *BetService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.PredictionEvent{},
		&models.PredictionScore{},
		&models.Bet{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	repo := repository.NewRepository(db)
	ledger := newFakeLedger()
	evaluator := &fakeEvaluator{scores: map[string]float64{}}

	lifecycle := NewLifecycleService(repo, nil)
	scoring := NewScoringService(repo, evaluator, 0, nil)
	mirror := NewPoolMirrorService(ledger, nil, 6, time.Minute, "pool_updates", nil)
	settlement := NewSettlementService(repo, lifecycle, scoring, mirror, ledger, NewPollPolicy(3, 0), 250, nil)
	bets := NewBetService(repo, lifecycle, ledger, 6, nil)

	return &testEnv{
		repo:       repo,
		ledger:     ledger,
		evaluator:  evaluator,
		lifecycle:  lifecycle,
		scoring:    scoring,
		mirror:     mirror,
		settlement: settlement,
		bets:       bets,
	}
}

// submit stores a pending event with a valid creator address
func (e *testEnv) submit(t *testing.T, statement string, withAddress bool) *models.PredictionEvent {
	t.Helper()
	req := &models.SubmitPredictionRequest{
		GameID:    "game-1",
		Statement: statement,
		OptionA:   "Yes",
		OptionB:   "No",
		Deadline:  time.Now().Add(24 * time.Hour),
	}
	if withAddress {
		req.CreatorLedgerAddress = testAddress(1)
	}
	event, err := e.lifecycle.Submit(context.Background(), 1, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return event
}

// approved submits and promotes an event
func (e *testEnv) approved(t *testing.T, statement string) *models.PredictionEvent {
	t.Helper()
	event := e.submit(t, statement, true)
	promoted, err := e.settlement.Promote(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	return promoted
}
