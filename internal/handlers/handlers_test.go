package handlers

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/mr-tron/base58"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sports-prediction/internal/auth"
	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"
	"sports-prediction/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	auth.InitJWT("handlers-test-secret")
}

func address(n byte) string {
	return base58.Encode(bytes.Repeat([]byte{n}, 32))
}

// stubLedger creates pools synchronously and keeps them in memory
type stubLedger struct {
	mu    sync.Mutex
	next  byte
	pools map[string]*models.Pool
	refs  map[string]models.PoolRef
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		next:  100,
		pools: make(map[string]*models.Pool),
		refs:  make(map[string]models.PoolRef),
	}
}

func (s *stubLedger) CreatePool(ctx context.Context, req services.CreatePoolRequest) (*services.CreatePoolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	ref := models.PoolRef{PoolID: address(s.next), MatchRef: address(s.next + 50)}
	txRef := fmt.Sprintf("tx-%d", s.next)
	s.refs[txRef] = ref
	s.pools[ref.PoolID] = &models.Pool{
		PoolID:       ref.PoolID,
		OptionLabels: req.OptionLabels,
		CloseTime:    req.CloseTime,
		FeeBps:       req.FeeBps,
	}
	return &services.CreatePoolResult{TxRef: txRef}, nil
}

func (s *stubLedger) LookupPool(ctx context.Context, txRef string) (*models.PoolRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.refs[txRef]
	if !ok {
		return nil, services.ErrPoolNotIndexed
	}
	return &ref, nil
}

func (s *stubLedger) GetPool(ctx context.Context, poolID string) (*models.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[poolID]
	if !ok {
		return nil, errors.New("account not found")
	}
	cp := *pool
	return &cp, nil
}

func (s *stubLedger) PlaceStake(ctx context.Context, req services.StakeRequest) (*services.TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[req.PoolID].Totals[req.OptionIndex] += req.Amount
	return &services.TxResult{TxRef: fmt.Sprintf("stake-%s-%d", req.Bettor, req.Amount)}, nil
}

func (s *stubLedger) ConfirmStake(ctx context.Context, txRef string) (*services.StakeReceipt, error) {
	return nil, errors.New("not supported")
}

func (s *stubLedger) ClosePool(ctx context.Context, poolID, matchRef string) (*services.TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[poolID].Closed = true
	return &services.TxResult{TxRef: "close"}, nil
}

func (s *stubLedger) PostResult(ctx context.Context, poolID, matchRef string, idx int) (*services.TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[poolID].ResultIndex = &idx
	return &services.TxResult{TxRef: "result"}, nil
}

func (s *stubLedger) HasClaimed(ctx context.Context, poolID, user string) (bool, error) {
	return false, nil
}

func (s *stubLedger) Claim(ctx context.Context, poolID, user string) (*services.ClaimResult, error) {
	return &services.ClaimResult{TxRef: "claim", Payout: 1}, nil
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	ledger *stubLedger
	mirror *services.PoolMirrorService
	hub    *OddsHub
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.AdminUser{},
		&models.PredictionEvent{},
		&models.PredictionScore{},
		&models.Bet{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	repo := repository.NewRepository(db)
	ledger := newStubLedger()

	lifecycle := services.NewLifecycleService(repo, nil)
	scoring := services.NewScoringService(repo, failingEvaluator{}, 0, nil)
	mirror := services.NewPoolMirrorService(ledger, nil, 6, time.Minute, "pool_updates", nil)
	settlement := services.NewSettlementService(repo, lifecycle, scoring, mirror, ledger,
		services.NewPollPolicy(2, 0), 250, nil)
	bets := services.NewBetService(repo, lifecycle, ledger, 6, nil)
	authService := services.NewAuthService(db)
	adminService := services.NewAdminService(db)

	hub := NewOddsHub(mirror, nil)
	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:        NewAuthHandler(authService, adminService),
		Admin:       NewAdminHandler(adminService),
		Predictions: NewPredictionHandler(lifecycle, scoring, mirror),
		Bets:        NewBetHandler(bets, settlement),
		Settlement:  NewSettlementHandler(lifecycle, scoring, settlement),
		Blockchain:  NewBlockchainHandler(mirror, nil),
		Odds:        hub,
	})

	return &testServer{router: router, db: db, ledger: ledger, mirror: mirror, hub: hub}
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(ctx context.Context, in services.EvaluationInput) (*services.Evaluation, error) {
	return nil, errors.New("evaluator offline")
}

// login creates a user for wallet and returns a bearer token
func (s *testServer) login(t *testing.T, wallet string, admin bool) string {
	t.Helper()
	user := models.User{WalletAddress: wallet, Nickname: wallet}
	if err := s.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if admin {
		if err := s.db.Create(&models.AdminUser{UserID: user.ID, Role: models.AdminRoleOperator}).Error; err != nil {
			t.Fatalf("failed to create admin: %v", err)
		}
	}
	token, err := auth.GenerateToken(user.ID, wallet)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&services.ValidationError{Field: "amount", Message: "bad"}, http.StatusBadRequest},
		{&services.IllegalTransitionError{From: models.EventStatusRejected, To: models.EventStatusApproved}, http.StatusConflict},
		{&services.IllegalTransitionError{From: models.EventStatusPending, To: models.EventStatusRejected, PoolLinked: true}, http.StatusConflict},
		{&services.LedgerWriteError{Op: "record_bet", Err: errors.New("stake tx-1 committed but not recorded")}, http.StatusBadGateway},
		{fmt.Errorf("%w: tx abc", services.ErrPoolIDNotFound), http.StatusAccepted},
		{&services.PreconditionMissingError{What: "match_ref"}, http.StatusPreconditionFailed},
		{&services.LedgerReadError{Op: "get_pool", Err: errors.New("rpc")}, http.StatusBadGateway},
		{&services.LedgerWriteError{Op: "close_pool", Ambiguous: true, Err: errors.New("timeout")}, http.StatusBadGateway},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrAlreadyClaimed, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, tt.err)
		if w.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
	}
}

func TestWalletLogin(t *testing.T) {
	s := setupTestServer(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	wallet := base58.Encode(pub)
	sig := base58.Encode(ed25519.Sign(priv, []byte(LoginMessage)))

	w := s.do(t, http.MethodPost, "/auth/wallet", "", gin.H{"wallet_address": wallet, "signature": sig})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Token == "" || resp.User.WalletAddress != wallet || resp.User.Nickname == "" {
		t.Errorf("unexpected login response %+v", resp)
	}

	w = s.do(t, http.MethodGet, "/auth/me", resp.Token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /auth/me, got %d", w.Code)
	}

	badSig := base58.Encode(ed25519.Sign(priv, []byte("something else")))
	w = s.do(t, http.MethodPost, "/auth/wallet", "", gin.H{"wallet_address": wallet, "signature": badSig})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong message, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/auth/wallet", "", gin.H{"wallet_address": "short", "signature": sig})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad address, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := setupTestServer(t)

	if w := s.do(t, http.MethodGet, "/api/admin/predictions/pending", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	user := s.login(t, address(1), false)
	if w := s.do(t, http.MethodGet, "/api/admin/predictions/pending", user, nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d", w.Code)
	}

	admin := s.login(t, address(2), true)
	if w := s.do(t, http.MethodGet, "/api/admin/predictions/pending", admin, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for admin, got %d", w.Code)
	}
}

func TestPredictionLifecycleOverHTTP(t *testing.T) {
	s := setupTestServer(t)
	creator := s.login(t, address(3), false)
	admin := s.login(t, address(4), true)
	bettor := s.login(t, address(5), false)

	// Submit; the creator's wallet becomes the ledger creator.
	w := s.do(t, http.MethodPost, "/api/predictions", creator, gin.H{
		"game_id":    "match-77",
		"prediction": "Home wins",
		"option_a":   "Yes",
		"option_b":   "No",
		"deadline":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var event models.PredictionEvent
	decode(t, w, &event)
	if event.CreatorLedgerAddress == nil || *event.CreatorLedgerAddress != address(3) {
		t.Errorf("expected creator address from wallet, got %v", event.CreatorLedgerAddress)
	}
	base := "/api/predictions/" + event.ID.String()
	adminBase := "/api/admin/predictions/" + event.ID.String()

	// Betting before promotion is rejected.
	if w := s.do(t, http.MethodPost, base+"/bets", bettor, gin.H{"option": "Yes", "amount": 10}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 betting on pending, got %d", w.Code)
	}

	// Scoring falls back to defaults when the evaluator is down.
	w = s.do(t, http.MethodPost, adminBase+"/score", admin, nil)
	var score models.PredictionScore
	decode(t, w, &score)
	if w.Code != http.StatusOK || !score.Fallback {
		t.Errorf("expected fallback score, got %d %+v", w.Code, score)
	}

	w = s.do(t, http.MethodPost, adminBase+"/promote", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on promote, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &event)
	if event.Status != models.EventStatusApproved || event.PoolID == nil {
		t.Fatalf("expected approved event with pool, got %+v", event)
	}

	if w := s.do(t, http.MethodPost, base+"/bets", bettor, gin.H{"option": "Yes", "amount": 3_000_000}); w.Code != http.StatusCreated {
		t.Fatalf("expected 201 on bet, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, base+"/bets", bettor, gin.H{"option": "No", "amount": 1}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on second bet, got %d", w.Code)
	}

	// Odds reflect the ledger after a refresh.
	if w := s.do(t, http.MethodPost, "/api/admin/pools/"+*event.PoolID+"/refresh", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d", w.Code)
	}
	var view models.PoolView
	w = s.do(t, http.MethodGet, base+"/pool", "", nil)
	decode(t, w, &view)
	if len(view.Percentages) != 2 || view.Percentages[0] != 100 {
		t.Errorf("unexpected odds %+v", view)
	}

	// Claims are blocked until completion.
	if w := s.do(t, http.MethodGet, base+"/claim", bettor, nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 before completion, got %d", w.Code)
	}

	// Resolve before close is an illegal transition.
	if w := s.do(t, http.MethodPost, adminBase+"/resolve", admin, gin.H{"winning_option": "Yes"}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 resolving approved event, got %d", w.Code)
	}

	if w := s.do(t, http.MethodPost, adminBase+"/close", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d: %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, adminBase+"/resolve", admin, gin.H{"winning_option": "Maybe"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown option, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, adminBase+"/resolve", admin, gin.H{"winning_option": "Yes"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on resolve, got %d: %s", w.Code, w.Body.String())
	}

	var elig models.ClaimEligibility
	w = s.do(t, http.MethodGet, base+"/claim", bettor, nil)
	decode(t, w, &elig)
	if !elig.Eligible {
		t.Errorf("expected winner to be eligible, got %+v", elig)
	}
	if w := s.do(t, http.MethodPost, base+"/claim", bettor, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 on claim, got %d", w.Code)
	}

	var summary map[string]models.BetSummaryEntry
	w = s.do(t, http.MethodGet, "/api/bets/me/summary", bettor, nil)
	decode(t, w, &summary)
	if entry, ok := summary[event.ID.String()]; !ok || entry.DisplayAmount.String() != "3" {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestPromoteWithoutCreatorAddress(t *testing.T) {
	s := setupTestServer(t)
	admin := s.login(t, address(6), true)

	event := models.PredictionEvent{
		GameID:    "g",
		Statement: "No wallet",
		OptionA:   "Yes",
		OptionB:   "No",
		Duration:  24,
		Status:    models.EventStatusPending,
		CreatorID: 1,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := repository.NewRepository(s.db).CreatePrediction(context.Background(), &event); err != nil {
		t.Fatalf("CreatePrediction failed: %v", err)
	}

	w := s.do(t, http.MethodPost, "/api/admin/predictions/"+event.ID.String()+"/promote", admin, nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("expected 412, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetPredictionErrors(t *testing.T) {
	s := setupTestServer(t)

	if w := s.do(t, http.MethodGet, "/api/predictions/not-a-uuid", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/predictions/00000000-0000-0000-0000-000000000001", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
