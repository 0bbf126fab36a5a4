package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sports-prediction/internal/models"
)

func TestOddsStream(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	poolID := address(42)
	s.ledger.pools[poolID] = &models.Pool{
		PoolID:       poolID,
		OptionLabels: [2]string{"Yes", "No"},
		Totals:       [2]uint64{1, 3},
		CloseTime:    time.Now().Add(time.Hour),
	}
	if _, err := s.mirror.Refresh(ctx, poolID); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/pools/" + poolID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg oddsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if msg.Type != "pool_snapshot" || msg.Data.Percentages[0] != 25 {
		t.Errorf("unexpected snapshot %+v", msg)
	}
	if n := s.hub.ClientCount(poolID); n != 1 {
		t.Errorf("expected 1 client, got %d", n)
	}

	s.ledger.pools[poolID].Totals = [2]uint64{3, 1}
	if _, err := s.mirror.Refresh(ctx, poolID); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read update: %v", err)
	}
	if msg.Type != "pool_update" || msg.Data.Percentages[0] != 75 {
		t.Errorf("unexpected update %+v", msg)
	}

	// Updates of other pools are not delivered here.
	s.hub.Broadcast(models.PoolView{PoolID: address(43)})
	if n := s.hub.ClientCount(address(43)); n != 0 {
		t.Errorf("expected no clients on other pool, got %d", n)
	}
}

func TestOddsStreamRejectsBadPoolID(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws/pools/not-a-pool", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestOddsHubUnregisterOnDisconnect(t *testing.T) {
	s := setupTestServer(t)

	server := httptest.NewServer(s.router)
	defer server.Close()

	poolID := address(44)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/pools/" + poolID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount(poolID) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.hub.ClientCount(poolID); n != 1 {
		t.Fatalf("expected 1 client, got %d", n)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for s.hub.ClientCount(poolID) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.hub.ClientCount(poolID); n != 0 {
		t.Errorf("expected client to be removed, got %d", n)
	}
}
