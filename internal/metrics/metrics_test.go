package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *SettlementMetrics
	m.RecordTransition("approved", true)
	m.RecordLedgerCall("create_pool", time.Now(), nil)
	m.RecordDiscovery(3)
	m.RecordScore(true, 64, time.Millisecond)
	m.RecordPoolRefresh("p", decimal.Zero, nil)
	m.RecordBet("wallet")
}

func TestRecordLedgerCall(t *testing.T) {
	m := NewSettlementMetrics()

	m.RecordLedgerCall("close_pool", time.Now(), nil)
	m.RecordLedgerCall("close_pool", time.Now(), errors.New("boom"))
	m.RecordLedgerCall("close_pool", time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(m.LedgerCallsTotal.WithLabelValues("close_pool", "error")); got != 2 {
		t.Errorf("expected 2 failed calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.LedgerCallsTotal.WithLabelValues("close_pool", "ok")); got != 1 {
		t.Errorf("expected 1 ok call, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewSettlementMetrics()
	m.RecordPoolRefresh("pool-1", decimal.RequireFromString("1.5"), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `pool_total_staked{pool_id="pool-1"} 1.5`) {
		t.Errorf("expected staked gauge in output, got:\n%s", body)
	}
}
