package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/broker"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/resilience"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
	"spread-trader/internal/trading"
)

var (
	testNow = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	testExp = time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC)
)

func testClock() time.Time { return testNow }

type fixture struct {
	paper   *broker.PaperBroker
	ledger  *store.MemoryStore
	breaker *risk.CircuitBreaker
	fills   *resilience.FillTracker
	health  *resilience.HealthMonitor
	srv     *Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		paper:  broker.NewPaperBroker(broker.PaperBrokerConfig{InitialBalance: 100000, AlwaysOpen: true}).WithClock(testClock),
		ledger: store.NewMemoryStore(),
	}
	kv := store.NewMemoryKV()
	riskCfg := risk.DefaultConfig()
	stats := risk.NewStatsBook(kv, riskCfg, time.UTC).WithClock(testClock)
	f.breaker = risk.NewCircuitBreaker(riskCfg, kv, stats, zerolog.Nop()).WithClock(testClock)

	exec := trading.ExecutionConfig{
		PollInterval:    2 * time.Millisecond,
		FillTimeout:     200 * time.Millisecond,
		CancelOnTimeout: true,
		Ladder:          []trading.PriceStep{{After: 0, Step: 0.02}, {After: 0, Step: 0.03}},
	}
	f.fills = resilience.NewFillTracker(resilience.DefaultFillTrackerConfig())
	coord := trading.NewCoordinator(f.paper, f.ledger, stats, notify.Nop{}, nil, exec, zerolog.Nop()).
		WithClock(testClock).
		WithFillTracker(f.fills)
	vcfg := risk.DefaultValidatorConfig()
	vcfg.MaxPriceDriftPct = 0.05
	approvals := trading.NewApprovals(coord, f.ledger, f.breaker, risk.NewTradeValidator(vcfg), f.paper, zerolog.Nop()).
		WithClock(testClock)

	hcfg := resilience.DefaultHealthMonitorConfig()
	hcfg.MemoryThresholdMB, hcfg.GoroutineThreshold = 0, 0
	f.health = resilience.NewHealthMonitor(hcfg, zerolog.Nop())
	f.health.RegisterComponent("trading", resilience.TradingHaltCheck(f.breaker.Status))

	f.srv = New(cfg, Deps{
		Approvals:   approvals,
		Ledger:      f.ledger,
		Breaker:     f.breaker,
		APIBreakers: resilience.NewRegistry(resilience.DefaultBreakerConfig()),
		Fills:       f.fills,
		Health:      f.health,
		Metrics:     metrics.New(),
	}, zerolog.Nop())
	t.Cleanup(f.srv.Shutdown)

	f.setQuotes(1.75, 2.25, 0.25, 0.75)
	return f
}

func (f *fixture) setQuotes(shortBid, shortAsk, longBid, longAsk float64) {
	f.paper.SetChain(&models.OptionChain{
		Underlying:      "SPY",
		UnderlyingPrice: 490,
		Timestamp:       testNow,
		Contracts: []models.OptionContract{
			putContract(480, shortBid, shortAsk),
			putContract(475, longBid, longAsk),
		},
	})
}

func putContract(strike, bid, ask float64) models.OptionContract {
	return models.OptionContract{
		Symbol:     models.OCCSymbol("SPY", testExp, models.OptionPut, strike),
		Underlying: "SPY",
		Expiration: testExp,
		Strike:     strike,
		Type:       models.OptionPut,
		Bid:        bid,
		Ask:        ask,
	}
}

func (f *fixture) saveRecommendation(t *testing.T, id string, credit float64) {
	t.Helper()
	rec := &models.Recommendation{
		ID:                 id,
		CreatedAt:          testNow,
		ExpiresAt:          testNow.Add(15 * time.Minute),
		Status:             models.RecommendationPending,
		Underlying:         "SPY",
		SpreadType:         models.BullPutSpread,
		ShortStrike:        480,
		LongStrike:         475,
		Expiration:         testExp,
		Credit:             credit,
		MaxLoss:            (5 - credit) * 100,
		SuggestedContracts: 1,
	}
	if err := f.ledger.SaveRecommendation(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *Error          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if data != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func TestApproveImmediateFill(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.saveRecommendation(t, "rec-1", 1.50)

	w := f.do(http.MethodPost, "/api/v1/recommendations/rec-1/approve", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var trade models.Trade
	env := decode(t, w, &trade)
	if !env.Success || trade.Status != models.TradeOpen || trade.RecommendationID != "rec-1" {
		t.Errorf("trade = %+v", trade)
	}
}

func TestApproveFollowsFillInBackground(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.saveRecommendation(t, "rec-1", 1.55)

	w := f.do(http.MethodPost, "/api/v1/recommendations/rec-1/approve", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var trade models.Trade
	decode(t, w, &trade)
	if trade.Status != models.TradePendingFill {
		t.Fatalf("status = %s, want pending_fill", trade.Status)
	}

	f.srv.Wait()
	stored, err := f.ledger.GetTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.TradeOpen || stored.EntryCredit != 1.5 {
		t.Errorf("stored = %+v, want open at the 1.50 fill", stored)
	}

	var fills FillsView
	decode(t, f.do(http.MethodGet, "/api/v1/fills", "", nil), &fills)
	if fills.Stats.Total != 1 || fills.Stats.Filled != 1 || len(fills.Recent) != 1 {
		t.Fatalf("fills = %+v", fills)
	}
	q := fills.Recent[0]
	if q.Underlying != "SPY" || q.Adjustments != 2 || q.InitialLimit != -1.55 || q.FinalLimit != -1.5 || q.Concession != 0.05 {
		t.Errorf("fill = %+v", q)
	}
}

func TestApproveErrors(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.saveRecommendation(t, "rec-1", 1.50)

	w := f.do(http.MethodPost, "/api/v1/recommendations/missing/approve", "", nil)
	if env := decode(t, w, nil); w.Code != http.StatusNotFound || env.Error.Code != ErrCodeNotFound {
		t.Errorf("missing: status = %d body = %s", w.Code, w.Body)
	}

	if _, err := f.breaker.Trip(context.Background(), "manual"); err != nil {
		t.Fatal(err)
	}
	w = f.do(http.MethodPost, "/api/v1/recommendations/rec-1/approve", "", nil)
	if env := decode(t, w, nil); w.Code != http.StatusConflict || env.Error.Code != ErrCodeTradingHalted {
		t.Errorf("halted: status = %d body = %s", w.Code, w.Body)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.saveRecommendation(t, "rec-1", 1.50)

	if w := f.do(http.MethodPost, "/api/v1/recommendations/rec-1/reject", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	w := f.do(http.MethodPost, "/api/v1/recommendations/rec-1/reject", "", nil)
	if env := decode(t, w, nil); w.Code != http.StatusUnprocessableEntity || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("second reject: status = %d body = %s", w.Code, w.Body)
	}

	var recs []models.Recommendation
	decode(t, f.do(http.MethodGet, "/api/v1/recommendations?status=rejected", "", nil), &recs)
	if len(recs) != 1 || recs[0].ID != "rec-1" {
		t.Errorf("rejected recommendations = %+v", recs)
	}
}

func TestCloseTradeRunsInBackground(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	opened := testNow.Add(-24 * time.Hour)
	trade := &models.Trade{
		ID:          "t1",
		OpenedAt:    &opened,
		Status:      models.TradeOpen,
		Underlying:  "SPY",
		SpreadType:  models.BullPutSpread,
		ShortStrike: 480,
		LongStrike:  475,
		Expiration:  testExp,
		EntryCredit: 1.50,
		Contracts:   1,
	}
	if err := f.ledger.SaveTrade(context.Background(), trade); err != nil {
		t.Fatal(err)
	}
	f.setQuotes(0.75, 1.25, 0.25, 0.35)

	w := f.do(http.MethodPost, "/api/v1/trades/t1/close", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	f.srv.Wait()

	var stored models.Trade
	decode(t, f.do(http.MethodGet, "/api/v1/trades/t1", "", nil), &stored)
	if stored.Status != models.TradeClosed || stored.ProfitLoss == nil || *stored.ProfitLoss != 50 {
		t.Errorf("stored = %+v, want closed with 50 profit", stored)
	}

	w = f.do(http.MethodPost, "/api/v1/trades/t1/close", "", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("closing a closed trade: status = %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/v1/trades/nope/close", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing trade: status = %d", w.Code)
	}
}

func TestBreakerEndpoints(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if w := f.do(http.MethodPost, "/api/v1/breaker/trip", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("trip without reason: status = %d", w.Code)
	}
	w := f.do(http.MethodPost, "/api/v1/breaker/trip", `{"reason":"Operator stop"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trip: status = %d: %s", w.Code, w.Body)
	}

	var view BreakerView
	decode(t, f.do(http.MethodGet, "/api/v1/breaker", "", nil), &view)
	if !view.Trading.Halted || view.Trading.Reason != "Operator stop" {
		t.Errorf("status = %+v, want halted by operator", view.Trading)
	}

	if w := f.do(http.MethodPost, "/api/v1/breaker/reset", "", nil); w.Code != http.StatusOK {
		t.Fatalf("reset: status = %d", w.Code)
	}
	decode(t, f.do(http.MethodGet, "/api/v1/breaker", "", nil), &view)
	if view.Trading.Halted {
		t.Error("still halted after reset")
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	w := f.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var h resilience.SystemHealth
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != resilience.HealthStatusHealthy {
		t.Errorf("health = %s", h.Status)
	}

	f.health.RegisterComponent("ledger", resilience.DatabaseHealthCheck(func(context.Context) error {
		return errors.New("database is locked")
	}))
	if w := f.do(http.MethodGet, "/health", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy ledger: status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	w := f.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSignatureRequiredWhenSecretSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secret = "s3cret"
	f := newFixture(t, cfg)
	body := `{"reason":"Operator stop"}`

	if w := f.do(http.MethodPost, "/api/v1/breaker/trip", body, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unsigned: status = %d", w.Code)
	}

	bad := http.Header{notify.SignatureHeader: []string{notify.Sign([]byte("wrong"), []byte(body))}}
	if w := f.do(http.MethodPost, "/api/v1/breaker/trip", body, bad); w.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: status = %d", w.Code)
	}

	good := http.Header{notify.SignatureHeader: []string{notify.Sign([]byte(cfg.Secret), []byte(body))}}
	if w := f.do(http.MethodPost, "/api/v1/breaker/trip", body, good); w.Code != http.StatusOK {
		t.Errorf("signed: status = %d: %s", w.Code, w.Body)
	}

	// Reads stay open.
	if w := f.do(http.MethodGet, "/api/v1/breaker", "", nil); w.Code != http.StatusOK {
		t.Errorf("read: status = %d", w.Code)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit, cfg.RateBurst = 0.001, 1
	f := newFixture(t, cfg)

	if w := f.do(http.MethodPost, "/api/v1/breaker/reset", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first: status = %d", w.Code)
	}
	w := f.do(http.MethodPost, "/api/v1/breaker/reset", "", nil)
	if env := decode(t, w, nil); w.Code != http.StatusTooManyRequests || env.Error.Code != ErrCodeRateLimited {
		t.Errorf("second: status = %d body = %s", w.Code, w.Body)
	}
}

func TestListTradesRejectsBadLimit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if w := f.do(http.MethodGet, "/api/v1/trades?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/api/v1/trades?status=open", "", nil)
	var trades []models.Trade
	decode(t, w, &trades)
	if w.Code != http.StatusOK || len(trades) != 0 {
		t.Errorf("status = %d trades = %+v", w.Code, trades)
	}
}
