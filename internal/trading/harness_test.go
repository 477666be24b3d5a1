package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/agents"
	"spread-trader/internal/broker"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
)

var (
	testNow = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	testExp = time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC) // 39 DTE
)

func testClock() time.Time { return testNow }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) ofType(t notify.NotificationType) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	paper   *broker.PaperBroker
	ledger  *store.MemoryStore
	kv      *store.MemoryKV
	stats   *risk.StatsBook
	breaker *risk.CircuitBreaker
	notes   *recordingNotifier
	coord   *Coordinator
}

func fastExecution() ExecutionConfig {
	return ExecutionConfig{
		PollInterval:    2 * time.Millisecond,
		FillTimeout:     200 * time.Millisecond,
		CancelOnTimeout: true,
		AutoExit:        true,
	}
}

func newHarness(t *testing.T, cfg ExecutionConfig) *harness {
	t.Helper()
	h := &harness{
		paper:  broker.NewPaperBroker(broker.PaperBrokerConfig{InitialBalance: 100000, AlwaysOpen: true}).WithClock(testClock),
		ledger: store.NewMemoryStore(),
		kv:     store.NewMemoryKV(),
		notes:  &recordingNotifier{},
	}
	riskCfg := risk.DefaultConfig()
	h.stats = risk.NewStatsBook(h.kv, riskCfg, time.UTC).WithClock(testClock)
	h.breaker = risk.NewCircuitBreaker(riskCfg, h.kv, h.stats, zerolog.Nop()).WithClock(testClock)
	h.coord = NewCoordinator(h.paper, h.ledger, h.stats, h.notes, nil, cfg, zerolog.Nop()).WithClock(testClock)
	h.setQuotes(1.75, 2.25, 0.25, 0.75)
	return h
}

// setQuotes publishes a SPY chain with a 480/475 put pair.
func (h *harness) setQuotes(shortBid, shortAsk, longBid, longAsk float64) {
	delta := -0.25
	iv := 0.22
	short := putContract(480, shortBid, shortAsk)
	short.Delta, short.IV = &delta, &iv
	long := putContract(475, longBid, longAsk)
	long.IV = &iv
	h.paper.SetChain(&models.OptionChain{
		Underlying:      "SPY",
		UnderlyingPrice: 490,
		Timestamp:       testNow,
		Contracts:       []models.OptionContract{short, long},
	})
}

func putContract(strike, bid, ask float64) models.OptionContract {
	return models.OptionContract{
		Symbol:       models.OCCSymbol("SPY", testExp, models.OptionPut, strike),
		Underlying:   "SPY",
		Expiration:   testExp,
		Strike:       strike,
		Type:         models.OptionPut,
		Bid:          bid,
		Ask:          ask,
		Volume:       500,
		OpenInterest: 2000,
	}
}

func testSpread() models.CreditSpread {
	return models.CreditSpread{
		Underlying: "SPY",
		Type:       models.BullPutSpread,
		Short:      putContract(480, 1.75, 2.25),
		Long:       putContract(475, 0.25, 0.75),
		Expiration: testExp,
	}
}

func openTrade(id string, credit float64, contracts int) *models.Trade {
	opened := testNow.Add(-24 * time.Hour)
	return &models.Trade{
		ID:          id,
		OpenedAt:    &opened,
		Status:      models.TradeOpen,
		Underlying:  "SPY",
		SpreadType:  models.BullPutSpread,
		ShortStrike: 480,
		LongStrike:  475,
		Expiration:  testExp,
		EntryCredit: credit,
		Contracts:   contracts,
	}
}

// stubAnalyst returns a fixed confidence and lesson and counts reflections.
type stubAnalyst struct {
	confidence models.Confidence
	lesson     string

	mu        sync.Mutex
	reflected []string
}

func (s *stubAnalyst) Name() string { return "stub" }

func (s *stubAnalyst) AnalyzeTrade(_ context.Context, spread models.CreditSpread, _ models.TradeContext, _ []models.PlaybookRule) (*models.TradeAnalysis, error) {
	return &models.TradeAnalysis{Thesis: "Sell premium on " + spread.Underlying, Confidence: s.confidence}, nil
}

func (s *stubAnalyst) Reflect(_ context.Context, trade models.Trade, _ string) (*agents.TradeReflection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reflected = append(s.reflected, trade.ID)
	return &agents.TradeReflection{Reflection: "Closed " + trade.ID, Lesson: s.lesson}, nil
}
