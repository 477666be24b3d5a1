package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
)

func TestNextLimit(t *testing.T) {
	tests := []struct {
		limit, step, want float64
	}{
		{-1.50, 0.02, -1.48},
		{-1.53, 0.03, -1.50},
		{0.70, 0.02, 0.72},
		{0.70, -0.02, 0.72},
		{-0.02, 0.03, -0.01},
		{-0.01, 0.02, -0.01},
		{-1.449, 0.02, -1.43},
	}
	for _, tt := range tests {
		if got := NextLimit(tt.limit, tt.step); got != tt.want {
			t.Errorf("NextLimit(%v, %v) = %v, want %v", tt.limit, tt.step, got, tt.want)
		}
	}
}

// Property: repricing always concedes toward the market and a credit limit
// never turns into a debit.
func TestProperty_NextLimitConcedes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("credit limits move up and stay credits", prop.ForAll(
		func(cents, stepCents int) bool {
			limit := -float64(cents) / 100
			next := NextLimit(limit, float64(stepCents)/100)
			return next >= limit && next <= maxCreditLimit
		},
		gen.IntRange(1, 1000),
		gen.IntRange(0, 10),
	))

	properties.Property("debit limits move up", prop.ForAll(
		func(cents, stepCents int) bool {
			limit := float64(cents) / 100
			next := NextLimit(limit, float64(stepCents)/100)
			return next >= limit
		},
		gen.IntRange(1, 1000),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestSubmitOpenValidation(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()

	if _, err := h.coord.SubmitOpen(ctx, testSpread(), 0, 1.5); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Errorf("zero contracts: err = %v", err)
	}
	if _, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 0); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Errorf("zero credit: err = %v", err)
	}
	inverted := testSpread()
	inverted.Short, inverted.Long = inverted.Long, inverted.Short
	if _, err := h.coord.SubmitOpen(ctx, inverted, 1, 1.5); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Errorf("inverted strikes: err = %v", err)
	}
}

func TestSubmitOpenUsesNegativeLimit(t *testing.T) {
	h := newHarness(t, fastExecution())
	order, err := h.coord.SubmitOpen(context.Background(), testSpread(), 2, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if order.LimitPrice != -1.5 || order.Status != models.OrderStatusFilled {
		t.Errorf("order = %+v, want filled at -1.50", order)
	}
	if order.Legs[0].Side != models.OrderSideSell || order.Legs[0].PositionIntent != models.SellToOpen {
		t.Errorf("short leg = %+v", order.Legs[0])
	}
}

func TestMonitorOrderFillLadderFollowsReplacement(t *testing.T) {
	cfg := fastExecution()
	cfg.Ladder = []PriceStep{{After: 0, Step: 0.02}, {After: 0, Step: 0.03}}
	h := newHarness(t, cfg)
	ctx := context.Background()

	// Net mid credit is 1.50, so asking 1.55 rests.
	order, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 1.55)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != models.OrderStatusNew {
		t.Fatalf("status = %s, want new", order.Status)
	}

	res, err := h.coord.MonitorOrderFill(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Filled || res.TimedOut {
		t.Fatalf("result = %+v, want filled", res)
	}
	if res.Adjustments != 2 {
		t.Errorf("adjustments = %d, want 2", res.Adjustments)
	}
	if res.OrderID == order.ID {
		t.Error("result should follow the replacement order id")
	}
	if res.Order.LimitPrice != -1.5 || res.FillPrice() != 1.5 {
		t.Errorf("final limit = %v fill = %v, want -1.50 / 1.50", res.Order.LimitPrice, res.FillPrice())
	}

	orig, err := h.paper.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if orig.Status != models.OrderStatusReplaced {
		t.Errorf("original status = %s, want replaced", orig.Status)
	}
}

func TestMonitorOrderFillLadderWaitsForThresholds(t *testing.T) {
	cfg := fastExecution()
	cfg.FillTimeout = 2 * time.Second
	cfg.Ladder = []PriceStep{{After: 20 * time.Millisecond, Step: 0.02}, {After: 40 * time.Millisecond, Step: 0.03}}
	h := newHarness(t, cfg)
	h.coord.WithClock(time.Now)
	ctx := context.Background()

	order, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 1.55)
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.coord.MonitorOrderFill(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Filled || res.Adjustments != 2 {
		t.Fatalf("result = %+v, want filled after 2 adjustments", res)
	}
	if res.Elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, filled before the second threshold", res.Elapsed)
	}
}

func TestMonitorOrderFillTimesOut(t *testing.T) {
	cfg := fastExecution()
	cfg.FillTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg)
	ctx := context.Background()

	order, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 2.00)
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.coord.MonitorOrderFill(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Filled || !res.TimedOut {
		t.Fatalf("result = %+v, want timed out", res)
	}
	// Timing out leaves the order working.
	live, _ := h.paper.GetOrder(ctx, order.ID)
	if live.Status != models.OrderStatusNew {
		t.Errorf("status = %s, want new", live.Status)
	}
}

func TestMonitorOrderFillStopsOnCancelAndDeadOrders(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()

	order, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 2.00)
	if err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := h.coord.MonitorOrderFill(cctx, order.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx: err = %v", err)
	}

	if err := h.paper.CancelOrder(ctx, order.ID); err != nil {
		t.Fatal(err)
	}
	res, err := h.coord.MonitorOrderFill(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Filled || res.TimedOut || res.Status() != models.OrderStatusCanceled {
		t.Errorf("result = %+v, want dead order", res)
	}

	if _, err := h.coord.MonitorOrderFill(ctx, "missing"); !apperrors.Is(err, apperrors.ErrOrderNotFound) {
		t.Errorf("missing order: err = %v", err)
	}
}

func TestCloseTradeRecordsExit(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	trade := openTrade("t1", 1.50, 2)
	if err := h.ledger.SaveTrade(ctx, trade); err != nil {
		t.Fatal(err)
	}
	if err := h.ledger.UpsertPosition(ctx, &models.Position{ID: "p1", TradeID: "t1", Underlying: "SPY"}); err != nil {
		t.Fatal(err)
	}
	h.setQuotes(0.75, 1.25, 0.25, 0.35)

	closed, err := h.coord.CloseTrade(ctx, *trade, models.ExitProfitTarget, 0.70)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != models.TradeClosed || *closed.ExitDebit != 0.7 || *closed.ProfitLoss != 160 {
		t.Fatalf("closed = %+v", closed)
	}

	stored, _ := h.ledger.GetTrade(ctx, "t1")
	if stored.Status != models.TradeClosed || stored.ExitReason != models.ExitProfitTarget {
		t.Errorf("stored = %+v", stored)
	}
	positions, _ := h.ledger.GetPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions = %v, want none", positions)
	}
	daily, _ := h.stats.Daily(ctx)
	if daily.RealizedPnL != 160 {
		t.Errorf("daily realized = %v, want 160", daily.RealizedPnL)
	}

	if _, err := h.coord.SubmitClose(ctx, *stored, 0.5); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Errorf("closing a closed trade: err = %v", err)
	}
}

func TestCloseTradeCancelsUnfilledOrder(t *testing.T) {
	cfg := fastExecution()
	cfg.FillTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg)
	ctx := context.Background()
	trade := openTrade("t1", 1.50, 1)
	_ = h.ledger.SaveTrade(ctx, trade)
	h.setQuotes(0.75, 1.25, 0.25, 0.35)

	// 0.40 is well below the 0.70 needed to close.
	_, err := h.coord.CloseTrade(ctx, *trade, models.ExitManual, 0.40)
	if !apperrors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	stored, _ := h.ledger.GetTrade(ctx, "t1")
	if stored.Status != models.TradeOpen {
		t.Errorf("status = %s, want open", stored.Status)
	}
	open := 0
	for _, n := range h.paper.Positions() {
		if n != 0 {
			open++
		}
	}
	if open != 0 {
		t.Errorf("paper positions = %v, close order should not have filled", h.paper.Positions())
	}
}

func TestAutoExitDisabledOnlyAlerts(t *testing.T) {
	cfg := fastExecution()
	cfg.AutoExit = false
	h := newHarness(t, cfg)
	ctx := context.Background()
	trade := openTrade("t1", 1.50, 1)
	_ = h.ledger.SaveTrade(ctx, trade)

	signal := ExitSignal{Reason: models.ExitProfitTarget, Message: "Profit target reached (53% of max)"}
	_, err := h.coord.AutoExit(ctx, *trade, signal, 0.70)
	if !errors.Is(err, apperrors.ErrAutoExitDisabled) {
		t.Fatalf("err = %v, want auto exit disabled", err)
	}
	exits := h.notes.ofType(notify.NotificationExit)
	if len(exits) != 1 || exits[0].Data["executed"] != false {
		t.Errorf("exit notifications = %+v", exits)
	}
	stored, _ := h.ledger.GetTrade(ctx, "t1")
	if stored.Status != models.TradeOpen {
		t.Errorf("status = %s, want open", stored.Status)
	}
}

func TestReconcileLifecycle(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()

	working, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 2.00)
	if err != nil {
		t.Fatal(err)
	}
	pending := &models.Trade{
		ID: "pending", Status: models.TradePendingFill, Underlying: "SPY", SpreadType: models.BullPutSpread,
		ShortStrike: 480, LongStrike: 475, Expiration: testExp, EntryCredit: 2.00, Contracts: 1,
		BrokerOrderID: working.ID,
	}
	_ = h.ledger.SaveTrade(ctx, pending)

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 1 || report.Trades["pending"] != OutcomePending {
		t.Fatalf("report = %+v, want pending", report)
	}

	// Quotes move so the 2.00 credit is now at mid.
	h.setQuotes(2.25, 2.75, 0.25, 0.75)
	report, err = h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Trades["pending"] != OutcomeFilled {
		t.Fatalf("report = %+v, want filled", report)
	}
	stored, _ := h.ledger.GetTrade(ctx, "pending")
	if stored.Status != models.TradeOpen || stored.EntryCredit != 2.0 || stored.OpenedAt == nil {
		t.Errorf("stored = %+v", stored)
	}
	if n := len(h.notes.ofType(notify.NotificationFill)); n != 1 {
		t.Errorf("fill notifications = %d, want 1", n)
	}

	// Replaying the same observation is a no-op.
	outcome, err := h.coord.ReconcileTrade(ctx, *pending)
	if err != nil || outcome != OutcomeSkipped {
		t.Errorf("replay = %s, %v; want skipped", outcome, err)
	}
	report, _ = h.coord.Reconcile(ctx)
	if report.Checked != 0 {
		t.Errorf("checked = %d after fill, want 0", report.Checked)
	}
}

func TestReconcileExpiresDeadOrders(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()

	order, _ := h.coord.SubmitOpen(ctx, testSpread(), 1, 2.00)
	_ = h.paper.CancelOrder(ctx, order.ID)
	_ = h.ledger.SaveTrade(ctx, &models.Trade{ID: "cancelled", Status: models.TradePendingFill, Underlying: "SPY",
		Expiration: testExp, BrokerOrderID: order.ID})
	_ = h.ledger.UpsertPosition(ctx, &models.Position{ID: "p", TradeID: "cancelled"})
	_ = h.ledger.SaveTrade(ctx, &models.Trade{ID: "orphan", Status: models.TradePendingFill, Underlying: "SPY",
		Expiration: testExp})

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Count(OutcomeExpired) != 2 {
		t.Fatalf("report = %+v, want 2 expired", report)
	}
	for _, id := range []string{"cancelled", "orphan"} {
		tr, _ := h.ledger.GetTrade(ctx, id)
		if tr.Status != models.TradeExpired {
			t.Errorf("%s status = %s, want expired", id, tr.Status)
		}
	}
	if positions, _ := h.ledger.GetPositions(ctx); len(positions) != 0 {
		t.Errorf("positions = %v, want none", positions)
	}
}

func TestReconcileMissingOrderAlerts(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, &models.Trade{ID: "ghost", Status: models.TradePendingFill, Underlying: "SPY",
		Expiration: testExp, BrokerOrderID: "does-not-exist"})

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Trades["ghost"] != OutcomeMismatch {
		t.Fatalf("report = %+v, want mismatch", report)
	}
	tr, _ := h.ledger.GetTrade(ctx, "ghost")
	if tr.Status != models.TradePendingFill {
		t.Errorf("status = %s, mismatches must not change the ledger", tr.Status)
	}
	if n := len(h.notes.ofType(notify.NotificationReconciliation)); n != 1 {
		t.Errorf("reconciliation alerts = %d, want 1", n)
	}
}

