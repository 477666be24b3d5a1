package trading

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/risk"
)

func (h *harness) monitor(cfg ExitConfig) *Monitor {
	return NewMonitor(h.paper, h.ledger, h.breaker, risk.NewPositionSizer(risk.DefaultConfig()),
		h.coord, NewExitValidator(cfg), nil, nil, zerolog.Nop()).WithClock(testClock)
}

func TestMonitorMarksPositionsWithoutExit(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, openTrade("t1", 1.50, 2))

	res, err := h.monitor(DefaultExitConfig()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != "" || res.Checked != 1 || len(res.Exits) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Positions) != 1 {
		t.Fatalf("positions = %+v, want 1", res.Positions)
	}
	pos := res.Positions[0]
	if pos.TradeID != "t1" || pos.CloseCost != 1.5 || pos.CurrentValue != 300 || pos.UnrealizedPnL != 0 {
		t.Errorf("position = %+v", pos)
	}
	if res.Heat == nil || res.Heat.TotalRisk != 300 {
		t.Errorf("heat = %+v", res.Heat)
	}

	// A second run replaces the snapshot instead of adding one.
	res, _ = h.monitor(DefaultExitConfig()).Run(ctx)
	if len(res.Positions) != 1 {
		t.Errorf("positions after rerun = %d, want 1", len(res.Positions))
	}
}

func TestMonitorExecutesProfitTarget(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, openTrade("t1", 1.50, 2))
	h.setQuotes(0.75, 1.25, 0.25, 0.35)

	res, err := h.monitor(DefaultExitConfig()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exits) != 1 {
		t.Fatalf("exits = %+v, want 1", res.Exits)
	}
	exit := res.Exits[0]
	if exit.Reason != models.ExitProfitTarget || !exit.Executed || exit.Error != "" {
		t.Errorf("exit = %+v", exit)
	}
	if !strings.HasPrefix(exit.Message, "Profit target reached (53%") {
		t.Errorf("message = %q", exit.Message)
	}

	stored, _ := h.ledger.GetTrade(ctx, "t1")
	if stored.Status != models.TradeClosed || *stored.ProfitLoss != 160 {
		t.Errorf("stored = %+v", stored)
	}
	if len(res.Positions) != 0 {
		t.Errorf("positions = %+v, want none after exit", res.Positions)
	}
	exits := h.notes.ofType(notify.NotificationExit)
	if len(exits) != 1 || exits[0].Data["executed"] != true {
		t.Errorf("exit notifications = %+v", exits)
	}
}

func TestMonitorAlertsWhenAutoExitDisabled(t *testing.T) {
	cfg := fastExecution()
	cfg.AutoExit = false
	h := newHarness(t, cfg)
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, openTrade("t1", 1.00, 1))
	// Close cost 3.00 is a 200% loss of credit.
	h.setQuotes(3.25, 3.75, 0.25, 0.75)

	res, err := h.monitor(DefaultExitConfig()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exits) != 1 || res.Exits[0].Reason != models.ExitStopLoss || res.Exits[0].Executed {
		t.Fatalf("exits = %+v", res.Exits)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v", res.Errors)
	}
	stored, _ := h.ledger.GetTrade(ctx, "t1")
	if stored.Status != models.TradeOpen {
		t.Errorf("status = %s, want open", stored.Status)
	}
}

func TestMonitorSkipsStaleChains(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, openTrade("t1", 1.50, 1))

	later := func() time.Time { return testNow.Add(time.Minute) }
	res, err := h.monitor(DefaultExitConfig()).WithClock(later).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Errors["t1"], "stale data") {
		t.Errorf("errors = %v, want stale data", res.Errors)
	}
	if len(res.Positions) != 0 {
		t.Errorf("positions = %+v, stale marks must not be stored", res.Positions)
	}
	status, _ := h.breaker.Status(ctx)
	if status.Halted {
		t.Error("stale data for one underlying should not trip the breaker")
	}
}

func TestMonitorSkipsWhenHalted(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()
	_ = h.ledger.SaveTrade(ctx, openTrade("t1", 1.50, 1))
	if _, err := h.breaker.Trip(ctx, "Manual halt"); err != nil {
		t.Fatal(err)
	}

	res, err := h.monitor(DefaultExitConfig()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != "trading halted: Manual halt" || res.Checked != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestMonitorReconcilesBeforeMarking(t *testing.T) {
	h := newHarness(t, fastExecution())
	ctx := context.Background()

	order, err := h.coord.SubmitOpen(ctx, testSpread(), 1, 1.50)
	if err != nil {
		t.Fatal(err)
	}
	_ = h.ledger.SaveTrade(ctx, &models.Trade{
		ID: "t1", Status: models.TradePendingFill, Underlying: "SPY", SpreadType: models.BullPutSpread,
		ShortStrike: 480, LongStrike: 475, Expiration: testExp, EntryCredit: 1.50, Contracts: 1,
		BrokerOrderID: order.ID,
	})

	res, err := h.monitor(DefaultExitConfig()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reconcile == nil || res.Reconcile.Trades["t1"] != OutcomeFilled {
		t.Fatalf("reconcile = %+v", res.Reconcile)
	}
	if res.Checked != 1 || len(res.Positions) != 1 {
		t.Errorf("result = %+v, want the newly opened trade marked", res)
	}
}
