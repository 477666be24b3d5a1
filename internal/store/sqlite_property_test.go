package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(id string) *models.Trade {
	return &models.Trade{
		ID:            id,
		Status:        models.TradePendingFill,
		Underlying:    "SPY",
		SpreadType:    models.BullPutSpread,
		ShortStrike:   450,
		LongStrike:    445,
		Expiration:    time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC),
		EntryCredit:   1.50,
		Contracts:     2,
		BrokerOrderID: "ord-" + id,
	}
}

// Property: saving a trade and reading it back preserves its economics and
// identifiers.
func TestProperty_TradeRoundTripConsistency(t *testing.T) {
	store := newTestSQLite(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	counter := 0
	properties.Property("trade round-trip", prop.ForAll(
		func(underlying string, short, width, credit float64, contracts int, isCall bool) bool {
			ctx := context.Background()
			counter++
			trade := sampleTrade(fmt.Sprintf("t-%d", counter))
			trade.Underlying = underlying
			trade.ShortStrike = short
			trade.LongStrike = short - width
			trade.SpreadType = models.BullPutSpread
			if isCall {
				trade.LongStrike = short + width
				trade.SpreadType = models.BearCallSpread
			}
			trade.EntryCredit = credit
			trade.Contracts = contracts

			if err := store.SaveTrade(ctx, trade); err != nil {
				t.Logf("save: %v", err)
				return false
			}
			got, err := store.GetTrade(ctx, trade.ID)
			if err != nil {
				t.Logf("get: %v", err)
				return false
			}
			return got.Underlying == trade.Underlying &&
				got.ShortStrike == trade.ShortStrike &&
				got.LongStrike == trade.LongStrike &&
				got.EntryCredit == trade.EntryCredit &&
				got.Contracts == trade.Contracts &&
				got.SpreadType == trade.SpreadType &&
				got.Expiration.Equal(trade.Expiration) &&
				got.ShortSymbol() == trade.ShortSymbol()
		},
		gen.OneConstOf("SPY", "QQQ", "IWM"),
		gen.Float64Range(50, 600),
		gen.OneConstOf(1.0, 2.5, 5.0, 10.0),
		gen.Float64Range(0.05, 3),
		gen.IntRange(1, 20),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestTradeTransitionsAreConditional(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range map[string]Ledger{"sqlite": newTestSQLite(t), "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			trade := sampleTrade("x1")
			if err := ledger.SaveTrade(ctx, trade); err != nil {
				t.Fatal(err)
			}

			now := time.Now().UTC()
			ok, err := ledger.ActivateTrade(ctx, trade.ID, now, 1.55)
			if err != nil || !ok {
				t.Fatalf("first activation: ok=%v err=%v", ok, err)
			}
			ok, err = ledger.ActivateTrade(ctx, trade.ID, now, 1.55)
			if err != nil || ok {
				t.Fatalf("second activation should be a no-op: ok=%v err=%v", ok, err)
			}
			if ok, _ := ledger.UpdateTradeStatus(ctx, trade.ID, models.TradePendingFill, models.TradeExpired); ok {
				t.Fatal("expire after activation must not apply")
			}

			got, err := ledger.GetTrade(ctx, trade.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != models.TradeOpen || got.EntryCredit != 1.55 || got.OpenedAt == nil {
				t.Fatalf("unexpected trade after activation: %+v", got)
			}

			ok, err = ledger.CloseTrade(ctx, trade.ID, TradeClose{ExitDebit: 0.70, ProfitLoss: 170, Reason: models.ExitProfitTarget, ClosedAt: now})
			if err != nil || !ok {
				t.Fatalf("close: ok=%v err=%v", ok, err)
			}
			if ok, _ := ledger.CloseTrade(ctx, trade.ID, TradeClose{ClosedAt: now}); ok {
				t.Fatal("second close must not apply")
			}

			closed, err := ledger.ListTrades(ctx, TradeFilter{Status: models.TradeClosed, ClosedSince: now.Add(-time.Minute)})
			if err != nil {
				t.Fatal(err)
			}
			if len(closed) != 1 || *closed[0].ProfitLoss != 170 || closed[0].ExitReason != models.ExitProfitTarget {
				t.Fatalf("unexpected closed trades: %+v", closed)
			}
		})
	}
}

func TestRecommendationLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range map[string]Ledger{"sqlite": newTestSQLite(t), "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			fresh := &models.Recommendation{
				ID: "r1", CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute), Status: models.RecommendationPending,
				Underlying: "SPY", SpreadType: models.BullPutSpread, ShortStrike: 450, LongStrike: 445,
				Expiration: time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC), Credit: 1.5, MaxLoss: 350,
				Confidence: models.ConfidenceHigh, SuggestedContracts: 3,
			}
			stale := *fresh
			stale.ID = "r2"
			stale.ExpiresAt = now.Add(-time.Minute)

			for _, r := range []*models.Recommendation{fresh, &stale} {
				if err := ledger.SaveRecommendation(ctx, r); err != nil {
					t.Fatal(err)
				}
			}

			n, err := ledger.ExpireRecommendations(ctx, now)
			if err != nil || n != 1 {
				t.Fatalf("expired %d, err %v; want 1", n, err)
			}

			pending, err := ledger.ListRecommendations(ctx, RecommendationFilter{Status: models.RecommendationPending})
			if err != nil || len(pending) != 1 || pending[0].ID != "r1" {
				t.Fatalf("pending = %+v, err %v", pending, err)
			}
			if pending[0].Confidence != models.ConfidenceHigh || pending[0].SuggestedContracts != 3 {
				t.Errorf("fields not preserved: %+v", pending[0])
			}

			ok, err := ledger.UpdateRecommendationStatus(ctx, "r1", models.RecommendationPending, models.RecommendationApproved)
			if err != nil || !ok {
				t.Fatalf("approve: ok=%v err=%v", ok, err)
			}
			if ok, _ := ledger.UpdateRecommendationStatus(ctx, "r1", models.RecommendationPending, models.RecommendationRejected); ok {
				t.Fatal("reject after approve must not apply")
			}

			if _, err := ledger.GetRecommendation(ctx, "missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPositionsAndHistory(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range map[string]Ledger{"sqlite": newTestSQLite(t), "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			pos := &models.Position{ID: "p1", TradeID: "t1", Underlying: "SPY", ShortStrike: 450, LongStrike: 445,
				Expiration: time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC), Contracts: 2, CloseCost: 0.8,
				CurrentValue: 160, UnrealizedPnL: 140, UpdatedAt: time.Now()}
			if err := ledger.UpsertPosition(ctx, pos); err != nil {
				t.Fatal(err)
			}
			pos.CloseCost, pos.CurrentValue = 0.6, 120
			if err := ledger.UpsertPosition(ctx, pos); err != nil {
				t.Fatal(err)
			}
			positions, err := ledger.GetPositions(ctx)
			if err != nil || len(positions) != 1 || positions[0].CurrentValue != 120 {
				t.Fatalf("positions = %+v, err %v", positions, err)
			}
			if err := ledger.DeletePositionByTrade(ctx, "t1"); err != nil {
				t.Fatal(err)
			}
			if positions, _ := ledger.GetPositions(ctx); len(positions) != 0 {
				t.Fatalf("expected no positions, got %d", len(positions))
			}

			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				if err := ledger.SaveIVObservation(ctx, models.IVObservation{Symbol: "SPY", Date: base.AddDate(0, 0, i), IV: 0.1 * float64(i+1)}); err != nil {
					t.Fatal(err)
				}
			}
			hist, err := ledger.GetIVHistory(ctx, "SPY", 3)
			if err != nil || len(hist) != 3 {
				t.Fatalf("history = %+v, err %v", hist, err)
			}
			if !hist[0].Date.Equal(base.AddDate(0, 0, 2)) || !hist[2].Date.Equal(base.AddDate(0, 0, 4)) {
				t.Errorf("expected the three most recent days ascending, got %+v", hist)
			}
		})
	}
}
