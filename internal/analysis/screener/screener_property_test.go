package screener

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"spread-trader/internal/analysis/volatility"
	"spread-trader/internal/models"
)

var (
	testNow = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	testExp = time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC) // 35 DTE
)

func f(v float64) *float64 { return &v }

func contract(typ models.OptionType, strike, bid, ask float64, delta *float64) models.OptionContract {
	return models.OptionContract{
		Symbol:       models.OCCSymbol("SPY", testExp, typ, strike),
		Underlying:   "SPY",
		Expiration:   testExp,
		Strike:       strike,
		Type:         typ,
		Bid:          bid,
		Ask:          ask,
		Volume:       500,
		OpenInterest: 1000,
		Delta:        delta,
	}
}

func newTestScreener(cfg Config) *Screener {
	return New(cfg, zerolog.Nop()).WithClock(func() time.Time { return testNow })
}

func fixtureChain() *models.OptionChain {
	return &models.OptionChain{
		Underlying:      "SPY",
		UnderlyingPrice: 470,
		Timestamp:       testNow,
		Contracts: []models.OptionContract{
			contract(models.OptionPut, 450, 2.00, 2.10, f(-0.25)),
			contract(models.OptionPut, 445, 0.55, 0.60, f(-0.17)),
			contract(models.OptionPut, 440, 0.28, 0.30, f(-0.11)),
			contract(models.OptionCall, 490, 1.95, 2.05, f(0.24)),
			contract(models.OptionCall, 495, 0.48, 0.52, f(0.15)),
		},
	}
}

func TestScreenChainFindsBothSides(t *testing.T) {
	s := newTestScreener(DefaultConfig())
	got := s.ScreenChain(fixtureChain(), volatility.Metrics{CurrentIV: 0.22, Rank: 65})

	if len(got) == 0 {
		t.Fatal("expected candidates")
	}
	var sawPut, sawCall bool
	for _, sc := range got {
		switch sc.Spread.Type {
		case models.BullPutSpread:
			sawPut = true
			if sc.Spread.Short.Strike != 450 {
				t.Errorf("unexpected put short strike %v", sc.Spread.Short.Strike)
			}
		case models.BearCallSpread:
			sawCall = true
			if sc.Spread.Short.Strike != 490 || sc.Spread.Long.Strike != 495 {
				t.Errorf("unexpected call strikes %v/%v", sc.Spread.Short.Strike, sc.Spread.Long.Strike)
			}
		}
		if sc.DTE != 35 {
			t.Errorf("dte = %d, want 35", sc.DTE)
		}
	}
	if !sawPut || !sawCall {
		t.Errorf("expected bull put and bear call candidates, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Fatal("results not sorted by score")
		}
	}
}

func TestScreenChainRejectsLowIVRank(t *testing.T) {
	s := newTestScreener(DefaultConfig())
	if got := s.ScreenChain(fixtureChain(), volatility.Metrics{CurrentIV: 0.22, Rank: 49.9}); got != nil {
		t.Errorf("expected nil for IV rank below minimum, got %d", len(got))
	}
}

func TestScreenChainDTEWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDTE, cfg.MaxDTE = 40, 45
	s := newTestScreener(cfg)
	if got := s.ScreenChain(fixtureChain(), volatility.Metrics{Rank: 80}); len(got) != 0 {
		t.Errorf("expected no candidates outside DTE window, got %d", len(got))
	}
}

func TestCreditPctThreshold(t *testing.T) {
	// Width 5, credit 1.50 -> 30% of width.
	chain := &models.OptionChain{
		Underlying:      "SPY",
		UnderlyingPrice: 470,
		Contracts: []models.OptionContract{
			contract(models.OptionPut, 450, 2.00, 2.10, f(-0.25)),
			contract(models.OptionPut, 445, 0.53, 0.57, f(-0.17)),
		},
	}

	cfg := DefaultConfig()
	cfg.MinCreditPct = 0.25
	got := newTestScreener(cfg).ScreenChain(chain, volatility.Metrics{Rank: 60})
	if len(got) != 1 {
		t.Fatalf("expected one spread, got %d", len(got))
	}
	if math.Abs(got[0].Spread.CreditPct()-0.30) > 1e-9 {
		t.Errorf("credit pct = %v, want 0.30", got[0].Spread.CreditPct())
	}

	cfg.MinCreditPct = 0.35
	if got := newTestScreener(cfg).ScreenChain(chain, volatility.Metrics{Rank: 60}); len(got) != 0 {
		t.Errorf("expected spread rejected at 35%% minimum, got %d", len(got))
	}
}

func TestFilterLiquidity(t *testing.T) {
	s := newTestScreener(DefaultConfig())
	good := contract(models.OptionPut, 450, 2.00, 2.10, nil)
	lowOI := good
	lowOI.OpenInterest = 5
	oneSided := good
	oneSided.Bid = 0
	wide := good
	wide.Ask = 3.00

	got := s.FilterLiquidity([]models.OptionContract{good, lowOI, oneSided, wide})
	if len(got) != 1 || got[0].OpenInterest != good.OpenInterest || got[0].Ask != good.Ask {
		t.Errorf("expected only the liquid contract, got %+v", got)
	}
}

func TestComputedDeltaFallback(t *testing.T) {
	// Without broker deltas the screener prices the short leg itself.
	chain := fixtureChain()
	for i := range chain.Contracts {
		chain.Contracts[i].Delta = nil
	}
	cfg := DefaultConfig()
	cfg.MinDelta, cfg.MaxDelta = 0.01, 0.49
	got := newTestScreener(cfg).ScreenChain(chain, volatility.Metrics{CurrentIV: 0.20, Rank: 70})
	for _, sc := range got {
		if sc.ShortDelta == 0 {
			t.Error("expected computed delta")
		}
	}
}

// Property: every emitted spread has correctly ordered strikes, positive
// credit meeting the minimum credit percentage, width in range, and a score in [0,1].
func TestProperty_ScreenerEmitsOnlyValidSpreads(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	cfg := DefaultConfig()
	cfg.MinDelta, cfg.MaxDelta = 0.05, 0.45
	cfg.MaxBidAskSpreadPct = 0.5
	s := newTestScreener(cfg)

	properties.Property("screened spreads are valid", prop.ForAll(
		func(mids []float64, deltas []float64, rank float64) bool {
			chain := &models.OptionChain{Underlying: "SPY", UnderlyingPrice: 470}
			for i := range mids {
				strike := 440 + float64(i)*2.5
				mid := mids[i]
				putDelta := -deltas[i]
				callDelta := deltas[i]
				chain.Contracts = append(chain.Contracts,
					contract(models.OptionPut, strike, mid*0.95, mid*1.05, &putDelta),
					contract(models.OptionCall, strike, mid*0.95, mid*1.05, &callDelta),
				)
			}
			for _, sc := range s.ScreenChain(chain, volatility.Metrics{CurrentIV: 0.2, Rank: rank}) {
				sp := sc.Spread
				if !sp.StrikesOrdered() {
					return false
				}
				if sp.Credit() <= 0 || sp.CreditPct() < cfg.MinCreditPct {
					return false
				}
				if sp.Width() < cfg.MinWidth || sp.Width() > cfg.MaxWidth {
					return false
				}
				if sc.Score < 0 || sc.Score > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.Float64Range(0.05, 6)),
		gen.SliceOfN(12, gen.Float64Range(0.01, 0.6)),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
