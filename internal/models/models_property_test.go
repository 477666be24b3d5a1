package models

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: building an OCC symbol and parsing it back yields the same
// underlying, expiration date, option type and strike.
func TestProperty_OCCSymbolRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("OCC symbols round-trip", prop.ForAll(
		func(underlying string, days int, isCall bool, strikeCents int) bool {
			typ := OptionPut
			if isCall {
				typ = OptionCall
			}
			exp := base.AddDate(0, 0, days)
			strike := float64(strikeCents) / 100

			parsed, err := ParseOCCSymbol(OCCSymbol(underlying, exp, typ, strike))
			if err != nil {
				return false
			}
			return parsed.Underlying == underlying &&
				parsed.Expiration.Equal(exp) &&
				parsed.Type == typ &&
				math.Abs(parsed.Strike-strike) < 1e-9
		},
		gen.OneConstOf("SPY", "QQQ", "IWM", "TLT", "GLD", "F"),
		gen.IntRange(0, 3000),
		gen.Bool(),
		gen.IntRange(50, 99999),
	))

	properties.TestingRun(t)
}

// Property: after normalisation every leg and the order itself carry a valid side.
func TestProperty_NormalizeSidesAlwaysValid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	sideGen := gen.OneConstOf("", "buy", "sell", "BUY", "Sell", "short", "x")

	properties.Property("normalised sides are buy or sell", prop.ForAll(
		func(top string, legSides []string) bool {
			o := Order{Side: OrderSide(top)}
			for _, s := range legSides {
				o.Legs = append(o.Legs, OrderLeg{Side: OrderSide(s)})
			}
			o.NormalizeSides()
			if !o.Side.Valid() {
				return false
			}
			for _, l := range o.Legs {
				if !l.Side.Valid() {
					return false
				}
			}
			return true
		},
		sideGen,
		gen.SliceOfN(3, sideGen),
	))

	properties.TestingRun(t)
}

func TestParseOCCSymbol(t *testing.T) {
	got, err := ParseOCCSymbol("SPY240119C00500000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Underlying != "SPY" {
		t.Errorf("underlying = %q, want SPY", got.Underlying)
	}
	if !got.Expiration.Equal(time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expiration = %v, want 2024-01-19", got.Expiration)
	}
	if got.Type != OptionCall {
		t.Errorf("type = %q, want call", got.Type)
	}
	if got.Strike != 500.0 {
		t.Errorf("strike = %v, want 500", got.Strike)
	}

	for _, bad := range []string{"", "SPY", "SPY240119X00500000", "SPY241319C00500000", "SPY240119C0050000a", "SPY240119C-0500000", "SPY240119P+0500000"} {
		if _, err := ParseOCCSymbol(bad); err == nil {
			t.Errorf("ParseOCCSymbol(%q) expected error", bad)
		}
	}
}

func TestNormalizeSides(t *testing.T) {
	o := Order{Legs: []OrderLeg{{Side: OrderSideSell}, {Side: OrderSideBuy}}}
	o.NormalizeSides()
	if o.Side != OrderSideSell {
		t.Errorf("side = %q, want sell", o.Side)
	}

	o = Order{Legs: []OrderLeg{{}, {Side: "bogus"}}}
	o.NormalizeSides()
	if o.Legs[0].Side != OrderSideSell || o.Legs[1].Side != OrderSideBuy {
		t.Errorf("legs = %+v, want sell/buy defaults", o.Legs)
	}

	o = Order{}
	o.NormalizeSides()
	if o.Side != OrderSideBuy {
		t.Errorf("side = %q, want buy when there are no legs", o.Side)
	}
}

func TestCreditSpreadEconomics(t *testing.T) {
	spread := CreditSpread{
		Underlying: "SPY",
		Type:       BullPutSpread,
		Short:      OptionContract{Strike: 450, Bid: 2.00, Ask: 2.20},
		Long:       OptionContract{Strike: 445, Bid: 0.55, Ask: 0.65},
	}
	if spread.Width() != 5 {
		t.Fatalf("width = %v, want 5", spread.Width())
	}
	if math.Abs(spread.Credit()-1.50) > 1e-9 {
		t.Fatalf("credit = %v, want 1.50", spread.Credit())
	}
	if math.Abs(spread.MaxLoss()-350) > 1e-9 {
		t.Errorf("max loss = %v, want 350", spread.MaxLoss())
	}
	if math.Abs(spread.CreditPct()-0.30) > 1e-9 {
		t.Errorf("credit pct = %v, want 0.30", spread.CreditPct())
	}
	if !spread.StrikesOrdered() {
		t.Error("bull put with short above long should be ordered")
	}
}
