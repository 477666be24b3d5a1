package broker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"spread-trader/internal/models"
	"spread-trader/pkg/utils"
)

var (
	paperNow = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	paperExp = time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC)
)

func quote(underlying string, typ models.OptionType, strike, bid, ask float64) models.OptionContract {
	return models.OptionContract{
		Symbol:     models.OCCSymbol(underlying, paperExp, typ, strike),
		Underlying: underlying,
		Expiration: paperExp,
		Strike:     strike,
		Type:       typ,
		Bid:        bid,
		Ask:        ask,
	}
}

func newPaper(short, long models.OptionContract) *PaperBroker {
	p := NewPaperBroker(PaperBrokerConfig{InitialBalance: 100000, AlwaysOpen: true}).
		WithClock(func() time.Time { return paperNow })
	p.SetChain(&models.OptionChain{
		Underlying:      "SPY",
		UnderlyingPrice: 500,
		Contracts:       []models.OptionContract{short, long},
	})
	return p
}

// Property: an opening order fills exactly when the requested credit is no
// more than the net mid credit.
func TestProperty_PaperFillsAtOrInsideMid(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("fill iff credit <= mid credit", prop.ForAll(
		func(shortMid, longMid, askedCents float64) bool {
			short := quote("SPY", models.OptionPut, 480, shortMid-0.05, shortMid+0.05)
			long := quote("SPY", models.OptionPut, 475, longMid-0.05, longMid+0.05)
			p := newPaper(short, long)

			credit := float64(int(askedCents)) / 100
			order, err := p.PlaceSpreadOrder(context.Background(), models.SpreadOrderRequest{
				Underlying:  "SPY",
				ShortSymbol: short.Symbol,
				LongSymbol:  long.Symbol,
				Contracts:   1,
				LimitPrice:  -credit,
			})
			if err != nil {
				return false
			}
			netDebit := utils.RoundCents(long.Mid() - short.Mid())
			wantFill := netDebit <= -credit
			return (order.Status == models.OrderStatusFilled) == wantFill
		},
		gen.Float64Range(1.0, 3.0),
		gen.Float64Range(0.1, 0.9),
		gen.Float64Range(1, 300),
	))

	properties.TestingRun(t)
}

// Property: wire orders with arbitrary or missing sides always normalise to buy/sell.
func TestProperty_WireOrderSidesNormalised(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("sides always valid", prop.ForAll(
		func(top, leg0, leg1 string) bool {
			qty := decimal.NewFromInt(2)
			wire := &alpaca.Order{
				ID:     "o1",
				Side:   alpaca.Side(top),
				Type:   alpaca.Limit,
				Qty:    &qty,
				Status: "new",
				Legs: []alpaca.Order{
					{Symbol: "SPY240419P00480000", Side: alpaca.Side(leg0), Qty: &qty},
					{Symbol: "SPY240419P00475000", Side: alpaca.Side(leg1), Qty: &qty},
				},
			}
			order := toOrder(wire)
			if !order.Side.Valid() || !order.Legs[0].Side.Valid() || !order.Legs[1].Side.Valid() {
				return false
			}
			if !models.OrderSide(strings.ToLower(top)).Valid() && order.Side != order.Legs[0].Side {
				return false
			}
			return order.Qty == 2
		},
		gen.OneConstOf("", "buy", "sell", "BUY", "bogus"),
		gen.OneConstOf("", "sell", "buy", "Sell", "x"),
		gen.OneConstOf("", "buy", "sell", "y"),
	))

	properties.TestingRun(t)
}
