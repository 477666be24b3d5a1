package models

import (
	"sort"
	"time"
)

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1 vol point
	Rho   float64 `json:"rho"`   // per 1 rate point
}

// OptionContract represents a single listed option quote.
type OptionContract struct {
	Symbol       string     `json:"symbol"`
	Underlying   string     `json:"underlying"`
	Expiration   time.Time  `json:"expiration"`
	Strike       float64    `json:"strike"`
	Type         OptionType `json:"type"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`

	// Broker supplied analytics. Nil when the feed did not provide them.
	Delta *float64 `json:"delta,omitempty"`
	IV    *float64 `json:"iv,omitempty"`
}

// Mid returns the bid/ask midpoint.
func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// SpreadPct returns (ask-bid)/mid, or 1 when the mid is not positive.
func (c OptionContract) SpreadPct() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return 1
	}
	return (c.Ask - c.Bid) / mid
}

// OptionChain represents all quoted contracts for one underlying.
type OptionChain struct {
	Underlying      string           `json:"underlying"`
	UnderlyingPrice float64          `json:"underlying_price"`
	Timestamp       time.Time        `json:"timestamp"`
	Contracts       []OptionContract `json:"contracts"`
}

// Expirations returns the distinct expiration dates in ascending order.
func (c *OptionChain) Expirations() []time.Time {
	seen := make(map[string]time.Time)
	for _, oc := range c.Contracts {
		seen[oc.Expiration.Format(DateLayout)] = oc.Expiration
	}
	out := make([]time.Time, 0, len(seen))
	for _, exp := range seen {
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ByExpiration returns contracts of the given type expiring on exp.
func (c *OptionChain) ByExpiration(exp time.Time, typ OptionType) []OptionContract {
	key := exp.Format(DateLayout)
	var out []OptionContract
	for _, oc := range c.Contracts {
		if oc.Type == typ && oc.Expiration.Format(DateLayout) == key {
			out = append(out, oc)
		}
	}
	return out
}

// Find looks up a contract by its OCC symbol.
func (c *OptionChain) Find(symbol string) (OptionContract, bool) {
	for _, oc := range c.Contracts {
		if oc.Symbol == symbol {
			return oc, true
		}
	}
	return OptionContract{}, false
}

// DateLayout is the calendar date format used for expirations and stat keys.
const DateLayout = "2006-01-02"

// IVObservation is one persisted daily implied volatility reading.
type IVObservation struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	IV     float64   `json:"iv"`
}
