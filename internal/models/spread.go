package models

import (
	"fmt"
	"time"
)

// SpreadType identifies the vertical credit spread structure.
type SpreadType string

const (
	BullPutSpread  SpreadType = "bull_put"
	BearCallSpread SpreadType = "bear_call"
)

// OptionType returns the option type both legs of the spread use.
func (t SpreadType) OptionType() OptionType {
	if t == BearCallSpread {
		return OptionCall
	}
	return OptionPut
}

// Valid reports whether the spread type is known.
func (t SpreadType) Valid() bool {
	return t == BullPutSpread || t == BearCallSpread
}

// CreditSpread is a two-leg vertical: one short leg, one long leg, same expiration.
type CreditSpread struct {
	Underlying string         `json:"underlying"`
	Type       SpreadType     `json:"type"`
	Short      OptionContract `json:"short"`
	Long       OptionContract `json:"long"`
	Expiration time.Time      `json:"expiration"`
}

// Width returns the absolute strike distance.
func (s CreditSpread) Width() float64 {
	w := s.Short.Strike - s.Long.Strike
	if w < 0 {
		return -w
	}
	return w
}

// Credit returns the mid-price credit: short mid minus long mid.
func (s CreditSpread) Credit() float64 {
	return s.Short.Mid() - s.Long.Mid()
}

// MaxProfit returns the per-contract dollar max profit.
func (s CreditSpread) MaxProfit() float64 {
	return s.Credit() * ContractMultiplier
}

// MaxLoss returns the per-contract dollar max loss.
func (s CreditSpread) MaxLoss() float64 {
	return (s.Width() - s.Credit()) * ContractMultiplier
}

// CreditPct returns credit as a fraction of width.
func (s CreditSpread) CreditPct() float64 {
	w := s.Width()
	if w <= 0 {
		return 0
	}
	return s.Credit() / w
}

// BreakEven returns the underlying price at which the spread neither gains nor loses at expiry.
func (s CreditSpread) BreakEven() float64 {
	if s.Type == BearCallSpread {
		return s.Short.Strike + s.Credit()
	}
	return s.Short.Strike - s.Credit()
}

// StrikesOrdered reports whether the short strike is on the correct side of the long strike.
func (s CreditSpread) StrikesOrdered() bool {
	switch s.Type {
	case BullPutSpread:
		return s.Short.Strike > s.Long.Strike
	case BearCallSpread:
		return s.Short.Strike < s.Long.Strike
	}
	return false
}

func (s CreditSpread) String() string {
	return fmt.Sprintf("%s %s %.2f/%.2f %s", s.Underlying, s.Type, s.Short.Strike, s.Long.Strike,
		s.Expiration.Format(DateLayout))
}

// ScoredSpread is a screened spread with its ranking inputs.
type ScoredSpread struct {
	Spread         CreditSpread `json:"spread"`
	Score          float64      `json:"score"`
	IVRank         float64      `json:"iv_rank"`
	ShortDelta     float64      `json:"short_delta"`
	ProbabilityOTM float64      `json:"probability_otm"`
	ExpectedValue  float64      `json:"expected_value"`
	DTE            int          `json:"dte"`
}
