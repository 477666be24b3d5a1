// Package volatility computes implied volatility rank, percentile and regime
// from a rolling history of daily IV observations.
package volatility

import (
	"spread-trader/internal/analysis"
)

// Regime buckets IV rank.
type Regime string

const (
	RegimeLow      Regime = "low"
	RegimeNormal   Regime = "normal"
	RegimeElevated Regime = "elevated"
	RegimeHigh     Regime = "high"
)

// Metrics summarises current IV against its history.
type Metrics struct {
	CurrentIV  float64 `json:"current_iv"`
	Rank       float64 `json:"iv_rank"`
	Percentile float64 `json:"iv_percentile"`
	High       float64 `json:"iv_high"`
	Low        float64 `json:"iv_low"`
	Regime     Regime  `json:"regime"`
	Samples    int     `json:"samples"`
}

// Rank returns where current sits between the history's min and max, scaled to 0..100.
// An empty or flat history yields 50.
func Rank(current float64, history []float64) float64 {
	if len(history) == 0 {
		return 50
	}
	lo, hi := bounds(history)
	if hi == lo {
		return 50
	}
	return analysis.Clamp((current-lo)/(hi-lo), 0, 1) * 100
}

// Percentile returns the share of history strictly below current, scaled to 0..100.
// An empty history yields 50.
func Percentile(current float64, history []float64) float64 {
	if len(history) == 0 {
		return 50
	}
	below := 0
	for _, v := range history {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(history)) * 100
}

// ClassifyRegime maps an IV rank to its regime bucket.
func ClassifyRegime(rank float64) Regime {
	switch {
	case rank < 30:
		return RegimeLow
	case rank < 50:
		return RegimeNormal
	case rank < 70:
		return RegimeElevated
	default:
		return RegimeHigh
	}
}

// IsElevated reports whether rank meets the threshold.
func IsElevated(rank, threshold float64) bool {
	return rank >= threshold
}

// Calculate returns the full metric set for current against history.
func Calculate(current float64, history []float64) Metrics {
	m := Metrics{
		CurrentIV:  current,
		Rank:       Rank(current, history),
		Percentile: Percentile(current, history),
		Samples:    len(history),
	}
	if len(history) > 0 {
		m.Low, m.High = bounds(history)
	} else {
		m.Low, m.High = current, current
	}
	m.Regime = ClassifyRegime(m.Rank)
	return m
}

// EstimateRankFromVIX approximates IV rank when there is not enough history,
// using 2.5 x VIX bounded to [50, 90]. Without a VIX reading it returns 70.
func EstimateRankFromVIX(vix *float64) float64 {
	if vix == nil {
		return 70
	}
	return analysis.Clamp(*vix*2.5, 50, 90)
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
