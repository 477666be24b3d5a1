package volatility

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: IV rank and percentile always lie in [0,100].
func TestProperty_RankAndPercentileBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("rank and percentile in [0,100]", prop.ForAll(
		func(current float64, history []float64) bool {
			r := Rank(current, history)
			p := Percentile(current, history)
			return r >= 0 && r <= 100 && p >= 0 && p <= 100
		},
		gen.Float64Range(0.01, 2.0),
		gen.SliceOf(gen.Float64Range(0.05, 1.5)),
	))

	properties.TestingRun(t)
}

// Property: IV rank is non-decreasing in the current IV for a fixed history.
func TestProperty_RankMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("rank is monotonic in current IV", prop.ForAll(
		func(a, b float64, history []float64) bool {
			if a > b {
				a, b = b, a
			}
			return Rank(a, history) <= Rank(b, history)
		},
		gen.Float64Range(0.01, 2.0),
		gen.Float64Range(0.01, 2.0),
		gen.SliceOfN(20, gen.Float64Range(0.05, 1.5)),
	))

	properties.TestingRun(t)
}

// Property: history never holds more than the lookback and stays date ordered.
func TestProperty_HistoryBoundedAndOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("history bounded and ordered", prop.ForAll(
		func(offsets []int) bool {
			h := NewHistory(10)
			for i, off := range offsets {
				h.Add("SPY", base.AddDate(0, 0, off), float64(i))
			}
			obs := h.Observations("SPY")
			if len(obs) > 10 {
				return false
			}
			for i := 1; i < len(obs); i++ {
				if !obs[i-1].Date.Before(obs[i].Date) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

func TestRankEdgeCases(t *testing.T) {
	if got := Rank(0.3, nil); got != 50 {
		t.Errorf("empty history rank = %v, want 50", got)
	}
	if got := Rank(0.3, []float64{0.2, 0.2, 0.2}); got != 50 {
		t.Errorf("flat history rank = %v, want 50", got)
	}
	if got := Rank(0.50, []float64{0.25, 0.75}); got != 50 {
		t.Errorf("midpoint rank = %v, want 50", got)
	}
	if got := Rank(0.90, []float64{0.25, 0.75}); got != 100 {
		t.Errorf("above max rank = %v, want 100", got)
	}
	if got := Percentile(0.3, []float64{0.1, 0.2, 0.3, 0.4}); got != 50 {
		t.Errorf("percentile = %v, want 50", got)
	}
	if got := Percentile(0.3, nil); got != 50 {
		t.Errorf("empty percentile = %v, want 50", got)
	}
}

func TestClassifyRegime(t *testing.T) {
	cases := map[float64]Regime{
		0:    RegimeLow,
		29.9: RegimeLow,
		30:   RegimeNormal,
		49.9: RegimeNormal,
		50:   RegimeElevated,
		70:   RegimeHigh,
		100:  RegimeHigh,
	}
	for rank, want := range cases {
		if got := ClassifyRegime(rank); got != want {
			t.Errorf("ClassifyRegime(%v) = %v, want %v", rank, got, want)
		}
	}
}

func TestHistorySameDayReplaces(t *testing.T) {
	h := NewHistory(5)
	day := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	h.Add("QQQ", day, 0.20)
	h.Add("QQQ", day.Add(4*time.Hour), 0.25)
	if vals := h.Values("QQQ"); len(vals) != 1 || vals[0] != 0.25 {
		t.Errorf("values = %v, want [0.25]", vals)
	}
}

func TestEstimateRankFromVIX(t *testing.T) {
	if got := EstimateRankFromVIX(nil); got != 70 {
		t.Errorf("nil vix = %v, want 70", got)
	}
	low, high := 12.0, 45.0
	if got := EstimateRankFromVIX(&low); got != 50 {
		t.Errorf("low vix = %v, want 50", got)
	}
	if got := EstimateRankFromVIX(&high); got != 90 {
		t.Errorf("high vix = %v, want 90", got)
	}
}
