package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"spread-trader/internal/models"
)

var sampleStates = []models.RiskState{
	models.NormalRiskState(),
	{Level: models.RiskElevated, SizeMultiplier: 0.8},
	{Level: models.RiskCaution, SizeMultiplier: 0.5, ShouldAlert: true},
	{Level: models.RiskHigh, SizeMultiplier: 0.5, ShouldAlert: true},
	{Level: models.RiskCritical, SizeMultiplier: 0.25, ShouldAlert: true},
	models.HaltedRiskState("halt", 0),
}

func genRiskState() gopter.Gen {
	return gen.IntRange(0, len(sampleStates)-1).Map(func(i int) models.RiskState {
		return sampleStates[i]
	})
}

// Property: the combined state is never less restrictive than any input.
func TestProperty_MostRestrictiveIsMinimum(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("multiplier is the minimum of inputs", prop.ForAll(
		func(states []models.RiskState) bool {
			result := MostRestrictive(states...)
			if len(states) == 0 {
				return result.Level == models.RiskNormal && result.SizeMultiplier == 1.0
			}
			for _, s := range states {
				if result.SizeMultiplier > s.SizeMultiplier {
					return false
				}
				if s.IsHalted() && !result.IsHalted() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genRiskState()),
	))

	properties.TestingRun(t)
}

// Property: daily loss grading is monotonic: a deeper loss never yields a larger multiplier.
func TestProperty_DailyRiskMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := NewEvaluator(DefaultConfig())

	properties.Property("deeper loss is never less restrictive", prop.ForAll(
		func(a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			// a is the smaller loss
			sa := e.EvaluateDailyRisk(100000, 100000*(1-a))
			sb := e.EvaluateDailyRisk(100000, 100000*(1-b))
			return sb.SizeMultiplier <= sa.SizeMultiplier
		},
		gen.Float64Range(0, 0.05),
		gen.Float64Range(0, 0.05),
	))

	properties.TestingRun(t)
}

// Property: sized risk never exceeds the per-trade budget and more equity never means fewer contracts.
func TestProperty_SizerRespectsBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	cfg := DefaultConfig()
	sizer := NewPositionSizer(cfg)

	properties.Property("risk within budget and monotonic in equity", prop.ForAll(
		func(equity, maxLoss, heat float64) bool {
			positions := []models.Position{{Underlying: "SPY", CurrentValue: heat}}
			small := sizer.CalculateSizeForMaxLoss(maxLoss, equity, positions, nil)
			large := sizer.CalculateSizeForMaxLoss(maxLoss, equity*2, positions, nil)
			if small.Contracts < 0 || small.RiskAmount > equity*cfg.MaxRiskPerTradePct+1e-6 {
				return false
			}
			return large.Contracts >= small.Contracts
		},
		gen.Float64Range(1000, 1000000),
		gen.Float64Range(10, 1000),
		gen.Float64Range(0, 20000),
	))

	properties.TestingRun(t)
}

// Property: applying a multiplier never increases the contract count.
func TestProperty_ApplyMultiplierNeverIncreases(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("scaled contracts within [0, contracts]", prop.ForAll(
		func(contracts int, mult float64) bool {
			got := ApplyMultiplier(contracts, mult)
			if mult <= 0 {
				return got == 0
			}
			return got >= 1 && got <= contracts
		},
		gen.IntRange(1, 100),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
