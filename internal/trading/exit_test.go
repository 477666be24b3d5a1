package trading

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

func TestExitValidatorScenarios(t *testing.T) {
	v := NewExitValidator(DefaultExitConfig())
	far := testNow.AddDate(0, 0, 40)

	tests := []struct {
		name      string
		entry     float64
		closeCost float64
		exp       time.Time
		want      models.ExitReason
		message   string
	}{
		{"profit target", 1.50, 0.70, far, models.ExitProfitTarget, "Profit target reached (53% of max)"},
		{"exactly half", 1.00, 0.50, far, models.ExitProfitTarget, "Profit target reached (50% of max)"},
		{"stop loss", 1.00, 3.00, far, models.ExitStopLoss, "Stop loss triggered (loss = 200% of credit)"},
		{"time exit", 1.00, 0.90, testNow.AddDate(0, 0, 21), models.ExitTimeDecay, "Time exit triggered (21 DTE <= 21)"},
		{"hold", 1.50, 1.20, far, "", ""},
		{"small loss holds", 1.00, 2.50, far, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := v.CheckAllExitConditions(tt.entry, tt.closeCost, tt.exp, testNow)
			if tt.want == "" {
				if sig != nil {
					t.Fatalf("unexpected exit %+v", sig)
				}
				return
			}
			if sig == nil {
				t.Fatalf("expected %s exit", tt.want)
			}
			if sig.Reason != tt.want || sig.Message != tt.message {
				t.Errorf("got %s %q, want %s %q", sig.Reason, sig.Message, tt.want, tt.message)
			}
		})
	}
}

func TestExitValidatorProfitWinsOverStop(t *testing.T) {
	// Thresholds that make both rules fire at once.
	v := NewExitValidator(ExitConfig{ProfitTargetPct: -10, StopLossPct: 0, TimeExitDTE: 21})
	sig := v.CheckAllExitConditions(1.0, 1.5, testNow.AddDate(0, 0, 10), testNow)
	if sig == nil || sig.Reason != models.ExitProfitTarget {
		t.Fatalf("got %+v, want profit target", sig)
	}
}

func TestExitValidatorRejectsZeroCredit(t *testing.T) {
	v := NewExitValidator(DefaultExitConfig())
	trade := openTrade("t0", 0, 1)
	if _, err := v.CheckTrade(*trade, 0.5, testNow); !apperrors.Is(err, apperrors.ErrInvalidSpread) {
		t.Fatalf("err = %v, want invalid spread", err)
	}
	if ok, _ := v.CheckProfitTarget(0, 0); ok {
		t.Error("profit target fired on zero credit")
	}
	if ok, _ := v.CheckStopLoss(-1, 5); ok {
		t.Error("stop loss fired on negative credit")
	}
}

// Property: the reported exit is always the first rule, in priority order,
// whose individual check fires.
func TestProperty_ExitPriority(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	v := NewExitValidator(DefaultExitConfig())

	properties.Property("first matching rule wins", prop.ForAll(
		func(entry, closeCost float64, dte int) bool {
			exp := testNow.AddDate(0, 0, dte)
			sig := v.CheckAllExitConditions(entry, closeCost, exp, testNow)

			profit, _ := v.CheckProfitTarget(entry, closeCost)
			stop, _ := v.CheckStopLoss(entry, closeCost)
			timeExit, _ := v.CheckTimeExit(exp, testNow)
			switch {
			case profit:
				return sig != nil && sig.Reason == models.ExitProfitTarget
			case stop:
				return sig != nil && sig.Reason == models.ExitStopLoss
			case timeExit:
				return sig != nil && sig.Reason == models.ExitTimeDecay
			}
			return sig == nil
		},
		gen.Float64Range(0.05, 5),
		gen.Float64Range(0, 15),
		gen.IntRange(0, 60),
	))

	properties.Property("profit and stop never fire together at defaults", prop.ForAll(
		func(entry, closeCost float64) bool {
			profit, _ := v.CheckProfitTarget(entry, closeCost)
			stop, _ := v.CheckStopLoss(entry, closeCost)
			return !(profit && stop)
		},
		gen.Float64Range(0.05, 5),
		gen.Float64Range(0, 15),
	))

	properties.TestingRun(t)
}
