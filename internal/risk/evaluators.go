package risk

import (
	"fmt"
	"time"

	"spread-trader/internal/models"
)

// Evaluator holds the pure per-factor risk checks.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator for cfg.
func NewEvaluator(cfg Config) Evaluator {
	return Evaluator{cfg: cfg}
}

// Config returns the thresholds in use.
func (e Evaluator) Config() Config {
	return e.cfg
}

// lossPct returns the fractional loss from start to current, floored at zero.
func lossPct(start, current float64) float64 {
	if start <= 0 {
		return 0
	}
	loss := (start - current) / start
	if loss < 0 {
		return 0
	}
	return loss
}

// EvaluateDailyRisk grades the loss since the start of the trading day.
func (e Evaluator) EvaluateDailyRisk(startingEquity, currentEquity float64) models.RiskState {
	loss := lossPct(startingEquity, currentEquity)
	switch {
	case loss >= e.cfg.DailyHaltPct:
		return models.HaltedRiskState(fmt.Sprintf("Daily loss limit exceeded (%s)", pctLabel(e.cfg.DailyHaltPct)), 0)
	case loss >= e.cfg.DailyCautionPct:
		return models.RiskState{
			Level:          models.RiskCaution,
			SizeMultiplier: e.cfg.DailyCautionSizeMult,
			Reason:         fmt.Sprintf("Daily loss elevated (%s) - reducing position size", pctLabel(e.cfg.DailyCautionPct)),
			ShouldAlert:    true,
		}
	case loss >= e.cfg.DailyAlertPct:
		return models.RiskState{
			Level:          models.RiskElevated,
			SizeMultiplier: 1.0,
			Reason:         fmt.Sprintf("Daily loss alert (%s)", pctLabel(e.cfg.DailyAlertPct)),
			ShouldAlert:    true,
		}
	}
	return models.NormalRiskState()
}

// EvaluateWeeklyRisk grades the loss since the start of the ISO week.
func (e Evaluator) EvaluateWeeklyRisk(startingEquity, currentEquity float64) models.RiskState {
	loss := lossPct(startingEquity, currentEquity)
	switch {
	case loss >= e.cfg.WeeklyHaltPct:
		return models.HaltedRiskState(
			fmt.Sprintf("Weekly loss limit exceeded (%s) - halting and reducing positions", pctLabel(e.cfg.WeeklyHaltPct)),
			e.cfg.WeeklyHaltClosePct)
	case loss >= e.cfg.WeeklyCautionPct:
		return models.RiskState{
			Level:          models.RiskHigh,
			SizeMultiplier: e.cfg.WeeklyCautionSizeMult,
			Reason:         fmt.Sprintf("Weekly loss caution (%s) - reducing exposure", pctLabel(e.cfg.WeeklyCautionPct)),
			ShouldAlert:    true,
		}
	}
	return models.NormalRiskState()
}

// EvaluateDrawdown grades the distance below peak equity.
func (e Evaluator) EvaluateDrawdown(peakEquity, currentEquity float64) models.RiskState {
	dd := lossPct(peakEquity, currentEquity)
	switch {
	case dd >= e.cfg.DrawdownHaltPct:
		return models.HaltedRiskState(
			fmt.Sprintf("Maximum drawdown reached (%s) - full halt", pctLabel(e.cfg.DrawdownHaltPct)), 1.0)
	case dd >= e.cfg.DrawdownCriticalPct:
		return models.RiskState{
			Level:          models.RiskCritical,
			SizeMultiplier: e.cfg.DrawdownCriticalSizeMult,
			Reason:         fmt.Sprintf("Drawdown elevated (%s) - minimum sizing", pctLabel(e.cfg.DrawdownCriticalPct)),
			ShouldAlert:    true,
		}
	}
	return models.NormalRiskState()
}

// EvaluateVIX grades market volatility.
func (e Evaluator) EvaluateVIX(vix float64) models.RiskState {
	switch {
	case vix >= e.cfg.VIXHalt:
		return models.HaltedRiskState(fmt.Sprintf("Extreme volatility (VIX > %s) - halting", numLabel(e.cfg.VIXHalt)), 0)
	case vix >= e.cfg.VIXHigh:
		return models.RiskState{
			Level:          models.RiskHigh,
			SizeMultiplier: e.cfg.VIXHighSizeMult,
			Reason:         fmt.Sprintf("VIX very high (>%s) - significant reduction", numLabel(e.cfg.VIXHigh)),
			ShouldAlert:    true,
		}
	case vix >= e.cfg.VIXCaution:
		return models.RiskState{
			Level:          models.RiskCaution,
			SizeMultiplier: e.cfg.VIXCautionSizeMult,
			Reason:         fmt.Sprintf("VIX high (>%s) - reducing size", numLabel(e.cfg.VIXCaution)),
			ShouldAlert:    true,
		}
	case vix >= e.cfg.VIXElevated:
		return models.RiskState{
			Level:          models.RiskElevated,
			SizeMultiplier: e.cfg.VIXElevatedSizeMult,
			Reason:         fmt.Sprintf("VIX elevated (>%s)", numLabel(e.cfg.VIXElevated)),
		}
	}
	return models.NormalRiskState()
}

// EvaluateRapidLoss halts when losses accumulated inside the rapid-loss window
// reach the configured share of equity.
func (e Evaluator) EvaluateRapidLoss(rapidLossAmount, currentEquity float64) models.RiskState {
	if currentEquity <= 0 || rapidLossAmount <= 0 {
		return models.NormalRiskState()
	}
	if rapidLossAmount/currentEquity >= e.cfg.RapidLossPct {
		return models.HaltedRiskState(
			fmt.Sprintf("Rapid loss detected (%s in <%s)", pctLabel(e.cfg.RapidLossPct), minutesLabel(e.cfg.RapidLossWindow)), 0)
	}
	return models.NormalRiskState()
}

// EvaluateStaleness halts when the last quote is older than the staleness limit.
func (e Evaluator) EvaluateStaleness(lastQuote, now time.Time) models.RiskState {
	if now.Sub(lastQuote) > e.cfg.StaleDataAfter {
		return models.HaltedRiskState("Stale market data detected", 0)
	}
	return models.NormalRiskState()
}

// EvaluateAPIErrors halts when the trailing error count reaches the limit.
func (e Evaluator) EvaluateAPIErrors(count int) models.RiskState {
	if count >= e.cfg.APIErrorLimit {
		return models.HaltedRiskState("Excessive API errors", 0)
	}
	return models.NormalRiskState()
}

// MostRestrictive returns the state with the lowest size multiplier. Ties go
// to the state that requests an alert. With no states it returns normal.
func MostRestrictive(states ...models.RiskState) models.RiskState {
	best := models.NormalRiskState()
	for _, s := range states {
		if s.SizeMultiplier < best.SizeMultiplier ||
			(s.SizeMultiplier == best.SizeMultiplier && s.ShouldAlert && !best.ShouldAlert) {
			best = s
		}
	}
	return best
}

func minutesLabel(d time.Duration) string {
	return fmt.Sprintf("%s min", numLabel(d.Minutes()))
}
