package models

import "time"

// RiskLevel is a graduated risk state, ordered from least to most restrictive.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "normal"
	RiskElevated RiskLevel = "elevated"
	RiskCaution  RiskLevel = "caution"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskHalted   RiskLevel = "halted"
)

// RiskState is the outcome of one risk evaluation.
type RiskState struct {
	Level                RiskLevel `json:"level"`
	SizeMultiplier       float64   `json:"size_multiplier"`
	Reason               string    `json:"reason,omitempty"`
	ShouldAlert          bool      `json:"should_alert"`
	ShouldClosePositions bool      `json:"should_close_positions"`
	ClosePositionPct     float64   `json:"close_position_pct"`
}

// NormalRiskState returns the unrestricted state.
func NormalRiskState() RiskState {
	return RiskState{Level: RiskNormal, SizeMultiplier: 1.0}
}

// HaltedRiskState returns a halted state with zero sizing.
func HaltedRiskState(reason string, closePct float64) RiskState {
	return RiskState{
		Level:                RiskHalted,
		SizeMultiplier:       0,
		Reason:               reason,
		ShouldAlert:          true,
		ShouldClosePositions: closePct > 0,
		ClosePositionPct:     closePct,
	}
}

// IsHalted reports whether new trades are blocked.
func (s RiskState) IsHalted() bool {
	return s.Level == RiskHalted
}

// CircuitBreakerStatus is the persisted global halt flag.
type CircuitBreakerStatus struct {
	Halted      bool       `json:"halted"`
	Reason      string     `json:"reason,omitempty"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

// DailyStats tracks per-day counters used by the risk evaluators.
type DailyStats struct {
	Date            string     `json:"date"`
	StartingEquity  float64    `json:"starting_equity"`
	TradesCount     int        `json:"trades_count"`
	RealizedPnL     float64    `json:"realized_pnl"`
	LossesToday     float64    `json:"losses_today"`
	LastLossTime    *time.Time `json:"last_loss_time,omitempty"`
	RapidLossAmount float64    `json:"rapid_loss_amount"`
}

// WeeklyStats tracks per-ISO-week counters.
type WeeklyStats struct {
	Week           string  `json:"week"`
	StartingEquity float64 `json:"starting_equity"`
	TradesCount    int     `json:"trades_count"`
	RealizedPnL    float64 `json:"realized_pnl"`
}
