// Package risk implements the graduated circuit breaker, the position sizer and
// trade validation.
package risk

import (
	"math"
	"strconv"
	"time"
)

// Config holds every risk threshold. It is passed by value at construction
// and never mutated afterwards.
type Config struct {
	// Daily loss vs. day-start equity
	DailyAlertPct        float64 `mapstructure:"daily_alert_pct"`
	DailyCautionPct      float64 `mapstructure:"daily_caution_pct"`
	DailyHaltPct         float64 `mapstructure:"daily_halt_pct"`
	DailyCautionSizeMult float64 `mapstructure:"daily_caution_size_mult"`

	// Weekly loss vs. week-start equity
	WeeklyCautionPct      float64 `mapstructure:"weekly_caution_pct"`
	WeeklyHaltPct         float64 `mapstructure:"weekly_halt_pct"`
	WeeklyCautionSizeMult float64 `mapstructure:"weekly_caution_size_mult"`
	WeeklyHaltClosePct    float64 `mapstructure:"weekly_halt_close_pct"`

	// Drawdown vs. peak equity
	DrawdownCriticalPct      float64 `mapstructure:"drawdown_critical_pct"`
	DrawdownHaltPct          float64 `mapstructure:"drawdown_halt_pct"`
	DrawdownCriticalSizeMult float64 `mapstructure:"drawdown_critical_size_mult"`

	// Rapid loss
	RapidLossPct    float64       `mapstructure:"rapid_loss_pct"`
	RapidLossWindow time.Duration `mapstructure:"rapid_loss_window"`

	// VIX
	VIXElevated         float64 `mapstructure:"vix_elevated"`
	VIXCaution          float64 `mapstructure:"vix_caution"`
	VIXHigh             float64 `mapstructure:"vix_high"`
	VIXHalt             float64 `mapstructure:"vix_halt"`
	VIXElevatedSizeMult float64 `mapstructure:"vix_elevated_size_mult"`
	VIXCautionSizeMult  float64 `mapstructure:"vix_caution_size_mult"`
	VIXHighSizeMult     float64 `mapstructure:"vix_high_size_mult"`

	// Operational
	StaleDataAfter time.Duration `mapstructure:"stale_data_after"`
	APIErrorLimit  int           `mapstructure:"api_error_limit"`
	APIErrorWindow time.Duration `mapstructure:"api_error_window"`

	// Position sizing
	MaxRiskPerTradePct   float64 `mapstructure:"max_risk_per_trade_pct"`
	MaxSinglePositionPct float64 `mapstructure:"max_single_position_pct"`
	MaxPortfolioHeatPct  float64 `mapstructure:"max_portfolio_heat_pct"`
	HighVIXReduction     float64 `mapstructure:"high_vix_reduction"`
}

// DefaultConfig returns the default risk thresholds.
func DefaultConfig() Config {
	return Config{
		DailyAlertPct:        0.01,
		DailyCautionPct:      0.015,
		DailyHaltPct:         0.02,
		DailyCautionSizeMult: 0.5,

		WeeklyCautionPct:      0.03,
		WeeklyHaltPct:         0.05,
		WeeklyCautionSizeMult: 0.5,
		WeeklyHaltClosePct:    0.5,

		DrawdownCriticalPct:      0.10,
		DrawdownHaltPct:          0.15,
		DrawdownCriticalSizeMult: 0.25,

		RapidLossPct:    0.01,
		RapidLossWindow: 5 * time.Minute,

		VIXElevated:         20,
		VIXCaution:          30,
		VIXHigh:             40,
		VIXHalt:             50,
		VIXElevatedSizeMult: 0.8,
		VIXCautionSizeMult:  0.5,
		VIXHighSizeMult:     0.25,

		StaleDataAfter: 10 * time.Second,
		APIErrorLimit:  5,
		APIErrorWindow: 60 * time.Second,

		MaxRiskPerTradePct:   0.02,
		MaxSinglePositionPct: 0.05,
		MaxPortfolioHeatPct:  0.10,
		HighVIXReduction:     0.75,
	}
}

// pctLabel renders a fraction as a short percentage: 0.015 -> "1.5%".
func pctLabel(f float64) string {
	return strconv.FormatFloat(math.Round(f*10000)/100, 'f', -1, 64) + "%"
}

// numLabel renders a threshold without trailing zeros: 50 -> "50".
func numLabel(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
