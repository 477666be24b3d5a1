// Package trading runs the order lifecycle: scans that produce
// recommendations, approvals that submit orders, fill monitoring,
// reconciliation and exits.
package trading

import (
	"time"
)

// PriceStep is one rung of the fill ladder: once After has elapsed with the
// order still working, the limit moves Step toward the natural price.
type PriceStep struct {
	After time.Duration `mapstructure:"after" json:"after"`
	Step  float64       `mapstructure:"step" json:"step"`
}

// ExecutionConfig holds order submission and fill monitoring settings.
type ExecutionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	FillTimeout  time.Duration `mapstructure:"fill_timeout"`
	Ladder       []PriceStep   `mapstructure:"ladder"`
	// CancelOnTimeout cancels an order left working when monitoring times out.
	CancelOnTimeout bool `mapstructure:"cancel_on_timeout"`
	// AutoExit closes positions when an exit triggers; otherwise exits only alert.
	AutoExit bool `mapstructure:"auto_exit"`
}

// DefaultExecutionConfig returns the default execution settings.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		PollInterval: 30 * time.Second,
		FillTimeout:  900 * time.Second,
		Ladder: []PriceStep{
			{After: 300 * time.Second, Step: 0.02},
			{After: 600 * time.Second, Step: 0.03},
			{After: 780 * time.Second, Step: 0.02},
		},
		CancelOnTimeout: true,
	}
}

// ExitConfig holds the exit rule thresholds.
type ExitConfig struct {
	// ProfitTargetPct is the fraction of the entry credit captured before closing.
	ProfitTargetPct float64 `mapstructure:"profit_target_pct"`
	// StopLossPct is the loss, as a multiple of the entry credit, that forces a close.
	StopLossPct float64 `mapstructure:"stop_loss_pct"`
	TimeExitDTE int     `mapstructure:"time_exit_dte"`
}

// DefaultExitConfig returns the default exit thresholds.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		ProfitTargetPct: 0.50,
		StopLossPct:     2.00,
		TimeExitDTE:     21,
	}
}

// PipelineConfig holds scan settings.
type PipelineConfig struct {
	Underlyings        []string      `mapstructure:"underlyings"`
	TopPerUnderlying   int           `mapstructure:"top_per_underlying"`
	MaxRecommendations int           `mapstructure:"max_recommendations"`
	RecommendationTTL  time.Duration `mapstructure:"recommendation_ttl"`
	AutoApprove        bool          `mapstructure:"auto_approve"`
	// MinIVHistory is the number of observations needed before IV rank is
	// computed from history rather than estimated from the VIX.
	MinIVHistory int     `mapstructure:"min_iv_history"`
	ATMBand      float64 `mapstructure:"atm_band"`
	Concurrency  int     `mapstructure:"concurrency"`
}

// DefaultPipelineConfig returns the default scan settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Underlyings:        []string{"SPY", "QQQ", "IWM"},
		TopPerUnderlying:   2,
		MaxRecommendations: 3,
		RecommendationTTL:  15 * time.Minute,
		MinIVHistory:       30,
		ATMBand:            0.02,
		Concurrency:        4,
	}
}
