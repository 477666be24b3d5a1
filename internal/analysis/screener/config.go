package screener

// Config holds the spread screening thresholds.
type Config struct {
	MinDTE             int     `mapstructure:"min_dte" json:"min_dte"`
	MaxDTE             int     `mapstructure:"max_dte" json:"max_dte"`
	MinDelta           float64 `mapstructure:"min_delta" json:"min_delta"`
	MaxDelta           float64 `mapstructure:"max_delta" json:"max_delta"`
	MinIVRank          float64 `mapstructure:"min_iv_rank" json:"min_iv_rank"`
	MinCreditPct       float64 `mapstructure:"min_credit_pct" json:"min_credit_pct"`
	MinWidth           float64 `mapstructure:"min_width" json:"min_width"`
	MaxWidth           float64 `mapstructure:"max_width" json:"max_width"`
	MinOpenInterest    int64   `mapstructure:"min_open_interest" json:"min_open_interest"`
	MinVolume          int64   `mapstructure:"min_volume" json:"min_volume"`
	MaxBidAskSpreadPct float64 `mapstructure:"max_bid_ask_spread_pct" json:"max_bid_ask_spread_pct"`
	RiskFreeRate       float64 `mapstructure:"risk_free_rate" json:"risk_free_rate"`
}

// DefaultConfig returns the default screening thresholds.
func DefaultConfig() Config {
	return Config{
		MinDTE:             30,
		MaxDTE:             45,
		MinDelta:           0.20,
		MaxDelta:           0.30,
		MinIVRank:          50,
		MinCreditPct:       0.25,
		MinWidth:           1,
		MaxWidth:           10,
		MinOpenInterest:    100,
		MinVolume:          10,
		MaxBidAskSpreadPct: 0.10,
		RiskFreeRate:       0.05,
	}
}

// Weights are the relative contributions of each score component.
type Weights struct {
	IVRank float64
	Delta  float64
	Credit float64
	EV     float64
}

// DefaultWeights weights every component equally.
func DefaultWeights() Weights {
	return Weights{IVRank: 0.25, Delta: 0.25, Credit: 0.25, EV: 0.25}
}
