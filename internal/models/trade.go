package models

import "time"

// RecommendationStatus represents the approval lifecycle of a recommendation.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "pending"
	RecommendationApproved RecommendationStatus = "approved"
	RecommendationRejected RecommendationStatus = "rejected"
	RecommendationExpired  RecommendationStatus = "expired"
	RecommendationExecuted RecommendationStatus = "executed"
)

// Recommendation is a screened, analysed spread awaiting human approval.
type Recommendation struct {
	ID                 string               `json:"id"`
	CreatedAt          time.Time            `json:"created_at"`
	ExpiresAt          time.Time            `json:"expires_at"`
	Status             RecommendationStatus `json:"status"`
	Underlying         string               `json:"underlying"`
	SpreadType         SpreadType           `json:"spread_type"`
	ShortStrike        float64              `json:"short_strike"`
	LongStrike         float64              `json:"long_strike"`
	Expiration         time.Time            `json:"expiration"`
	Credit             float64              `json:"credit"`
	MaxLoss            float64              `json:"max_loss"`
	IVRank             float64              `json:"iv_rank"`
	Delta              float64              `json:"delta"`
	Score              float64              `json:"score"`
	Thesis             string               `json:"thesis"`
	Confidence         Confidence           `json:"confidence"`
	SuggestedContracts int                  `json:"suggested_contracts"`
	UnderlyingPrice    float64              `json:"underlying_price"`
}

// IsExpired reports whether the approval window has closed.
func (r Recommendation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ShortSymbol returns the OCC symbol of the short leg.
func (r Recommendation) ShortSymbol() string {
	return OCCSymbol(r.Underlying, r.Expiration, r.SpreadType.OptionType(), r.ShortStrike)
}

// LongSymbol returns the OCC symbol of the long leg.
func (r Recommendation) LongSymbol() string {
	return OCCSymbol(r.Underlying, r.Expiration, r.SpreadType.OptionType(), r.LongStrike)
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradePendingFill TradeStatus = "pending_fill"
	TradeOpen        TradeStatus = "open"
	TradeClosed      TradeStatus = "closed"
	TradeExpired     TradeStatus = "expired"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeDecay    ExitReason = "time_exit"
	ExitManual       ExitReason = "manual"
	ExitCircuitBreak ExitReason = "circuit_breaker"
)

// Trade is an executed (or executing) spread position.
type Trade struct {
	ID               string      `json:"id"`
	RecommendationID string      `json:"recommendation_id,omitempty"`
	OpenedAt         *time.Time  `json:"opened_at,omitempty"`
	ClosedAt         *time.Time  `json:"closed_at,omitempty"`
	Status           TradeStatus `json:"status"`
	Underlying       string      `json:"underlying"`
	SpreadType       SpreadType  `json:"spread_type"`
	ShortStrike      float64     `json:"short_strike"`
	LongStrike       float64     `json:"long_strike"`
	Expiration       time.Time   `json:"expiration"`
	EntryCredit      float64     `json:"entry_credit"`
	ExitDebit        *float64    `json:"exit_debit,omitempty"`
	ProfitLoss       *float64    `json:"profit_loss,omitempty"`
	Contracts        int         `json:"contracts"`
	BrokerOrderID    string      `json:"broker_order_id,omitempty"`
	ExitReason       ExitReason  `json:"exit_reason,omitempty"`
	Reflection       string      `json:"reflection,omitempty"`
	Lesson           string      `json:"lesson,omitempty"`
}

// ShortSymbol returns the OCC symbol of the short leg.
func (t Trade) ShortSymbol() string {
	return OCCSymbol(t.Underlying, t.Expiration, t.SpreadType.OptionType(), t.ShortStrike)
}

// LongSymbol returns the OCC symbol of the long leg.
func (t Trade) LongSymbol() string {
	return OCCSymbol(t.Underlying, t.Expiration, t.SpreadType.OptionType(), t.LongStrike)
}

// Width returns the absolute strike distance.
func (t Trade) Width() float64 {
	w := t.ShortStrike - t.LongStrike
	if w < 0 {
		return -w
	}
	return w
}

// MaxLoss returns the dollar max loss across all contracts.
func (t Trade) MaxLoss() float64 {
	return (t.Width() - t.EntryCredit) * ContractMultiplier * float64(t.Contracts)
}

// RealizedPnL returns (entry - exit) * contracts * 100.
func RealizedPnL(entryCredit, exitDebit float64, contracts int) float64 {
	return (entryCredit - exitDebit) * float64(contracts) * ContractMultiplier
}

// Position is the live mark of an open trade.
type Position struct {
	ID            string    `json:"id"`
	TradeID       string    `json:"trade_id"`
	Underlying    string    `json:"underlying"`
	ShortStrike   float64   `json:"short_strike"`
	LongStrike    float64   `json:"long_strike"`
	Expiration    time.Time `json:"expiration"`
	Contracts     int       `json:"contracts"`
	CloseCost     float64   `json:"close_cost"`    // per-spread cost to close
	CurrentValue  float64   `json:"current_value"` // dollar cost to close the whole position
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}
