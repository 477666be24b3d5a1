package models

// Confidence is the analyst's confidence in a trade thesis.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence maps free text onto a confidence level, defaulting to medium.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return Confidence(s)
	}
	return ConfidenceMedium
}

// TradeAnalysis is the analyst's narrative assessment of a candidate spread.
type TradeAnalysis struct {
	Thesis           string     `json:"thesis"`
	Risks            []string   `json:"risks"`
	Confidence       Confidence `json:"confidence"`
	ConfidenceReason string     `json:"confidence_reason"`
}

// TradeContext is the market context handed to the analyst.
type TradeContext struct {
	UnderlyingPrice float64 `json:"underlying_price"`
	IVRank          float64 `json:"iv_rank"`
	CurrentIV       float64 `json:"current_iv"`
	VIX             float64 `json:"vix,omitempty"`
	DTE             int     `json:"dte"`
}
