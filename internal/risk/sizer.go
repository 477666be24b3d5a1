package risk

import (
	"fmt"
	"math"

	"spread-trader/internal/models"
)

// Constraint names the limit that bound a sizing decision.
type Constraint string

const (
	ConstraintNone           Constraint = ""
	ConstraintTradeRisk      Constraint = "trade_risk"
	ConstraintSinglePosition Constraint = "single_position"
	ConstraintPortfolioHeat  Constraint = "portfolio_heat"
	ConstraintVIX            Constraint = "vix"
	ConstraintInvalid        Constraint = "invalid"
)

// SizeResult is a position sizing decision. Zero contracts is a normal outcome.
type SizeResult struct {
	Contracts          int        `json:"contracts"`
	RiskAmount         float64    `json:"risk_amount"`
	RiskPercent        float64    `json:"risk_percent"`
	MaxLossPerContract float64    `json:"max_loss_per_contract"`
	Constraint         Constraint `json:"constraint,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

// HeatReport summarises open risk against the portfolio heat limit.
type HeatReport struct {
	TotalRisk         float64            `json:"total_risk"`
	HeatPercent       float64            `json:"heat_percent"`
	MaxHeatPercent    float64            `json:"max_heat_percent"`
	AvailableCapacity float64            `json:"available_capacity"`
	ByUnderlying      map[string]float64 `json:"by_underlying"`
	AtLimit           bool               `json:"at_limit"`
}

// PositionSizer converts a spread's max loss into a contract count.
type PositionSizer struct {
	cfg Config
}

// NewPositionSizer creates a sizer.
func NewPositionSizer(cfg Config) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// CalculateSize sizes a spread for the account.
func (p *PositionSizer) CalculateSize(spread models.CreditSpread, equity float64, positions []models.Position, vix *float64) SizeResult {
	return p.CalculateSizeForMaxLoss(spread.MaxLoss(), equity, positions, vix)
}

// CalculateSizeForMaxLoss takes the minimum of the per-trade, single-position
// and portfolio-heat caps, then applies the high-VIX reduction.
func (p *PositionSizer) CalculateSizeForMaxLoss(maxLoss, equity float64, positions []models.Position, vix *float64) SizeResult {
	if vix != nil && *vix >= p.cfg.VIXHalt {
		return SizeResult{
			Constraint: ConstraintVIX,
			Reason:     fmt.Sprintf("VIX (%.1f) exceeds extreme threshold (%s)", *vix, numLabel(p.cfg.VIXHalt)),
		}
	}
	if maxLoss <= 0 {
		return SizeResult{Constraint: ConstraintInvalid, Reason: "Invalid spread: no risk calculated"}
	}

	heat := currentHeat(positions)
	heatPct := 0.0
	if equity > 0 {
		heatPct = heat / equity
	}
	available := math.Max(0, equity*p.cfg.MaxPortfolioHeatPct-heat)

	byTrade := floorContracts(equity*p.cfg.MaxRiskPerTradePct, maxLoss)
	byPosition := floorContracts(equity*p.cfg.MaxSinglePositionPct, maxLoss)
	byHeat := floorContracts(available, maxLoss)

	contracts := minInt(byTrade, byPosition, byHeat)
	if contracts < 0 {
		contracts = 0
	}

	res := SizeResult{MaxLossPerContract: maxLoss}
	switch {
	case contracts == 0 && byHeat == 0:
		res.Constraint = ConstraintPortfolioHeat
		res.Reason = fmt.Sprintf("Portfolio heat limit reached (%.1f%% of %s)", heatPct*100, pctLabel(p.cfg.MaxPortfolioHeatPct))
	case contracts == 0 && byTrade == 0:
		res.Constraint = ConstraintTradeRisk
		res.Reason = fmt.Sprintf("Trade risk exceeds %s limit", pctLabel(p.cfg.MaxRiskPerTradePct))
	case contracts == 0 && byPosition == 0:
		res.Constraint = ConstraintSinglePosition
		res.Reason = fmt.Sprintf("Position would exceed %s limit", pctLabel(p.cfg.MaxSinglePositionPct))
	case contracts == byTrade:
		res.Constraint = ConstraintTradeRisk
	case contracts == byHeat:
		res.Constraint = ConstraintPortfolioHeat
		res.Reason = fmt.Sprintf("Limited by portfolio heat (%.1f%%)", heatPct*100)
	case contracts == byPosition:
		res.Constraint = ConstraintSinglePosition
		res.Reason = fmt.Sprintf("Limited by %s single position rule", pctLabel(p.cfg.MaxSinglePositionPct))
	}

	if vix != nil && *vix >= p.cfg.VIXHigh && contracts > 0 {
		reduced := int(float64(contracts) * (1 - p.cfg.HighVIXReduction))
		if reduced < 1 {
			reduced = 1
		}
		if reduced < contracts {
			res.Constraint = ConstraintVIX
			res.Reason = fmt.Sprintf("Reduced by %s due to VIX (%.1f)", pctLabel(p.cfg.HighVIXReduction), *vix)
		}
		contracts = reduced
	}

	res.Contracts = contracts
	res.RiskAmount = float64(contracts) * maxLoss
	if equity > 0 {
		res.RiskPercent = res.RiskAmount / equity
	}
	return res
}

// PortfolioHeat reports open risk against the heat limit.
func (p *PositionSizer) PortfolioHeat(equity float64, positions []models.Position) HeatReport {
	report := HeatReport{
		TotalRisk:      currentHeat(positions),
		MaxHeatPercent: p.cfg.MaxPortfolioHeatPct,
		ByUnderlying:   make(map[string]float64),
	}
	for _, pos := range positions {
		report.ByUnderlying[pos.Underlying] += math.Abs(pos.CurrentValue)
	}
	if equity > 0 {
		report.HeatPercent = report.TotalRisk / equity
	}
	report.AvailableCapacity = math.Max(0, (p.cfg.MaxPortfolioHeatPct-report.HeatPercent)*equity)
	report.AtLimit = report.HeatPercent >= p.cfg.MaxPortfolioHeatPct
	return report
}

// ApplyMultiplier scales contracts by a risk-state size multiplier, keeping at
// least one contract when any were allowed and the multiplier is positive.
func ApplyMultiplier(contracts int, multiplier float64) int {
	if contracts <= 0 || multiplier <= 0 {
		return 0
	}
	scaled := int(float64(contracts) * multiplier)
	if scaled < 1 {
		return 1
	}
	return scaled
}

func currentHeat(positions []models.Position) float64 {
	var heat float64
	for _, pos := range positions {
		heat += math.Abs(pos.CurrentValue)
	}
	return heat
}

func floorContracts(budget, maxLoss float64) int {
	if budget <= 0 {
		return 0
	}
	return int(math.Floor(budget / maxLoss))
}

func minInt(first int, rest ...int) int {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
