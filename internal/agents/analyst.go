// Package agents provides the AI analyst that gates screened trades.
//
// The analyst never sizes or approves a trade. It only adds a thesis and a
// confidence level; low-confidence candidates are dropped by the pipeline.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
)

// maxPlaybookRules bounds the rules sent with each prompt.
const maxPlaybookRules = 5

// Analyst reviews candidate spreads and closed trades.
type Analyst interface {
	Name() string
	AnalyzeTrade(ctx context.Context, spread models.CreditSpread, tc models.TradeContext, rules []models.PlaybookRule) (*models.TradeAnalysis, error)
	Reflect(ctx context.Context, trade models.Trade, thesis string) (*TradeReflection, error)
}

// TradeReflection is the post-trade review of a closed trade.
type TradeReflection struct {
	Reflection string `json:"reflection"`
	Lesson     string `json:"lesson"`
}

// ShouldDrop reports whether an analysis disqualifies the trade.
func ShouldDrop(a *models.TradeAnalysis) bool {
	return a != nil && a.Confidence == models.ConfidenceLow
}

// ============================================================================
// LLM analyst
// ============================================================================

// LLMAnalyst asks a language model for a trade thesis.
type LLMAnalyst struct {
	llm    LLMClient
	logger zerolog.Logger
}

var _ Analyst = (*LLMAnalyst)(nil)

// NewLLMAnalyst creates an analyst backed by llm.
func NewLLMAnalyst(llm LLMClient, logger zerolog.Logger) *LLMAnalyst {
	return &LLMAnalyst{llm: llm, logger: logging.WithComponent(logger, "analyst")}
}

// Name returns the analyst name.
func (a *LLMAnalyst) Name() string { return "llm" }

// AnalyzeTrade implements Analyst.
func (a *LLMAnalyst) AnalyzeTrade(ctx context.Context, spread models.CreditSpread, tc models.TradeContext, rules []models.PlaybookRule) (*models.TradeAnalysis, error) {
	prompt := buildAnalysisPrompt(spread, tc, rules)

	start := time.Now()
	raw, err := a.llm.CompleteWithSystem(ctx, tradeAnalysisSystem, prompt)
	if err != nil {
		return nil, apperrors.NewAgentError(a.Name(), "analyze_trade", err)
	}

	var out struct {
		Thesis           string   `json:"thesis"`
		Risks            []string `json:"risks"`
		Confidence       string   `json:"confidence"`
		ConfidenceReason string   `json:"confidence_reason"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return nil, apperrors.NewAgentError(a.Name(), "analyze_trade", err)
	}
	if out.Thesis == "" {
		return nil, apperrors.NewAgentError(a.Name(), "analyze_trade", fmt.Errorf("response has no thesis"))
	}

	analysis := &models.TradeAnalysis{
		Thesis:           out.Thesis,
		Risks:            out.Risks,
		Confidence:       models.ParseConfidence(strings.ToLower(strings.TrimSpace(out.Confidence))),
		ConfidenceReason: out.ConfidenceReason,
	}
	a.logger.Debug().
		Str("spread", spread.String()).
		Str("confidence", string(analysis.Confidence)).
		Dur("duration", time.Since(start)).
		Msg("Trade analysed")
	return analysis, nil
}

// Reflect implements Analyst.
func (a *LLMAnalyst) Reflect(ctx context.Context, trade models.Trade, thesis string) (*TradeReflection, error) {
	if trade.ProfitLoss == nil || trade.ExitDebit == nil {
		return nil, apperrors.NewValidationError("trade", trade.ID, "trade must be closed to reflect on it")
	}
	raw, err := a.llm.CompleteWithSystem(ctx, reflectionSystem, buildReflectionPrompt(trade, thesis))
	if err != nil {
		return nil, apperrors.NewAgentError(a.Name(), "reflect", err)
	}
	var out TradeReflection
	if err := decodeJSON(raw, &out); err != nil {
		return nil, apperrors.NewAgentError(a.Name(), "reflect", err)
	}
	return &out, nil
}

func buildAnalysisPrompt(spread models.CreditSpread, tc models.TradeContext, rules []models.PlaybookRule) string {
	var sb strings.Builder
	for i, r := range rules {
		if i == maxPlaybookRules {
			break
		}
		sb.WriteString("- " + r.Rule + "\n")
	}
	playbook := strings.TrimSpace(sb.String())
	if playbook == "" {
		playbook = "No rules loaded"
	}

	riskReward := 0.0
	if spread.MaxProfit() > 0 {
		riskReward = spread.MaxLoss() / spread.MaxProfit()
	}
	vix := ""
	if tc.VIX > 0 {
		vix = fmt.Sprintf(" | VIX: %.1f", tc.VIX)
	}

	typeLabel := strings.ReplaceAll(string(spread.Type), "_", " ")
	return fmt.Sprintf(tradeAnalysisUser,
		spread.Underlying, tc.UnderlyingPrice,
		typeLabel, spread.Short.Strike, deref(spread.Short.Delta), spread.Long.Strike, deref(spread.Long.Delta),
		spread.Expiration.Format(models.DateLayout), tc.DTE,
		spread.Credit(), spread.MaxLoss()/models.ContractMultiplier, riskReward,
		tc.IVRank, tc.CurrentIV*100, vix,
		playbook,
	)
}

func buildReflectionPrompt(trade models.Trade, thesis string) string {
	pnl, exit := *trade.ProfitLoss, *trade.ExitDebit
	maxProfit := trade.EntryCredit * float64(trade.Contracts) * models.ContractMultiplier
	pnlPct := 0.0
	if maxProfit > 0 {
		pnlPct = pnl / maxProfit * 100
	}
	outcome := "LOSS"
	if pnl > 0 {
		outcome = "WIN"
	}
	if thesis == "" {
		thesis = "Not recorded"
	}
	return fmt.Sprintf(reflectionUser,
		trade.Underlying,
		trade.SpreadType, trade.ShortStrike, trade.LongStrike, trade.Expiration.Format(models.DateLayout),
		dateOrNA(trade.OpenedAt), dateOrNA(trade.ClosedAt), trade.ExitReason,
		trade.EntryCredit, exit,
		pnl, pnlPct, outcome,
		thesis,
	)
}

// decodeJSON parses a model response, tolerating a surrounding markdown fence.
func decodeJSON(raw string, v interface{}) error {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
				lines = lines[:len(lines)-1]
			}
		}
		text = strings.Join(lines, "\n")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("failed to parse analyst response: %w", err)
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func dateOrNA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(models.DateLayout)
}

// ============================================================================
// Rules analyst
// ============================================================================

// RulesAnalyst is the offline analyst used when no model is configured, and
// as the fallback when the model call fails.
type RulesAnalyst struct{}

var _ Analyst = RulesAnalyst{}

// Name returns the analyst name.
func (RulesAnalyst) Name() string { return "rules" }

// AnalyzeTrade grades the spread on IV rank, short delta and credit efficiency.
func (RulesAnalyst) AnalyzeTrade(_ context.Context, spread models.CreditSpread, tc models.TradeContext, _ []models.PlaybookRule) (*models.TradeAnalysis, error) {
	delta := math.Abs(deref(spread.Short.Delta))
	creditPct := spread.CreditPct()

	var risks []string
	points := 0
	if tc.IVRank >= 50 {
		points++
	} else {
		risks = append(risks, fmt.Sprintf("IV rank %.0f is below 50; premium is thin", tc.IVRank))
	}
	if delta > 0 && delta <= 0.25 {
		points++
	} else {
		risks = append(risks, fmt.Sprintf("short delta %.2f is outside the 0.25 comfort zone", delta))
	}
	if creditPct >= 0.30 {
		points++
	} else {
		risks = append(risks, fmt.Sprintf("credit is only %.0f%% of width", creditPct*100))
	}
	if tc.VIX >= 30 {
		points--
		risks = append(risks, fmt.Sprintf("VIX %.1f signals a stressed market", tc.VIX))
	}

	confidence := models.ConfidenceMedium
	switch {
	case points >= 3:
		confidence = models.ConfidenceHigh
	case points <= 0:
		confidence = models.ConfidenceLow
	}

	direction := "stays above"
	if spread.Type == models.BearCallSpread {
		direction = "stays below"
	}
	return &models.TradeAnalysis{
		Thesis: fmt.Sprintf("Collect %.2f on a %s %s if %s %s %.2f through %s.",
			spread.Credit(), spread.Underlying, strings.ReplaceAll(string(spread.Type), "_", " "),
			spread.Underlying, direction, spread.BreakEven(), spread.Expiration.Format(models.DateLayout)),
		Risks:            risks,
		Confidence:       confidence,
		ConfidenceReason: fmt.Sprintf("%d of 3 entry criteria met", max(points, 0)),
	}, nil
}

// Reflect summarises a closed trade without a model.
func (RulesAnalyst) Reflect(_ context.Context, trade models.Trade, _ string) (*TradeReflection, error) {
	if trade.ProfitLoss == nil {
		return nil, apperrors.NewValidationError("trade", trade.ID, "trade must be closed to reflect on it")
	}
	lesson := "Let winners reach the profit target."
	switch trade.ExitReason {
	case models.ExitStopLoss:
		lesson = "Stop losses hit; favour lower deltas or higher IV rank entries."
	case models.ExitTimeDecay:
		lesson = "Time exits recycle capital; consider shorter DTE entries."
	}
	return &TradeReflection{
		Reflection: fmt.Sprintf("%s %s closed via %s for %.2f.", trade.Underlying, trade.SpreadType, trade.ExitReason, *trade.ProfitLoss),
		Lesson:     lesson,
	}, nil
}

// ============================================================================
// Fallback
// ============================================================================

// FallbackAnalyst tries primary and falls back to secondary on error.
type FallbackAnalyst struct {
	primary   Analyst
	secondary Analyst
	logger    zerolog.Logger
}

var _ Analyst = (*FallbackAnalyst)(nil)

// NewFallbackAnalyst creates a fallback chain.
func NewFallbackAnalyst(primary, secondary Analyst, logger zerolog.Logger) *FallbackAnalyst {
	return &FallbackAnalyst{primary: primary, secondary: secondary, logger: logging.WithComponent(logger, "analyst")}
}

// Name returns the analyst name.
func (f *FallbackAnalyst) Name() string { return f.primary.Name() + "+" + f.secondary.Name() }

// AnalyzeTrade implements Analyst.
func (f *FallbackAnalyst) AnalyzeTrade(ctx context.Context, spread models.CreditSpread, tc models.TradeContext, rules []models.PlaybookRule) (*models.TradeAnalysis, error) {
	a, err := f.primary.AnalyzeTrade(ctx, spread, tc, rules)
	if err == nil {
		return a, nil
	}
	f.logger.Warn().Err(err).Str("spread", spread.String()).Msg("Primary analyst failed, using fallback")
	return f.secondary.AnalyzeTrade(ctx, spread, tc, rules)
}

// Reflect implements Analyst.
func (f *FallbackAnalyst) Reflect(ctx context.Context, trade models.Trade, thesis string) (*TradeReflection, error) {
	r, err := f.primary.Reflect(ctx, trade, thesis)
	if err == nil {
		return r, nil
	}
	f.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Primary reflection failed, using fallback")
	return f.secondary.Reflect(ctx, trade, thesis)
}
