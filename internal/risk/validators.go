package risk

import (
	"fmt"
	"math"
	"time"

	"spread-trader/internal/analysis/greeks"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

// ValidatorConfig holds pre-execution checks.
type ValidatorConfig struct {
	MaxPriceDriftPct float64 `mapstructure:"max_price_drift_pct"`
	MinDTEForEntry   int     `mapstructure:"min_dte_for_entry"`
}

// DefaultValidatorConfig returns the default pre-execution checks.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPriceDriftPct: 0.01,
		MinDTEForEntry:   21,
	}
}

// TradeValidator checks recommendations and spreads before execution.
type TradeValidator struct {
	cfg ValidatorConfig
}

// NewTradeValidator creates a validator.
func NewTradeValidator(cfg ValidatorConfig) *TradeValidator {
	return &TradeValidator{cfg: cfg}
}

// ValidateRecommendation checks that a recommendation is pending, unexpired and
// far enough from expiration to enter.
func (v *TradeValidator) ValidateRecommendation(rec *models.Recommendation, now time.Time) error {
	if rec.Status != models.RecommendationPending {
		return apperrors.NewValidationError("status", rec.Status,
			fmt.Sprintf("recommendation status is %s, not pending", rec.Status))
	}
	if rec.IsExpired(now) {
		return apperrors.Wrapf(apperrors.ErrRecommendationExpired, "recommendation %s", rec.ID)
	}
	if dte := greeks.DaysToExpiry(rec.Expiration, now); dte < v.cfg.MinDTEForEntry {
		return apperrors.NewValidationError("dte", dte,
			fmt.Sprintf("DTE (%d) is below minimum (%d)", dte, v.cfg.MinDTEForEntry))
	}
	return nil
}

// ValidatePriceDrift checks the live credit against the credit seen at analysis time.
// A zero analysis credit skips the check.
func (v *TradeValidator) ValidatePriceDrift(analysisCredit, currentCredit float64) error {
	if analysisCredit == 0 {
		return nil
	}
	if analysisCredit < 0 {
		return apperrors.NewValidationError("analysis_credit", analysisCredit, "invalid analysis price")
	}
	drift := math.Abs(currentCredit-analysisCredit) / analysisCredit
	if drift > v.cfg.MaxPriceDriftPct {
		return apperrors.NewValidationError("credit", currentCredit,
			fmt.Sprintf("price drift (%.1f%%) exceeds maximum (%s)", drift*100, pctLabel(v.cfg.MaxPriceDriftPct)))
	}
	return nil
}

// ValidateSpread checks credit, width, strike order and expiry.
func (v *TradeValidator) ValidateSpread(spread models.CreditSpread, now time.Time) error {
	if spread.Credit() <= 0 {
		return apperrors.NewValidationError("credit", spread.Credit(), "spread has no credit (or is a debit spread)")
	}
	if spread.Width() <= 0 {
		return apperrors.NewValidationError("width", spread.Width(), "invalid spread width")
	}
	if !spread.StrikesOrdered() {
		msg := "bull put: short strike must be above long strike"
		if spread.Type == models.BearCallSpread {
			msg = "bear call: short strike must be below long strike"
		}
		return apperrors.NewValidationError("strikes", fmt.Sprintf("%.2f/%.2f", spread.Short.Strike, spread.Long.Strike), msg)
	}
	if greeks.DaysToExpiry(spread.Expiration, now) <= 0 {
		return apperrors.NewValidationError("expiration", spread.Expiration.Format(models.DateLayout), "spread has expired")
	}
	return nil
}
