package trading

import (
	"fmt"
	"time"

	"spread-trader/internal/analysis/greeks"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

// ExitSignal is a triggered exit condition.
type ExitSignal struct {
	Reason  models.ExitReason `json:"reason"`
	Message string            `json:"message"`
}

// ExitValidator evaluates the exit rules for an open credit spread.
//
// Rules are checked in priority order and the first match wins: profit
// target, stop loss, then time exit.
type ExitValidator struct {
	cfg ExitConfig
}

// NewExitValidator creates an exit validator.
func NewExitValidator(cfg ExitConfig) *ExitValidator {
	return &ExitValidator{cfg: cfg}
}

// Config returns the exit thresholds.
func (v *ExitValidator) Config() ExitConfig {
	return v.cfg
}

// CheckProfitTarget reports whether the captured share of the entry credit
// reached the profit target. closeCost is the per-spread cost to close.
func (v *ExitValidator) CheckProfitTarget(entryCredit, closeCost float64) (bool, string) {
	if entryCredit <= 0 {
		return false, ""
	}
	captured := (entryCredit - closeCost) / entryCredit
	if captured >= v.cfg.ProfitTargetPct {
		return true, fmt.Sprintf("Profit target reached (%.0f%% of max)", captured*100)
	}
	return false, ""
}

// CheckStopLoss reports whether the loss reached the stop multiple of the
// entry credit.
func (v *ExitValidator) CheckStopLoss(entryCredit, closeCost float64) (bool, string) {
	if entryCredit <= 0 {
		return false, ""
	}
	loss := closeCost - entryCredit
	if loss >= v.cfg.StopLossPct*entryCredit {
		return true, fmt.Sprintf("Stop loss triggered (loss = %.0f%% of credit)", loss/entryCredit*100)
	}
	return false, ""
}

// CheckTimeExit reports whether the spread is inside the time exit window.
func (v *ExitValidator) CheckTimeExit(expiration, now time.Time) (bool, string) {
	dte := greeks.DaysToExpiry(expiration, now)
	if dte <= v.cfg.TimeExitDTE {
		return true, fmt.Sprintf("Time exit triggered (%d DTE <= %d)", dte, v.cfg.TimeExitDTE)
	}
	return false, ""
}

// CheckAllExitConditions returns the first triggered exit, or nil.
func (v *ExitValidator) CheckAllExitConditions(entryCredit, closeCost float64, expiration, now time.Time) *ExitSignal {
	if ok, msg := v.CheckProfitTarget(entryCredit, closeCost); ok {
		return &ExitSignal{Reason: models.ExitProfitTarget, Message: msg}
	}
	if ok, msg := v.CheckStopLoss(entryCredit, closeCost); ok {
		return &ExitSignal{Reason: models.ExitStopLoss, Message: msg}
	}
	if ok, msg := v.CheckTimeExit(expiration, now); ok {
		return &ExitSignal{Reason: models.ExitTimeDecay, Message: msg}
	}
	return nil
}

// CheckTrade evaluates a trade against its current cost to close.
func (v *ExitValidator) CheckTrade(trade models.Trade, closeCost float64, now time.Time) (*ExitSignal, error) {
	if trade.EntryCredit <= 0 {
		return nil, apperrors.NewValidationError("entry_credit", trade.EntryCredit,
			fmt.Sprintf("trade %s has no usable entry credit", trade.ID))
	}
	return v.CheckAllExitConditions(trade.EntryCredit, closeCost, trade.Expiration, now), nil
}
