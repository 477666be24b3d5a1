package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spread-trader/internal/broker"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
)

// closeFallbackPct prices a manual close at this share of the entry credit
// when the legs cannot be quoted.
const closeFallbackPct = 0.5

// Approvals handles operator decisions on recommendations and open trades.
type Approvals struct {
	coord     *Coordinator
	ledger    store.Ledger
	breaker   *risk.CircuitBreaker
	validator *risk.TradeValidator
	chains    broker.ChainSource
	logger    zerolog.Logger
	now       func() time.Time
}

// NewApprovals creates the approval flow. chains may be nil, which skips the
// price drift check and prices manual closes from the entry credit.
func NewApprovals(coord *Coordinator, ledger store.Ledger, breaker *risk.CircuitBreaker,
	validator *risk.TradeValidator, chains broker.ChainSource, logger zerolog.Logger) *Approvals {
	return &Approvals{
		coord:     coord,
		ledger:    ledger,
		breaker:   breaker,
		validator: validator,
		chains:    chains,
		logger:    logging.WithComponent(logger, "approvals"),
		now:       time.Now,
	}
}

// WithClock overrides the clock.
func (a *Approvals) WithClock(now func() time.Time) *Approvals {
	a.now = now
	return a
}

// Approve validates a pending recommendation, submits its opening order and
// records a pending_fill trade.
func (a *Approvals) Approve(ctx context.Context, recID string) (*models.Trade, error) {
	rec, err := a.ledger.GetRecommendation(ctx, recID)
	if err != nil {
		return nil, err
	}
	if err := a.validator.ValidateRecommendation(rec, a.now()); err != nil {
		return nil, err
	}
	if err := a.breaker.Guard(ctx); err != nil {
		return nil, err
	}

	spread := recommendationSpread(rec)
	if err := a.validator.ValidateSpread(spread, a.now()); err != nil {
		return nil, err
	}
	if short, long, ok := a.quoteLegs(ctx, rec.Underlying, rec.Expiration, rec.ShortSymbol(), rec.LongSymbol()); ok {
		spread.Short, spread.Long = short, long
		if err := a.validator.ValidatePriceDrift(rec.Credit, spread.Credit()); err != nil {
			return nil, err
		}
	}

	// Claim the recommendation before submitting so a second approval cannot
	// place a duplicate order.
	claimed, err := a.ledger.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationPending, models.RecommendationApproved)
	if err != nil {
		return nil, fmt.Errorf("approve recommendation %s: %w", rec.ID, err)
	}
	if !claimed {
		return nil, apperrors.NewValidationError("status", rec.ID, "recommendation was already handled")
	}

	contracts := rec.SuggestedContracts
	if contracts <= 0 {
		contracts = 1
	}
	order, err := a.coord.SubmitOpen(ctx, spread, contracts, rec.Credit)
	if err != nil {
		if _, rerr := a.ledger.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationApproved, models.RecommendationPending); rerr != nil {
			a.logger.Error().Err(rerr).Str("recommendation_id", rec.ID).Msg("Failed to release recommendation")
		}
		return nil, err
	}

	trade := &models.Trade{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		Status:           models.TradePendingFill,
		Underlying:       rec.Underlying,
		SpreadType:       rec.SpreadType,
		ShortStrike:      rec.ShortStrike,
		LongStrike:       rec.LongStrike,
		Expiration:       rec.Expiration,
		EntryCredit:      rec.Credit,
		Contracts:        contracts,
		BrokerOrderID:    order.ID,
	}
	if err := a.ledger.SaveTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("save trade for order %s: %w", order.ID, err)
	}
	if _, err := a.ledger.UpdateRecommendationStatus(ctx, rec.ID, models.RecommendationApproved, models.RecommendationExecuted); err != nil {
		a.logger.Warn().Err(err).Str("recommendation_id", rec.ID).Msg("Failed to mark recommendation executed")
	}
	if err := a.breaker.Stats().RecordTrade(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to update trade count")
	}

	a.logger.Info().
		Str("recommendation_id", rec.ID).
		Str("trade_id", trade.ID).
		Str("order_id", order.ID).
		Int("contracts", contracts).
		Msg("Recommendation approved")

	if order.Status == models.OrderStatusFilled {
		if _, err := a.coord.ReconcileTrade(ctx, *trade); err != nil {
			a.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Immediate reconciliation failed")
		}
		return a.ledger.GetTrade(ctx, trade.ID)
	}
	return trade, nil
}

// Reject marks a pending recommendation rejected.
func (a *Approvals) Reject(ctx context.Context, recID string) error {
	ok, err := a.ledger.UpdateRecommendationStatus(ctx, recID, models.RecommendationPending, models.RecommendationRejected)
	if err != nil {
		return fmt.Errorf("reject recommendation %s: %w", recID, err)
	}
	if !ok {
		if _, err := a.ledger.GetRecommendation(ctx, recID); err != nil {
			return err
		}
		return apperrors.NewValidationError("status", recID, "recommendation is no longer pending")
	}
	a.logger.Info().Str("recommendation_id", recID).Msg("Recommendation rejected")
	return nil
}

// FollowFill monitors a pending trade's order through the price ladder,
// points the trade at any replacement order, then reconciles it.
func (a *Approvals) FollowFill(ctx context.Context, trade models.Trade) (*FillResult, ReconcileOutcome, error) {
	result, err := a.coord.MonitorOrderFill(ctx, trade.BrokerOrderID)
	if err != nil {
		return result, "", err
	}

	if result.OrderID != trade.BrokerOrderID {
		if _, err := a.ledger.UpdateTradeOrderID(ctx, trade.ID, result.OrderID); err != nil {
			return result, "", fmt.Errorf("update order id of trade %s: %w", trade.ID, err)
		}
		trade.BrokerOrderID = result.OrderID
	}
	if !result.Filled {
		a.coord.abandon(ctx, result)
	}

	outcome, err := a.coord.ReconcileTrade(ctx, trade)
	return result, outcome, err
}

// Close closes an open trade at the natural price to close.
func (a *Approvals) Close(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade, err := a.ledger.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status != models.TradeOpen {
		return nil, apperrors.NewValidationError("status", trade.Status,
			fmt.Sprintf("trade %s is %s, not open", trade.ID, trade.Status))
	}

	cost := trade.EntryCredit * closeFallbackPct
	if short, long, ok := a.quoteLegs(ctx, trade.Underlying, trade.Expiration, trade.ShortSymbol(), trade.LongSymbol()); ok {
		cost = short.Ask - long.Bid
	}

	closed, err := a.coord.CloseTrade(ctx, *trade, models.ExitManual, cost)
	if err != nil {
		return nil, err
	}
	if closed.ProfitLoss != nil && closed.ExitDebit != nil {
		a.coord.send(ctx, notify.ExitTriggered(closed, models.ExitManual, *closed.ExitDebit, *closed.ProfitLoss, true))
	}
	return closed, nil
}

// quoteLegs looks up both legs of a spread in a fresh chain.
func (a *Approvals) quoteLegs(ctx context.Context, underlying string, exp time.Time, shortSym, longSym string) (models.OptionContract, models.OptionContract, bool) {
	if a.chains == nil {
		return models.OptionContract{}, models.OptionContract{}, false
	}
	chain, err := a.chains.GetOptionsChain(ctx, underlying, exp, exp)
	if err != nil {
		a.logger.Warn().Err(err).Str("symbol", underlying).Msg("Could not quote spread legs")
		return models.OptionContract{}, models.OptionContract{}, false
	}
	short, okShort := chain.Find(shortSym)
	long, okLong := chain.Find(longSym)
	return short, long, okShort && okLong
}

// recommendationSpread rebuilds the spread legs from a recommendation. Quotes
// are filled in with the recommended credit split onto the short leg.
func recommendationSpread(rec *models.Recommendation) models.CreditSpread {
	typ := rec.SpreadType.OptionType()
	return models.CreditSpread{
		Underlying: rec.Underlying,
		Type:       rec.SpreadType,
		Expiration: rec.Expiration,
		Short: models.OptionContract{
			Symbol:     rec.ShortSymbol(),
			Underlying: rec.Underlying,
			Expiration: rec.Expiration,
			Strike:     rec.ShortStrike,
			Type:       typ,
			Bid:        rec.Credit,
			Ask:        rec.Credit,
		},
		Long: models.OptionContract{
			Symbol:     rec.LongSymbol(),
			Underlying: rec.Underlying,
			Expiration: rec.Expiration,
			Strike:     rec.LongStrike,
			Type:       typ,
		},
	}
}
