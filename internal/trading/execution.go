package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/broker"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/resilience"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
	"spread-trader/pkg/utils"
)

// minCloseDebit is the smallest limit a broker accepts for a closing debit.
const minCloseDebit = 0.01

// Coordinator drives the order lifecycle of a trade:
// pending_fill -> open -> closed, or pending_fill -> expired.
type Coordinator struct {
	gateway  broker.OrderGateway
	ledger   store.Ledger
	stats    *risk.StatsBook
	notifier notify.Notifier
	metrics  *metrics.Metrics
	fills    *resilience.FillTracker
	cfg      ExecutionConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCoordinator creates an execution coordinator. stats, notifier and m may be nil.
func NewCoordinator(gateway broker.OrderGateway, ledger store.Ledger, stats *risk.StatsBook,
	notifier notify.Notifier, m *metrics.Metrics, cfg ExecutionConfig, logger zerolog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Coordinator{
		gateway:  gateway,
		ledger:   ledger,
		stats:    stats,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "execution"),
		now:      time.Now,
	}
}

// WithClock overrides the clock.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// WithFillTracker records every followed order's fill quality in t.
func (c *Coordinator) WithFillTracker(t *resilience.FillTracker) *Coordinator {
	c.fills = t
	return c
}

// Config returns the execution settings.
func (c *Coordinator) Config() ExecutionConfig {
	return c.cfg
}

// SubmitOpen places the opening order for a spread at a net credit.
func (c *Coordinator) SubmitOpen(ctx context.Context, spread models.CreditSpread, contracts int, credit float64) (*models.Order, error) {
	if contracts <= 0 {
		return nil, apperrors.NewValidationError("contracts", contracts, "must be positive")
	}
	if credit <= 0 {
		return nil, apperrors.NewValidationError("credit", credit, "credit must be positive")
	}
	if !spread.StrikesOrdered() {
		return nil, apperrors.NewValidationError("strikes", spread.String(),
			fmt.Sprintf("strikes are inverted for a %s", spread.Type))
	}

	req := broker.OpenSpreadRequest(spread, contracts, credit)
	order, err := c.gateway.PlaceSpreadOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place opening order for %s: %w", spread, err)
	}
	c.metrics.OrderPlaced("open")
	logging.LogSpreadOrder(c.logger, order.ID, req.Underlying, req.ShortSymbol, req.LongSymbol, req.Contracts, req.LimitPrice)
	return order, nil
}

// SubmitClose places the closing order for an open trade at a net debit.
func (c *Coordinator) SubmitClose(ctx context.Context, trade models.Trade, debit float64) (*models.Order, error) {
	if trade.Status != models.TradeOpen {
		return nil, apperrors.NewValidationError("status", trade.Status,
			fmt.Sprintf("trade %s is %s, not open", trade.ID, trade.Status))
	}
	if debit < 0 || math.IsNaN(debit) {
		return nil, apperrors.NewValidationError("debit", debit, "closing debit cannot be negative")
	}
	debit = math.Max(debit, minCloseDebit)

	req := broker.CloseSpreadRequest(trade.Underlying, trade.ShortSymbol(), trade.LongSymbol(), trade.Contracts, debit)
	order, err := c.gateway.PlaceSpreadOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place closing order for trade %s: %w", trade.ID, err)
	}
	c.metrics.OrderPlaced("close")
	logging.LogSpreadOrder(logging.WithTrade(c.logger, trade.ID), order.ID, req.Underlying,
		req.ShortSymbol, req.LongSymbol, req.Contracts, req.LimitPrice)
	return order, nil
}

// CloseTrade submits the closing order, follows it to a fill and records the
// exit. A trade another caller already closed is returned unchanged.
func (c *Coordinator) CloseTrade(ctx context.Context, trade models.Trade, reason models.ExitReason, debit float64) (*models.Trade, error) {
	order, err := c.SubmitClose(ctx, trade, debit)
	if err != nil {
		return nil, err
	}

	result, err := c.MonitorOrderFill(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("monitor closing order %s: %w", order.ID, err)
	}
	if !result.Filled {
		c.abandon(ctx, result)
		return nil, apperrors.Wrapf(apperrors.ErrTimeout, "closing order for trade %s not filled (status %s)",
			trade.ID, result.Status())
	}
	c.metrics.OrderFilled("close")

	exitDebit := result.FillPrice()
	if exitDebit == 0 {
		exitDebit = math.Max(debit, minCloseDebit)
	}
	pnl := utils.RoundCents(models.RealizedPnL(trade.EntryCredit, exitDebit, trade.Contracts))
	closedAt := c.now()

	ok, err := c.ledger.CloseTrade(ctx, trade.ID, store.TradeClose{
		ExitDebit:  exitDebit,
		ProfitLoss: pnl,
		Reason:     reason,
		ClosedAt:   closedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record close of trade %s: %w", trade.ID, err)
	}
	if !ok {
		c.logger.Warn().Str("trade_id", trade.ID).Msg("Trade was no longer open when close was recorded")
		return c.ledger.GetTrade(ctx, trade.ID)
	}

	if err := c.ledger.DeletePositionByTrade(ctx, trade.ID); err != nil {
		c.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Failed to delete position snapshot")
	}
	if c.stats != nil {
		if _, err := c.stats.RecordPnL(ctx, pnl); err != nil {
			c.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Failed to record realized P/L")
		}
	}
	logging.LogTradeClosed(c.logger, trade.ID, trade.Underlying, string(reason), exitDebit, pnl)

	closed := trade
	closed.Status = models.TradeClosed
	closed.ExitDebit = &exitDebit
	closed.ProfitLoss = &pnl
	closed.ClosedAt = &closedAt
	closed.ExitReason = reason
	return &closed, nil
}

// AutoExit closes a trade whose exit rule triggered, at the current mid cost
// to close. With auto exit disabled it only raises an alert and returns
// ErrAutoExitDisabled.
func (c *Coordinator) AutoExit(ctx context.Context, trade models.Trade, signal ExitSignal, closeCost float64) (*models.Trade, error) {
	c.metrics.ExitTriggered(signal.Reason)
	unrealized := models.RealizedPnL(trade.EntryCredit, closeCost, trade.Contracts)

	if !c.cfg.AutoExit {
		c.send(ctx, notify.ExitTriggered(&trade, signal.Reason, closeCost, unrealized, false))
		return nil, apperrors.Wrapf(apperrors.ErrAutoExitDisabled, "trade %s: %s", trade.ID, signal.Message)
	}

	c.logger.Info().
		Str("trade_id", trade.ID).
		Str("reason", string(signal.Reason)).
		Float64("close_cost", closeCost).
		Msg(signal.Message)

	closed, err := c.CloseTrade(ctx, trade, signal.Reason, closeCost)
	if err != nil {
		c.send(ctx, notify.Error(err, "auto exit "+trade.ID))
		return nil, err
	}
	c.send(ctx, notify.ExitTriggered(closed, signal.Reason, *closed.ExitDebit, *closed.ProfitLoss, true))
	return closed, nil
}

// abandon cancels an order left working after monitoring gave up.
func (c *Coordinator) abandon(ctx context.Context, result *FillResult) {
	if !c.cfg.CancelOnTimeout || result.Order == nil || !result.Order.Status.IsWorking() {
		return
	}
	if err := c.gateway.CancelOrder(ctx, result.OrderID); err != nil {
		c.logger.Warn().Err(err).Str("order_id", result.OrderID).Msg("Failed to cancel unfilled order")
		return
	}
	c.logger.Info().Str("order_id", result.OrderID).Msg("Cancelled unfilled order")
}

func (c *Coordinator) send(ctx context.Context, n notify.Notification) {
	if err := c.notifier.Send(ctx, n); err != nil {
		c.logger.Warn().Err(err).Str("type", string(n.Type)).Msg("Notification failed")
	}
}
