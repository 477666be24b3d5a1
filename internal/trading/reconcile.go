package trading

import (
	"context"
	"errors"
	"fmt"
	"math"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/store"
)

// ReconcileOutcome is what reconciliation did with one pending trade.
type ReconcileOutcome string

const (
	OutcomeFilled   ReconcileOutcome = "filled"
	OutcomeExpired  ReconcileOutcome = "expired"
	OutcomePending  ReconcileOutcome = "pending"
	OutcomeMismatch ReconcileOutcome = "mismatch"
	// OutcomeSkipped means a concurrent reconciler already moved the trade.
	OutcomeSkipped ReconcileOutcome = "skipped"
)

// ReconcileReport counts reconciliation outcomes.
type ReconcileReport struct {
	Checked  int                         `json:"checked"`
	Outcomes map[ReconcileOutcome]int    `json:"outcomes"`
	Trades   map[string]ReconcileOutcome `json:"trades"`
}

// Count returns the number of trades with the given outcome.
func (r *ReconcileReport) Count(o ReconcileOutcome) int {
	return r.Outcomes[o]
}

// Reconcile checks every pending_fill trade against its broker order.
// Failures on one trade do not stop the others; they are joined into the
// returned error.
func (c *Coordinator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	trades, err := c.ledger.ListTrades(ctx, store.TradeFilter{Status: models.TradePendingFill})
	if err != nil {
		return nil, fmt.Errorf("list pending trades: %w", err)
	}

	report := &ReconcileReport{
		Outcomes: make(map[ReconcileOutcome]int),
		Trades:   make(map[string]ReconcileOutcome),
	}
	var errs []error
	for _, trade := range trades {
		report.Checked++
		outcome, err := c.ReconcileTrade(ctx, trade)
		if err != nil {
			errs = append(errs, fmt.Errorf("trade %s: %w", trade.ID, err))
			continue
		}
		report.Outcomes[outcome]++
		report.Trades[trade.ID] = outcome
	}

	if report.Checked > 0 {
		c.logger.Info().
			Int("checked", report.Checked).
			Int("filled", report.Count(OutcomeFilled)).
			Int("expired", report.Count(OutcomeExpired)).
			Int("pending", report.Count(OutcomePending)).
			Int("mismatch", report.Count(OutcomeMismatch)).
			Msg("Reconciled pending trades")
	}
	return report, errors.Join(errs...)
}

// ReconcileTrade applies the broker order state to one pending trade. Every
// transition is conditional on the trade still being pending, so repeating it
// is harmless.
func (c *Coordinator) ReconcileTrade(ctx context.Context, trade models.Trade) (ReconcileOutcome, error) {
	logger := logging.WithTrade(c.logger, trade.ID)

	if trade.BrokerOrderID == "" {
		logger.Error().Msg("Pending trade has no broker order id, marking expired")
		return c.expire(ctx, trade)
	}

	order, err := c.gateway.GetOrder(ctx, trade.BrokerOrderID)
	if errors.Is(err, apperrors.ErrOrderNotFound) {
		c.mismatch(ctx, trade, "not_found")
		return OutcomeMismatch, nil
	}
	if err != nil {
		return "", fmt.Errorf("get order %s: %w", trade.BrokerOrderID, err)
	}

	switch {
	case order.Status == models.OrderStatusFilled:
		return c.activate(ctx, trade, order)
	case order.Status.IsDead():
		logger.Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("Order ended without fill")
		return c.expire(ctx, trade)
	case order.Status == models.OrderStatusReplaced:
		c.mismatch(ctx, trade, string(order.Status))
		return OutcomeMismatch, nil
	}
	return OutcomePending, nil
}

func (c *Coordinator) activate(ctx context.Context, trade models.Trade, order *models.Order) (ReconcileOutcome, error) {
	fillCredit := math.Abs(order.FilledAvgPrice)
	ok, err := c.ledger.ActivateTrade(ctx, trade.ID, c.now(), fillCredit)
	if err != nil {
		return "", fmt.Errorf("activate trade: %w", err)
	}
	if !ok {
		return OutcomeSkipped, nil
	}

	trade.Status = models.TradeOpen
	if fillCredit > 0 {
		trade.EntryCredit = fillCredit
	}
	c.metrics.OrderFilled("open")
	logging.LogOrder(logging.WithTrade(c.logger, trade.ID), order.ID, trade.Underlying, string(order.Side), string(order.Status))
	c.send(ctx, notify.OrderFilled(&trade, trade.EntryCredit))
	return OutcomeFilled, nil
}

func (c *Coordinator) expire(ctx context.Context, trade models.Trade) (ReconcileOutcome, error) {
	ok, err := c.ledger.UpdateTradeStatus(ctx, trade.ID, models.TradePendingFill, models.TradeExpired)
	if err != nil {
		return "", fmt.Errorf("expire trade: %w", err)
	}
	if err := c.ledger.DeletePositionByTrade(ctx, trade.ID); err != nil {
		return "", fmt.Errorf("delete position: %w", err)
	}
	if !ok {
		return OutcomeSkipped, nil
	}
	return OutcomeExpired, nil
}

// mismatch raises an alert and leaves the trade untouched.
func (c *Coordinator) mismatch(ctx context.Context, trade models.Trade, brokerState string) {
	err := apperrors.NewReconciliationMismatch(trade.ID, trade.BrokerOrderID, string(trade.Status), brokerState)
	c.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Reconciliation mismatch")
	c.send(ctx, notify.ReconciliationMismatch(trade.ID, trade.BrokerOrderID, string(trade.Status), brokerState))
}
