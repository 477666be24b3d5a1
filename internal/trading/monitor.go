package trading

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/internal/resilience"
)

// maxCreditLimit is the least aggressive limit a credit order may carry.
const maxCreditLimit = -0.01

// FillResult is the outcome of following an order to a fill.
type FillResult struct {
	// OrderID is the id of the last order followed. Replacements get new ids.
	OrderID      string        `json:"order_id"`
	Order        *models.Order `json:"order,omitempty"`
	InitialLimit float64       `json:"initial_limit"`
	Filled       bool          `json:"filled"`
	TimedOut     bool          `json:"timed_out"`
	Adjustments  int           `json:"adjustments"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Status returns the last observed order status.
func (r *FillResult) Status() models.OrderStatus {
	if r.Order == nil {
		return ""
	}
	return r.Order.Status
}

// FillPrice returns the absolute net fill price, or zero when unfilled.
func (r *FillResult) FillPrice() float64 {
	if !r.Filled || r.Order == nil {
		return 0
	}
	if r.Order.FilledAvgPrice != 0 {
		return math.Abs(r.Order.FilledAvgPrice)
	}
	return math.Abs(r.Order.LimitPrice)
}

// NextLimit moves a net-debit limit by step toward the natural side of the
// market, rounded to cents. Credit limits (negative) give up credit and never
// cross -0.01; debit limits (positive) pay more.
func NextLimit(limit, step float64) float64 {
	next, _ := decimal.NewFromFloat(limit).
		Add(decimal.NewFromFloat(math.Abs(step))).
		Round(2).
		Float64()
	if limit < 0 && next > maxCreditLimit {
		return maxCreditLimit
	}
	return next
}

// MonitorOrderFill polls an order until it fills, dies or the fill timeout
// elapses, repricing it along the configured ladder while it works.
//
// Timing out is not an error: the result reports TimedOut and the order is
// left working. Cancelling ctx stops the poll early and returns ctx.Err().
func (c *Coordinator) MonitorOrderFill(ctx context.Context, orderID string) (*FillResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FillTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	logger := logging.WithOrderID(c.logger, orderID)
	start := c.now()
	result := &FillResult{OrderID: orderID}
	step := 0

	for {
		order, err := c.gateway.GetOrder(ctx, result.OrderID)
		switch {
		case ctx.Err() != nil:
			return c.stopMonitor(ctx, result, start)
		case errors.Is(err, apperrors.ErrOrderNotFound):
			return result, err
		case err != nil:
			logger.Warn().Err(err).Str("order_id", result.OrderID).Msg("Order status poll failed")
		default:
			if result.Order == nil {
				result.InitialLimit = order.LimitPrice
			}
			result.Order = order
		}

		if order != nil {
			switch {
			case order.Status == models.OrderStatusFilled:
				return c.finishMonitor(result, start, true), nil
			case order.Status.IsDead():
				logger.Info().Str("status", string(order.Status)).Msg("Order ended without fill")
				return c.finishMonitor(result, start, false), nil
			case order.Status == models.OrderStatusReplaced:
				// Replaced outside this monitor; the new id is unknown here.
				logger.Warn().Str("order_id", result.OrderID).Msg("Order was replaced externally")
				return c.finishMonitor(result, start, false), nil
			}

			elapsed := c.now().Sub(start)
			for step < len(c.cfg.Ladder) && elapsed >= c.cfg.Ladder[step].After && result.Order.Status.IsWorking() {
				// A failed replace keeps the rung for the next poll.
				if err := c.reprice(ctx, result, c.cfg.Ladder[step]); err != nil {
					break
				}
				step++
				if result.Order.Status == models.OrderStatusFilled {
					return c.finishMonitor(result, start, true), nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return c.stopMonitor(ctx, result, start)
		case <-ticker.C:
		}
	}
}

// reprice replaces the working order one ladder rung closer to the market and
// follows the replacement's id. A limit already clamped at the floor is left
// alone and reported as done.
func (c *Coordinator) reprice(ctx context.Context, result *FillResult, rung PriceStep) error {
	current := result.Order
	limit := NextLimit(current.LimitPrice, rung.Step)
	if limit == current.LimitPrice {
		return nil
	}

	replaced, err := c.gateway.ReplaceOrder(ctx, result.OrderID, limit)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("order_id", result.OrderID).
			Float64("limit_price", limit).
			Msg("Order price adjustment failed")
		return err
	}

	c.logger.Info().
		Str("order_id", result.OrderID).
		Str("replacement_id", replaced.ID).
		Float64("old_limit", current.LimitPrice).
		Float64("new_limit", limit).
		Dur("after", rung.After).
		Msg("Order price adjusted")

	result.OrderID = replaced.ID
	result.Order = replaced
	result.Adjustments++
	c.metrics.OrderAdjusted()
	return nil
}

func (c *Coordinator) finishMonitor(result *FillResult, start time.Time, filled bool) *FillResult {
	result.Filled = filled
	result.Elapsed = c.now().Sub(start)
	if filled {
		logging.LogOrder(c.logger, result.OrderID, result.Order.Symbol, string(result.Order.Side), string(result.Order.Status))
	}
	c.recordFill(result)
	return result
}

// recordFill feeds the fill tracker. Orders never observed are skipped.
func (c *Coordinator) recordFill(result *FillResult) {
	if c.fills == nil || result.Order == nil {
		return
	}
	underlying := result.Order.Symbol
	if len(result.Order.Legs) > 0 {
		if occ, err := models.ParseOCCSymbol(result.Order.Legs[0].Symbol); err == nil {
			underlying = occ.Underlying
		}
	}
	c.fills.Record(resilience.FillQuality{
		OrderID:      result.OrderID,
		Underlying:   underlying,
		InitialLimit: result.InitialLimit,
		FinalLimit:   result.Order.LimitPrice,
		FillPrice:    result.FillPrice(),
		Adjustments:  result.Adjustments,
		Elapsed:      result.Elapsed,
		Filled:       result.Filled,
		TimedOut:     result.TimedOut,
		Timestamp:    c.now(),
	})
}

// stopMonitor handles the context ending: a fill timeout is a normal result,
// a caller cancellation is returned as an error.
func (c *Coordinator) stopMonitor(ctx context.Context, result *FillResult, start time.Time) (*FillResult, error) {
	result.Elapsed = c.now().Sub(start)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		c.metrics.OrderTimedOut()
		c.logger.Warn().
			Str("order_id", result.OrderID).
			Dur("elapsed", result.Elapsed).
			Int("adjustments", result.Adjustments).
			Msg("Order fill monitoring timed out")
		c.recordFill(result)
		return result, nil
	}
	return result, ctx.Err()
}
