package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spread-trader/internal/broker"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
)

// ExitEvent records an exit rule that fired during a monitor run.
type ExitEvent struct {
	TradeID   string            `json:"trade_id"`
	Reason    models.ExitReason `json:"reason"`
	Message   string            `json:"message"`
	CloseCost float64           `json:"close_cost"`
	Executed  bool              `json:"executed"`
	Error     string            `json:"error,omitempty"`
}

// MonitorResult summarises one position monitor run.
type MonitorResult struct {
	Skipped   string            `json:"skipped,omitempty"`
	Reconcile *ReconcileReport  `json:"reconcile,omitempty"`
	Checked   int               `json:"checked"`
	Positions []models.Position `json:"positions"`
	Exits     []ExitEvent       `json:"exits,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Heat      *risk.HeatReport  `json:"heat,omitempty"`
	RiskState *models.RiskState `json:"risk_state,omitempty"`
}

// Monitor revalues open trades and applies the exit rules.
type Monitor struct {
	broker    broker.Broker
	ledger    store.Ledger
	breaker   *risk.CircuitBreaker
	sizer     *risk.PositionSizer
	coord     *Coordinator
	exits     *ExitValidator
	metrics   *metrics.Metrics
	freshness *store.FreshnessTracker
	logger    zerolog.Logger
	now       func() time.Time
}

// NewMonitor creates a position monitor. m and freshness may be nil.
func NewMonitor(b broker.Broker, ledger store.Ledger, breaker *risk.CircuitBreaker, sizer *risk.PositionSizer,
	coord *Coordinator, exits *ExitValidator, m *metrics.Metrics, freshness *store.FreshnessTracker, logger zerolog.Logger) *Monitor {
	if freshness == nil {
		freshness = store.NewFreshnessTracker()
	}
	return &Monitor{
		broker:    b,
		ledger:    ledger,
		breaker:   breaker,
		sizer:     sizer,
		coord:     coord,
		exits:     exits,
		metrics:   m,
		freshness: freshness,
		logger:    logging.WithComponent(logger, "position_monitor"),
		now:       time.Now,
	}
}

// WithClock overrides the clock.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Run reconciles pending fills, marks every open trade to market and acts on
// triggered exits.
func (m *Monitor) Run(ctx context.Context) (*MonitorResult, error) {
	result := &MonitorResult{Errors: make(map[string]string)}

	allowed, err := m.breaker.IsTradingAllowed(ctx)
	if err != nil {
		return nil, fmt.Errorf("read breaker status: %w", err)
	}
	if !allowed {
		status, _ := m.breaker.Status(ctx)
		result.Skipped = "trading halted: " + status.Reason
		m.logger.Warn().Str("reason", status.Reason).Msg("Trading halted, skipping monitor")
		return result, nil
	}

	open, err := m.broker.IsMarketOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("check market clock: %w", err)
	}
	if !open {
		result.Skipped = "market closed"
		return result, nil
	}

	report, err := m.coord.Reconcile(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Reconciliation had failures")
	}
	result.Reconcile = report

	trades, err := m.ledger.ListTrades(ctx, store.TradeFilter{Status: models.TradeOpen})
	if err != nil {
		return nil, fmt.Errorf("list open trades: %w", err)
	}
	if len(trades) == 0 {
		m.logger.Debug().Msg("No open trades to monitor")
		return result, nil
	}

	account, err := m.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	vix, err := m.broker.GetVIX(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Could not fetch VIX")
		vix = nil
	}
	state, err := m.breaker.EvaluateAll(ctx, risk.Inputs{CurrentEquity: account.Equity, VIX: vix})
	if err != nil {
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}
	result.RiskState = &state
	m.metrics.ObserveRiskState(state)
	if state.IsHalted() {
		result.Skipped = "trading halted: " + state.Reason
		return result, nil
	}

	chains := make(map[string]*models.OptionChain)
	for _, trade := range trades {
		result.Checked++
		if err := m.checkTrade(ctx, trade, chains, result); err != nil {
			result.Errors[trade.ID] = err.Error()
			l := logging.WithTrade(m.logger, trade.ID)
			l.Error().Err(err).Msg("Error monitoring trade")
		}
	}

	positions, err := m.ledger.GetPositions(ctx)
	if err != nil {
		return result, fmt.Errorf("get positions: %w", err)
	}
	result.Positions = positions
	heat := m.sizer.PortfolioHeat(account.Equity, positions)
	result.Heat = &heat
	m.metrics.ObservePortfolio(len(positions), heat.HeatPercent)

	m.logger.Info().
		Int("checked", result.Checked).
		Int("exits", len(result.Exits)).
		Int("errors", len(result.Errors)).
		Msg("Position monitor complete")
	return result, nil
}

// checkTrade marks one trade and applies its exit rules. Chains are cached
// per underlying for the run.
func (m *Monitor) checkTrade(ctx context.Context, trade models.Trade, chains map[string]*models.OptionChain, result *MonitorResult) error {
	now := m.now()
	chain, ok := chains[trade.Underlying]
	if !ok {
		var err error
		chain, err = m.broker.GetOptionsChain(ctx, trade.Underlying, trade.Expiration, trade.Expiration)
		if err != nil {
			return fmt.Errorf("get chain: %w", err)
		}
		chains[trade.Underlying] = chain
		if !chain.Timestamp.IsZero() {
			m.freshness.Touch(trade.Underlying, chain.Timestamp)
		}
	}
	if !chain.Timestamp.IsZero() && m.breaker.EvaluateStaleness(chain.Timestamp, now).IsHalted() {
		return apperrors.NewDataStalenessError(trade.Underlying, now.Sub(chain.Timestamp), m.breaker.Config().StaleDataAfter)
	}

	short, okShort := chain.Find(trade.ShortSymbol())
	long, okLong := chain.Find(trade.LongSymbol())
	if !okShort || !okLong {
		// Legs of other expirations are not in a cached chain.
		fresh, err := m.broker.GetOptionsChain(ctx, trade.Underlying, trade.Expiration, trade.Expiration)
		if err != nil {
			return fmt.Errorf("get chain: %w", err)
		}
		short, okShort = fresh.Find(trade.ShortSymbol())
		long, okLong = fresh.Find(trade.LongSymbol())
		if !okShort || !okLong {
			return fmt.Errorf("contracts %s/%s not quoted: %w", trade.ShortSymbol(), trade.LongSymbol(), apperrors.ErrNotFound)
		}
	}

	closeCost := short.Mid() - long.Mid()
	multiplier := float64(trade.Contracts) * models.ContractMultiplier
	pos := &models.Position{
		ID:            uuid.NewString(),
		TradeID:       trade.ID,
		Underlying:    trade.Underlying,
		ShortStrike:   trade.ShortStrike,
		LongStrike:    trade.LongStrike,
		Expiration:    trade.Expiration,
		Contracts:     trade.Contracts,
		CloseCost:     closeCost,
		CurrentValue:  closeCost * multiplier,
		UnrealizedPnL: models.RealizedPnL(trade.EntryCredit, closeCost, trade.Contracts),
		UpdatedAt:     now,
	}
	if err := m.ledger.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	signal, err := m.exits.CheckTrade(trade, closeCost, now)
	if err != nil {
		return err
	}
	if signal == nil {
		return nil
	}

	event := ExitEvent{TradeID: trade.ID, Reason: signal.Reason, Message: signal.Message, CloseCost: closeCost}
	_, err = m.coord.AutoExit(ctx, trade, *signal, closeCost)
	switch {
	case err == nil:
		event.Executed = true
	case errors.Is(err, apperrors.ErrAutoExitDisabled):
	default:
		event.Error = err.Error()
	}
	result.Exits = append(result.Exits, event)
	l := logging.WithTrade(m.logger, trade.ID)
	l.Info().
		Str("reason", string(signal.Reason)).
		Bool("executed", event.Executed).
		Msg(signal.Message)
	return nil
}
