package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/internal/store"
)

// ManualTripReason is used when the halt flag is set without a reason.
const ManualTripReason = "Manually triggered"

// TripHook is called after the breaker transitions from running to halted.
type TripHook func(ctx context.Context, status models.CircuitBreakerStatus)

// Inputs are the account and market readings for one evaluation.
// Zero equity baselines are read from the stats book.
type Inputs struct {
	CurrentEquity     float64
	DailyStartEquity  float64
	WeeklyStartEquity float64
	PeakEquity        float64
	VIX               *float64
	LastQuote         *time.Time
}

// CircuitBreaker is the graduated, persisted trading halt.
//
// Only Trip and Reset write the halt flag. Trip uses compare-and-swap so
// overlapping evaluations record a single trip.
type CircuitBreaker struct {
	Evaluator
	kv     store.KV
	stats  *StatsBook
	logger zerolog.Logger
	now    func() time.Time
	onTrip []TripHook
}

// NewCircuitBreaker creates a breaker backed by kv.
func NewCircuitBreaker(cfg Config, kv store.KV, stats *StatsBook, logger zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		Evaluator: NewEvaluator(cfg),
		kv:        kv,
		stats:     stats,
		logger:    logging.WithComponent(logger, "circuit_breaker"),
		now:       time.Now,
	}
}

// WithClock overrides the clock.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// OnTrip registers a hook fired after a successful trip.
func (cb *CircuitBreaker) OnTrip(hook TripHook) {
	cb.onTrip = append(cb.onTrip, hook)
}

// Stats returns the accumulator book.
func (cb *CircuitBreaker) Stats() *StatsBook {
	return cb.stats
}

// Status returns the persisted halt flag.
func (cb *CircuitBreaker) Status(ctx context.Context) (models.CircuitBreakerStatus, error) {
	var status models.CircuitBreakerStatus
	if _, err := store.GetJSON(ctx, cb.kv, keyCircuitBreaker, &status); err != nil {
		return models.CircuitBreakerStatus{}, apperrors.Wrap(err, "failed to read circuit breaker")
	}
	return status, nil
}

// IsTradingAllowed reports whether the halt flag is clear.
func (cb *CircuitBreaker) IsTradingAllowed(ctx context.Context) (bool, error) {
	status, err := cb.Status(ctx)
	if err != nil {
		return false, err
	}
	return !status.Halted, nil
}

// Guard returns a RiskHaltError when trading is halted.
func (cb *CircuitBreaker) Guard(ctx context.Context) error {
	status, err := cb.Status(ctx)
	if err != nil {
		return err
	}
	if status.Halted {
		return apperrors.NewRiskHaltError(haltReason(status))
	}
	return nil
}

// Trip sets the halt flag. It reports false when the breaker was already halted,
// in which case the original reason is kept.
func (cb *CircuitBreaker) Trip(ctx context.Context, reason string) (bool, error) {
	if reason == "" {
		reason = ManualTripReason
	}
	now := cb.now()
	tripped := false

	status, err := store.UpdateJSON(ctx, cb.kv, keyCircuitBreaker, 0, func(s *models.CircuitBreakerStatus, _ bool) bool {
		if s.Halted {
			tripped = false
			return false
		}
		s.Halted = true
		s.Reason = reason
		s.TriggeredAt = &now
		tripped = true
		return true
	})
	if err != nil {
		return false, apperrors.Wrap(err, "failed to trip circuit breaker")
	}

	if tripped {
		cb.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped")
		for _, hook := range cb.onTrip {
			hook(ctx, status)
		}
	}
	return tripped, nil
}

// Reset clears the halt flag unconditionally.
func (cb *CircuitBreaker) Reset(ctx context.Context) error {
	if err := store.SetJSON(ctx, cb.kv, keyCircuitBreaker, models.CircuitBreakerStatus{}, 0); err != nil {
		return apperrors.Wrap(err, "failed to reset circuit breaker")
	}
	cb.logger.Info().Msg("Circuit breaker reset")
	return nil
}

// EvaluateAll runs every applicable factor and returns the most restrictive
// state. A halted result is persisted through Trip.
func (cb *CircuitBreaker) EvaluateAll(ctx context.Context, in Inputs) (models.RiskState, error) {
	status, err := cb.Status(ctx)
	if err != nil {
		return models.RiskState{}, err
	}
	if status.Halted {
		return models.HaltedRiskState(haltReason(status), 0), nil
	}

	if in.DailyStartEquity <= 0 {
		daily, err := cb.stats.Daily(ctx)
		if err != nil {
			return models.RiskState{}, err
		}
		in.DailyStartEquity = daily.StartingEquity
	}
	if in.WeeklyStartEquity <= 0 {
		weekly, err := cb.stats.Weekly(ctx)
		if err != nil {
			return models.RiskState{}, err
		}
		in.WeeklyStartEquity = weekly.StartingEquity
	}
	if in.PeakEquity <= 0 {
		peak, err := cb.stats.UpdatePeak(ctx, in.CurrentEquity)
		if err != nil {
			return models.RiskState{}, err
		}
		in.PeakEquity = peak
	}
	rapid, err := cb.stats.RapidLoss(ctx)
	if err != nil {
		return models.RiskState{}, err
	}
	apiErrors, err := cb.stats.APIErrorCount(ctx)
	if err != nil {
		return models.RiskState{}, err
	}

	states := []models.RiskState{
		cb.EvaluateDrawdown(in.PeakEquity, in.CurrentEquity),
		cb.EvaluateDailyRisk(in.DailyStartEquity, in.CurrentEquity),
		cb.EvaluateWeeklyRisk(in.WeeklyStartEquity, in.CurrentEquity),
		cb.EvaluateRapidLoss(rapid, in.CurrentEquity),
		cb.EvaluateAPIErrors(apiErrors),
	}
	if in.VIX != nil {
		states = append(states, cb.EvaluateVIX(*in.VIX))
	}
	if in.LastQuote != nil {
		states = append(states, cb.EvaluateStaleness(*in.LastQuote, cb.now()))
	}

	result := MostRestrictive(states...)
	if result.Level != models.RiskNormal {
		logging.LogRiskState(cb.logger, string(result.Level), result.SizeMultiplier, result.Reason)
	}
	if result.IsHalted() {
		if _, err := cb.Trip(ctx, result.Reason); err != nil {
			return result, err
		}
	}
	return result, nil
}

func haltReason(status models.CircuitBreakerStatus) string {
	if status.Reason == "" {
		return ManualTripReason
	}
	return status.Reason
}
