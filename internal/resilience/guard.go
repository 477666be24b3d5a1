package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"spread-trader/internal/broker"
	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/metrics"
	"spread-trader/internal/models"
)

// ErrorRecorder counts broker failures toward the API error-rate risk factor.
type ErrorRecorder interface {
	RecordAPIError(ctx context.Context) (int, error)
}

// GuardedBroker decorates a Broker with per-operation API breakers. Every
// failed call is recorded with the ErrorRecorder and in metrics.
type GuardedBroker struct {
	inner    broker.Broker
	registry *Registry
	recorder ErrorRecorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

var _ broker.Broker = (*GuardedBroker)(nil)

// NewGuardedBroker wraps inner. recorder and m may be nil.
func NewGuardedBroker(inner broker.Broker, registry *Registry, recorder ErrorRecorder, m *metrics.Metrics, logger zerolog.Logger) *GuardedBroker {
	return &GuardedBroker{
		inner:    inner,
		registry: registry,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

// Registry returns the breaker registry.
func (g *GuardedBroker) Registry() *Registry {
	return g.registry
}

func guarded[T any](ctx context.Context, g *GuardedBroker, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := Execute(ctx, g.registry.Get(op), fn)
	if err == nil || ctx.Err() != nil {
		return v, err
	}
	// Rejections by our own breaker and well-formed "no such order" or
	// validation answers never reached a misbehaving endpoint.
	if errors.Is(err, ErrCircuitOpen) || apperrors.Is(err, apperrors.ErrOrderNotFound) ||
		apperrors.Is(err, apperrors.ErrInvalidSpread) {
		return v, err
	}

	g.metrics.APIError(op)
	if g.recorder != nil {
		// Record with a detached context so a caller deadline cannot drop the count.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		count, rerr := g.recorder.RecordAPIError(rctx)
		cancel()
		if rerr != nil {
			g.logger.Error().Err(rerr).Msg("Failed to record API error")
		} else {
			g.logger.Warn().Err(err).Str("operation", op).Int("window_errors", count).Msg("Broker call failed")
		}
	}
	return v, err
}

// GetOptionsChain implements broker.ChainSource.
func (g *GuardedBroker) GetOptionsChain(ctx context.Context, underlying string, expFrom, expTo time.Time) (*models.OptionChain, error) {
	return guarded(ctx, g, "get_chain", func(ctx context.Context) (*models.OptionChain, error) {
		return g.inner.GetOptionsChain(ctx, underlying, expFrom, expTo)
	})
}

// PlaceSpreadOrder implements broker.OrderGateway.
func (g *GuardedBroker) PlaceSpreadOrder(ctx context.Context, req models.SpreadOrderRequest) (*models.Order, error) {
	return guarded(ctx, g, "place_order", func(ctx context.Context) (*models.Order, error) {
		return g.inner.PlaceSpreadOrder(ctx, req)
	})
}

// GetOrder implements broker.OrderGateway.
func (g *GuardedBroker) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return guarded(ctx, g, "get_order", func(ctx context.Context) (*models.Order, error) {
		return g.inner.GetOrder(ctx, orderID)
	})
}

// ReplaceOrder implements broker.OrderGateway.
func (g *GuardedBroker) ReplaceOrder(ctx context.Context, orderID string, limitPrice float64) (*models.Order, error) {
	return guarded(ctx, g, "replace_order", func(ctx context.Context) (*models.Order, error) {
		return g.inner.ReplaceOrder(ctx, orderID, limitPrice)
	})
}

// CancelOrder implements broker.OrderGateway.
func (g *GuardedBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := guarded(ctx, g, "cancel_order", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CancelOrder(ctx, orderID)
	})
	return err
}

// IsMarketOpen implements broker.MarketData.
func (g *GuardedBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	return guarded(ctx, g, "market_clock", g.inner.IsMarketOpen)
}

// GetVIX implements broker.MarketData.
func (g *GuardedBroker) GetVIX(ctx context.Context) (*float64, error) {
	return guarded(ctx, g, "get_vix", g.inner.GetVIX)
}

// GetAccount implements broker.MarketData.
func (g *GuardedBroker) GetAccount(ctx context.Context) (*models.Account, error) {
	return guarded(ctx, g, "get_account", g.inner.GetAccount)
}
