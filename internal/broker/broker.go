// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"math"
	"time"

	"spread-trader/internal/models"
	"spread-trader/pkg/utils"
)

// ChainSource supplies option chains.
type ChainSource interface {
	// GetOptionsChain returns every active contract for underlying expiring
	// between expFrom and expTo inclusive, plus the underlying price.
	GetOptionsChain(ctx context.Context, underlying string, expFrom, expTo time.Time) (*models.OptionChain, error)
}

// OrderGateway places and manages multi-leg orders.
type OrderGateway interface {
	PlaceSpreadOrder(ctx context.Context, req models.SpreadOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	// ReplaceOrder reprices a working order. The broker may assign the
	// replacement a new order id.
	ReplaceOrder(ctx context.Context, orderID string, limitPrice float64) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketData provides the market clock, the volatility index and the account.
type MarketData interface {
	IsMarketOpen(ctx context.Context) (bool, error)
	// GetVIX returns nil when no volatility index reading is available.
	GetVIX(ctx context.Context) (*float64, error)
	GetAccount(ctx context.Context) (*models.Account, error)
}

// Broker is the full collaborator set used by the trading engine.
type Broker interface {
	ChainSource
	OrderGateway
	MarketData
}

// OpenSpreadRequest builds the opening order for a credit spread. The net
// limit price is the negated credit, rounded to cents.
func OpenSpreadRequest(spread models.CreditSpread, contracts int, credit float64) models.SpreadOrderRequest {
	return models.SpreadOrderRequest{
		Underlying:  spread.Underlying,
		ShortSymbol: spread.Short.Symbol,
		LongSymbol:  spread.Long.Symbol,
		Contracts:   contracts,
		LimitPrice:  -utils.RoundCents(math.Abs(credit)),
	}
}

// CloseSpreadRequest builds the closing order for an open spread: buy back
// the short leg, sell the long leg, for a positive net debit.
func CloseSpreadRequest(underlying, shortSymbol, longSymbol string, contracts int, debit float64) models.SpreadOrderRequest {
	return models.SpreadOrderRequest{
		Underlying:  underlying,
		ShortSymbol: shortSymbol,
		LongSymbol:  longSymbol,
		Contracts:   contracts,
		LimitPrice:  utils.RoundCents(math.Abs(debit)),
		Closing:     true,
	}
}
