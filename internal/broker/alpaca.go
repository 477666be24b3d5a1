package broker

import (
	"context"
	"net/http"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/pkg/utils"
)

const (
	alpacaPaperURL = "https://paper-api.alpaca.markets"
	alpacaLiveURL  = "https://api.alpaca.markets"

	barBatchSize       = 100
	contractPageLimit  = 1000
	volumeLookbackDays = 7
)

// vixSymbols are tried in order when looking up the volatility index.
var vixSymbols = []string{"$VIX.X", "VIX", "VIXY"}

// AlpacaConfig holds configuration for the Alpaca broker.
type AlpacaConfig struct {
	APIKey    string
	SecretKey string
	Paper     bool

	// Overrides for the trading and data hosts; empty uses the defaults.
	TradingURL string
	DataURL    string

	// OptionFeed is "indicative" or "opra"; empty lets the API pick.
	OptionFeed string

	Timeout time.Duration
	Retry   utils.RetryConfig
}

// AlpacaBroker implements Broker on top of the Alpaca SDK trading and
// market data clients.
type AlpacaBroker struct {
	trading *alpaca.Client
	data    *marketdata.Client
	cfg     AlpacaConfig
	logger  zerolog.Logger
}

// NewAlpacaBroker creates a new Alpaca broker.
func NewAlpacaBroker(cfg AlpacaConfig, logger zerolog.Logger) *AlpacaBroker {
	tradingURL := cfg.TradingURL
	if tradingURL == "" {
		tradingURL = alpacaLiveURL
		if cfg.Paper {
			tradingURL = alpacaPaperURL
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	httpClient := &http.Client{Timeout: timeout}

	// The SDK's own 429 retry is kept to a single extra attempt; backoff
	// for everything else happens in call.
	return &AlpacaBroker{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.SecretKey,
			BaseURL:    tradingURL,
			RetryLimit: 1,
			RetryDelay: cfg.Retry.InitialDelay,
			HTTPClient: httpClient,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.SecretKey,
			BaseURL:    cfg.DataURL,
			RetryLimit: 1,
			RetryDelay: cfg.Retry.InitialDelay,
			HTTPClient: httpClient,
		}),
		cfg:    cfg,
		logger: logging.WithComponent(logger, "alpaca"),
	}
}

// ============================================================================
// Transport
// ============================================================================

// call runs one SDK request. Reads are retried on transient failures;
// order mutations are sent exactly once.
func call[T any](ctx context.Context, a *AlpacaBroker, op, method string, fn func() (T, error)) (T, error) {
	retry := a.cfg.Retry
	if method != http.MethodGet {
		retry.MaxAttempts = 1
	}
	retry.Retryable = func(err error) bool {
		var be *apperrors.BrokerError
		return apperrors.As(err, &be) && be.Retryable()
	}

	start := time.Now()
	out, err := utils.RetryWithResult(ctx, retry, func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := fn()
		if err != nil {
			return zero, brokerError(op, err)
		}
		return res, nil
	})
	logging.LogAPICall(a.logger, method, op, time.Since(start), err)
	return out, err
}

// brokerError maps SDK failures onto BrokerError. Errors without an HTTP
// status are transport failures and stay retryable.
func brokerError(op string, err error) error {
	var apiErr *alpaca.APIError
	if !apperrors.As(err, &apiErr) {
		return apperrors.NewBrokerError(op, 0, "transport failure", err)
	}
	var cause error = apiErr
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		cause = apperrors.ErrNotFound
	case http.StatusTooManyRequests:
		cause = apperrors.ErrRateLimited
	}
	return apperrors.NewBrokerError(op, apiErr.StatusCode, apiErr.Message, cause)
}

// ============================================================================
// Account & clock
// ============================================================================

// GetAccount returns the account snapshot.
func (a *AlpacaBroker) GetAccount(ctx context.Context) (*models.Account, error) {
	acct, err := call(ctx, a, "get_account", http.MethodGet, a.trading.GetAccount)
	if err != nil {
		return nil, err
	}
	return &models.Account{
		Equity:         acct.Equity.InexactFloat64(),
		Cash:           acct.Cash.InexactFloat64(),
		BuyingPower:    acct.BuyingPower.InexactFloat64(),
		PortfolioValue: acct.PortfolioValue.InexactFloat64(),
		LastEquity:     acct.LastEquity.InexactFloat64(),
		Timestamp:      time.Now(),
	}, nil
}

// IsMarketOpen asks the broker clock whether the regular session is open.
func (a *AlpacaBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	clock, err := call(ctx, a, "get_clock", http.MethodGet, a.trading.GetClock)
	if err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

func quotePrice(bid, ask float64) float64 {
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case ask > 0:
		return ask
	}
	return bid
}

func (a *AlpacaBroker) latestQuote(ctx context.Context, symbol string) (float64, error) {
	q, err := call(ctx, a, "latest_quote", http.MethodGet, func() (*marketdata.Quote, error) {
		return a.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	})
	if err != nil {
		return 0, err
	}
	if q == nil {
		return 0, apperrors.NewBrokerError("latest_quote", http.StatusNotFound, "no quote for "+symbol, apperrors.ErrNotFound)
	}
	return quotePrice(q.BidPrice, q.AskPrice), nil
}

// GetVIX returns the volatility index. When no index quote is available it
// falls back to 100x the mean implied volatility of near-the-money SPY
// contracts, and to nil when that is unavailable too.
func (a *AlpacaBroker) GetVIX(ctx context.Context) (*float64, error) {
	for _, symbol := range vixSymbols {
		p, err := a.latestQuote(ctx, symbol)
		if err != nil {
			continue
		}
		if p > 0 {
			return &p, nil
		}
	}

	now := time.Now()
	chain, err := a.GetOptionsChain(ctx, "SPY", now.AddDate(0, 0, 25), now.AddDate(0, 0, 50))
	if err != nil {
		a.logger.Warn().Err(err).Msg("VIX proxy unavailable")
		return nil, nil
	}
	if proxy, ok := ATMImpliedVol(chain, 0.02); ok {
		vix := proxy * 100
		return &vix, nil
	}
	return nil, nil
}

// ============================================================================
// Option chains
// ============================================================================

// GetOptionsChain joins three sources: snapshots for quotes and greeks,
// the contracts listing for open interest, and daily bars for volume.
func (a *AlpacaBroker) GetOptionsChain(ctx context.Context, underlying string, expFrom, expTo time.Time) (*models.OptionChain, error) {
	from, to := civil.DateOf(expFrom), civil.DateOf(expTo)

	snapshots, err := call(ctx, a, "option_snapshots", http.MethodGet, func() (map[string]marketdata.OptionSnapshot, error) {
		return a.data.GetOptionChain(underlying, marketdata.GetOptionChainRequest{
			Feed:              a.cfg.OptionFeed,
			ExpirationDateGte: from,
			ExpirationDateLte: to,
		})
	})
	if err != nil {
		return nil, err
	}

	contracts, err := call(ctx, a, "option_contracts", http.MethodGet, func() ([]alpaca.OptionContract, error) {
		return a.trading.GetOptionContracts(alpaca.GetOptionContractsRequest{
			UnderlyingSymbols: underlying,
			Status:            alpaca.OptionStatusActive,
			ExpirationDateGTE: from,
			ExpirationDateLTE: to,
			PageLimit:         contractPageLimit,
		})
	})
	if err != nil {
		return nil, err
	}
	openInterest := make(map[string]int64, len(contracts))
	for _, c := range contracts {
		if c.OpenInterest != nil {
			openInterest[c.Symbol] = c.OpenInterest.IntPart()
		}
	}

	symbols := make([]string, 0, len(snapshots))
	for symbol := range snapshots {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	volumes, err := a.dailyVolumes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	chain := &models.OptionChain{
		Underlying: underlying,
		Timestamp:  time.Now(),
	}
	for _, symbol := range symbols {
		if oc, ok := parseSnapshot(symbol, snapshots[symbol]); ok {
			oc.OpenInterest = openInterest[symbol]
			oc.Volume = volumes[symbol]
			chain.Contracts = append(chain.Contracts, oc)
		}
	}

	price, err := a.latestQuote(ctx, underlying)
	if err != nil {
		return nil, err
	}
	chain.UnderlyingPrice = price
	return chain, nil
}

// dailyVolumes returns the most recent daily bar volume per symbol.
func (a *AlpacaBroker) dailyVolumes(ctx context.Context, symbols []string) (map[string]int64, error) {
	volumes := make(map[string]int64, len(symbols))
	start := time.Now().AddDate(0, 0, -volumeLookbackDays)
	for lo := 0; lo < len(symbols); lo += barBatchSize {
		hi := lo + barBatchSize
		if hi > len(symbols) {
			hi = len(symbols)
		}
		batch := symbols[lo:hi]
		bars, err := call(ctx, a, "option_bars", http.MethodGet, func() (map[string][]marketdata.OptionBar, error) {
			return a.data.GetMultiOptionBars(batch, marketdata.GetOptionBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     start,
			})
		})
		if err != nil {
			return nil, err
		}
		for symbol, series := range bars {
			if len(series) > 0 {
				volumes[symbol] = int64(series[len(series)-1].Volume)
			}
		}
	}
	return volumes, nil
}

func parseSnapshot(symbol string, snap marketdata.OptionSnapshot) (models.OptionContract, bool) {
	parts, err := models.ParseOCCSymbol(symbol)
	if err != nil {
		return models.OptionContract{}, false
	}
	oc := models.OptionContract{
		Symbol:     symbol,
		Underlying: parts.Underlying,
		Expiration: parts.Expiration,
		Strike:     parts.Strike,
		Type:       parts.Type,
	}
	if q := snap.LatestQuote; q != nil {
		oc.Bid = q.BidPrice
		oc.Ask = q.AskPrice
	}
	if t := snap.LatestTrade; t != nil {
		oc.Last = t.Price
	}
	if g := snap.Greeks; g != nil {
		delta := g.Delta
		oc.Delta = &delta
	}
	if snap.ImpliedVolatility > 0 {
		iv := snap.ImpliedVolatility
		oc.IV = &iv
	}
	return oc, true
}

// ATMImpliedVol averages the implied volatility of contracts whose strike is
// within band (as a fraction of spot) of the underlying price.
func ATMImpliedVol(chain *models.OptionChain, band float64) (float64, bool) {
	if chain == nil || chain.UnderlyingPrice <= 0 {
		return 0, false
	}
	var sum float64
	var n int
	for _, c := range chain.Contracts {
		if c.IV == nil || *c.IV <= 0 {
			continue
		}
		diff := c.Strike - chain.UnderlyingPrice
		if diff < 0 {
			diff = -diff
		}
		if diff < chain.UnderlyingPrice*band {
			sum += *c.IV
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// ============================================================================
// Orders
// ============================================================================

func decInt(d *decimal.Decimal) int {
	if d == nil {
		return 0
	}
	return int(d.IntPart())
}

func decFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

// toOrder converts an SDK order and repairs missing sides.
func toOrder(o *alpaca.Order) *models.Order {
	order := &models.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           models.OrderSide(o.Side),
		Type:           models.OrderType(o.Type),
		Qty:            decInt(o.Qty),
		LimitPrice:     decFloat(o.LimitPrice),
		Status:         models.OrderStatus(o.Status),
		FilledQty:      int(o.FilledQty.IntPart()),
		FilledAvgPrice: decFloat(o.FilledAvgPrice),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, l := range o.Legs {
		order.Legs = append(order.Legs, models.OrderLeg{
			Symbol:         l.Symbol,
			Side:           models.OrderSide(l.Side),
			Qty:            decInt(l.Qty),
			PositionIntent: models.PositionIntent(l.PositionIntent),
			FilledQty:      int(l.FilledQty.IntPart()),
			FilledAvgPrice: decFloat(l.FilledAvgPrice),
		})
	}
	order.NormalizeSides()
	return order
}

func limitDecimal(price float64) *decimal.Decimal {
	d := decimal.NewFromFloat(price).Round(2)
	return &d
}

// PlaceSpreadOrder submits a multi-leg day limit order.
func (a *AlpacaBroker) PlaceSpreadOrder(ctx context.Context, req models.SpreadOrderRequest) (*models.Order, error) {
	if req.Contracts <= 0 {
		return nil, apperrors.NewValidationError("contracts", req.Contracts, "must be positive")
	}

	qty := decimal.NewFromInt(int64(req.Contracts))
	body := alpaca.PlaceOrderRequest{
		OrderClass:  alpaca.MLeg,
		Qty:         &qty,
		Type:        alpaca.Limit,
		TimeInForce: alpaca.Day,
		LimitPrice:  limitDecimal(req.LimitPrice),
	}
	for _, leg := range req.Legs() {
		body.Legs = append(body.Legs, alpaca.Leg{
			Symbol:         leg.Symbol,
			Side:           alpaca.Side(leg.Side),
			RatioQty:       decimal.NewFromInt(int64(leg.RatioQty)),
			PositionIntent: alpaca.PositionIntent(leg.PositionIntent),
		})
	}

	resp, err := call(ctx, a, "place_order", http.MethodPost, func() (*alpaca.Order, error) {
		return a.trading.PlaceOrder(body)
	})
	if err != nil {
		return nil, err
	}
	order := toOrder(resp)
	logging.LogSpreadOrder(a.logger, order.ID, req.Underlying, req.ShortSymbol, req.LongSymbol, req.Contracts, req.LimitPrice)
	return order, nil
}

// GetOrder fetches an order by id.
func (a *AlpacaBroker) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	resp, err := call(ctx, a, "get_order", http.MethodGet, func() (*alpaca.Order, error) {
		return a.trading.GetOrder(orderID)
	})
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return toOrder(resp), nil
}

// ReplaceOrder reprices a working order. Alpaca returns the replacement,
// which carries a new id.
func (a *AlpacaBroker) ReplaceOrder(ctx context.Context, orderID string, limitPrice float64) (*models.Order, error) {
	resp, err := call(ctx, a, "replace_order", http.MethodPatch, func() (*alpaca.Order, error) {
		return a.trading.ReplaceOrder(orderID, alpaca.ReplaceOrderRequest{LimitPrice: limitDecimal(limitPrice)})
	})
	if err != nil {
		return nil, err
	}
	return toOrder(resp), nil
}

// CancelOrder cancels a working order.
func (a *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := call(ctx, a, "cancel_order", http.MethodDelete, func() (struct{}, error) {
		return struct{}{}, a.trading.CancelOrder(orderID)
	})
	return err
}
