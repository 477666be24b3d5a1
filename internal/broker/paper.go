package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
	"spread-trader/pkg/utils"
)

// PaperBroker simulates order handling against live or injected quotes.
//
// A spread order fills at its limit as soon as the net mid price is at least
// as good as the limit: for the net-debit convention that is mid <= limit.
type PaperBroker struct {
	// Real broker for market data
	dataSource ChainSource
	vixSource  MarketData

	// Simulated state
	positions map[string]int // option symbol -> signed contracts
	orders    map[string]*models.Order
	cash      float64

	// Latest quote per option symbol, refreshed by every chain fetch
	quotes map[string]models.OptionContract
	chains map[string]*models.OptionChain

	vix        *float64
	alwaysOpen bool
	now        func() time.Time

	orderCounter int

	mu sync.RWMutex
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	// DataSource supplies chains; nil serves only chains injected with SetChain.
	DataSource ChainSource
	// VIXSource supplies the volatility index; nil serves the value set with SetVIX.
	VIXSource      MarketData
	InitialBalance float64
	// AlwaysOpen ignores the regular session clock.
	AlwaysOpen bool
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	initialBalance := cfg.InitialBalance
	if initialBalance == 0 {
		initialBalance = 100000
	}

	return &PaperBroker{
		dataSource: cfg.DataSource,
		vixSource:  cfg.VIXSource,
		positions:  make(map[string]int),
		orders:     make(map[string]*models.Order),
		cash:       initialBalance,
		quotes:     make(map[string]models.OptionContract),
		chains:     make(map[string]*models.OptionChain),
		alwaysOpen: cfg.AlwaysOpen,
		now:        time.Now,
	}
}

// WithClock overrides the clock.
func (p *PaperBroker) WithClock(now func() time.Time) *PaperBroker {
	p.now = now
	return p
}

// SetChain injects a chain and refreshes quotes for its contracts. Working
// orders are re-checked against the new quotes on the next GetOrder.
func (p *PaperBroker) SetChain(chain *models.OptionChain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeChain(chain)
}

func (p *PaperBroker) storeChain(chain *models.OptionChain) {
	p.chains[chain.Underlying] = chain
	for _, c := range chain.Contracts {
		p.quotes[c.Symbol] = c
	}
}

// SetVIX sets the simulated volatility index. Nil clears it.
func (p *PaperBroker) SetVIX(vix *float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vix = vix
}

// GetOptionsChain serves from the data source when configured, else from injected chains.
func (p *PaperBroker) GetOptionsChain(ctx context.Context, underlying string, expFrom, expTo time.Time) (*models.OptionChain, error) {
	if p.dataSource != nil {
		chain, err := p.dataSource.GetOptionsChain(ctx, underlying, expFrom, expTo)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.storeChain(chain)
		p.mu.Unlock()
		return chain, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	chain, ok := p.chains[underlying]
	if !ok {
		return nil, apperrors.NewBrokerError("get_chain", 404, "no chain for "+underlying, apperrors.ErrNotFound)
	}
	out := &models.OptionChain{
		Underlying:      chain.Underlying,
		UnderlyingPrice: chain.UnderlyingPrice,
		Timestamp:       chain.Timestamp,
	}
	from, to := expFrom.Format(models.DateLayout), expTo.Format(models.DateLayout)
	for _, c := range chain.Contracts {
		exp := c.Expiration.Format(models.DateLayout)
		if exp >= from && exp <= to {
			out.Contracts = append(out.Contracts, c)
		}
	}
	return out, nil
}

// IsMarketOpen uses the regular session clock unless configured always open.
func (p *PaperBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	if p.alwaysOpen {
		return true, nil
	}
	return utils.IsMarketOpenAt(p.now()), nil
}

// GetVIX returns the simulated or delegated volatility index.
func (p *PaperBroker) GetVIX(ctx context.Context) (*float64, error) {
	if p.vixSource != nil {
		return p.vixSource.GetVIX(ctx)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.vix == nil {
		return nil, nil
	}
	v := *p.vix
	return &v, nil
}

// GetAccount marks open option positions at mid.
func (p *PaperBroker) GetAccount(ctx context.Context) (*models.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var marked float64
	for symbol, qty := range p.positions {
		if q, ok := p.quotes[symbol]; ok {
			marked += float64(qty) * q.Mid() * models.ContractMultiplier
		}
	}
	equity := p.cash + marked
	return &models.Account{
		Equity:         equity,
		Cash:           p.cash,
		BuyingPower:    p.cash,
		PortfolioValue: equity,
		LastEquity:     equity,
		Timestamp:      p.now(),
	}, nil
}

// PlaceSpreadOrder simulates order placement.
func (p *PaperBroker) PlaceSpreadOrder(ctx context.Context, req models.SpreadOrderRequest) (*models.Order, error) {
	if req.Contracts <= 0 {
		return nil, apperrors.NewValidationError("contracts", req.Contracts, "must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	order := &models.Order{
		ID:         p.nextID(now),
		Type:       models.OrderTypeLimit,
		Qty:        req.Contracts,
		LimitPrice: utils.RoundCents(req.LimitPrice),
		Status:     models.OrderStatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
		Legs:       req.Legs(),
	}
	order.NormalizeSides()
	p.orders[order.ID] = order
	p.tryFill(order)

	cp := *order
	return &cp, nil
}

// GetOrder returns the order, filling it first if quotes now cross the limit.
func (p *PaperBroker) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	p.tryFill(order)
	cp := *order
	return &cp, nil
}

// ReplaceOrder marks the working order replaced and opens a new one at limitPrice.
func (p *PaperBroker) ReplaceOrder(ctx context.Context, orderID string, limitPrice float64) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	if !existing.Status.IsWorking() {
		return nil, apperrors.NewBrokerError("replace_order", 422,
			fmt.Sprintf("cannot replace order with status: %s", existing.Status), nil)
	}

	now := p.now()
	existing.Status = models.OrderStatusReplaced
	existing.UpdatedAt = now

	replacement := *existing
	replacement.ID = p.nextID(now)
	replacement.LimitPrice = utils.RoundCents(limitPrice)
	replacement.Status = models.OrderStatusNew
	replacement.CreatedAt = now
	replacement.UpdatedAt = now
	replacement.Legs = append([]models.OrderLeg(nil), existing.Legs...)
	p.orders[replacement.ID] = &replacement
	p.tryFill(&replacement)

	cp := replacement
	return &cp, nil
}

// CancelOrder simulates order cancellation.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}
	if !order.Status.IsWorking() {
		return apperrors.NewBrokerError("cancel_order", 422,
			fmt.Sprintf("cannot cancel order with status: %s", order.Status), nil)
	}
	order.Status = models.OrderStatusCanceled
	order.UpdatedAt = p.now()
	return nil
}

// Positions returns the simulated signed contract count per option symbol.
func (p *PaperBroker) Positions() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]int, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out
}

func (p *PaperBroker) nextID(now time.Time) string {
	p.orderCounter++
	return fmt.Sprintf("PAPER_%d_%d", now.Unix(), p.orderCounter)
}

// netMid returns the net debit at mid: sum of buys minus sum of sells.
func (p *PaperBroker) netMid(order *models.Order) (float64, bool) {
	var net float64
	for _, leg := range order.Legs {
		q, ok := p.quotes[leg.Symbol]
		if !ok || q.Bid <= 0 && q.Ask <= 0 {
			return 0, false
		}
		if leg.Side == models.OrderSideBuy {
			net += q.Mid()
		} else {
			net -= q.Mid()
		}
	}
	return net, true
}

// tryFill fills a working order at its limit when the net mid is no worse.
func (p *PaperBroker) tryFill(order *models.Order) {
	if !order.Status.IsWorking() {
		return
	}
	mid, ok := p.netMid(order)
	if !ok || utils.RoundCents(mid) > order.LimitPrice {
		return
	}

	order.Status = models.OrderStatusFilled
	order.FilledQty = order.Qty
	order.FilledAvgPrice = order.LimitPrice
	order.UpdatedAt = p.now()

	for i := range order.Legs {
		leg := &order.Legs[i]
		leg.FilledQty = order.Qty
		if q, ok := p.quotes[leg.Symbol]; ok {
			leg.FilledAvgPrice = q.Mid()
		}
		if leg.Side == models.OrderSideBuy {
			p.positions[leg.Symbol] += order.Qty
		} else {
			p.positions[leg.Symbol] -= order.Qty
		}
		if p.positions[leg.Symbol] == 0 {
			delete(p.positions, leg.Symbol)
		}
	}
	p.cash -= order.LimitPrice * float64(order.Qty) * models.ContractMultiplier
}
