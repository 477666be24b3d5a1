package models

import (
	"strings"
	"time"
)

// OrderStatus represents the broker-side lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusReplaced        OrderStatus = "replaced"
)

// IsTerminal reports whether no further fills can happen.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// IsDead reports whether the order ended without filling.
func (s OrderStatus) IsDead() bool {
	return s == OrderStatusCanceled || s == OrderStatusExpired || s == OrderStatusRejected
}

// IsWorking reports whether the order may still be repriced.
func (s OrderStatus) IsWorking() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// PositionIntent tells the broker whether a leg opens or closes exposure.
type PositionIntent string

const (
	BuyToOpen   PositionIntent = "buy_to_open"
	SellToOpen  PositionIntent = "sell_to_open"
	BuyToClose  PositionIntent = "buy_to_close"
	SellToClose PositionIntent = "sell_to_close"
)

// OrderLeg represents one leg of a multi-leg order.
type OrderLeg struct {
	Symbol         string         `json:"symbol"`
	Side           OrderSide      `json:"side"`
	Qty            int            `json:"qty"`
	RatioQty       int            `json:"ratio_qty"`
	PositionIntent PositionIntent `json:"position_intent,omitempty"`
	FilledQty      int            `json:"filled_qty"`
	FilledAvgPrice float64        `json:"filled_avg_price"`
}

// Order represents a broker order.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            int         `json:"qty"`
	LimitPrice     float64     `json:"limit_price"`
	Status         OrderStatus `json:"status"`
	FilledQty      int         `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Legs           []OrderLeg  `json:"legs,omitempty"`
}

// SpreadOrderRequest describes a two-leg multi-leg limit order.
//
// LimitPrice uses the net-debit convention: negative for credits received,
// positive for debits paid.
type SpreadOrderRequest struct {
	Underlying  string  `json:"underlying"`
	ShortSymbol string  `json:"short_symbol"`
	LongSymbol  string  `json:"long_symbol"`
	Contracts   int     `json:"contracts"`
	LimitPrice  float64 `json:"limit_price"`
	Closing     bool    `json:"closing"`
}

// Legs returns the order legs implied by the request.
func (r SpreadOrderRequest) Legs() []OrderLeg {
	if r.Closing {
		return []OrderLeg{
			{Symbol: r.ShortSymbol, Side: OrderSideBuy, Qty: r.Contracts, RatioQty: 1, PositionIntent: BuyToClose},
			{Symbol: r.LongSymbol, Side: OrderSideSell, Qty: r.Contracts, RatioQty: 1, PositionIntent: SellToClose},
		}
	}
	return []OrderLeg{
		{Symbol: r.ShortSymbol, Side: OrderSideSell, Qty: r.Contracts, RatioQty: 1, PositionIntent: SellToOpen},
		{Symbol: r.LongSymbol, Side: OrderSideBuy, Qty: r.Contracts, RatioQty: 1, PositionIntent: BuyToOpen},
	}
}

// NormalizeSides fills in missing or invalid sides on an order received from a broker.
// Leg 0 defaults to sell and later legs to buy; the order side follows leg 0.
func (o *Order) NormalizeSides() {
	for i := range o.Legs {
		o.Legs[i].Side = OrderSide(strings.ToLower(string(o.Legs[i].Side)))
		if o.Legs[i].Side.Valid() {
			continue
		}
		if i == 0 {
			o.Legs[i].Side = OrderSideSell
		} else {
			o.Legs[i].Side = OrderSideBuy
		}
	}
	o.Side = OrderSide(strings.ToLower(string(o.Side)))
	if o.Side.Valid() {
		return
	}
	if len(o.Legs) > 0 {
		o.Side = o.Legs[0].Side
		return
	}
	o.Side = OrderSideBuy
}
