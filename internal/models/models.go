// Package models provides domain models for the credit spread trading engine.
package models

import (
	"time"
)

// ContractMultiplier is the number of shares controlled by one equity option contract.
const ContractMultiplier = 100

// OptionType represents the right conveyed by an option contract.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Valid reports whether the option type is known.
func (t OptionType) Valid() bool {
	return t == OptionCall || t == OptionPut
}

// OrderSide represents the side of an order or order leg.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is buy or sell.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the pricing type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Account is the broker account snapshot used by sizing and risk checks.
type Account struct {
	Equity         float64   `json:"equity"`
	Cash           float64   `json:"cash"`
	BuyingPower    float64   `json:"buying_power"`
	PortfolioValue float64   `json:"portfolio_value"`
	LastEquity     float64   `json:"last_equity"`
	Timestamp      time.Time `json:"timestamp"`
}

// DailyPerformance is the persisted end-of-day summary row.
type DailyPerformance struct {
	Date            string  `json:"date"`
	StartingBalance float64 `json:"starting_balance"`
	EndingBalance   float64 `json:"ending_balance"`
	RealizedPnL     float64 `json:"realized_pnl"`
	TradesOpened    int     `json:"trades_opened"`
	TradesClosed    int     `json:"trades_closed"`
	WinCount        int     `json:"win_count"`
	LossCount       int     `json:"loss_count"`
}

// WinRate returns the fraction of closed trades that were profitable.
func (p DailyPerformance) WinRate() float64 {
	total := p.WinCount + p.LossCount
	if total == 0 {
		return 0
	}
	return float64(p.WinCount) / float64(total)
}

// PlaybookRule is a learned trading rule fed to the analyst.
type PlaybookRule struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	Source    string    `json:"source"` // initial, learned
	CreatedAt time.Time `json:"created_at"`
}
