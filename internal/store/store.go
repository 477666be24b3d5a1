// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"spread-trader/internal/models"
)

// Ledger is the relational record of recommendations, trades, positions and
// supporting history.
//
// Status transitions take the expected current status and report whether the
// row was changed, so concurrent writers cannot apply the same transition twice.
type Ledger interface {
	// Recommendations
	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error)
	ExpireRecommendations(ctx context.Context, now time.Time) (int, error)

	// Trades
	SaveTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	UpdateTradeStatus(ctx context.Context, id string, from, to models.TradeStatus) (bool, error)
	UpdateTradeOrderID(ctx context.Context, id, orderID string) (bool, error)
	ActivateTrade(ctx context.Context, id string, openedAt time.Time, fillCredit float64) (bool, error)
	CloseTrade(ctx context.Context, id string, close TradeClose) (bool, error)
	SaveReflection(ctx context.Context, id, reflection, lesson string) error

	// Positions
	UpsertPosition(ctx context.Context, pos *models.Position) error
	GetPositions(ctx context.Context) ([]models.Position, error)
	DeletePositionByTrade(ctx context.Context, tradeID string) error

	// Playbook
	AddPlaybookRule(ctx context.Context, rule *models.PlaybookRule) error
	GetPlaybookRules(ctx context.Context) ([]models.PlaybookRule, error)

	// IV history
	SaveIVObservation(ctx context.Context, obs models.IVObservation) error
	GetIVHistory(ctx context.Context, symbol string, limit int) ([]models.IVObservation, error)

	// Daily performance
	SaveDailyPerformance(ctx context.Context, perf *models.DailyPerformance) error
	GetDailyPerformance(ctx context.Context, date string) (*models.DailyPerformance, error)

	// Lifecycle
	Close() error
}

// RecommendationFilter represents filters for querying recommendations.
type RecommendationFilter struct {
	Status models.RecommendationStatus
	Since  time.Time
	Limit  int
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	Status      models.TradeStatus
	Underlying  string
	ClosedSince time.Time
	Limit       int
}

// TradeClose carries the exit details applied by CloseTrade.
type TradeClose struct {
	ExitDebit  float64
	ProfitLoss float64
	Reason     models.ExitReason
	ClosedAt   time.Time
}

// Pinger is implemented by backends that hold a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
