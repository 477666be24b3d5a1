package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/models"
)

// MemoryStore implements Ledger in memory for paper trading and tests.
type MemoryStore struct {
	mu              sync.RWMutex
	recommendations map[string]models.Recommendation
	trades          map[string]models.Trade
	tradeOrder      []string
	positions       map[string]models.Position // keyed by trade ID
	playbook        []models.PlaybookRule
	ivHistory       map[string]map[string]models.IVObservation
	performance     map[string]models.DailyPerformance
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recommendations: make(map[string]models.Recommendation),
		trades:          make(map[string]models.Trade),
		positions:       make(map[string]models.Position),
		ivHistory:       make(map[string]map[string]models.IVObservation),
		performance:     make(map[string]models.DailyPerformance),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// SaveRecommendation inserts or replaces a recommendation.
func (m *MemoryStore) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommendations[rec.ID] = *rec
	return nil
}

// GetRecommendation retrieves a recommendation by ID.
func (m *MemoryStore) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recommendations[id]
	if !ok {
		return nil, fmt.Errorf("recommendation %s: %w", id, apperrors.ErrNotFound)
	}
	return &rec, nil
}

// ListRecommendations retrieves recommendations matching the filter, newest first.
func (m *MemoryStore) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Recommendation
	for _, rec := range m.recommendations {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateRecommendationStatus moves a recommendation from one status to another.
func (m *MemoryStore) UpdateRecommendationStatus(ctx context.Context, id string, from, to models.RecommendationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recommendations[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	m.recommendations[id] = rec
	return true, nil
}

// ExpireRecommendations marks every pending recommendation past its expiry as expired.
func (m *MemoryStore) ExpireRecommendations(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.recommendations {
		if rec.Status == models.RecommendationPending && rec.IsExpired(now) {
			rec.Status = models.RecommendationExpired
			m.recommendations[id] = rec
			n++
		}
	}
	return n, nil
}

// SaveTrade inserts or replaces a trade.
func (m *MemoryStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.ID]; !ok {
		m.tradeOrder = append(m.tradeOrder, trade.ID)
	}
	m.trades[trade.ID] = *trade
	return nil
}

// GetTrade retrieves a trade by ID.
func (m *MemoryStore) GetTrade(ctx context.Context, id string) (*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, apperrors.ErrNotFound)
	}
	return &t, nil
}

// ListTrades retrieves trades matching the filter, newest first.
func (m *MemoryStore) ListTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Trade
	for i := len(m.tradeOrder) - 1; i >= 0; i-- {
		t := m.trades[m.tradeOrder[i]]
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Underlying != "" && t.Underlying != filter.Underlying {
			continue
		}
		if !filter.ClosedSince.IsZero() && (t.ClosedAt == nil || t.ClosedAt.Before(filter.ClosedSince)) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// UpdateTradeStatus moves a trade from one status to another.
func (m *MemoryStore) UpdateTradeStatus(ctx context.Context, id string, from, to models.TradeStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	m.trades[id] = t
	return true, nil
}

// UpdateTradeOrderID points a pending trade at a replacement order.
func (m *MemoryStore) UpdateTradeOrderID(ctx context.Context, id, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != models.TradePendingFill {
		return false, nil
	}
	t.BrokerOrderID = orderID
	m.trades[id] = t
	return true, nil
}

// ActivateTrade moves a pending trade to open.
func (m *MemoryStore) ActivateTrade(ctx context.Context, id string, openedAt time.Time, fillCredit float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != models.TradePendingFill {
		return false, nil
	}
	t.Status = models.TradeOpen
	t.OpenedAt = &openedAt
	if fillCredit > 0 {
		t.EntryCredit = fillCredit
	}
	m.trades[id] = t
	return true, nil
}

// CloseTrade moves an open trade to closed and records the exit.
func (m *MemoryStore) CloseTrade(ctx context.Context, id string, c TradeClose) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.Status != models.TradeOpen {
		return false, nil
	}
	exit, pnl, closedAt := c.ExitDebit, c.ProfitLoss, c.ClosedAt
	t.Status = models.TradeClosed
	t.ExitDebit = &exit
	t.ProfitLoss = &pnl
	t.ClosedAt = &closedAt
	t.ExitReason = c.Reason
	m.trades[id] = t
	return true, nil
}

// SaveReflection stores the post-trade reflection and lesson.
func (m *MemoryStore) SaveReflection(ctx context.Context, id, reflection, lesson string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return fmt.Errorf("trade %s: %w", id, apperrors.ErrNotFound)
	}
	t.Reflection, t.Lesson = reflection, lesson
	m.trades[id] = t
	return nil
}

// UpsertPosition inserts or updates the mark for a trade.
func (m *MemoryStore) UpsertPosition(ctx context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.positions[pos.TradeID]; ok && pos.ID == "" {
		pos.ID = existing.ID
	}
	m.positions[pos.TradeID] = *pos
	return nil
}

// GetPositions returns all position marks.
func (m *MemoryStore) GetPositions(ctx context.Context) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out, nil
}

// DeletePositionByTrade removes the mark for a trade.
func (m *MemoryStore) DeletePositionByTrade(ctx context.Context, tradeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, tradeID)
	return nil
}

// AddPlaybookRule stores a playbook rule.
func (m *MemoryStore) AddPlaybookRule(ctx context.Context, rule *models.PlaybookRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbook = append(m.playbook, *rule)
	return nil
}

// GetPlaybookRules returns all playbook rules, oldest first.
func (m *MemoryStore) GetPlaybookRules(ctx context.Context) ([]models.PlaybookRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PlaybookRule(nil), m.playbook...), nil
}

// SaveIVObservation upserts one daily IV reading.
func (m *MemoryStore) SaveIVObservation(ctx context.Context, obs models.IVObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.ivHistory[obs.Symbol]
	if !ok {
		series = make(map[string]models.IVObservation)
		m.ivHistory[obs.Symbol] = series
	}
	series[obs.Date.Format(models.DateLayout)] = obs
	return nil
}

// GetIVHistory returns up to limit most recent readings in ascending date order.
func (m *MemoryStore) GetIVHistory(ctx context.Context, symbol string, limit int) ([]models.IVObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.IVObservation
	for _, o := range m.ivHistory[symbol] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SaveDailyPerformance upserts the summary for a date.
func (m *MemoryStore) SaveDailyPerformance(ctx context.Context, perf *models.DailyPerformance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.performance[perf.Date] = *perf
	return nil
}

// GetDailyPerformance returns the summary for a date.
func (m *MemoryStore) GetDailyPerformance(ctx context.Context, date string) (*models.DailyPerformance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.performance[date]
	if !ok {
		return nil, fmt.Errorf("daily performance %s: %w", date, apperrors.ErrNotFound)
	}
	return &p, nil
}

var (
	_ Ledger = (*MemoryStore)(nil)
	_ Ledger = (*SQLiteStore)(nil)
	_ KV     = (*MemoryKV)(nil)
	_ KV     = (*SQLiteKV)(nil)
	_ KV     = (*RedisKV)(nil)
)
