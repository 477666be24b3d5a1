package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spread-trader/internal/agents"
	"spread-trader/internal/broker"
	"spread-trader/internal/logging"
	"spread-trader/internal/models"
	"spread-trader/internal/notify"
	"spread-trader/internal/risk"
	"spread-trader/internal/store"
)

const (
	snapshotTTL = 90 * 24 * time.Hour
	// minClosedForLessons is the number of trades closed in a day before
	// their lessons are added to the playbook.
	minClosedForLessons = 2
)

// DailySnapshot is the archived end-of-day state.
type DailySnapshot struct {
	Date        string                  `json:"date"`
	Performance models.DailyPerformance `json:"performance"`
	Positions   []models.Position       `json:"positions"`
	Account     models.Account          `json:"account"`
}

// SnapshotKey returns the key a day's snapshot is archived under.
func SnapshotKey(date string) string {
	return "snapshot:" + date
}

// EODSummary builds the end-of-day performance record.
type EODSummary struct {
	account  broker.MarketData
	ledger   store.Ledger
	stats    *risk.StatsBook
	analyst  agents.Analyst
	archive  store.KV
	notifier notify.Notifier
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEODSummary creates the end-of-day job. analyst, archive and notifier may be nil.
func NewEODSummary(account broker.MarketData, ledger store.Ledger, stats *risk.StatsBook, analyst agents.Analyst,
	archive store.KV, notifier notify.Notifier, loc *time.Location, logger zerolog.Logger) *EODSummary {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EODSummary{
		account:  account,
		ledger:   ledger,
		stats:    stats,
		analyst:  analyst,
		archive:  archive,
		notifier: notifier,
		loc:      loc,
		logger:   logging.WithComponent(logger, "eod"),
		now:      time.Now,
	}
}

// WithClock overrides the clock.
func (e *EODSummary) WithClock(now func() time.Time) *EODSummary {
	e.now = now
	return e
}

// Run records today's performance, reflects on trades closed today, archives
// a snapshot and sends the summary.
func (e *EODSummary) Run(ctx context.Context) (*models.DailyPerformance, error) {
	now := e.now().In(e.loc)
	date := now.Format(models.DateLayout)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)

	account, err := e.account.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	perf := &models.DailyPerformance{
		Date:            date,
		StartingBalance: account.Equity,
		EndingBalance:   account.Equity,
	}
	if e.stats != nil {
		daily, err := e.stats.Daily(ctx)
		if err != nil {
			return nil, fmt.Errorf("read daily stats: %w", err)
		}
		if daily.StartingEquity > 0 {
			perf.StartingBalance = daily.StartingEquity
		}
	}

	trades, err := e.ledger.ListTrades(ctx, store.TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	var closedToday []models.Trade
	openCount := 0
	for _, t := range trades {
		if t.OpenedAt != nil && !t.OpenedAt.Before(dayStart) {
			perf.TradesOpened++
		}
		if t.Status == models.TradeOpen {
			openCount++
		}
		if t.Status != models.TradeClosed || t.ClosedAt == nil || t.ClosedAt.Before(dayStart) {
			continue
		}
		closedToday = append(closedToday, t)
		perf.TradesClosed++
		if t.ProfitLoss == nil {
			continue
		}
		perf.RealizedPnL += *t.ProfitLoss
		if *t.ProfitLoss > 0 {
			perf.WinCount++
		} else {
			perf.LossCount++
		}
	}

	if err := e.ledger.SaveDailyPerformance(ctx, perf); err != nil {
		return nil, fmt.Errorf("save daily performance: %w", err)
	}

	e.reflect(ctx, closedToday)
	e.archiveSnapshot(ctx, perf, account)

	if err := e.notifier.Send(ctx, notify.DailySummary(perf, openCount)); err != nil {
		e.logger.Warn().Err(err).Msg("Daily summary notification failed")
	}
	e.logger.Info().
		Str("date", date).
		Float64("realized_pnl", perf.RealizedPnL).
		Int("opened", perf.TradesOpened).
		Int("closed", perf.TradesClosed).
		Int("open_positions", openCount).
		Msg("EOD summary complete")
	return perf, nil
}

// reflect asks the analyst to review each trade closed today and turns the
// lessons into playbook rules once enough trades closed.
func (e *EODSummary) reflect(ctx context.Context, closed []models.Trade) {
	if e.analyst == nil {
		return
	}
	var lessons []string
	for _, t := range closed {
		if t.Reflection != "" {
			if t.Lesson != "" {
				lessons = append(lessons, t.Lesson)
			}
			continue
		}
		thesis := ""
		if t.RecommendationID != "" {
			if rec, err := e.ledger.GetRecommendation(ctx, t.RecommendationID); err == nil {
				thesis = rec.Thesis
			}
		}
		r, err := e.analyst.Reflect(ctx, t, thesis)
		if err != nil {
			l := logging.WithTrade(e.logger, t.ID)
			l.Warn().Err(err).Msg("Reflection failed")
			continue
		}
		if err := e.ledger.SaveReflection(ctx, t.ID, r.Reflection, r.Lesson); err != nil {
			l := logging.WithTrade(e.logger, t.ID)
			l.Warn().Err(err).Msg("Failed to save reflection")
			continue
		}
		if r.Lesson != "" {
			lessons = append(lessons, r.Lesson)
		}
	}

	if len(closed) < minClosedForLessons || len(lessons) == 0 {
		return
	}
	existing, err := e.ledger.GetPlaybookRules(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Could not load playbook rules")
		return
	}
	known := make(map[string]bool, len(existing))
	for _, r := range existing {
		known[strings.ToLower(strings.TrimSpace(r.Rule))] = true
	}
	for _, lesson := range lessons {
		key := strings.ToLower(strings.TrimSpace(lesson))
		if known[key] {
			continue
		}
		known[key] = true
		rule := &models.PlaybookRule{ID: uuid.NewString(), Rule: lesson, Source: "learned", CreatedAt: e.now()}
		if err := e.ledger.AddPlaybookRule(ctx, rule); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to add playbook rule")
			continue
		}
		e.logger.Info().Str("rule", lesson).Msg("Added playbook rule")
	}
}

func (e *EODSummary) archiveSnapshot(ctx context.Context, perf *models.DailyPerformance, account *models.Account) {
	if e.archive == nil {
		return
	}
	positions, err := e.ledger.GetPositions(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Could not load positions for snapshot")
		return
	}
	snap := DailySnapshot{Date: perf.Date, Performance: *perf, Positions: positions, Account: *account}
	if err := store.SetJSON(ctx, e.archive, SnapshotKey(perf.Date), snap, snapshotTTL); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to archive daily snapshot")
	}
}
