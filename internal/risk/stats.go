package risk

import (
	"context"
	"fmt"
	"time"

	"spread-trader/internal/models"
	"spread-trader/internal/store"
)

// KV keys and retention for risk accumulators.
const (
	keyCircuitBreaker = "circuit_breaker"
	keyPeakEquity     = "peak_equity"
	keyAPIErrors      = "api_errors"

	dailyStatsTTL  = 7 * 24 * time.Hour
	weeklyStatsTTL = 14 * 24 * time.Hour
)

// StatsBook owns the daily, weekly, peak-equity and API-error accumulators.
// Every update goes through compare-and-swap so overlapping runs cannot lose
// increments.
type StatsBook struct {
	kv             store.KV
	loc            *time.Location
	rapidWindow    time.Duration
	apiErrorWindow time.Duration
	now            func() time.Time
}

// NewStatsBook creates a stats book. Dates roll over in loc.
func NewStatsBook(kv store.KV, cfg Config, loc *time.Location) *StatsBook {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsBook{
		kv:             kv,
		loc:            loc,
		rapidWindow:    cfg.RapidLossWindow,
		apiErrorWindow: cfg.APIErrorWindow,
		now:            time.Now,
	}
}

// WithClock overrides the clock.
func (b *StatsBook) WithClock(now func() time.Time) *StatsBook {
	b.now = now
	return b
}

func (b *StatsBook) today() string {
	return b.now().In(b.loc).Format(models.DateLayout)
}

func (b *StatsBook) thisWeek() string {
	year, week := b.now().In(b.loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func dailyKey(date string) string { return "daily:" + date }
func weeklyKey(week string) string { return "weekly:" + week }

// Daily returns today's stats. Missing stats come back zeroed with the date set.
func (b *StatsBook) Daily(ctx context.Context) (models.DailyStats, error) {
	date := b.today()
	stats := models.DailyStats{Date: date}
	if _, err := store.GetJSON(ctx, b.kv, dailyKey(date), &stats); err != nil {
		return models.DailyStats{}, err
	}
	return stats, nil
}

// Weekly returns this week's stats.
func (b *StatsBook) Weekly(ctx context.Context) (models.WeeklyStats, error) {
	week := b.thisWeek()
	stats := models.WeeklyStats{Week: week}
	if _, err := store.GetJSON(ctx, b.kv, weeklyKey(week), &stats); err != nil {
		return models.WeeklyStats{}, err
	}
	return stats, nil
}

// InitDaily records today's starting equity unless it is already set.
func (b *StatsBook) InitDaily(ctx context.Context, equity float64) (models.DailyStats, error) {
	date := b.today()
	return store.UpdateJSON(ctx, b.kv, dailyKey(date), dailyStatsTTL, func(s *models.DailyStats, _ bool) bool {
		if s.StartingEquity > 0 {
			return false
		}
		s.Date = date
		s.StartingEquity = equity
		return true
	})
}

// InitWeekly records this week's starting equity unless it is already set.
func (b *StatsBook) InitWeekly(ctx context.Context, equity float64) (models.WeeklyStats, error) {
	week := b.thisWeek()
	return store.UpdateJSON(ctx, b.kv, weeklyKey(week), weeklyStatsTTL, func(s *models.WeeklyStats, _ bool) bool {
		if s.StartingEquity > 0 {
			return false
		}
		s.Week = week
		s.StartingEquity = equity
		return true
	})
}

// RecordTrade counts an opened trade on today's and this week's stats.
func (b *StatsBook) RecordTrade(ctx context.Context) error {
	date, week := b.today(), b.thisWeek()
	if _, err := store.UpdateJSON(ctx, b.kv, dailyKey(date), dailyStatsTTL, func(s *models.DailyStats, _ bool) bool {
		s.Date = date
		s.TradesCount++
		return true
	}); err != nil {
		return err
	}
	_, err := store.UpdateJSON(ctx, b.kv, weeklyKey(week), weeklyStatsTTL, func(s *models.WeeklyStats, _ bool) bool {
		s.Week = week
		s.TradesCount++
		return true
	})
	return err
}

// RecordPnL adds realized P/L. Losses also feed the rapid-loss accumulator:
// a loss within the window of the previous one adds to it, otherwise the
// accumulator restarts at this loss.
func (b *StatsBook) RecordPnL(ctx context.Context, pnl float64) (models.DailyStats, error) {
	date, week := b.today(), b.thisWeek()
	now := b.now()

	daily, err := store.UpdateJSON(ctx, b.kv, dailyKey(date), dailyStatsTTL, func(s *models.DailyStats, _ bool) bool {
		s.Date = date
		s.RealizedPnL += pnl
		if pnl < 0 {
			loss := -pnl
			s.LossesToday += loss
			if s.LastLossTime != nil && now.Sub(*s.LastLossTime) < b.rapidWindow {
				s.RapidLossAmount += loss
			} else {
				s.RapidLossAmount = loss
			}
			s.LastLossTime = &now
		}
		return true
	})
	if err != nil {
		return models.DailyStats{}, err
	}

	_, err = store.UpdateJSON(ctx, b.kv, weeklyKey(week), weeklyStatsTTL, func(s *models.WeeklyStats, _ bool) bool {
		s.Week = week
		s.RealizedPnL += pnl
		return true
	})
	return daily, err
}

// RapidLoss returns the accumulated loss if the last loss is still inside the window, else zero.
func (b *StatsBook) RapidLoss(ctx context.Context) (float64, error) {
	stats, err := b.Daily(ctx)
	if err != nil {
		return 0, err
	}
	if stats.LastLossTime == nil || b.now().Sub(*stats.LastLossTime) >= b.rapidWindow {
		return 0, nil
	}
	return stats.RapidLossAmount, nil
}

type peakEquity struct {
	Equity float64 `json:"equity"`
}

// UpdatePeak raises the recorded peak equity if current is higher and returns the peak.
func (b *StatsBook) UpdatePeak(ctx context.Context, current float64) (float64, error) {
	peak, err := store.UpdateJSON(ctx, b.kv, keyPeakEquity, 0, func(p *peakEquity, _ bool) bool {
		if current <= p.Equity {
			return false
		}
		p.Equity = current
		return true
	})
	if err != nil {
		return 0, err
	}
	return peak.Equity, nil
}

type apiErrorLog struct {
	Times []time.Time `json:"times"`
}

// RecordAPIError logs a broker error and returns the count inside the trailing window.
func (b *StatsBook) RecordAPIError(ctx context.Context) (int, error) {
	now := b.now()
	log, err := store.UpdateJSON(ctx, b.kv, keyAPIErrors, 2*b.apiErrorWindow, func(l *apiErrorLog, _ bool) bool {
		l.Times = append(b.trimErrors(l.Times, now), now)
		return true
	})
	if err != nil {
		return 0, err
	}
	return len(b.trimErrors(log.Times, now)), nil
}

// APIErrorCount returns the number of broker errors inside the trailing window.
func (b *StatsBook) APIErrorCount(ctx context.Context) (int, error) {
	var l apiErrorLog
	if _, err := store.GetJSON(ctx, b.kv, keyAPIErrors, &l); err != nil {
		return 0, err
	}
	return len(b.trimErrors(l.Times, b.now())), nil
}

func (b *StatsBook) trimErrors(times []time.Time, now time.Time) []time.Time {
	out := times[:0:0]
	for _, t := range times {
		if now.Sub(t) < b.apiErrorWindow {
			out = append(out, t)
		}
	}
	return out
}
