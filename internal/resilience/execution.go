package resilience

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// FillQuality is how one spread order worked through the repricing ladder.
// Limits use the net-debit convention: credits are negative.
type FillQuality struct {
	OrderID      string        `json:"order_id"`
	Underlying   string        `json:"underlying"`
	InitialLimit float64       `json:"initial_limit"`
	FinalLimit   float64       `json:"final_limit"`
	FillPrice    float64       `json:"fill_price,omitempty"`
	Adjustments  int           `json:"adjustments"`
	Elapsed      time.Duration `json:"elapsed"`
	Filled       bool          `json:"filled"`
	TimedOut     bool          `json:"timed_out"`
	Timestamp    time.Time     `json:"timestamp"`

	// Concession is the price given up to get filled, always >= 0 for a
	// ladder that only moves toward the market.
	Concession    float64 `json:"concession"`
	ConcessionPct float64 `json:"concession_pct"`
}

// FillTrackerConfig holds the alert thresholds.
type FillTrackerConfig struct {
	ConcessionAlertPct float64       `mapstructure:"concession_alert_pct"` // percent of the initial limit
	SlowFillAfter      time.Duration `mapstructure:"slow_fill_after"`
	WindowSize         int           `mapstructure:"window_size"` // recent fills kept for rolling stats
}

// DefaultFillTrackerConfig returns the default thresholds.
func DefaultFillTrackerConfig() FillTrackerConfig {
	return FillTrackerConfig{
		ConcessionAlertPct: 10,
		SlowFillAfter:      2 * time.Minute,
		WindowSize:         100,
	}
}

// FillTracker keeps rolling fill quality for the order ladder.
type FillTracker struct {
	mu  sync.RWMutex
	cfg FillTrackerConfig

	recent        []FillQuality
	total         int64
	filled        int64
	timedOut      int64
	concessionSum float64
	maxConcession float64
	adjustSum     int64

	onAlert func(FillAlert)
}

// NewFillTracker creates a tracker.
func NewFillTracker(cfg FillTrackerConfig) *FillTracker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultFillTrackerConfig().WindowSize
	}
	return &FillTracker{
		cfg:    cfg,
		recent: make([]FillQuality, 0, cfg.WindowSize),
	}
}

// OnAlert sets the alert callback. It runs outside the tracker lock.
func (t *FillTracker) OnAlert(fn func(FillAlert)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAlert = fn
}

// Record adds a completed fill follow and raises any alerts it warrants.
func (t *FillTracker) Record(q FillQuality) FillQuality {
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}
	q.Concession = math.Round((q.FinalLimit-q.InitialLimit)*100) / 100
	if q.InitialLimit != 0 {
		q.ConcessionPct = q.Concession / math.Abs(q.InitialLimit) * 100
	}

	t.mu.Lock()
	t.total++
	t.adjustSum += int64(q.Adjustments)
	if q.Filled {
		t.filled++
		t.concessionSum += q.ConcessionPct
		if q.ConcessionPct > t.maxConcession {
			t.maxConcession = q.ConcessionPct
		}
	}
	if q.TimedOut {
		t.timedOut++
	}
	t.recent = append(t.recent, q)
	if len(t.recent) > t.cfg.WindowSize {
		t.recent = t.recent[1:]
	}
	alerts := t.alertsFor(q)
	onAlert := t.onAlert
	t.mu.Unlock()

	if onAlert != nil {
		for _, a := range alerts {
			onAlert(a)
		}
	}
	return q
}

func (t *FillTracker) alertsFor(q FillQuality) []FillAlert {
	var alerts []FillAlert
	alert := func(typ FillAlertType, value, threshold float64, msg string) {
		alerts = append(alerts, FillAlert{
			Type:       typ,
			OrderID:    q.OrderID,
			Underlying: q.Underlying,
			Value:      value,
			Threshold:  threshold,
			Message:    msg,
			Timestamp:  q.Timestamp,
		})
	}

	if !q.Filled {
		alert(AlertUnfilled, float64(q.Adjustments), 0,
			fmt.Sprintf("%s order unfilled after %d adjustments (%s)", q.Underlying, q.Adjustments, q.Elapsed.Round(time.Second)))
		return alerts
	}
	if t.cfg.ConcessionAlertPct > 0 && q.ConcessionPct > t.cfg.ConcessionAlertPct {
		alert(AlertHighConcession, q.ConcessionPct, t.cfg.ConcessionAlertPct,
			fmt.Sprintf("%s fill gave up %.2f (%.1f%%, threshold %.1f%%)", q.Underlying, q.Concession, q.ConcessionPct, t.cfg.ConcessionAlertPct))
	}
	if t.cfg.SlowFillAfter > 0 && q.Elapsed > t.cfg.SlowFillAfter {
		alert(AlertSlowFill, q.Elapsed.Seconds(), t.cfg.SlowFillAfter.Seconds(),
			fmt.Sprintf("%s fill took %s (threshold %s)", q.Underlying, q.Elapsed.Round(time.Second), t.cfg.SlowFillAfter))
	}
	return alerts
}

// Stats returns lifetime and rolling-window fill statistics.
func (t *FillTracker) Stats() FillStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := FillStats{
		Total:            t.total,
		Filled:           t.filled,
		TimedOut:         t.timedOut,
		MaxConcessionPct: t.maxConcession,
	}
	if t.total > 0 {
		stats.FillRate = float64(t.filled) / float64(t.total)
		stats.AvgAdjustments = float64(t.adjustSum) / float64(t.total)
	}
	if t.filled > 0 {
		stats.AvgConcessionPct = t.concessionSum / float64(t.filled)
	}

	bySymbol := make(map[string]*UnderlyingFillStats)
	for _, q := range t.recent {
		s, ok := bySymbol[q.Underlying]
		if !ok {
			s = &UnderlyingFillStats{Underlying: q.Underlying}
			bySymbol[q.Underlying] = s
		}
		s.Count++
		if q.Filled {
			s.Filled++
			s.AvgConcessionPct += q.ConcessionPct
		}
	}
	for _, s := range bySymbol {
		if s.Filled > 0 {
			s.AvgConcessionPct /= float64(s.Filled)
		}
		stats.ByUnderlying = append(stats.ByUnderlying, *s)
	}
	sort.Slice(stats.ByUnderlying, func(i, j int) bool {
		return stats.ByUnderlying[i].Underlying < stats.ByUnderlying[j].Underlying
	})
	return stats
}

// Recent returns up to limit of the most recent fills, oldest first.
func (t *FillTracker) Recent(limit int) []FillQuality {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.recent) {
		limit = len(t.recent)
	}
	out := make([]FillQuality, limit)
	copy(out, t.recent[len(t.recent)-limit:])
	return out
}

// FillStats summarizes fill quality.
type FillStats struct {
	Total            int64                 `json:"total"`
	Filled           int64                 `json:"filled"`
	TimedOut         int64                 `json:"timed_out"`
	FillRate         float64               `json:"fill_rate"`
	AvgAdjustments   float64               `json:"avg_adjustments"`
	AvgConcessionPct float64               `json:"avg_concession_pct"`
	MaxConcessionPct float64               `json:"max_concession_pct"`
	ByUnderlying     []UnderlyingFillStats `json:"by_underlying,omitempty"`
}

// UnderlyingFillStats is the rolling-window breakdown for one underlying.
type UnderlyingFillStats struct {
	Underlying       string  `json:"underlying"`
	Count            int     `json:"count"`
	Filled           int     `json:"filled"`
	AvgConcessionPct float64 `json:"avg_concession_pct"`
}

// FillAlertType is the kind of fill quality alert.
type FillAlertType string

const (
	AlertHighConcession FillAlertType = "HIGH_CONCESSION"
	AlertSlowFill       FillAlertType = "SLOW_FILL"
	AlertUnfilled       FillAlertType = "UNFILLED"
)

// FillAlert is raised when a fill crosses a threshold.
type FillAlert struct {
	Type       FillAlertType `json:"type"`
	OrderID    string        `json:"order_id"`
	Underlying string        `json:"underlying"`
	Value      float64       `json:"value"`
	Threshold  float64       `json:"threshold"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
}
