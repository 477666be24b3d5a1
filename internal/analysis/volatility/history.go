package volatility

import (
	"sort"
	"sync"
	"time"
)

// DefaultLookback is one year of trading sessions.
const DefaultLookback = 252

// Observation is one daily IV reading.
type Observation struct {
	Date time.Time `json:"date"`
	IV   float64   `json:"iv"`
}

// History keeps a bounded, date-ordered IV series per symbol.
type History struct {
	mu       sync.RWMutex
	lookback int
	series   map[string][]Observation
}

// NewHistory creates a history that keeps at most lookback sessions per symbol.
func NewHistory(lookback int) *History {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &History{
		lookback: lookback,
		series:   make(map[string][]Observation),
	}
}

// Add records an observation. A second reading for the same date replaces the first.
func (h *History) Add(symbol string, date time.Time, iv float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	day := truncateDay(date)
	obs := h.series[symbol]

	idx := sort.Search(len(obs), func(i int) bool { return !obs[i].Date.Before(day) })
	switch {
	case idx < len(obs) && obs[idx].Date.Equal(day):
		obs[idx].IV = iv
	default:
		obs = append(obs, Observation{})
		copy(obs[idx+1:], obs[idx:])
		obs[idx] = Observation{Date: day, IV: iv}
	}

	if len(obs) > h.lookback {
		obs = append([]Observation(nil), obs[len(obs)-h.lookback:]...)
	}
	h.series[symbol] = obs
}

// Load replaces a symbol's series with the given observations.
func (h *History) Load(symbol string, observations []Observation) {
	h.mu.Lock()
	h.series[symbol] = nil
	h.mu.Unlock()
	for _, o := range observations {
		h.Add(symbol, o.Date, o.IV)
	}
}

// Values returns the IV values for a symbol in date order.
func (h *History) Values(symbol string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	obs := h.series[symbol]
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.IV
	}
	return out
}

// Observations returns a copy of a symbol's series.
func (h *History) Observations(symbol string) []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Observation(nil), h.series[symbol]...)
}

// Len returns the number of observations held for a symbol.
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.series[symbol])
}

// Metrics computes rank and percentile of current against the symbol's history.
func (h *History) Metrics(symbol string, current float64) Metrics {
	return Calculate(current, h.Values(symbol))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
