package store

import (
	"sync"
	"time"
)

// FreshnessTracker records when market data was last received per symbol.
type FreshnessTracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewFreshnessTracker creates an empty tracker.
func NewFreshnessTracker() *FreshnessTracker {
	return &FreshnessTracker{lastSeen: make(map[string]time.Time)}
}

// Touch records a quote timestamp for symbol. Older timestamps are ignored.
func (f *FreshnessTracker) Touch(symbol string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.lastSeen[symbol]; ok && prev.After(at) {
		return
	}
	f.lastSeen[symbol] = at
}

// LastSeen returns the last quote time for symbol.
func (f *FreshnessTracker) LastSeen(symbol string) (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.lastSeen[symbol]
	return t, ok
}

// Oldest returns the stalest last-quote time across all tracked symbols.
func (f *FreshnessTracker) Oldest() (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var oldest time.Time
	found := false
	for _, t := range f.lastSeen {
		if !found || t.Before(oldest) {
			oldest = t
			found = true
		}
	}
	return oldest, found
}
