package utils

import (
	"time"
)

// NewYork is the timezone of US equity and options markets.
var NewYork *time.Location

func init() {
	var err error
	NewYork, err = time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata: fall back to EST.
		NewYork = time.FixedZone("EST", -5*60*60)
	}
}

// Regular session bounds in minutes after midnight, New York time.
const (
	sessionOpenMinutes  = 9*60 + 30
	sessionCloseMinutes = 16 * 60
)

// IsMarketOpenAt reports whether t falls in the regular weekday session.
// Exchange holidays are not known here; the broker clock is authoritative.
func IsMarketOpenAt(t time.Time) bool {
	now := t.In(NewYork)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= sessionOpenMinutes && minutes < sessionCloseMinutes
}

// NextMarketOpen returns the next regular session open after t.
func NextMarketOpen(t time.Time) time.Time {
	now := t.In(NewYork)
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, NewYork)
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
