package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{1.5, "$1.50"},
		{999.999, "$1,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-350, "-$350.00"},
	}
	for _, tt := range tests {
		if got := FormatUSD(tt.in); got != tt.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatPnL(120); got != "+$120.00" {
		t.Errorf("FormatPnL(120) = %q", got)
	}
}

func TestRoundCents(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{1.234, 1.23},
		{1.235, 1.24},
		{-1.475, -1.48},
		{0.1 + 0.2, 0.3},
	} {
		if got := RoundCents(tc.in); got != tc.want {
			t.Errorf("RoundCents(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsMarketOpenAt(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday midday", time.Date(2024, 3, 5, 12, 0, 0, 0, NewYork), true},
		{"before open", time.Date(2024, 3, 5, 9, 29, 0, 0, NewYork), false},
		{"at open", time.Date(2024, 3, 5, 9, 30, 0, 0, NewYork), true},
		{"at close", time.Date(2024, 3, 5, 16, 0, 0, 0, NewYork), false},
		{"saturday", time.Date(2024, 3, 9, 12, 0, 0, 0, NewYork), false},
	}
	for _, tt := range tests {
		if got := IsMarketOpenAt(tt.at); got != tt.want {
			t.Errorf("%s: IsMarketOpenAt = %v, want %v", tt.name, got, tt.want)
		}
	}

	friday := time.Date(2024, 3, 8, 17, 0, 0, 0, NewYork)
	if next := NextMarketOpen(friday); next.Weekday() != time.Monday || next.Hour() != 9 || next.Minute() != 30 {
		t.Errorf("NextMarketOpen(friday evening) = %v", next)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
		Retryable:     func(err error) bool { return !errors.Is(err, permanent) },
	}

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Errorf("got %d, %v after %d calls", got, err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRetryConfig()
	err := Retry(ctx, cfg, func() error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
