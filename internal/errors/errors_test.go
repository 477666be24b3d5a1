package errors

import (
	"testing"
	"time"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", NewValidationError("width", 0.0, "must be positive"), ErrInvalidSpread},
		{"halt", NewRiskHaltError("Daily loss limit exceeded (2%)"), ErrTradingHalted},
		{"stale", NewDataStalenessError("SPY", 12*time.Second, 10*time.Second), ErrStaleData},
		{"wrapped", Wrap(NewRiskHaltError("x"), "open spread"), ErrTradingHalted},
		{"broker", NewBrokerError("get_order", 404, "missing", ErrOrderNotFound), ErrOrderNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !Is(tc.err, tc.target) {
				t.Errorf("%v does not match %v", tc.err, tc.target)
			}
		})
	}
}

func TestBrokerErrorRetryable(t *testing.T) {
	if !NewBrokerError("x", 503, "", nil).Retryable() {
		t.Error("503 should be retryable")
	}
	if !NewBrokerError("x", 429, "", nil).Retryable() {
		t.Error("429 should be retryable")
	}
	if NewBrokerError("x", 422, "", nil).Retryable() {
		t.Error("422 should not be retryable")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	var halt *RiskHaltError
	if !As(Wrapf(NewRiskHaltError("vix"), "scan %s", "SPY"), &halt) || halt.Reason != "vix" {
		t.Error("As should find the wrapped RiskHaltError")
	}
}
