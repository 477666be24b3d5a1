// Package resilience protects broker calls with per-operation circuit
// breakers and feeds failures into the risk engine's API error counter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "spread-trader/internal/errors"
)

// CircuitState represents the state of an API breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // Normal operation
	CircuitOpen     CircuitState = "open"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "half_open" // Testing if service recovered
)

// BreakerConfig holds API breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int `mapstructure:"failure_threshold"`
	// SuccessThreshold is the number of successes in half-open state to close
	SuccessThreshold int `mapstructure:"success_threshold"`
	// Cooldown is how long to wait before transitioning from open to half-open
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// DefaultBreakerConfig returns the default API breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("api circuit breaker is open")

// APIBreaker is a closed/open/half-open breaker around one broker operation.
// It only protects the process from hammering a failing endpoint; the
// trading halt lives in the risk engine.
type APIBreaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time

	totalRequests int64
	totalFailures int64
	totalRejected int64
}

// NewAPIBreaker creates a breaker in the closed state.
func NewAPIBreaker(name string, config BreakerConfig) *APIBreaker {
	return &APIBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// WithClock overrides the clock.
func (cb *APIBreaker) WithClock(now func() time.Time) *APIBreaker {
	cb.now = now
	return cb
}

// Execute runs fn if the breaker admits it and records the outcome.
// Context cancellation by the caller is not counted as an endpoint failure.
func Execute[T any](ctx context.Context, cb *APIBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.allow(); err != nil {
		return zero, err
	}

	v, err := fn(ctx)
	switch {
	case err == nil:
		cb.recordSuccess()
	case ctx.Err() != nil:
		// caller gave up
	case isEndpointFailure(err):
		cb.recordFailure()
	default:
		cb.recordSuccess()
	}
	return v, err
}

// isEndpointFailure reports whether err means the endpoint misbehaved, as
// opposed to a well-formed rejection of the request.
func isEndpointFailure(err error) bool {
	if apperrors.Is(err, apperrors.ErrOrderNotFound) || apperrors.Is(err, apperrors.ErrInvalidSpread) {
		return false
	}
	var be *apperrors.BrokerError
	if apperrors.As(err, &be) {
		return be.Retryable()
	}
	return true
}

func (cb *APIBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.config.Cooldown {
			cb.totalRejected++
			return ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	return nil
}

func (cb *APIBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *APIBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *APIBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.failures = 0
	cb.successes = 0
}

// State returns the current state.
func (cb *APIBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns breaker statistics.
func (cb *APIBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalRejected:   cb.totalRejected,
		CurrentFailures: cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset closes the breaker.
func (cb *APIBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// BreakerStats holds API breaker statistics.
type BreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	CurrentFailures int          `json:"current_failures"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// FailureRate returns failures as a fraction of admitted requests.
func (s BreakerStats) FailureRate() float64 {
	admitted := s.TotalRequests - s.TotalRejected
	if admitted <= 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(admitted)
}
