// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrInvalidSpread         = errors.New("invalid spread")
	ErrRecommendationExpired = errors.New("recommendation expired")
	ErrTradingHalted         = errors.New("trading halted")
	ErrStaleData             = errors.New("stale market data")
	ErrOrderNotFound         = errors.New("order not found")
	ErrNotFound              = errors.New("not found")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrCASConflict           = errors.New("compare-and-swap conflict")
	ErrRateLimited           = errors.New("rate limited")
	ErrTimeout               = errors.New("operation timed out")
	ErrAutoExitDisabled      = errors.New("auto exit disabled")
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s %d]: %s: %v", e.Operation, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s %d]: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated.
func (e *BrokerError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(operation string, statusCode int, message string, err error) *BrokerError {
	return &BrokerError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match validation failures against ErrInvalidSpread.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpread
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// RiskHaltError is returned when the circuit breaker blocks an action.
type RiskHaltError struct {
	Reason string
}

func (e *RiskHaltError) Error() string {
	return fmt.Sprintf("trading halted: %s", e.Reason)
}

func (e *RiskHaltError) Unwrap() error {
	return ErrTradingHalted
}

// NewRiskHaltError creates a new RiskHaltError.
func NewRiskHaltError(reason string) *RiskHaltError {
	return &RiskHaltError{Reason: reason}
}

// DataStalenessError reports a quote older than the allowed age.
type DataStalenessError struct {
	Symbol string
	Age    time.Duration
	Limit  time.Duration
}

func (e *DataStalenessError) Error() string {
	return fmt.Sprintf("stale data [%s]: age %s exceeds %s", e.Symbol, e.Age, e.Limit)
}

func (e *DataStalenessError) Unwrap() error {
	return ErrStaleData
}

// NewDataStalenessError creates a new DataStalenessError.
func NewDataStalenessError(symbol string, age, limit time.Duration) *DataStalenessError {
	return &DataStalenessError{Symbol: symbol, Age: age, Limit: limit}
}

// ReconciliationMismatch describes a ledger/broker disagreement found during reconciliation.
type ReconciliationMismatch struct {
	TradeID     string
	OrderID     string
	LedgerState string
	BrokerState string
}

func (e *ReconciliationMismatch) Error() string {
	return fmt.Sprintf("reconciliation mismatch [trade %s order %s]: ledger=%s broker=%s",
		e.TradeID, e.OrderID, e.LedgerState, e.BrokerState)
}

// NewReconciliationMismatch creates a new ReconciliationMismatch.
func NewReconciliationMismatch(tradeID, orderID, ledgerState, brokerState string) *ReconciliationMismatch {
	return &ReconciliationMismatch{
		TradeID:     tradeID,
		OrderID:     orderID,
		LedgerState: ledgerState,
		BrokerState: brokerState,
	}
}

// AgentError represents an error from the analyst agent.
type AgentError struct {
	AgentName string
	Operation string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error [%s] %s: %v", e.AgentName, e.Operation, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError.
func NewAgentError(agentName, operation string, err error) *AgentError {
	return &AgentError{
		AgentName: agentName,
		Operation: operation,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error with the given text.
func New(text string) error {
	return errors.New(text)
}
