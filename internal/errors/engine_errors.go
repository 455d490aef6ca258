package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur while
// the engine is running.
type ErrorCategory string

const (
	// Critical errors that abort the current order attempt
	CategoryFatal    ErrorCategory = "FATAL"
	CategoryExchange ErrorCategory = "EXCHANGE"
	CategoryConfig   ErrorCategory = "CONFIG"

	// Risk-gate refusals: the engine keeps running, the attempt is dropped
	CategoryRiskGate ErrorCategory = "RISK_GATE"

	// Non-critical errors that can be retried on the next cycle
	CategoryNetwork ErrorCategory = "NETWORK"
	CategoryTimeout ErrorCategory = "TIMEOUT"
	CategoryOrder   ErrorCategory = "ORDER"
)

// EngineError is a categorized error with enough context for operator
// diagnosis: side, price, size, and the triggering percentage where
// applicable.
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *EngineError) IsRetryable() bool {
	return e.Retryable
}

// IsRiskGate reports whether this error is a risk-control refusal rather
// than a genuine failure. The caller aborts the attempt but does not treat
// the engine as unhealthy.
func (e *EngineError) IsRiskGate() bool {
	return e.Category == CategoryRiskGate
}

// IsFatal returns whether this error should abort the current attempt
func (e *EngineError) IsFatal() bool {
	return e.Category == CategoryFatal || e.Category == CategoryConfig
}

// New creates a new categorized engine error
func New(category ErrorCategory, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with engine error context
func Wrap(err error, category ErrorCategory, component, operation, message string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *EngineError) WithRetryable(retryable bool) *EngineError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case CategoryNetwork, CategoryTimeout:
		return true
	case CategoryFatal, CategoryConfig, CategoryRiskGate:
		return false
	default:
		return false
	}
}

// NewLossProtection builds the refusal returned when a prospective order
// would realize a loss beyond the configured maximum against the last
// opposite-side fill.
func NewLossProtection(side string, price, lossPct, maxLossPct float64) *EngineError {
	return New(CategoryRiskGate, "orders", "loss protection",
		fmt.Sprintf("refusing to %s at %.8g, %s loss of %.2f%% exceeds %.2f%%", side, price, side, lossPct, maxLossPct)).
		WithContext("side", side).
		WithContext("price", price).
		WithContext("loss_pct", lossPct)
}

// NewSlippageProtection builds the refusal returned when re-pricing drifted
// too far from the original order price.
func NewSlippageProtection(side string, price, slippagePct, maxSlippagePct float64) *EngineError {
	return New(CategoryRiskGate, "orders", "slippage protection",
		fmt.Sprintf("refusing to %s at %.8g, slippage of %.2f%% exceeds %.2f%%", side, price, slippagePct, maxSlippagePct)).
		WithContext("side", side).
		WithContext("price", price).
		WithContext("slippage_pct", slippagePct)
}

// NewOrderRejected builds the fatal error for an exchange rejection with no
// recognized reject reason.
func NewOrderRejected(side, reason string) *EngineError {
	return New(CategoryOrder, "orders", "place",
		fmt.Sprintf("%s order rejected: %q", side, reason)).WithRetryable(false)
}

// Categorize attempts to categorize a generic error by inspecting its text.
// Used at the exchange boundary where adapters return plain errors.
func Categorize(err error, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	if engErr, ok := err.(*EngineError); ok {
		return engErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return Wrap(err, CategoryTimeout, component, operation, "request timed out")
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "dial") ||
		strings.Contains(msg, "reset"):
		return Wrap(err, CategoryNetwork, component, operation, "network failure")
	case strings.Contains(msg, "insufficient") || strings.Contains(msg, "balance"):
		return Wrap(err, CategoryOrder, component, operation, "insufficient balance").WithRetryable(false)
	default:
		return Wrap(err, CategoryExchange, component, operation, "exchange call failed")
	}
}
