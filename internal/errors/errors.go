package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Fatal errors that halt new order dispatch
	ErrorCategoryLedger ErrorCategory = "LEDGER"
	ErrorCategoryConfig ErrorCategory = "CONFIG"

	// Venue-level anomalies surfaced upward
	ErrorCategoryVenue      ErrorCategory = "VENUE"
	ErrorCategoryAckTimeout ErrorCategory = "ACK_TIMEOUT"

	// Non-fatal, handled locally within a cycle
	ErrorCategoryDataQuality ErrorCategory = "DATA_QUALITY"
	ErrorCategoryFeed        ErrorCategory = "FEED"
)

// Sentinel errors for expected control-flow outcomes and invalid calls.
var (
	// ErrInsufficientHistory means the signal engine has fewer ticks than
	// its lookback requires. Treated as "no signal this cycle", not a failure.
	ErrInsufficientHistory = errors.New("insufficient history for signal evaluation")

	// ErrInvalidStateTransition means an order was asked to leave a
	// terminal status, or cancelled in a state that does not allow it.
	ErrInvalidStateTransition = errors.New("invalid order state transition")

	// ErrUnknownOrder means a venue event referenced an order the router
	// is not tracking.
	ErrUnknownOrder = errors.New("order not found")

	// ErrFeedClosed means the tick stream disconnected. Terminal for that
	// feed instance; a fresh instance with a new connection is required.
	ErrFeedClosed = errors.New("market data feed disconnected")

	// ErrDispatchHalted means the engine is in degraded mode and refuses
	// new order submissions while cancellation remains available.
	ErrDispatchHalted = errors.New("order dispatch halted")
)

// EngineError represents a categorized error with component context
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
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

// IsFatal returns whether this error must halt new order dispatch
func (e *EngineError) IsFatal() bool {
	return e.Category == ErrorCategoryLedger || e.Category == ErrorCategoryConfig
}

// New creates a new categorized engine error
func New(category ErrorCategory, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap wraps an existing error with engine error context
func Wrap(err error, category ErrorCategory, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// DataQualityError describes a malformed or out-of-order tick that was
// dropped. The stream continues; the tick does not.
type DataQualityError struct {
	Symbol string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s: %s", e.Symbol, e.Reason)
}

// NewDataQualityError creates a data quality error for a dropped tick
func NewDataQualityError(symbol, reason string) *DataQualityError {
	return &DataQualityError{Symbol: symbol, Reason: reason}
}

// LedgerInconsistencyError means a fill could not be reconciled to a
// known order. Fatal: new order submission halts pending manual
// intervention, while cancellation of existing orders stays available.
type LedgerInconsistencyError struct {
	FillID  string
	OrderID string
	Reason  string
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency: fill %s (order %s): %s", e.FillID, e.OrderID, e.Reason)
}

// VenueRejectionError means the venue refused an order submission.
// The intent is discarded and logged; the cycle continues.
type VenueRejectionError struct {
	OrderID string
	Reason  string
}

func (e *VenueRejectionError) Error() string {
	return fmt.Sprintf("venue rejected order %s: %s", e.OrderID, e.Reason)
}

// AckTimeoutError means an order sat in pending beyond the configured
// acknowledgment timeout. The order state is unknown; it is escalated
// to the operator rather than retried, since a duplicate submission
// risks a double fill.
type AckTimeoutError struct {
	OrderID string
	Elapsed time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("order %s unacknowledged after %v, state unknown", e.OrderID, e.Elapsed)
}
