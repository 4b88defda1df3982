package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the decision-layer error taxonomy
type ErrorCategory string

const (
	// Degradable errors: the cycle continues on a safe default
	ErrorCategoryDataUnavailable ErrorCategory = "DATA_UNAVAILABLE"
	ErrorCategoryPersistence     ErrorCategory = "PERSISTENCE"

	// Per-opportunity errors: reject the one input, keep the batch
	ErrorCategoryInvalidOpportunity ErrorCategory = "INVALID_OPPORTUNITY"
	ErrorCategoryBudgetExceeded     ErrorCategory = "BUDGET_EXCEEDED"
	ErrorCategoryBrokerRejection    ErrorCategory = "BROKER_REJECTION"

	// Fatal only to the single operation, never the process
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryInternal      ErrorCategory = "INTERNAL"
)

// DecisionError is a categorized error with component/operation context
type DecisionError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *DecisionError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Message, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Message, e.Operation)
}

// Unwrap returns the underlying error for error unwrapping
func (e *DecisionError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether the failed operation can be retried as-is
func (e *DecisionError) IsRetryable() bool {
	return e.Retryable
}

// IsDegradable reports whether the cycle should continue on a safe default
// instead of surfacing a rejection
func (e *DecisionError) IsDegradable() bool {
	return e.Category == ErrorCategoryDataUnavailable || e.Category == ErrorCategoryPersistence
}

// New creates a new categorized decision error
func New(category ErrorCategory, component, operation, message string) *DecisionError {
	return &DecisionError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with decision error context
func Wrap(err error, category ErrorCategory, component, operation string) *DecisionError {
	if err == nil {
		return nil
	}
	return &DecisionError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable overrides the retryable flag
func (e *DecisionError) WithRetryable(retryable bool) *DecisionError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryDataUnavailable, ErrorCategoryPersistence:
		return true
	case ErrorCategoryInvalidOpportunity, ErrorCategoryBudgetExceeded, ErrorCategoryConfiguration:
		return false
	default:
		return false
	}
}

// CategoryOf extracts the taxonomy category of err; uncategorized errors
// report as internal
func CategoryOf(err error) ErrorCategory {
	var de *DecisionError
	if errors.As(err, &de) {
		return de.Category
	}
	return ErrorCategoryInternal
}

// IsCategory reports whether err is a DecisionError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var de *DecisionError
	if errors.As(err, &de) {
		return de.Category == category
	}
	return false
}

// Common constructors

func NewDataUnavailable(component, operation string, err error) *DecisionError {
	return Wrap(err, ErrorCategoryDataUnavailable, component, operation)
}

func NewInvalidOpportunity(component, message string) *DecisionError {
	return New(ErrorCategoryInvalidOpportunity, component, "validate", message)
}

func NewBudgetExceeded(component, message string) *DecisionError {
	return New(ErrorCategoryBudgetExceeded, component, "reserve", message)
}

func NewBrokerRejection(component, reason string) *DecisionError {
	return New(ErrorCategoryBrokerRejection, component, "execute", reason)
}

func NewPersistenceFailure(operation string, err error) *DecisionError {
	return Wrap(err, ErrorCategoryPersistence, "state", operation)
}

func NewConfigurationError(component, message string) *DecisionError {
	return New(ErrorCategoryConfiguration, component, "load", message)
}
