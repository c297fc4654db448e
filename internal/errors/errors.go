// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData           = errors.New("no rows for instrument at timestamp")
	ErrDayAborted       = errors.New("day aborted")
	ErrLegNotFound      = errors.New("leg not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrBudgetExhausted  = errors.New("re-entry budget exhausted")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDatabaseError    = errors.New("database error")
	ErrCacheMiss        = errors.New("month not present in cache")
)

// DataError represents a market data lookup failure.
type DataError struct {
	Ticker    string
	Timestamp string
	Message   string
	Err       error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s @ %s]: %s: %v", e.Ticker, e.Timestamp, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s @ %s]: %s", e.Ticker, e.Timestamp, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(ticker, timestamp, message string, err error) *DataError {
	return &DataError{
		Ticker:    ticker,
		Timestamp: timestamp,
		Message:   message,
		Err:       err,
	}
}

// LegError represents an error in a leg configuration file.
type LegError struct {
	LegID string
	Field string
	Err   error
}

func (e *LegError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("leg error [%s] field %q: %v", e.LegID, e.Field, e.Err)
	}
	return fmt.Sprintf("leg error [%s]: %v", e.LegID, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// NewLegError creates a new LegError.
func NewLegError(legID, field string, err error) *LegError {
	return &LegError{
		LegID: legID,
		Field: field,
		Err:   err,
	}
}

// OrderError represents an error while submitting or filling an entry.
type OrderError struct {
	OrderID string
	LegID   string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s leg %s: %s: %v", e.OrderID, e.Action, e.LegID, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s leg %s: %s", e.OrderID, e.Action, e.LegID, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, legID, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		LegID:   legID,
		Action:  action,
		Reason:  reason,
		Err:     err,
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

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DayError represents a failure while simulating a single trading day.
// Day failures are isolated; the run records them and moves on.
type DayError struct {
	Date string
	Err  error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("day %s: %v", e.Date, e.Err)
}

func (e *DayError) Unwrap() error {
	return e.Err
}

// NewDayError creates a new DayError.
func NewDayError(date string, err error) *DayError {
	return &DayError{Date: date, Err: err}
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
