// Package diag provides standardized error values for the Causality core.
// Every error surfaced across an API boundary is a value carrying a
// machine-readable category and code plus a human-readable message.
package diag

import (
	"fmt"
)

// Category groups errors by the subsystem that raised them.
type Category string

const (
	CategoryType      Category = "TYPE"
	CategoryLinearity Category = "LINEARITY"
	CategoryEval      Category = "EVAL"
	CategoryCodec     Category = "CODEC"
	CategoryGraph     Category = "GRAPH"
	CategoryOptimize  Category = "OPTIMIZE"
	CategoryRegistry  Category = "REGISTRY"
	CategoryStore     Category = "STORE"
)

// Error provides a consistent error format across all core components.
type Error struct {
	Category Category
	Code     string
	Message  string
	Context  map[string]interface{}
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a new standardized error.
func New(category Category, code, message string, context map[string]interface{}) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
	}
}

// Newf creates a new standardized error with a formatted message and no context.
func Newf(category Category, code, format string, args ...interface{}) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a category and code to an underlying error.
func Wrap(category Category, code, message string, cause error) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}
