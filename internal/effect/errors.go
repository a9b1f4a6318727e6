package effect

import (
	"fmt"

	"github.com/causality-lang/causality/internal/value"
)

// ErrorCode is the machine-readable tag on evaluator and registry errors.
type ErrorCode string

const (
	CodeUnhandledEffect  ErrorCode = "UNHANDLED_EFFECT"
	CodeHandlerPanic     ErrorCode = "HANDLER_PANIC"
	CodeIntOverflow      ErrorCode = "INT_OVERFLOW"
	CodeDuplicateHandler ErrorCode = "DUPLICATE_HANDLER"
	CodeBadArity         ErrorCode = "BAD_ARITY"
	CodeEmptyChannel     ErrorCode = "EMPTY_CHANNEL"
	CodeSessionMismatch  ErrorCode = "SESSION_MISMATCH"
)

// Error is an evaluation or registry failure. It is raised, not recovered
// from; the evaluator aborts and surfaces it unchanged.
type Error struct {
	Reason string
	Tag    value.Symbol
	Code   ErrorCode
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeUnhandledEffect:
		return fmt.Sprintf("unhandled effect %s", e.Tag)
	case CodeHandlerPanic:
		return fmt.Sprintf("handler for %s panicked: %s", e.Tag, e.Reason)
	case CodeIntOverflow:
		return fmt.Sprintf("integer overflow in %s", e.Tag)
	case CodeDuplicateHandler:
		return fmt.Sprintf("handler for %s already registered in this frame", e.Tag)
	case CodeBadArity:
		return fmt.Sprintf("wrong argument count for %s: %s", e.Tag, e.Reason)
	case CodeEmptyChannel:
		return fmt.Sprintf("receive on empty channel: %s", e.Reason)
	case CodeSessionMismatch:
		return fmt.Sprintf("session endpoints cannot be paired: %s", e.Reason)
	default:
		return fmt.Sprintf("effect error (%s)", e.Code)
	}
}

func errUnhandled(tag value.Symbol) *Error {
	return &Error{Code: CodeUnhandledEffect, Tag: tag}
}

func errPanic(tag value.Symbol, reason string) *Error {
	return &Error{Code: CodeHandlerPanic, Tag: tag, Reason: reason}
}

// ErrIntOverflow reports checked integer arithmetic leaving the 64-bit range.
func ErrIntOverflow(tag value.Symbol) *Error {
	return &Error{Code: CodeIntOverflow, Tag: tag}
}
