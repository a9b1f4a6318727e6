package types

import (
	"fmt"
)

// ErrorCode is the machine-readable tag carried by every type error.
type ErrorCode string

const (
	CodeTypeMismatch    ErrorCode = "TYPE_MISMATCH"
	CodeUnboundVariable ErrorCode = "UNBOUND_VARIABLE"
	CodeRowConflict     ErrorCode = "ROW_CONFLICT"
	CodeNotDual         ErrorCode = "NOT_DUAL"
	CodeOccursCheck     ErrorCode = "OCCURS_CHECK"
)

// Error is a type-checking failure. All type errors are values; nothing in
// the type system panics across API boundaries.
type Error struct {
	Expected *Type
	Got      *Type
	SessionA *Session
	SessionB *Session
	Label    string
	Name     string
	Code     ErrorCode
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeTypeMismatch:
		return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
	case CodeUnboundVariable:
		return fmt.Sprintf("unbound variable %q", e.Name)
	case CodeRowConflict:
		return fmt.Sprintf("row conflict on label %q", e.Label)
	case CodeNotDual:
		return fmt.Sprintf("session types are not dual: %s vs %s", e.SessionA, e.SessionB)
	case CodeOccursCheck:
		return fmt.Sprintf("occurs check failed for %q", e.Name)
	default:
		return fmt.Sprintf("type error (%s)", e.Code)
	}
}

// ErrMismatch builds a TYPE_MISMATCH error.
func ErrMismatch(expected, got *Type) *Error {
	return &Error{Code: CodeTypeMismatch, Expected: expected, Got: got}
}

// ErrUnbound builds an UNBOUND_VARIABLE error.
func ErrUnbound(name string) *Error {
	return &Error{Code: CodeUnboundVariable, Name: name}
}

// ErrRowConflict builds a ROW_CONFLICT error.
func ErrRowConflict(label string) *Error {
	return &Error{Code: CodeRowConflict, Label: label}
}

// ErrNotDual builds a NOT_DUAL error.
func ErrNotDual(a, b *Session) *Error {
	return &Error{Code: CodeNotDual, SessionA: a, SessionB: b}
}

// ErrOccurs builds an OCCURS_CHECK error.
func ErrOccurs(name string) *Error {
	return &Error{Code: CodeOccursCheck, Name: name}
}
