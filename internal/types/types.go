// Package types implements the Causality type system: base types, products,
// sums, row-polymorphic records, session types and functions, together with
// structural unification, session duality, and linearity classification.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the type variants.
type Kind int

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindSymbol
	KindString
	KindProduct
	KindSum
	KindRecord
	KindSession
	KindFunction
	KindVar
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindProduct:
		return "product"
	case KindSum:
		return "sum"
	case KindRecord:
		return "record"
	case KindSession:
		return "session"
	case KindFunction:
		return "function"
	case KindVar:
		return "typevar"
	default:
		return "invalid"
	}
}

// Type is a type in the Causality type system.
type Type struct {
	Left     *Type // Product/Sum left; Function parameter
	Right    *Type // Product/Sum right; Function result
	Row      *Row
	Session  *Session
	Var      int
	LinearFn bool // set when the function closure captures a linear binding
	Kind     Kind
}

// ====== Built-in types ======

var (
	Unit   = &Type{Kind: KindUnit}
	Bool   = &Type{Kind: KindBool}
	Int    = &Type{Kind: KindInt}
	Symbol = &Type{Kind: KindSymbol}
	String = &Type{Kind: KindString}
)

// ====== Constructors ======

// NewProduct builds the product type of two types.
func NewProduct(left, right *Type) *Type {
	return &Type{Kind: KindProduct, Left: left, Right: right}
}

// NewSum builds the sum type of two types.
func NewSum(left, right *Type) *Type {
	return &Type{Kind: KindSum, Left: left, Right: right}
}

// NewRecord builds a record type over a row.
func NewRecord(row *Row) *Type {
	return &Type{Kind: KindRecord, Row: row}
}

// NewSession wraps a session protocol as the type of a channel endpoint.
func NewSession(s *Session) *Type {
	return &Type{Kind: KindSession, Session: s}
}

// NewFunction builds a function type. linear marks closures that capture a
// linear binding and must therefore themselves be consumed exactly once.
func NewFunction(param, result *Type, linear bool) *Type {
	return &Type{Kind: KindFunction, Left: param, Right: result, LinearFn: linear}
}

// NewVar creates a type variable for unification.
func NewVar(id int) *Type {
	return &Type{Kind: KindVar, Var: id}
}

// ====== Linearity classification ======

// IsLinear reports whether bindings of this type must be consumed exactly
// once. Records, sessions, and any compound containing a linear type are
// linear; scalars, symbols and strings are unrestricted. Functions are
// linear exactly when their closure captured a linear binding.
func (t *Type) IsLinear() bool {
	if t == nil {
		return false
	}

	switch t.Kind {
	case KindRecord, KindSession:
		return true
	case KindProduct, KindSum:
		return t.Left.IsLinear() || t.Right.IsLinear()
	case KindFunction:
		return t.LinearFn
	default:
		return false
	}
}

// ====== Equality ======

// Equal is structural type equality. Open rows are equal only when their
// tail variables coincide; sessions compare with bounded recursion
// unfolding.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}

	if t.Kind != other.Kind {
		return false
	}

	switch t.Kind {
	case KindUnit, KindBool, KindInt, KindSymbol, KindString:
		return true
	case KindProduct, KindSum:
		return t.Left.Equal(other.Left) && t.Right.Equal(other.Right)
	case KindRecord:
		return t.Row.Equal(other.Row)
	case KindSession:
		return SessionEqual(t.Session, other.Session)
	case KindFunction:
		return t.LinearFn == other.LinearFn &&
			t.Left.Equal(other.Left) && t.Right.Equal(other.Right)
	case KindVar:
		return t.Var == other.Var
	default:
		return false
	}
}

// ====== String representation ======

// String renders the type for diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind {
	case KindUnit, KindBool, KindInt, KindSymbol, KindString:
		return t.Kind.String()
	case KindProduct:
		return fmt.Sprintf("(%s * %s)", t.Left.String(), t.Right.String())
	case KindSum:
		return fmt.Sprintf("(%s + %s)", t.Left.String(), t.Right.String())
	case KindRecord:
		return t.Row.String()
	case KindSession:
		return fmt.Sprintf("session[%s]", t.Session.String())
	case KindFunction:
		arrow := "->"
		if t.LinearFn {
			arrow = "-o"
		}

		return fmt.Sprintf("(%s %s %s)", t.Left.String(), arrow, t.Right.String())
	case KindVar:
		return fmt.Sprintf("'t%d", t.Var)
	default:
		return "<invalid>"
	}
}

func joinArms(arms []SessionArm, sep string) string {
	parts := make([]string, 0, len(arms))
	for _, a := range arms {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Label, a.Session.String()))
	}

	return strings.Join(parts, sep)
}
