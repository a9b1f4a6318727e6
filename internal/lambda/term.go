// Package lambda implements the Layer-1 term language of the Causality
// core: a linear lambda calculus with products, sums, row-polymorphic
// records, and the typing judgement that assigns every term a type. Terms
// arrive already parsed; no surface syntax is defined here.
package lambda

import (
	"fmt"
	"strings"

	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Kind discriminates the term variants.
type Kind int

const (
	KindVar Kind = iota
	KindLit
	KindLam
	KindApp
	KindLet
	KindPair
	KindLetPair
	KindInl
	KindInr
	KindCase
	KindRecord
	KindExtend
	KindRestrict
	KindSelect
)

// String returns the term kind name.
func (k Kind) String() string {
	switch k {
	case KindVar:
		return "var"
	case KindLit:
		return "lit"
	case KindLam:
		return "lam"
	case KindApp:
		return "app"
	case KindLet:
		return "let"
	case KindPair:
		return "pair"
	case KindLetPair:
		return "let-pair"
	case KindInl:
		return "inl"
	case KindInr:
		return "inr"
	case KindCase:
		return "case"
	case KindRecord:
		return "record"
	case KindExtend:
		return "extend"
	case KindRestrict:
		return "restrict"
	case KindSelect:
		return "select"
	default:
		return "invalid"
	}
}

// FieldInit is one labelled component of a record literal.
type FieldInit struct {
	Label string
	Term  *Term
}

// Term is a Layer-1 term. The meaning of A, B and C depends on the kind:
//
//	Lam:      A = body
//	App:      A = function, B = argument
//	Let:      A = bound term, B = body
//	Pair:     A, B = components
//	LetPair:  A = pair, B = body
//	Inl/Inr:  A = payload
//	Case:     A = scrutinee, B = left branch, C = right branch
//	Extend:   A = field value, B = record
//	Restrict: A = record
//	Select:   A = record
//
// Inference fills BinderType (and Binder2Type for two-binder forms) so the
// linearity checker can classify bindings without re-running inference.
type Term struct {
	A           *Term
	B           *Term
	C           *Term
	Lit         *value.Value
	Ann         *types.Type // Lam parameter type; Inl/Inr sum annotation
	BinderType  *types.Type
	Binder2Type *types.Type
	Fields      []FieldInit
	Name        string // Var name; binder; field label
	Binder2     string // LetPair second binder; Case right binder
	Kind        Kind
}

// ====== Constructors ======

// Var references a bound variable.
func Var(name string) *Term { return &Term{Kind: KindVar, Name: name} }

// Lit embeds a value literal.
func Lit(v *value.Value) *Term { return &Term{Kind: KindLit, Lit: v} }

// Lam abstracts over a typed parameter.
func Lam(param string, paramType *types.Type, body *Term) *Term {
	return &Term{Kind: KindLam, Name: param, Ann: paramType, A: body}
}

// App applies a function to an argument.
func App(fn, arg *Term) *Term { return &Term{Kind: KindApp, A: fn, B: arg} }

// Let binds the value of one term in another.
func Let(name string, bound, body *Term) *Term {
	return &Term{Kind: KindLet, Name: name, A: bound, B: body}
}

// Pair builds a product.
func Pair(a, b *Term) *Term { return &Term{Kind: KindPair, A: a, B: b} }

// LetPair eliminates a product, binding both components.
func LetPair(x, y string, pair, body *Term) *Term {
	return &Term{Kind: KindLetPair, Name: x, Binder2: y, A: pair, B: body}
}

// Inl injects into the left side of the annotated sum type.
func Inl(t *Term, sum *types.Type) *Term {
	return &Term{Kind: KindInl, A: t, Ann: sum}
}

// Inr injects into the right side of the annotated sum type.
func Inr(t *Term, sum *types.Type) *Term {
	return &Term{Kind: KindInr, A: t, Ann: sum}
}

// Case eliminates a sum.
func Case(scrutinee *Term, x string, left *Term, y string, right *Term) *Term {
	return &Term{Kind: KindCase, A: scrutinee, Name: x, B: left, Binder2: y, C: right}
}

// Record builds a record literal.
func Record(fields []FieldInit) *Term {
	return &Term{Kind: KindRecord, Fields: fields}
}

// Extend adds a labelled field to a record; the label must be absent.
func Extend(label string, val, record *Term) *Term {
	return &Term{Kind: KindExtend, Name: label, A: val, B: record}
}

// Restrict removes a labelled field from a record; the label must be present.
func Restrict(record *Term, label string) *Term {
	return &Term{Kind: KindRestrict, Name: label, A: record}
}

// Select projects a labelled field out of a record, consuming the record.
func Select(record *Term, label string) *Term {
	return &Term{Kind: KindSelect, Name: label, A: record}
}

// ====== String representation ======

// String renders the term for diagnostics.
func (t *Term) String() string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind {
	case KindVar:
		return t.Name
	case KindLit:
		return t.Lit.String()
	case KindLam:
		return fmt.Sprintf("\\%s: %s. %s", t.Name, t.Ann, t.A)
	case KindApp:
		return fmt.Sprintf("(%s %s)", t.A, t.B)
	case KindLet:
		return fmt.Sprintf("let %s = %s in %s", t.Name, t.A, t.B)
	case KindPair:
		return fmt.Sprintf("(%s, %s)", t.A, t.B)
	case KindLetPair:
		return fmt.Sprintf("let (%s, %s) = %s in %s", t.Name, t.Binder2, t.A, t.B)
	case KindInl:
		return fmt.Sprintf("inl %s", t.A)
	case KindInr:
		return fmt.Sprintf("inr %s", t.A)
	case KindCase:
		return fmt.Sprintf("case %s of inl %s -> %s | inr %s -> %s", t.A, t.Name, t.B, t.Binder2, t.C)
	case KindRecord:
		parts := make([]string, 0, len(t.Fields))
		for _, f := range t.Fields {
			parts = append(parts, fmt.Sprintf("%s = %s", f.Label, f.Term))
		}

		return "{" + strings.Join(parts, ", ") + "}"
	case KindExtend:
		return fmt.Sprintf("{%s = %s; %s}", t.Name, t.A, t.B)
	case KindRestrict:
		return fmt.Sprintf("(%s \\ %s)", t.A, t.Name)
	case KindSelect:
		return fmt.Sprintf("%s.%s", t.A, t.Name)
	default:
		return "<invalid>"
	}
}
