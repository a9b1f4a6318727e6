// Structural unification with row-variable extension.
//
// Free rows (rows with a tail variable) may be extended with the labels the
// other side carries; rigid (closed) rows may not. Tail bindings are guarded
// by an occurs check so unification terminates on cyclic row constraints.
package types

import (
	"fmt"
	"strconv"
)

// Subst is the substitution produced by unification, mapping type variables
// and row variables to their solutions.
type Subst struct {
	Types map[int]*Type
	Rows  map[int]*Row
}

// NewSubst returns an empty substitution.
func NewSubst() *Subst {
	return &Subst{Types: make(map[int]*Type), Rows: make(map[int]*Row)}
}

// Apply rewrites a type under the substitution.
func (s *Subst) Apply(t *Type) *Type {
	if t == nil {
		return nil
	}

	switch t.Kind {
	case KindVar:
		if bound, ok := s.Types[t.Var]; ok {
			return s.Apply(bound)
		}

		return t
	case KindProduct, KindSum:
		return &Type{Kind: t.Kind, Left: s.Apply(t.Left), Right: s.Apply(t.Right)}
	case KindFunction:
		return &Type{Kind: KindFunction, Left: s.Apply(t.Left), Right: s.Apply(t.Right), LinearFn: t.LinearFn}
	case KindRecord:
		return &Type{Kind: KindRecord, Row: s.ApplyRow(t.Row)}
	default:
		return t
	}
}

// ApplyRow rewrites a row under the substitution, flattening any bound tail.
func (s *Subst) ApplyRow(r *Row) *Row {
	if r == nil {
		return nil
	}

	fields := make([]RowField, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = RowField{Label: f.Label, Type: s.Apply(f.Type)}
	}

	tail := r.Tail

	for tail != NoTail {
		bound, ok := s.Rows[tail]
		if !ok {
			break
		}

		for _, f := range bound.Fields {
			fields = append(fields, RowField{Label: f.Label, Type: s.Apply(f.Type)})
		}

		tail = bound.Tail
	}

	out, err := NewRow(fields, tail)
	if err != nil {
		// Bindings are conflict-checked when they are made; a duplicate here
		// means a unifier bug, not a user error.
		panic(fmt.Sprintf("types: substitution produced conflicting row: %v", err))
	}

	return out
}

// Unify computes the most general substitution making two types equal, or a
// type error when none exists.
func Unify(a, b *Type) (*Subst, error) {
	u := &unifier{subst: NewSubst(), nextRowVar: maxRowVar(a, maxRowVar(b, 0)) + 1}

	if err := u.unify(a, b); err != nil {
		return nil, err
	}

	return u.subst, nil
}

type unifier struct {
	subst      *Subst
	nextRowVar int
}

func (u *unifier) freshRowVar() int {
	v := u.nextRowVar
	u.nextRowVar++

	return v
}

func (u *unifier) unify(a, b *Type) error {
	a = u.subst.Apply(a)
	b = u.subst.Apply(b)

	if a.Kind == KindVar {
		return u.bindType(a.Var, b)
	}

	if b.Kind == KindVar {
		return u.bindType(b.Var, a)
	}

	if a.Kind != b.Kind {
		return ErrMismatch(a, b)
	}

	switch a.Kind {
	case KindUnit, KindBool, KindInt, KindSymbol, KindString:
		return nil
	case KindProduct, KindSum:
		if err := u.unify(a.Left, b.Left); err != nil {
			return err
		}

		return u.unify(a.Right, b.Right)
	case KindFunction:
		if a.LinearFn != b.LinearFn {
			return ErrMismatch(a, b)
		}

		if err := u.unify(a.Left, b.Left); err != nil {
			return err
		}

		return u.unify(a.Right, b.Right)
	case KindRecord:
		return u.unifyRows(a.Row, b.Row)
	case KindSession:
		if !SessionEqual(a.Session, b.Session) {
			return ErrMismatch(a, b)
		}

		return nil
	default:
		return ErrMismatch(a, b)
	}
}

func (u *unifier) bindType(v int, t *Type) error {
	if t.Kind == KindVar && t.Var == v {
		return nil
	}

	if occursType(v, t) {
		return ErrOccurs("'t" + strconv.Itoa(v))
	}

	u.subst.Types[v] = t

	return nil
}

func (u *unifier) unifyRows(a, b *Row) error {
	a = u.subst.ApplyRow(a)
	b = u.subst.ApplyRow(b)

	aOnly, bOnly := make([]RowField, 0), make([]RowField, 0)

	i, j := 0, 0
	for i < len(a.Fields) && j < len(b.Fields) {
		switch {
		case a.Fields[i].Label == b.Fields[j].Label:
			if err := u.unify(a.Fields[i].Type, b.Fields[j].Type); err != nil {
				return err
			}

			i++
			j++
		case a.Fields[i].Label < b.Fields[j].Label:
			aOnly = append(aOnly, a.Fields[i])
			i++
		default:
			bOnly = append(bOnly, b.Fields[j])
			j++
		}
	}

	aOnly = append(aOnly, a.Fields[i:]...)
	bOnly = append(bOnly, b.Fields[j:]...)

	// A rigid row cannot absorb labels it does not carry.
	if len(aOnly) > 0 && !b.IsOpen() {
		return ErrRowConflict(aOnly[0].Label)
	}

	if len(bOnly) > 0 && !a.IsOpen() {
		return ErrRowConflict(bOnly[0].Label)
	}

	switch {
	case !a.IsOpen() && !b.IsOpen():
		return nil
	case a.IsOpen() && !b.IsOpen():
		return u.bindRow(a.Tail, &Row{Fields: bOnly, Tail: NoTail})
	case !a.IsOpen() && b.IsOpen():
		return u.bindRow(b.Tail, &Row{Fields: aOnly, Tail: NoTail})
	default:
		if a.Tail == b.Tail {
			if len(aOnly) > 0 || len(bOnly) > 0 {
				return ErrRowConflict(firstLabel(aOnly, bOnly))
			}

			return nil
		}

		shared := u.freshRowVar()

		if err := u.bindRow(a.Tail, &Row{Fields: bOnly, Tail: shared}); err != nil {
			return err
		}

		return u.bindRow(b.Tail, &Row{Fields: aOnly, Tail: shared})
	}
}

func (u *unifier) bindRow(v int, r *Row) error {
	if occursRow(v, r) {
		return ErrOccurs("'r" + strconv.Itoa(v))
	}

	u.subst.Rows[v] = r

	return nil
}

func firstLabel(a, b []RowField) string {
	if len(a) > 0 {
		return a[0].Label
	}

	return b[0].Label
}

func occursType(v int, t *Type) bool {
	if t == nil {
		return false
	}

	switch t.Kind {
	case KindVar:
		return t.Var == v
	case KindProduct, KindSum, KindFunction:
		return occursType(v, t.Left) || occursType(v, t.Right)
	case KindRecord:
		for _, f := range t.Row.Fields {
			if occursType(v, f.Type) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func occursRow(v int, r *Row) bool {
	if r == nil {
		return false
	}

	if r.Tail == v {
		return true
	}

	for _, f := range r.Fields {
		if occursType(v, f.Type) {
			return true
		}

		if f.Type.Kind == KindRecord && occursRow(v, f.Type.Row) {
			return true
		}
	}

	return false
}

func maxRowVar(t *Type, acc int) int {
	if t == nil {
		return acc
	}

	switch t.Kind {
	case KindProduct, KindSum, KindFunction:
		return maxRowVar(t.Right, maxRowVar(t.Left, acc))
	case KindRecord:
		if t.Row.Tail > acc {
			acc = t.Row.Tail
		}

		for _, f := range t.Row.Fields {
			acc = maxRowVar(f.Type, acc)
		}

		return acc
	default:
		return acc
	}
}
