// The typing judgement for Layer-1 terms.
//
// Inference is annotation-driven: lambda parameters carry their type and sum
// injections carry the full sum, so the judgement is syntax-directed and
// unification is only needed where two derivations meet (application and
// case branches). Binder types are written back into the term so the
// linearity checker can classify bindings without re-deriving them.
package lambda

import (
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Env is the typing context. Bindings shadow outward; the linear/unrestricted
// split is not tracked here — the linearity checker owns usage discipline.
type Env struct {
	entries []envEntry
}

type envEntry struct {
	name string
	typ  *types.Type
}

// NewEnv returns an empty typing context.
func NewEnv() *Env { return &Env{} }

// Bind pushes a binding. Callers pair every Bind with an Unbind.
func (e *Env) Bind(name string, t *types.Type) {
	e.entries = append(e.entries, envEntry{name: name, typ: t})
}

// Unbind pops the most recent binding.
func (e *Env) Unbind() {
	e.entries = e.entries[:len(e.entries)-1]
}

// Lookup resolves a name to its type, innermost binding first.
func (e *Env) Lookup(name string) (*types.Type, bool) {
	for i := len(e.entries) - 1; i >= 0; i-- {
		if e.entries[i].name == name {
			return e.entries[i].typ, true
		}
	}

	return nil, false
}

// Infer assigns a type to a term under the given context, or returns a type
// error. Binder types are annotated onto the term as a side effect.
func Infer(env *Env, t *Term) (*types.Type, error) {
	switch t.Kind {
	case KindVar:
		typ, ok := env.Lookup(t.Name)
		if !ok {
			return nil, types.ErrUnbound(t.Name)
		}

		return typ, nil

	case KindLit:
		return typeOfLiteral(t.Lit)

	case KindLam:
		env.Bind(t.Name, t.Ann)
		result, err := Infer(env, t.A)
		env.Unbind()

		if err != nil {
			return nil, err
		}

		return types.NewFunction(t.Ann, result, capturesLinear(env, t)), nil

	case KindApp:
		fnType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		if fnType.Kind != types.KindFunction {
			return nil, types.ErrMismatch(types.NewFunction(types.NewVar(-1), types.NewVar(-2), false), fnType)
		}

		argType, err := Infer(env, t.B)
		if err != nil {
			return nil, err
		}

		subst, err := types.Unify(fnType.Left, argType)
		if err != nil {
			return nil, err
		}

		return subst.Apply(fnType.Right), nil

	case KindLet:
		boundType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		t.BinderType = boundType

		env.Bind(t.Name, boundType)
		result, err := Infer(env, t.B)
		env.Unbind()

		return result, err

	case KindPair:
		left, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		right, err := Infer(env, t.B)
		if err != nil {
			return nil, err
		}

		return types.NewProduct(left, right), nil

	case KindLetPair:
		pairType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		if pairType.Kind != types.KindProduct {
			return nil, types.ErrMismatch(types.NewProduct(types.NewVar(-1), types.NewVar(-2)), pairType)
		}

		t.BinderType = pairType.Left
		t.Binder2Type = pairType.Right

		env.Bind(t.Name, pairType.Left)
		env.Bind(t.Binder2, pairType.Right)
		result, err := Infer(env, t.B)
		env.Unbind()
		env.Unbind()

		return result, err

	case KindInl, KindInr:
		if t.Ann == nil || t.Ann.Kind != types.KindSum {
			return nil, types.ErrMismatch(types.NewSum(types.NewVar(-1), types.NewVar(-2)), t.Ann)
		}

		payload, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		side := t.Ann.Left
		if t.Kind == KindInr {
			side = t.Ann.Right
		}

		if _, err := types.Unify(side, payload); err != nil {
			return nil, err
		}

		return t.Ann, nil

	case KindCase:
		scrutType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		if scrutType.Kind != types.KindSum {
			return nil, types.ErrMismatch(types.NewSum(types.NewVar(-1), types.NewVar(-2)), scrutType)
		}

		t.BinderType = scrutType.Left
		t.Binder2Type = scrutType.Right

		env.Bind(t.Name, scrutType.Left)
		leftType, err := Infer(env, t.B)
		env.Unbind()

		if err != nil {
			return nil, err
		}

		env.Bind(t.Binder2, scrutType.Right)
		rightType, err := Infer(env, t.C)
		env.Unbind()

		if err != nil {
			return nil, err
		}

		subst, err := types.Unify(leftType, rightType)
		if err != nil {
			return nil, err
		}

		return subst.Apply(leftType), nil

	case KindRecord:
		fields := make([]types.RowField, 0, len(t.Fields))

		for _, f := range t.Fields {
			fieldType, err := Infer(env, f.Term)
			if err != nil {
				return nil, err
			}

			fields = append(fields, types.RowField{Label: f.Label, Type: fieldType})
		}

		row, err := types.NewRow(fields, types.NoTail)
		if err != nil {
			return nil, err
		}

		return types.NewRecord(row), nil

	case KindExtend:
		fieldType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		recType, err := Infer(env, t.B)
		if err != nil {
			return nil, err
		}

		if recType.Kind != types.KindRecord {
			return nil, types.ErrMismatch(types.NewRecord(types.MustRow(nil, 0)), recType)
		}

		row, err := recType.Row.Extend(t.Name, fieldType)
		if err != nil {
			return nil, err
		}

		return types.NewRecord(row), nil

	case KindRestrict:
		recType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		if recType.Kind != types.KindRecord {
			return nil, types.ErrMismatch(types.NewRecord(types.MustRow(nil, 0)), recType)
		}

		row, err := recType.Row.Restrict(t.Name)
		if err != nil {
			return nil, err
		}

		return types.NewRecord(row), nil

	case KindSelect:
		recType, err := Infer(env, t.A)
		if err != nil {
			return nil, err
		}

		if recType.Kind != types.KindRecord {
			return nil, types.ErrMismatch(types.NewRecord(types.MustRow(nil, 0)), recType)
		}

		fieldType, ok := recType.Row.Lookup(t.Name)
		if !ok {
			return nil, types.ErrRowConflict(t.Name)
		}

		// The linearity checker needs the full record type to verify the
		// discarded remainder is unrestricted.
		t.BinderType = recType

		return fieldType, nil

	default:
		return nil, types.ErrMismatch(nil, nil)
	}
}

// typeOfLiteral assigns types to embedded values. Sum and channel literals
// are rejected: sums need an annotation and channels only enter scope
// through a session form.
func typeOfLiteral(v *value.Value) (*types.Type, error) {
	switch v.Kind {
	case value.KindUnit:
		return types.Unit, nil
	case value.KindBool:
		return types.Bool, nil
	case value.KindInt:
		return types.Int, nil
	case value.KindSymbol:
		return types.Symbol, nil
	case value.KindString:
		return types.String, nil
	case value.KindPair:
		left, err := typeOfLiteral(v.First)
		if err != nil {
			return nil, err
		}

		right, err := typeOfLiteral(v.Second)
		if err != nil {
			return nil, err
		}

		return types.NewProduct(left, right), nil
	case value.KindRecord:
		fields := make([]types.RowField, 0, len(v.Fields))

		for _, f := range v.Fields {
			fieldType, err := typeOfLiteral(f.Value)
			if err != nil {
				return nil, err
			}

			fields = append(fields, types.RowField{Label: f.Label, Type: fieldType})
		}

		row, err := types.NewRow(fields, types.NoTail)
		if err != nil {
			return nil, err
		}

		return types.NewRecord(row), nil
	default:
		return nil, types.ErrUnbound("literal of kind " + v.Kind.String())
	}
}

// FreeVars returns the free variables of a term.
func FreeVars(t *Term) map[string]struct{} {
	free := make(map[string]struct{})
	collectFree(t, make(map[string]int), free)

	return free
}

// capturesLinear reports whether a lambda's body references any free
// variable of linear type, which makes the resulting closure linear.
func capturesLinear(env *Env, lam *Term) bool {
	free := make(map[string]struct{})
	collectFree(lam.A, map[string]int{lam.Name: 1}, free)

	for name := range free {
		if typ, ok := env.Lookup(name); ok && typ.IsLinear() {
			return true
		}
	}

	return false
}

func collectFree(t *Term, bound map[string]int, out map[string]struct{}) {
	if t == nil {
		return
	}

	switch t.Kind {
	case KindVar:
		if bound[t.Name] == 0 {
			out[t.Name] = struct{}{}
		}
	case KindLit:
	case KindLam:
		bound[t.Name]++
		collectFree(t.A, bound, out)
		bound[t.Name]--
	case KindLet:
		collectFree(t.A, bound, out)
		bound[t.Name]++
		collectFree(t.B, bound, out)
		bound[t.Name]--
	case KindLetPair:
		collectFree(t.A, bound, out)
		bound[t.Name]++
		bound[t.Binder2]++
		collectFree(t.B, bound, out)
		bound[t.Name]--
		bound[t.Binder2]--
	case KindCase:
		collectFree(t.A, bound, out)
		bound[t.Name]++
		collectFree(t.B, bound, out)
		bound[t.Name]--
		bound[t.Binder2]++
		collectFree(t.C, bound, out)
		bound[t.Binder2]--
	case KindRecord:
		for _, f := range t.Fields {
			collectFree(f.Term, bound, out)
		}
	default:
		collectFree(t.A, bound, out)
		collectFree(t.B, bound, out)
		collectFree(t.C, bound, out)
	}
}
