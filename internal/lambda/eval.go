package lambda

import (
	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/value"
)

// Scope is an immutable runtime environment. Bind returns a new scope and
// never mutates the receiver, so callers may keep references across branches.
type Scope struct {
	next *Scope
	clo  *closure
	val  *value.Value
	name string
}

// closure is a function value. Closures exist only during evaluation; a
// closure escaping as the final result of a term is an error because the
// value universe has no function variant.
type closure struct {
	env   *Scope
	body  *Term
	param string
}

// Bind extends the scope with a value binding.
func (s *Scope) Bind(name string, v *value.Value) *Scope {
	return &Scope{next: s, name: name, val: v}
}

func (s *Scope) bindClosure(name string, c *closure) *Scope {
	return &Scope{next: s, name: name, clo: c}
}

func (s *Scope) lookup(name string) (*Scope, bool) {
	for e := s; e != nil; e = e.next {
		if e.name == name {
			return e, true
		}
	}

	return nil, false
}

// Lookup resolves a value binding, skipping nothing: innermost wins.
func (s *Scope) Lookup(name string) (*value.Value, bool) {
	e, ok := s.lookup(name)
	if !ok || e.val == nil {
		return nil, false
	}

	return e.val, true
}

// result is either a first-class value or a closure.
type result struct {
	val *value.Value
	clo *closure
}

// Eval reduces a term to a value under the given scope. Terms reaching Eval
// have already passed inference and the linearity walk, so failures here
// indicate either an unbound runtime name or a function escaping as data.
func Eval(env *Scope, t *Term) (*value.Value, error) {
	r, err := eval(env, t)
	if err != nil {
		return nil, err
	}

	if r.clo != nil {
		return nil, diag.Newf(diag.CategoryEval, "FUNCTION_ESCAPES",
			"term reduced to a function, which is not a first-class value")
	}

	return r.val, nil
}

func eval(env *Scope, t *Term) (result, error) {
	switch t.Kind {
	case KindVar:
		e, ok := env.lookup(t.Name)
		if !ok {
			return result{}, diag.Newf(diag.CategoryEval, "UNBOUND_NAME",
				"no runtime binding for %q", t.Name)
		}

		return result{val: e.val, clo: e.clo}, nil

	case KindLit:
		return result{val: t.Lit}, nil

	case KindLam:
		return result{clo: &closure{param: t.Name, body: t.A, env: env}}, nil

	case KindApp:
		fn, err := eval(env, t.A)
		if err != nil {
			return result{}, err
		}

		if fn.clo == nil {
			return result{}, diag.Newf(diag.CategoryEval, "NOT_A_FUNCTION",
				"application head is not a function")
		}

		arg, err := eval(env, t.B)
		if err != nil {
			return result{}, err
		}

		inner := fn.clo.env
		if arg.clo != nil {
			inner = inner.bindClosure(fn.clo.param, arg.clo)
		} else {
			inner = inner.Bind(fn.clo.param, arg.val)
		}

		return eval(inner, fn.clo.body)

	case KindLet:
		bound, err := eval(env, t.A)
		if err != nil {
			return result{}, err
		}

		inner := env
		if bound.clo != nil {
			inner = inner.bindClosure(t.Name, bound.clo)
		} else {
			inner = inner.Bind(t.Name, bound.val)
		}

		return eval(inner, t.B)

	case KindPair:
		a, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		b, err := evalValue(env, t.B)
		if err != nil {
			return result{}, err
		}

		return result{val: value.Pair(a, b)}, nil

	case KindLetPair:
		pair, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		if pair.Kind != value.KindPair {
			return result{}, diag.Newf(diag.CategoryEval, "NOT_A_PAIR",
				"let-pair scrutinee is %s, not a pair", pair.Kind)
		}

		inner := env.Bind(t.Name, pair.First).Bind(t.Binder2, pair.Second)

		return eval(inner, t.B)

	case KindInl:
		v, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		return result{val: value.Inl(v)}, nil

	case KindInr:
		v, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		return result{val: value.Inr(v)}, nil

	case KindCase:
		scrut, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		switch scrut.Kind {
		case value.KindInl:
			return eval(env.Bind(t.Name, scrut.First), t.B)
		case value.KindInr:
			return eval(env.Bind(t.Binder2, scrut.First), t.C)
		default:
			return result{}, diag.Newf(diag.CategoryEval, "NOT_A_SUM",
				"case scrutinee is %s, not a sum", scrut.Kind)
		}

	case KindRecord:
		fields := make([]value.Field, 0, len(t.Fields))

		for _, f := range t.Fields {
			v, err := evalValue(env, f.Term)
			if err != nil {
				return result{}, err
			}

			fields = append(fields, value.Field{Label: f.Label, Value: v})
		}

		rec, err := value.NewRecord(fields)
		if err != nil {
			return result{}, diag.Wrap(diag.CategoryEval, "BAD_RECORD",
				"record literal rejected", err)
		}

		return result{val: rec}, nil

	case KindExtend:
		v, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		rec, err := evalValue(env, t.B)
		if err != nil {
			return result{}, err
		}

		fields := make([]value.Field, 0, len(rec.Fields)+1)
		fields = append(fields, rec.Fields...)
		fields = append(fields, value.Field{Label: t.Name, Value: v})

		out, err := value.NewRecord(fields)
		if err != nil {
			return result{}, diag.Wrap(diag.CategoryEval, "BAD_RECORD",
				"record extension rejected", err)
		}

		return result{val: out}, nil

	case KindRestrict:
		rec, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		fields := make([]value.Field, 0, len(rec.Fields))

		for _, f := range rec.Fields {
			if f.Label != t.Name {
				fields = append(fields, f)
			}
		}

		out, err := value.NewRecord(fields)
		if err != nil {
			return result{}, diag.Wrap(diag.CategoryEval, "BAD_RECORD",
				"record restriction rejected", err)
		}

		return result{val: out}, nil

	case KindSelect:
		rec, err := evalValue(env, t.A)
		if err != nil {
			return result{}, err
		}

		v, ok := rec.Lookup(t.Name)
		if !ok {
			return result{}, diag.Newf(diag.CategoryEval, "NO_SUCH_FIELD",
				"record has no field %q", t.Name)
		}

		return result{val: v}, nil

	default:
		return result{}, diag.Newf(diag.CategoryEval, "BAD_TERM",
			"cannot evaluate %s term", t.Kind)
	}
}

// evalValue evaluates a subterm and insists on a first-class value.
func evalValue(env *Scope, t *Term) (*value.Value, error) {
	r, err := eval(env, t)
	if err != nil {
		return nil, err
	}

	if r.clo != nil {
		return nil, diag.Newf(diag.CategoryEval, "FUNCTION_ESCAPES",
			"function used where a first-class value is required")
	}

	return r.val, nil
}
