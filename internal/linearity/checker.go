// The term walker: tracks linear consumption through Layer-1 terms.
//
// The checker runs after type inference, which leaves binder types on the
// term nodes. It owns usage discipline only; ill-typed terms should be
// rejected by inference before they get here.
package linearity

import (
	"github.com/causality-lang/causality/internal/lambda"
)

// CheckTerm walks a term, consuming linear bindings in the context. The
// caller decides the scope: bindings made by the caller are verified with
// CheckAllUsed after the walk.
func CheckTerm(ctx *Context, t *lambda.Term) error {
	if t == nil {
		return nil
	}

	switch t.Kind {
	case lambda.KindVar:
		_, err := ctx.Use(t.Name)

		return err

	case lambda.KindLit:
		return nil

	case lambda.KindLam:
		// The closure consumes its linear captures at construction; the
		// parameter must be consumed within the body.
		boundParam := t.Ann.IsLinear()
		if boundParam {
			if err := ctx.Bind(t.Name, t.Ann); err != nil {
				return err
			}
		}

		if err := CheckTerm(ctx, t.A); err != nil {
			return err
		}

		if boundParam {
			return ctx.CheckUsed(t.Name)
		}

		return nil

	case lambda.KindApp, lambda.KindPair, lambda.KindExtend:
		if err := CheckTerm(ctx, t.A); err != nil {
			return err
		}

		return CheckTerm(ctx, t.B)

	case lambda.KindLet:
		if err := CheckTerm(ctx, t.A); err != nil {
			return err
		}

		boundName := t.BinderType.IsLinear()
		if boundName {
			if err := ctx.Bind(t.Name, t.BinderType); err != nil {
				return err
			}
		}

		if err := CheckTerm(ctx, t.B); err != nil {
			return err
		}

		if boundName {
			return ctx.CheckUsed(t.Name)
		}

		return nil

	case lambda.KindLetPair:
		if err := CheckTerm(ctx, t.A); err != nil {
			return err
		}

		boundFirst := t.BinderType.IsLinear()
		if boundFirst {
			if err := ctx.Bind(t.Name, t.BinderType); err != nil {
				return err
			}
		}

		boundSecond := t.Binder2Type.IsLinear()
		if boundSecond {
			if err := ctx.Bind(t.Binder2, t.Binder2Type); err != nil {
				return err
			}
		}

		if err := CheckTerm(ctx, t.B); err != nil {
			return err
		}

		if boundFirst {
			if err := ctx.CheckUsed(t.Name); err != nil {
				return err
			}
		}

		if boundSecond {
			return ctx.CheckUsed(t.Binder2)
		}

		return nil

	case lambda.KindInl, lambda.KindInr, lambda.KindRestrict:
		return CheckTerm(ctx, t.A)

	case lambda.KindSelect:
		if err := CheckTerm(ctx, t.A); err != nil {
			return err
		}

		// Selecting one field discards the rest of the record; the
		// remainder must therefore be unrestricted.
		if t.BinderType != nil && t.BinderType.Row != nil {
			for _, f := range t.BinderType.Row.Fields {
				if f.Label != t.Name && f.Type.IsLinear() {
					return &Error{Code: CodeNotUsed, Var: f.Label}
				}
			}
		}

		return nil

	case lambda.KindCase:
		return checkCase(ctx, t)

	case lambda.KindRecord:
		for _, f := range t.Fields {
			if err := CheckTerm(ctx, f.Term); err != nil {
				return err
			}
		}

		return nil

	default:
		return nil
	}
}

// checkCase applies the branch rule: both branches must consume the same
// set of enclosing linear bindings.
func checkCase(ctx *Context, t *lambda.Term) error {
	if err := CheckTerm(ctx, t.A); err != nil {
		return err
	}

	snapshot := ctx.Consumed()

	// Left branch.
	boundLeft := t.BinderType.IsLinear()
	if boundLeft {
		if err := ctx.Bind(t.Name, t.BinderType); err != nil {
			return err
		}
	}

	if err := CheckTerm(ctx, t.B); err != nil {
		return err
	}

	if boundLeft {
		if err := ctx.CheckUsed(t.Name); err != nil {
			return err
		}
	}

	afterLeft := ctx.Consumed()
	leftUnused := ctx.Residual()

	// Right branch, from the same starting state.
	ctx.Restore(snapshot)

	boundRight := t.Binder2Type.IsLinear()
	if boundRight {
		if err := ctx.Bind(t.Binder2, t.Binder2Type); err != nil {
			return err
		}
	}

	if err := CheckTerm(ctx, t.C); err != nil {
		return err
	}

	if boundRight {
		if err := ctx.CheckUsed(t.Binder2); err != nil {
			return err
		}
	}

	rightUnused := ctx.Residual()

	if !sameStringSet(leftUnused, rightUnused) {
		return &Error{
			Code:        CodeBranchContextMismatch,
			PathAUnused: leftUnused,
			PathBUnused: rightUnused,
		}
	}

	// Branches agree; either end state is the residual context.
	ctx.Restore(afterLeft)

	return nil
}

// FreeLinearVars returns the free variables of a term that are live linear
// bindings in the context. Parallel composition uses these sets to claim
// partitions for Split.
func FreeLinearVars(ctx *Context, t *lambda.Term) map[string]bool {
	out := make(map[string]bool)

	for name := range lambda.FreeVars(t) {
		if ctx.IsLinear(name) {
			out[name] = true
		}
	}

	return out
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
