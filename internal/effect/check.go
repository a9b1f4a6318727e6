package effect

import (
	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/linearity"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Check types an effect term and verifies the linear-use discipline across
// its control structure. Handlers visible to Perform forms come from the
// static nesting of Handle frames plus the ambient registry. On success the
// whole term is closed: every linear binding it introduces is consumed.
func Check(reg *Registry, t *Term) (*types.Type, error) {
	c := &checker{
		env: lambda.NewEnv(),
		ctx: linearity.NewContext(),
		reg: reg,
	}

	typ, err := c.check(t)
	if err != nil {
		return nil, err
	}

	if err := c.ctx.CheckAllUsed(); err != nil {
		return nil, err
	}

	return typ, nil
}

type checker struct {
	env    *lambda.Env
	ctx    *linearity.Context
	reg    *Registry
	frames []map[value.ID]*Handler
}

func (c *checker) check(t *Term) (*types.Type, error) {
	switch t.Kind {
	case KindPure:
		typ, err := lambda.Infer(c.env, t.Body)
		if err != nil {
			return nil, err
		}

		if err := linearity.CheckTerm(c.ctx, t.Body); err != nil {
			return nil, err
		}

		return typ, nil

	case KindBind:
		bound, err := c.check(t.Left)
		if err != nil {
			return nil, err
		}

		t.BinderType = bound

		if t.Binder == "_" {
			if bound.IsLinear() {
				return nil, &linearity.Error{Code: linearity.CodeNotUsed, Var: t.Binder}
			}

			return c.check(t.Right)
		}

		c.env.Bind(t.Binder, bound)

		linear := bound.IsLinear()
		if linear {
			if err := c.ctx.Bind(t.Binder, bound); err != nil {
				return nil, err
			}
		}

		typ, err := c.check(t.Right)
		if err != nil {
			return nil, err
		}

		c.env.Unbind()

		if linear {
			if err := c.ctx.CheckUsed(t.Binder); err != nil {
				return nil, err
			}
		}

		return typ, nil

	case KindPerform:
		return c.checkPerform(t)

	case KindHandle:
		frame := make(map[value.ID]*Handler, len(t.Handlers))

		for _, h := range t.Handlers {
			if _, dup := frame[h.Tag.Hash]; dup {
				return nil, &Error{Code: CodeDuplicateHandler, Tag: h.Tag}
			}

			frame[h.Tag.Hash] = h
		}

		c.frames = append(c.frames, frame)
		typ, err := c.check(t.Left)
		c.frames = c.frames[:len(c.frames)-1]

		if err != nil {
			return nil, err
		}

		return typ, nil

	case KindParallel, KindRace:
		// The arms must own disjoint linear contexts. Checking them in
		// sequence against the shared context enforces exactly that: a
		// variable consumed by the left arm is rejected in the right.
		leftFree := c.freeLinear(t.Left)
		rightFree := c.freeLinear(t.Right)

		for name := range leftFree {
			if rightFree[name] {
				return nil, &linearity.Error{Code: linearity.CodeSplitConflict, Var: name}
			}
		}

		left, err := c.check(t.Left)
		if err != nil {
			return nil, err
		}

		right, err := c.check(t.Right)
		if err != nil {
			return nil, err
		}

		if t.Kind == KindRace {
			if _, err := types.Unify(left, right); err != nil {
				return nil, err
			}

			return left, nil
		}

		return types.NewProduct(left, right), nil

	case KindWithSession:
		endpoint := t.Session
		if t.Role == RoleResponder {
			endpoint = types.Dual(t.Session)
		}

		epType := types.NewSession(endpoint)
		t.BinderType = epType

		c.env.Bind(t.Binder, epType)

		if err := c.ctx.Bind(t.Binder, epType); err != nil {
			return nil, err
		}

		typ, err := c.check(t.Right)
		if err != nil {
			return nil, err
		}

		c.env.Unbind()

		if err := c.ctx.CheckUsed(t.Binder); err != nil {
			return nil, err
		}

		return typ, nil

	default:
		return nil, diag.Newf(diag.CategoryType, "BAD_EFFECT_TERM",
			"cannot check %s term", t.Kind)
	}
}

// checkPerform types an effect invocation. Session intrinsics advance the
// endpoint's protocol; everything else resolves a declared handler.
func (c *checker) checkPerform(t *Term) (*types.Type, error) {
	args := make([]*types.Type, len(t.Args))

	for i, a := range t.Args {
		typ, err := lambda.Infer(c.env, a)
		if err != nil {
			return nil, err
		}

		if err := linearity.CheckTerm(c.ctx, a); err != nil {
			return nil, err
		}

		args[i] = typ
	}

	if IsIntrinsic(t.Tag) {
		return c.checkSessionIntrinsic(t, args)
	}

	h, ok := c.resolve(t.Tag)
	if !ok {
		return nil, errUnhandled(t.Tag)
	}

	if len(args) != len(h.ParamTypes) {
		return nil, &Error{Code: CodeBadArity, Tag: t.Tag,
			Reason: "declared arity differs from argument count"}
	}

	for i, pt := range h.ParamTypes {
		if _, err := types.Unify(pt, args[i]); err != nil {
			return nil, err
		}
	}

	return h.ResultType, nil
}

func (c *checker) checkSessionIntrinsic(t *Term, args []*types.Type) (*types.Type, error) {
	if len(args) == 0 || args[0].Kind != types.KindSession {
		got := types.Unit
		if len(args) > 0 {
			got = args[0]
		}

		return nil, types.ErrMismatch(types.NewSession(types.End()), got)
	}

	s := args[0].Session

	switch t.Tag.Hash {
	case TagSend.Hash:
		if len(args) != 2 {
			return nil, &Error{Code: CodeBadArity, Tag: t.Tag, Reason: "send takes an endpoint and a payload"}
		}

		if s.Kind != types.SessionSend {
			return nil, types.ErrMismatch(types.NewSession(types.Send(args[1], types.End())), args[0])
		}

		if _, err := types.Unify(s.Payload, args[1]); err != nil {
			return nil, err
		}

		// A send that ends the protocol consumes the endpoint outright.
		if s.Cont.Kind == types.SessionEnd {
			t.Final = true

			return types.Unit, nil
		}

		return types.NewSession(s.Cont), nil

	case TagRecv.Hash:
		if len(args) != 1 {
			return nil, &Error{Code: CodeBadArity, Tag: t.Tag, Reason: "recv takes an endpoint"}
		}

		if s.Kind != types.SessionRecv {
			return nil, types.ErrMismatch(types.NewSession(types.Recv(types.Unit, types.End())), args[0])
		}

		if s.Cont.Kind == types.SessionEnd {
			t.Final = true

			return s.Payload, nil
		}

		return types.NewProduct(s.Payload, types.NewSession(s.Cont)), nil

	default: // close
		if len(args) != 1 {
			return nil, &Error{Code: CodeBadArity, Tag: t.Tag, Reason: "close takes an endpoint"}
		}

		if s.Kind != types.SessionEnd {
			return nil, types.ErrMismatch(types.NewSession(types.End()), args[0])
		}

		return types.Unit, nil
	}
}

// resolve walks the static Handle nesting innermost-first, falling back to
// the ambient registry.
func (c *checker) resolve(tag value.Symbol) (*Handler, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if h, ok := c.frames[i][tag.Hash]; ok {
			return h, true
		}
	}

	if c.reg != nil {
		return c.reg.Lookup(tag)
	}

	return nil, false
}

// freeLinear collects the linear variables an effect term mentions free.
func (c *checker) freeLinear(t *Term) map[string]bool {
	out := make(map[string]bool)
	collectFreeLinear(c.ctx, t, map[string]bool{}, out)

	return out
}

func collectFreeLinear(ctx *linearity.Context, t *Term, bound, out map[string]bool) {
	lam := func(lt *lambda.Term) {
		for name := range lambda.FreeVars(lt) {
			if !bound[name] && ctx.IsLinear(name) {
				out[name] = true
			}
		}
	}

	switch t.Kind {
	case KindPure:
		lam(t.Body)
	case KindPerform:
		for _, a := range t.Args {
			lam(a)
		}
	case KindBind, KindWithSession:
		if t.Left != nil {
			collectFreeLinear(ctx, t.Left, bound, out)
		}

		shadow := bound[t.Binder]
		bound[t.Binder] = true
		collectFreeLinear(ctx, t.Right, bound, out)
		bound[t.Binder] = shadow
	case KindHandle:
		collectFreeLinear(ctx, t.Left, bound, out)
	case KindParallel, KindRace:
		collectFreeLinear(ctx, t.Left, bound, out)
		collectFreeLinear(ctx, t.Right, bound, out)
	}
}
