package exec

import (
	"fmt"
	"strings"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// fire computes one node's output. Constant nodes evaluate their payload
// term under the captured environment; perform nodes dispatch through the
// resolved handler, falling back to the ambient registry after a codec
// round-trip stripped the handler table; the synthetic nodes forward or
// pair the outputs of the nodes their parameters name.
func (r *runner) fire(id value.ID) (firing, error) {
	n := r.g.Nodes[id]
	f := firing{id: id}

	switch {
	case n.Tag.Hash == teg.TagPure.Hash:
		termID, ok := n.Param("term")
		if !ok {
			return f, badNode(id, "constant node has no term parameter")
		}

		term := r.g.Payloads[termID]
		if term == nil {
			return f, diag.Newf(diag.CategoryEval, "MISSING_PAYLOAD",
				"no payload for term %s of node %s", termID.Short(), id.Short())
		}

		scope, err := r.scope(n, "env.")
		if err != nil {
			return f, err
		}

		out, err := lambda.Eval(scope, term)
		if err != nil {
			return f, err
		}

		f.out, f.emit = out, true

		return f, nil

	case n.Tag.Hash == teg.TagJoin.Hash:
		left, err := r.operand(n, "left")
		if err != nil {
			return f, err
		}

		right, err := r.operand(n, "right")
		if err != nil {
			return f, err
		}

		f.out = value.Pair(left, right)

		return f, nil

	case n.Tag.Hash == teg.TagRaceSplit.Hash:
		f.out = value.Unit()

		return f, nil

	case n.Tag.Hash == teg.TagRaceMerge.Hash:
		out, err := r.operand(n, "race-merge")
		if err != nil {
			return f, err
		}

		f.out = out

		return f, nil

	case n.Tag.Hash == teg.TagSessionOpen.Hash:
		decl, ok := n.Param("decl")
		if !ok {
			return f, badNode(id, "session-open node has no decl parameter")
		}

		role, _ := n.Param("role")

		out := r.sess.open(decl, role)
		f.out = out

		return f, nil

	case effect.IsIntrinsic(n.Tag):
		args, ids, err := r.args(n)
		if err != nil {
			return f, err
		}

		_, final := n.Param("final")

		out, err := r.sess.intrinsic(n.Tag, final, args)
		if err != nil {
			return f, err
		}

		f.out, f.inputs, f.emit = out, ids, true

		return f, nil

	default:
		args, ids, err := r.args(n)
		if err != nil {
			return f, err
		}

		h := r.g.Handlers[n.HandlerID]
		if h == nil {
			if found, ok := r.reg.Lookup(n.Tag); ok && (n.HandlerID.IsZero() || found.ContentID() == n.HandlerID) {
				h = found
			}
		}

		if h == nil {
			return f, diag.Newf(diag.CategoryEval, "UNHANDLED_EFFECT",
				"no handler for %s at node %s", n.Tag, id.Short())
		}

		out, err := effect.Invoke(h, n.Tag, args)
		if err != nil {
			return f, err
		}

		f.out, f.inputs, f.emit = out, ids, true

		return f, nil
	}
}

// args evaluates the argument terms of a perform node left to right, each
// under its own captured environment.
func (r *runner) args(n *teg.Node) ([]*value.Value, []value.ID, error) {
	var (
		vals []*value.Value
		ids  []value.ID
	)

	for i := 0; ; i++ {
		prefix := fmt.Sprintf("arg%d", i)

		termID, ok := n.Param(prefix + ".term")
		if !ok {
			return vals, ids, nil
		}

		term := r.g.Payloads[termID]
		if term == nil {
			return nil, nil, diag.Newf(diag.CategoryEval, "MISSING_PAYLOAD",
				"no payload for argument %d of %s", i, n.Tag)
		}

		scope, err := r.scope(n, prefix+".env.")
		if err != nil {
			return nil, nil, err
		}

		v, err := lambda.Eval(scope, term)
		if err != nil {
			return nil, nil, err
		}

		vals = append(vals, v)
		ids = append(ids, value.ContentID(v))
	}
}

// scope binds every environment parameter under prefix to the output of
// the node it names, on top of the run's input bindings.
func (r *runner) scope(n *teg.Node, prefix string) (*lambda.Scope, error) {
	scope := r.base

	for _, p := range n.Params {
		if !strings.HasPrefix(p.Key, prefix) {
			continue
		}

		v, ok := r.outputs[p.Val]
		if !ok {
			return nil, diag.Newf(diag.CategoryEval, "MISSING_INPUT",
				"node %s fired before its dependency %s", n.Tag, p.Val.Short())
		}

		scope = scope.Bind(p.Key[len(prefix):], v)
	}

	return scope, nil
}

// operand resolves a parameter naming another node to that node's output.
func (r *runner) operand(n *teg.Node, key string) (*value.Value, error) {
	dep, ok := n.Param(key)
	if !ok {
		return nil, diag.Newf(diag.CategoryEval, "MISSING_INPUT",
			"%s node has no %s parameter", n.Tag, key)
	}

	v, ok := r.outputs[dep]
	if !ok {
		return nil, diag.Newf(diag.CategoryEval, "MISSING_INPUT",
			"%s operand %s has not fired", n.Tag, dep.Short())
	}

	return v, nil
}

func badNode(id value.ID, detail string) error {
	return diag.Newf(diag.CategoryEval, "BAD_NODE", "%s: %s", id.Short(), detail)
}
