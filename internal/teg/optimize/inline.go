package optimize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// inlinePass replaces a perform node whose resolved handler is pure,
// capability-free and given as a term with an equivalent constant node:
// the handler body wrapped in one let per argument. Handlers taking any
// linear argument stay calls, since folding the argument term into a let
// could duplicate or drop a use the linearity discipline accounted for.
// Opaque handlers, given only as Go functions, cannot be inlined.
type inlinePass struct{}

func (inlinePass) Name() string { return "inline" }

func (inlinePass) PreservesLinearity() bool { return true }

func (inlinePass) PreservesObservability() bool { return true }

func (inlinePass) Apply(g *teg.Graph, _ Config) (bool, error) {
	changed := false

	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n == nil || n.Kind != teg.NodeEffect || n.HandlerID.IsZero() {
			continue
		}

		h := g.Handlers[n.HandlerID]
		if h == nil || !h.Pure || h.Body == nil || len(h.Capabilities) > 0 {
			continue
		}

		if inlineNode(g, n, h) {
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	return true, g.Rehash()
}

func inlineNode(g *teg.Graph, n *teg.Node, h *effect.Handler) bool {
	for _, pt := range h.ParamTypes {
		if pt.IsLinear() {
			return false
		}
	}

	body := h.Body
	env := make([]teg.Param, 0, len(n.Params))

	for i := len(h.Params) - 1; i >= 0; i-- {
		termID, ok := n.Param(fmt.Sprintf("arg%d.term", i))
		if !ok {
			return false
		}

		arg := g.Payloads[termID]
		if arg == nil {
			return false
		}

		body = lambda.Let(h.Params[i], arg, body)
	}

	// Argument environments collapse into the node's own: arg3.env.x
	// becomes env.x. Two arguments can name the same binding only if they
	// captured the same producer.
	for _, p := range n.Params {
		dot := strings.Index(p.Key, ".env.")
		if dot < 0 {
			continue
		}

		key := "env." + p.Key[dot+len(".env."):]

		for _, prev := range env {
			if prev.Key == key && prev.Val != p.Val {
				return false
			}
		}

		env = append(env, teg.Param{Key: key, Val: p.Val})
	}

	sort.Slice(env, func(i, j int) bool { return env[i].Key < env[j].Key })

	n.Tag = teg.TagPure
	n.Params = append([]teg.Param{{Key: "term", Val: g.AddPayload(body)}}, dedupeParams(env)...)
	n.Capabilities = nil
	n.HandlerID = value.ID{}
	n.HandlerIndex = -1

	return true
}

func dedupeParams(params []teg.Param) []teg.Param {
	out := params[:0]

	for i, p := range params {
		if i == 0 || params[i-1].Key != p.Key {
			out = append(out, p)
		}
	}

	return out
}
