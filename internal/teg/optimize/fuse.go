package optimize

import (
	"sort"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// fusePass collapses a join whose two arms are private constant nodes into
// a single node computing the pair directly. Both arms must be effect-free,
// feed only this join, and touch no resources; anything else keeps the
// three-node shape so the arms stay independently schedulable.
type fusePass struct{}

func (fusePass) Name() string { return "fuse" }

func (fusePass) PreservesLinearity() bool { return true }

func (fusePass) PreservesObservability() bool { return true }

func (fusePass) Apply(g *teg.Graph, _ Config) (bool, error) {
	changed := false

	for _, id := range g.NodeIDs() {
		j := g.Nodes[id]
		if j == nil || j.Kind != teg.NodeEffect || j.Tag.Hash != teg.TagJoin.Hash {
			continue
		}

		if fuseJoin(g, id, j) {
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	return true, g.Rehash()
}

func fuseJoin(g *teg.Graph, joinID value.ID, j *teg.Node) bool {
	leftID, okL := j.Param("left")
	rightID, okR := j.Param("right")

	if !okL || !okR {
		return false
	}

	operands := []value.ID{leftID}
	if rightID != leftID {
		operands = append(operands, rightID)
	}

	terms := make(map[value.ID]*lambda.Term, 2)
	env := make([]teg.Param, 0, 4)

	for _, opID := range operands {
		op := g.Nodes[opID]
		if op == nil || op.Kind != teg.NodeEffect || op.Tag.Hash != teg.TagPure.Hash {
			return false
		}

		if op.Observable || op.SideEffect || !fusable(g, joinID, opID) {
			return false
		}

		termID, ok := op.Param("term")
		if !ok || g.Payloads[termID] == nil {
			return false
		}

		terms[opID] = g.Payloads[termID]

		for _, p := range op.Params {
			if p.Key == "term" {
				continue
			}

			for _, prev := range env {
				if prev.Key == p.Key && prev.Val != p.Val {
					return false
				}
			}

			env = append(env, p)
		}
	}

	paired := lambda.Pair(terms[leftID], terms[rightID])

	sort.Slice(env, func(i, j int) bool { return env[i].Key < env[j].Key })

	j.Tag = teg.TagPure
	j.Params = append([]teg.Param{{Key: "term", Val: g.AddPayload(paired)}}, dedupeParams(env)...)

	for _, opID := range operands {
		g.RepointEdges(opID, joinID)
		delete(g.Nodes, opID)
	}

	return true
}

// fusable reports whether op feeds joinID and nothing else: every control
// successor is the join, no data or capability edge touches it, and no
// other node's parameters name it.
func fusable(g *teg.Graph, joinID, opID value.ID) bool {
	fed := false

	for _, e := range g.Edges {
		if e.Src != opID && e.Dst != opID {
			continue
		}

		if e.Kind != teg.EdgeControl {
			return false
		}

		if e.Src == opID {
			if e.Dst != joinID {
				return false
			}

			fed = true
		}
	}

	if !fed {
		return false
	}

	for id, n := range g.Nodes {
		if id == joinID {
			continue
		}

		for _, p := range n.Params {
			if p.Val == opID {
				return false
			}
		}
	}

	return true
}
