package optimize

import (
	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// dcePass removes every node that neither belongs to the observable or
// side-effect sets nor reaches one of their members through control or
// data edges. The closure keeps the producer of any live resource alive,
// so a consumer can never lose its value; the converse, a live producer
// whose linear output loses all consumers, is a linearity fault and
// aborts the pass. Race-loser arms are the main customer: lowering leaves
// them dangling with their effect marks cleared.
type dcePass struct{}

func (dcePass) Name() string { return "dce" }

func (dcePass) PreservesLinearity() bool { return true }

func (dcePass) PreservesObservability() bool { return true }

func (dcePass) Apply(g *teg.Graph, _ Config) (bool, error) {
	live := liveSet(g)

	if len(live) == len(g.Nodes) {
		return false, nil
	}

	for _, r := range g.NodeIDs() {
		n := g.Nodes[r]
		if n.Kind != teg.NodeResource || !n.Linear || live[r] {
			continue
		}

		for _, e := range g.Edges {
			if e.Kind == teg.EdgeData && e.Mode == teg.ModeProduce && e.Dst == r && live[e.Src] {
				return false, diag.Newf(diag.CategoryOptimize, "ORPHANED_RESOURCE",
					"linear resource %s loses all consumers while its producer stays live", r.Short())
			}
		}
	}

	changed := false

	for _, id := range g.NodeIDs() {
		if !live[id] {
			g.RemoveNode(id)

			changed = true
		}
	}

	return changed, nil
}

// liveSet is the reverse closure of the observable and side-effect nodes
// over incoming control and data edges.
func liveSet(g *teg.Graph) map[value.ID]bool {
	live := make(map[value.ID]bool)

	var frontier []value.ID

	for id, n := range g.Nodes {
		if n.Observable || n.SideEffect {
			live[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for _, e := range g.Edges {
			if e.Kind == teg.EdgeCapability || e.Dst != id || live[e.Src] {
				continue
			}

			live[e.Src] = true
			frontier = append(frontier, e.Src)
		}
	}

	return live
}
