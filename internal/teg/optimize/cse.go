package optimize

import (
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// csePass merges effect nodes that share a content hash and a control
// predecessor set. This is narrower than merging on content hash alone:
// only effect-free nodes are candidates, since collapsing two
// side-effecting performs would drop an entry from the trace. Resource
// nodes never merge, identical content or not, because each one is a
// distinct linear asset.
type csePass struct{}

func (csePass) Name() string { return "cse" }

func (csePass) PreservesLinearity() bool { return true }

func (csePass) PreservesObservability() bool { return true }

func (csePass) Apply(g *teg.Graph, _ Config) (bool, error) {
	changed := false

	// Merge until a sweep finds nothing. Each merge can expose the next
	// one upstream of it, and Rehash renames nodes, so groups are
	// recomputed from scratch every round.
	for {
		merged, err := cseSweep(g)
		if err != nil {
			return changed, err
		}

		if !merged {
			return changed, nil
		}

		changed = true
	}
}

func cseSweep(g *teg.Graph) (bool, error) {
	groups := make(map[value.ID][]value.ID)

	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.Kind != teg.NodeEffect || n.SideEffect {
			continue
		}

		// Race bookkeeping nodes delimit distinct alternatives even when
		// their content coincides.
		if n.Tag.Hash == teg.TagRaceSplit.Hash || n.Tag.Hash == teg.TagRaceMerge.Hash {
			continue
		}

		content := n.ContentID()
		groups[content] = append(groups[content], id)
	}

	merged := false

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}

		// NodeIDs is ascending, so members already are; the lowest ID is
		// the occurrence-zero node and survives.
		winner := members[0]

		for _, loser := range members[1:] {
			if g.Nodes[winner] == nil || g.Nodes[loser] == nil {
				continue
			}

			if !sameIDSet(controlPredSet(g, winner), controlPredSet(g, loser)) {
				continue
			}

			mergeInto(g, winner, loser)

			merged = true
		}
	}

	if !merged {
		return false, nil
	}

	return true, g.Rehash()
}

// mergeInto folds loser into winner: edges are repointed, every parameter
// reference in the graph is rewritten, and the winner keeps the union of
// the observability marks.
func mergeInto(g *teg.Graph, winner, loser value.ID) {
	g.Nodes[winner].Observable = g.Nodes[winner].Observable || g.Nodes[loser].Observable

	g.RepointEdges(loser, winner)
	delete(g.Nodes, loser)

	for _, n := range g.Nodes {
		for i := range n.Params {
			if n.Params[i].Val == loser {
				n.Params[i].Val = winner
			}
		}
	}
}
