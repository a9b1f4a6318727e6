package optimize

import (
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// reorderPass drops control edges that order two effect-free nodes with no
// data dependency between them, leaving the executor free to schedule them
// in either order and later sweeps free to merge them. The ordering of
// side-effecting nodes is observable and never touched, and neither is an
// edge that crosses domains unless the configuration explicitly permits
// it: order across session boundaries is part of the protocol.
type reorderPass struct{}

func (reorderPass) Name() string { return "reorder" }

func (reorderPass) PreservesLinearity() bool { return true }

func (reorderPass) PreservesObservability() bool { return true }

func (reorderPass) Apply(g *teg.Graph, cfg Config) (bool, error) {
	drop := make(map[teg.Edge]bool)

	for _, e := range g.SortedEdges() {
		if e.Kind == teg.EdgeControl && decoupled(g, e.Src, e.Dst, cfg) {
			drop[e] = true
		}
	}

	if len(drop) == 0 {
		return false, nil
	}

	kept := g.Edges[:0]

	for _, e := range g.Edges {
		if !drop[e] {
			kept = append(kept, e)
		}
	}

	g.Edges = kept

	return true, nil
}

func decoupled(g *teg.Graph, src, dst value.ID, cfg Config) bool {
	a, b := g.Nodes[src], g.Nodes[dst]
	if a == nil || b == nil || a.Kind != teg.NodeEffect || b.Kind != teg.NodeEffect {
		return false
	}

	if a.SideEffect || b.SideEffect {
		return false
	}

	if a.Domain != b.Domain && !cfg.CrossDomain {
		return false
	}

	// Synthetic fan nodes encode result structure through their incident
	// edges; loosening them would detach an arm from its join or race.
	if structural(a.Tag) || structural(b.Tag) {
		return false
	}

	// dst reading the value of src is a data dependency even without a
	// resource in between.
	for _, p := range b.Params {
		if p.Val == src {
			return false
		}
	}

	// A node touching any resource keeps its outgoing ordering edges:
	// accessors rely on producers being sequenced before them and readers
	// before the terminal consumer.
	for _, e := range g.Edges {
		if e.Kind == teg.EdgeData && (e.Src == src || e.Dst == src) {
			return false
		}
	}

	return true
}

func structural(tag value.Symbol) bool {
	switch tag.Hash {
	case teg.TagJoin.Hash, teg.TagRaceSplit.Hash, teg.TagRaceMerge.Hash, teg.TagSessionOpen.Hash:
		return true
	default:
		return false
	}
}
