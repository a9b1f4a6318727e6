package teg

import (
	"sort"

	"github.com/causality-lang/causality/internal/value"
)

// Rehash restores content addressing after a pass mutates node content:
// every node is re-homed under its recomputed ID in dependency order, and
// parameter values and edges referencing a moved node follow it. The graph
// must be acyclic over edges plus parameter references.
func (g *Graph) Rehash() error {
	order, err := g.dependencyOrder()
	if err != nil {
		return err
	}

	rename := make(map[value.ID]value.ID)
	nodes := make(map[value.ID]*Node, len(g.Nodes))

	for _, old := range order {
		n := g.Nodes[old]

		for i := range n.Params {
			if to, ok := rename[n.Params[i].Val]; ok {
				n.Params[i].Val = to
			}
		}

		n.Occurrence = 0

		id := n.ID()
		for nodes[id] != nil {
			n.Occurrence++
			id = n.ID()
		}

		nodes[id] = n

		if id != old {
			rename[old] = id
		}
	}

	if len(rename) == 0 {
		g.Nodes = nodes

		return nil
	}

	for i := range g.Edges {
		if to, ok := rename[g.Edges[i].Src]; ok {
			g.Edges[i].Src = to
		}

		if to, ok := rename[g.Edges[i].Dst]; ok {
			g.Edges[i].Dst = to
		}
	}

	g.Nodes = nodes

	return nil
}

// dependencyOrder topologically sorts nodes over control and data edges
// plus parameter references to other nodes, breaking ties by ID so the
// order, and therefore occurrence numbering, is deterministic.
func (g *Graph) dependencyOrder() ([]value.ID, error) {
	succs := make(map[value.ID][]value.ID)
	indeg := make(map[value.ID]int)

	link := func(src, dst value.ID) {
		if src == dst {
			return
		}

		succs[src] = append(succs[src], dst)
		indeg[dst]++
	}

	for _, e := range g.Edges {
		if e.Kind != EdgeCapability {
			link(e.Src, e.Dst)
		}
	}

	for _, id := range g.NodeIDs() {
		for _, p := range g.Nodes[id].Params {
			if g.Nodes[p.Val] != nil {
				link(p.Val, id)
			}
		}
	}

	ready := make([]value.ID, 0, len(g.Nodes))

	for id := range g.Nodes {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].Less(ready[j]) })

	order := make([]value.ID, 0, len(g.Nodes))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := succs[id]
		var next []value.ID

		for _, s := range released {
			indeg[s]--
			if indeg[s] == 0 {
				next = append(next, s)
			}
		}

		sort.Slice(next, func(i, j int) bool { return next[i].Less(next[j]) })
		ready = append(next, ready...)
	}

	if len(order) != len(g.Nodes) {
		return nil, violation(3, "dependency edges form a cycle")
	}

	return order, nil
}
