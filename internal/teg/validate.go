package teg

import (
	"fmt"

	"github.com/causality-lang/causality/internal/value"
)

// InvariantViolation reports which structural invariant a graph breaks.
// The optimizer catches it to roll back an offending pass; everywhere else
// it surfaces as a hard error.
type InvariantViolation struct {
	Detail    string
	Invariant int
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("graph invariant %d violated: %s", e.Invariant, e.Detail)
}

func violation(inv int, format string, args ...interface{}) error {
	return &InvariantViolation{Invariant: inv, Detail: fmt.Sprintf(format, args...)}
}

type idPair struct {
	a, b value.ID
}

// Validate checks the structural invariants of a graph. It returns the
// first violation found, walking invariants in order.
func Validate(g *Graph) error {
	if err := validateIdentity(g); err != nil {
		return err
	}

	reach, err := validateControlDAG(g)
	if err != nil {
		return err
	}

	if err := validateResources(g, reach); err != nil {
		return err
	}

	if err := validateCapabilities(g); err != nil {
		return err
	}

	return validateReachability(g)
}

// validateIdentity recomputes every node ID against its map key
// (invariant 5: identity is a function of content alone).
func validateIdentity(g *Graph) error {
	for id, n := range g.Nodes {
		if got := n.ID(); got != id {
			return violation(5, "node keyed %s hashes to %s", id.Short(), got.Short())
		}
	}

	for _, e := range g.Edges {
		if g.Nodes[e.Src] == nil {
			return violation(5, "edge source %s is not a node", e.Src.Short())
		}

		if g.Nodes[e.Dst] == nil {
			return violation(5, "edge sink %s is not a node", e.Dst.Short())
		}
	}

	return nil
}

// validateControlDAG checks acyclicity of the control edges and returns
// the transitive control-reachability relation (invariant 3: every data
// dependency is control-ordered in the same direction).
func validateControlDAG(g *Graph) (map[idPair]bool, error) {
	succs := make(map[value.ID][]value.ID)
	indeg := make(map[value.ID]int)

	for _, e := range g.Edges {
		if e.Kind != EdgeControl {
			continue
		}

		succs[e.Src] = append(succs[e.Src], e.Dst)
		indeg[e.Dst]++
	}

	// Kahn's algorithm; leftover in-degrees mean a cycle.
	var queue []value.ID

	for id := range g.Nodes {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, s := range succs[id] {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if visited != len(g.Nodes) {
		return nil, violation(3, "control edges form a cycle")
	}

	reach := make(map[idPair]bool)

	for id := range g.Nodes {
		stack := append([]value.ID(nil), succs[id]...)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if reach[idPair{id, n}] {
				continue
			}

			reach[idPair{id, n}] = true
			stack = append(stack, succs[n]...)
		}
	}

	for _, r := range g.NodeIDs() {
		if g.Nodes[r].Kind != NodeResource {
			continue
		}

		producer, ok := producerOf(g, r)
		if !ok {
			continue
		}

		for _, a := range accessorsOf(g, r) {
			if a != producer && !reach[idPair{producer, a}] {
				return nil, violation(3, "access of %s is not control-ordered after its producer", r.Short())
			}
		}
	}

	return reach, nil
}

// validateResources enforces the Produce, Read*, terminal Consume or Write
// chain on every linear resource (invariant 1) and the produced-before-
// accessed rule (invariant 2).
func validateResources(g *Graph, reach map[idPair]bool) error {
	for _, r := range g.NodeIDs() {
		n := g.Nodes[r]
		if n.Kind != NodeResource {
			continue
		}

		var (
			produces, consumes, writes int
			readers                    []value.ID
			terminal                   value.ID
			hasTerminal                bool
		)

		for _, e := range g.Edges {
			if e.Kind != EdgeData {
				continue
			}

			switch {
			case e.Dst == r && e.Mode == ModeProduce:
				produces++
			case e.Dst == r && e.Mode == ModeWrite:
				writes++
				terminal, hasTerminal = e.Src, true
			case e.Src == r && e.Mode == ModeRead:
				readers = append(readers, e.Dst)
			case e.Src == r && e.Mode == ModeConsume:
				consumes++
				terminal, hasTerminal = e.Dst, true
			}
		}

		if n.Linear {
			if produces > 1 {
				return violation(1, "linear resource %s produced %d times", r.Short(), produces)
			}

			if consumes+writes > 1 {
				return violation(1, "linear resource %s has %d terminal accesses", r.Short(), consumes+writes)
			}

			if hasTerminal {
				for _, rd := range readers {
					if rd != terminal && !reach[idPair{rd, terminal}] {
						return violation(1, "read of %s is not ordered before its consumer", r.Short())
					}
				}
			}
		}

		if produces == 0 && n.Initial.IsZero() && (len(readers) > 0 || consumes > 0) {
			return violation(2, "resource %s is read or consumed but never produced", r.Short())
		}
	}

	return nil
}

// validateCapabilities requires the capability edge set of each effect
// node to mirror its declared capability set (invariant 4; whether the
// evaluation context actually grants the capability is checked when the
// node fires).
func validateCapabilities(g *Graph) error {
	declared := make(map[idPair]bool)

	for _, id := range g.NodeIDs() {
		for _, c := range g.Nodes[id].Capabilities {
			declared[idPair{id, c.Hash}] = true
		}
	}

	edged := make(map[idPair]bool)

	for _, e := range g.Edges {
		if e.Kind != EdgeCapability {
			continue
		}

		if e.Src != e.Dst {
			return violation(4, "capability edge on %s is not anchored to its node", e.Dst.Short())
		}

		key := idPair{e.Dst, e.Cap.Hash}
		if !declared[key] {
			return violation(4, "node %s has a capability edge for undeclared %q", e.Dst.Short(), e.Cap.Label)
		}

		edged[key] = true
	}

	for key := range declared {
		if !edged[key] {
			return violation(4, "node %s declares a capability with no capability edge", key.a.Short())
		}
	}

	return nil
}

// validateReachability requires every observable or side-effecting node
// to be forward-reachable from a source (invariant 6).
func validateReachability(g *Graph) error {
	reachable := make(map[value.ID]bool)
	stack := g.Sources()

	for _, id := range stack {
		reachable[id] = true
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range g.Edges {
			if e.Kind == EdgeCapability || e.Src != id {
				continue
			}

			if !reachable[e.Dst] {
				reachable[e.Dst] = true
				stack = append(stack, e.Dst)
			}
		}
	}

	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if (n.Observable || n.SideEffect) && !reachable[id] {
			return violation(6, "node %s is marked observable but unreachable from any source", id.Short())
		}
	}

	return nil
}

func producerOf(g *Graph, r value.ID) (value.ID, bool) {
	for _, e := range g.Edges {
		if e.Kind == EdgeData && e.Dst == r && e.Mode == ModeProduce {
			return e.Src, true
		}
	}

	return value.ID{}, false
}

func accessorsOf(g *Graph, r value.ID) []value.ID {
	var out []value.ID

	for _, e := range g.Edges {
		if e.Kind != EdgeData {
			continue
		}

		switch {
		case e.Src == r && (e.Mode == ModeRead || e.Mode == ModeConsume):
			out = append(out, e.Dst)
		case e.Dst == r && e.Mode == ModeWrite:
			out = append(out, e.Src)
		}
	}

	return out
}
