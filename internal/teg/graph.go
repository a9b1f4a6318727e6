// Package teg implements the Temporal Effect Graph: a content-addressed
// directed acyclic multigraph of effect and resource nodes produced by
// lowering checked effect terms, validated against the structural
// invariants, and consumed by the optimizer and the executor.
package teg

import (
	"encoding/binary"
	"sort"

	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/value"
)

// NodeKind separates effect nodes from resource nodes.
type NodeKind byte

const (
	NodeEffect NodeKind = iota
	NodeResource
)

// EdgeKind partitions the edge set.
type EdgeKind byte

const (
	EdgeControl EdgeKind = iota
	EdgeData
	EdgeCapability
)

// String names the edge kind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeControl:
		return "control"
	case EdgeData:
		return "data"
	case EdgeCapability:
		return "capability"
	default:
		return "invalid"
	}
}

// AccessMode labels data edges.
type AccessMode byte

const (
	ModeNone AccessMode = iota
	ModeRead
	ModeWrite
	ModeConsume
	ModeProduce
)

// String names the access mode.
func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeConsume:
		return "consume"
	case ModeProduce:
		return "produce"
	default:
		return "none"
	}
}

// Param is one entry of an effect node's parameter map. Params stay sorted
// by key so node hashing is order-independent.
type Param struct {
	Key string
	Val value.ID
}

// Node is a TEG node. Effect nodes carry a tag, parameters, capabilities,
// resource access sets and a domain; resource nodes carry a type, an
// initial state and a linearity flag. Observable and SideEffect place the
// node in the output set O and the side-effect set X; neither flag is part
// of the content hash, and neither is the resolved handler annotation.
type Node struct {
	Params       []Param
	Capabilities []value.Symbol
	Reads        []value.ID
	Writes       []value.ID
	Facts        []value.ID
	Tag          value.Symbol
	Domain       value.ID
	HandlerID    value.ID
	TypeID       value.ID // resource type content ID
	Initial      value.ID // resource initial-state discriminator
	HandlerIndex int
	Occurrence   uint64 // disambiguates repeated identical invocations
	Kind         NodeKind
	Observable   bool
	SideEffect   bool
	Linear       bool
}

const (
	nodeDomain     = "causality/teg-node"
	resourceDomain = "causality/teg-resource"
	occDomain      = "causality/teg-occurrence"
	graphDomain    = "causality/teg-graph"
)

// ContentID is the semantic hash of the node: tag, sorted parameters,
// sorted capabilities, sorted reads and writes, and the domain. Edges,
// flags, handler resolution and the occurrence counter do not contribute.
func (n *Node) ContentID() value.ID {
	if n.Kind == NodeResource {
		lin := byte(0)
		if n.Linear {
			lin = 1
		}

		return value.Digest(resourceDomain, n.TypeID[:], n.Initial[:], []byte{lin})
	}

	var buf []byte
	buf = append(buf, n.Tag.Hash[:]...)

	params := sortedParams(n.Params)
	buf = binary.AppendUvarint(buf, uint64(len(params)))

	for _, p := range params {
		buf = binary.AppendUvarint(buf, uint64(len(p.Key)))
		buf = append(buf, p.Key...)
		buf = append(buf, p.Val[:]...)
	}

	buf = appendSymbolSet(buf, n.Capabilities)
	buf = appendIDSet(buf, n.Reads)
	buf = appendIDSet(buf, n.Writes)
	buf = append(buf, n.Domain[:]...)

	return value.Digest(nodeDomain, buf)
}

// ID is the node's identity within a graph. The first occurrence of a
// content hash uses the hash itself; repeated identical invocations fold
// the occurrence counter in, keeping them distinct without hiding their
// semantic equality from the optimizer.
func (n *Node) ID() value.ID {
	content := n.ContentID()
	if n.Occurrence == 0 {
		return content
	}

	var occ [binary.MaxVarintLen64]byte
	k := binary.PutUvarint(occ[:], n.Occurrence)

	return value.Digest(occDomain, content[:], occ[:k])
}

// Param looks up a parameter value by key.
func (n *Node) Param(key string) (value.ID, bool) {
	for _, p := range n.Params {
		if p.Key == key {
			return p.Val, true
		}
	}

	return value.ID{}, false
}

// SetParam inserts or replaces a parameter. Callers must re-home the node
// under its new ID when it is already part of a graph.
func (n *Node) SetParam(key string, val value.ID) {
	for i := range n.Params {
		if n.Params[i].Key == key {
			n.Params[i].Val = val

			return
		}
	}

	n.Params = append(n.Params, Param{Key: key, Val: val})
}

// Edge connects two nodes by ID. Mode is meaningful for data edges only;
// Cap for capability edges only.
type Edge struct {
	Src  value.ID
	Dst  value.ID
	Cap  value.Symbol
	Kind EdgeKind
	Mode AccessMode
}

func (e Edge) less(other Edge) bool {
	if c := e.Src.Compare(other.Src); c != 0 {
		return c < 0
	}

	if c := e.Dst.Compare(other.Dst); c != 0 {
		return c < 0
	}

	if e.Kind != other.Kind {
		return e.Kind < other.Kind
	}

	return e.Mode < other.Mode
}

// Graph is a TEG. Payloads is a side table from term content IDs to the
// terms themselves; Handlers maps handler content IDs to the handlers the
// lowering resolved. Both feed the executor and are excluded from the
// graph hash, which depends only on nodes and edges. Handlers is also
// excluded from the persisted form; after a decode round-trip executors
// fall back to the ambient registry.
type Graph struct {
	Nodes    map[value.ID]*Node
	Payloads map[value.ID]*lambda.Term
	Handlers map[value.ID]*effect.Handler
	Edges    []Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:    make(map[value.ID]*Node),
		Payloads: make(map[value.ID]*lambda.Term),
		Handlers: make(map[value.ID]*effect.Handler),
	}
}

// AddNode inserts a node, bumping its occurrence counter past any existing
// nodes with the same content hash, and returns its identity.
func (g *Graph) AddNode(n *Node) value.ID {
	n.Occurrence = 0

	id := n.ID()
	for g.Nodes[id] != nil {
		n.Occurrence++
		id = n.ID()
	}

	g.Nodes[id] = n

	return id
}

// AddEdge appends an edge.
func (g *Graph) AddEdge(e Edge) {
	g.Edges = append(g.Edges, e)
}

// AddPayload registers a term in the side table and returns its content ID.
func (g *Graph) AddPayload(t *lambda.Term) value.ID {
	id := lambda.ContentID(t)
	g.Payloads[id] = t

	return id
}

// RemoveNode deletes a node and every incident edge.
func (g *Graph) RemoveNode(id value.ID) {
	delete(g.Nodes, id)

	kept := g.Edges[:0]

	for _, e := range g.Edges {
		if e.Src != id && e.Dst != id {
			kept = append(kept, e)
		}
	}

	g.Edges = kept
}

// RepointEdges rewrites every edge touching from so it touches to instead,
// dropping edges that would become self-loops or duplicates.
func (g *Graph) RepointEdges(from, to value.ID) {
	seen := make(map[Edge]bool, len(g.Edges))
	kept := g.Edges[:0]

	for _, e := range g.Edges {
		if e.Src == from {
			e.Src = to
		}

		if e.Dst == from {
			e.Dst = to
		}

		// Capability edges are self-loops on the requiring node and
		// survive merges; anything else collapsing onto itself is dropped.
		if (e.Src == e.Dst && e.Kind != EdgeCapability) || seen[e] {
			continue
		}

		seen[e] = true
		kept = append(kept, e)
	}

	g.Edges = kept
}

// NodeIDs returns every node identity in ascending order.
func (g *Graph) NodeIDs() []value.ID {
	ids := make([]value.ID, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	return ids
}

// SortedEdges returns the edges in canonical (src, dst, kind, mode) order.
func (g *Graph) SortedEdges() []Edge {
	out := make([]Edge, len(g.Edges))
	copy(out, g.Edges)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })

	return out
}

// ContentID is the graph hash: the sorted node ID list plus the sorted
// edge tuples. It is independent of construction order.
func (g *Graph) ContentID() value.ID {
	var buf []byte

	ids := g.NodeIDs()
	buf = binary.AppendUvarint(buf, uint64(len(ids)))

	for _, id := range ids {
		buf = append(buf, id[:]...)
	}

	edges := g.SortedEdges()
	buf = binary.AppendUvarint(buf, uint64(len(edges)))

	for _, e := range edges {
		buf = append(buf, e.Src[:]...)
		buf = append(buf, e.Dst[:]...)
		buf = append(buf, byte(e.Kind), byte(e.Mode))

		if e.Kind == EdgeCapability {
			buf = append(buf, e.Cap.Hash[:]...)
		}
	}

	return value.Digest(graphDomain, buf)
}

// Clone deep-copies the graph. Payload terms and handlers are immutable
// and shared.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes:    make(map[value.ID]*Node, len(g.Nodes)),
		Payloads: make(map[value.ID]*lambda.Term, len(g.Payloads)),
		Handlers: make(map[value.ID]*effect.Handler, len(g.Handlers)),
		Edges:    make([]Edge, len(g.Edges)),
	}

	copy(out.Edges, g.Edges)

	for id, n := range g.Nodes {
		cp := *n
		cp.Params = append([]Param(nil), n.Params...)
		cp.Capabilities = append([]value.Symbol(nil), n.Capabilities...)
		cp.Reads = append([]value.ID(nil), n.Reads...)
		cp.Writes = append([]value.ID(nil), n.Writes...)
		cp.Facts = append([]value.ID(nil), n.Facts...)
		out.Nodes[id] = &cp
	}

	for id, t := range g.Payloads {
		out.Payloads[id] = t
	}

	for id, h := range g.Handlers {
		out.Handlers[id] = h
	}

	return out
}

// ControlPreds returns the control-edge predecessors of a node.
func (g *Graph) ControlPreds(id value.ID) []value.ID {
	var out []value.ID

	for _, e := range g.Edges {
		if e.Kind == EdgeControl && e.Dst == id {
			out = append(out, e.Src)
		}
	}

	return out
}

// ControlSuccs returns the control-edge successors of a node.
func (g *Graph) ControlSuccs(id value.ID) []value.ID {
	var out []value.ID

	for _, e := range g.Edges {
		if e.Kind == EdgeControl && e.Src == id {
			out = append(out, e.Dst)
		}
	}

	return out
}

// Sources returns effect nodes with no control predecessors, ascending.
func (g *Graph) Sources() []value.ID {
	hasPred := make(map[value.ID]bool)

	for _, e := range g.Edges {
		if e.Kind == EdgeControl {
			hasPred[e.Dst] = true
		}
	}

	var out []value.ID

	for _, id := range g.NodeIDs() {
		if g.Nodes[id].Kind == NodeEffect && !hasPred[id] {
			out = append(out, id)
		}
	}

	return out
}

func sortedParams(params []Param) []Param {
	out := make([]Param, len(params))
	copy(out, params)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out
}

func appendSymbolSet(buf []byte, syms []value.Symbol) []byte {
	sorted := make([]value.ID, 0, len(syms))
	for _, s := range syms {
		sorted = append(sorted, s.Hash)
	}

	return appendIDSet(buf, sorted)
}

func appendIDSet(buf []byte, ids []value.ID) []byte {
	sorted := make([]value.ID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	buf = binary.AppendUvarint(buf, uint64(len(sorted)))

	for _, id := range sorted {
		buf = append(buf, id[:]...)
	}

	return buf
}
