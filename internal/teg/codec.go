package teg

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/value"
)

// GraphSchemaVersion is the semver of the persisted graph layout. Bump the
// major on any incompatible change.
const GraphSchemaVersion = "1.0.0"

// graphConstraint gates which persisted graphs this build can decode.
var graphConstraint = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}

	return c
}

// Encode serializes a graph: a header carrying the schema version, the
// graph content ID and the node and edge counts; nodes in ascending ID
// order; edges in ascending (src, sink, kind) order; then the payload
// terms. Handler objects are process-local and never persisted.
func Encode(g *Graph) []byte {
	var buf []byte

	buf = binary.AppendUvarint(buf, uint64(len(GraphSchemaVersion)))
	buf = append(buf, GraphSchemaVersion...)

	gid := g.ContentID()
	buf = append(buf, gid[:]...)

	ids := g.NodeIDs()
	edges := g.SortedEdges()

	buf = binary.AppendUvarint(buf, uint64(len(ids)))
	buf = binary.AppendUvarint(buf, uint64(len(edges)))

	for _, id := range ids {
		buf = appendNode(buf, g.Nodes[id])
	}

	for _, e := range edges {
		buf = append(buf, e.Src[:]...)
		buf = append(buf, e.Dst[:]...)
		buf = append(buf, byte(e.Kind), byte(e.Mode))

		if e.Kind == EdgeCapability {
			buf = appendSymbol(buf, e.Cap)
		}
	}

	payloads := make([]value.ID, 0, len(g.Payloads))
	for id := range g.Payloads {
		payloads = append(payloads, id)
	}

	sortIDs(payloads)
	buf = binary.AppendUvarint(buf, uint64(len(payloads)))

	// Payloads are keyed explicitly: literal terms are registered under
	// their value's content ID, which a re-encoding cannot reproduce.
	for _, id := range payloads {
		buf = append(buf, id[:]...)
		enc := lambda.Encode(g.Payloads[id])
		buf = binary.AppendUvarint(buf, uint64(len(enc)))
		buf = append(buf, enc...)
	}

	return buf
}

const (
	nodeFlagObservable = 1 << iota
	nodeFlagSideEffect
	nodeFlagLinear
)

func appendNode(buf []byte, n *Node) []byte {
	buf = append(buf, byte(n.Kind))
	buf = binary.AppendUvarint(buf, n.Occurrence)

	var flags byte

	if n.Observable {
		flags |= nodeFlagObservable
	}

	if n.SideEffect {
		flags |= nodeFlagSideEffect
	}

	if n.Linear {
		flags |= nodeFlagLinear
	}

	buf = append(buf, flags)

	if n.Kind == NodeResource {
		buf = append(buf, n.TypeID[:]...)
		buf = append(buf, n.Initial[:]...)

		return buf
	}

	buf = appendSymbol(buf, n.Tag)

	params := sortedParams(n.Params)
	buf = binary.AppendUvarint(buf, uint64(len(params)))

	for _, p := range params {
		buf = binary.AppendUvarint(buf, uint64(len(p.Key)))
		buf = append(buf, p.Key...)
		buf = append(buf, p.Val[:]...)
	}

	buf = binary.AppendUvarint(buf, uint64(len(n.Capabilities)))
	for _, c := range n.Capabilities {
		buf = appendSymbol(buf, c)
	}

	buf = appendIDList(buf, n.Reads)
	buf = appendIDList(buf, n.Writes)
	buf = appendIDList(buf, n.Facts)

	buf = append(buf, n.Domain[:]...)
	buf = append(buf, n.HandlerID[:]...)
	buf = binary.AppendVarint(buf, int64(n.HandlerIndex))

	return buf
}

// Decode parses a persisted graph, rejecting unsupported schema versions
// and verifying the header's content ID against the reconstructed graph.
func Decode(data []byte) (*Graph, error) {
	r := bytes.NewReader(data)

	version, err := readGraphString(r)
	if err != nil {
		return nil, err
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryCodec, "BAD_GRAPH_VERSION",
			"graph version is not a semver", err)
	}

	if !graphConstraint.Check(v) {
		return nil, diag.Newf(diag.CategoryCodec, "GRAPH_VERSION_UNSUPPORTED",
			"graph schema %s is outside the supported range ^1", version)
	}

	declared, err := readGraphID(r)
	if err != nil {
		return nil, err
	}

	nodeCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	edgeCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	g := NewGraph()

	for i := uint64(0); i < nodeCount; i++ {
		n, err := readNode(r)
		if err != nil {
			return nil, err
		}

		id := n.ID()
		if g.Nodes[id] != nil {
			return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH",
				"duplicate node %s", id.Short())
		}

		g.Nodes[id] = n
	}

	for i := uint64(0); i < edgeCount; i++ {
		e, err := readEdge(r)
		if err != nil {
			return nil, err
		}

		g.Edges = append(g.Edges, e)
	}

	payloadCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	for i := uint64(0); i < payloadCount; i++ {
		id, err := readGraphID(r)
		if err != nil {
			return nil, err
		}

		enc, err := readGraphBytes(r)
		if err != nil {
			return nil, err
		}

		term, err := lambda.Decode(enc)
		if err != nil {
			return nil, err
		}

		g.Payloads[id] = term
	}

	if r.Len() != 0 {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH",
			"%d trailing bytes after the payload section", r.Len())
	}

	if got := g.ContentID(); got != declared {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH",
			"header declares graph %s but the content hashes to %s",
			declared.Short(), got.Short())
	}

	return g, nil
}

func readNode(r *bytes.Reader) (*Node, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, truncatedGraph()
	}

	if NodeKind(kind) != NodeEffect && NodeKind(kind) != NodeResource {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH",
			"unknown node kind %d", kind)
	}

	n := &Node{Kind: NodeKind(kind)}

	if n.Occurrence, err = binary.ReadUvarint(r); err != nil {
		return nil, truncatedGraph()
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, truncatedGraph()
	}

	n.Observable = flags&nodeFlagObservable != 0
	n.SideEffect = flags&nodeFlagSideEffect != 0
	n.Linear = flags&nodeFlagLinear != 0

	if n.Kind == NodeResource {
		if n.TypeID, err = readGraphID(r); err != nil {
			return nil, err
		}

		if n.Initial, err = readGraphID(r); err != nil {
			return nil, err
		}

		return n, nil
	}

	if n.Tag, err = readSymbol(r); err != nil {
		return nil, err
	}

	paramCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	for i := uint64(0); i < paramCount; i++ {
		key, err := readGraphString(r)
		if err != nil {
			return nil, err
		}

		val, err := readGraphID(r)
		if err != nil {
			return nil, err
		}

		n.Params = append(n.Params, Param{Key: key, Val: val})
	}

	capCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	for i := uint64(0); i < capCount; i++ {
		c, err := readSymbol(r)
		if err != nil {
			return nil, err
		}

		n.Capabilities = append(n.Capabilities, c)
	}

	if n.Reads, err = readIDList(r); err != nil {
		return nil, err
	}

	if n.Writes, err = readIDList(r); err != nil {
		return nil, err
	}

	if n.Facts, err = readIDList(r); err != nil {
		return nil, err
	}

	if n.Domain, err = readGraphID(r); err != nil {
		return nil, err
	}

	if n.HandlerID, err = readGraphID(r); err != nil {
		return nil, err
	}

	idx, err := binary.ReadVarint(r)
	if err != nil {
		return nil, truncatedGraph()
	}

	n.HandlerIndex = int(idx)

	return n, nil
}

func readEdge(r *bytes.Reader) (Edge, error) {
	var e Edge
	var err error

	if e.Src, err = readGraphID(r); err != nil {
		return Edge{}, err
	}

	if e.Dst, err = readGraphID(r); err != nil {
		return Edge{}, err
	}

	kind, err := r.ReadByte()
	if err != nil {
		return Edge{}, truncatedGraph()
	}

	mode, err := r.ReadByte()
	if err != nil {
		return Edge{}, truncatedGraph()
	}

	if EdgeKind(kind) > EdgeCapability || AccessMode(mode) > ModeProduce {
		return Edge{}, diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH",
			"unknown edge kind %d mode %d", kind, mode)
	}

	e.Kind, e.Mode = EdgeKind(kind), AccessMode(mode)

	if e.Kind == EdgeCapability {
		if e.Cap, err = readSymbol(r); err != nil {
			return Edge{}, err
		}
	}

	return e, nil
}

func appendSymbol(buf []byte, s value.Symbol) []byte {
	buf = append(buf, s.Hash[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(s.Label)))

	return append(buf, s.Label...)
}

func readSymbol(r *bytes.Reader) (value.Symbol, error) {
	hash, err := readGraphID(r)
	if err != nil {
		return value.Symbol{}, err
	}

	label, err := readGraphString(r)
	if err != nil {
		return value.Symbol{}, err
	}

	if label == "" {
		return value.SymbolFromHash(hash), nil
	}

	return value.Symbol{Label: label, Hash: hash}, nil
}

func appendIDList(buf []byte, ids []value.ID) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ids)))

	for _, id := range ids {
		buf = append(buf, id[:]...)
	}

	return buf
}

func readIDList(r *bytes.Reader) ([]value.ID, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return nil, truncatedGraph()
	}

	if n == 0 {
		return nil, nil
	}

	ids := make([]value.ID, n)

	for i := range ids {
		if ids[i], err = readGraphID(r); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

func readGraphString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", truncatedGraph()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", truncatedGraph()
	}

	return string(buf), nil
}

func readGraphBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return nil, truncatedGraph()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncatedGraph()
	}

	return buf, nil
}

func readGraphID(r *bytes.Reader) (value.ID, error) {
	var id value.ID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return value.ID{}, truncatedGraph()
	}

	return id, nil
}

func truncatedGraph() error {
	return diag.Newf(diag.CategoryCodec, "MALFORMED_GRAPH", "truncated graph stream")
}

func sortIDs(ids []value.ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
