package teg

import (
	"testing"

	"github.com/causality-lang/causality/internal/value"
)

func effectNode(tag string) *Node {
	return &Node{Kind: NodeEffect, Tag: value.SymbolOf(tag), Domain: DefaultDomain}
}

func TestNodeContentID(t *testing.T) {
	a := effectNode("tick")
	a.SetParam("x", value.Digest("t", []byte("1")))
	a.SetParam("y", value.Digest("t", []byte("2")))

	b := effectNode("tick")
	b.SetParam("y", value.Digest("t", []byte("2")))
	b.SetParam("x", value.Digest("t", []byte("1")))

	if a.ContentID() != b.ContentID() {
		t.Error("parameter insertion order leaked into the content ID")
	}

	c := effectNode("tock")
	c.SetParam("x", value.Digest("t", []byte("1")))
	c.SetParam("y", value.Digest("t", []byte("2")))

	if a.ContentID() == c.ContentID() {
		t.Error("distinct tags hashed to the same content ID")
	}

	// Flags and handler resolution are annotations, not content.
	d := effectNode("tick")
	d.SetParam("x", value.Digest("t", []byte("1")))
	d.SetParam("y", value.Digest("t", []byte("2")))
	d.Observable = true
	d.SideEffect = true
	d.HandlerIndex = 3

	if a.ContentID() != d.ContentID() {
		t.Error("non-semantic annotations changed the content ID")
	}
}

func TestOccurrenceDisambiguation(t *testing.T) {
	g := NewGraph()

	first := g.AddNode(effectNode("tick"))
	second := g.AddNode(effectNode("tick"))

	if first == second {
		t.Fatal("two occurrences of the same content share an identity")
	}

	if first != g.Nodes[first].ContentID() {
		t.Error("first occurrence should be keyed by its content ID")
	}

	if g.Nodes[second].Occurrence != 1 {
		t.Errorf("second occurrence counter = %d, want 1", g.Nodes[second].Occurrence)
	}
}

func TestGraphContentOrderIndependence(t *testing.T) {
	build := func(reverse bool) *Graph {
		g := NewGraph()

		a := effectNode("a")
		b := effectNode("b")

		var aID, bID value.ID

		if reverse {
			bID = g.AddNode(b)
			aID = g.AddNode(a)
		} else {
			aID = g.AddNode(a)
			bID = g.AddNode(b)
		}

		g.AddEdge(Edge{Src: aID, Dst: bID, Kind: EdgeControl})

		return g
	}

	if build(false).ContentID() != build(true).ContentID() {
		t.Error("construction order leaked into the graph content ID")
	}
}

func TestCloneIndependence(t *testing.T) {
	g := NewGraph()
	id := g.AddNode(effectNode("tick"))

	cp := g.Clone()
	cp.Nodes[id].SetParam("extra", value.Digest("t", []byte("x")))
	cp.AddEdge(Edge{Src: id, Dst: id, Kind: EdgeCapability, Cap: value.SymbolOf("fs")})

	if len(g.Edges) != 0 {
		t.Error("edge added to the clone reached the original")
	}

	if _, ok := g.Nodes[id].Param("extra"); ok {
		t.Error("parameter added to the clone reached the original")
	}
}

func TestRepointEdgesKeepsCapabilityLoops(t *testing.T) {
	g := NewGraph()

	winner := g.AddNode(effectNode("a"))
	loser := g.AddNode(effectNode("b"))
	sink := g.AddNode(effectNode("c"))

	capSym := value.SymbolOf("fs")
	g.AddEdge(Edge{Src: winner, Dst: winner, Kind: EdgeCapability, Cap: capSym})
	g.AddEdge(Edge{Src: loser, Dst: loser, Kind: EdgeCapability, Cap: capSym})
	g.AddEdge(Edge{Src: loser, Dst: sink, Kind: EdgeControl})
	g.AddEdge(Edge{Src: winner, Dst: sink, Kind: EdgeControl})

	g.RepointEdges(loser, winner)

	var caps, controls int

	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeCapability:
			if e.Src != winner || e.Dst != winner {
				t.Errorf("capability edge repointed to %s -> %s", e.Src.Short(), e.Dst.Short())
			}

			caps++
		case EdgeControl:
			controls++
		}
	}

	if caps != 1 {
		t.Errorf("capability loops = %d, want the merged single loop", caps)
	}

	if controls != 1 {
		t.Errorf("control edges = %d, want duplicates collapsed", controls)
	}
}
