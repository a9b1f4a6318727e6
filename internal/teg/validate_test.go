package teg

import (
	"errors"
	"testing"

	"github.com/causality-lang/causality/internal/value"
)

func assertInvariant(t *testing.T, err error, want int) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected invariant %d violation, got nil", want)
	}

	var iv *InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected *InvariantViolation, got %T: %v", err, err)
	}

	if iv.Invariant != want {
		t.Errorf("violated invariant = %d, want %d (%v)", iv.Invariant, want, err)
	}
}

func TestValidateAcceptsEmptyGraph(t *testing.T) {
	if err := Validate(NewGraph()); err != nil {
		t.Errorf("empty graph rejected: %v", err)
	}
}

func TestValidateControlCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(effectNode("a"))
	b := g.AddNode(effectNode("b"))

	g.AddEdge(Edge{Src: a, Dst: b, Kind: EdgeControl})
	g.AddEdge(Edge{Src: b, Dst: a, Kind: EdgeControl})

	assertInvariant(t, Validate(g), 3)
}

func TestValidateDanglingEdge(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(effectNode("a"))

	g.AddEdge(Edge{Src: a, Dst: value.Digest("t", []byte("ghost")), Kind: EdgeControl})

	assertInvariant(t, Validate(g), 5)
}

func TestValidateLinearChain(t *testing.T) {
	t.Run("double consume rejected", func(t *testing.T) {
		g := NewGraph()
		p := g.AddNode(effectNode("produce"))
		c1 := g.AddNode(effectNode("use1"))
		c2 := g.AddNode(effectNode("use2"))
		r := g.AddNode(&Node{Kind: NodeResource, TypeID: value.Digest("t", []byte("T")), Linear: true})

		g.AddEdge(Edge{Src: p, Dst: r, Kind: EdgeData, Mode: ModeProduce})
		g.AddEdge(Edge{Src: r, Dst: c1, Kind: EdgeData, Mode: ModeConsume})
		g.AddEdge(Edge{Src: r, Dst: c2, Kind: EdgeData, Mode: ModeConsume})
		g.AddEdge(Edge{Src: p, Dst: c1, Kind: EdgeControl})
		g.AddEdge(Edge{Src: p, Dst: c2, Kind: EdgeControl})

		assertInvariant(t, Validate(g), 1)
	})

	t.Run("read after consume rejected", func(t *testing.T) {
		g := NewGraph()
		p := g.AddNode(effectNode("produce"))
		c := g.AddNode(effectNode("consume"))
		rd := g.AddNode(effectNode("read"))
		r := g.AddNode(&Node{Kind: NodeResource, TypeID: value.Digest("t", []byte("T")), Linear: true})

		g.AddEdge(Edge{Src: p, Dst: r, Kind: EdgeData, Mode: ModeProduce})
		g.AddEdge(Edge{Src: r, Dst: c, Kind: EdgeData, Mode: ModeConsume})
		g.AddEdge(Edge{Src: r, Dst: rd, Kind: EdgeData, Mode: ModeRead})
		g.AddEdge(Edge{Src: p, Dst: c, Kind: EdgeControl})
		g.AddEdge(Edge{Src: p, Dst: rd, Kind: EdgeControl})
		g.AddEdge(Edge{Src: c, Dst: rd, Kind: EdgeControl})

		assertInvariant(t, Validate(g), 1)
	})

	t.Run("produce reads consume accepted", func(t *testing.T) {
		g := NewGraph()
		p := g.AddNode(effectNode("produce"))
		rd := g.AddNode(effectNode("read"))
		c := g.AddNode(effectNode("consume"))
		r := g.AddNode(&Node{Kind: NodeResource, TypeID: value.Digest("t", []byte("T")), Linear: true})

		g.AddEdge(Edge{Src: p, Dst: r, Kind: EdgeData, Mode: ModeProduce})
		g.AddEdge(Edge{Src: r, Dst: rd, Kind: EdgeData, Mode: ModeRead})
		g.AddEdge(Edge{Src: r, Dst: c, Kind: EdgeData, Mode: ModeConsume})
		g.AddEdge(Edge{Src: p, Dst: rd, Kind: EdgeControl})
		g.AddEdge(Edge{Src: rd, Dst: c, Kind: EdgeControl})

		if err := Validate(g); err != nil {
			t.Errorf("well-formed chain rejected: %v", err)
		}
	})
}

func TestValidateConsumeWithoutProduce(t *testing.T) {
	g := NewGraph()
	c := g.AddNode(effectNode("consume"))
	r := g.AddNode(&Node{Kind: NodeResource, TypeID: value.Digest("t", []byte("T"))})

	g.AddEdge(Edge{Src: r, Dst: c, Kind: EdgeData, Mode: ModeConsume})

	assertInvariant(t, Validate(g), 2)
}

func TestValidateCapabilityMirror(t *testing.T) {
	capSym := value.SymbolOf("fs/write")

	t.Run("declared without edge", func(t *testing.T) {
		g := NewGraph()
		n := effectNode("write")
		n.Capabilities = []value.Symbol{capSym}
		g.AddNode(n)

		assertInvariant(t, Validate(g), 4)
	})

	t.Run("edge without declaration", func(t *testing.T) {
		g := NewGraph()
		id := g.AddNode(effectNode("write"))
		g.AddEdge(Edge{Src: id, Dst: id, Kind: EdgeCapability, Cap: capSym})

		assertInvariant(t, Validate(g), 4)
	})

	t.Run("mirrored accepted", func(t *testing.T) {
		g := NewGraph()
		n := effectNode("write")
		n.Capabilities = []value.Symbol{capSym}
		id := g.AddNode(n)
		g.AddEdge(Edge{Src: id, Dst: id, Kind: EdgeCapability, Cap: capSym})

		if err := Validate(g); err != nil {
			t.Errorf("mirrored capability rejected: %v", err)
		}
	})
}

func TestValidateUnreachableObservable(t *testing.T) {
	g := NewGraph()
	r := &Node{Kind: NodeResource, TypeID: value.Digest("t", []byte("T")), Observable: true}
	g.AddNode(r)

	assertInvariant(t, Validate(g), 6)
}

func TestValidateIdentityTamper(t *testing.T) {
	g := NewGraph()
	id := g.AddNode(effectNode("a"))
	g.Nodes[id].SetParam("late", value.Digest("t", []byte("x")))

	assertInvariant(t, Validate(g), 5)
}
