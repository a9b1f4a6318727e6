package teg

import (
	"encoding/binary"
	"testing"

	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// richGraph lowers a program exercising every node and edge flavour:
// resources, capabilities, environment references, and a join.
func richGraph(t *testing.T) *Graph {
	t.Helper()

	reg := testRegistry(t)
	decl := types.Send(types.Int, types.End())

	prog := effect.Bind(
		effect.Perform(value.SymbolOf("tickA")),
		"n",
		effect.Bind(
			effect.Perform(value.SymbolOf("store"), lambda.Var("n")),
			"_",
			effect.Parallel(
				effect.WithSession(decl, effect.RoleInitiator, "c",
					effect.Perform(effect.TagSend, lambda.Var("c"), lambda.Lit(value.Int(7)))),
				effect.WithSession(decl, effect.RoleResponder, "d",
					effect.Perform(effect.TagRecv, lambda.Var("d"))))))

	return mustLower(t, reg, prog)
}

func TestGraphRoundTrip(t *testing.T) {
	g := richGraph(t)

	decoded, err := Decode(Encode(g))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.ContentID() != g.ContentID() {
		t.Error("round-trip changed the graph content ID")
	}

	if len(decoded.Nodes) != len(g.Nodes) {
		t.Errorf("node count = %d, want %d", len(decoded.Nodes), len(g.Nodes))
	}

	if len(decoded.Edges) != len(g.Edges) {
		t.Errorf("edge count = %d, want %d", len(decoded.Edges), len(g.Edges))
	}

	if len(decoded.Payloads) != len(g.Payloads) {
		t.Errorf("payload count = %d, want %d", len(decoded.Payloads), len(g.Payloads))
	}

	for id, n := range g.Nodes {
		d := decoded.Nodes[id]
		if d == nil {
			t.Fatalf("node %s lost in round-trip", id.Short())
		}

		if d.Observable != n.Observable || d.SideEffect != n.SideEffect {
			t.Errorf("node %s flags changed in round-trip", id.Short())
		}

		if d.HandlerID != n.HandlerID || d.HandlerIndex != n.HandlerIndex {
			t.Errorf("node %s handler resolution changed in round-trip", id.Short())
		}
	}

	// Payload terms re-encode to the bytes they were stored from.
	for id, term := range g.Payloads {
		d := decoded.Payloads[id]
		if d == nil {
			t.Fatalf("payload %s lost in round-trip", id.Short())
		}

		if lambda.ContentID(d) != lambda.ContentID(term) {
			t.Errorf("payload %s changed in round-trip", id.Short())
		}
	}

	if err := Validate(decoded); err != nil {
		t.Errorf("decoded graph fails validation: %v", err)
	}

	// Encoding is canonical: a second trip reproduces the bytes.
	first := Encode(g)
	second := Encode(decoded)

	if len(first) != len(second) {
		t.Fatalf("re-encoding changed the length: %d vs %d", len(first), len(second))
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("re-encoding differs at byte %d", i)
		}
	}
}

func TestDecodeRejectsDamage(t *testing.T) {
	g := richGraph(t)
	enc := Encode(g)

	t.Run("truncated", func(t *testing.T) {
		if _, err := Decode(enc[:len(enc)-7]); err == nil {
			t.Error("truncated graph decoded without error")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		bad := append([]byte(nil), enc...)
		bad[1] = '9' // first byte of the version string

		if _, err := Decode(bad); err == nil {
			t.Error("graph with major version 9 decoded without error")
		}
	})

	t.Run("header mismatch", func(t *testing.T) {
		bad := append([]byte(nil), enc...)
		// The declared graph ID sits right after the version string.
		bad[1+len(GraphSchemaVersion)+3] ^= 0xff

		if _, err := Decode(bad); err == nil {
			t.Error("graph with tampered header ID decoded without error")
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		if _, err := Decode(nil); err == nil {
			t.Error("empty stream decoded without error")
		}
	})

	// A hand-built stream whose resource list claims more IDs than the
	// input holds must fail before sizing any allocation.
	t.Run("oversized list count", func(t *testing.T) {
		var bad []byte
		bad = binary.AppendUvarint(bad, uint64(len(GraphSchemaVersion)))
		bad = append(bad, GraphSchemaVersion...)
		bad = append(bad, make([]byte, 32)...) // declared graph ID
		bad = binary.AppendUvarint(bad, 1)     // one node
		bad = binary.AppendUvarint(bad, 0)     // no edges
		bad = append(bad, byte(NodeEffect))
		bad = binary.AppendUvarint(bad, 0)     // occurrence
		bad = append(bad, 0)                   // flags
		bad = append(bad, make([]byte, 32)...) // tag hash
		bad = binary.AppendUvarint(bad, 0)     // empty tag label
		bad = binary.AppendUvarint(bad, 0)     // no params
		bad = binary.AppendUvarint(bad, 0)     // no capabilities
		bad = binary.AppendUvarint(bad, 1<<40) // impossible reads count

		if _, err := Decode(bad); err == nil {
			t.Error("graph with an oversized list count decoded without error")
		}
	})
}
