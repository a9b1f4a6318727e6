package value

import (
	"testing"
)

func TestSymbolDeterminism(t *testing.T) {
	a := SymbolOf("transfer")
	b := SymbolOf("transfer")
	c := SymbolOf("mint")

	if !a.Equal(b) {
		t.Errorf("equal names must map to equal symbols")
	}

	if a.Equal(c) {
		t.Errorf("distinct names must map to distinct symbols")
	}

	// Labels are diagnostics only: a relabelled symbol stays equal.
	relabelled := Symbol{Label: "other-name", Hash: a.Hash}
	if !a.Equal(relabelled) {
		t.Errorf("symbol equality must ignore labels")
	}
}

func TestValueEquality(t *testing.T) {
	recA := MustRecord([]Field{
		{Label: "amount", Value: Int(7)},
		{Label: "asset", Value: Str("gold")},
	})
	recB := MustRecord([]Field{
		{Label: "asset", Value: Str("gold")},
		{Label: "amount", Value: Int(7)},
	})

	tests := []struct {
		name string
		a    *Value
		b    *Value
		want bool
	}{
		{"unit", Unit(), Unit(), true},
		{"int equal", Int(42), Int(42), true},
		{"int differs", Int(42), Int(43), false},
		{"kind differs", Int(0), Bool(false), false},
		{"string byte-exact", Str("café"), Str("café"), false},
		{"pair", Pair(Int(1), Int(2)), Pair(Int(1), Int(2)), true},
		{"sum side", Inl(Int(1)), Inr(Int(1)), false},
		{"record field order is canonical", recA, recB, true},
		{"symbol ignores label", Sym(SymbolOf("x")), Sym(Symbol{Hash: SymbolOf("x").Hash}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRecordDuplicateLabel(t *testing.T) {
	_, err := NewRecord([]Field{
		{Label: "v", Value: Int(1)},
		{Label: "v", Value: Int(2)},
	})
	if err == nil {
		t.Fatalf("expected duplicate label error")
	}
}

func TestRecordLookup(t *testing.T) {
	rec := MustRecord([]Field{
		{Label: "b", Value: Int(2)},
		{Label: "a", Value: Int(1)},
		{Label: "c", Value: Int(3)},
	})

	for _, tt := range []struct {
		label string
		want  int64
		ok    bool
	}{
		{"a", 1, true},
		{"b", 2, true},
		{"c", 3, true},
		{"d", 0, false},
	} {
		v, ok := rec.Lookup(tt.label)
		if ok != tt.ok {
			t.Errorf("Lookup(%q) ok = %v, want %v", tt.label, ok, tt.ok)
			continue
		}

		if ok && v.IntVal != tt.want {
			t.Errorf("Lookup(%q) = %d, want %d", tt.label, v.IntVal, tt.want)
		}
	}
}

func TestContentIDStability(t *testing.T) {
	recA := MustRecord([]Field{
		{Label: "x", Value: Int(1)},
		{Label: "y", Value: Unit()},
	})
	recB := MustRecord([]Field{
		{Label: "y", Value: Unit()},
		{Label: "x", Value: Int(1)},
	})

	if ContentID(recA) != ContentID(recB) {
		t.Errorf("content ID must not depend on construction order")
	}

	if ContentID(Int(1)) == ContentID(Int(2)) {
		t.Errorf("distinct values must have distinct content IDs")
	}

	// Symbol label must not leak into the content ID.
	bare := Sym(Symbol{Hash: SymbolOf("tick").Hash})
	if ContentID(Sym(SymbolOf("tick"))) != ContentID(bare) {
		t.Errorf("symbol label must not affect content ID")
	}
}
