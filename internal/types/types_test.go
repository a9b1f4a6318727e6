package types

import (
	"testing"
)

func TestLinearityClassification(t *testing.T) {
	record := NewRecord(MustRow([]RowField{{Label: "v", Type: Int}}, NoTail))
	session := NewSession(Send(Int, End()))

	tests := []struct {
		name string
		typ  *Type
		want bool
	}{
		{"unit", Unit, false},
		{"int", Int, false},
		{"symbol", Symbol, false},
		{"string", String, false},
		{"record", record, true},
		{"session", session, true},
		{"product of scalars", NewProduct(Int, Bool), false},
		{"product containing record", NewProduct(Int, record), true},
		{"sum containing session", NewSum(session, Unit), true},
		{"unrestricted function", NewFunction(Int, Int, false), false},
		{"linear closure", NewFunction(Int, Int, true), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.IsLinear(); got != tt.want {
				t.Errorf("IsLinear(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestTypeEquality(t *testing.T) {
	rowA := MustRow([]RowField{{Label: "x", Type: Int}, {Label: "y", Type: Bool}}, NoTail)
	rowB := MustRow([]RowField{{Label: "y", Type: Bool}, {Label: "x", Type: Int}}, NoTail)

	tests := []struct {
		name string
		a    *Type
		b    *Type
		want bool
	}{
		{"base equal", Int, Int, true},
		{"base differ", Int, Bool, false},
		{"product", NewProduct(Int, Bool), NewProduct(Int, Bool), true},
		{"product order matters", NewProduct(Int, Bool), NewProduct(Bool, Int), false},
		{"record label order canonical", NewRecord(rowA), NewRecord(rowB), true},
		{"open vs closed row", NewRecord(MustRow(nil, 0)), NewRecord(MustRow(nil, NoTail)), false},
		{"function linearity part of identity", NewFunction(Int, Int, true), NewFunction(Int, Int, false), false},
		{
			"session by structure",
			NewSession(Send(Int, End())),
			NewSession(Send(Int, End())),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRowOperations(t *testing.T) {
	row := MustRow([]RowField{{Label: "a", Type: Int}}, NoTail)

	extended, err := row.Extend("b", Bool)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	if _, ok := extended.Lookup("b"); !ok {
		t.Errorf("extended row missing new label")
	}

	if _, err := extended.Extend("a", Bool); err == nil {
		t.Errorf("extending with an existing label must fail")
	}

	restricted, err := extended.Restrict("a")
	if err != nil {
		t.Fatalf("Restrict failed: %v", err)
	}

	if _, ok := restricted.Lookup("a"); ok {
		t.Errorf("restricted row still carries removed label")
	}

	if _, err := row.Restrict("missing"); err == nil {
		t.Errorf("restricting an absent label must fail")
	}
}
