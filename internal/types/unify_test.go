package types

import (
	"errors"
	"testing"
)

func TestUnifyBaseAndCompound(t *testing.T) {
	tests := []struct {
		name    string
		a       *Type
		b       *Type
		wantErr ErrorCode
	}{
		{"identical base", Int, Int, ""},
		{"base mismatch", Int, Bool, CodeTypeMismatch},
		{"product", NewProduct(Int, Bool), NewProduct(Int, Bool), ""},
		{"product component mismatch", NewProduct(Int, Bool), NewProduct(Int, Int), CodeTypeMismatch},
		{"function linearity mismatch", NewFunction(Int, Int, true), NewFunction(Int, Int, false), CodeTypeMismatch},
		{
			"sessions unify by equivalence",
			NewSession(Rec(0, Send(Int, RecVar(0)))),
			NewSession(Send(Int, Rec(0, Send(Int, RecVar(0))))),
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unify(tt.a, tt.b)
			checkUnifyErr(t, err, tt.wantErr)
		})
	}
}

func TestUnifyTypeVariables(t *testing.T) {
	v := NewVar(0)

	subst, err := Unify(v, NewProduct(Int, Bool))
	if err != nil {
		t.Fatalf("Unify failed: %v", err)
	}

	if got := subst.Apply(v); !got.Equal(NewProduct(Int, Bool)) {
		t.Errorf("variable resolved to %s, want (int * bool)", got)
	}

	// Occurs check on type variables.
	_, err = Unify(v, NewProduct(v, Int))
	checkUnifyErr(t, err, CodeOccursCheck)
}

func TestUnifyRows(t *testing.T) {
	closedXY := NewRecord(MustRow([]RowField{
		{Label: "x", Type: Int},
		{Label: "y", Type: Bool},
	}, NoTail))
	closedX := NewRecord(MustRow([]RowField{{Label: "x", Type: Int}}, NoTail))
	openX := NewRecord(MustRow([]RowField{{Label: "x", Type: Int}}, 0))
	openY := NewRecord(MustRow([]RowField{{Label: "y", Type: Bool}}, 1))

	t.Run("free row may extend", func(t *testing.T) {
		subst, err := Unify(openX, closedXY)
		if err != nil {
			t.Fatalf("Unify failed: %v", err)
		}

		resolved := subst.Apply(openX)
		if !resolved.Equal(closedXY) {
			t.Errorf("open row resolved to %s, want %s", resolved, closedXY)
		}
	})

	t.Run("rigid row may not extend", func(t *testing.T) {
		_, err := Unify(closedX, closedXY)
		checkUnifyErr(t, err, CodeRowConflict)
	})

	t.Run("two open rows meet in the middle", func(t *testing.T) {
		subst, err := Unify(openX, openY)
		if err != nil {
			t.Fatalf("Unify failed: %v", err)
		}

		ra := subst.ApplyRow(openX.Row)
		rb := subst.ApplyRow(openY.Row)

		if !ra.Equal(rb) {
			t.Errorf("open rows did not converge: %s vs %s", ra, rb)
		}

		for _, label := range []string{"x", "y"} {
			if _, ok := ra.Lookup(label); !ok {
				t.Errorf("merged row missing label %q", label)
			}
		}
	})

	t.Run("field type mismatch", func(t *testing.T) {
		other := NewRecord(MustRow([]RowField{{Label: "x", Type: Bool}}, NoTail))
		_, err := Unify(closedX, other)
		checkUnifyErr(t, err, CodeTypeMismatch)
	})
}

func checkUnifyErr(t *testing.T, err error, want ErrorCode) {
	t.Helper()

	if want == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		return
	}

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}

	var typeErr *Error
	if !errors.As(err, &typeErr) {
		t.Fatalf("expected *types.Error, got %T", err)
	}

	if typeErr.Code != want {
		t.Errorf("error code = %s, want %s", typeErr.Code, want)
	}
}
