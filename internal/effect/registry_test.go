package effect

import (
	"testing"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/value"
)

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(constHandler("tick", 1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	assertEvalCode(t, reg.Register(constHandler("tick", 2)), CodeDuplicateHandler)
}

func TestRegistryLookupInnermostFirst(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(constHandler("tick", 1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := reg.Push([]*Handler{constHandler("tick", 2)}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	h, ok := reg.Lookup(value.SymbolOf("tick"))
	if !ok {
		t.Fatal("Lookup missed a registered tag")
	}

	out, _ := h.Fn(nil)
	if !out.Equal(value.Int(2)) {
		t.Errorf("inner frame did not shadow the base handler, got %s", out)
	}

	reg.Pop()

	h, _ = reg.Lookup(value.SymbolOf("tick"))

	out, _ = h.Fn(nil)
	if !out.Equal(value.Int(1)) {
		t.Errorf("Pop did not restore the base handler, got %s", out)
	}
}

func TestRegistryStableIndices(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := reg.Register(constHandler(name, 0)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	beta := reg.Index(value.SymbolOf("beta"))

	// Shadowing beta in an inner frame must not shift anyone's index.
	if err := reg.Push([]*Handler{constHandler("beta", 9)}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if got := reg.Index(value.SymbolOf("beta")); got != beta {
		t.Errorf("beta index moved from %d to %d under shadowing", beta, got)
	}

	hs := reg.Handlers()

	out, _ := hs[beta].Fn(nil)
	if !out.Equal(value.Int(9)) {
		t.Errorf("index %d resolves the outer handler, want the shadowing one", beta)
	}

	if got := reg.Index(value.SymbolOf("gamma")); got != 2 {
		t.Errorf("gamma index = %d, want 2", got)
	}
}

func TestEffectTermContentID(t *testing.T) {
	mk := func(binder string) *Term {
		return Bind(Pure(lambda.Lit(value.Int(1))), binder,
			Perform(value.SymbolOf("log"), lambda.Var(binder)))
	}

	if ContentID(mk("x")) != ContentID(mk("y")) {
		t.Error("content ID changed under alpha-renaming of an effect binder")
	}

	other := Bind(Pure(lambda.Lit(value.Int(2))), "x",
		Perform(value.SymbolOf("log"), lambda.Var("x")))

	if ContentID(mk("x")) == ContentID(other) {
		t.Error("distinct programs share a content ID")
	}
}
