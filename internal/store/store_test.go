package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/exec"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

func testRegistry(t *testing.T) *effect.Registry {
	t.Helper()

	reg := effect.NewRegistry()
	err := reg.Register(&effect.Handler{
		Tag:        value.SymbolOf("log"),
		ParamTypes: []*types.Type{types.String},
		ResultType: types.Unit,
		Fn: func([]*value.Value) (*value.Value, error) {
			return value.Unit(), nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

func testGraph(t *testing.T, reg *effect.Registry, prog *effect.Term) *teg.Graph {
	t.Helper()

	if _, err := effect.Check(reg, prog); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	g, err := teg.Lower(prog, reg)
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}
	return g
}

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openStore(t)

	t.Run("value", func(t *testing.T) {
		v := value.Pair(value.Int(7), value.Str("seven"))
		id, err := s.PutValue(v)
		if err != nil {
			t.Fatalf("PutValue failed: %v", err)
		}
		got, err := s.GetValue(id)
		if err != nil {
			t.Fatalf("GetValue failed: %v", err)
		}
		if value.ContentID(got) != value.ContentID(v) {
			t.Fatalf("round trip changed the value")
		}
	})

	t.Run("graph", func(t *testing.T) {
		reg := testRegistry(t)
		g := testGraph(t, reg, effect.Pure(lambda.Lit(value.Int(42))))
		id, err := s.PutGraph(g)
		if err != nil {
			t.Fatalf("PutGraph failed: %v", err)
		}
		if id != g.ContentID() {
			t.Fatalf("PutGraph keyed by %s, want %s", id.Short(), g.ContentID().Short())
		}
		got, err := s.GetGraph(id)
		if err != nil {
			t.Fatalf("GetGraph failed: %v", err)
		}
		if got.ContentID() != g.ContentID() {
			t.Fatalf("round trip changed the graph")
		}
	})

	t.Run("trace", func(t *testing.T) {
		reg := testRegistry(t)
		g := testGraph(t, reg, effect.Perform(value.SymbolOf("log"), lambda.Lit(value.Str("hi"))))
		_, trace, err := exec.Run(context.Background(), g, reg, exec.Options{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		id, err := s.PutTrace(trace)
		if err != nil {
			t.Fatalf("PutTrace failed: %v", err)
		}
		got, err := s.GetTrace(id)
		if err != nil {
			t.Fatalf("GetTrace failed: %v", err)
		}
		if !got.Equal(trace) {
			t.Fatalf("round trip changed the trace")
		}
	})
}

func TestStorePutIdempotent(t *testing.T) {
	s := openStore(t)

	v := value.Int(1)
	first, err := s.PutValue(v)
	if err != nil {
		t.Fatalf("PutValue failed: %v", err)
	}
	second, err := s.PutValue(v)
	if err != nil {
		t.Fatalf("second PutValue failed: %v", err)
	}
	if first != second {
		t.Fatalf("identifiers differ across identical puts")
	}

	ids, err := s.List(KindValue)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d value artifacts, want 1", len(ids))
	}
	if ids[0] != first {
		t.Fatalf("List returned %s, want %s", ids[0].Short(), first.Short())
	}
}

func TestStoreMissingArtifact(t *testing.T) {
	s := openStore(t)

	id := value.Digest("causality/test", []byte("absent"))
	ok, err := s.Has(id)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Fatalf("Has reported a missing artifact as present")
	}
	if _, _, err := s.Get(id); err == nil {
		t.Fatalf("Get of a missing artifact succeeded")
	}
}

func TestStoreKindMismatch(t *testing.T) {
	s := openStore(t)

	id, err := s.PutValue(value.Int(3))
	if err != nil {
		t.Fatalf("PutValue failed: %v", err)
	}
	if _, err := s.GetGraph(id); err == nil {
		t.Fatalf("GetGraph accepted a value artifact")
	}
}

func TestWatcherIndexesDirectory(t *testing.T) {
	reg := testRegistry(t)
	dir := t.TempDir()

	seeded := testGraph(t, reg, effect.Pure(lambda.Lit(value.Int(1))))
	if err := os.WriteFile(filepath.Join(dir, "seed.teg"), teg.Encode(seeded), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	w, err := NewWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if _, ok := w.Lookup(seeded.ContentID()); !ok {
		t.Fatalf("initial scan missed the seeded graph")
	}

	t.Run("create", func(t *testing.T) {
		g := testGraph(t, reg, effect.Pure(lambda.Lit(value.Int(2))))
		path := filepath.Join(dir, "late.teg")
		if err := os.WriteFile(path, teg.Encode(g), 0o644); err != nil {
			t.Fatalf("write graph file: %v", err)
		}
		waitIndexed(t, w, g.ContentID(), true)
		got, _ := w.Lookup(g.ContentID())
		if got != path {
			t.Fatalf("indexed %s, want %s", got, path)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := os.Remove(filepath.Join(dir, "seed.teg")); err != nil {
			t.Fatalf("remove seed file: %v", err)
		}
		waitIndexed(t, w, seeded.ContentID(), false)
	})

	t.Run("corrupt file is skipped", func(t *testing.T) {
		path := filepath.Join(dir, "junk.teg")
		if err := os.WriteFile(path, []byte("not a graph"), 0o644); err != nil {
			t.Fatalf("write junk file: %v", err)
		}
		// Indexed graphs stay reachable while the junk file settles.
		g := testGraph(t, reg, effect.Pure(lambda.Lit(value.Int(3))))
		if err := os.WriteFile(filepath.Join(dir, "good.teg"), teg.Encode(g), 0o644); err != nil {
			t.Fatalf("write graph file: %v", err)
		}
		waitIndexed(t, w, g.ContentID(), true)
	})
}

// waitIndexed polls the watcher until id is (or is no longer)
// indexed. Filesystem events are asynchronous, so assertions on the
// index need a deadline rather than a single probe.
func waitIndexed(t *testing.T, w *Watcher, id value.ID, want bool) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := w.Lookup(id); ok == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("watcher never reached indexed=%v for %s", want, id.Short())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
