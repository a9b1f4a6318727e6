package effect

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

func logHandler(log *[]string) *Handler {
	return &Handler{
		Tag:        value.SymbolOf("log"),
		ParamTypes: []*types.Type{types.String},
		ResultType: types.Unit,
		Fn: func(args []*value.Value) (*value.Value, error) {
			*log = append(*log, args[0].Str)

			return value.Unit(), nil
		},
	}
}

func constHandler(tag string, out int64) *Handler {
	return &Handler{
		Tag:        value.SymbolOf(tag),
		ResultType: types.Int,
		Pure:       true,
		Fn: func([]*value.Value) (*value.Value, error) {
			return value.Int(out), nil
		},
	}
}

func TestBindSequencing(t *testing.T) {
	var log []string

	reg := NewRegistry()
	if err := reg.Register(logHandler(&log)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	prog := Bind(
		Perform(value.SymbolOf("log"), lambda.Lit(value.Str("a"))),
		"_",
		Perform(value.SymbolOf("log"), lambda.Lit(value.Str("b"))))

	out, trace, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Unit()) {
		t.Errorf("result = %s, want unit", out)
	}

	if len(trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(trace))
	}

	if len(log) != 2 || log[0] != "a" || log[1] != "b" {
		t.Errorf("handler observed %v, want [a b]", log)
	}

	wantFirst := PerformNodeID(value.SymbolOf("log"), []value.ID{value.ContentID(value.Str("a"))})
	if trace[0].Node != wantFirst {
		t.Errorf("first trace node = %s, want %s", trace[0].Node, wantFirst)
	}
}

func TestEvaluationDeterminism(t *testing.T) {
	reg := NewRegistry()

	for _, h := range CheckedIntHandlers() {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	prog := Bind(
		Perform(TagCheckedAdd, lambda.Lit(value.Int(20)), lambda.Lit(value.Int(22))),
		"n",
		Bind(
			Perform(TagCheckedMul, lambda.Var("n"), lambda.Lit(value.Int(2))),
			"m",
			Pure(lambda.Pair(lambda.Var("n"), lambda.Var("m")))))

	out1, trace1, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("first Eval failed: %v", err)
	}

	out2, trace2, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("second Eval failed: %v", err)
	}

	if !out1.Equal(out2) {
		t.Errorf("results differ: %s vs %s", out1, out2)
	}

	if !trace1.Equal(trace2) {
		t.Error("traces differ across identical runs")
	}

	want := value.Pair(value.Int(42), value.Int(84))
	if !out1.Equal(want) {
		t.Errorf("result = %s, want %s", out1, want)
	}
}

func TestDeepBindChain(t *testing.T) {
	prog := Pure(lambda.Lit(value.Int(0)))

	// Right-nested chains exercise the continuation stack; the Go call
	// stack must stay flat.
	for i := 0; i < 50000; i++ {
		prog = Bind(Pure(lambda.Lit(value.Int(int64(i)))), "x", prog)
	}

	out, trace, err := NewEvaluator(NewRegistry()).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Int(0)) {
		t.Errorf("result = %s, want 0", out)
	}

	if len(trace) != 0 {
		t.Errorf("pure chain produced %d trace entries", len(trace))
	}
}

func TestUnhandledEffect(t *testing.T) {
	_, _, err := NewEvaluator(NewRegistry()).Eval(Perform(value.SymbolOf("nope")))
	assertEvalCode(t, err, CodeUnhandledEffect)
}

func TestHandlerPanicContained(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(&Handler{
		Tag:        value.SymbolOf("boom"),
		ResultType: types.Unit,
		Fn: func([]*value.Value) (*value.Value, error) {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, _, evalErr := NewEvaluator(reg).Eval(Perform(value.SymbolOf("boom")))
	assertEvalCode(t, evalErr, CodeHandlerPanic)
}

func TestCheckedAddOverflow(t *testing.T) {
	reg := NewRegistry()

	for _, h := range CheckedIntHandlers() {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	prog := Perform(TagCheckedAdd,
		lambda.Lit(value.Int(1<<62)),
		lambda.Lit(value.Int(1<<62)))

	_, _, err := NewEvaluator(reg).Eval(prog)
	assertEvalCode(t, err, CodeIntOverflow)
}

func TestHandleInnermostWins(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(constHandler("tick", 1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	prog := Handle(Perform(value.SymbolOf("tick")), constHandler("tick", 2))

	out, _, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Int(2)) {
		t.Errorf("result = %s, want 2 from the inner handler", out)
	}

	// Outside the Handle extent the base handler answers again.
	out, _, err = NewEvaluator(reg).Eval(Bind(prog, "_", Perform(value.SymbolOf("tick"))))
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Int(1)) {
		t.Errorf("result = %s, want 1 from the base handler", out)
	}
}

func TestParallelPairsResults(t *testing.T) {
	prog := Parallel(Pure(lambda.Lit(value.Int(1))), Pure(lambda.Lit(value.Int(2))))

	out, trace, err := NewEvaluator(NewRegistry()).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Pair(value.Int(1), value.Int(2))) {
		t.Errorf("result = %s, want (1, 2)", out)
	}

	if len(trace) != 0 {
		t.Errorf("pure parallel produced %d trace entries", len(trace))
	}
}

func TestRacePicksSmallerRankID(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(constHandler("tickA", 1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := reg.Register(constHandler("tickB", 2)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	idA := RaceRankID(value.SymbolOf("tickA"), nil)
	idB := RaceRankID(value.SymbolOf("tickB"), nil)

	want := value.Int(1)
	if idB.Less(idA) {
		want = value.Int(2)
	}

	a := Perform(value.SymbolOf("tickA"))
	b := Perform(value.SymbolOf("tickB"))

	for _, prog := range []*Term{Race(a, b), Race(b, a)} {
		out, trace, err := NewEvaluator(reg).Eval(prog)
		if err != nil {
			t.Fatalf("Eval failed: %v", err)
		}

		if !out.Equal(want) {
			t.Errorf("race winner = %s, want %s regardless of arm order", out, want)
		}

		if len(trace) != 1 {
			t.Errorf("trace length = %d, want 1 (loser discarded)", len(trace))
		}
	}
}

func TestRaceEffectFreeArmWins(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(constHandler("tick", 7)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	prog := Race(Perform(value.SymbolOf("tick")), Pure(lambda.Lit(value.Int(99))))

	out, trace, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	if !out.Equal(value.Int(99)) {
		t.Errorf("result = %s, want the effect-free arm's 99", out)
	}

	if len(trace) != 0 {
		t.Errorf("trace length = %d, want 0", len(trace))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	decl := types.Send(types.Int, types.End())

	sender := WithSession(decl, RoleInitiator, "c",
		Perform(TagSend, lambda.Var("c"), lambda.Lit(value.Int(7))))
	receiver := WithSession(decl, RoleResponder, "d",
		Perform(TagRecv, lambda.Var("d")))

	prog := Parallel(sender, receiver)

	if _, err := Check(NewRegistry(), prog); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	out, trace, err := NewEvaluator(NewRegistry()).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	want := value.Pair(value.Unit(), value.Int(7))
	if !out.Equal(want) {
		t.Errorf("result = %s, want %s", out, want)
	}

	if len(trace) != 2 {
		t.Errorf("trace length = %d, want send and recv entries", len(trace))
	}
}

func TestSessionDeterministicChannels(t *testing.T) {
	decl := types.Send(types.Int, types.End())

	prog := Parallel(
		WithSession(decl, RoleInitiator, "c",
			Perform(TagSend, lambda.Var("c"), lambda.Lit(value.Int(7)))),
		WithSession(decl, RoleResponder, "d",
			Perform(TagRecv, lambda.Var("d"))))

	if _, err := Check(NewRegistry(), prog); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	_, trace1, err := NewEvaluator(NewRegistry()).Eval(prog)
	if err != nil {
		t.Fatalf("first Eval failed: %v", err)
	}

	_, trace2, err := NewEvaluator(NewRegistry()).Eval(prog)
	if err != nil {
		t.Fatalf("second Eval failed: %v", err)
	}

	if !trace1.Equal(trace2) {
		t.Error("session traces differ across runs; channel IDs are not deterministic")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	var log []string

	reg := NewRegistry()
	if err := reg.Register(logHandler(&log)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	prog := Bind(
		Perform(value.SymbolOf("log"), lambda.Lit(value.Str("x"))),
		"_",
		Perform(value.SymbolOf("log"), lambda.Lit(value.Str("y"))))

	_, trace, err := NewEvaluator(reg).Eval(prog)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}

	decoded, err := DecodeTrace(EncodeTrace(trace))
	if err != nil {
		t.Fatalf("DecodeTrace failed: %v", err)
	}

	if !decoded.Equal(trace) {
		t.Error("trace round-trip lost entries")
	}

	t.Run("truncated stream rejected", func(t *testing.T) {
		enc := EncodeTrace(trace)
		if _, err := DecodeTrace(enc[:len(enc)-5]); err == nil {
			t.Error("truncated trace decoded without error")
		}
	})

	// Count prefixes larger than the remaining input must fail before
	// sizing any allocation.
	t.Run("oversized entry count rejected", func(t *testing.T) {
		var bad []byte
		bad = binary.AppendUvarint(bad, uint64(len(TraceSchemaVersion)))
		bad = append(bad, TraceSchemaVersion...)
		bad = binary.AppendUvarint(bad, 1<<40)

		if _, err := DecodeTrace(bad); err == nil {
			t.Error("trace with an oversized entry count decoded without error")
		}
	})

	t.Run("oversized input count rejected", func(t *testing.T) {
		var bad []byte
		bad = binary.AppendUvarint(bad, uint64(len(TraceSchemaVersion)))
		bad = append(bad, TraceSchemaVersion...)
		bad = binary.AppendUvarint(bad, 1)     // one entry
		bad = append(bad, make([]byte, 32)...) // its node ID
		bad = binary.AppendUvarint(bad, 1<<40) // impossible input count

		if _, err := DecodeTrace(bad); err == nil {
			t.Error("trace entry with an oversized input count decoded without error")
		}
	})
}

func assertEvalCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}

	var effErr *Error
	if !errors.As(err, &effErr) {
		t.Fatalf("expected *effect.Error, got %T: %v", err, err)
	}

	if effErr.Code != want {
		t.Errorf("error code = %s, want %s", effErr.Code, want)
	}
}
