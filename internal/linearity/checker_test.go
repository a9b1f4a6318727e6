package linearity

import (
	"errors"
	"testing"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

func recordType() *types.Type {
	return types.NewRecord(types.MustRow([]types.RowField{{Label: "v", Type: types.Int}}, types.NoTail))
}

// check runs inference (to annotate binders) and then the linearity walk.
func check(t *testing.T, term *lambda.Term) error {
	t.Helper()

	if _, err := lambda.Infer(lambda.NewEnv(), term); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	ctx := NewContext()
	if err := CheckTerm(ctx, term); err != nil {
		return err
	}

	return ctx.CheckAllUsed()
}

func newRecordTerm() *lambda.Term {
	return lambda.Record([]lambda.FieldInit{{Label: "v", Term: lambda.Lit(value.Int(1))}})
}

func TestLinearUseDiscipline(t *testing.T) {
	tests := []struct {
		name string
		term *lambda.Term
		code ErrorCode
	}{
		{
			"single use accepted",
			lambda.Let("r", newRecordTerm(), lambda.Var("r")),
			"",
		},
		{
			"double use rejected",
			lambda.Let("r", newRecordTerm(), lambda.Pair(lambda.Var("r"), lambda.Var("r"))),
			CodeUsedTwice,
		},
		{
			"dropped binding rejected",
			lambda.Let("r", newRecordTerm(), lambda.Lit(value.Unit())),
			CodeNotUsed,
		},
		{
			"unrestricted reuse accepted",
			lambda.Let("n", lambda.Lit(value.Int(1)), lambda.Pair(lambda.Var("n"), lambda.Var("n"))),
			"",
		},
		{
			"lambda must consume linear parameter",
			lambda.Lam("r", recordType(), lambda.Lit(value.Unit())),
			CodeNotUsed,
		},
		{
			"let-pair consumes both components",
			lambda.LetPair("a", "b",
				lambda.Pair(newRecordTerm(), newRecordTerm()),
				lambda.Pair(lambda.Var("a"), lambda.Var("b"))),
			"",
		},
		{
			"let-pair dropping one component rejected",
			lambda.LetPair("a", "b",
				lambda.Pair(newRecordTerm(), newRecordTerm()),
				lambda.Var("a")),
			CodeNotUsed,
		},
		{
			"select discarding linear remainder rejected",
			lambda.Select(
				lambda.Record([]lambda.FieldInit{
					{Label: "keep", Term: lambda.Lit(value.Int(1))},
					{Label: "rest", Term: newRecordTerm()},
				}), "keep"),
			CodeNotUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(t, tt.term)
			assertCode(t, err, tt.code)
		})
	}
}

func TestBranchRule(t *testing.T) {
	sum := types.NewSum(types.Unit, types.Unit)

	t.Run("both branches consume", func(t *testing.T) {
		term := lambda.Let("r", newRecordTerm(),
			lambda.Case(lambda.Inl(lambda.Lit(value.Unit()), sum),
				"x", lambda.Var("r"),
				"y", lambda.Var("r")))
		assertCode(t, check(t, term), "")
	})

	t.Run("one branch drops the binding", func(t *testing.T) {
		term := lambda.Let("r", newRecordTerm(),
			lambda.Case(lambda.Inl(lambda.Lit(value.Unit()), sum),
				"x", lambda.Select(lambda.Var("r"), "v"),
				"y", lambda.Lit(value.Int(0))))
		assertCode(t, check(t, term), CodeBranchContextMismatch)
	})
}

func TestSplitAndMerge(t *testing.T) {
	ctx := NewContext()

	if err := ctx.Bind("a", recordType()); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	if err := ctx.Bind("b", recordType()); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	t.Run("disjoint split covers the context", func(t *testing.T) {
		left, right, err := ctx.Split(map[string]bool{"a": true}, map[string]bool{"b": true})
		if err != nil {
			t.Fatalf("Split failed: %v", err)
		}

		if _, err := left.Use("a"); err != nil {
			t.Fatalf("Use(a) failed: %v", err)
		}

		if _, err := right.Use("b"); err != nil {
			t.Fatalf("Use(b) failed: %v", err)
		}

		if err := ctx.Merge(left, right); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}

		if err := ctx.CheckAllUsed(); err != nil {
			t.Errorf("context not fully consumed after merge: %v", err)
		}
	})

	t.Run("overlapping claim is a split conflict", func(t *testing.T) {
		fresh := NewContext()
		_ = fresh.Bind("a", recordType())

		_, _, err := fresh.Split(map[string]bool{"a": true}, map[string]bool{"a": true})
		assertCode(t, err, CodeSplitConflict)
	})

	t.Run("uncovered binding is rejected", func(t *testing.T) {
		fresh := NewContext()
		_ = fresh.Bind("a", recordType())
		_ = fresh.Bind("orphan", recordType())

		_, _, err := fresh.Split(map[string]bool{"a": true}, nil)
		assertCode(t, err, CodeNotUsed)
	})

	t.Run("merge requires full consumption", func(t *testing.T) {
		fresh := NewContext()
		_ = fresh.Bind("a", recordType())

		left, right, err := fresh.Split(map[string]bool{"a": true}, nil)
		if err != nil {
			t.Fatalf("Split failed: %v", err)
		}

		assertCode(t, fresh.Merge(left, right), CodeNotUsed)
	})
}

func TestRebind(t *testing.T) {
	ctx := NewContext()
	_ = ctx.Bind("r", recordType())

	assertCode(t, ctx.Bind("r", recordType()), CodeRebound)
}

func assertCode(t *testing.T, err error, want ErrorCode) {
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

	var linErr *Error
	if !errors.As(err, &linErr) {
		t.Fatalf("expected *linearity.Error, got %T", err)
	}

	if linErr.Code != want {
		t.Errorf("error code = %s, want %s", linErr.Code, want)
	}
}
