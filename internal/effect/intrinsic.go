package effect

import (
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Session intrinsics. These tags are resolved by the evaluator itself, never
// by the registry; registering a handler under one of them shadows nothing.
var (
	TagSend  = value.SymbolOf("session/send")
	TagRecv  = value.SymbolOf("session/recv")
	TagClose = value.SymbolOf("session/close")
)

// Checked integer arithmetic. Plain Int arithmetic wraps; programs that
// need overflow detection perform these effects instead.
var (
	TagCheckedAdd = value.SymbolOf("int/checked-add")
	TagCheckedSub = value.SymbolOf("int/checked-sub")
	TagCheckedMul = value.SymbolOf("int/checked-mul")
)

// IsIntrinsic reports whether the evaluator resolves tag itself instead of
// consulting the registry.
func IsIntrinsic(tag value.Symbol) bool {
	switch tag.Hash {
	case TagSend.Hash, TagRecv.Hash, TagClose.Hash:
		return true
	}

	return false
}

// CheckedIntHandlers returns pure handlers for overflow-checked arithmetic.
// Each raises INT_OVERFLOW instead of wrapping.
func CheckedIntHandlers() []*Handler {
	binary := func(tag value.Symbol, apply func(a, b int64) (int64, bool)) *Handler {
		return &Handler{
			Tag:        tag,
			ParamTypes: []*types.Type{types.Int, types.Int},
			ResultType: types.Int,
			Pure:       true,
			Fn: func(args []*value.Value) (*value.Value, error) {
				out, ok := apply(args[0].IntVal, args[1].IntVal)
				if !ok {
					return nil, ErrIntOverflow(tag)
				}

				return value.Int(out), nil
			},
		}
	}

	return []*Handler{
		binary(TagCheckedAdd, func(a, b int64) (int64, bool) {
			s := a + b

			return s, (s > a) == (b > 0)
		}),
		binary(TagCheckedSub, func(a, b int64) (int64, bool) {
			d := a - b

			return d, (d < a) == (b > 0)
		}),
		binary(TagCheckedMul, func(a, b int64) (int64, bool) {
			if a == 0 || b == 0 {
				return 0, true
			}

			if b == -1 {
				return -a, a != minInt64
			}

			p := a * b

			return p, p/b == a
		}),
	}
}

const minInt64 = -1 << 63
