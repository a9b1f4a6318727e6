// Package value implements the Layer-0 value universe of the Causality core:
// the primitive values, content-addressed symbols, and linear channel
// identifiers, together with their canonical encoding and content digests.
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the value variants.
type Kind uint8

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindSymbol
	KindString
	KindPair
	KindInl
	KindInr
	KindRecord
	KindChannel
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindPair:
		return "pair"
	case KindInl:
		return "inl"
	case KindInr:
		return "inr"
	case KindRecord:
		return "record"
	case KindChannel:
		return "channel"
	default:
		return "invalid"
	}
}

// Field is one labelled record component. Record fields are kept sorted by
// label so that equality and encoding are order-independent.
type Field struct {
	Label string
	Value *Value
}

// Value is the tagged union of all Layer-0 values. Values are immutable
// after construction.
type Value struct {
	First   *Value // Pair left; Inl/Inr payload
	Second  *Value // Pair right
	Str     string
	Fields  []Field // Record, sorted by label
	Sym     Symbol
	IntVal  int64
	Channel ChannelID
	BoolVal bool
	Kind    Kind
}

// ====== Constructors ======

var unitValue = &Value{Kind: KindUnit}

// Unit returns the unit value.
func Unit() *Value { return unitValue }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{Kind: KindBool, BoolVal: b} }

// Int returns a 64-bit signed integer value.
func Int(i int64) *Value { return &Value{Kind: KindInt, IntVal: i} }

// Sym wraps a symbol as a value.
func Sym(s Symbol) *Value { return &Value{Kind: KindSymbol, Sym: s} }

// Str returns an immutable string value. Equality is byte-exact; no Unicode
// normalization is applied.
func Str(s string) *Value { return &Value{Kind: KindString, Str: s} }

// Pair returns the product of two values.
func Pair(a, b *Value) *Value { return &Value{Kind: KindPair, First: a, Second: b} }

// Inl injects a value into the left side of a sum.
func Inl(v *Value) *Value { return &Value{Kind: KindInl, First: v} }

// Inr injects a value into the right side of a sum.
func Inr(v *Value) *Value { return &Value{Kind: KindInr, First: v} }

// Channel wraps a channel endpoint reference.
func Channel(id ChannelID) *Value { return &Value{Kind: KindChannel, Channel: id} }

// NewRecord builds a record value from fields. The fields are copied and
// sorted by label; duplicate labels are rejected.
func NewRecord(fields []Field) (*Value, error) {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Label == sorted[i-1].Label {
			return nil, fmt.Errorf("value: duplicate record label %q", sorted[i].Label)
		}
	}

	return &Value{Kind: KindRecord, Fields: sorted}, nil
}

// MustRecord is NewRecord for statically known field sets.
func MustRecord(fields []Field) *Value {
	v, err := NewRecord(fields)
	if err != nil {
		panic(err)
	}

	return v
}

// Lookup returns the field value for a label in a record.
func (v *Value) Lookup(label string) (*Value, bool) {
	if v.Kind != KindRecord {
		return nil, false
	}

	i := sort.Search(len(v.Fields), func(i int) bool { return v.Fields[i].Label >= label })
	if i < len(v.Fields) && v.Fields[i].Label == label {
		return v.Fields[i].Value, true
	}

	return nil, false
}

// ====== Equality ======

// Equal is structural equality over values. Symbol labels are ignored;
// string comparison is byte-exact.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}

	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindUnit:
		return true
	case KindBool:
		return v.BoolVal == other.BoolVal
	case KindInt:
		return v.IntVal == other.IntVal
	case KindSymbol:
		return v.Sym.Hash == other.Sym.Hash
	case KindString:
		return v.Str == other.Str
	case KindPair:
		return v.First.Equal(other.First) && v.Second.Equal(other.Second)
	case KindInl, KindInr:
		return v.First.Equal(other.First)
	case KindRecord:
		if len(v.Fields) != len(other.Fields) {
			return false
		}

		for i := range v.Fields {
			if v.Fields[i].Label != other.Fields[i].Label {
				return false
			}

			if !v.Fields[i].Value.Equal(other.Fields[i].Value) {
				return false
			}
		}

		return true
	case KindChannel:
		return v.Channel == other.Channel
	default:
		return false
	}
}

// ====== String representation ======

// String renders the value for diagnostics.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}

	switch v.Kind {
	case KindUnit:
		return "()"
	case KindBool:
		return fmt.Sprintf("%t", v.BoolVal)
	case KindInt:
		return fmt.Sprintf("%d", v.IntVal)
	case KindSymbol:
		return v.Sym.String()
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindPair:
		return fmt.Sprintf("(%s, %s)", v.First.String(), v.Second.String())
	case KindInl:
		return fmt.Sprintf("inl %s", v.First.String())
	case KindInr:
		return fmt.Sprintf("inr %s", v.First.String())
	case KindRecord:
		fields := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			fields = append(fields, fmt.Sprintf("%s: %s", f.Label, f.Value.String()))
		}

		return fmt.Sprintf("{%s}", strings.Join(fields, ", "))
	case KindChannel:
		return fmt.Sprintf("chan<%s>", v.Channel.String())
	default:
		return "<invalid>"
	}
}
