package types

import (
	"fmt"
	"sort"
	"strings"
)

// NoTail marks a closed row.
const NoTail = -1

// RowField is one labelled component of a row.
type RowField struct {
	Label string
	Type  *Type
}

// Row is a typed label map, optionally extensible through a row variable.
// Fields are kept sorted by label; a Tail of NoTail means the row is closed.
type Row struct {
	Fields []RowField
	Tail   int
}

// NewRow builds a row from fields, sorting them by label. Duplicate labels
// are rejected. tail is NoTail for a closed row, otherwise the row variable.
func NewRow(fields []RowField, tail int) (*Row, error) {
	sorted := make([]RowField, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Label == sorted[i-1].Label {
			return nil, ErrRowConflict(sorted[i].Label)
		}
	}

	return &Row{Fields: sorted, Tail: tail}, nil
}

// MustRow is NewRow for statically known field sets.
func MustRow(fields []RowField, tail int) *Row {
	r, err := NewRow(fields, tail)
	if err != nil {
		panic(err)
	}

	return r
}

// IsOpen reports whether the row carries a tail variable.
func (r *Row) IsOpen() bool { return r.Tail != NoTail }

// Lookup returns the type bound at a label.
func (r *Row) Lookup(label string) (*Type, bool) {
	i := sort.Search(len(r.Fields), func(i int) bool { return r.Fields[i].Label >= label })
	if i < len(r.Fields) && r.Fields[i].Label == label {
		return r.Fields[i].Type, true
	}

	return nil, false
}

// Extend returns a new row with an additional labelled field. The label must
// not already be present.
func (r *Row) Extend(label string, t *Type) (*Row, error) {
	if _, ok := r.Lookup(label); ok {
		return nil, ErrRowConflict(label)
	}

	fields := make([]RowField, len(r.Fields), len(r.Fields)+1)
	copy(fields, r.Fields)
	fields = append(fields, RowField{Label: label, Type: t})

	return NewRow(fields, r.Tail)
}

// Restrict returns a new row without the given label. The label must be
// present.
func (r *Row) Restrict(label string) (*Row, error) {
	if _, ok := r.Lookup(label); !ok {
		return nil, ErrRowConflict(label)
	}

	fields := make([]RowField, 0, len(r.Fields)-1)

	for _, f := range r.Fields {
		if f.Label != label {
			fields = append(fields, f)
		}
	}

	return &Row{Fields: fields, Tail: r.Tail}, nil
}

// Equal is structural row equality.
func (r *Row) Equal(other *Row) bool {
	if r == nil || other == nil {
		return r == other
	}

	if r.Tail != other.Tail || len(r.Fields) != len(other.Fields) {
		return false
	}

	for i := range r.Fields {
		if r.Fields[i].Label != other.Fields[i].Label {
			return false
		}

		if !r.Fields[i].Type.Equal(other.Fields[i].Type) {
			return false
		}
	}

	return true
}

// String renders the row for diagnostics.
func (r *Row) String() string {
	parts := make([]string, 0, len(r.Fields)+1)
	for _, f := range r.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Label, f.Type.String()))
	}

	if r.IsOpen() {
		parts = append(parts, fmt.Sprintf("..'r%d", r.Tail))
	}

	return "{" + strings.Join(parts, ", ") + "}"
}
