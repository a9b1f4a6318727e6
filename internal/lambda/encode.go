// Canonical term serialization.
//
// Bound variables are normalized to de Bruijn indices before hashing, so a
// term's content ID is stable under alpha-renaming. Free variables encode by
// name, which keeps open terms distinguishable.
package lambda

import (
	"encoding/binary"

	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

const termDomain = "causality/term"

// Encoding tags. KindVar splits into bound and free forms.
const (
	encVarBound byte = iota
	encVarFree
	encLit
	encLam
	encApp
	encLet
	encPair
	encLetPair
	encInl
	encInr
	encCase
	encRecord
	encExtend
	encRestrict
	encSelect
)

// Encode produces the canonical, alpha-normalized serialization of a term.
func Encode(t *Term) []byte {
	return appendTerm(nil, t, nil)
}

// EncodeOpen encodes a term under outer binders, innermost last. Variables
// bound by an enclosing construct normalize to indices the same way
// term-local binders do, so the caller's binder names never reach the hash.
func EncodeOpen(t *Term, binders []string) []byte {
	return appendTerm(nil, t, binders)
}

// ContentID returns the 32-byte content digest of a term.
func ContentID(t *Term) value.ID {
	return value.Digest(termDomain, Encode(t))
}

func appendTerm(buf []byte, t *Term, binders []string) []byte {
	switch t.Kind {
	case KindVar:
		for i := len(binders) - 1; i >= 0; i-- {
			if binders[i] == t.Name {
				buf = append(buf, encVarBound)

				return binary.AppendUvarint(buf, uint64(len(binders)-1-i))
			}
		}

		buf = append(buf, encVarFree)

		return appendString(buf, t.Name)

	case KindLit:
		buf = append(buf, encLit)
		enc := value.Encode(t.Lit)
		buf = binary.AppendUvarint(buf, uint64(len(enc)))

		return append(buf, enc...)

	case KindLam:
		buf = append(buf, encLam)
		buf = appendTypeAnn(buf, t.Ann)

		return appendTerm(buf, t.A, append(binders, t.Name))

	case KindApp:
		buf = append(buf, encApp)
		buf = appendTerm(buf, t.A, binders)

		return appendTerm(buf, t.B, binders)

	case KindLet:
		buf = append(buf, encLet)
		buf = appendTerm(buf, t.A, binders)

		return appendTerm(buf, t.B, append(binders, t.Name))

	case KindPair:
		buf = append(buf, encPair)
		buf = appendTerm(buf, t.A, binders)

		return appendTerm(buf, t.B, binders)

	case KindLetPair:
		buf = append(buf, encLetPair)
		buf = appendTerm(buf, t.A, binders)

		return appendTerm(buf, t.B, append(binders, t.Name, t.Binder2))

	case KindInl, KindInr:
		if t.Kind == KindInl {
			buf = append(buf, encInl)
		} else {
			buf = append(buf, encInr)
		}

		buf = appendTypeAnn(buf, t.Ann)

		return appendTerm(buf, t.A, binders)

	case KindCase:
		buf = append(buf, encCase)
		buf = appendTerm(buf, t.A, binders)
		buf = appendTerm(buf, t.B, append(binders, t.Name))

		return appendTerm(buf, t.C, append(binders, t.Binder2))

	case KindRecord:
		buf = append(buf, encRecord)
		buf = binary.AppendUvarint(buf, uint64(len(t.Fields)))

		// Record literal fields hash in sorted label order so that the
		// content ID matches the canonical value ordering.
		for _, f := range sortedFields(t.Fields) {
			buf = appendString(buf, f.Label)
			buf = appendTerm(buf, f.Term, binders)
		}

		return buf

	case KindExtend:
		buf = append(buf, encExtend)
		buf = appendString(buf, t.Name)
		buf = appendTerm(buf, t.A, binders)

		return appendTerm(buf, t.B, binders)

	case KindRestrict:
		buf = append(buf, encRestrict)
		buf = appendString(buf, t.Name)

		return appendTerm(buf, t.A, binders)

	case KindSelect:
		buf = append(buf, encSelect)
		buf = appendString(buf, t.Name)

		return appendTerm(buf, t.A, binders)

	default:
		return buf
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))

	return append(buf, s...)
}

func appendTypeAnn(buf []byte, t *types.Type) []byte {
	if t == nil {
		return append(buf, 0)
	}

	buf = append(buf, 1)
	enc := types.Encode(t)
	buf = binary.AppendUvarint(buf, uint64(len(enc)))

	return append(buf, enc...)
}

func sortedFields(fields []FieldInit) []FieldInit {
	sorted := make([]FieldInit, len(fields))
	copy(sorted, fields)

	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Label < sorted[j-1].Label; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	return sorted
}
