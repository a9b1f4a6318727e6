// Canonical type serialization, used for content addressing of types in
// TEG resource nodes and term annotations.
package types

import (
	"encoding/binary"

	"github.com/causality-lang/causality/internal/value"
)

const typeDomain = "causality/type"

// Encoding tags. These are part of the persisted format and never reused.
const (
	encUnit byte = iota
	encBool
	encInt
	encSymbol
	encString
	encProduct
	encSum
	encRecord
	encSession
	encFunction
	encVar
)

const (
	encSessEnd byte = iota
	encSessSend
	encSessRecv
	encSessChoice
	encSessBranch
	encSessRec
	encSessVar
)

// Encode produces the canonical serialization of a type.
func Encode(t *Type) []byte {
	return appendType(nil, t)
}

// ContentID returns the 32-byte content digest of a type.
func ContentID(t *Type) value.ID {
	return value.Digest(typeDomain, Encode(t))
}

func appendType(buf []byte, t *Type) []byte {
	switch t.Kind {
	case KindUnit:
		return append(buf, encUnit)
	case KindBool:
		return append(buf, encBool)
	case KindInt:
		return append(buf, encInt)
	case KindSymbol:
		return append(buf, encSymbol)
	case KindString:
		return append(buf, encString)
	case KindProduct:
		buf = append(buf, encProduct)
		buf = appendType(buf, t.Left)

		return appendType(buf, t.Right)
	case KindSum:
		buf = append(buf, encSum)
		buf = appendType(buf, t.Left)

		return appendType(buf, t.Right)
	case KindRecord:
		buf = append(buf, encRecord)

		return appendRow(buf, t.Row)
	case KindSession:
		buf = append(buf, encSession)

		return appendSession(buf, t.Session)
	case KindFunction:
		buf = append(buf, encFunction)

		if t.LinearFn {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}

		buf = appendType(buf, t.Left)

		return appendType(buf, t.Right)
	case KindVar:
		buf = append(buf, encVar)

		return binary.AppendVarint(buf, int64(t.Var))
	default:
		return buf
	}
}

func appendRow(buf []byte, r *Row) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(r.Fields)))

	for _, f := range r.Fields {
		buf = binary.AppendUvarint(buf, uint64(len(f.Label)))
		buf = append(buf, f.Label...)
		buf = appendType(buf, f.Type)
	}

	if r.IsOpen() {
		buf = append(buf, 1)
		buf = binary.AppendVarint(buf, int64(r.Tail))
	} else {
		buf = append(buf, 0)
	}

	return buf
}

func appendSession(buf []byte, s *Session) []byte {
	switch s.Kind {
	case SessionEnd:
		return append(buf, encSessEnd)
	case SessionSend, SessionRecv:
		if s.Kind == SessionSend {
			buf = append(buf, encSessSend)
		} else {
			buf = append(buf, encSessRecv)
		}

		buf = appendType(buf, s.Payload)

		return appendSession(buf, s.Cont)
	case SessionChoice, SessionBranch:
		if s.Kind == SessionChoice {
			buf = append(buf, encSessChoice)
		} else {
			buf = append(buf, encSessBranch)
		}

		buf = binary.AppendUvarint(buf, uint64(len(s.Arms)))

		for _, a := range s.Arms {
			buf = binary.AppendUvarint(buf, uint64(len(a.Label)))
			buf = append(buf, a.Label...)
			buf = appendSession(buf, a.Session)
		}

		return buf
	case SessionRec:
		buf = append(buf, encSessRec)
		buf = binary.AppendVarint(buf, int64(s.Var))

		return appendSession(buf, s.Cont)
	case SessionVar:
		buf = append(buf, encSessVar)

		return binary.AppendVarint(buf, int64(s.Var))
	default:
		return buf
	}
}
