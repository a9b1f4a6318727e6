// Canonical effect-term serialization. Effect-level binders (Bind variables
// and WithSession endpoints) normalize to de Bruijn indices together with
// the Layer-1 binders below them, so content IDs are alpha-stable across
// the whole two-layer term.
package effect

import (
	"encoding/binary"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

const effectDomain = "causality/effect"

const (
	encPure byte = iota
	encBind
	encPerform
	encHandle
	encParallel
	encRace
	encWithSession
)

// Encode produces the canonical serialization of an effect term.
func Encode(t *Term) []byte {
	return appendTerm(nil, t, nil)
}

// ContentID returns the 32-byte content digest of an effect term.
func ContentID(t *Term) value.ID {
	return value.Digest(effectDomain, Encode(t))
}

func appendTerm(buf []byte, t *Term, binders []string) []byte {
	switch t.Kind {
	case KindPure:
		buf = append(buf, encPure)

		return appendLambda(buf, t.Body, binders)

	case KindBind:
		buf = append(buf, encBind)
		buf = appendTerm(buf, t.Left, binders)

		return appendTerm(buf, t.Right, append(binders, t.Binder))

	case KindPerform:
		buf = append(buf, encPerform)
		buf = append(buf, t.Tag.Hash[:]...)
		buf = binary.AppendUvarint(buf, uint64(len(t.Args)))

		for _, a := range t.Args {
			buf = appendLambda(buf, a, binders)
		}

		return buf

	case KindHandle:
		buf = append(buf, encHandle)
		buf = binary.AppendUvarint(buf, uint64(len(t.Handlers)))

		for _, h := range sortedHandlers(t.Handlers) {
			id := h.ContentID()
			buf = append(buf, id[:]...)
		}

		return appendTerm(buf, t.Left, binders)

	case KindParallel:
		buf = append(buf, encParallel)
		buf = appendTerm(buf, t.Left, binders)

		return appendTerm(buf, t.Right, binders)

	case KindRace:
		buf = append(buf, encRace)
		buf = appendTerm(buf, t.Left, binders)

		return appendTerm(buf, t.Right, binders)

	case KindWithSession:
		buf = append(buf, encWithSession)
		buf = append(buf, byte(t.Role))
		enc := types.Encode(types.NewSession(t.Session))
		buf = binary.AppendUvarint(buf, uint64(len(enc)))
		buf = append(buf, enc...)

		return appendTerm(buf, t.Right, append(binders, t.Binder))

	default:
		return buf
	}
}

func appendLambda(buf []byte, t *lambda.Term, binders []string) []byte {
	enc := lambda.EncodeOpen(t, binders)
	buf = binary.AppendUvarint(buf, uint64(len(enc)))

	return append(buf, enc...)
}

func sortedHandlers(hs []*Handler) []*Handler {
	out := make([]*Handler, len(hs))
	copy(out, hs)

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Tag.Hash.Less(out[j-1].Tag.Hash); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
