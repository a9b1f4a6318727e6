package lambda

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Decode parses a canonically encoded term. Binder names are synthesized
// from de Bruijn depth ("$0", "$1", ...), so the result is alpha-equivalent
// to the encoded term and re-encodes to the same bytes.
func Decode(data []byte) (*Term, error) {
	r := bytes.NewReader(data)

	t, err := readTerm(r, 0)
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TERM",
			"%d trailing bytes after the term", r.Len())
	}

	return t, nil
}

func binderName(depth int) string {
	return fmt.Sprintf("$%d", depth)
}

func readTerm(r *bytes.Reader, depth int) (*Term, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, truncatedTerm()
	}

	switch tag {
	case encVarBound:
		dist, err := binary.ReadUvarint(r)
		if err != nil || dist >= uint64(depth) {
			return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TERM",
				"bound variable index out of range")
		}

		return Var(binderName(depth - 1 - int(dist))), nil

	case encVarFree:
		name, err := readName(r)
		if err != nil {
			return nil, err
		}

		return Var(name), nil

	case encLit:
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return nil, truncatedTerm()
		}

		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, truncatedTerm()
		}

		v, err := value.Decode(buf)
		if err != nil {
			return nil, err
		}

		return Lit(v), nil

	case encLam:
		ann, err := readTypeAnn(r)
		if err != nil {
			return nil, err
		}

		body, err := readTerm(r, depth+1)
		if err != nil {
			return nil, err
		}

		return Lam(binderName(depth), ann, body), nil

	case encApp:
		fn, arg, err := readPair(r, depth, depth)
		if err != nil {
			return nil, err
		}

		return App(fn, arg), nil

	case encLet:
		bound, err := readTerm(r, depth)
		if err != nil {
			return nil, err
		}

		body, err := readTerm(r, depth+1)
		if err != nil {
			return nil, err
		}

		return Let(binderName(depth), bound, body), nil

	case encPair:
		a, b, err := readPair(r, depth, depth)
		if err != nil {
			return nil, err
		}

		return Pair(a, b), nil

	case encLetPair:
		pair, err := readTerm(r, depth)
		if err != nil {
			return nil, err
		}

		body, err := readTerm(r, depth+2)
		if err != nil {
			return nil, err
		}

		return LetPair(binderName(depth), binderName(depth+1), pair, body), nil

	case encInl, encInr:
		ann, err := readTypeAnn(r)
		if err != nil {
			return nil, err
		}

		payload, err := readTerm(r, depth)
		if err != nil {
			return nil, err
		}

		if tag == encInl {
			return Inl(payload, ann), nil
		}

		return Inr(payload, ann), nil

	case encCase:
		scrut, err := readTerm(r, depth)
		if err != nil {
			return nil, err
		}

		left, err := readTerm(r, depth+1)
		if err != nil {
			return nil, err
		}

		right, err := readTerm(r, depth+1)
		if err != nil {
			return nil, err
		}

		return Case(scrut, binderName(depth), left, binderName(depth), right), nil

	case encRecord:
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return nil, truncatedTerm()
		}

		fields := make([]FieldInit, 0, n)

		for i := uint64(0); i < n; i++ {
			label, err := readName(r)
			if err != nil {
				return nil, err
			}

			ft, err := readTerm(r, depth)
			if err != nil {
				return nil, err
			}

			fields = append(fields, FieldInit{Label: label, Term: ft})
		}

		return Record(fields), nil

	case encExtend:
		label, err := readName(r)
		if err != nil {
			return nil, err
		}

		val, rec, err := readPair(r, depth, depth)
		if err != nil {
			return nil, err
		}

		return Extend(label, val, rec), nil

	case encRestrict, encSelect:
		label, err := readName(r)
		if err != nil {
			return nil, err
		}

		rec, err := readTerm(r, depth)
		if err != nil {
			return nil, err
		}

		if tag == encRestrict {
			return Restrict(rec, label), nil
		}

		return Select(rec, label), nil

	default:
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TERM",
			"unknown term tag 0x%02x", tag)
	}
}

func readPair(r *bytes.Reader, depthA, depthB int) (*Term, *Term, error) {
	a, err := readTerm(r, depthA)
	if err != nil {
		return nil, nil, err
	}

	b, err := readTerm(r, depthB)
	if err != nil {
		return nil, nil, err
	}

	return a, b, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", truncatedTerm()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", truncatedTerm()
	}

	return string(buf), nil
}

func readTypeAnn(r *bytes.Reader) (*types.Type, error) {
	present, err := r.ReadByte()
	if err != nil || present > 1 {
		return nil, truncatedTerm()
	}

	if present == 0 {
		return nil, nil
	}

	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return nil, truncatedTerm()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncatedTerm()
	}

	return types.Decode(buf)
}

func truncatedTerm() error {
	return diag.Newf(diag.CategoryCodec, "MALFORMED_TERM", "truncated term encoding")
}
