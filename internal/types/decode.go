package types

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/causality-lang/causality/internal/diag"
)

// Decode parses a canonically encoded type. It is the exact inverse of
// Encode: re-encoding the result reproduces the input bytes.
func Decode(data []byte) (*Type, error) {
	r := bytes.NewReader(data)

	t, err := readType(r)
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TYPE",
			"%d trailing bytes after the type", r.Len())
	}

	return t, nil
}

func readType(r *bytes.Reader) (*Type, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, truncatedType()
	}

	switch tag {
	case encUnit:
		return Unit, nil
	case encBool:
		return Bool, nil
	case encInt:
		return Int, nil
	case encSymbol:
		return Symbol, nil
	case encString:
		return String, nil

	case encProduct, encSum:
		left, err := readType(r)
		if err != nil {
			return nil, err
		}

		right, err := readType(r)
		if err != nil {
			return nil, err
		}

		if tag == encProduct {
			return NewProduct(left, right), nil
		}

		return NewSum(left, right), nil

	case encRecord:
		row, err := readRow(r)
		if err != nil {
			return nil, err
		}

		return NewRecord(row), nil

	case encSession:
		s, err := readSession(r)
		if err != nil {
			return nil, err
		}

		return NewSession(s), nil

	case encFunction:
		lin, err := r.ReadByte()
		if err != nil || lin > 1 {
			return nil, truncatedType()
		}

		param, err := readType(r)
		if err != nil {
			return nil, err
		}

		result, err := readType(r)
		if err != nil {
			return nil, err
		}

		return NewFunction(param, result, lin == 1), nil

	case encVar:
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, truncatedType()
		}

		return NewVar(int(v)), nil

	default:
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TYPE",
			"unknown type tag 0x%02x", tag)
	}
}

func readRow(r *bytes.Reader) (*Row, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return nil, truncatedType()
	}

	fields := make([]RowField, 0, n)

	for i := uint64(0); i < n; i++ {
		label, err := readLabel(r)
		if err != nil {
			return nil, err
		}

		t, err := readType(r)
		if err != nil {
			return nil, err
		}

		fields = append(fields, RowField{Label: label, Type: t})
	}

	open, err := r.ReadByte()
	if err != nil || open > 1 {
		return nil, truncatedType()
	}

	tail := NoTail

	if open == 1 {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, truncatedType()
		}

		tail = int(v)
	}

	row, err := NewRow(fields, tail)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryCodec, "MALFORMED_TYPE",
			"encoded row rejected", err)
	}

	return row, nil
}

func readSession(r *bytes.Reader) (*Session, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, truncatedType()
	}

	switch tag {
	case encSessEnd:
		return End(), nil

	case encSessSend, encSessRecv:
		payload, err := readType(r)
		if err != nil {
			return nil, err
		}

		cont, err := readSession(r)
		if err != nil {
			return nil, err
		}

		if tag == encSessSend {
			return Send(payload, cont), nil
		}

		return Recv(payload, cont), nil

	case encSessChoice, encSessBranch:
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return nil, truncatedType()
		}

		arms := make([]SessionArm, 0, n)

		for i := uint64(0); i < n; i++ {
			label, err := readLabel(r)
			if err != nil {
				return nil, err
			}

			s, err := readSession(r)
			if err != nil {
				return nil, err
			}

			arms = append(arms, SessionArm{Label: label, Session: s})
		}

		if tag == encSessChoice {
			return Choice(arms), nil
		}

		return Branch(arms), nil

	case encSessRec:
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, truncatedType()
		}

		body, err := readSession(r)
		if err != nil {
			return nil, err
		}

		return Rec(int(v), body), nil

	case encSessVar:
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, truncatedType()
		}

		return RecVar(int(v)), nil

	default:
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TYPE",
			"unknown session tag 0x%02x", tag)
	}
}

func readLabel(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", truncatedType()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", truncatedType()
	}

	return string(buf), nil
}

func truncatedType() error {
	return diag.Newf(diag.CategoryCodec, "MALFORMED_TYPE", "truncated type encoding")
}
