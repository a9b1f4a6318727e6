// Canonical value serialization.
//
// The encoding is deterministic: one fixed-width tag byte per variant,
// uvarint length prefixes for variable-length payloads, record fields in
// strictly ascending label order. Content IDs are digests of this encoding,
// so any two structurally equal values encode to identical bytes.
package value

import (
	"encoding/binary"
	"fmt"
)

const valueDomain = "causality/value"

// MalformedValueError reports a decode failure with the byte offset at
// which the input stopped making sense.
type MalformedValueError struct {
	Reason string
	Offset int
}

// Error implements the error interface.
func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed value at offset %d: %s", e.Offset, e.Reason)
}

// Encode produces the canonical serialization of a value.
func Encode(v *Value) []byte {
	return appendValue(nil, v)
}

// ContentID returns the 32-byte content digest of a value.
func ContentID(v *Value) ID {
	return Digest(valueDomain, Encode(v))
}

func appendValue(buf []byte, v *Value) []byte {
	buf = append(buf, byte(v.Kind))

	switch v.Kind {
	case KindUnit:
	case KindBool:
		if v.BoolVal {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		buf = binary.BigEndian.AppendUint64(buf, uint64(v.IntVal))
	case KindSymbol:
		buf = append(buf, v.Sym.Hash[:]...)
	case KindString:
		buf = binary.AppendUvarint(buf, uint64(len(v.Str)))
		buf = append(buf, v.Str...)
	case KindPair:
		buf = appendValue(buf, v.First)
		buf = appendValue(buf, v.Second)
	case KindInl, KindInr:
		buf = appendValue(buf, v.First)
	case KindRecord:
		buf = binary.AppendUvarint(buf, uint64(len(v.Fields)))
		for _, f := range v.Fields {
			buf = binary.AppendUvarint(buf, uint64(len(f.Label)))
			buf = append(buf, f.Label...)
			buf = appendValue(buf, f.Value)
		}
	case KindChannel:
		buf = append(buf, v.Channel[:]...)
	}

	return buf
}

// Decode parses a canonically encoded value. It fails on truncation,
// unknown tags, duplicate record labels, and unsorted record keys, so
// Encode and Decode are exact inverses on the canonical form.
func Decode(data []byte) (*Value, error) {
	dec := decoder{data: data}

	v, err := dec.value()
	if err != nil {
		return nil, err
	}

	if dec.off != len(data) {
		return nil, &MalformedValueError{Offset: dec.off, Reason: "trailing bytes"}
	}

	return v, nil
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) fail(reason string) error {
	return &MalformedValueError{Offset: d.off, Reason: reason}
}

func (d *decoder) take(n int) ([]byte, error) {
	if len(d.data)-d.off < n {
		return nil, d.fail("truncated input")
	}

	b := d.data[d.off : d.off+n]
	d.off += n

	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	n, used := binary.Uvarint(d.data[d.off:])
	if used <= 0 {
		return 0, d.fail("invalid length prefix")
	}

	d.off += used

	return n, nil
}

// length reads a uvarint length prefix, rejecting any value the
// remaining input cannot satisfy before it is converted or allocated.
func (d *decoder) length() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}

	if n > uint64(len(d.data)-d.off) {
		return 0, d.fail("length prefix exceeds remaining input")
	}

	return int(n), nil
}

func (d *decoder) value() (*Value, error) {
	tag, err := d.take(1)
	if err != nil {
		return nil, err
	}

	switch Kind(tag[0]) {
	case KindUnit:
		return Unit(), nil
	case KindBool:
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}

		if b[0] > 1 {
			return nil, d.fail("boolean byte out of range")
		}

		return Bool(b[0] == 1), nil
	case KindInt:
		b, err := d.take(8)
		if err != nil {
			return nil, err
		}

		return Int(int64(binary.BigEndian.Uint64(b))), nil
	case KindSymbol:
		b, err := d.take(32)
		if err != nil {
			return nil, err
		}

		var hash ID

		copy(hash[:], b)

		return Sym(SymbolFromHash(hash)), nil
	case KindString:
		n, err := d.length()
		if err != nil {
			return nil, err
		}

		b, err := d.take(n)
		if err != nil {
			return nil, err
		}

		return Str(string(b)), nil
	case KindPair:
		first, err := d.value()
		if err != nil {
			return nil, err
		}

		second, err := d.value()
		if err != nil {
			return nil, err
		}

		return Pair(first, second), nil
	case KindInl:
		inner, err := d.value()
		if err != nil {
			return nil, err
		}

		return Inl(inner), nil
	case KindInr:
		inner, err := d.value()
		if err != nil {
			return nil, err
		}

		return Inr(inner), nil
	case KindRecord:
		return d.record()
	case KindChannel:
		b, err := d.take(16)
		if err != nil {
			return nil, err
		}

		var ch ChannelID

		copy(ch[:], b)

		return Channel(ch), nil
	default:
		d.off-- // point at the offending tag

		return nil, d.fail(fmt.Sprintf("unknown tag 0x%02x", tag[0]))
	}
}

func (d *decoder) record() (*Value, error) {
	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}

	// Every field costs at least two bytes, so a count beyond the
	// remaining input is malformed and must not size an allocation.
	if count > uint64(len(d.data)-d.off) {
		return nil, d.fail("field count exceeds remaining input")
	}

	fields := make([]Field, 0, count)
	prev := ""

	for i := uint64(0); i < count; i++ {
		n, err := d.length()
		if err != nil {
			return nil, err
		}

		labelBytes, err := d.take(n)
		if err != nil {
			return nil, err
		}

		label := string(labelBytes)

		if i > 0 {
			if label == prev {
				return nil, d.fail(fmt.Sprintf("duplicate record label %q", label))
			}

			if label < prev {
				return nil, d.fail(fmt.Sprintf("record labels not sorted: %q after %q", label, prev))
			}
		}

		fieldVal, err := d.value()
		if err != nil {
			return nil, err
		}

		fields = append(fields, Field{Label: label, Value: fieldVal})
		prev = label
	}

	return &Value{Kind: KindRecord, Fields: fields}, nil
}
