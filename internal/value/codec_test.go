package value

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ch := NewChannelID()

	tests := []struct {
		name string
		v    *Value
	}{
		{"unit", Unit()},
		{"bool", Bool(true)},
		{"int negative", Int(-1)},
		{"int max", Int(1<<63 - 1)},
		{"symbol", Sym(SymbolOf("escrow"))},
		{"string empty", Str("")},
		{"string utf8", Str("päyload")},
		{"pair nested", Pair(Int(1), Pair(Str("a"), Unit()))},
		{"inl", Inl(Bool(false))},
		{"inr", Inr(Pair(Int(2), Int(3)))},
		{"record", MustRecord([]Field{
			{Label: "amount", Value: Int(100)},
			{Label: "owner", Value: Sym(SymbolOf("alice"))},
		})},
		{"channel", Channel(ch)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := Encode(tt.v)

			got, err := Decode(enc)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !got.Equal(tt.v) {
				t.Errorf("round trip changed value: got %s, want %s", got, tt.v)
			}

			if ContentID(got) != ContentID(tt.v) {
				t.Errorf("round trip changed content ID")
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	good := Encode(MustRecord([]Field{
		{Label: "a", Value: Int(1)},
		{Label: "b", Value: Int(2)},
	}))

	// Swap the two field labels in place to break canonical ordering.
	unsorted := make([]byte, len(good))
	copy(unsorted, good)

	for i := range unsorted {
		if unsorted[i] == 'a' {
			unsorted[i] = 'b'
		} else if unsorted[i] == 'b' {
			unsorted[i] = 'a'
		}
	}

	dup := make([]byte, len(good))
	copy(dup, good)

	for i := range dup {
		if dup[i] == 'a' {
			dup[i] = 'b'
		}
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{0xff}},
		{"truncated int", append([]byte{byte(KindInt)}, 0, 1, 2)},
		{"truncated symbol", append([]byte{byte(KindSymbol)}, make([]byte, 31)...)},
		{"bool out of range", []byte{byte(KindBool), 2}},
		{"trailing bytes", append(Encode(Unit()), 0)},
		{"unsorted record labels", unsorted},
		{"duplicate record labels", dup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatalf("expected decode error")
			}

			var malformed *MalformedValueError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedValueError, got %T", err)
			}
		})
	}
}

// Length and count prefixes come from untrusted bytes. A prefix larger
// than the remaining input must fail cleanly before any conversion or
// allocation happens, whatever its magnitude.
func TestDecodeRejectsOversizedPrefixes(t *testing.T) {
	overflow := binary.AppendUvarint(nil, 1<<63) // negative once cast to int
	huge := binary.AppendUvarint(nil, 1<<40)     // positive, but absurd

	tests := []struct {
		name string
		data []byte
	}{
		{"string length overflows int", append([]byte{byte(KindString)}, overflow...)},
		{"string length beyond input", append([]byte{byte(KindString)}, huge...)},
		{"record count beyond input", append([]byte{byte(KindRecord)}, huge...)},
		{"record label length overflows int", append([]byte{byte(KindRecord), 1}, overflow...)},
		{"record label length beyond input", append([]byte{byte(KindRecord), 1}, huge...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if err == nil {
				t.Fatalf("expected decode error")
			}

			var malformed *MalformedValueError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedValueError, got %T", err)
			}
		})
	}
}

func TestEncodingIsCanonical(t *testing.T) {
	a := MustRecord([]Field{
		{Label: "y", Value: Str("2")},
		{Label: "x", Value: Str("1")},
	})
	b := MustRecord([]Field{
		{Label: "x", Value: Str("1")},
		{Label: "y", Value: Str("2")},
	})

	ea, eb := Encode(a), Encode(b)
	if len(ea) != len(eb) {
		t.Fatalf("encodings differ in length: %d vs %d", len(ea), len(eb))
	}

	for i := range ea {
		if ea[i] != eb[i] {
			t.Fatalf("encodings differ at byte %d", i)
		}
	}
}
