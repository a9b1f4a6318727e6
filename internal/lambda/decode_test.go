package lambda

import (
	"encoding/binary"
	"testing"

	"github.com/causality-lang/causality/internal/value"
)

func TestTermCodecRoundTrip(t *testing.T) {
	term := Let("r",
		Record([]FieldInit{
			{Label: "n", Term: Lit(value.Int(3))},
			{Label: "s", Term: Lit(value.Str("x"))},
		}),
		Pair(Select(Var("r"), "n"), Lit(value.Unit())))

	decoded, err := Decode(Encode(term))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Binder names are normalized on the wire; identity is preserved
	// up to renaming.
	if ContentID(decoded) != ContentID(term) {
		t.Error("round trip changed the term identity")
	}
}

// Length and count prefixes larger than the remaining input must fail
// before being converted to int or sizing an allocation.
func TestDecodeRejectsOversizedPrefixes(t *testing.T) {
	overflow := binary.AppendUvarint(nil, 1<<63)
	huge := binary.AppendUvarint(nil, 1<<40)

	tests := []struct {
		name string
		data []byte
	}{
		{"literal length overflows int", append([]byte{encLit}, overflow...)},
		{"literal length beyond input", append([]byte{encLit}, huge...)},
		{"record count beyond input", append([]byte{encRecord}, huge...)},
		{"free variable name beyond input", append([]byte{encVarFree}, huge...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}
