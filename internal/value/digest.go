// Content digests for the Causality core.
// Every identity in the system reduces to a 32-byte digest of a canonical
// encoding. The hash algorithm is fixed at build time; only the 32-byte
// output width is part of the interface.
package value

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ID is a 32-byte content digest. IDs are ordered bytewise; the order is
// used wherever the system needs a deterministic tie-break.
type ID [32]byte

// String returns the full lowercase hex form of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns an abbreviated hex form for diagnostics.
func (id ID) Short() string {
	return hex.EncodeToString(id[:6])
}

// Less reports whether id orders before other bytewise.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Compare returns -1, 0 or +1 comparing id against other bytewise.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether the ID is the all-zero digest.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Digest computes the domain-separated content digest of the given parts.
// The domain string keeps digests of different variants from colliding even
// when their payload bytes coincide.
func Digest(domain string, parts ...[]byte) ID {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 with a nil key cannot fail; keep the invariant loud.
		panic("value: blake2b init: " + err.Error())
	}

	h.Write([]byte(domain))
	h.Write([]byte{0x00})

	for _, p := range parts {
		h.Write(p)
	}

	var id ID

	copy(id[:], h.Sum(nil))

	return id
}
