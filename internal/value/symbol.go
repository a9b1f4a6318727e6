package value

import (
	"sync"

	"github.com/google/uuid"
)

const symbolDomain = "causality/symbol"

// symtab is the process-wide interner mapping symbol digests back to the
// label they were created from. Labels are diagnostic only and never part
// of symbol identity.
var symtab sync.Map // ID -> string

// Symbol is a content-addressed name. Two symbols are equal exactly when
// their digests are equal; the label is retained only for diagnostics.
type Symbol struct {
	Label string
	Hash  ID
}

// SymbolOf derives the symbol for a name. The mapping is deterministic:
// equal names always yield equal symbols, across processes and runs.
func SymbolOf(name string) Symbol {
	hash := Digest(symbolDomain, []byte(name))
	symtab.LoadOrStore(hash, name)

	return Symbol{Label: name, Hash: hash}
}

// SymbolFromHash reconstructs a symbol from a raw digest, recovering the
// label from the interner when the symbol was seen before in this process.
func SymbolFromHash(hash ID) Symbol {
	label := ""
	if v, ok := symtab.Load(hash); ok {
		label = v.(string)
	}

	return Symbol{Label: label, Hash: hash}
}

// Equal compares symbols by digest only.
func (s Symbol) Equal(other Symbol) bool {
	return s.Hash == other.Hash
}

// String renders the label when known, the short digest otherwise.
func (s Symbol) String() string {
	if s.Label != "" {
		return s.Label
	}

	return "sym:" + s.Hash.Short()
}

// ChannelID identifies a live Layer-0 channel endpoint. Channel identity is
// runtime-scoped; fresh IDs are drawn per new-session form.
type ChannelID [16]byte

// NewChannelID returns a fresh channel identifier.
func NewChannelID() ChannelID {
	return ChannelID(uuid.New())
}

// channelNS namespaces derived channel IDs so they cannot collide with
// version-4 IDs from NewChannelID.
var channelNS = uuid.NewSHA1(uuid.Nil, []byte("causality/channel"))

// ChannelIDFrom derives a channel identifier deterministically from a seed.
// The evaluator uses this so traces mentioning channel values are replayable.
func ChannelIDFrom(seed []byte) ChannelID {
	return ChannelID(uuid.NewSHA1(channelNS, seed))
}

// String returns the canonical UUID rendering of the channel ID.
func (c ChannelID) String() string {
	return uuid.UUID(c).String()
}
