package exec

import (
	"errors"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// errAwaitPeer parks a receive whose matching send has not fired yet. The
// scheduler retries the node on the next wave.
var errAwaitPeer = errors.New("exec: receive awaits its peer")

// cell is one live channel endpoint; sends land in the peer's queue.
type cell struct {
	queue []*value.Value
	peer  value.ChannelID
}

// sessionTable pairs the two session-open nodes of a declaration. The
// validator guarantees each declaration is opened exactly once per role,
// so channel IDs derive from the declaration ID and the role alone and
// replay identically across runs.
type sessionTable struct {
	cells  map[value.ChannelID]*cell
	opened map[value.ID]bool
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		cells:  make(map[value.ChannelID]*cell),
		opened: make(map[value.ID]bool),
	}
}

func (s *sessionTable) open(decl, roleMark value.ID) *value.Value {
	initiator := value.ChannelIDFrom(append(decl[:], 0))
	responder := value.ChannelIDFrom(append(decl[:], 1))

	if !s.opened[decl] {
		s.cells[initiator] = &cell{peer: responder}
		s.cells[responder] = &cell{peer: initiator}
		s.opened[decl] = true
	}

	if roleMark == teg.RoleMark(1) {
		return value.Channel(responder)
	}

	return value.Channel(initiator)
}

// intrinsic runs a session effect against the table. Final operations end
// the protocol and retire the endpoint in the same step.
func (s *sessionTable) intrinsic(tag value.Symbol, final bool, args []*value.Value) (*value.Value, error) {
	if len(args) == 0 || args[0].Kind != value.KindChannel {
		return nil, diag.Newf(diag.CategoryEval, "SESSION_MISMATCH",
			"%s needs a channel endpoint as its first argument", tag)
	}

	id := args[0].Channel

	c, live := s.cells[id]
	if !live {
		return nil, diag.Newf(diag.CategoryEval, "SESSION_MISMATCH",
			"endpoint %s is closed", id)
	}

	switch tag.Hash {
	case effect.TagSend.Hash:
		if len(args) != 2 {
			return nil, diag.Newf(diag.CategoryEval, "SESSION_MISMATCH",
				"send takes an endpoint and a payload")
		}

		peer, open := s.cells[c.peer]
		if !open {
			return nil, diag.Newf(diag.CategoryEval, "SESSION_MISMATCH",
				"peer of %s is closed", id)
		}

		peer.queue = append(peer.queue, args[1])

		if final {
			delete(s.cells, id)

			return value.Unit(), nil
		}

		return args[0], nil

	case effect.TagRecv.Hash:
		if len(c.queue) == 0 {
			return nil, errAwaitPeer
		}

		v := c.queue[0]
		c.queue = c.queue[1:]

		if final {
			delete(s.cells, id)

			return v, nil
		}

		return value.Pair(v, args[0]), nil

	default: // close
		delete(s.cells, id)

		return value.Unit(), nil
	}
}
