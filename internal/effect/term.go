// Package effect implements the Layer-2 algebra: effect terms over Layer-1
// computations, a stacked handler registry, and a deterministic big-step
// evaluator producing an execution trace.
package effect

import (
	"fmt"
	"strings"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Kind discriminates effect term forms.
type Kind int

const (
	KindPure Kind = iota
	KindBind
	KindPerform
	KindHandle
	KindParallel
	KindRace
	KindWithSession
)

// String returns the lowercase form name.
func (k Kind) String() string {
	switch k {
	case KindPure:
		return "pure"
	case KindBind:
		return "bind"
	case KindPerform:
		return "perform"
	case KindHandle:
		return "handle"
	case KindParallel:
		return "parallel"
	case KindRace:
		return "race"
	case KindWithSession:
		return "with-session"
	default:
		return "invalid"
	}
}

// Role selects which endpoint of a declared session a with-session form
// binds. The declaration is always written from the initiator's viewpoint;
// the responder's endpoint carries the dual protocol.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// String names the role.
func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}

	return "initiator"
}

// Term is a Layer-2 effect term. The meaning of Left and Right depends on
// the kind:
//
//	Bind:        Left = bound computation, Right = body
//	Handle:      Left = handled computation
//	Parallel:    Left, Right = the two arms
//	Race:        Left, Right = the two contestants
//	WithSession: Right = body
type Term struct {
	Left     *Term
	Right    *Term
	Body     *lambda.Term   // Pure payload
	Args     []*lambda.Term // Perform arguments, evaluated left to right
	Handlers []*Handler     // Handle frame
	Session  *types.Session // WithSession declaration, initiator viewpoint
	Tag      value.Symbol   // Perform effect tag
	Binder   string         // Bind variable; WithSession endpoint variable
	Role     Role           // WithSession endpoint selection
	Kind     Kind

	// Final marks a session intrinsic that finishes its endpoint's
	// protocol. The checker sets it; the evaluator consumes the endpoint
	// instead of returning it.
	Final bool

	// BinderType is the checker's annotation of the bound value's type on
	// Bind and WithSession forms. Lowering reads it to decide whether the
	// binder owns a linear resource.
	BinderType *types.Type
}

// ====== Constructors ======

// Pure lifts a Layer-1 term into the effect algebra.
func Pure(body *lambda.Term) *Term {
	return &Term{Kind: KindPure, Body: body}
}

// Bind sequences e before body, binding e's value to name. The conventional
// name "_" leaves the value unbound and is rejected for linear results.
func Bind(e *Term, name string, body *Term) *Term {
	return &Term{Kind: KindBind, Left: e, Right: body, Binder: name}
}

// Perform invokes the innermost handler registered for tag.
func Perform(tag value.Symbol, args ...*lambda.Term) *Term {
	return &Term{Kind: KindPerform, Tag: tag, Args: args}
}

// Handle installs handlers for the dynamic extent of e.
func Handle(e *Term, handlers ...*Handler) *Term {
	return &Term{Kind: KindHandle, Left: e, Handlers: handlers}
}

// Parallel composes two arms with no ordering between them. The linear
// contexts of the arms must be disjoint.
func Parallel(a, b *Term) *Term {
	return &Term{Kind: KindParallel, Left: a, Right: b}
}

// Race runs two contestants and keeps the deterministic winner's value.
func Race(a, b *Term) *Term {
	return &Term{Kind: KindRace, Left: a, Right: b}
}

// WithSession opens one endpoint of the declared session and binds it to
// name inside body. The paired endpoint is claimed by a companion
// WithSession carrying the same declaration and the opposite role.
func WithSession(decl *types.Session, role Role, name string, body *Term) *Term {
	return &Term{Kind: KindWithSession, Session: decl, Role: role, Binder: name, Right: body}
}

// String renders a compact one-line form for diagnostics.
func (t *Term) String() string {
	var sb strings.Builder
	t.render(&sb)

	return sb.String()
}

func (t *Term) render(sb *strings.Builder) {
	switch t.Kind {
	case KindPure:
		fmt.Fprintf(sb, "pure(%s)", t.Body)
	case KindBind:
		fmt.Fprintf(sb, "bind(%s, %s. ", t.Left, t.Binder)
		t.Right.render(sb)
		sb.WriteByte(')')
	case KindPerform:
		fmt.Fprintf(sb, "perform(%s", t.Tag)

		for _, a := range t.Args {
			fmt.Fprintf(sb, ", %s", a)
		}

		sb.WriteByte(')')
	case KindHandle:
		fmt.Fprintf(sb, "handle(%s", t.Left)

		for _, h := range t.Handlers {
			fmt.Fprintf(sb, ", %s", h.Tag)
		}

		sb.WriteByte(')')
	case KindParallel:
		fmt.Fprintf(sb, "parallel(%s, %s)", t.Left, t.Right)
	case KindRace:
		fmt.Fprintf(sb, "race(%s, %s)", t.Left, t.Right)
	case KindWithSession:
		fmt.Fprintf(sb, "with-session(%s, %s, %s. %s)", t.Session, t.Role, t.Binder, t.Right)
	default:
		sb.WriteString("invalid")
	}
}

// HandlerFunc is a handler implementation. Arguments arrive fully evaluated
// in declaration order. Pure handlers must be referentially transparent.
type HandlerFunc func(args []*value.Value) (*value.Value, error)

// Handler binds an effect tag to an implementation. A handler with a Body
// is a candidate for inlining during optimization; Fn is the authoritative
// implementation either way.
type Handler struct {
	Fn           HandlerFunc
	Body         *lambda.Term // optional term form, params bound by Params
	ResultType   *types.Type
	Params       []string
	ParamTypes   []*types.Type
	Capabilities []value.Symbol
	Tag          value.Symbol
	Pure         bool
}

// ContentID derives the handler's identity from its declaration: tag,
// parameter and result types, sorted capabilities, purity, and the body
// term when present. Opaque functions do not contribute.
func (h *Handler) ContentID() value.ID {
	parts := make([][]byte, 0, len(h.ParamTypes)+len(h.Capabilities)+4)
	parts = append(parts, h.Tag.Hash[:])

	for _, pt := range h.ParamTypes {
		parts = append(parts, types.Encode(pt))
	}

	parts = append(parts, types.Encode(h.ResultType))

	caps := sortedCapabilities(h.Capabilities)
	for _, c := range caps {
		parts = append(parts, c.Hash[:])
	}

	if h.Pure {
		parts = append(parts, []byte{1})
	} else {
		parts = append(parts, []byte{0})
	}

	if h.Body != nil {
		parts = append(parts, lambda.Encode(h.Body))
	}

	return value.Digest("causality/handler", parts...)
}

func sortedCapabilities(caps []value.Symbol) []value.Symbol {
	out := make([]value.Symbol, len(caps))
	copy(out, caps)

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Hash.Less(out[j-1].Hash); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
