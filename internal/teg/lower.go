package teg

import (
	"sort"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Tags of the synthetic nodes lowering introduces alongside user effects.
var (
	TagPure        = value.SymbolOf("pure")
	TagJoin        = value.SymbolOf("join")
	TagRaceSplit   = value.SymbolOf("race-split")
	TagRaceMerge   = value.SymbolOf("race-merge")
	TagSessionOpen = value.SymbolOf("session-open")
)

// DefaultDomain is the execution domain of nodes outside any with-session.
var DefaultDomain = value.Digest("causality/domain", []byte("default"))

// FinalMark is the value of the "final" parameter on a session effect that
// ends its protocol and consumes the endpoint in the same step.
var FinalMark = value.Digest("causality/teg-final", []byte{1})

// RoleMark is the value of a session-open node's "role" parameter.
func RoleMark(role byte) value.ID {
	return value.Digest("causality/teg-role", []byte{role})
}

// Lower translates a checked effect term into a graph. The input must have
// passed Check: lowering reads the checker's binder-type and finality
// annotations and assumes the linear-use discipline holds. The final
// result node is marked observable.
func Lower(t *effect.Term, reg *effect.Registry) (*Graph, error) {
	l := &lowerer{
		g:      NewGraph(),
		reg:    reg,
		env:    make(map[string]*binding),
		domain: DefaultDomain,
		edges:  make(map[Edge]bool),
	}

	s, err := l.lower(t)
	if err != nil {
		return nil, err
	}

	for key, p := range l.pending {
		if p.claimed[0] != p.claimed[1] {
			return nil, diag.Newf(diag.CategoryGraph, "UNPAIRED_SESSION",
				"session %s is opened by only one endpoint", key.Short())
		}
	}

	l.g.Nodes[s.out.node].Observable = true

	if err := Validate(l.g); err != nil {
		return nil, err
	}

	return l.g, nil
}

// port is where a bound value comes from: the effect node computing it
// and, when the value is linear, the resource node that owns it.
type port struct {
	node value.ID
	res  value.ID
}

type binding struct {
	port     port
	consumed bool
}

// sub describes a lowered subgraph: its entry and exit effect nodes, every
// node it added, its result port, and the race-rank identity of the first
// effect it would perform.
type sub struct {
	sources  []value.ID
	sinks    []value.ID
	nodes    []value.ID
	out      port
	first    value.ID
	hasFirst bool
}

type pendingSession struct {
	claimed [2]bool
}

type lowerer struct {
	g       *Graph
	reg     *effect.Registry
	env     map[string]*binding
	frames  []map[value.ID]*effect.Handler
	pending map[value.ID]*pendingSession
	edges   map[Edge]bool
	domain  value.ID
}

// edge appends an edge unless an identical one exists. Lowering the same
// bound variable into several argument positions must not duplicate the
// control dependency.
func (l *lowerer) edge(e Edge) {
	if l.edges[e] {
		return
	}

	l.edges[e] = true
	l.g.AddEdge(e)
}

func (l *lowerer) lower(t *effect.Term) (sub, error) {
	switch t.Kind {
	case effect.KindPure:
		return l.lowerPure(t)
	case effect.KindBind:
		return l.lowerBind(t)
	case effect.KindPerform:
		return l.lowerPerform(t)
	case effect.KindHandle:
		return l.lowerHandle(t)
	case effect.KindParallel:
		return l.lowerParallel(t)
	case effect.KindRace:
		return l.lowerRace(t)
	case effect.KindWithSession:
		return l.lowerWithSession(t)
	default:
		return sub{}, diag.Newf(diag.CategoryGraph, "BAD_EFFECT_TERM",
			"cannot lower %s term", t.Kind)
	}
}

// lowerPure emits one effect node whose parameter is the content ID of the
// payload term, plus environment parameters for every bound variable the
// term mentions.
func (l *lowerer) lowerPure(t *effect.Term) (sub, error) {
	n := &Node{Kind: NodeEffect, Tag: TagPure, Domain: l.domain}
	n.SetParam("term", l.payload(t.Body))

	deps := l.captureEnv(n, "env.", t.Body)
	id := l.g.AddNode(n)
	l.connect(id, deps)

	return singleton(id), nil
}

// lowerBind lowers the bound computation, maps the binder to its output
// port, lowers the body, and sequences the two with control edges. A
// linear binder gets a fresh resource node produced by the bound
// computation's result; the body's single use of the binder consumes it.
func (l *lowerer) lowerBind(t *effect.Term) (sub, error) {
	se, err := l.lower(t.Left)
	if err != nil {
		return sub{}, err
	}

	p := se.out

	if t.Binder != "_" {
		if t.BinderType != nil && t.BinderType.IsLinear() && p.res.IsZero() {
			r := &Node{
				Kind:    NodeResource,
				TypeID:  types.ContentID(t.BinderType),
				Initial: p.node,
				Linear:  true,
			}

			p.res = l.g.AddNode(r)
			l.edge(Edge{Src: p.node, Dst: p.res, Kind: EdgeData, Mode: ModeProduce})
			se.nodes = append(se.nodes, p.res)
		}

		defer l.bind(t.Binder, p)()
	}

	sb, err := l.lower(t.Right)
	if err != nil {
		return sub{}, err
	}

	for _, snk := range se.sinks {
		for _, src := range sb.sources {
			l.edge(Edge{Src: snk, Dst: src, Kind: EdgeControl})
		}
	}

	out := sub{
		sources: se.sources,
		sinks:   sb.sinks,
		nodes:   append(se.nodes, sb.nodes...),
		out:     sb.out,
	}
	out.first, out.hasFirst = se.first, se.hasFirst

	if !out.hasFirst {
		out.first, out.hasFirst = sb.first, sb.hasFirst
	}

	return out, nil
}

// lowerPerform emits one effect node carrying the tag, the argument-term
// content IDs, the capability set declared by the resolved handler, and
// the enclosing domain.
func (l *lowerer) lowerPerform(t *effect.Term) (sub, error) {
	n := &Node{Kind: NodeEffect, Tag: t.Tag, Domain: l.domain, HandlerIndex: -1}

	var deps []dep

	for i, a := range t.Args {
		prefix := argKey(i)
		n.SetParam(prefix+".term", l.payload(a))
		deps = append(deps, l.captureEnv(n, prefix+".env.", a)...)
	}

	switch {
	case effect.IsIntrinsic(t.Tag):
		// Channel traffic is irreversible. A send that ends the protocol
		// consumes its endpoint here; otherwise the enclosing bind owns
		// the continuation endpoint.
		n.SideEffect = true

		if t.Final {
			n.SetParam("final", FinalMark)
		}
	default:
		h, ok := l.resolve(t.Tag)
		if !ok {
			return sub{}, diag.Newf(diag.CategoryGraph, "UNHANDLED_EFFECT",
				"no handler bound for %s at lowering", t.Tag)
		}

		n.Capabilities = append([]value.Symbol(nil), h.Capabilities...)
		n.HandlerID = h.ContentID()
		n.HandlerIndex = l.reg.Index(t.Tag)
		n.SideEffect = !h.Pure
		l.g.Handlers[n.HandlerID] = h
	}

	id := l.g.AddNode(n)
	l.connect(id, deps)

	for _, c := range n.Capabilities {
		l.edge(Edge{Src: id, Dst: id, Kind: EdgeCapability, Cap: c})
	}

	s := singleton(id)
	s.first, s.hasFirst = effect.RaceRankID(t.Tag, t.Args), true

	return s, nil
}

// lowerHandle pushes a static handler frame for the extent of the handled
// computation. Perform nodes inside resolve against it innermost-first, so
// the produced graph carries fully resolved dispatch.
func (l *lowerer) lowerHandle(t *effect.Term) (sub, error) {
	frame := make(map[value.ID]*effect.Handler, len(t.Handlers))
	for _, h := range t.Handlers {
		frame[h.Tag.Hash] = h
	}

	l.frames = append(l.frames, frame)
	s, err := l.lower(t.Left)
	l.frames = l.frames[:len(l.frames)-1]

	return s, err
}

// lowerParallel lowers both arms with no control edges between them and
// joins their result ports in a synthetic pair node.
func (l *lowerer) lowerParallel(t *effect.Term) (sub, error) {
	sa, err := l.lower(t.Left)
	if err != nil {
		return sub{}, err
	}

	sb, err := l.lower(t.Right)
	if err != nil {
		return sub{}, err
	}

	join := &Node{Kind: NodeEffect, Tag: TagJoin, Domain: l.domain}
	join.SetParam("left", sa.out.node)
	join.SetParam("right", sb.out.node)

	id := l.g.AddNode(join)
	l.edge(Edge{Src: sa.out.node, Dst: id, Kind: EdgeControl})
	l.edge(Edge{Src: sb.out.node, Dst: id, Kind: EdgeControl})

	out := sub{
		sources: append(append([]value.ID(nil), sa.sources...), sb.sources...),
		sinks:   []value.ID{id},
		nodes:   append(append(sa.nodes, sb.nodes...), id),
		out:     port{node: id},
	}
	out.first, out.hasFirst = sa.first, sa.hasFirst

	if !out.hasFirst {
		out.first, out.hasFirst = sb.first, sb.hasFirst
	}

	return out, nil
}

// lowerRace builds the control-flow diamond. The winner is decided here:
// an effect-free arm wins outright (left preferred), otherwise the arm
// whose first effect has the smaller rank identity, the same ordering the
// direct evaluator uses. Only the winner feeds the
// merge node; the loser's nodes lose their side-effect marks so nothing
// downstream observes them.
func (l *lowerer) lowerRace(t *effect.Term) (sub, error) {
	split := &Node{Kind: NodeEffect, Tag: TagRaceSplit, Domain: l.domain}
	splitID := l.g.AddNode(split)

	sa, err := l.lower(t.Left)
	if err != nil {
		return sub{}, err
	}

	sb, err := l.lower(t.Right)
	if err != nil {
		return sub{}, err
	}

	for _, src := range sa.sources {
		l.edge(Edge{Src: splitID, Dst: src, Kind: EdgeControl})
	}

	for _, src := range sb.sources {
		l.edge(Edge{Src: splitID, Dst: src, Kind: EdgeControl})
	}

	winner, loser := sa, sb
	if sa.hasFirst && (!sb.hasFirst || sb.first.Less(sa.first)) {
		winner, loser = sb, sa
	}

	for _, id := range loser.nodes {
		l.g.Nodes[id].SideEffect = false
		l.g.Nodes[id].Observable = false
	}

	merge := &Node{Kind: NodeEffect, Tag: TagRaceMerge, Domain: l.domain}
	merge.SetParam("race-merge", winner.out.node)
	merge.SetParam("left", sa.out.node)
	merge.SetParam("right", sb.out.node)

	mergeID := l.g.AddNode(merge)
	l.edge(Edge{Src: winner.out.node, Dst: mergeID, Kind: EdgeControl})

	out := sub{
		sources: []value.ID{splitID},
		sinks:   []value.ID{mergeID},
		nodes:   append(append(append(sa.nodes, sb.nodes...), splitID), mergeID),
		out:     port{node: mergeID},
	}
	out.first, out.hasFirst = winner.first, winner.hasFirst

	return out, nil
}

// lowerWithSession emits a session-open node producing the endpoint's
// channel resource and lowers the body inside the session's domain. Every
// declaration must be opened by both roles somewhere in the program.
func (l *lowerer) lowerWithSession(t *effect.Term) (sub, error) {
	view := t.Session
	if t.Role == effect.RoleResponder {
		view = types.Dual(t.Session)
	}

	declID := types.ContentID(types.NewSession(t.Session))

	if l.pending == nil {
		l.pending = make(map[value.ID]*pendingSession)
	}

	p := l.pending[declID]
	if p == nil {
		p = &pendingSession{}
		l.pending[declID] = p
	}

	if p.claimed[t.Role] {
		return sub{}, types.ErrNotDual(t.Session, view)
	}

	p.claimed[t.Role] = true

	open := &Node{Kind: NodeEffect, Tag: TagSessionOpen, Domain: declID, SideEffect: true}
	open.SetParam("decl", declID)
	open.SetParam("role", RoleMark(byte(t.Role)))

	openID := l.g.AddNode(open)

	r := &Node{
		Kind:    NodeResource,
		TypeID:  types.ContentID(types.NewSession(view)),
		Initial: value.Digest("causality/teg-endpoint", declID[:], []byte{byte(t.Role)}),
		Linear:  true,
	}

	resID := l.g.AddNode(r)
	l.edge(Edge{Src: openID, Dst: resID, Kind: EdgeData, Mode: ModeProduce})

	savedDomain := l.domain
	l.domain = declID

	defer l.bind(t.Binder, port{node: openID, res: resID})()

	body, err := l.lower(t.Right)

	l.domain = savedDomain

	if err != nil {
		return sub{}, err
	}

	for _, src := range body.sources {
		l.edge(Edge{Src: openID, Dst: src, Kind: EdgeControl})
	}

	out := sub{
		sources: []value.ID{openID},
		sinks:   body.sinks,
		nodes:   append(append(body.nodes, openID), resID),
		out:     body.out,
	}
	out.first, out.hasFirst = body.first, body.hasFirst

	return out, nil
}

// payload registers a term in the side table. A bare literal is keyed by
// its value's content ID, so the identity of a constant node matches the
// identity of the constant itself; anything else is keyed by the term.
func (l *lowerer) payload(t *lambda.Term) value.ID {
	if t.Kind == lambda.KindLit {
		id := value.ContentID(t.Lit)
		l.g.Payloads[id] = t

		return id
	}

	return l.g.AddPayload(t)
}

// ====== Environment plumbing ======

func (l *lowerer) bind(name string, p port) func() {
	shadowed := l.env[name]
	l.env[name] = &binding{port: p}

	return func() {
		if shadowed == nil {
			delete(l.env, name)
		} else {
			l.env[name] = shadowed
		}
	}
}

// dep is a deferred edge from a referenced binding to the node under
// construction, recorded before the node's ID is known.
type dep struct {
	port    port
	consume bool
}

// captureEnv adds an environment parameter per free variable of term that
// is bound in the lowering environment, keyed prefix+name and valued with
// the producing node's ID. Linear bindings are consumed by the reference.
func (l *lowerer) captureEnv(n *Node, prefix string, term *lambda.Term) []dep {
	names := make([]string, 0, 4)

	for name := range lambda.FreeVars(term) {
		if l.env[name] != nil {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	deps := make([]dep, 0, len(names))

	for _, name := range names {
		b := l.env[name]
		n.SetParam(prefix+name, b.port.node)

		d := dep{port: b.port}

		if !b.port.res.IsZero() && !b.consumed {
			b.consumed = true
			d.consume = true
		}

		deps = append(deps, d)
	}

	return deps
}

func (l *lowerer) connect(id value.ID, deps []dep) {
	for _, d := range deps {
		l.edge(Edge{Src: d.port.node, Dst: id, Kind: EdgeControl})

		if d.consume {
			l.edge(Edge{Src: d.port.res, Dst: id, Kind: EdgeData, Mode: ModeConsume})
		}
	}
}

func (l *lowerer) resolve(tag value.Symbol) (*effect.Handler, bool) {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if h, ok := l.frames[i][tag.Hash]; ok {
			return h, true
		}
	}

	if l.reg != nil {
		return l.reg.Lookup(tag)
	}

	return nil, false
}

func singleton(id value.ID) sub {
	return sub{
		sources: []value.ID{id},
		sinks:   []value.ID{id},
		nodes:   []value.ID{id},
		out:     port{node: id},
	}
}

func argKey(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "arg" + digits[i:i+1]
	}

	return "arg" + digits[i/10:i/10+1] + digits[i%10:i%10+1]
}
