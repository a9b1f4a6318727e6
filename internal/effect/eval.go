package effect

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Evaluator reduces effect terms deterministically. For a fixed registry
// and input bindings, evaluation of a checked term is a total function to
// a value and a trace. The machine is a loop over an explicit continuation
// stack; long monadic chains never grow the Go call stack.
type Evaluator struct {
	reg *Registry
}

// NewEvaluator wraps a registry.
func NewEvaluator(reg *Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// runState is per-evaluation mutable state. Race probes run against a
// cloned state so speculation never leaks into the committed run.
type runState struct {
	sess  *sessions
	trace Trace
}

// Eval reduces a closed term.
func (ev *Evaluator) Eval(t *Term) (*value.Value, Trace, error) {
	return ev.EvalWith(t, nil)
}

// EvalWith reduces a term under the given input bindings.
func (ev *Evaluator) EvalWith(t *Term, inputs map[string]*value.Value) (*value.Value, Trace, error) {
	var env *lambda.Scope

	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		env = env.Bind(name, inputs[name])
	}

	rs := &runState{sess: newSessions()}

	out, err := ev.run(rs, env, t)
	if err != nil {
		return nil, nil, err
	}

	return out, rs.trace, nil
}

// kontKind discriminates continuation frames.
type kontKind int

const (
	kSeq      kontKind = iota // resume a Bind body
	kPopFrame                 // uninstall a Handle frame
	kParRight                 // left arm done, start the right
	kParJoin                  // both arms done, pair the results
)

type kont struct {
	env    *lambda.Scope
	body   *Term
	left   *value.Value
	binder string
	kind   kontKind
}

func (ev *Evaluator) run(rs *runState, env *lambda.Scope, t *Term) (*value.Value, error) {
	var (
		stack  []kont
		ret    *value.Value
		pushed int
	)

	fail := func(err error) (*value.Value, error) {
		for ; pushed > 0; pushed-- {
			ev.reg.Pop()
		}

		return nil, err
	}

	for {
		for t != nil {
			switch t.Kind {
			case KindPure:
				v, err := lambda.Eval(env, t.Body)
				if err != nil {
					return fail(err)
				}

				ret, t = v, nil

			case KindBind:
				stack = append(stack, kont{kind: kSeq, body: t.Right, env: env, binder: t.Binder})
				t = t.Left

			case KindPerform:
				v, err := ev.perform(rs, env, t)
				if err != nil {
					return fail(err)
				}

				ret, t = v, nil

			case KindHandle:
				if err := ev.reg.Push(t.Handlers); err != nil {
					return fail(err)
				}

				pushed++
				stack = append(stack, kont{kind: kPopFrame})
				t = t.Left

			case KindParallel:
				// Reference semantics: left arm runs to completion, then
				// the right. The arms own disjoint linear contexts, so a
				// lowered graph is free to schedule them concurrently.
				stack = append(stack, kont{kind: kParRight, body: t.Right, env: env})
				t = t.Left

			case KindRace:
				winner, err := ev.pickWinner(rs, env, t)
				if err != nil {
					return fail(err)
				}

				t = winner

			case KindWithSession:
				ep, err := rs.sess.open(t.Session, t.Role)
				if err != nil {
					return fail(err)
				}

				env = env.Bind(t.Binder, ep)
				t = t.Right

			default:
				return fail(&Error{Code: CodeHandlerPanic, Reason: "malformed effect term"})
			}
		}

		if len(stack) == 0 {
			return ret, nil
		}

		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch k.kind {
		case kSeq:
			env = k.env
			if k.binder != "_" && k.binder != "" {
				env = env.Bind(k.binder, ret)
			}

			t = k.body

		case kPopFrame:
			ev.reg.Pop()
			pushed--

		case kParRight:
			stack = append(stack, kont{kind: kParJoin, left: ret})
			env = k.env
			t = k.body

		case kParJoin:
			ret = value.Pair(k.left, ret)
		}
	}
}

// perform evaluates arguments, dispatches the effect, and appends the trace
// entry. The node ID pins the tag and the argument digests, so identical
// invocations hash identically regardless of where they occur.
func (ev *Evaluator) perform(rs *runState, env *lambda.Scope, t *Term) (*value.Value, error) {
	vals := make([]*value.Value, len(t.Args))
	ids := make([]value.ID, len(t.Args))

	for i, a := range t.Args {
		v, err := lambda.Eval(env, a)
		if err != nil {
			return nil, err
		}

		vals[i] = v
		ids[i] = value.ContentID(v)
	}

	var (
		out *value.Value
		err error
	)

	if IsIntrinsic(t.Tag) {
		out, err = rs.sess.intrinsic(t, vals)
	} else {
		h, ok := ev.reg.Lookup(t.Tag)
		if !ok {
			return nil, errUnhandled(t.Tag)
		}

		out, err = Invoke(h, t.Tag, vals)
	}

	if err != nil {
		return nil, err
	}

	rs.trace = append(rs.trace, TraceEntry{
		Node:   PerformNodeID(t.Tag, ids),
		Inputs: ids,
		Output: value.ContentID(out),
	})

	return out, nil
}

// PerformNodeID derives the trace node identity of an effect invocation.
func PerformNodeID(tag value.Symbol, inputs []value.ID) value.ID {
	parts := make([][]byte, 0, len(inputs)+1)
	parts = append(parts, tag.Hash[:])

	for i := range inputs {
		parts = append(parts, inputs[i][:])
	}

	return value.Digest("causality/effect-node", parts...)
}

// RaceRankID derives the race-ranking identity of an effect invocation
// from its tag and argument terms. Race winners are decided by comparing
// these digests; the direct evaluator and the graph lowering both rank
// with this function, so the two execution paths agree on the winner.
func RaceRankID(tag value.Symbol, args []*lambda.Term) value.ID {
	parts := make([][]byte, 0, len(args)+1)
	parts = append(parts, tag.Hash[:])

	for _, a := range args {
		id := lambda.ContentID(a)
		parts = append(parts, id[:])
	}

	return value.Digest("causality/race-rank", parts...)
}

// Invoke runs a handler with panic containment. A panic inside a handler
// surfaces as HANDLER_PANIC; it never unwinds through the evaluator.
func Invoke(h *Handler, tag value.Symbol, vals []*value.Value) (out *value.Value, err error) {
	if len(h.ParamTypes) != 0 && len(vals) != len(h.ParamTypes) {
		return nil, &Error{Code: CodeBadArity, Tag: tag,
			Reason: fmt.Sprintf("got %d arguments, handler declares %d", len(vals), len(h.ParamTypes))}
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, errPanic(tag, fmt.Sprint(r))
		}
	}()

	switch {
	case h.Fn != nil:
		out, err = h.Fn(vals)

		if err != nil {
			if _, isEffect := err.(*Error); !isEffect {
				err = errPanic(tag, err.Error())
			}

			out = nil
		}

		return out, err

	case h.Body != nil:
		var scope *lambda.Scope
		for i, p := range h.Params {
			scope = scope.Bind(p, vals[i])
		}

		return lambda.Eval(scope, h.Body)

	default:
		return nil, errPanic(tag, "handler has no implementation")
	}
}

// ====== Race resolution ======

// pickWinner decides a race. A contestant that completes without performing
// any effect wins outright (left preferred); otherwise the branch whose
// first effect has the lexicographically smaller rank identity wins.
// Probing runs against cloned session state, so the loser leaves no mark.
func (ev *Evaluator) pickWinner(rs *runState, env *lambda.Scope, t *Term) (*Term, error) {
	aID, aHas, err := ev.probe(rs.fork(), env, t.Left)
	if err != nil {
		return nil, err
	}

	if !aHas {
		return t.Left, nil
	}

	bID, bHas, err := ev.probe(rs.fork(), env, t.Right)
	if err != nil {
		return nil, err
	}

	if !bHas {
		return t.Right, nil
	}

	if bID.Less(aID) {
		return t.Right, nil
	}

	return t.Left, nil
}

// fork snapshots the session state for speculative evaluation. The trace
// starts empty; probe traces are discarded.
func (rs *runState) fork() *runState {
	return &runState{sess: rs.sess.clone()}
}

// probe executes a term forward up to its first Perform and returns that
// effect's rank identity without dispatching it. Everything before the
// first effect is pure by construction, so evaluating it on the forked
// state is safe and unobservable. Handler frames are skipped: rank
// identity is independent of which handler answers.
func (ev *Evaluator) probe(rs *runState, env *lambda.Scope, t *Term) (value.ID, bool, error) {
	var (
		stack []kont
		ret   *value.Value
	)

	for {
		for t != nil {
			switch t.Kind {
			case KindPure:
				v, err := lambda.Eval(env, t.Body)
				if err != nil {
					return value.ID{}, false, err
				}

				ret, t = v, nil

			case KindBind:
				stack = append(stack, kont{kind: kSeq, body: t.Right, env: env, binder: t.Binder})
				t = t.Left

			case KindPerform:
				return RaceRankID(t.Tag, t.Args), true, nil

			case KindHandle:
				t = t.Left

			case KindParallel:
				stack = append(stack, kont{kind: kParRight, body: t.Right, env: env})
				t = t.Left

			case KindRace:
				winner, err := ev.pickWinner(rs, env, t)
				if err != nil {
					return value.ID{}, false, err
				}

				t = winner

			case KindWithSession:
				ep, err := rs.sess.open(t.Session, t.Role)
				if err != nil {
					return value.ID{}, false, err
				}

				env = env.Bind(t.Binder, ep)
				t = t.Right

			default:
				return value.ID{}, false, &Error{Code: CodeHandlerPanic, Reason: "malformed effect term"}
			}
		}

		if len(stack) == 0 {
			return value.ID{}, false, nil
		}

		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch k.kind {
		case kSeq:
			env = k.env
			if k.binder != "_" && k.binder != "" {
				env = env.Bind(k.binder, ret)
			}

			t = k.body

		case kParRight:
			stack = append(stack, kont{kind: kParJoin, left: ret})
			env = k.env
			t = k.body

		case kParJoin:
			ret = value.Pair(k.left, ret)
		}
	}
}

// ====== Session runtime ======

// cell is one live channel endpoint. Sends on an endpoint land in the
// peer's queue; receives drain the endpoint's own queue.
type cell struct {
	queue []*value.Value
	peer  value.ChannelID
}

// pendingSession tracks one half-claimed channel pair.
type pendingSession struct {
	initiator value.ChannelID
	responder value.ChannelID
	claimed   [2]bool
}

// sessions pairs WithSession forms at runtime. Two forms carrying the same
// declaration and opposite roles share a channel pair; the pairing key is
// the declaration's content ID from the initiator viewpoint.
type sessions struct {
	pending map[value.ID]*pendingSession
	cells   map[value.ChannelID]*cell
	seq     uint64
}

func newSessions() *sessions {
	return &sessions{
		pending: make(map[value.ID]*pendingSession),
		cells:   make(map[value.ChannelID]*cell),
	}
}

// clone copies the pairing state. Cells are shared: probes stop before the
// first Perform, so queues are never touched speculatively.
func (s *sessions) clone() *sessions {
	out := &sessions{
		pending: make(map[value.ID]*pendingSession, len(s.pending)),
		cells:   make(map[value.ChannelID]*cell, len(s.cells)),
		seq:     s.seq,
	}

	for k, p := range s.pending {
		cp := *p
		out.pending[k] = &cp
	}

	for k, c := range s.cells {
		out.cells[k] = c
	}

	return out
}

// open claims one endpoint of the session pair identified by decl. Channel
// IDs derive deterministically from the declaration and a creation counter,
// so traces that mention channels replay byte-identically.
func (s *sessions) open(decl *types.Session, role Role) (*value.Value, error) {
	key := types.ContentID(types.NewSession(decl))

	p := s.pending[key]
	if p == nil {
		seed := make([]byte, 0, len(key)+10)
		seed = append(seed, key[:]...)
		seed = binary.AppendUvarint(seed, s.seq)
		s.seq++

		initiator := value.ChannelIDFrom(append(seed, 0))
		responder := value.ChannelIDFrom(append(seed, 1))

		s.cells[initiator] = &cell{peer: responder}
		s.cells[responder] = &cell{peer: initiator}

		p = &pendingSession{initiator: initiator, responder: responder}
		s.pending[key] = p
	}

	idx := 0
	id := p.initiator

	if role == RoleResponder {
		idx = 1
		id = p.responder
	}

	if p.claimed[idx] {
		return nil, &Error{Code: CodeSessionMismatch,
			Reason: fmt.Sprintf("%s endpoint already claimed", role)}
	}

	p.claimed[idx] = true

	if p.claimed[0] && p.claimed[1] {
		delete(s.pending, key)
	}

	return value.Channel(id), nil
}

// intrinsic runs a session effect. Protocol-ending sends and receives are
// marked Final by the checker and consume the endpoint in the same step.
func (s *sessions) intrinsic(t *Term, args []*value.Value) (*value.Value, error) {
	if len(args) == 0 || args[0].Kind != value.KindChannel {
		return nil, &Error{Code: CodeBadArity, Tag: t.Tag, Reason: "first argument must be a channel endpoint"}
	}

	id := args[0].Channel

	c, live := s.cells[id]
	if !live {
		return nil, &Error{Code: CodeSessionMismatch, Tag: t.Tag,
			Reason: fmt.Sprintf("endpoint %s is closed", id)}
	}

	switch t.Tag.Hash {
	case TagSend.Hash:
		if len(args) != 2 {
			return nil, &Error{Code: CodeBadArity, Tag: t.Tag, Reason: "send takes an endpoint and a payload"}
		}

		peer, open := s.cells[c.peer]
		if !open {
			return nil, &Error{Code: CodeSessionMismatch, Tag: t.Tag,
				Reason: fmt.Sprintf("peer of %s is closed", id)}
		}

		peer.queue = append(peer.queue, args[1])

		if t.Final {
			delete(s.cells, id)

			return value.Unit(), nil
		}

		return args[0], nil

	case TagRecv.Hash:
		if len(c.queue) == 0 {
			return nil, &Error{Code: CodeEmptyChannel, Tag: t.Tag,
				Reason: id.String()}
		}

		v := c.queue[0]
		c.queue = c.queue[1:]

		if t.Final {
			delete(s.cells, id)

			return v, nil
		}

		return value.Pair(v, args[0]), nil

	default: // close
		delete(s.cells, id)

		return value.Unit(), nil
	}
}
