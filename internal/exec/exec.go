// Package exec runs Temporal Effect Graphs. Execution is deterministic:
// nodes fire in waves of the control order, ties broken by node ID, so a
// fixed graph, registry and input set always produce the same value and
// the same trace. Within a wave, effect-free nodes may evaluate on several
// goroutines; their results are committed in ID order, so concurrency
// never shows in the output.
package exec

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/lambda"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// NodeState tracks a node through the scheduler.
type NodeState uint8

const (
	StateUnscheduled NodeState = iota
	StateReady
	StateFiring
	StateCompleted
	StateFailed
)

// String names the state.
func (s NodeState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFiring:
		return "firing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unscheduled"
	}
}

// Options tunes a run.
type Options struct {
	// Inputs binds free variables of payload terms.
	Inputs map[string]*value.Value

	// Workers bounds concurrent evaluation of effect-free nodes within a
	// wave. Zero or one keeps evaluation on the calling goroutine.
	Workers int
}

// Run executes a validated graph against a registry and returns the value
// of the observable node plus the witness trace. Side-effecting nodes and
// constant nodes each contribute one trace entry; the synthetic join, race
// and session-open nodes contribute none.
func Run(ctx context.Context, g *teg.Graph, reg *effect.Registry, opts Options) (*value.Value, effect.Trace, error) {
	if err := teg.Validate(g); err != nil {
		return nil, nil, err
	}

	r := &runner{
		g:       g,
		reg:     reg,
		outputs: make(map[value.ID]*value.Value),
		states:  make(map[value.ID]NodeState),
		sess:    newSessionTable(),
		workers: opts.Workers,
	}

	names := make([]string, 0, len(opts.Inputs))
	for name := range opts.Inputs {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		r.base = r.base.Bind(name, opts.Inputs[name])
	}

	if err := r.run(ctx); err != nil {
		return nil, nil, err
	}

	return r.result(), r.trace, nil
}

type runner struct {
	g       *teg.Graph
	reg     *effect.Registry
	base    *lambda.Scope
	outputs map[value.ID]*value.Value
	states  map[value.ID]NodeState
	sess    *sessionTable
	trace   effect.Trace
	workers int
}

// firing is one node's pending result, computed but not yet committed.
type firing struct {
	out    *value.Value
	inputs []value.ID
	id     value.ID
	emit   bool
}

func (r *runner) run(ctx context.Context) error {
	live := r.liveEffects()

	indeg := make(map[value.ID]int, len(live))
	succs := make(map[value.ID][]value.ID, len(live))

	for _, e := range r.g.Edges {
		if e.Kind != teg.EdgeControl || !live[e.Src] || !live[e.Dst] {
			continue
		}

		indeg[e.Dst]++
		succs[e.Src] = append(succs[e.Src], e.Dst)
	}

	var ready []value.ID

	for id := range live {
		if indeg[id] == 0 {
			ready = append(ready, id)
			r.states[id] = StateReady
		}
	}

	var parked []value.ID

	remaining := len(live)

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return diag.Wrap(diag.CategoryEval, "CANCELLED", "execution cancelled", err)
		}

		wave := append(ready, parked...)
		ready, parked = nil, nil

		sort.Slice(wave, func(i, j int) bool { return wave[i].Less(wave[j]) })

		if len(wave) == 0 {
			return diag.Newf(diag.CategoryEval, "DEADLOCK",
				"%d nodes can never become ready", remaining)
		}

		fired, stillParked, err := r.fireWave(ctx, wave)
		if err != nil {
			return err
		}

		if len(fired) == 0 {
			return diag.Newf(diag.CategoryEval, "DEADLOCK",
				"%d receives are waiting on sends that cannot fire", len(stillParked))
		}

		parked = stillParked

		for _, f := range fired {
			r.commit(f)

			remaining--

			for _, s := range succs[f.id] {
				indeg[s]--
				if indeg[s] == 0 {
					ready = append(ready, s)
					r.states[s] = StateReady
				}
			}
		}
	}

	return nil
}

// fireWave evaluates one wave: effect-free nodes concurrently under the
// worker limit, side-effecting nodes sequentially in ID order afterwards.
// A receive whose payload has not been sent yet is parked, not failed.
func (r *runner) fireWave(ctx context.Context, wave []value.ID) ([]firing, []value.ID, error) {
	var pure, serial []value.ID

	for _, id := range wave {
		if r.g.Nodes[id].SideEffect {
			serial = append(serial, id)
		} else {
			pure = append(pure, id)
		}
	}

	fired := make([]firing, len(pure))

	eg, ectx := errgroup.WithContext(ctx)
	if r.workers > 1 {
		eg.SetLimit(r.workers)
	} else {
		eg.SetLimit(1)
	}

	for i, id := range pure {
		r.states[id] = StateFiring

		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}

			f, err := r.fire(id)
			if err != nil {
				return err
			}

			fired[i] = f

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		for _, id := range pure {
			r.states[id] = StateFailed
		}

		return nil, nil, err
	}

	var parked []value.ID

	for _, id := range serial {
		r.states[id] = StateFiring

		f, err := r.fire(id)
		if err == errAwaitPeer {
			r.states[id] = StateReady
			parked = append(parked, id)

			continue
		}

		if err != nil {
			r.states[id] = StateFailed

			return nil, nil, err
		}

		fired = append(fired, f)
	}

	return fired, parked, nil
}

func (r *runner) commit(f firing) {
	r.outputs[f.id] = f.out
	r.states[f.id] = StateCompleted

	if f.emit {
		r.trace = append(r.trace, effect.TraceEntry{
			Node:   f.id,
			Inputs: f.inputs,
			Output: value.ContentID(f.out),
		})
	}
}

// result is the output of the observable node. A graph whose observable
// output was optimized into another node keeps the mark on the survivor,
// so there is always at most one.
func (r *runner) result() *value.Value {
	for _, id := range r.g.NodeIDs() {
		n := r.g.Nodes[id]
		if n.Kind == teg.NodeEffect && n.Observable {
			return r.outputs[id]
		}
	}

	return value.Unit()
}

// liveEffects is the set of effect nodes that reach the observable or
// side-effect sets over control and data edges. Race-loser arms dangle
// outside it and never fire.
func (r *runner) liveEffects() map[value.ID]bool {
	live := make(map[value.ID]bool)

	var frontier []value.ID

	for id, n := range r.g.Nodes {
		if n.Observable || n.SideEffect {
			live[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for _, e := range r.g.Edges {
			if e.Kind == teg.EdgeCapability || e.Dst != id || live[e.Src] {
				continue
			}

			live[e.Src] = true
			frontier = append(frontier, e.Src)
		}
	}

	for id := range live {
		if r.g.Nodes[id].Kind != teg.NodeEffect {
			delete(live, id)
		}
	}

	return live
}
