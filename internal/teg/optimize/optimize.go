// Package optimize applies semantics-preserving passes to effect graphs:
// common-subexpression elimination, dead-code elimination, pure-handler
// inlining, independent-effect reordering, and parallel fusion. Every pass
// must preserve the observable outputs, the side-effect sequence under a
// topological order, and the linear-resource invariants; the driver
// validates after each pass and rolls back a pass that breaks the graph.
package optimize

import (
	"errors"
	"fmt"

	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// Pass is one rewrite over a graph. Apply mutates g in place and reports
// whether anything changed; the driver owns cloning and rollback.
type Pass interface {
	Name() string
	Apply(g *teg.Graph, cfg Config) (bool, error)
	PreservesLinearity() bool
	PreservesObservability() bool
}

// OptimizationBlocked records a pass that was rolled back because its
// result violated a structural invariant. The pipeline continues without
// the pass's changes.
type OptimizationBlocked struct {
	Pass      string
	Invariant int
}

// Error implements the error interface.
func (b OptimizationBlocked) Error() string {
	return fmt.Sprintf("pass %s rolled back: would violate invariant %d", b.Pass, b.Invariant)
}

// canonical pass order within one iteration: reorder first to expose
// merge opportunities, cleanup passes last.
var passOrder = []Pass{
	reorderPass{},
	csePass{},
	inlinePass{},
	fusePass{},
	dcePass{},
}

func passPlan(cfg Config) []Pass {
	enabled := cfg.enabledSet()
	plan := make([]Pass, 0, len(passOrder))

	for _, p := range passOrder {
		if enabled[p.Name()] {
			plan = append(plan, p)
		}
	}

	return plan
}

// Optimize runs the configured passes to fixpoint or the iteration bound.
// The input graph is never mutated. Rolled-back passes are reported
// alongside the result; only a malformed input or a pass failure is an
// error.
func Optimize(g *teg.Graph, cfg Config) (*teg.Graph, []OptimizationBlocked, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	if err := teg.Validate(g); err != nil {
		return nil, nil, err
	}

	out := g.Clone()
	plan := passPlan(cfg)

	var blocked []OptimizationBlocked

	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}

	for iter := 0; iter < maxIter; iter++ {
		progressed := false

		for _, p := range plan {
			snapshot := out.Clone()

			changed, err := p.Apply(out, cfg)
			if err != nil {
				return nil, blocked, err
			}

			if !changed {
				continue
			}

			if verr := teg.Validate(out); verr != nil {
				inv := 0

				var iv *teg.InvariantViolation
				if errors.As(verr, &iv) {
					inv = iv.Invariant
				}

				blocked = append(blocked, OptimizationBlocked{Pass: p.Name(), Invariant: inv})
				out = snapshot

				continue
			}

			progressed = true
		}

		if !progressed {
			break
		}
	}

	return out, blocked, nil
}

// ====== Shared pass helpers ======

// controlPredSet returns the set of control-edge predecessors of id.
func controlPredSet(g *teg.Graph, id value.ID) map[value.ID]bool {
	out := make(map[value.ID]bool)

	for _, e := range g.Edges {
		if e.Kind == teg.EdgeControl && e.Dst == id {
			out[e.Src] = true
		}
	}

	return out
}

func sameIDSet(a, b map[value.ID]bool) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if !b[k] {
			return false
		}
	}

	return true
}
