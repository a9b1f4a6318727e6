// Package causality is the embedding surface of the Causality core:
// effect terms are type- and linearity-checked, lowered to a
// content-addressed temporal effect graph, optimized under
// observable-equivalence, and executed to a value and a trace.
//
// The package re-exports the data types an embedder needs and wraps
// the pipeline stages; the implementations live under internal/.
package causality

import (
	"context"
	"log"

	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/exec"
	"github.com/causality-lang/causality/internal/store"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/teg/optimize"
	"github.com/causality-lang/causality/internal/types"
	"github.com/causality-lang/causality/internal/value"
)

// Core data types, aliased so embedders never import internal paths.
type (
	// Value is an evaluated result; ID is a content identifier.
	Value  = value.Value
	ID     = value.ID
	Symbol = value.Symbol

	// Type is a checked component type; Session is a session protocol.
	Type    = types.Type
	Session = types.Session

	// Term is an effect computation; Handler interprets one effect tag.
	Term     = effect.Term
	Handler  = effect.Handler
	Registry = effect.Registry
	Trace    = effect.Trace

	// Graph is the lowered temporal effect graph.
	Graph = teg.Graph

	// Config drives the optimizer; Blocked records a rolled-back pass.
	Config  = optimize.Config
	Blocked = optimize.OptimizationBlocked

	// Options configures graph execution.
	Options = exec.Options

	// Store persists artifacts; Watcher indexes graph files on disk.
	Store   = store.Store
	Watcher = store.Watcher
)

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return effect.NewRegistry()
}

// Check verifies typing and linear resource use of a term against a
// registry. Terms that fail Check must not be lowered or evaluated.
func Check(reg *Registry, t *Term) (*Type, error) {
	return effect.Check(reg, t)
}

// Lower translates a checked term to its temporal effect graph.
func Lower(t *Term, reg *Registry) (*Graph, error) {
	return teg.Lower(t, reg)
}

// Validate checks the structural invariants of a graph.
func Validate(g *Graph) error {
	return teg.Validate(g)
}

// Optimize rewrites a graph under the given configuration. The input
// graph is never mutated; passes that would violate a graph invariant
// are rolled back and reported.
func Optimize(g *Graph, cfg Config) (*Graph, []Blocked, error) {
	return optimize.Optimize(g, cfg)
}

// DefaultConfig returns the standard optimization configuration.
func DefaultConfig() Config {
	return optimize.DefaultConfig()
}

// LoadConfig reads an optimizer configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	return optimize.LoadConfig(path)
}

// Evaluate reduces a checked term directly, without lowering, using
// the single-threaded reference evaluator.
func Evaluate(reg *Registry, t *Term, inputs map[string]*Value) (*Value, Trace, error) {
	return effect.NewEvaluator(reg).EvalWith(t, inputs)
}

// Run executes a graph to a value and a trace. Execution is
// deterministic regardless of the worker count in opts.
func Run(ctx context.Context, g *Graph, reg *Registry, opts Options) (*Value, Trace, error) {
	return exec.Run(ctx, g, reg, opts)
}

// ContentID returns the canonical identifier of a graph.
func ContentID(g *Graph) ID {
	return g.ContentID()
}

// EncodeGraph serializes a graph in the versioned wire format.
func EncodeGraph(g *Graph) []byte {
	return teg.Encode(g)
}

// DecodeGraph parses a serialized graph and validates its invariants.
func DecodeGraph(data []byte) (*Graph, error) {
	return teg.Decode(data)
}

// EncodeTrace serializes an execution trace.
func EncodeTrace(t Trace) []byte {
	return effect.EncodeTrace(t)
}

// DecodeTrace parses a serialized execution trace.
func DecodeTrace(data []byte) (Trace, error) {
	return effect.DecodeTrace(data)
}

// OpenStore opens the content-addressed artifact store at path.
func OpenStore(path string, logger *log.Logger) (*Store, error) {
	return store.Open(path, logger)
}

// WatchGraphs indexes the graph files in a directory and follows
// filesystem events to keep the index current.
func WatchGraphs(dir string, logger *log.Logger) (*Watcher, error) {
	return store.NewWatcher(dir, logger)
}
