// Package linearity verifies, separately from type inference, that every
// linearly typed binding is consumed exactly once on every completed control
// path, and that branch contexts are consistent.
package linearity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/causality-lang/causality/internal/types"
)

// ErrorCode is the machine-readable tag carried by every linearity error.
type ErrorCode string

const (
	CodeUsedTwice             ErrorCode = "USED_TWICE"
	CodeNotUsed               ErrorCode = "NOT_USED"
	CodeBranchContextMismatch ErrorCode = "BRANCH_CONTEXT_MISMATCH"
	CodeSplitConflict         ErrorCode = "SPLIT_CONFLICT"
	CodeRebound               ErrorCode = "REBOUND"
)

// Error is a linearity violation. Linearity errors are always compile-time
// errors; evaluation never raises one.
type Error struct {
	Var         string
	PathAUnused []string
	PathBUnused []string
	Code        ErrorCode
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeUsedTwice:
		return fmt.Sprintf("linear variable %q used more than once", e.Var)
	case CodeNotUsed:
		return fmt.Sprintf("linear variable %q is never consumed", e.Var)
	case CodeBranchContextMismatch:
		return fmt.Sprintf("branches consume different linear variables: left leaves [%s], right leaves [%s]",
			strings.Join(e.PathAUnused, ", "), strings.Join(e.PathBUnused, ", "))
	case CodeSplitConflict:
		return fmt.Sprintf("linear variable %q claimed by both sides of a split", e.Var)
	case CodeRebound:
		return fmt.Sprintf("linear variable %q is already bound", e.Var)
	default:
		return fmt.Sprintf("linearity error (%s)", e.Code)
	}
}

type entry struct {
	typ      *types.Type
	consumed bool
}

// Context is the linear typing context: the linear bindings in scope and
// which of them have been consumed. Unrestricted bindings never enter it.
type Context struct {
	vars map[string]*entry
}

// NewContext returns an empty linear context.
func NewContext() *Context {
	return &Context{vars: make(map[string]*entry)}
}

// Bind adds a linear binding. Rebinding a live name is rejected: linear
// variables may not shadow each other.
func (c *Context) Bind(name string, typ *types.Type) error {
	if _, ok := c.vars[name]; ok {
		return &Error{Code: CodeRebound, Var: name}
	}

	c.vars[name] = &entry{typ: typ}

	return nil
}

// Use consumes a linear binding and returns its type. Consuming twice is an
// error; names never bound here are not linear and not this context's
// concern.
func (c *Context) Use(name string) (*types.Type, error) {
	e, ok := c.vars[name]
	if !ok {
		return nil, nil
	}

	if e.consumed {
		return nil, &Error{Code: CodeUsedTwice, Var: name}
	}

	e.consumed = true

	return e.typ, nil
}

// IsLinear reports whether a name is a live linear binding in this context.
func (c *Context) IsLinear(name string) bool {
	_, ok := c.vars[name]

	return ok
}

// Drop removes a binding from the context without consuming it. Used when a
// binder's scope ends after its consumption has been verified.
func (c *Context) Drop(name string) {
	delete(c.vars, name)
}

// CheckUsed verifies a single binding was consumed, then drops it.
func (c *Context) CheckUsed(name string) error {
	e, ok := c.vars[name]
	if !ok {
		return nil
	}

	if !e.consumed {
		return &Error{Code: CodeNotUsed, Var: name}
	}

	delete(c.vars, name)

	return nil
}

// CheckAllUsed verifies every linear binding in the context was consumed.
func (c *Context) CheckAllUsed() error {
	for _, name := range c.Residual() {
		return &Error{Code: CodeNotUsed, Var: name}
	}

	return nil
}

// Residual returns the sorted names of bindings not yet consumed.
func (c *Context) Residual() []string {
	var names []string

	for name, e := range c.vars {
		if !e.consumed {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

// Consumed returns a snapshot of the consumption state.
func (c *Context) Consumed() map[string]bool {
	snap := make(map[string]bool, len(c.vars))
	for name, e := range c.vars {
		snap[name] = e.consumed
	}

	return snap
}

// Restore rewinds the consumption state to a snapshot. Bindings added since
// the snapshot are removed.
func (c *Context) Restore(snap map[string]bool) {
	for name := range c.vars {
		if _, ok := snap[name]; !ok {
			delete(c.vars, name)
		}
	}

	for name, consumed := range snap {
		if e, ok := c.vars[name]; ok {
			e.consumed = consumed
		}
	}
}

// Split partitions the live bindings between two sides of a parallel
// composition. The claim sets must be disjoint and together cover every
// unconsumed binding.
func (c *Context) Split(used1, used2 map[string]bool) (*Context, *Context, error) {
	for name := range used1 {
		if used2[name] {
			return nil, nil, &Error{Code: CodeSplitConflict, Var: name}
		}
	}

	left, right := NewContext(), NewContext()

	for name, e := range c.vars {
		if e.consumed {
			continue
		}

		switch {
		case used1[name]:
			left.vars[name] = &entry{typ: e.typ}
		case used2[name]:
			right.vars[name] = &entry{typ: e.typ}
		default:
			return nil, nil, &Error{Code: CodeNotUsed, Var: name}
		}
	}

	return left, right, nil
}

// Merge folds two split contexts back. Each side must have consumed its
// entire partition.
func (c *Context) Merge(left, right *Context) error {
	if err := left.CheckAllUsed(); err != nil {
		return err
	}

	if err := right.CheckAllUsed(); err != nil {
		return err
	}

	for name := range left.vars {
		if e, ok := c.vars[name]; ok {
			e.consumed = true
		}
	}

	for name := range right.vars {
		if e, ok := c.vars[name]; ok {
			e.consumed = true
		}
	}

	return nil
}
