package effect

import (
	"github.com/causality-lang/causality/internal/value"
)

// frame is one registry layer. Handlers keep their registration order so
// index resolution at lowering time is stable.
type frame struct {
	byTag   map[value.ID]*Handler
	ordered []*Handler
}

func newFrame() *frame {
	return &frame{byTag: make(map[value.ID]*Handler)}
}

func (f *frame) add(h *Handler) error {
	if _, dup := f.byTag[h.Tag.Hash]; dup {
		return &Error{Code: CodeDuplicateHandler, Tag: h.Tag}
	}

	f.byTag[h.Tag.Hash] = h
	f.ordered = append(f.ordered, h)

	return nil
}

// Registry is a stack of handler frames. The base frame holds ambient
// handlers; Handle pushes a frame for its dynamic extent. Lookup walks
// innermost-first.
type Registry struct {
	frames []*frame
}

// NewRegistry returns a registry with an empty base frame.
func NewRegistry() *Registry {
	return &Registry{frames: []*frame{newFrame()}}
}

// Register adds a handler to the base frame.
func (r *Registry) Register(h *Handler) error {
	return r.frames[0].add(h)
}

// Push installs a fresh frame holding the given handlers.
func (r *Registry) Push(handlers []*Handler) error {
	f := newFrame()

	for _, h := range handlers {
		if err := f.add(h); err != nil {
			return err
		}
	}

	r.frames = append(r.frames, f)

	return nil
}

// Pop removes the innermost frame. The base frame is never popped.
func (r *Registry) Pop() {
	if len(r.frames) > 1 {
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// Lookup resolves a tag innermost-first.
func (r *Registry) Lookup(tag value.Symbol) (*Handler, bool) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if h, ok := r.frames[i].byTag[tag.Hash]; ok {
			return h, true
		}
	}

	return nil, false
}

// Handlers returns every visible handler, outermost frame first, shadowed
// entries omitted. The slice order is stable across calls, so positions can
// serve as dispatch indices in lowered graphs.
func (r *Registry) Handlers() []*Handler {
	seen := make(map[value.ID]bool)
	var out []*Handler

	for _, f := range r.frames {
		for _, h := range f.ordered {
			if !seen[h.Tag.Hash] {
				seen[h.Tag.Hash] = true
				out = append(out, h)
			}
		}
	}

	// A shadowing inner handler replaces the outer one in place so indices
	// of unaffected handlers do not shift.
	for i := range out {
		for fi := len(r.frames) - 1; fi >= 0; fi-- {
			if h, ok := r.frames[fi].byTag[out[i].Tag.Hash]; ok {
				out[i] = h

				break
			}
		}
	}

	return out
}

// Index returns the stable dispatch index for a tag, or -1 when unbound.
func (r *Registry) Index(tag value.Symbol) int {
	for i, h := range r.Handlers() {
		if h.Tag.Hash == tag.Hash {
			return i
		}
	}

	return -1
}
