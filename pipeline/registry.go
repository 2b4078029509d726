package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Registry collects handlers while the application starts up. Finalize
// sorts and freezes it; after that it is read-only and can be shared by any
// number of Dispatchers.
//
// Req and Res are the two values a dispatch can hand to handlers, e.g.
// *http.Request and http.ResponseWriter. They must be different types.
type Registry[Req, Res any] struct {
	binder binder[Req, Res]

	// mu guards the build phase. Once finalized nothing is written, and a
	// Dispatcher reads its own snapshot without locking.
	mu        sync.Mutex
	handlers  []*Handler[Req, Res]
	before    []*Handler[Req, Res]
	after     []*Handler[Req, Res]
	finalized bool
}

// NewRegistry creates an empty registry. It panics if Req and Res are the
// same type.
func NewRegistry[Req, Res any]() *Registry[Req, Res] {
	return &Registry[Req, Res]{binder: newBinder[Req, Res]()}
}

// Register validates fn and adds it to the registry. fn may declare any subset
// of Req and Res as parameters, in any order, and must return bool or
// (bool, error).
func (r *Registry[Req, Res]) Register(fn any, opts ...Option) (*Handler[Req, Res], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil, ErrAlreadyFinalized
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	for _, p := range o.patterns {
		if p == "" {
			return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
		}
	}
	if len(o.patterns) == 0 {
		o.patterns = []string{MatchAll}
	}
	if o.phase != Before && o.phase != After {
		return nil, fmt.Errorf("cannot register handler with %s", o.phase)
	}

	info, err := valueOfFunction(fn)
	if err != nil {
		return nil, err
	}
	if o.name == "" {
		o.name = info.Name
	}
	call, err := r.binder.bind(o.name, info)
	if err != nil {
		return nil, err
	}

	h := &Handler[Req, Res]{
		name:     o.name,
		patterns: o.patterns,
		order:    o.order,
		phase:    o.phase,
		fn:       info,
		call:     call,
	}
	r.handlers = append(r.handlers, h)
	return h, nil
}

// Before registers fn to run in the before phase.
func (r *Registry[Req, Res]) Before(fn any, opts ...Option) (*Handler[Req, Res], error) {
	return r.Register(fn, append(opts[:len(opts):len(opts)], InPhase(Before))...)
}

// After registers fn to run in the after phase.
func (r *Registry[Req, Res]) After(fn any, opts ...Option) (*Handler[Req, Res], error) {
	return r.Register(fn, append(opts[:len(opts):len(opts)], InPhase(After))...)
}

// Finalize sorts the handlers of each phase by order, keeping registration
// order for ties, and freezes the registry.
func (r *Registry[Req, Res]) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrAlreadyFinalized
	}
	sorted := slices.Clone(r.handlers)
	slices.SortStableFunc(sorted, func(a, b *Handler[Req, Res]) int {
		return cmp.Compare(a.order, b.order)
	})
	for _, h := range sorted {
		if h.phase == Before {
			r.before = append(r.before, h)
		} else {
			r.after = append(r.after, h)
		}
	}
	r.finalized = true
	return nil
}

// Finalized reports whether Finalize has been called.
func (r *Registry[Req, Res]) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// ForPhase returns the handlers of the phase in execution order.
func (r *Registry[Req, Res]) ForPhase(p Phase) ([]*Handler[Req, Res], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		return nil, ErrNotInitialized
	}
	switch p {
	case Before:
		return slices.Clone(r.before), nil
	case After:
		return slices.Clone(r.after), nil
	}
	return nil, fmt.Errorf("no handlers for %s", p)
}

// Len returns the number of registered handlers.
func (r *Registry[Req, Res]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
