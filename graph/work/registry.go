package work

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkeus/taskgraph/graph"
)

// Registry maps handler names to Handlers and produces Async node
// bodies that dispatch to them by name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under h.Name(), replacing any handler already
// registered with that name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Lookup returns the handler registered under name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Body returns an Async-compatible body (func(rt graph.Runtime) error)
// that looks up name in the registry and invokes it with input. It is
// meant to be wrapped in a graph.AsyncHandle.FnRT.
//
// If the run's context should carry cancellation or deadlines, pass one
// via ctx; a nil ctx becomes context.Background().
func (r *Registry) Body(ctx context.Context, name string, input map[string]any) func(rt graph.Runtime) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return func(rt graph.Runtime) error {
		h, ok := r.Lookup(name)
		if !ok {
			err := fmt.Errorf("work: no handler registered for %q", name)
			if node := rt.EnclosingNode(); node != nil {
				node.CaptureException(err)
			}
			return err
		}
		if _, err := h.Call(ctx, input); err != nil {
			wrapped := fmt.Errorf("work: handler %q failed: %w", name, err)
			if node := rt.EnclosingNode(); node != nil {
				node.CaptureException(wrapped)
			}
			return wrapped
		}
		return nil
	}
}
