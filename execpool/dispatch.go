package execpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkeus/taskgraph/graph"
	"github.com/arkeus/taskgraph/graph/emit"
)

// runConfig collects the optional collaborators a Run call can be
// given: an event sink and a metrics collector. Both are nil-safe.
type runConfig struct {
	emitter emit.Emitter
	metrics *graph.Metrics
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// WithEmitter attaches an observability sink to a Run call.
func WithEmitter(e emit.Emitter) RunOption {
	return func(c *runConfig) { c.emitter = e }
}

// WithMetrics attaches a Prometheus metrics collector to a Run call.
func WithMetrics(m *graph.Metrics) RunOption {
	return func(c *runConfig) { c.metrics = m }
}

func (c *runConfig) emit(ev emit.Event) {
	if c.emitter != nil {
		c.emitter.Emit(ev)
	}
}

// Run drives g to completion on p following the join-counter dispatch
// protocol graph.Node exposes: roots are dispatched immediately, every
// other node is dispatched once its strong dependents have driven its
// join counter to zero, and a conditioner's selected successors are
// dispatched directly, bypassing the counter entirely.
//
// Run blocks until every node reachable from g's roots has completed
// or been skipped as cancelled, then returns the first exception
// captured by a node with no parent (nodes with a parent have already
// propagated their exception up the chain and do not surface here).
func (p *Pool) Run(ctx context.Context, g *graph.Graph, opts ...RunOption) error {
	cfg := &runConfig{}
	for _, o := range opts {
		o(cfg)
	}

	topo := newRunTopology(ctx)
	g.SetUpJoinCounters()
	if cfg.metrics != nil {
		cfg.metrics.ObserveJoinCounterReset()
	}
	cfg.emit(emit.Event{TopologyID: topo.id, Msg: "topology_start"})

	rt := &runtime{pool: p}
	wg := p.submitGraph(ctx, topo, rt, g, cfg)
	wg.Wait()

	var firstErr error
	for _, n := range g.Nodes() {
		if n.Parent() != nil {
			continue
		}
		if exc := n.RethrowException(); exc != nil && firstErr == nil {
			firstErr = exc
		}
	}

	cfg.emit(emit.Event{TopologyID: topo.id, Msg: "topology_complete"})
	return firstErr
}

// submitGraph dispatches g's roots and returns a WaitGroup that
// reaches zero once every node reachable from them has completed.
func (p *Pool) submitGraph(ctx context.Context, topo *RunTopology, rt *runtime, g *graph.Graph, cfg *runConfig) *sync.WaitGroup {
	var wg sync.WaitGroup
	var dispatch func(n *graph.Node)
	dispatch = func(n *graph.Node) {
		// A node reachable by both a strong edge (join counter reaching
		// zero) and a selected weak edge (a conditioner choosing it)
		// must still run exactly once; TryMarkDispatched lets only the
		// first of the two callers through.
		if !n.TryMarkDispatched() {
			return
		}
		wg.Add(1)
		p.SilentAsync(func() {
			defer wg.Done()
			p.dispatchNode(ctx, topo, rt, n, cfg, dispatch)
		})
	}
	for _, root := range g.Roots() {
		dispatch(root)
	}
	return &wg
}

// dispatchNode runs a single node's body (or skips it if cancelled),
// then advances the frontier: strong successors have their join
// counter decremented and are dispatched once it reaches zero;
// conditioner successors are dispatched directly by selected index.
func (p *Pool) dispatchNode(ctx context.Context, topo *RunTopology, rt *runtime, n *graph.Node, cfg *runConfig, dispatch func(*graph.Node)) {
	n.SetTopology(topo)

	var selected []int
	var err error

	if n.IsCancelled() {
		n.Cancel()
		cfg.emit(emit.Event{TopologyID: topo.id, NodeName: n.Name(), Msg: "node_cancelled"})
		if cfg.metrics != nil {
			cfg.metrics.ObserveCancellation()
		}
		// A cancelled node never reaches invoke, so its submitter
		// reference (seeded by NewDependentAsync) would otherwise never
		// be released.
		if dep, ok := n.Handle().(*graph.DependentAsyncHandle); ok {
			dep.Release()
		}
	} else {
		if cfg.metrics != nil {
			cfg.metrics.ObserveDispatchStart()
		}
		cfg.emit(emit.Event{
			TopologyID: topo.id,
			NodeName:   n.Name(),
			Msg:        "node_dispatch",
			Meta:       map[string]interface{}{"variant": n.Variant().String()},
		})

		selected, err = p.invoke(ctx, topo, rt, n, cfg)

		if cfg.metrics != nil {
			cfg.metrics.ObserveDispatchEnd()
		}
	}

	if err != nil {
		n.CaptureException(&graph.NodeError{NodeName: n.Name(), Cause: err})
		if cfg.metrics != nil {
			cfg.metrics.ObserveExceptionCaptured()
		}
		cfg.emit(emit.Event{
			TopologyID: topo.id,
			NodeName:   n.Name(),
			Msg:        "exception_captured",
			Meta:       map[string]interface{}{"error": err.Error()},
		})
	}

	if parent := n.Parent(); parent != nil {
		if exc := n.RethrowException(); exc != nil {
			parent.CaptureException(exc)
		}
	}

	successors := n.Successors()
	if n.Variant() == graph.Condition || n.Variant() == graph.MultiCondition {
		for _, idx := range selected {
			if idx < 0 || idx >= len(successors) {
				continue
			}
			dispatch(successors[idx])
		}
		return
	}

	// A DependentAsyncHandle's useCount attributes one owner to each
	// successor registered via Precede (see graph.Node.Precede); a
	// successor releases its share here, the moment it observes this
	// node's completion, regardless of whether the release also
	// unblocks its own dispatch.
	dep, isDependentAsync := n.Handle().(*graph.DependentAsyncHandle)

	for _, s := range successors {
		if isDependentAsync {
			dep.Release()
		}
		if s.DecrementJoinCounter() == 0 {
			dispatch(s)
		}
	}
}

// invoke runs n's body for whichever variant it carries, recovering a
// panic into an error exactly like a returned failure. It returns the
// indices selected by a Condition/MultiCondition body; every other
// variant returns a nil selection.
func (p *Pool) invoke(ctx context.Context, topo *RunTopology, rt *runtime, n *graph.Node, cfg *runConfig) (selected []int, err error) {
	nodeRT := rt.forNode(n)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execpool: panic in node %q: %v", n.Name(), r)
		}
	}()

	switch h := n.Handle().(type) {
	case graph.PlaceholderHandle:
		return nil, nil

	case graph.StaticHandle:
		if h.FnRT != nil {
			return nil, h.FnRT(nodeRT)
		}
		if h.Fn != nil {
			h.Fn()
		}
		return nil, nil

	case graph.SubflowHandle:
		guard := graph.AcquirePreemption(n)
		defer guard.Release()
		if cfg.metrics != nil {
			cfg.metrics.ObservePreemption()
		}
		h.Fn(nodeRT, h.Sub)
		p.runGraphSync(ctx, topo, rt, h.Sub, cfg, n)
		return nil, nil

	case graph.ModuleHandle:
		guard := graph.AcquirePreemption(n)
		defer guard.Release()
		if cfg.metrics != nil {
			cfg.metrics.ObservePreemption()
		}
		p.runGraphSync(ctx, topo, rt, h.Sub, cfg, n)
		return nil, nil

	case graph.ConditionHandle:
		idx, cerr := h.Fn(nodeRT)
		if cerr != nil {
			return nil, cerr
		}
		return []int{idx}, nil

	case graph.MultiConditionHandle:
		idxs, cerr := h.Fn(nodeRT)
		if cerr != nil {
			return nil, cerr
		}
		return idxs, nil

	case graph.AsyncHandle:
		return nil, runAsyncBody(h, nodeRT, n.IsCancelled())

	case *graph.DependentAsyncHandle:
		aerr := runAsyncBody(h.AsyncHandle, nodeRT, n.IsCancelled())
		h.MarkFinished()
		// The submitter's own reference (seeded by NewDependentAsync)
		// is released once the body it submitted has actually run.
		h.Release()
		return nil, aerr

	default:
		return nil, graph.ErrInvalidVariant
	}
}

func runAsyncBody(h graph.AsyncHandle, rt graph.Runtime, cancelled bool) error {
	switch {
	case h.FnRTBool != nil:
		return h.FnRTBool(rt, cancelled)
	case h.FnRT != nil:
		return h.FnRT(rt)
	case h.Fn != nil:
		h.Fn()
		return nil
	default:
		return nil
	}
}

// runGraphSync populates parentage on sub's nodes, dispatches it, and
// blocks the calling goroutine until it drains. The caller is assumed
// to be running inside one of the pool's own workers (a Subflow or
// Module body), so blocking with a plain WaitGroup.Wait would remove a
// worker from circulation for the duration; corun keeps it draining
// the shared queue instead of idling, avoiding a pool-wide deadlock
// when nested work outruns the worker count.
func (p *Pool) runGraphSync(ctx context.Context, topo *RunTopology, rt *runtime, sub *graph.Graph, cfg *runConfig, parent *graph.Node) {
	for _, n := range sub.Nodes() {
		if n.Parent() == nil {
			n.SetParent(parent)
		}
	}
	sub.SetUpJoinCounters()
	if cfg.metrics != nil {
		cfg.metrics.ObserveJoinCounterReset()
	}

	wg := p.submitGraph(ctx, topo, rt, sub, cfg)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	p.corun(done)
}

// corun helps drain the pool's pending queue until done is closed,
// rather than blocking idly. See runGraphSync for why this matters.
func (p *Pool) corun(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		p.mu.Lock()
		if p.q.Length() == 0 {
			p.mu.Unlock()
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		fn := p.q.Remove().(func())
		p.mu.Unlock()

		// Deliberately bypasses the admission semaphore: this
		// goroutine already holds a permit for the outer body that
		// is corun-ing (its Subflow/Module invocation), and running
		// one more task inline on it adds no new concurrency. Gating
		// it on the same semaphore would self-deadlock the outer
		// permit holder waiting on a second one that can never free
		// up.
		p.runSafely(fn)
	}
}
