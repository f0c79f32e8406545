package execpool

import "github.com/arkeus/taskgraph/graph"

// runtime is the graph.Runtime a Pool passes into a node's body. Each
// dispatched node gets its own value with EnclosingNode set to that
// node; Executor and SilentAsync are shared, delegating straight to
// the owning Pool.
type runtime struct {
	pool *Pool
	node *graph.Node
}

func (r *runtime) Executor() graph.Executor { return r.pool }

func (r *runtime) SilentAsync(fn func()) { r.pool.SilentAsync(fn) }

func (r *runtime) EnclosingNode() *graph.Node { return r.node }

// forNode returns a copy of r scoped to n, used when the dispatch loop
// hands control to a different node's body.
func (r *runtime) forNode(n *graph.Node) *runtime {
	return &runtime{pool: r.pool, node: n}
}
