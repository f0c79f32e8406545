// Package graph provides the task-graph execution core: the node/edge
// model and the parallel algorithm skeletons built on top of it.
//
// The package never schedules a node's dispatch and never creates a
// goroutine on its own behalf outside of the parallel algorithm
// skeletons in graph/algo. Dispatch, work stealing, and the topology
// lifecycle belong to an external executor; this package only defines
// the contract that executor must satisfy.
package graph

// Executor abstracts the worker pool a Runtime is bound to. The core
// only ever asks it for the current worker count and asks it to run a
// fire-and-forget sub-task; it never manages goroutines itself.
type Executor interface {
	// NumWorkers returns the number of workers currently available for
	// dispatch. The parallel algorithm skeletons clamp their fan-out to
	// this value.
	NumWorkers() int

	// SilentAsync submits fn for asynchronous, fire-and-forget execution.
	// The caller does not observe fn's completion through the returned
	// value; coordination (if any) is the caller's responsibility.
	SilentAsync(fn func())
}

// Topology is the weak back-reference a Node and its parents use to
// observe whether the submission that owns them has been cancelled.
// The core never mutates a Topology; only the external executor does.
type Topology interface {
	// Cancelled reports whether this submission has been marked
	// cancelled. Checks are cooperative: in-flight work runs to
	// completion, only the next chunk boundary or node dispatch honors
	// the flag.
	Cancelled() bool
}

// Runtime is the context an executor passes into a running node's body.
// The core consumes exactly these three things from it.
type Runtime interface {
	// Executor returns the worker pool this runtime is bound to.
	Executor() Executor

	// SilentAsync submits fn for fire-and-forget execution on the bound
	// executor. Equivalent to Executor().SilentAsync(fn); kept as a
	// direct method because it is the hot path for the parallel
	// algorithm skeletons.
	SilentAsync(fn func())

	// EnclosingNode returns the Node whose body is currently running
	// under this Runtime. The parallel algorithm skeletons use it to
	// install a preemption guard before they block waiting on spawned
	// sub-tasks.
	EnclosingNode() *Node
}
