package graph

import "sync/atomic"

// Variant tags a Node's Handle. The integer values are part of the
// external contract: dispatch tables built outside this package may
// switch on them directly.
type Variant int

const (
	Placeholder Variant = iota
	Static
	Subflow
	Condition
	MultiCondition
	Module
	Async
	DependentAsync
)

func (v Variant) String() string {
	switch v {
	case Placeholder:
		return "placeholder"
	case Static:
		return "static"
	case Subflow:
		return "subflow"
	case Condition:
		return "condition"
	case MultiCondition:
		return "multi_condition"
	case Module:
		return "module"
	case Async:
		return "async"
	case DependentAsync:
		return "dependent_async"
	default:
		return "unknown"
	}
}

// Handle is the payload carried by a Node. Exactly one concrete type
// below implements it for a given Node; Variant() reports which.
type Handle interface {
	Variant() Variant
}

// isConditioner reports whether a Handle selects among successors
// rather than simply completing, i.e. whether its outgoing edges are
// weak.
func isConditioner(h Handle) bool {
	switch h.Variant() {
	case Condition, MultiCondition:
		return true
	default:
		return false
	}
}

// PlaceholderHandle marks a Node with no work body yet; it exists only
// to be preceded/succeeded and later replaced or driven by external
// signalling.
type PlaceholderHandle struct{}

func (PlaceholderHandle) Variant() Variant { return Placeholder }

// StaticHandle wraps ordinary work. Exactly one of Fn or FnRT is set.
type StaticHandle struct {
	// Fn is a nullary work body.
	Fn func()

	// FnRT is a work body that receives the Runtime it executes under.
	// Set instead of Fn when the body needs to reach the executor, e.g.
	// to spawn nested parallel work.
	FnRT func(rt Runtime) error
}

func (StaticHandle) Variant() Variant { return Static }

// SubflowHandle wraps a body that dynamically populates an owned
// subgraph the first time (and, if resumed, subsequent times) it runs.
type SubflowHandle struct {
	// Fn builds Sub's contents. It receives the Runtime, whose
	// EnclosingNode is the owning Node, so nested nodes can be given the
	// right parent/topology.
	Fn func(rt Runtime, sub *Graph)

	// Sub is the owned subgraph. It is recycled iteratively when the
	// enclosing Node's Graph is cleared (see Graph.Clear).
	Sub *Graph
}

func (SubflowHandle) Variant() Variant { return Subflow }

// ConditionHandle wraps a body that selects exactly one successor by
// index. Nodes with this Handle are conditioners: their outgoing edges
// are weak and are not counted in a dependent's join counter.
type ConditionHandle struct {
	Fn func(rt Runtime) (int, error)
}

func (ConditionHandle) Variant() Variant { return Condition }

// MultiConditionHandle wraps a body that selects a set of successors by
// index. Like ConditionHandle, its outgoing edges are weak.
type MultiConditionHandle struct {
	Fn func(rt Runtime) ([]int, error)
}

func (MultiConditionHandle) Variant() Variant { return MultiCondition }

// ModuleHandle is a non-owning reference to another Graph, executed
// inline with the referencing Node as that Graph's nodes' parent.
type ModuleHandle struct {
	Sub *Graph
}

func (ModuleHandle) Variant() Variant { return Module }

// AsyncHandle wraps fire-and-forget work. Exactly one of Fn, FnRT, or
// FnRTBool is set, mirroring the three source arities.
type AsyncHandle struct {
	Fn func()
	FnRT func(rt Runtime) error
	// FnRTBool additionally receives whether the enclosing topology was
	// already cancelled at dispatch time.
	FnRTBool func(rt Runtime, cancelled bool) error
}

func (AsyncHandle) Variant() Variant { return Async }

// dependentAsyncState is the finite state of a DependentAsyncHandle.
type dependentAsyncState uint32

const (
	Unfinished dependentAsyncState = iota
	Finished
)

// DependentAsyncHandle is an AsyncHandle shared between its submitter
// and the nodes that depend on it. useCount tracks how many owners
// (the submitter plus each dependent) still hold a reference, so the
// underlying Node can be recycled exactly once all of them release it.
type DependentAsyncHandle struct {
	AsyncHandle

	useCount atomic.Int32
	state    atomic.Uint32 // dependentAsyncState
}

// Variant reports DependentAsync, not the embedded AsyncHandle's Async:
// dispatch tables, emitted events, and store snapshots all key off this
// value to tell a shared-ownership async node from an ordinary one.
func (*DependentAsyncHandle) Variant() Variant { return DependentAsync }

// AddRef records a new owner (a dependent gaining a reference to this
// node) and returns the resulting count.
func (h *DependentAsyncHandle) AddRef() int32 { return h.useCount.Add(1) }

// Release records an owner giving up its reference and returns the
// resulting count. The Node may be recycled once this reaches zero.
func (h *DependentAsyncHandle) Release() int32 { return h.useCount.Add(-1) }

// UseCount reports the current reference count without modifying it.
func (h *DependentAsyncHandle) UseCount() int32 { return h.useCount.Load() }

// MarkFinished transitions the handle from Unfinished to Finished.
// Returns false if it was already Finished.
func (h *DependentAsyncHandle) MarkFinished() bool {
	return h.state.CompareAndSwap(uint32(Unfinished), uint32(Finished))
}

// State reports the handle's current finite state.
func (h *DependentAsyncHandle) State() dependentAsyncState {
	return dependentAsyncState(h.state.Load())
}
