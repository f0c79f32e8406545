package graph

import (
	"sync"
	"sync/atomic"
)

// NState is the bitfield tracked on a Node's own conditioning/
// preemption status. The low bits are flags; the high bits (above
// nstateConditionerShift) hold a small count of conditioner
// dependents, squeezed in alongside the flags the way the source this
// package is derived from does. Both halves are read and reset
// together under the same atomic operation so a concurrent reader
// never observes one half updated without the other.
type NState uint32

const (
	NStateNone        NState = 0
	NStateConditioned NState = 1 << 0
	NStatePreempted   NState = 1 << 1

	nstateFlagBits         = 8
	nstateConditionerShift = nstateFlagBits
	nstateConditionerMax   = 1<<(32-nstateConditionerShift) - 1
)

func (s NState) flags() NState        { return s & (1<<nstateFlagBits - 1) }
func (s NState) conditioners() uint32 { return uint32(s) >> nstateConditionerShift }

func makeNState(flags NState, conditioners uint32) NState {
	if conditioners > nstateConditionerMax {
		conditioners = nstateConditionerMax
	}
	return flags.flags() | NState(conditioners<<nstateConditionerShift)
}

// EState is the atomic bitfield tracking a Node's cancellation and
// teardown-anchoring status.
type EState uint32

const (
	EStateNone       EState = 0
	EStateCancelled  EState = 1 << 0
	EStateAnchored   EState = 1 << 1
	EStateDispatched EState = 1 << 2
)

// Node is the polymorphic vertex of a task graph: a variant payload
// plus the dependency bookkeeping (successors, dependents, join
// counter) the executor needs to know when the node becomes runnable.
//
// None of Node's pointer fields other than the owning Graph's slice
// slot are owning: successors, dependents, parent, and topology are
// all weak references valid only for the execution window.
type Node struct {
	name string
	data any

	topology Topology
	parent   *Node

	edgeMu     sync.Mutex // guards successors/dependents during graph construction
	successors []*Node
	dependents []*Node

	joinCounter atomic.Int32

	nstate atomic.Uint32 // NState
	estate atomic.Uint32 // EState

	exceptionMu sync.Mutex
	exception   error

	handle Handle
}

// TaskParams names a node and attaches an opaque, never-dereferenced
// user pointer to it, mirroring the source's TaskParams{name, data}
// construction tag.
type TaskParams struct {
	Name string
	Data any
}

// NodeOption configures a Node at construction time.
type NodeOption func(*Node)

// WithName sets the Node's human-readable label.
func WithName(name string) NodeOption {
	return func(n *Node) { n.name = name }
}

// WithData attaches an opaque user pointer the core never dereferences.
func WithData(data any) NodeOption {
	return func(n *Node) { n.data = data }
}

// WithParams applies a TaskParams tag in one call.
func WithParams(p TaskParams) NodeOption {
	return func(n *Node) {
		n.name = p.Name
		n.data = p.Data
	}
}

// WithTopology sets the owning submission's weak back-reference.
func WithTopology(t Topology) NodeOption {
	return func(n *Node) { n.topology = t }
}

// WithParent sets the enclosing subflow/module Node's weak
// back-reference, used for cancellation and exception propagation.
func WithParent(p *Node) NodeOption {
	return func(n *Node) { n.parent = p }
}

func newNode(h Handle, opts ...NodeOption) *Node {
	n := &Node{handle: h}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewPlaceholder constructs a Node with no work body.
func NewPlaceholder(opts ...NodeOption) *Node {
	return newNode(PlaceholderHandle{}, opts...)
}

// NewStatic constructs a Node from a nullary work body.
func NewStatic(fn func(), opts ...NodeOption) *Node {
	return newNode(StaticHandle{Fn: fn}, opts...)
}

// NewStaticRuntime constructs a Node from a work body that receives the
// Runtime it executes under.
func NewStaticRuntime(fn func(rt Runtime) error, opts ...NodeOption) *Node {
	return newNode(StaticHandle{FnRT: fn}, opts...)
}

// NewSubflow constructs a Node whose body populates an owned subgraph.
func NewSubflow(fn func(rt Runtime, sub *Graph), opts ...NodeOption) *Node {
	return newNode(SubflowHandle{Fn: fn, Sub: &Graph{}}, opts...)
}

// NewCondition constructs a conditioner Node selecting one successor.
func NewCondition(fn func(rt Runtime) (int, error), opts ...NodeOption) *Node {
	return newNode(ConditionHandle{Fn: fn}, opts...)
}

// NewMultiCondition constructs a conditioner Node selecting a set of
// successors.
func NewMultiCondition(fn func(rt Runtime) ([]int, error), opts ...NodeOption) *Node {
	return newNode(MultiConditionHandle{Fn: fn}, opts...)
}

// NewModule constructs a Node that runs another Graph inline, with
// itself as that Graph's nodes' parent.
func NewModule(sub *Graph, opts ...NodeOption) *Node {
	return newNode(ModuleHandle{Sub: sub}, opts...)
}

// NewAsync constructs a fire-and-forget Node from a nullary body.
func NewAsync(fn func(), opts ...NodeOption) *Node {
	return newNode(AsyncHandle{Fn: fn}, opts...)
}

// NewAsyncRuntime constructs a fire-and-forget Node from a body that
// receives the Runtime it executes under.
func NewAsyncRuntime(fn func(rt Runtime) error, opts ...NodeOption) *Node {
	return newNode(AsyncHandle{FnRT: fn}, opts...)
}

// NewAsyncCancellable constructs a fire-and-forget Node whose body also
// receives whether its topology was already cancelled at dispatch.
func NewAsyncCancellable(fn func(rt Runtime, cancelled bool) error, opts ...NodeOption) *Node {
	return newNode(AsyncHandle{FnRTBool: fn}, opts...)
}

// NewDependentAsync constructs a shared-ownership Async Node intended
// to be referenced by both its submitter and its dependents. useCount
// starts at one, for the submitter's own reference; each later Precede
// onto this Node adds one more, for the dependent gaining it.
func NewDependentAsync(fn func(rt Runtime) error, opts ...NodeOption) *Node {
	h := &DependentAsyncHandle{AsyncHandle: AsyncHandle{FnRT: fn}}
	h.AddRef()
	return newNode(h, opts...)
}

// Name returns the Node's human-readable label, possibly empty.
func (n *Node) Name() string { return n.name }

// Data returns the opaque user pointer attached at construction. The
// core never dereferences it.
func (n *Node) Data() any { return n.data }

// Handle returns the Node's variant payload.
func (n *Node) Handle() Handle { return n.handle }

// Variant reports which concrete Handle type this Node carries.
func (n *Node) Variant() Variant { return n.handle.Variant() }

// Topology returns the owning submission's weak back-reference, or nil.
func (n *Node) Topology() Topology { return n.topology }

// Parent returns the enclosing subflow/module Node's weak
// back-reference, or nil for a top-level node.
func (n *Node) Parent() *Node { return n.parent }

// SetParent rebinds the Node's parent, used when a subflow/module body
// installs nested nodes.
func (n *Node) SetParent(p *Node) { n.parent = p }

// SetTopology rebinds the Node's owning submission.
func (n *Node) SetTopology(t Topology) { n.topology = t }

// NumSuccessors returns the number of outgoing edges.
func (n *Node) NumSuccessors() int {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	return len(n.successors)
}

// NumDependents returns the number of incoming edges.
func (n *Node) NumDependents() int {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	return len(n.dependents)
}

// NumStrongDependents returns the number of incoming edges from
// non-conditioner nodes: the count the join counter is initialized to.
func (n *Node) NumStrongDependents() int {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	c := 0
	for _, d := range n.dependents {
		if !isConditioner(d.handle) {
			c++
		}
	}
	return c
}

// NumWeakDependents returns the number of incoming edges from
// conditioner nodes: edges activated by explicit selection rather than
// counted down.
func (n *Node) NumWeakDependents() int {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	c := 0
	for _, d := range n.dependents {
		if isConditioner(d.handle) {
			c++
		}
	}
	return c
}

// Successors returns a snapshot of the outgoing edge list.
func (n *Node) Successors() []*Node {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	out := make([]*Node, len(n.successors))
	copy(out, n.successors)
	return out
}

// Dependents returns a snapshot of the incoming edge list.
func (n *Node) Dependents() []*Node {
	n.edgeMu.Lock()
	defer n.edgeMu.Unlock()
	out := make([]*Node, len(n.dependents))
	copy(out, n.dependents)
	return out
}

// Precede appends v to n's successors and n to v's dependents. It is
// the only edge-building operation: edges are never removed once a
// graph starts being built.
//
// If n carries a DependentAsyncHandle, v becomes one more owner of it:
// Precede calls AddRef. The matching Release happens once v observes
// n's completion (see execpool's dispatch loop).
func (n *Node) Precede(v *Node) {
	n.edgeMu.Lock()
	n.successors = append(n.successors, v)
	n.edgeMu.Unlock()

	v.edgeMu.Lock()
	v.dependents = append(v.dependents, n)
	v.edgeMu.Unlock()

	if dep, ok := n.handle.(*DependentAsyncHandle); ok {
		dep.AddRef()
	}
}

// SetUpJoinCounter (re)computes n's join counter and CONDITIONED state
// from its current dependents. It must be called once before a graph's
// first execution and again on each resumption after preemption.
func (n *Node) SetUpJoinCounter() {
	n.edgeMu.Lock()
	deps := make([]*Node, len(n.dependents))
	copy(deps, n.dependents)
	n.edgeMu.Unlock()

	var strong int32
	var conditioners uint32
	for _, d := range deps {
		if isConditioner(d.handle) {
			conditioners++
		} else {
			strong++
		}
	}

	flags := NStateNone
	if conditioners > 0 {
		flags |= NStateConditioned
	}
	n.nstate.Store(uint32(makeNState(flags, conditioners)))
	n.joinCounter.Store(strong)
	n.clearEStateFlag(EStateDispatched)
}

// JoinCounter returns the current join counter value.
func (n *Node) JoinCounter() int32 { return n.joinCounter.Load() }

// DecrementJoinCounter decrements the join counter by one and reports
// the resulting value. A strong predecessor's completion calls this;
// reaching zero means the node is runnable. This is exposed for the
// external executor to call — the core never calls it itself.
func (n *Node) DecrementJoinCounter() int32 { return n.joinCounter.Add(-1) }

// NState returns the current NSTATE bitfield.
func (n *Node) NState() NState { return NState(n.nstate.Load()) }

// IsConditioned reports whether this Node has at least one conditioner
// among its dependents.
func (n *Node) IsConditioned() bool {
	return n.NState().flags()&NStateConditioned != 0
}

// IsPreempted reports whether this Node's body is currently suspended
// awaiting nested work.
func (n *Node) IsPreempted() bool {
	return n.NState().flags()&NStatePreempted != 0
}

func (n *Node) setNStateFlag(f NState) {
	for {
		old := n.nstate.Load()
		next := uint32(NState(old) | f)
		if n.nstate.CompareAndSwap(old, next) {
			return
		}
	}
}

func (n *Node) clearNStateFlag(f NState) {
	for {
		old := n.nstate.Load()
		next := uint32(NState(old) &^ f)
		if n.nstate.CompareAndSwap(old, next) {
			return
		}
	}
}

// EState returns the current ESTATE bitfield.
func (n *Node) EState() EState { return EState(n.estate.Load()) }

func (n *Node) setEStateFlag(f EState) {
	n.estate.Or(uint32(f))
}

func (n *Node) clearEStateFlag(f EState) {
	n.estate.And(^uint32(f))
}

// IsCancelled reports whether this Node's owning topology, or its
// parent, has been marked cancelled. The parent-chain check is
// deliberately shallow (one level): a cancelled grandparent still
// marks its own child cancelled on the next dispatch, which is enough
// to stop propagation without walking the whole ancestor chain on
// every check.
func (n *Node) IsCancelled() bool {
	if n.EState()&EStateCancelled != 0 {
		return true
	}
	if n.topology != nil && n.topology.Cancelled() {
		return true
	}
	if n.parent != nil && n.parent.EState()&EStateCancelled != 0 {
		return true
	}
	return false
}

// Cancel marks this Node's own ESTATE cancelled. Used by an external
// executor propagating a topology-level cancellation down to
// individual nodes it is about to skip.
func (n *Node) Cancel() { n.setEStateFlag(EStateCancelled) }

// TryMarkDispatched atomically sets EStateDispatched and reports
// whether this call was the one that set it. A node can be made
// runnable along two independent paths — its join counter reaching
// zero, and a conditioner selecting it directly — and both can fire
// for the same node when it carries both a strong and a weak incoming
// edge (see SetUpJoinCounter). The executor calls this once per
// candidate dispatch and only proceeds on true, so the two paths
// converge on exactly one run. Reset by SetUpJoinCounter for the next
// execution or resumption.
func (n *Node) TryMarkDispatched() bool {
	for {
		old := n.estate.Load()
		if EState(old)&EStateDispatched != 0 {
			return false
		}
		if n.estate.CompareAndSwap(old, old|uint32(EStateDispatched)) {
			return true
		}
	}
}

// CaptureException stores err into the exception slot, first writer
// wins. Subsequent failures from peer sub-tasks (e.g. parallel
// algorithm workers) are dropped.
func (n *Node) CaptureException(err error) {
	if err == nil {
		return
	}
	n.exceptionMu.Lock()
	defer n.exceptionMu.Unlock()
	if n.exception == nil {
		n.exception = err
	}
}

// RethrowException atomically takes the exception slot and returns it,
// clearing it in the process. Returns nil if nothing was captured.
func (n *Node) RethrowException() error {
	n.exceptionMu.Lock()
	defer n.exceptionMu.Unlock()
	err := n.exception
	n.exception = nil
	return err
}
