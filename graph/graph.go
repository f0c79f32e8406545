package graph

// Graph is an owning, ordered collection of Nodes. Element identity
// (the *Node pointer returned by EmplaceBack) is stable for the
// Node's lifetime; iteration order is insertion order.
//
// A Graph's node slice is mutated only by the builder goroutine before
// execution starts; during execution it is treated as read-only, so
// Nodes may be iterated concurrently with dispatch. Graph itself is
// not safe for concurrent EmplaceBack/Erase calls.
type Graph struct {
	nodes []*Node
}

// EmplaceBack constructs a Node from the given Handle and options,
// appends it to the graph, and returns the new Node.
func (g *Graph) EmplaceBack(h Handle, opts ...NodeOption) *Node {
	n := newNode(h, opts...)
	g.nodes = append(g.nodes, n)
	return n
}

// Add appends an already-constructed Node (typically produced by one
// of the New* constructors) to the graph and returns it.
func (g *Graph) Add(n *Node) *Node {
	g.nodes = append(g.nodes, n)
	return n
}

// Erase removes the unique entry equal to p. Returns ErrNodeIsNil if p
// is nil, ErrNodeNotInGraph if p is not owned by g.
func (g *Graph) Erase(p *Node) error {
	if p == nil {
		return ErrNodeIsNil
	}
	for i, n := range g.nodes {
		if n == p {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			return nil
		}
	}
	return ErrNodeNotInGraph
}

// Len returns the number of nodes owned by g.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns a snapshot slice of the owned nodes, in insertion
// order. The slice itself is a copy; the *Node values are shared.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// At returns the i'th node in insertion order.
func (g *Graph) At(i int) *Node { return g.nodes[i] }

// Roots returns the nodes with no dependents: the entry points for
// dispatch.
func (g *Graph) Roots() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.NumDependents() == 0 {
			out = append(out, n)
		}
	}
	return out
}

// SetUpJoinCounters calls SetUpJoinCounter on every owned node. Called
// once before a graph's first execution, and again on each resumption
// after a preempted node's subflow/module has finished populating
// nested structure.
func (g *Graph) SetUpJoinCounters() {
	for _, n := range g.nodes {
		n.SetUpJoinCounter()
	}
}

// Clear recycles every node owned by g, including nodes owned
// transitively by Subflow handles. Deep subflow teardown is done
// iteratively via an explicit work list rather than recursively, so an
// arbitrarily deep chain of nested subflows cannot overflow the stack.
func (g *Graph) Clear() {
	pending := []*Graph{g}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		for _, n := range cur.nodes {
			if sh, ok := n.handle.(SubflowHandle); ok && sh.Sub != nil && sh.Sub != cur {
				pending = append(pending, sh.Sub)
			}
		}
		cur.nodes = nil
	}
}
