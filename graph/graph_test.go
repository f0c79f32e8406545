package graph

import "testing"

func TestGraph_EmplaceBackAndIterationOrder(t *testing.T) {
	var g Graph
	a := g.EmplaceBack(PlaceholderHandle{}, WithName("a"))
	b := g.EmplaceBack(PlaceholderHandle{}, WithName("b"))
	c := g.EmplaceBack(PlaceholderHandle{}, WithName("c"))

	nodes := g.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("len(Nodes()) = %d, want 3", len(nodes))
	}
	want := []*Node{a, b, c}
	for i, n := range nodes {
		if n != want[i] {
			t.Errorf("Nodes()[%d] = %s, want %s", i, n.Name(), want[i].Name())
		}
	}
}

func TestGraph_Erase(t *testing.T) {
	var g Graph
	a := g.EmplaceBack(PlaceholderHandle{})
	b := g.EmplaceBack(PlaceholderHandle{})

	if err := g.Erase(a); err != nil {
		t.Fatalf("Erase(a) returned error: %v", err)
	}
	if g.Len() != 1 || g.At(0) != b {
		t.Errorf("expected only b to remain, got %d nodes", g.Len())
	}
	if err := g.Erase(a); err != ErrNodeNotInGraph {
		t.Errorf("Erase(a) again = %v, want ErrNodeNotInGraph", err)
	}
	if err := g.Erase(nil); err != ErrNodeIsNil {
		t.Errorf("Erase(nil) = %v, want ErrNodeIsNil", err)
	}
}

func TestGraph_Roots(t *testing.T) {
	var g Graph
	a := g.Add(NewStatic(func() {}, WithName("a")))
	b := g.Add(NewStatic(func() {}, WithName("b")))
	c := g.Add(NewStatic(func() {}, WithName("c")))
	a.Precede(c)
	b.Precede(c)

	roots := g.Roots()
	if len(roots) != 2 {
		t.Fatalf("len(Roots()) = %d, want 2", len(roots))
	}
}

func TestGraph_SetUpJoinCounters(t *testing.T) {
	var g Graph
	a := g.Add(NewStatic(func() {}))
	b := g.Add(NewStatic(func() {}))
	c := g.Add(NewPlaceholder())
	a.Precede(c)
	b.Precede(c)

	g.SetUpJoinCounters()
	if c.JoinCounter() != 2 {
		t.Errorf("join_counter(c) = %d, want 2", c.JoinCounter())
	}
}

func TestGraph_Clear_RecyclesNestedSubflows(t *testing.T) {
	var outer Graph
	sub := &Graph{}
	sub.Add(NewStatic(func() {}))
	subflowNode := outer.Add(NewSubflow(func(rt Runtime, s *Graph) {}))
	subflowNode.handle = SubflowHandle{Sub: sub}
	outer.Add(NewStatic(func() {}))

	outer.Clear()

	if outer.Len() != 0 {
		t.Errorf("outer.Len() = %d, want 0 after Clear", outer.Len())
	}
	if sub.Len() != 0 {
		t.Errorf("sub.Len() = %d, want 0 after Clear", sub.Len())
	}
}
