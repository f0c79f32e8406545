package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestMemStore_Construction(t *testing.T) {
	t.Run("construct with NewMemStore", func(t *testing.T) {
		st := NewMemStore()
		if st == nil {
			t.Fatal("NewMemStore returned nil")
		}
		var _ Store = st
	})

	t.Run("new store has no snapshots", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()
		_, err := st.LoadLatestSnapshot(ctx, "topo-001", "n1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for empty store, got %v", err)
		}
	})

	t.Run("multiple stores are independent", func(t *testing.T) {
		store1 := NewMemStore()
		store2 := NewMemStore()
		ctx := context.Background()

		_ = store1.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-001", NodeName: "n1"})

		if _, err := store2.LoadLatestSnapshot(ctx, "topo-001", "n1"); !errors.Is(err, ErrNotFound) {
			t.Error("store2 should not have data from store1")
		}
	})
}

func TestMemStore_SaveSnapshot_Concurrent(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("n%d", n)
			if err := st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-001", NodeName: name, JoinCounter: int32(n)}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent SaveSnapshot failed: %v", err)
	}

	snaps, err := st.ListSnapshots(ctx, "topo-001")
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snaps) != 10 {
		t.Errorf("expected 10 snapshots, got %d", len(snaps))
	}
}

func TestMemStore_SaveSnapshot_OverwritesSameNode(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-001", NodeName: "n1", JoinCounter: 3})
	_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-001", NodeName: "n1", JoinCounter: 0})

	snap, err := st.LoadLatestSnapshot(ctx, "topo-001", "n1")
	if err != nil {
		t.Fatalf("LoadLatestSnapshot failed: %v", err)
	}
	if snap.JoinCounter != 0 {
		t.Errorf("expected JoinCounter = 0 after overwrite, got %d", snap.JoinCounter)
	}
}

func TestMemStore_ListSnapshots_IsolatesByTopology(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-a", NodeName: "n1"})
	_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-b", NodeName: "n1"})
	_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-b", NodeName: "n2"})

	if snaps, _ := st.ListSnapshots(ctx, "topo-a"); len(snaps) != 1 {
		t.Errorf("expected 1 snapshot for topo-a, got %d", len(snaps))
	}
	if snaps, _ := st.ListSnapshots(ctx, "topo-b"); len(snaps) != 2 {
		t.Errorf("expected 2 snapshots for topo-b, got %d", len(snaps))
	}
	if snaps, _ := st.ListSnapshots(ctx, "unknown"); len(snaps) != 0 {
		t.Errorf("expected 0 snapshots for unknown topology, got %d", len(snaps))
	}
}

func TestMemStore_SaveCheckpoint(t *testing.T) {
	t.Run("save and load checkpoint by label", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		snaps := []NodeSnapshot{
			{TopologyID: "topo-001", NodeName: "a", JoinCounter: 1},
			{TopologyID: "topo-001", NodeName: "b", JoinCounter: 2},
		}
		if err := st.SaveCheckpoint(ctx, "topo-001", "before-deploy", snaps); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}

		loaded, err := st.LoadCheckpoint(ctx, "topo-001", "before-deploy")
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if len(loaded) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(loaded))
		}
	})

	t.Run("distinct labels under the same topology are independent", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		_ = st.SaveCheckpoint(ctx, "topo-001", "before", []NodeSnapshot{{NodeName: "a", JoinCounter: 1}})
		_ = st.SaveCheckpoint(ctx, "topo-001", "after", []NodeSnapshot{{NodeName: "a", JoinCounter: 0}, {NodeName: "b", JoinCounter: 0}})

		before, err := st.LoadCheckpoint(ctx, "topo-001", "before")
		if err != nil || len(before) != 1 {
			t.Fatalf("before checkpoint wrong: %v, %v", before, err)
		}
		after, err := st.LoadCheckpoint(ctx, "topo-001", "after")
		if err != nil || len(after) != 2 {
			t.Fatalf("after checkpoint wrong: %v, %v", after, err)
		}
	})

	t.Run("overwrite existing checkpoint label", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		_ = st.SaveCheckpoint(ctx, "topo-001", "cp", []NodeSnapshot{{NodeName: "a", JoinCounter: 1}})
		_ = st.SaveCheckpoint(ctx, "topo-001", "cp", []NodeSnapshot{{NodeName: "a", JoinCounter: 9}})

		loaded, err := st.LoadCheckpoint(ctx, "topo-001", "cp")
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if len(loaded) != 1 || loaded[0].JoinCounter != 9 {
			t.Errorf("expected overwritten checkpoint with JoinCounter=9, got %+v", loaded)
		}
	})
}

func TestMemStore_LoadCheckpoint_Errors(t *testing.T) {
	t.Run("load nonexistent label", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		if _, err := st.LoadCheckpoint(ctx, "topo-001", "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("load checkpoint from empty store", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		if _, err := st.LoadCheckpoint(ctx, "any-topology", "any-label"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("checkpoint miss after saving only snapshots", func(t *testing.T) {
		st := NewMemStore()
		ctx := context.Background()

		_ = st.SaveSnapshot(ctx, NodeSnapshot{TopologyID: "topo-001", NodeName: "n1"})

		if _, err := st.LoadCheckpoint(ctx, "topo-001", "cp-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemStore_CheckpointIsIndependentSliceCopy(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	snaps := []NodeSnapshot{{TopologyID: "topo-001", NodeName: "a", JoinCounter: 1}}
	if err := st.SaveCheckpoint(ctx, "topo-001", "cp", snaps); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	snaps[0].JoinCounter = 999 // mutate caller's slice after the save

	loaded, err := st.LoadCheckpoint(ctx, "topo-001", "cp")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded[0].JoinCounter != 1 {
		t.Errorf("store retained a reference to the caller's slice, got JoinCounter=%d", loaded[0].JoinCounter)
	}
}
