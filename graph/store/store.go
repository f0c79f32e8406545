// Package store provides persistence for point-in-time snapshots of a
// topology's node states, so an outer scheduler can resume inspection
// of a run or replay its node-state history after the fact. It never
// touches graph.Node internals directly: an executor hands it
// NodeSnapshot values it has already read off the live nodes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arkeus/taskgraph/graph"
)

// ErrNotFound is returned when a requested snapshot or checkpoint does
// not exist.
var ErrNotFound = errors.New("store: not found")

// NodeSnapshot is a persisted, point-in-time record of one node's
// execution-relevant state.
type NodeSnapshot struct {
	TopologyID  string
	NodeName    string
	Variant     graph.Variant
	JoinCounter int32
	NState      graph.NState
	EState      graph.EState
	Exception   string // empty if none was captured at snapshot time
	SavedAt     time.Time
}

// Store persists NodeSnapshots and named checkpoints (a labeled set of
// snapshots taken together, e.g. at every node's dispatch boundary).
type Store interface {
	// SaveSnapshot persists snap, keyed by (TopologyID, NodeName). A
	// later SaveSnapshot for the same key overwrites the prior one.
	SaveSnapshot(ctx context.Context, snap NodeSnapshot) error

	// LoadLatestSnapshot retrieves the most recently saved snapshot for
	// nodeName under topologyID. Returns ErrNotFound if none exists.
	LoadLatestSnapshot(ctx context.Context, topologyID, nodeName string) (NodeSnapshot, error)

	// ListSnapshots returns every node's latest snapshot under
	// topologyID, in no particular order.
	ListSnapshots(ctx context.Context, topologyID string) ([]NodeSnapshot, error)

	// SaveCheckpoint persists a labeled group of snapshots taken
	// together under topologyID.
	SaveCheckpoint(ctx context.Context, topologyID, label string, snaps []NodeSnapshot) error

	// LoadCheckpoint retrieves a previously saved checkpoint. Returns
	// ErrNotFound if the label doesn't exist under topologyID.
	LoadCheckpoint(ctx context.Context, topologyID, label string) ([]NodeSnapshot, error)
}
