package execpool

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// RunTopology is the graph.Topology a Pool binds to every node of a
// single Run call. Its cancellation flag is the disjunction of an
// explicit Cancel() call and the driving context.Context's own
// cancellation, checked cooperatively by nodes at dispatch time.
type RunTopology struct {
	id  string
	ctx context.Context

	cancelled atomic.Bool
}

func newRunTopology(ctx context.Context) *RunTopology {
	return &RunTopology{id: uuid.NewString(), ctx: ctx}
}

// ID returns the identifier minted for this run, suitable for
// correlating store snapshots and emitted events.
func (t *RunTopology) ID() string { return t.id }

// Cancelled implements graph.Topology.
func (t *RunTopology) Cancelled() bool {
	if t.cancelled.Load() {
		return true
	}
	return t.ctx != nil && t.ctx.Err() != nil
}

// Cancel marks the topology cancelled. Nodes not yet dispatched will
// observe this on their next dispatch check and complete without
// running their body; nodes already running finish their current
// chunk cooperatively.
func (t *RunTopology) Cancel() { t.cancelled.Store(true) }
