package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus counters and a gauge describing a
// running executor's behavior around node dispatch. A nil *Metrics is
// valid everywhere one is accepted: every Observe* method is a no-op
// on a nil receiver, matching this package's zero-overhead-by-default
// philosophy for optional collaborators.
//
// Metrics is namespaced "taskgraph_" and carries no per-call labels:
// an executor is expected to construct one instance per topology
// submission if per-run breakdowns are needed, or to share one across
// a process's lifetime for aggregate counts.
type Metrics struct {
	inflightNodes prometheus.Gauge
	joinResets    prometheus.Counter
	exceptions    prometheus.Counter
	cancellations prometheus.Counter
	preemptions   prometheus.Counter
}

// NewMetrics constructs and registers a Metrics collector against
// registerer. A nil registerer falls back to prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskgraph",
			Name:      "inflight_nodes",
			Help:      "Current number of node bodies executing concurrently",
		}),
		joinResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "join_counter_resets_total",
			Help:      "Number of times a node's join counter has been recomputed for a (re)run",
		}),
		exceptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "exceptions_captured_total",
			Help:      "Number of node body failures captured into a node's exception slot",
		}),
		cancellations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "cancellations_observed_total",
			Help:      "Number of node dispatches skipped because the topology or parent was cancelled",
		}),
		preemptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskgraph",
			Name:      "preemptions_total",
			Help:      "Number of times a node body released its worker to await nested work",
		}),
	}
}

// ObserveDispatchStart records a node body beginning execution.
func (m *Metrics) ObserveDispatchStart() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

// ObserveDispatchEnd records a node body finishing execution,
// regardless of outcome.
func (m *Metrics) ObserveDispatchEnd() {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
}

// ObserveJoinCounterReset records a join counter (re)computation, e.g.
// Graph.SetUpJoinCounters on first run or on resumption after
// preemption.
func (m *Metrics) ObserveJoinCounterReset() {
	if m == nil {
		return
	}
	m.joinResets.Inc()
}

// ObserveExceptionCaptured records a node body failure captured into
// a node's exception slot.
func (m *Metrics) ObserveExceptionCaptured() {
	if m == nil {
		return
	}
	m.exceptions.Inc()
}

// ObserveCancellation records a node dispatch skipped due to
// cancellation.
func (m *Metrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// ObservePreemption records a node body acquiring a preemption guard.
func (m *Metrics) ObservePreemption() {
	if m == nil {
		return
	}
	m.preemptions.Inc()
}
