package graph

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveDispatchStart()
	m.ObserveDispatchEnd()
	m.ObserveJoinCounterReset()
	m.ObserveExceptionCaptured()
	m.ObserveCancellation()
	m.ObservePreemption()
}

func TestMetrics_ObserveDispatchTracksInflightGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveDispatchStart()
	m.ObserveDispatchStart()
	if got := testutil.ToFloat64(m.inflightNodes); got != 2 {
		t.Errorf("inflight_nodes = %v, want 2", got)
	}

	m.ObserveDispatchEnd()
	if got := testutil.ToFloat64(m.inflightNodes); got != 1 {
		t.Errorf("inflight_nodes = %v, want 1", got)
	}
}

func TestMetrics_CountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveJoinCounterReset()
	m.ObserveJoinCounterReset()
	if got := testutil.ToFloat64(m.joinResets); got != 2 {
		t.Errorf("join_counter_resets_total = %v, want 2", got)
	}

	m.ObserveExceptionCaptured()
	if got := testutil.ToFloat64(m.exceptions); got != 1 {
		t.Errorf("exceptions_captured_total = %v, want 1", got)
	}

	m.ObserveCancellation()
	if got := testutil.ToFloat64(m.cancellations); got != 1 {
		t.Errorf("cancellations_observed_total = %v, want 1", got)
	}

	m.ObservePreemption()
	if got := testutil.ToFloat64(m.preemptions); got != 1 {
		t.Errorf("preemptions_total = %v, want 1", got)
	}
}

func TestNewMetrics_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 5 {
		t.Errorf("expected 5 registered metric families, got %d", len(families))
	}
}
