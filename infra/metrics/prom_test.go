package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

func TestPromSinkRecordOptimization(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordOptimization(coremetrics.OptimizationResult{
		RunID:          "r1",
		Vehicles:       2,
		OrdersAssigned: 5,
		OrdersDropped:  1,
		TimedOut:       false,
		Elapsed:        120 * time.Millisecond,
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP route_optimizations_total Total number of optimization runs
# TYPE route_optimizations_total counter
route_optimizations_total{timed_out="false"} 1
`
	if err := testutil.CollectAndCompare(sink.optimizations, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if v := testutil.ToFloat64(sink.unassigned); v != 1 {
		t.Errorf("unassigned counter: %f", v)
	}
	if c := testutil.CollectAndCount(sink.optElapsed); c == 0 {
		t.Errorf("elapsed not recorded")
	}
}

func TestPromSinkRecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordTransition(coremetrics.TransitionRecord{
		ShipmentID: "s1",
		From:       model.StatusDraft,
		To:         model.StatusReadyForPickup,
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	expected := `
# HELP shipment_transitions_total Shipment lifecycle transitions
# TYPE shipment_transitions_total counter
shipment_transitions_total{from="draft",to="ready_for_pickup"} 1
`
	if err := testutil.CollectAndCompare(sink.transitions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPromSinkRecordTracking(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	_ = sink.RecordTracking(coremetrics.TrackingRecord{ShipmentID: "s1", Accepted: true})
	_ = sink.RecordTracking(coremetrics.TrackingRecord{ShipmentID: "s1", Stale: true})
	expected := `
# HELP tracking_pings_total Tracking events by ingestion outcome
# TYPE tracking_pings_total counter
tracking_pings_total{outcome="accepted"} 1
tracking_pings_total{outcome="stale"} 1
`
	if err := testutil.CollectAndCompare(sink.pings, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPromSinkDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSink(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPromSink(reg); err != nil {
		t.Fatalf("second register should reuse collectors: %v", err)
	}
}
