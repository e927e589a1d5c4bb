package metrics

import (
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// OptimizationResult summarises one optimizer run for observability sinks.
type OptimizationResult struct {
	RunID          string
	Vehicles       int
	OrdersAssigned int
	OrdersDropped  int
	TotalMeters    float64
	TimedOut       bool
	Elapsed        time.Duration
	Time           time.Time
}

// TransitionRecord captures a shipment lifecycle transition.
type TransitionRecord struct {
	ShipmentID string
	From       model.ShipmentStatus
	To         model.ShipmentStatus
	Time       time.Time
}

// TrackingRecord captures the outcome of one tracking ingestion.
type TrackingRecord struct {
	ShipmentID string
	Accepted   bool
	Stale      bool
	ETA        time.Time
	Time       time.Time
}

// Sink records dispatch-engine events for observability purposes.
type Sink interface {
	RecordOptimization(OptimizationResult) error
	RecordTransition(TransitionRecord) error
	RecordTracking(TrackingRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordOptimization(OptimizationResult) error { return nil }
func (NopSink) RecordTransition(TransitionRecord) error     { return nil }
func (NopSink) RecordTracking(TrackingRecord) error         { return nil }
