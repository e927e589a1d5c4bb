package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/internal/eventbus"
)

// InvalidTransitionError rejects a status change not present in the
// transition table. No state is modified when it is returned.
type InvalidTransitionError struct {
	From model.ShipmentStatus
	To   model.ShipmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid shipment transition %s -> %s", e.From, e.To)
}

// ErrStatusConflict signals that the expected current status supplied with a
// transition request no longer matches; a concurrent writer won.
var ErrStatusConflict = errors.New("shipment status changed concurrently")

// ErrVehicleNotAvailable guards the pickup transition: a shipment cannot
// leave the depot on a vehicle the fleet no longer reports available.
var ErrVehicleNotAvailable = errors.New("assigned vehicle not available")

// transitions is the full allowed-edge table. Statuses absent from the map
// (delivered, cancelled, returned) are terminal.
var transitions = map[model.ShipmentStatus][]model.ShipmentStatus{
	model.StatusDraft:          {model.StatusReadyForPickup, model.StatusCancelled},
	model.StatusReadyForPickup: {model.StatusInTransit, model.StatusCancelled},
	model.StatusInTransit:      {model.StatusOutForDelivery, model.StatusFailedDelivery, model.StatusReturned},
	model.StatusOutForDelivery: {model.StatusDelivered, model.StatusFailedDelivery, model.StatusReturned},
	model.StatusFailedDelivery: {model.StatusOutForDelivery, model.StatusReturned},
}

// Allowed reports whether the edge from -> to is in the transition table.
func Allowed(from, to model.ShipmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionEvent is published for every applied transition. Delivery to
// collaborators is at-least-once; the consumers own redelivery.
type TransitionEvent struct {
	ShipmentID string               `json:"shipment_id"`
	From       model.ShipmentStatus `json:"from_status"`
	To         model.ShipmentStatus `json:"to_status"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Lifecycle applies guarded status transitions and emits their events.
type Lifecycle struct {
	store shipment.Store
	fleet fleet.Source
	bus   *eventbus.Bus[TransitionEvent]
	log   logger.Logger
	sink  metrics.Sink
	now   func() time.Time
}

// New creates a Lifecycle. fleet may be nil, disabling the vehicle
// availability guard; sink may be nil.
func New(store shipment.Store, fl fleet.Source, bus *eventbus.Bus[TransitionEvent], log logger.Logger, sink metrics.Sink) *Lifecycle {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Lifecycle{store: store, fleet: fl, bus: bus, log: log, sink: sink, now: time.Now}
}

// Events returns the transition event bus for subscribers.
func (l *Lifecycle) Events() *eventbus.Bus[TransitionEvent] { return l.bus }

// Transition moves a shipment to target. expected, when non-empty, is the
// status the caller believes the shipment is in; a mismatch is rejected with
// ErrStatusConflict before anything changes. Concurrent writers that pass
// the expectation check are serialized by the store's version guard.
func (l *Lifecycle) Transition(ctx context.Context, shipmentID string, target, expected model.ShipmentStatus) (*model.Shipment, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown shipment status %q", target)
	}
	sh, err := l.store.Get(shipmentID)
	if err != nil {
		return nil, err
	}
	if expected != "" && sh.Status != expected {
		return nil, fmt.Errorf("%w: have %s, expected %s", ErrStatusConflict, sh.Status, expected)
	}
	if !Allowed(sh.Status, target) {
		return nil, &InvalidTransitionError{From: sh.Status, To: target}
	}
	if target == model.StatusInTransit && l.fleet != nil {
		v, err := l.fleet.Vehicle(ctx, sh.VehicleID)
		if err != nil {
			return nil, fmt.Errorf("pickup guard: %w", err)
		}
		if !v.Available {
			return nil, fmt.Errorf("%w: vehicle %s", ErrVehicleNotAvailable, sh.VehicleID)
		}
	}

	from := sh.Status
	now := l.now()
	sh.Status = target
	switch target {
	case model.StatusInTransit:
		if sh.DispatchedAt.IsZero() {
			sh.DispatchedAt = now
		}
	case model.StatusDelivered:
		sh.DeliveredAt = now
	}
	if err := l.store.Update(sh); err != nil {
		if errors.Is(err, shipment.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: %s", ErrStatusConflict, shipmentID)
		}
		return nil, err
	}

	ev := TransitionEvent{ShipmentID: sh.ID, From: from, To: target, Timestamp: now}
	l.bus.Publish(ev)
	l.log.Infof("shipment %s: %s -> %s", sh.ID, from, target)
	if err := l.sink.RecordTransition(metrics.TransitionRecord{
		ShipmentID: sh.ID, From: from, To: target, Time: now,
	}); err != nil {
		l.log.Errorf("transition metrics error: %v", err)
	}
	return sh, nil
}
