package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/metrics"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
)

// ErrNotInTransit rejects pings for shipments that are not moving.
var ErrNotInTransit = errors.New("shipment not in transit")

// DefaultProximityMeters is the arrival detection radius.
const DefaultProximityMeters = 150.0

// Result is the ingestion outcome. Stale events are discarded, not errors:
// Accepted is false and nothing changed.
type Result struct {
	Accepted  bool      `json:"accepted"`
	Stale     bool      `json:"stale,omitempty"`
	ETA       time.Time `json:"eta,omitempty"`
	Delivered bool      `json:"delivered,omitempty"`
}

// Ingestor consumes position pings for in-transit shipments, recomputes the
// ETA against the remaining route and detects stop arrivals. Different
// shipments are processed concurrently; pings for one shipment are
// serialized.
type Ingestor struct {
	store      shipment.Store
	lc         *lifecycle.Lifecycle
	log        logger.Logger
	sink       metrics.Sink
	proximityM float64
	speedKmh   float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestor creates an Ingestor. proximityM and speedKmh fall back to
// defaults when zero; sink may be nil.
func NewIngestor(store shipment.Store, lc *lifecycle.Lifecycle, log logger.Logger, sink metrics.Sink, proximityM, speedKmh float64) *Ingestor {
	if proximityM <= 0 {
		proximityM = DefaultProximityMeters
	}
	if speedKmh <= 0 {
		speedKmh = distance.DefaultSpeedKmh
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Ingestor{
		store:      store,
		lc:         lc,
		log:        log,
		sink:       sink,
		proximityM: proximityM,
		speedKmh:   speedKmh,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Ingest applies one tracking event. Events with a timestamp not strictly
// greater than the last recorded one are discarded as stale, so replays and
// out-of-order delivery are idempotent.
func (i *Ingestor) Ingest(ctx context.Context, shipmentID string, ev model.TrackingEvent) (Result, error) {
	lock := i.shipmentLock(shipmentID)
	lock.Lock()
	defer lock.Unlock()

	sh, err := i.store.Get(shipmentID)
	if err != nil {
		return Result{}, err
	}
	if sh.Status != model.StatusInTransit && sh.Status != model.StatusOutForDelivery {
		if sh.Status.Terminal() {
			i.releaseLock(shipmentID)
		}
		return Result{}, fmt.Errorf("%w: shipment %s is %s", ErrNotInTransit, sh.ID, sh.Status)
	}
	if !ev.Timestamp.After(sh.LastEventAt) {
		i.log.Debugw("stale tracking event discarded", map[string]any{
			"shipment": shipmentID,
			"event_ts": ev.Timestamp,
			"last_ts":  sh.LastEventAt,
		})
		i.record(metrics.TrackingRecord{ShipmentID: shipmentID, Stale: true, Time: ev.Timestamp})
		return Result{Accepted: false, Stale: true}, nil
	}

	sh.CurrentPosition = ev.Location
	sh.LastEventAt = ev.Timestamp

	arrived, arrivedFinal := i.detectArrival(sh, ev)
	sh.ETA = i.computeETA(sh, ev)

	if ev.Type == "" {
		switch {
		case arrivedFinal:
			ev.Type = model.EventDelivery
		case arrived:
			ev.Type = model.EventArrival
		default:
			ev.Type = model.EventTransitUpdate
		}
	}
	if err := i.store.Update(sh); err != nil {
		return Result{}, fmt.Errorf("tracking update: %w", err)
	}
	if err := i.store.AppendEvent(shipmentID, ev); err != nil {
		return Result{}, err
	}
	i.record(metrics.TrackingRecord{ShipmentID: shipmentID, Accepted: true, ETA: sh.ETA, Time: ev.Timestamp})

	res := Result{Accepted: true, ETA: sh.ETA}
	if arrivedFinal {
		if err := i.deliver(ctx, sh); err != nil {
			i.log.Errorf("delivery transition for %s: %v", sh.ID, err)
		} else {
			res.Delivered = true
			i.releaseLock(sh.ID)
		}
	}
	return res, nil
}

// detectArrival marks the next unvisited stop when the reported position is
// within the proximity threshold. final is true when that stop was the last
// delivery stop.
func (i *Ingestor) detectArrival(sh *model.Shipment, ev model.TrackingEvent) (arrived, final bool) {
	next, ok := sh.NextUnvisitedStop()
	if !ok {
		return false, false
	}
	if ev.Location.HaversineDistance(next.Location) > i.proximityM {
		return false, false
	}
	sh.Stops[next.Index].ActualArrival = ev.Timestamp
	// The last delivery stop precedes the depot return leg.
	return true, next.Index >= len(sh.Stops)-2
}

// computeETA estimates arrival at the last delivery stop: distance from the
// current position to the next unvisited stop, then along the remaining stop
// order, divided by the average speed.
func (i *Ingestor) computeETA(sh *model.Shipment, ev model.TrackingEvent) time.Time {
	next, ok := sh.NextUnvisitedStop()
	if !ok {
		return ev.Timestamp
	}
	meters := ev.Location.HaversineDistance(next.Location)
	prev := next.Location
	for _, st := range sh.Stops[next.Index+1:] {
		if !st.ActualArrival.IsZero() {
			continue
		}
		meters += prev.HaversineDistance(st.Location)
		prev = st.Location
	}
	seconds := distance.EstimateTravelTime(meters, i.speedKmh)
	return ev.Timestamp.Add(time.Duration(seconds * float64(time.Second)))
}

// deliver drives the shipment to delivered through the lifecycle, stepping
// through out_for_delivery when the arrival happened while still in_transit.
func (i *Ingestor) deliver(ctx context.Context, sh *model.Shipment) error {
	if sh.Status == model.StatusInTransit {
		upd, err := i.lc.Transition(ctx, sh.ID, model.StatusOutForDelivery, model.StatusInTransit)
		if err != nil {
			return err
		}
		*sh = *upd
	}
	upd, err := i.lc.Transition(ctx, sh.ID, model.StatusDelivered, model.StatusOutForDelivery)
	if err != nil {
		return err
	}
	*sh = *upd
	return nil
}

func (i *Ingestor) shipmentLock(id string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.locks[id]
	if !ok {
		l = &sync.Mutex{}
		i.locks[id] = l
	}
	return l
}

// releaseLock drops the per-shipment mutex once the shipment is terminal.
// Late pings are rejected by the status check, so losing serialization for
// them is harmless.
func (i *Ingestor) releaseLock(id string) {
	i.mu.Lock()
	delete(i.locks, id)
	i.mu.Unlock()
}

func (i *Ingestor) record(rec metrics.TrackingRecord) {
	if err := i.sink.RecordTracking(rec); err != nil {
		i.log.Errorf("tracking metrics error: %v", err)
	}
}
