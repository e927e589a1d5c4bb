package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
)

// ErrOrderAlreadyShipped rejects an assignment referencing an order that is
// already part of another non-terminal shipment.
var ErrOrderAlreadyShipped = errors.New("order already on an active shipment")

// ErrEmptyRoute rejects a route with no orders.
var ErrEmptyRoute = errors.New("route has no orders")

// Assigner turns optimizer routes into persisted shipments. Vehicle
// availability is re-validated at assignment time; the optimizer's view may
// be stale by the time its solution reaches dispatch.
type Assigner struct {
	locks    *VehicleLocks
	store    shipment.Store
	fleet    fleet.Source
	provider distance.Provider
	log      logger.Logger
	now      func() time.Time

	// mu serializes the order uniqueness check with shipment creation.
	// The vehicle lock only guards one vehicle; without this, concurrent
	// assignments on different vehicles could both claim the same order.
	mu sync.Mutex
}

// NewAssigner creates an Assigner and subscribes to lifecycle events so
// vehicle locks are released the moment a shipment reaches a terminal
// status.
func NewAssigner(locks *VehicleLocks, store shipment.Store, fl fleet.Source, provider distance.Provider, lc *lifecycle.Lifecycle, log logger.Logger) *Assigner {
	a := &Assigner{locks: locks, store: store, fleet: fl, provider: provider, log: log, now: time.Now}
	lc.Events().SubscribeFunc(func(ev lifecycle.TransitionEvent) {
		if !ev.To.Terminal() {
			return
		}
		sh, err := store.Get(ev.ShipmentID)
		if err != nil {
			log.Errorf("lock release: shipment %s: %v", ev.ShipmentID, err)
			return
		}
		locks.Release(sh.VehicleID, sh.ID)
		log.Debugf("released vehicle %s from shipment %s", sh.VehicleID, sh.ID)
	})
	return a
}

// Assign creates a draft shipment for one optimizer route. orders must
// contain every order referenced by the route.
func (a *Assigner) Assign(ctx context.Context, r route.VehicleRoute, orders []model.Order, driverID string, departAt time.Time) (*model.Shipment, error) {
	if len(r.OrderIDs) == 0 {
		return nil, ErrEmptyRoute
	}
	byID := make(map[string]model.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	var weight, volume float64
	var items int
	for _, id := range r.OrderIDs {
		o, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("assign: order %s not in order set", id)
		}
		weight += o.WeightKg
		volume += o.VolumeM3
		items += o.Items
	}

	vehicle := r.Vehicle
	if a.fleet != nil {
		v, err := a.fleet.Vehicle(ctx, vehicle.ID)
		if err != nil {
			return nil, fmt.Errorf("assign: %w", err)
		}
		if !v.Available {
			return nil, fmt.Errorf("%w: vehicle %s reported unavailable", ErrVehicleUnavailable, v.ID)
		}
		vehicle = v
	}
	if !vehicle.CanCarry(weight, volume, items) {
		return nil, fmt.Errorf("assign: load %.1fkg/%.2fm3/%d items exceeds capacity of vehicle %s",
			weight, volume, items, vehicle.ID)
	}
	if departAt.IsZero() {
		departAt = a.now()
	}
	sh := &model.Shipment{
		ID:             uuid.NewString(),
		ShipmentNumber: model.NewShipmentNumber(a.now()),
		TrackingNumber: model.NewTrackingNumber(),
		VehicleID:      vehicle.ID,
		DriverID:       driverID,
		Status:         model.StatusDraft,
		CreatedAt:      a.now(),
	}

	if err := a.locks.Acquire(vehicle.ID, sh.ID); err != nil {
		return nil, err
	}
	stops, meters, seconds, err := a.buildStops(ctx, vehicle, r.OrderIDs, byID, departAt)
	if err != nil {
		a.locks.Release(vehicle.ID, sh.ID)
		return nil, err
	}
	sh.Stops = stops
	sh.PlannedMeters = meters
	sh.PlannedSeconds = seconds

	// Check-and-create must be atomic so an order can never land on two
	// active shipments.
	a.mu.Lock()
	if err := a.checkOrdersFree(r.OrderIDs); err != nil {
		a.mu.Unlock()
		a.locks.Release(vehicle.ID, sh.ID)
		return nil, err
	}
	if err := a.store.Create(sh); err != nil {
		a.mu.Unlock()
		a.locks.Release(vehicle.ID, sh.ID)
		return nil, fmt.Errorf("assign: persist shipment: %w", err)
	}
	a.mu.Unlock()
	a.log.Infof("shipment %s (%s): vehicle %s, %d stops, %.1f km planned",
		sh.ID, sh.ShipmentNumber, vehicle.ID, len(sh.Stops), meters/1000)
	return sh, nil
}

// AssignAll assigns every route carrying at least one order. Routes that
// fail (vehicle contention, duplicate orders) are reported per vehicle id
// without blocking the rest.
func (a *Assigner) AssignAll(ctx context.Context, sol *route.Solution, orders []model.Order, departAt time.Time) ([]*model.Shipment, map[string]error) {
	var shipments []*model.Shipment
	failures := make(map[string]error)
	for _, r := range sol.Routes {
		if len(r.OrderIDs) == 0 {
			continue
		}
		sh, err := a.Assign(ctx, r, orders, "", departAt)
		if err != nil {
			failures[r.Vehicle.ID] = err
			continue
		}
		shipments = append(shipments, sh)
	}
	return shipments, failures
}

// checkOrdersFree enforces that no requested order already belongs to a
// non-terminal shipment.
func (a *Assigner) checkOrdersFree(orderIDs []string) error {
	want := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = struct{}{}
	}
	for _, sh := range a.store.List(shipment.Filter{}) {
		if sh.Status.Terminal() {
			continue
		}
		for _, id := range sh.OrderIDs() {
			if _, clash := want[id]; clash {
				return fmt.Errorf("%w: order %s on shipment %s", ErrOrderAlreadyShipped, id, sh.ID)
			}
		}
	}
	return nil
}

// buildStops materialises the depot-anchored stop sequence. Orders sharing
// a destination collapse into a single stop.
func (a *Assigner) buildStops(ctx context.Context, vehicle model.Vehicle, orderIDs []string, byID map[string]model.Order, departAt time.Time) ([]model.RouteStop, float64, float64, error) {
	stops := []model.RouteStop{{
		Index:              0,
		Location:           vehicle.Depot,
		EstimatedArrival:   departAt,
		EstimatedDeparture: departAt,
	}}
	// Destinations collapse on the geographic point, ignoring labels.
	stopAt := make(map[[2]float64]int)

	var meters, seconds float64
	t := departAt
	prev := vehicle.Depot
	for _, id := range orderIDs {
		o := byID[id]
		key := [2]float64{o.Destination.Latitude, o.Destination.Longitude}
		if idx, seen := stopAt[key]; seen {
			stops[idx].OrderIDs = append(stops[idx].OrderIDs, id)
			continue
		}
		est, err := a.provider.Distance(ctx, prev, o.Destination)
		if err != nil {
			est, _ = distance.HaversineProvider{}.Distance(ctx, prev, o.Destination)
		}
		meters += est.Meters
		seconds += est.Seconds
		t = t.Add(time.Duration(est.Seconds * float64(time.Second)))
		stops = append(stops, model.RouteStop{
			Index:              len(stops),
			Location:           o.Destination,
			OrderIDs:           []string{id},
			EstimatedArrival:   t,
			EstimatedDeparture: t,
		})
		stopAt[key] = len(stops) - 1
		prev = o.Destination
	}

	back, err := a.provider.Distance(ctx, prev, vehicle.Depot)
	if err != nil {
		back, _ = distance.HaversineProvider{}.Distance(ctx, prev, vehicle.Depot)
	}
	meters += back.Meters
	seconds += back.Seconds
	t = t.Add(time.Duration(back.Seconds * float64(time.Second)))
	stops = append(stops, model.RouteStop{
		Index:            len(stops),
		Location:         vehicle.Depot,
		EstimatedArrival: t,
	})
	return stops, meters, seconds, nil
}
