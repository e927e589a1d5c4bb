package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/fleet"
	"github.com/Klodi1379/LogiSys-Pro/core/lifecycle"
	"github.com/Klodi1379/LogiSys-Pro/core/logger"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
	"github.com/Klodi1379/LogiSys-Pro/core/route"
	"github.com/Klodi1379/LogiSys-Pro/core/shipment"
	"github.com/Klodi1379/LogiSys-Pro/internal/eventbus"
)

var testDepot = model.Location{Latitude: 41.3275, Longitude: 19.8187, Label: "depot"}

type assignerFixture struct {
	assigner *Assigner
	locks    *VehicleLocks
	store    *shipment.MemoryStore
	source   *fleet.MemorySource
	lc       *lifecycle.Lifecycle
}

func newFixture(t *testing.T) *assignerFixture {
	t.Helper()
	store := shipment.NewMemoryStore()
	source := fleet.NewMemorySource()
	for _, id := range []string{"v1", "v2"} {
		source.PutVehicle(model.Vehicle{
			ID: id, Type: model.VehicleVan, Available: true, Depot: testDepot,
			Capacity: model.Capacity{MaxWeightKg: 100, MaxVolumeM3: 5, MaxItems: 10},
		})
	}
	locks := NewVehicleLocks()
	bus := eventbus.New[lifecycle.TransitionEvent]()
	lc := lifecycle.New(store, source, bus, logger.Nop{}, nil)
	a := NewAssigner(locks, store, source, distance.HaversineProvider{SpeedKmh: 50}, lc, logger.Nop{})
	return &assignerFixture{assigner: a, locks: locks, store: store, source: source, lc: lc}
}

func fixtureOrders() []model.Order {
	return []model.Order{
		{ID: "o1", Destination: model.Location{Latitude: 41.3350, Longitude: 19.8250}, WeightKg: 20, VolumeM3: 0.5, Items: 2},
		{ID: "o2", Destination: model.Location{Latitude: 41.3400, Longitude: 19.8300}, WeightKg: 30, VolumeM3: 0.5, Items: 1},
	}
}

func fixtureRoute(vehicleID string, orderIDs ...string) route.VehicleRoute {
	return route.VehicleRoute{
		Vehicle: model.Vehicle{
			ID: vehicleID, Type: model.VehicleVan, Available: true, Depot: testDepot,
			Capacity: model.Capacity{MaxWeightKg: 100, MaxVolumeM3: 5, MaxItems: 10},
		},
		OrderIDs: orderIDs,
	}
}

func TestAssignCreatesDraftShipment(t *testing.T) {
	f := newFixture(t)
	departAt := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	sh, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1", "o2"), fixtureOrders(), "driver-7", departAt)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if sh.Status != model.StatusDraft {
		t.Fatalf("expected draft got %s", sh.Status)
	}
	if sh.VehicleID != "v1" || sh.DriverID != "driver-7" {
		t.Fatalf("unexpected binding %+v", sh)
	}
	if len(sh.Stops) != 4 {
		t.Fatalf("expected depot + 2 stops + return, got %d", len(sh.Stops))
	}
	if !sh.Stops[0].Location.SamePoint(testDepot) || !sh.Stops[3].Location.SamePoint(testDepot) {
		t.Fatalf("route must start and end at the depot")
	}
	if sh.PlannedMeters <= 0 || sh.PlannedSeconds <= 0 {
		t.Fatalf("planned metrics should be positive")
	}
	for i := 1; i < len(sh.Stops); i++ {
		if sh.Stops[i].EstimatedArrival.Before(sh.Stops[i-1].EstimatedArrival) {
			t.Fatalf("ETAs must be non-decreasing along the route")
		}
	}
	if owner, ok := f.locks.Owner("v1"); !ok || owner != sh.ID {
		t.Fatalf("vehicle lock not held by shipment")
	}
	stored, err := f.store.Get(sh.ID)
	if err != nil {
		t.Fatalf("shipment not persisted: %v", err)
	}
	if stored.ShipmentNumber == "" || stored.TrackingNumber == "" {
		t.Fatalf("expected shipment and tracking numbers")
	}
}

func TestAssignEmptyRoute(t *testing.T) {
	f := newFixture(t)
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1"), nil, "", time.Time{}); !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute got %v", err)
	}
}

func TestAssignUnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "ghost"), fixtureOrders(), "", time.Time{}); err == nil {
		t.Fatalf("expected error for order not in set")
	}
}

func TestAssignRevalidatesFleetAvailability(t *testing.T) {
	f := newFixture(t)
	if err := f.source.SetVehicleAvailable("v1", false); err != nil {
		t.Fatalf("set available: %v", err)
	}
	_, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1"), fixtureOrders(), "", time.Time{})
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Fatalf("expected ErrVehicleUnavailable got %v", err)
	}
}

func TestAssignRejectsOverCapacity(t *testing.T) {
	f := newFixture(t)
	heavy := []model.Order{{ID: "o1", Destination: model.Location{Latitude: 41.34, Longitude: 19.83}, WeightKg: 500, Items: 1}}
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1"), heavy, "", time.Time{}); err == nil {
		t.Fatalf("expected capacity error")
	}
}

func TestAssignRejectsLockedVehicle(t *testing.T) {
	f := newFixture(t)
	orders := fixtureOrders()
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1"), orders, "", time.Time{}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o2"), orders, "", time.Time{})
	if !errors.Is(err, ErrVehicleUnavailable) {
		t.Fatalf("expected ErrVehicleUnavailable got %v", err)
	}
}

func TestAssignRejectsOrderOnActiveShipment(t *testing.T) {
	f := newFixture(t)
	orders := fixtureOrders()
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1"), orders, "", time.Time{}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	_, err := f.assigner.Assign(context.Background(), fixtureRoute("v2", "o1"), orders, "", time.Time{})
	if !errors.Is(err, ErrOrderAlreadyShipped) {
		t.Fatalf("expected ErrOrderAlreadyShipped got %v", err)
	}
}

// slowProvider stretches the stop-building window so concurrent assigns
// overlap.
type slowProvider struct{ delay time.Duration }

func (p slowProvider) Distance(ctx context.Context, a, b model.Location) (distance.Estimate, error) {
	time.Sleep(p.delay)
	return distance.HaversineProvider{SpeedKmh: 50}.Distance(ctx, a, b)
}

func TestAssignConcurrentOrderUniqueness(t *testing.T) {
	f := newFixture(t)
	slow := NewAssigner(f.locks, f.store, f.source, slowProvider{delay: 20 * time.Millisecond}, f.lc, logger.Nop{})
	orders := fixtureOrders()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, vid := range []string{"v1", "v2"} {
		wg.Add(1)
		go func(vid string) {
			defer wg.Done()
			_, err := slow.Assign(context.Background(), fixtureRoute(vid, "o1"), orders, "", time.Time{})
			errs <- err
		}(vid)
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrOrderAlreadyShipped):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d rejections", succeeded, rejected)
	}

	active := 0
	for _, sh := range f.store.List(shipment.Filter{}) {
		if sh.Status.Terminal() {
			continue
		}
		for _, id := range sh.OrderIDs() {
			if id == "o1" {
				active++
			}
		}
	}
	if active != 1 {
		t.Fatalf("order o1 on %d active shipments, want 1", active)
	}
}

func TestAssignCollapsesSharedDestination(t *testing.T) {
	f := newFixture(t)
	dest := model.Location{Latitude: 41.3350, Longitude: 19.8250}
	orders := []model.Order{
		{ID: "o1", Destination: dest, WeightKg: 10, Items: 1},
		{ID: "o2", Destination: model.Location{Latitude: dest.Latitude, Longitude: dest.Longitude, Label: "unit 2"}, WeightKg: 10, Items: 1},
	}
	sh, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1", "o2"), orders, "", time.Time{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(sh.Stops) != 3 {
		t.Fatalf("shared destination should collapse to one stop, got %d stops", len(sh.Stops))
	}
	if len(sh.Stops[1].OrderIDs) != 2 {
		t.Fatalf("collapsed stop should carry both orders, got %v", sh.Stops[1].OrderIDs)
	}
}

func TestTerminalTransitionReleasesLock(t *testing.T) {
	f := newFixture(t)
	sh, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o1"), fixtureOrders(), "", time.Time{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.lc.Transition(context.Background(), sh.ID, model.StatusCancelled, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, held := f.locks.Owner("v1"); held {
		t.Fatalf("terminal transition should release the vehicle lock")
	}
	// The vehicle is immediately assignable again.
	if _, err := f.assigner.Assign(context.Background(), fixtureRoute("v1", "o2"), fixtureOrders(), "", time.Time{}); err != nil {
		t.Fatalf("reassign after release: %v", err)
	}
}

func TestAssignAllReportsPerVehicleFailures(t *testing.T) {
	f := newFixture(t)
	orders := fixtureOrders()
	// v2 is already bound to another shipment.
	if err := f.locks.Acquire("v2", "other-shipment"); err != nil {
		t.Fatalf("pre-lock: %v", err)
	}
	sol := &route.Solution{Routes: []route.VehicleRoute{
		fixtureRoute("v1", "o1"),
		fixtureRoute("v2", "o2"),
		fixtureRoute("v3"), // empty, skipped
	}}
	shipments, failures := f.assigner.AssignAll(context.Background(), sol, orders, time.Time{})
	if len(shipments) != 1 || shipments[0].VehicleID != "v1" {
		t.Fatalf("expected one shipment for v1, got %+v", shipments)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one failure got %d", len(failures))
	}
	if !errors.Is(failures["v2"], ErrVehicleUnavailable) {
		t.Fatalf("expected v2 failure, got %v", failures["v2"])
	}
}
