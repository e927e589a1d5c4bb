package dispatch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrVehicleUnavailable is returned when a vehicle is already bound to an
// active shipment or the fleet reports it unavailable.
var ErrVehicleUnavailable = errors.New("vehicle unavailable")

// VehicleLocks binds vehicles to shipments. Acquisition is an atomic
// compare-and-swap keyed by vehicle id with the shipment id as owner token,
// so two concurrent assignments can never double-book one vehicle.
type VehicleLocks struct {
	mu    sync.Mutex
	owner map[string]string // vehicle id -> shipment id
}

// NewVehicleLocks creates an empty registry.
func NewVehicleLocks() *VehicleLocks {
	return &VehicleLocks{owner: make(map[string]string)}
}

// Acquire binds the vehicle to the shipment. Re-acquiring with the same
// owner token is a no-op.
func (l *VehicleLocks) Acquire(vehicleID, shipmentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, held := l.owner[vehicleID]; held && holder != shipmentID {
		return fmt.Errorf("%w: vehicle %s bound to shipment %s", ErrVehicleUnavailable, vehicleID, holder)
	}
	l.owner[vehicleID] = shipmentID
	return nil
}

// Release unbinds the vehicle if the token matches the current owner.
func (l *VehicleLocks) Release(vehicleID, shipmentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner[vehicleID] == shipmentID {
		delete(l.owner, vehicleID)
	}
}

// Owner returns the shipment currently bound to the vehicle.
func (l *VehicleLocks) Owner(vehicleID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.owner[vehicleID]
	return id, ok
}
