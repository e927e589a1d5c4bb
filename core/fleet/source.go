package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// Source exposes the fleet-management collaborator's vehicle view.
type Source interface {
	Vehicle(ctx context.Context, id string) (model.Vehicle, error)
	Vehicles(ctx context.Context, ids []string) ([]model.Vehicle, error)
}

// OrderSource exposes the order-management collaborator's ready-to-ship
// orders.
type OrderSource interface {
	Orders(ctx context.Context, ids []string) ([]model.Order, error)
}

// MemorySource is an in-process Source/OrderSource fed by configuration or
// the API. Production deployments would back it with the collaborator
// services.
type MemorySource struct {
	mu       sync.RWMutex
	vehicles map[string]model.Vehicle
	orders   map[string]model.Order
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		vehicles: make(map[string]model.Vehicle),
		orders:   make(map[string]model.Order),
	}
}

// PutVehicle registers or replaces a vehicle.
func (s *MemorySource) PutVehicle(v model.Vehicle) {
	s.mu.Lock()
	s.vehicles[v.ID] = v
	s.mu.Unlock()
}

// PutOrder registers or replaces an order.
func (s *MemorySource) PutOrder(o model.Order) {
	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
}

// SetVehicleAvailable flips the availability flag of a vehicle.
func (s *MemorySource) SetVehicleAvailable(id string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return fmt.Errorf("fleet: unknown vehicle %s", id)
	}
	v.Available = available
	s.vehicles[id] = v
	return nil
}

func (s *MemorySource) Vehicle(_ context.Context, id string) (model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("fleet: unknown vehicle %s", id)
	}
	return v, nil
}

func (s *MemorySource) Vehicles(ctx context.Context, ids []string) ([]model.Vehicle, error) {
	out := make([]model.Vehicle, 0, len(ids))
	for _, id := range ids {
		v, err := s.Vehicle(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *MemorySource) Orders(_ context.Context, ids []string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		o, ok := s.orders[id]
		if !ok {
			return nil, fmt.Errorf("fleet: unknown order %s", id)
		}
		out = append(out, o)
	}
	return out, nil
}
