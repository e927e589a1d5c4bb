package shipment

import (
	"errors"
	"sort"
	"sync"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// ErrNotFound is returned for unknown shipment ids.
var ErrNotFound = errors.New("shipment not found")

// ErrVersionConflict signals a lost optimistic-concurrency race: the
// shipment changed since it was read. Callers reload and retry or surface
// the conflict.
var ErrVersionConflict = errors.New("shipment version conflict")

// ErrExists is returned when creating a shipment whose id is already taken.
var ErrExists = errors.New("shipment already exists")

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status    model.ShipmentStatus
	VehicleID string
}

// Store persists shipments and their tracking timelines. Updates are
// version-guarded so concurrent writers are serialized per shipment.
type Store interface {
	Create(s *model.Shipment) error
	Get(id string) (*model.Shipment, error)
	List(f Filter) []*model.Shipment
	Update(s *model.Shipment) error
	AppendEvent(id string, ev model.TrackingEvent) error
	Timeline(id string) ([]model.TrackingEvent, error)
}

// MemoryStore is the in-memory Store used in production wiring; durable
// persistence belongs to external collaborators.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]*model.Shipment
	timelines map[string][]model.TrackingEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string]*model.Shipment),
		timelines: make(map[string][]model.TrackingEvent),
	}
}

func (s *MemoryStore) Create(sh *model.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[sh.ID]; ok {
		return ErrExists
	}
	sh.Version = 1
	s.data[sh.ID] = copyShipment(sh)
	return nil
}

func (s *MemoryStore) Get(id string) (*model.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyShipment(sh), nil
}

func (s *MemoryStore) List(f Filter) []*model.Shipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Shipment
	for _, sh := range s.data {
		if f.Status != "" && sh.Status != f.Status {
			continue
		}
		if f.VehicleID != "" && sh.VehicleID != f.VehicleID {
			continue
		}
		out = append(out, copyShipment(sh))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update stores the shipment if its version still matches, then bumps the
// version on both the stored copy and the caller's.
func (s *MemoryStore) Update(sh *model.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[sh.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != sh.Version {
		return ErrVersionConflict
	}
	sh.Version++
	s.data[sh.ID] = copyShipment(sh)
	return nil
}

func (s *MemoryStore) AppendEvent(id string, ev model.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	s.timelines[id] = append(s.timelines[id], ev)
	return nil
}

func (s *MemoryStore) Timeline(id string) ([]model.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]model.TrackingEvent(nil), s.timelines[id]...), nil
}

func copyShipment(sh *model.Shipment) *model.Shipment {
	c := *sh
	c.Stops = make([]model.RouteStop, len(sh.Stops))
	for i, st := range sh.Stops {
		c.Stops[i] = st
		c.Stops[i].OrderIDs = append([]string(nil), st.OrderIDs...)
	}
	return &c
}
