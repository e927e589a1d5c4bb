package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShipmentStatus is the lifecycle state of a shipment. Transitions between
// statuses go through the lifecycle state machine, never by direct mutation.
type ShipmentStatus string

const (
	StatusDraft          ShipmentStatus = "draft"
	StatusReadyForPickup ShipmentStatus = "ready_for_pickup"
	StatusInTransit      ShipmentStatus = "in_transit"
	StatusOutForDelivery ShipmentStatus = "out_for_delivery"
	StatusDelivered      ShipmentStatus = "delivered"
	StatusFailedDelivery ShipmentStatus = "failed_delivery"
	StatusReturned       ShipmentStatus = "returned"
	StatusCancelled      ShipmentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s ShipmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// Valid reports whether s is a known status value.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReadyForPickup, StatusInTransit, StatusOutForDelivery,
		StatusDelivered, StatusFailedDelivery, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// RouteStop is one point on a shipment route. Index 0 is the depot
// departure; the final stop returns to the depot.
type RouteStop struct {
	Index              int       `json:"index"`
	Location           Location  `json:"location"`
	OrderIDs           []string  `json:"order_ids,omitempty"`
	EstimatedArrival   time.Time `json:"estimated_arrival,omitempty"`
	EstimatedDeparture time.Time `json:"estimated_departure,omitempty"`
	ActualArrival      time.Time `json:"actual_arrival,omitempty"`
}

// Shipment binds a vehicle and driver to an ordered stop sequence and tracks
// its delivery lifecycle.
type Shipment struct {
	ID             string         `json:"id"`
	ShipmentNumber string         `json:"shipment_number"`
	TrackingNumber string         `json:"tracking_number"`
	VehicleID      string         `json:"vehicle_id"`
	DriverID       string         `json:"driver_id,omitempty"`
	Stops          []RouteStop    `json:"stops"`
	Status         ShipmentStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	DispatchedAt   time.Time      `json:"dispatched_at,omitempty"`
	DeliveredAt    time.Time      `json:"delivered_at,omitempty"`
	PlannedMeters  float64        `json:"planned_meters"`
	PlannedSeconds float64        `json:"planned_seconds"`

	// Live tracking state maintained by the ingestor.
	CurrentPosition Location  `json:"current_position,omitempty"`
	LastEventAt     time.Time `json:"last_event_at,omitempty"`
	ETA             time.Time `json:"eta,omitempty"`

	// Version guards optimistic concurrent updates.
	Version int64 `json:"version"`
}

// OrderIDs returns all order ids referenced by the shipment stops.
func (s *Shipment) OrderIDs() []string {
	var ids []string
	for _, st := range s.Stops {
		ids = append(ids, st.OrderIDs...)
	}
	return ids
}

// NextUnvisitedStop returns the first stop without a recorded arrival,
// skipping the depot departure at index 0. ok is false when every stop has
// been visited.
func (s *Shipment) NextUnvisitedStop() (RouteStop, bool) {
	for _, st := range s.Stops[1:] {
		if st.ActualArrival.IsZero() {
			return st, true
		}
	}
	return RouteStop{}, false
}

// NewShipmentNumber generates a shipment number in the transport
// collaborator's format, e.g. SHP-20250102-AB12CD34.
func NewShipmentNumber(now time.Time) string {
	return fmt.Sprintf("SHP-%s-%s", now.Format("20060102"),
		strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
}

// NewTrackingNumber generates a customer-facing tracking number, e.g.
// TRK0F47AC10B58C.
func NewTrackingNumber() string {
	return "TRK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
