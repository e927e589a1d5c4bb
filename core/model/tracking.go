package model

import "time"

// TrackingEventType classifies a tracking timeline entry.
type TrackingEventType string

const (
	EventPickup        TrackingEventType = "pickup"
	EventTransitUpdate TrackingEventType = "transit_update"
	EventArrival       TrackingEventType = "arrival"
	EventDelivery      TrackingEventType = "delivery"
	EventException     TrackingEventType = "exception"
)

// TrackingEvent is a single position report on a shipment timeline.
type TrackingEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Location  Location          `json:"location"`
	Type      TrackingEventType `json:"type"`
	Note      string            `json:"note,omitempty"`
}
