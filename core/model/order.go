package model

import "time"

// Priority reflects the delivery urgency tier of an order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// TimeWindow bounds the allowed delivery time of an order. A zero Start or
// End means the corresponding side is unconstrained.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// IsZero reports whether no window is set at all.
func (w TimeWindow) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Contains reports whether t satisfies the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Order is a ready-to-ship order as provided by the order-management
// collaborator. The dispatch core never mutates it.
type Order struct {
	ID          string     `json:"id"`
	Destination Location   `json:"destination"`
	WeightKg    float64    `json:"weight_kg"`
	VolumeM3    float64    `json:"volume_m3"`
	Items       int        `json:"items"`
	Window      TimeWindow `json:"window,omitempty"`
	Priority    Priority   `json:"priority"`
}
