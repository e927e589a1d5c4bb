package route

import "time"

// ConstructionHeuristic selects the phase-one route construction algorithm.
type ConstructionHeuristic int

const (
	// CheapestInsertion inserts each order at the position across all
	// vehicles that adds the least extra distance.
	CheapestInsertion ConstructionHeuristic = iota
)

// ImprovementHeuristic selects the phase-two local search.
type ImprovementHeuristic int

const (
	// TwoOptRelocate runs 2-opt segment reversals within routes and order
	// relocations within and across routes.
	TwoOptRelocate ImprovementHeuristic = iota
	// ImprovementNone skips the local search phase.
	ImprovementNone
)

// Config tunes the optimizer. Zero values fall back to defaults.
type Config struct {
	Construction ConstructionHeuristic `json:"construction"`
	Improvement  ImprovementHeuristic  `json:"improvement"`

	// DistanceWeight and DurationWeight combine meters and seconds into the
	// cost objective.
	DistanceWeight float64 `json:"distance_weight"`
	DurationWeight float64 `json:"duration_weight"`

	// UnassignedPenalty is charged per order left out of the solution so the
	// optimizer prefers serving more orders over shorter routes.
	UnassignedPenalty float64 `json:"unassigned_penalty"`

	// DepartAt anchors time-window feasibility checks. Zero means windows
	// are evaluated against the construction start time.
	DepartAt time.Time `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DistanceWeight == 0 {
		c.DistanceWeight = 1
	}
	if c.DurationWeight == 0 {
		c.DurationWeight = 0.1
	}
	if c.UnassignedPenalty == 0 {
		c.UnassignedPenalty = 1e7
	}
}
