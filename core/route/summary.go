package route

import (
	"gonum.org/v1/gonum/stat"

	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// Summary aggregates per-run statistics for reporting and metrics.
type Summary struct {
	TotalMeters     float64 `json:"total_meters"`
	TotalSeconds    float64 `json:"total_seconds"`
	VehiclesUsed    int     `json:"vehicles_used"`
	OrdersAssigned  int     `json:"orders_assigned"`
	OrdersDropped   int     `json:"orders_dropped"`
	MeanRouteMeters float64 `json:"mean_route_meters"`
	StdRouteMeters  float64 `json:"std_route_meters"`
}

// Summarize computes totals and dispersion of the per-vehicle route lengths.
func (s *Solution) Summarize() Summary {
	sum := Summary{OrdersDropped: len(s.Unassigned)}
	var lengths []float64
	for _, r := range s.Routes {
		sum.TotalMeters += r.Meters
		sum.TotalSeconds += r.Seconds
		sum.OrdersAssigned += len(r.OrderIDs)
		if len(r.OrderIDs) > 0 {
			sum.VehiclesUsed++
			lengths = append(lengths, r.Meters)
		}
	}
	if len(lengths) > 0 {
		sum.MeanRouteMeters = stat.Mean(lengths, nil)
	}
	if len(lengths) > 1 {
		sum.StdRouteMeters = stat.StdDev(lengths, nil)
	}
	return sum
}

// SuggestedVehicle proposes the lightest vehicle class able to serve the
// route, based on its planned distance and load.
func (r VehicleRoute) SuggestedVehicle() model.VehicleType {
	return model.SuggestVehicleType(r.Meters/1000, r.WeightKg)
}
