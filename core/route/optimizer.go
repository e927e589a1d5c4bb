package route

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Klodi1379/LogiSys-Pro/core/distance"
	"github.com/Klodi1379/LogiSys-Pro/core/model"
)

// VehicleRoute is an ordered delivery sequence for one vehicle.
type VehicleRoute struct {
	Vehicle  model.Vehicle `json:"vehicle"`
	OrderIDs []string      `json:"order_ids"`
	Meters   float64       `json:"meters"`
	Seconds  float64       `json:"seconds"`
	WeightKg float64       `json:"weight_kg"`
	VolumeM3 float64       `json:"volume_m3"`
	Items    int           `json:"items"`
}

// Solution is the optimizer output. Routes are sorted by vehicle id and
// Unassigned lists the order ids no vehicle could serve, sorted ascending.
type Solution struct {
	Routes      []VehicleRoute `json:"routes"`
	Unassigned  []string       `json:"unassigned"`
	Cost        float64        `json:"cost"`
	TimedOut    bool           `json:"timed_out"`
	Approximate bool           `json:"approximate"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Optimizer turns orders, vehicles and a distance matrix into
// capacity-feasible sequenced routes.
type Optimizer struct {
	cfg Config
}

// NewOptimizer creates an Optimizer with defaults applied.
func NewOptimizer(cfg Config) *Optimizer {
	cfg.SetDefaults()
	return &Optimizer{cfg: cfg}
}

// Locations returns the canonical location layout expected by Optimize: one
// depot per vehicle first, then each order destination, both in input order.
func Locations(orders []model.Order, vehicles []model.Vehicle) []model.Location {
	locs := make([]model.Location, 0, len(vehicles)+len(orders))
	for _, v := range vehicles {
		locs = append(locs, v.Depot)
	}
	for _, o := range orders {
		locs = append(locs, o.Destination)
	}
	return locs
}

// Optimize runs construction then bounded local search. It never returns an
// empty result on cancellation or budget expiry: the best solution found so
// far is returned with TimedOut set.
func (o *Optimizer) Optimize(ctx context.Context, orders []model.Order, vehicles []model.Vehicle, matrix *distance.Matrix, budget time.Duration) (*Solution, error) {
	start := time.Now()
	if len(vehicles) == 0 && len(orders) > 0 {
		return nil, errors.New("optimize: no vehicles in pool")
	}
	if matrix.Len() != len(vehicles)+len(orders) {
		return nil, errors.New("optimize: matrix does not cover depots and destinations")
	}
	if len(orders) == 0 {
		sol := &Solution{Elapsed: time.Since(start), Approximate: matrix.Approximate}
		for _, v := range vehicles {
			sol.Routes = append(sol.Routes, VehicleRoute{Vehicle: v, OrderIDs: []string{}})
		}
		sortRoutes(sol.Routes)
		return sol, nil
	}

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	p := newProblem(o.cfg, orders, vehicles, matrix)
	routes, unassigned := p.construct(ctx)

	// Expiry during construction left orders unassigned; a converged
	// improvement pass must not be re-flagged by a later ctx check.
	timedOut := ctx.Err() != nil
	if o.cfg.Improvement != ImprovementNone {
		timedOut = p.improve(ctx, routes) || timedOut
	}

	return p.solution(routes, unassigned, timedOut, time.Since(start)), nil
}

// problem holds the per-run optimization state. Matrix index of vehicle i is
// i; matrix index of order j is len(vehicles)+j.
type problem struct {
	cfg      Config
	orders   []model.Order
	vehicles []model.Vehicle
	matrix   *distance.Matrix
	departAt time.Time
}

func newProblem(cfg Config, orders []model.Order, vehicles []model.Vehicle, matrix *distance.Matrix) *problem {
	depart := cfg.DepartAt
	if depart.IsZero() {
		depart = time.Now()
	}
	return &problem{cfg: cfg, orders: orders, vehicles: vehicles, matrix: matrix, departAt: depart}
}

func (p *problem) orderNode(orderIdx int) int { return len(p.vehicles) + orderIdx }

// routeMetrics computes total meters and seconds for the depot-anchored
// sequence of order indices.
func (p *problem) routeMetrics(vi int, seq []int) (meters, seconds float64) {
	if len(seq) == 0 {
		return 0, 0
	}
	prev := vi
	for _, oi := range seq {
		n := p.orderNode(oi)
		meters += p.matrix.Meters(prev, n)
		seconds += p.matrix.Seconds(prev, n)
		prev = n
	}
	meters += p.matrix.Meters(prev, vi)
	seconds += p.matrix.Seconds(prev, vi)
	return meters, seconds
}

func (p *problem) routeCost(vi int, seq []int) float64 {
	m, s := p.routeMetrics(vi, seq)
	return p.cfg.DistanceWeight*m + p.cfg.DurationWeight*s
}

func (p *problem) totalCost(routes [][]int, unassigned int) float64 {
	cost := p.cfg.UnassignedPenalty * float64(unassigned)
	for vi, seq := range routes {
		cost += p.routeCost(vi, seq)
	}
	return cost
}

// routeLoad sums the demand of a sequence.
func (p *problem) routeLoad(seq []int) (weight, volume float64, items int) {
	for _, oi := range seq {
		o := p.orders[oi]
		weight += o.WeightKg
		volume += o.VolumeM3
		items += o.Items
	}
	return
}

// fitsCapacity reports whether the sequence respects the vehicle capacity.
func (p *problem) fitsCapacity(vi int, seq []int) bool {
	w, vol, items := p.routeLoad(seq)
	return p.vehicles[vi].CanCarry(w, vol, items)
}

// fitsWindows walks the schedule and checks each order's delivery window.
func (p *problem) fitsWindows(vi int, seq []int) bool {
	t := p.departAt
	prev := vi
	for _, oi := range seq {
		n := p.orderNode(oi)
		t = t.Add(time.Duration(p.matrix.Seconds(prev, n) * float64(time.Second)))
		if w := p.orders[oi].Window; !w.IsZero() && !w.Contains(t) {
			return false
		}
		prev = n
	}
	return true
}

func (p *problem) feasible(vi int, seq []int) bool {
	return p.fitsCapacity(vi, seq) && p.fitsWindows(vi, seq)
}

// construct runs cheapest insertion. Orders are visited urgent-first with
// the order id as tie-break, and vehicles in ascending id order so a cost
// tie always resolves to the lowest vehicle id. Identical inputs build
// identical routes.
func (p *problem) construct(ctx context.Context) (routes [][]int, unassigned []int) {
	routes = make([][]int, len(p.vehicles))

	ordering := make([]int, len(p.orders))
	for i := range ordering {
		ordering[i] = i
	}
	sort.Slice(ordering, func(a, b int) bool {
		oa, ob := p.orders[ordering[a]], p.orders[ordering[b]]
		if oa.Priority != ob.Priority {
			return oa.Priority > ob.Priority
		}
		return oa.ID < ob.ID
	})

	vehicleSeq := make([]int, len(p.vehicles))
	for i := range vehicleSeq {
		vehicleSeq[i] = i
	}
	sort.Slice(vehicleSeq, func(a, b int) bool {
		return p.vehicles[vehicleSeq[a]].ID < p.vehicles[vehicleSeq[b]].ID
	})

	for _, oi := range ordering {
		if ctx.Err() != nil {
			unassigned = append(unassigned, oi)
			continue
		}
		bestVi, bestPos, bestDelta := -1, -1, 0.0
		for _, vi := range vehicleSeq {
			if !p.vehicles[vi].Available {
				continue
			}
			seq := routes[vi]
			for pos := 0; pos <= len(seq); pos++ {
				cand := insertAt(seq, pos, oi)
				if !p.feasible(vi, cand) {
					continue
				}
				delta := p.insertionDelta(vi, seq, pos, oi)
				if bestVi == -1 || delta < bestDelta {
					bestVi, bestPos, bestDelta = vi, pos, delta
				}
			}
		}
		if bestVi == -1 {
			unassigned = append(unassigned, oi)
			continue
		}
		routes[bestVi] = insertAt(routes[bestVi], bestPos, oi)
	}
	return routes, unassigned
}

// insertionDelta is the extra distance of inserting order oi at pos.
func (p *problem) insertionDelta(vi int, seq []int, pos, oi int) float64 {
	n := p.orderNode(oi)
	prev := vi
	if pos > 0 {
		prev = p.orderNode(seq[pos-1])
	}
	next := vi
	if pos < len(seq) {
		next = p.orderNode(seq[pos])
	}
	return p.matrix.Meters(prev, n) + p.matrix.Meters(n, next) - p.matrix.Meters(prev, next)
}

func insertAt(seq []int, pos, v int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, v)
	out = append(out, seq[pos:]...)
	return out
}

// solution assembles the public result from internal route state.
func (p *problem) solution(routes [][]int, unassigned []int, timedOut bool, elapsed time.Duration) *Solution {
	sol := &Solution{
		TimedOut:    timedOut,
		Approximate: p.matrix.Approximate,
		Elapsed:     elapsed,
	}
	for vi, seq := range routes {
		r := VehicleRoute{Vehicle: p.vehicles[vi], OrderIDs: make([]string, 0, len(seq))}
		for _, oi := range seq {
			r.OrderIDs = append(r.OrderIDs, p.orders[oi].ID)
		}
		r.Meters, r.Seconds = p.routeMetrics(vi, seq)
		r.WeightKg, r.VolumeM3, r.Items = p.routeLoad(seq)
		sol.Routes = append(sol.Routes, r)
	}
	sortRoutes(sol.Routes)
	for _, oi := range unassigned {
		sol.Unassigned = append(sol.Unassigned, p.orders[oi].ID)
	}
	sort.Strings(sol.Unassigned)
	sol.Cost = p.totalCost(routes, len(unassigned))
	return sol
}

func sortRoutes(routes []VehicleRoute) {
	sort.Slice(routes, func(i, j int) bool { return routes[i].Vehicle.ID < routes[j].Vehicle.ID })
}
