package route

import (
	"context"
	"sort"
)

// improve runs the bounded local search over the constructed routes. Moves
// are enumerated in a fixed order (orders by ascending id, then vehicles by
// ascending id, then positions) and only strictly cost-reducing feasible
// moves are applied, so identical inputs always converge to identical
// output. Returns true when the budget expired before convergence.
func (p *problem) improve(ctx context.Context, routes [][]int) bool {
	orderSeq := make([]int, len(p.orders))
	for i := range orderSeq {
		orderSeq[i] = i
	}
	sort.Slice(orderSeq, func(a, b int) bool {
		return p.orders[orderSeq[a]].ID < p.orders[orderSeq[b]].ID
	})

	vehicleSeq := make([]int, len(p.vehicles))
	for i := range vehicleSeq {
		vehicleSeq[i] = i
	}
	sort.Slice(vehicleSeq, func(a, b int) bool {
		return p.vehicles[vehicleSeq[a]].ID < p.vehicles[vehicleSeq[b]].ID
	})

	for {
		if ctx.Err() != nil {
			return true
		}
		if p.relocatePass(ctx, routes, orderSeq, vehicleSeq) {
			continue
		}
		if ctx.Err() != nil {
			return true
		}
		if p.twoOptPass(ctx, routes, vehicleSeq) {
			continue
		}
		return ctx.Err() != nil
	}
}

// relocatePass tries to move a single order to a cheaper position in any
// route. The first strictly improving feasible move is applied.
func (p *problem) relocatePass(ctx context.Context, routes [][]int, orderSeq, vehicleSeq []int) bool {
	pos := p.positions(routes)
	for _, oi := range orderSeq {
		at, ok := pos[oi]
		if !ok {
			continue // unassigned orders stay out; capacity rejected them
		}
		if ctx.Err() != nil {
			return false
		}
		srcVi, srcPos := at.vi, at.idx
		srcSeq := routes[srcVi]
		srcWithout := removeAt(srcSeq, srcPos)
		baseCost := p.routeCost(srcVi, srcSeq)
		withoutCost := p.routeCost(srcVi, srcWithout)

		for _, dstVi := range vehicleSeq {
			dstSeq := routes[dstVi]
			if dstVi == srcVi {
				dstSeq = srcWithout
			}
			dstCost := p.routeCost(dstVi, dstSeq)
			for ip := 0; ip <= len(dstSeq); ip++ {
				if dstVi == srcVi && ip == srcPos {
					continue
				}
				cand := insertAt(dstSeq, ip, oi)
				if !p.feasible(dstVi, cand) {
					continue
				}
				var delta float64
				if dstVi == srcVi {
					delta = p.routeCost(dstVi, cand) - baseCost
				} else {
					delta = (withoutCost - baseCost) + (p.routeCost(dstVi, cand) - dstCost)
				}
				if delta < -1e-9 {
					routes[srcVi] = srcWithout
					routes[dstVi] = cand
					if dstVi == srcVi {
						routes[srcVi] = cand
					}
					return true
				}
			}
		}
	}
	return false
}

// twoOptPass reverses route segments looking for an improvement.
func (p *problem) twoOptPass(ctx context.Context, routes [][]int, vehicleSeq []int) bool {
	for _, vi := range vehicleSeq {
		seq := routes[vi]
		if len(seq) < 3 {
			continue
		}
		if ctx.Err() != nil {
			return false
		}
		base := p.routeCost(vi, seq)
		for i := 0; i < len(seq)-1; i++ {
			for j := i + 1; j < len(seq); j++ {
				cand := reverseSegment(seq, i, j)
				if p.routeCost(vi, cand)-base < -1e-9 && p.fitsWindows(vi, cand) {
					routes[vi] = cand
					return true
				}
			}
		}
	}
	return false
}

type routePos struct{ vi, idx int }

func (p *problem) positions(routes [][]int) map[int]routePos {
	pos := make(map[int]routePos)
	for vi, seq := range routes {
		for i, oi := range seq {
			pos[oi] = routePos{vi: vi, idx: i}
		}
	}
	return pos
}

func removeAt(seq []int, pos int) []int {
	out := make([]int, 0, len(seq)-1)
	out = append(out, seq[:pos]...)
	out = append(out, seq[pos+1:]...)
	return out
}

func reverseSegment(seq []int, i, j int) []int {
	out := append([]int(nil), seq...)
	for l, r := i, j; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
