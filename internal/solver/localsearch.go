package solver

import (
	"context"
	"time"
)

// improveEps is the strict-improvement threshold: a move is accepted only if
// it reduces total distance by more than this, which keeps the search
// deterministic in the face of float noise.
const improveEps = 1e-9

// DefaultMaxScans caps full move scans when the caller does not set one.
const DefaultMaxScans = 1000

// SearchStats describes one local search run.
type SearchStats struct {
	Scans            int     `json:"scans"`
	IntraRelocations int     `json:"intraRelocations"`
	InterRelocations int     `json:"interRelocations"`
	TwoOptMoves      int     `json:"twoOptMoves"`
	InitialDistM     float64 `json:"initialDistM"`
	FinalDistM       float64 `json:"finalDistM"`
}

// Improve runs first-improvement local search over intra-route relocation,
// inter-route relocation and 2-opt segment reversal, in that scan order.
// The first move that strictly reduces total distance while keeping every
// touched route feasible is applied, and the scan restarts. It terminates at
// whichever comes first of a local optimum, the scan cap, the deadline, or
// context cancellation. The input solution is not mutated; the search never
// accepts an infeasible solution and never returns a worse one.
func Improve(ctx context.Context, p *Problem, sol Solution, b Budget) (Solution, SearchStats, bool) {
	orders := make([][]int, len(sol.Routes))
	for i, r := range sol.Routes {
		orders[i] = append([]int(nil), r.Order...)
	}
	dists := make([]float64, len(orders))
	for vi := range orders {
		dists[vi] = routeDistance(p, p.Vehicles[vi], orders[vi])
	}
	total := 0.0
	for _, d := range dists {
		total += d
	}

	stats := SearchStats{InitialDistM: total}
	maxScans := b.MaxScans
	if maxScans <= 0 {
		maxScans = DefaultMaxScans
	}
	var deadline time.Time
	if b.TimeLimit > 0 {
		deadline = time.Now().Add(b.TimeLimit)
	}

	stopped := false
	for {
		if stats.Scans >= maxScans {
			stopped = true
			break
		}
		if ctx.Err() != nil {
			stopped = true
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			stopped = true
			break
		}
		stats.Scans++
		moved := scanIntraRelocate(p, orders, dists, &total, &stats) ||
			scanInterRelocate(p, orders, dists, &total, &stats) ||
			scanTwoOpt(p, orders, dists, &total, &stats)
		if !moved {
			break // local optimum
		}
	}

	out := Solution{
		Routes:     make([]Route, len(orders)),
		Unassigned: sol.Unassigned,
		Degraded:   stopped,
	}
	for vi, ord := range orders {
		out.Routes[vi] = Route{VehicleID: p.Vehicles[vi].ID, Order: ord}
	}
	stats.FinalDistM = total
	return out, stats, stopped
}

// scanIntraRelocate moves one stop to a different position within its own
// route.
func scanIntraRelocate(p *Problem, orders [][]int, dists []float64, total *float64, stats *SearchStats) bool {
	for vi := range orders {
		ord := orders[vi]
		n := len(ord)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				// j == i+1 lands the stop back where it was after the
				// removal shift, so both are no-ops.
				if j == i || j == i+1 {
					continue
				}
				cand := relocateWithin(ord, i, j)
				d := routeDistance(p, p.Vehicles[vi], cand)
				if d+improveEps >= dists[vi] {
					continue
				}
				if !routeFeasible(p, p.Vehicles[vi], cand) {
					continue
				}
				*total += d - dists[vi]
				orders[vi] = cand
				dists[vi] = d
				stats.IntraRelocations++
				return true
			}
		}
	}
	return false
}

// scanInterRelocate moves one stop from one vehicle's route to another's.
func scanInterRelocate(p *Problem, orders [][]int, dists []float64, total *float64, stats *SearchStats) bool {
	for va := range orders {
		for vb := range orders {
			if vb == va {
				continue
			}
			for i := 0; i < len(orders[va]); i++ {
				for j := 0; j <= len(orders[vb]); j++ {
					candA := removeAt(orders[va], i)
					candB := insertAt(orders[vb], j, orders[va][i])
					dA := routeDistance(p, p.Vehicles[va], candA)
					dB := routeDistance(p, p.Vehicles[vb], candB)
					if dA+dB+improveEps >= dists[va]+dists[vb] {
						continue
					}
					if !routeFeasible(p, p.Vehicles[vb], candB) || !routeFeasible(p, p.Vehicles[va], candA) {
						continue
					}
					*total += dA + dB - dists[va] - dists[vb]
					orders[va], orders[vb] = candA, candB
					dists[va], dists[vb] = dA, dB
					stats.InterRelocations++
					return true
				}
			}
		}
	}
	return false
}

// scanTwoOpt reverses a contiguous sub-sequence within a route.
func scanTwoOpt(p *Problem, orders [][]int, dists []float64, total *float64, stats *SearchStats) bool {
	for vi := range orders {
		ord := orders[vi]
		n := len(ord)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := reverseSegment(ord, i, k)
				d := routeDistance(p, p.Vehicles[vi], cand)
				if d+improveEps >= dists[vi] {
					continue
				}
				if !routeFeasible(p, p.Vehicles[vi], cand) {
					continue
				}
				*total += d - dists[vi]
				orders[vi] = cand
				dists[vi] = d
				stats.TwoOptMoves++
				return true
			}
		}
	}
	return false
}

func removeAt(ord []int, i int) []int {
	out := make([]int, 0, len(ord)-1)
	out = append(out, ord[:i]...)
	return append(out, ord[i+1:]...)
}

func insertAt(ord []int, j, stop int) []int {
	out := make([]int, 0, len(ord)+1)
	out = append(out, ord[:j]...)
	out = append(out, stop)
	return append(out, ord[j:]...)
}

func relocateWithin(ord []int, i, j int) []int {
	stop := ord[i]
	tmp := removeAt(ord, i)
	if i < j {
		j-- // removal shifted the target slot left
	}
	return insertAt(tmp, j, stop)
}

func reverseSegment(ord []int, i, k int) []int {
	out := append([]int(nil), ord...)
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}
