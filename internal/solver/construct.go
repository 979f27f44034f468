package solver

import "math"

// Construct builds an initial solution with greedy nearest-stop appends:
// vehicles take turns (in input order) appending the nearest unassigned stop
// whose addition keeps the route feasible, until no vehicle can legally take
// another stop. Ties in nearest-distance comparisons go to the lowest stop
// ID, so the output is deterministic. O(V·S²).
func Construct(p *Problem) Solution {
	type state struct {
		cur   int     // current end node, -1 before a depot-less first stop
		clock float64 // seconds since shift start
		load  float64
	}

	states := make([]state, len(p.Vehicles))
	routes := make([]Route, len(p.Vehicles))
	for vi, v := range p.Vehicles {
		routes[vi] = Route{VehicleID: v.ID}
		states[vi] = state{cur: v.StartNode}
		if v.Shift != nil {
			states[vi].clock = v.Shift.EarliestSec
		}
	}

	assigned := make([]bool, len(p.Stops))
	remaining := len(p.Stops)

	// feasibleAppend checks the candidate against the route's running load
	// and clock; appending never disturbs stops already placed.
	feasibleAppend := func(vi, si int) (arrival float64, ok bool) {
		v := p.Vehicles[vi]
		st := p.Stops[si]
		s := states[vi]
		if v.Capacity > 0 && s.load+st.Demand > v.Capacity {
			return 0, false
		}
		t := s.clock
		if s.cur >= 0 {
			t += p.Matrix.At(s.cur, st.Node).DurSec
		}
		if st.Window != nil {
			if t < st.Window.EarliestSec {
				t = st.Window.EarliestSec
			}
			if t > st.Window.LatestSec {
				return 0, false
			}
		}
		if v.Shift != nil {
			end := t + st.ServiceSec
			if v.EndNode >= 0 {
				end += p.Matrix.At(st.Node, v.EndNode).DurSec
			}
			if end > v.Shift.LatestSec {
				return 0, false
			}
		}
		return t, true
	}

	for remaining > 0 {
		progress := false
		for vi := range p.Vehicles {
			bestStop := -1
			bestDist := math.MaxFloat64
			bestArr := 0.0
			for si, st := range p.Stops {
				if assigned[si] {
					continue
				}
				d := 0.0
				if states[vi].cur >= 0 {
					d = p.Matrix.At(states[vi].cur, st.Node).DistM
				}
				if d > bestDist {
					continue
				}
				if d == bestDist && bestStop >= 0 && st.ID >= p.Stops[bestStop].ID {
					continue
				}
				arr, ok := feasibleAppend(vi, si)
				if !ok {
					continue
				}
				bestStop, bestDist, bestArr = si, d, arr
			}
			if bestStop < 0 {
				continue
			}
			st := p.Stops[bestStop]
			routes[vi].Order = append(routes[vi].Order, bestStop)
			states[vi].cur = st.Node
			states[vi].clock = bestArr + st.ServiceSec
			states[vi].load += st.Demand
			assigned[bestStop] = true
			remaining--
			progress = true
		}
		if !progress {
			break
		}
	}

	// Reported reason for a leftover stop: CapacityExceeded when no vehicle
	// has residual capacity for its demand, otherwise the blocker was a time
	// window.
	reason := func(si int) Reason {
		st := p.Stops[si]
		for vi, v := range p.Vehicles {
			if v.Capacity <= 0 || states[vi].load+st.Demand <= v.Capacity {
				return ReasonTimeWindowViolated
			}
		}
		return ReasonCapacityExceeded
	}

	sol := Solution{Routes: routes}
	for si := range p.Stops {
		if assigned[si] {
			continue
		}
		sol.Unassigned = append(sol.Unassigned, Unassigned{Stop: si, Reason: reason(si)})
	}
	return sol
}
