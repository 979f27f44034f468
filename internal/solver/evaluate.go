package solver

// RouteMetrics are the derived attributes of one route: totals, the
// cumulative load after each position, the arrival time at each position,
// and whether any capacity or time-window constraint is violated.
type RouteMetrics struct {
	DistM       float64
	DurSec      float64
	Load        float64
	PrefixLoads []float64
	ArrivalsSec []float64
	Feasible    bool
}

// SolutionMetrics aggregates route metrics over a whole solution.
type SolutionMetrics struct {
	Routes      []RouteMetrics
	TotalDistM  float64
	TotalDurSec float64
	Feasible    bool
}

// EvaluateRoute scores one vehicle's stop order. Pure: it never mutates the
// problem or the order. Arrival times accumulate travel, waiting for window
// opens, and service durations from the start of the vehicle's shift.
func EvaluateRoute(p *Problem, v Vehicle, order []int) RouteMetrics {
	m := RouteMetrics{
		Feasible:    true,
		PrefixLoads: make([]float64, len(order)),
		ArrivalsSec: make([]float64, len(order)),
	}
	if len(order) == 0 {
		return m
	}

	start := 0.0
	if v.Shift != nil {
		start = v.Shift.EarliestSec
	}
	t := start
	cur := v.StartNode
	for i, si := range order {
		st := p.Stops[si]
		if cur >= 0 {
			leg := p.Matrix.At(cur, st.Node)
			m.DistM += leg.DistM
			t += leg.DurSec
		}
		if st.Window != nil {
			if t < st.Window.EarliestSec {
				t = st.Window.EarliestSec // wait for the window to open
			}
			if t > st.Window.LatestSec {
				m.Feasible = false
			}
		}
		m.ArrivalsSec[i] = t
		m.Load += st.Demand
		m.PrefixLoads[i] = m.Load
		if v.Capacity > 0 && m.Load > v.Capacity {
			m.Feasible = false
		}
		t += st.ServiceSec
		cur = st.Node
	}
	if v.EndNode >= 0 && cur >= 0 {
		leg := p.Matrix.At(cur, v.EndNode)
		m.DistM += leg.DistM
		t += leg.DurSec
	}
	if v.Shift != nil && t > v.Shift.LatestSec {
		m.Feasible = false
	}
	m.DurSec = t - start
	return m
}

// Evaluate scores a full solution. Routes are parallel to Problem.Vehicles.
func Evaluate(p *Problem, s *Solution) SolutionMetrics {
	out := SolutionMetrics{Routes: make([]RouteMetrics, len(s.Routes)), Feasible: true}
	for i, r := range s.Routes {
		rm := EvaluateRoute(p, p.Vehicles[i], r.Order)
		out.Routes[i] = rm
		out.TotalDistM += rm.DistM
		out.TotalDurSec += rm.DurSec
		if !rm.Feasible {
			out.Feasible = false
		}
	}
	return out
}

// routeFeasible reports whether an order satisfies capacity, time-window and
// shift constraints. Cheaper than EvaluateRoute when only the flag matters.
func routeFeasible(p *Problem, v Vehicle, order []int) bool {
	start := 0.0
	if v.Shift != nil {
		start = v.Shift.EarliestSec
	}
	t := start
	load := 0.0
	cur := v.StartNode
	for _, si := range order {
		st := p.Stops[si]
		if cur >= 0 {
			t += p.Matrix.At(cur, st.Node).DurSec
		}
		if st.Window != nil {
			if t < st.Window.EarliestSec {
				t = st.Window.EarliestSec
			}
			if t > st.Window.LatestSec {
				return false
			}
		}
		load += st.Demand
		if v.Capacity > 0 && load > v.Capacity {
			return false
		}
		t += st.ServiceSec
		cur = st.Node
	}
	if v.EndNode >= 0 && cur >= 0 && len(order) > 0 {
		t += p.Matrix.At(cur, v.EndNode).DurSec
	}
	if v.Shift != nil && t > v.Shift.LatestSec {
		return false
	}
	return true
}

// routeDistance is the distance-only objective used by the local search.
func routeDistance(p *Problem, v Vehicle, order []int) float64 {
	if len(order) == 0 {
		return 0
	}
	total := 0.0
	cur := v.StartNode
	for _, si := range order {
		n := p.Stops[si].Node
		if cur >= 0 {
			total += p.Matrix.At(cur, n).DistM
		}
		cur = n
	}
	if v.EndNode >= 0 {
		total += p.Matrix.At(cur, v.EndNode).DistM
	}
	return total
}
