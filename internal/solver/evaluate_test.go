package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateRouteTotalsAndPrefixLoads(t *testing.T) {
	p := triangleProblem()
	v := p.Vehicles[0]

	m := EvaluateRoute(p, v, []int{0, 1, 2}) // A, B, C
	assert.True(t, m.Feasible)
	assert.Equal(t, 47.0, m.DistM)
	assert.Equal(t, 47.0, m.DurSec) // durations mirror distances, no service times
	assert.Equal(t, 90.0, m.Load)
	assert.Equal(t, []float64{30, 70, 90}, m.PrefixLoads)
	assert.Equal(t, []float64{10, 15, 27}, m.ArrivalsSec)
}

func TestEvaluateRouteEmpty(t *testing.T) {
	p := triangleProblem()
	m := EvaluateRoute(p, p.Vehicles[0], nil)
	assert.True(t, m.Feasible)
	assert.Zero(t, m.DistM)
	assert.Zero(t, m.DurSec)
}

func TestEvaluateRouteCapacityViolation(t *testing.T) {
	p := triangleProblem()
	v := p.Vehicles[0]
	v.Capacity = 50

	m := EvaluateRoute(p, v, []int{0, 1, 2})
	assert.False(t, m.Feasible)
	// Totals are still reported for an infeasible order.
	assert.Equal(t, 47.0, m.DistM)
}

func TestEvaluateRouteWaitsForWindowOpen(t *testing.T) {
	p := triangleProblem()
	p.Stops[0].Window = &TimeWindow{EarliestSec: 100, LatestSec: 200}

	m := EvaluateRoute(p, p.Vehicles[0], []int{0, 1, 2})
	require.True(t, m.Feasible)
	// Arrives at 10, waits until 100.
	assert.Equal(t, 100.0, m.ArrivalsSec[0])
	assert.Equal(t, 105.0, m.ArrivalsSec[1])
	// Waiting counts toward duration but not distance.
	assert.Equal(t, 47.0, m.DistM)
	assert.Equal(t, 137.0, m.DurSec)
}

func TestEvaluateRouteWindowViolation(t *testing.T) {
	p := triangleProblem()
	p.Stops[2].Window = &TimeWindow{EarliestSec: 0, LatestSec: 20} // C reachable at 27 earliest

	m := EvaluateRoute(p, p.Vehicles[0], []int{0, 1, 2})
	assert.False(t, m.Feasible)
}

func TestEvaluateRouteServiceTimes(t *testing.T) {
	p := triangleProblem()
	for i := range p.Stops {
		p.Stops[i].ServiceSec = 60
	}
	m := EvaluateRoute(p, p.Vehicles[0], []int{0, 1, 2})
	assert.Equal(t, 47.0, m.DistM)
	assert.Equal(t, 227.0, m.DurSec)
	assert.Equal(t, []float64{10, 75, 147}, m.ArrivalsSec)
}

func TestEvaluateSolutionAggregates(t *testing.T) {
	p := triangleProblem()
	p.Vehicles = append(p.Vehicles, Vehicle{ID: 1, Capacity: 100, StartNode: 0, EndNode: 0})

	s := Solution{Routes: []Route{
		{VehicleID: 0, Order: []int{0, 1}}, // depot→A→B→depot = 10+5+15 = 30
		{VehicleID: 1, Order: []int{2}},    // depot→C→depot = 20+20 = 40
	}}
	m := Evaluate(p, &s)
	require.Len(t, m.Routes, 2)
	assert.Equal(t, 30.0, m.Routes[0].DistM)
	assert.Equal(t, 40.0, m.Routes[1].DistM)
	assert.Equal(t, 70.0, m.TotalDistM)
	assert.True(t, m.Feasible)
}

func TestEvaluateRoundTripMatchesSolveTotals(t *testing.T) {
	p := triangleProblem()
	res, err := Solve(context.Background(), p, noBudget())
	require.NoError(t, err)

	m := Evaluate(p, &res.Solution)
	assert.Equal(t, res.Solution.TotalDistM, m.TotalDistM)
	assert.Equal(t, res.Solution.TotalDurSec, m.TotalDurSec)
}
