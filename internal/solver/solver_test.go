package solver

// matrixFrom builds a matrix where durations equal distances, which keeps
// hand-computed expectations simple.
func matrixFrom(dist [][]float64) Matrix {
	n := len(dist)
	m := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, Leg{DistM: dist[i][j], DurSec: dist[i][j]})
		}
	}
	return m
}

// triangleProblem is the canonical small instance: a depot (node 0) and
// three stops A, B, C with demands 30/40/20 against one capacity-100
// vehicle. The optimal tour is depot→A→B→C→depot = 10+5+12+20 = 47.
func triangleProblem() *Problem {
	dist := [][]float64{
		{0, 10, 15, 20},
		{10, 0, 5, 25},
		{15, 5, 0, 12},
		{20, 25, 12, 0},
	}
	return &Problem{
		Stops: []Stop{
			{ID: 0, Node: 1, Demand: 30},
			{ID: 1, Node: 2, Demand: 40},
			{ID: 2, Node: 3, Demand: 20},
		},
		Vehicles: []Vehicle{{ID: 0, Capacity: 100, StartNode: 0, EndNode: 0}},
		Matrix:   matrixFrom(dist),
	}
}

func noBudget() Budget { return Budget{} }
