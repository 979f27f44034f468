package solver

import "time"

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds arrival at a stop, in seconds from the start of the
// vehicle's shift. Latest is inclusive.
type TimeWindow struct {
	EarliestSec float64 `json:"earliestSec"`
	LatestSec   float64 `json:"latestSec"`
}

// Stop is a delivery location to serve. Node indexes into the distance
// matrix. Stops are immutable once a solve starts.
type Stop struct {
	ID         int
	Node       int
	Location   GeoPoint
	Demand     float64
	Window     *TimeWindow
	ServiceSec float64
}

// Vehicle is a capacity-bounded resource. StartNode/EndNode index the depot
// rows of the matrix; -1 means the vehicle has no depot on that side.
type Vehicle struct {
	ID        int
	Capacity  float64
	StartNode int
	EndNode   int
	Shift     *TimeWindow
}

// Problem is one self-contained solve request. It is owned by a single
// solve and never shared or mutated while solving.
type Problem struct {
	Stops    []Stop
	Vehicles []Vehicle
	Matrix   Matrix
}

// Route is an ordered assignment of stops (indices into Problem.Stops) to
// one vehicle.
type Route struct {
	VehicleID int   `json:"vehicleId"`
	Order     []int `json:"order"`
}

// Unassigned records a stop that could not be placed on any route.
type Unassigned struct {
	Stop   int    `json:"stop"`
	Reason Reason `json:"reason"`
}

// Solution is the complete output of one solve: every stop appears in
// exactly one route or in Unassigned. Not mutated after being returned.
type Solution struct {
	Routes      []Route      `json:"routes"`
	Unassigned  []Unassigned `json:"unassigned,omitempty"`
	TotalDistM  float64      `json:"totalDistM"`
	TotalDurSec float64      `json:"totalDurSec"`
	// Degraded is set when the iteration or wall-clock budget (or caller
	// cancellation) stopped the search before a local optimum.
	Degraded bool `json:"degraded,omitempty"`
}

// Budget caps the local search. Zero values fall back to defaults.
type Budget struct {
	MaxScans  int
	TimeLimit time.Duration
}
