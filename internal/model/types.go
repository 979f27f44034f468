// Package model holds the wire types shared by the HTTP API, the store, and
// the CLI. Field names follow the public contract (snake_case JSON).
package model

import "time"

// LatLng is a WGS84 coordinate as it appears on the wire.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindowIn is an optional per-stop service window, in seconds from the
// start of the planning horizon.
type TimeWindowIn struct {
	Earliest float64 `json:"earliest"`
	Latest   float64 `json:"latest"`
}

// OptimizeRequest is the body of POST /optimize-routes and POST /v1/solves.
// locations[0] is the depot; demands may cover all locations (the depot entry
// is ignored) or just the stops.
type OptimizeRequest struct {
	Locations       []LatLng        `json:"locations"`
	Demands         []float64       `json:"demands"`
	VehicleCapacity float64         `json:"vehicle_capacity"`
	NumVehicles     int             `json:"num_vehicles"`
	Mode            string          `json:"mode,omitempty"`
	TimeBudgetMs    int             `json:"time_budget_ms,omitempty"`
	MaxScans        int             `json:"max_scans,omitempty"`
	TimeWindows     []*TimeWindowIn `json:"time_windows,omitempty"`
	ServiceTimesSec []float64       `json:"service_times_sec,omitempty"`
}

// RouteStop is one visited stop within a route.
type RouteStop struct {
	Location LatLng  `json:"location"`
	Demand   float64 `json:"demand"`
}

// RouteOut is one vehicle's ordered route. Distance is meters, duration
// seconds; both include the depot legs.
type RouteOut struct {
	VehicleID int         `json:"vehicle_id"`
	Route     []RouteStop `json:"route"`
	Distance  float64     `json:"distance"`
	Duration  float64     `json:"duration"`
}

// UnassignedOut reports a stop left out of every route and why.
type UnassignedOut struct {
	Index    int     `json:"index"`
	Location LatLng  `json:"location"`
	Reason   string  `json:"reason"`
	Demand   float64 `json:"demand"`
}

// MetricsOut summarizes the solution. Averages are taken over routes that
// serve at least one stop.
type MetricsOut struct {
	NumVehicles          int     `json:"num_vehicles"`
	VehicleCapacity      float64 `json:"vehicle_capacity"`
	TotalDemand          float64 `json:"total_demand"`
	AverageRouteDistance float64 `json:"average_route_distance"`
	AverageRouteDuration float64 `json:"average_route_duration"`
}

// OptimizeResponse is the body of a successful optimization.
type OptimizeResponse struct {
	Routes        []RouteOut      `json:"routes"`
	Unassigned    []UnassignedOut `json:"unassigned,omitempty"`
	TotalDistance float64         `json:"total_distance"`
	TotalDuration float64         `json:"total_duration"`
	Degraded      bool            `json:"degraded,omitempty"`
	Metrics       MetricsOut      `json:"metrics"`
}

// Solve status values for async jobs.
const (
	SolveStatusPending   = "pending"
	SolveStatusRunning   = "running"
	SolveStatusCompleted = "completed"
	SolveStatusFailed    = "failed"
	SolveStatusCancelled = "cancelled"
)

// SolveJob is an asynchronous optimization job tracked by the store.
type SolveJob struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Request   OptimizeRequest   `json:"request"`
	Result    *OptimizeResponse `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SolveMetrics records per-solve search statistics for the admin endpoint.
type SolveMetrics struct {
	SolveID          string    `json:"solve_id"`
	State            string    `json:"state"`
	Scans            int       `json:"scans"`
	IntraRelocations int       `json:"intra_relocations"`
	InterRelocations int       `json:"inter_relocations"`
	TwoOptMoves      int       `json:"two_opt_moves"`
	InitialDistance  float64   `json:"initial_distance"`
	FinalDistance    float64   `json:"final_distance"`
	DurationMs       int64     `json:"duration_ms"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// SubscriptionRequest is the body of POST /v1/subscriptions.
type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
