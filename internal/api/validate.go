package api

import (
	"fmt"

	"fleetroute/internal/geo"
	"fleetroute/internal/model"
)

// ValidateRequest checks the request shape before any provider call or
// solve. demands may cover every location (the depot entry is ignored) or
// just the stops; both conventions appear in client code.
func ValidateRequest(req *model.OptimizeRequest) error {
	if len(req.Locations) < 2 {
		return fmt.Errorf("locations must include a depot and at least one stop")
	}
	nStops := len(req.Locations) - 1
	switch len(req.Demands) {
	case nStops, len(req.Locations):
	default:
		return fmt.Errorf("demands length %d does not match %d locations", len(req.Demands), len(req.Locations))
	}
	for i, d := range req.Demands {
		if d < 0 {
			return fmt.Errorf("demands[%d] is negative", i)
		}
	}
	if req.VehicleCapacity < 0 {
		return fmt.Errorf("vehicle_capacity is negative")
	}
	if req.NumVehicles <= 0 {
		return fmt.Errorf("num_vehicles must be positive")
	}
	if req.Mode != "" && !geo.Mode(req.Mode).Valid() {
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("time_budget_ms is negative")
	}
	if req.MaxScans < 0 {
		return fmt.Errorf("max_scans is negative")
	}
	if len(req.TimeWindows) != 0 && len(req.TimeWindows) != nStops {
		return fmt.Errorf("time_windows length %d does not match %d stops", len(req.TimeWindows), nStops)
	}
	for i, tw := range req.TimeWindows {
		if tw != nil && tw.Latest < tw.Earliest {
			return fmt.Errorf("time_windows[%d] ends before it starts", i)
		}
	}
	if len(req.ServiceTimesSec) != 0 && len(req.ServiceTimesSec) != nStops {
		return fmt.Errorf("service_times_sec length %d does not match %d stops", len(req.ServiceTimesSec), nStops)
	}
	return nil
}

// stopDemand returns the demand for stop i (0-based over locations[1:]),
// tolerating both demand conventions.
func stopDemand(req *model.OptimizeRequest, i int) float64 {
	if len(req.Demands) == len(req.Locations) {
		return req.Demands[i+1]
	}
	return req.Demands[i]
}
