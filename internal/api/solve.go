package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fleetroute/internal/geo"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/solver"
)

// runSolve executes the pipeline with the server's configured provider.
func (s *Server) runSolve(ctx context.Context, req *model.OptimizeRequest, progress solver.ProgressFunc) (*model.OptimizeResponse, *solver.Result, error) {
	return Optimize(ctx, s.Geo, req, progress)
}

// Optimize executes the full pipeline for one request: matrix lookup,
// construction, local search, response assembly. The request must already be
// validated. Progress, when non-nil, receives phase snapshots.
func Optimize(ctx context.Context, provider geo.Provider, req *model.OptimizeRequest, progress solver.ProgressFunc) (*model.OptimizeResponse, *solver.Result, error) {
	mode := geo.Mode(req.Mode)
	if mode == "" {
		mode = geo.ModeDriving
	}

	points := make([]geo.Point, len(req.Locations))
	for i, l := range req.Locations {
		points[i] = geo.Point{Lat: l.Lat, Lng: l.Lng}
	}
	matrix, err := provider.Matrix(ctx, points, mode)
	if err != nil {
		return nil, nil, err
	}

	p := buildProblem(req, matrix)
	b := solver.Budget{MaxScans: req.MaxScans}
	if req.TimeBudgetMs > 0 {
		b.TimeLimit = time.Duration(req.TimeBudgetMs) * time.Millisecond
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.TimeLimit)
		defer cancel()
	}

	start := time.Now()
	ctrl := solver.Controller{OnProgress: progress}
	res, err := ctrl.Solve(ctx, p, b)
	if err != nil {
		metrics.ObserveSolve(string(solver.StateFailed), 0, 0, 0, time.Since(start))
		return nil, nil, err
	}
	metrics.ObserveSolve(string(res.State), res.Stats.Scans, res.Stats.InitialDistM, res.Stats.FinalDistM, time.Since(start))
	return buildResponse(req, p, res), res, nil
}

// buildProblem maps the wire request onto a solver problem. locations[0] is
// the depot; every vehicle starts and ends there.
func buildProblem(req *model.OptimizeRequest, matrix solver.Matrix) *solver.Problem {
	nStops := len(req.Locations) - 1
	stops := make([]solver.Stop, nStops)
	for i := 0; i < nStops; i++ {
		loc := req.Locations[i+1]
		st := solver.Stop{
			ID:       i,
			Node:     i + 1,
			Location: solver.GeoPoint{Lat: loc.Lat, Lng: loc.Lng},
			Demand:   stopDemand(req, i),
		}
		if i < len(req.TimeWindows) && req.TimeWindows[i] != nil {
			st.Window = &solver.TimeWindow{EarliestSec: req.TimeWindows[i].Earliest, LatestSec: req.TimeWindows[i].Latest}
		}
		if i < len(req.ServiceTimesSec) {
			st.ServiceSec = req.ServiceTimesSec[i]
		}
		stops[i] = st
	}
	vehicles := make([]solver.Vehicle, req.NumVehicles)
	for v := range vehicles {
		vehicles[v] = solver.Vehicle{ID: v, Capacity: req.VehicleCapacity, StartNode: 0, EndNode: 0}
	}
	return &solver.Problem{Stops: stops, Vehicles: vehicles, Matrix: matrix}
}

func buildResponse(req *model.OptimizeRequest, p *solver.Problem, res *solver.Result) *model.OptimizeResponse {
	out := &model.OptimizeResponse{
		Routes:        make([]model.RouteOut, len(res.Solution.Routes)),
		TotalDistance: res.Solution.TotalDistM,
		TotalDuration: res.Solution.TotalDurSec,
		Degraded:      res.Solution.Degraded,
	}
	served := 0
	var sumDist, sumDur float64
	for vi, r := range res.Solution.Routes {
		ro := model.RouteOut{
			VehicleID: r.VehicleID,
			Route:     make([]model.RouteStop, len(r.Order)),
			Distance:  res.Metrics.Routes[vi].DistM,
			Duration:  res.Metrics.Routes[vi].DurSec,
		}
		for i, si := range r.Order {
			st := p.Stops[si]
			ro.Route[i] = model.RouteStop{
				Location: model.LatLng{Lat: st.Location.Lat, Lng: st.Location.Lng},
				Demand:   st.Demand,
			}
		}
		if len(r.Order) > 0 {
			served++
			sumDist += ro.Distance
			sumDur += ro.Duration
		}
		out.Routes[vi] = ro
	}
	var totalDemand float64
	for _, st := range p.Stops {
		totalDemand += st.Demand
	}
	for _, u := range res.Solution.Unassigned {
		st := p.Stops[u.Stop]
		out.Unassigned = append(out.Unassigned, model.UnassignedOut{
			Index:    u.Stop,
			Location: model.LatLng{Lat: st.Location.Lat, Lng: st.Location.Lng},
			Reason:   string(u.Reason),
			Demand:   st.Demand,
		})
	}
	out.Metrics = model.MetricsOut{
		NumVehicles:     req.NumVehicles,
		VehicleCapacity: req.VehicleCapacity,
		TotalDemand:     totalDemand,
	}
	if served > 0 {
		out.Metrics.AverageRouteDistance = sumDist / float64(served)
		out.Metrics.AverageRouteDuration = sumDur / float64(served)
	}
	return out
}

// solveMetricsFor flattens solver stats into the persisted metrics row.
func solveMetricsFor(solveID string, res *solver.Result, elapsed time.Duration) model.SolveMetrics {
	return model.SolveMetrics{
		SolveID:          solveID,
		State:            string(res.State),
		Scans:            res.Stats.Scans,
		IntraRelocations: res.Stats.IntraRelocations,
		InterRelocations: res.Stats.InterRelocations,
		TwoOptMoves:      res.Stats.TwoOptMoves,
		InitialDistance:  res.Stats.InitialDistM,
		FinalDistance:    res.Stats.FinalDistM,
		DurationMs:       elapsed.Milliseconds(),
	}
}

// statusForError maps pipeline errors onto HTTP statuses: invalid input and
// bad coordinates are the caller's fault, provider outages are 503, and an
// exhausted budget with no solution is 504.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, solver.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest, "Invalid coordinate"
	case errors.Is(err, geo.ErrUnavailable):
		return http.StatusServiceUnavailable, "Distance provider unavailable"
	case errors.Is(err, solver.ErrTimeout):
		return http.StatusGatewayTimeout, "Solve budget exceeded"
	case errors.Is(err, solver.ErrCancelled):
		return 499, "Solve cancelled" // nginx convention: client closed request
	default:
		return http.StatusInternalServerError, "Solve failed"
	}
}
