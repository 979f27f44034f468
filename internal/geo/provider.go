// Package geo supplies pairwise travel distance and duration matrices for
// solve requests, either computed locally (great-circle) or fetched from an
// external matrix service, with optional caching in front.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"fleetroute/internal/solver"
)

var (
	// ErrInvalidCoordinate rejects out-of-range latitudes/longitudes.
	ErrInvalidCoordinate = errors.New("geo: invalid coordinate")
	// ErrUnavailable wraps external matrix service failures. A solve must
	// fail fast on it rather than optimize over a guessed matrix.
	ErrUnavailable = errors.New("geo: matrix provider unavailable")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Mode selects the travel profile used for durations.
type Mode string

const (
	ModeDriving   Mode = "driving"
	ModeWalking   Mode = "walking"
	ModeBicycling Mode = "bicycling"
	ModeTransit   Mode = "transit"
)

// Valid reports whether the mode is one of the documented profiles.
func (m Mode) Valid() bool {
	switch m {
	case ModeDriving, ModeWalking, ModeBicycling, ModeTransit:
		return true
	}
	return false
}

// speedMps is the assumed average speed for the local provider.
func (m Mode) speedMps() float64 {
	switch m {
	case ModeWalking:
		return 1.4 // ~5 km/h
	case ModeBicycling:
		return 4.2 // ~15 km/h
	case ModeTransit:
		return 8.3 // ~30 km/h
	default:
		return 13.9 // ~50 km/h
	}
}

// Provider computes an N×N travel matrix for the given points. The matrix is
// computed once per solve and treated as read-only afterwards.
type Provider interface {
	Matrix(ctx context.Context, points []Point, mode Mode) (solver.Matrix, error)
}

// ValidatePoints checks coordinate ranges before any provider call.
func ValidatePoints(points []Point) error {
	for i, pt := range points {
		if pt.Lat < -90 || pt.Lat > 90 || pt.Lng < -180 || pt.Lng > 180 {
			return fmt.Errorf("%w: point %d (%.6f,%.6f)", ErrInvalidCoordinate, i, pt.Lat, pt.Lng)
		}
	}
	return nil
}

// HaversineProvider computes great-circle matrices locally. Deterministic
// and dependency-free, it is the default provider and the one used in tests.
type HaversineProvider struct{}

func (HaversineProvider) Matrix(_ context.Context, points []Point, mode Mode) (solver.Matrix, error) {
	if err := ValidatePoints(points); err != nil {
		return solver.Matrix{}, err
	}
	speed := mode.speedMps()
	m := solver.NewMatrix(len(points))
	for i := range points {
		for j := range points {
			if i == j {
				continue
			}
			d := HaversineMeters(points[i].Lat, points[i].Lng, points[j].Lat, points[j].Lng)
			m.Set(i, j, solver.Leg{DistM: d, DurSec: d / speed})
		}
	}
	return m, nil
}

// HaversineMeters is the great-circle distance between two coordinates.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
