package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fleetroute/internal/solver"
)

// MatrixClient fetches full travel matrices from an OpenRouteService-style
// HTTP endpoint (POST {base}/v2/matrix/{profile}). Failures are retried once
// with backoff, then surfaced as ErrUnavailable; a solve never runs over a
// partial matrix.
type MatrixClient struct {
	BaseURL    string
	APIKey     string
	HTTP       *http.Client
	RetryDelay time.Duration
}

func NewMatrixClient(baseURL, apiKey string) *MatrixClient {
	return &MatrixClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		RetryDelay: 500 * time.Millisecond,
	}
}

// profileFor maps the request mode onto a routing profile name.
func profileFor(mode Mode) string {
	switch mode {
	case ModeWalking:
		return "foot-walking"
	case ModeBicycling:
		return "cycling-regular"
	case ModeTransit:
		return "driving-hgv"
	default:
		return "driving-car"
	}
}

type matrixRequest struct {
	Locations [][]float64 `json:"locations"` // [lon, lat] per the ORS convention
	Metrics   []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (c *MatrixClient) Matrix(ctx context.Context, points []Point, mode Mode) (solver.Matrix, error) {
	if err := ValidatePoints(points); err != nil {
		return solver.Matrix{}, err
	}

	locations := make([][]float64, len(points))
	for i, pt := range points {
		locations[i] = []float64{pt.Lng, pt.Lat}
	}
	payload, err := json.Marshal(matrixRequest{Locations: locations, Metrics: []string{"distance", "duration"}})
	if err != nil {
		return solver.Matrix{}, fmt.Errorf("marshal matrix request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", c.BaseURL, profileFor(mode))

	mr, err := c.fetchWithRetry(ctx, endpoint, payload)
	if err != nil {
		return solver.Matrix{}, err
	}
	return decodeMatrix(mr, len(points))
}

// fetchWithRetry issues the request, retrying once after RetryDelay on
// network errors, 429 and 5xx.
func (c *MatrixClient) fetchWithRetry(ctx context.Context, endpoint string, payload []byte) (*matrixResponse, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.RetryDelay):
			}
		}
		mr, retryable, err := c.fetchOnce(ctx, endpoint, payload)
		if err == nil {
			return mr, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *MatrixClient) fetchOnce(ctx context.Context, endpoint string, payload []byte) (*matrixResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("matrix service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("matrix service returned %d", resp.StatusCode)
	}
	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, false, fmt.Errorf("decode matrix response: %w", err)
	}
	return &mr, false, nil
}

func decodeMatrix(mr *matrixResponse, n int) (solver.Matrix, error) {
	if len(mr.Distances) != n || len(mr.Durations) != n {
		return solver.Matrix{}, fmt.Errorf("%w: expected %d rows, got distances=%d durations=%d",
			ErrUnavailable, n, len(mr.Distances), len(mr.Durations))
	}
	m := solver.NewMatrix(n)
	for i := 0; i < n; i++ {
		if len(mr.Distances[i]) != n || len(mr.Durations[i]) != n {
			return solver.Matrix{}, fmt.Errorf("%w: row %d has wrong width", ErrUnavailable, i)
		}
		for j := 0; j < n; j++ {
			dist, dur := mr.Distances[i][j], mr.Durations[i][j]
			if dist == nil || dur == nil {
				// Unreachable pair: the service could not route it. Treat
				// the whole matrix as unusable rather than guess.
				return solver.Matrix{}, fmt.Errorf("%w: no route between points %d and %d", ErrUnavailable, i, j)
			}
			m.Set(i, j, solver.Leg{DistM: *dist, DurSec: *dur})
		}
	}
	return m, nil
}
