package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matrixPayload(n int) matrixResponse {
	f := func(v float64) *float64 { return &v }
	mr := matrixResponse{}
	for i := 0; i < n; i++ {
		var dr, tr []*float64
		for j := 0; j < n; j++ {
			if i == j {
				dr = append(dr, f(0))
				tr = append(tr, f(0))
			} else {
				dr = append(dr, f(float64(1000*(i+j))))
				tr = append(tr, f(float64(60*(i+j))))
			}
		}
		mr.Distances = append(mr.Distances, dr)
		mr.Durations = append(mr.Durations, tr)
	}
	return mr
}

func TestMatrixClientFetch(t *testing.T) {
	var gotPath string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		var req matrixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Locations, 2)
		// lon/lat ordering on the wire
		assert.Equal(t, []float64{13.405, 52.52}, req.Locations[0])
		json.NewEncoder(w).Encode(matrixPayload(2))
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "test-key")
	m, err := c.Matrix(context.Background(), []Point{{Lat: 52.52, Lng: 13.405}, {Lat: 48.85, Lng: 2.35}}, ModeBicycling)
	require.NoError(t, err)
	assert.Equal(t, "/v2/matrix/cycling-regular", gotPath)
	assert.Equal(t, "test-key", gotAuth)
	assert.Equal(t, 2, m.Size())
	assert.Equal(t, 1000.0, m.At(0, 1).DistM)
	assert.Equal(t, 60.0, m.At(0, 1).DurSec)
}

func TestMatrixClientRetriesOnceOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(matrixPayload(2))
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "")
	c.RetryDelay = time.Millisecond
	m, err := c.Matrix(context.Background(), []Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, m.Size())
}

func TestMatrixClientUnavailableAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "")
	c.RetryDelay = time.Millisecond
	_, err := c.Matrix(context.Background(), []Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, ModeDriving)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMatrixClientNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "bad-key")
	c.RetryDelay = time.Millisecond
	_, err := c.Matrix(context.Background(), []Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, ModeDriving)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMatrixClientRejectsUnroutablePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr := matrixPayload(2)
		mr.Distances[0][1] = nil
		json.NewEncoder(w).Encode(mr)
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "")
	_, err := c.Matrix(context.Background(), []Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, ModeDriving)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMatrixClientRejectsBadCoordinatesLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider should not be called for invalid coordinates")
	}))
	defer srv.Close()

	c := NewMatrixClient(srv.URL, "")
	_, err := c.Matrix(context.Background(), []Point{{Lat: 95, Lng: 0}}, ModeDriving)
	require.ErrorIs(t, err, ErrInvalidCoordinate)
}
