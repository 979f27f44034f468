package api

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"fleetroute/internal/geo"
	"fleetroute/internal/store"
	"fleetroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Geo    geo.Provider
	Pub    *webhooks.Publisher
	Broker EventBroker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // running async solves
}

// NewServer wires the server from the environment. With no configuration it
// runs fully in-process: memory store, haversine matrices, memory broker.
func NewServer() (*Server, error) {
	var s store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	var matrixCache geo.MatrixCache
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
			matrixCache = geo.NewRedisCache(rb.rdb)
		}
	}
	if broker == nil {
		broker = NewBroker()
	}
	if matrixCache == nil {
		matrixCache = geo.NewMemoryCache()
	}

	var provider geo.Provider = geo.HaversineProvider{}
	if base := os.Getenv("MATRIX_BASE_URL"); base != "" {
		provider = geo.NewMatrixClient(base, os.Getenv("MATRIX_API_KEY"))
	}
	ttl := 15 * time.Minute
	if v := os.Getenv("MATRIX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			ttl = d
		}
	}
	provider = &geo.CachingProvider{Inner: provider, Cache: matrixCache, TTL: ttl}

	return &Server{
		Store:   s,
		Geo:     provider,
		Pub:     webhooks.NewPublisher(s),
		Broker:  broker,
		cancels: map[string]context.CancelFunc{},
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

func (s *Server) trackCancel(solveID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[solveID] = cancel
	s.mu.Unlock()
}

func (s *Server) dropCancel(solveID string) {
	s.mu.Lock()
	delete(s.cancels, solveID)
	s.mu.Unlock()
}

// cancelSolve cancels a running async solve. Returns false when the solve is
// not running (already finished, or never started).
func (s *Server) cancelSolve(solveID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[solveID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
