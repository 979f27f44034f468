package geo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleetroute/internal/metrics"
	"fleetroute/internal/solver"
)

// MatrixCache stores computed matrices keyed by a request fingerprint. A miss
// is (zero, false, nil); errors are reserved for backend failures.
type MatrixCache interface {
	Get(ctx context.Context, key string) (solver.Matrix, bool, error)
	Put(ctx context.Context, key string, m solver.Matrix, ttl time.Duration) error
}

// CacheKey fingerprints a matrix request. Coordinates are rounded to ~1m
// precision so that re-submissions of the same problem hit the cache.
func CacheKey(points []Point, mode Mode) string {
	var sb strings.Builder
	sb.WriteString(string(mode))
	for _, pt := range points {
		fmt.Fprintf(&sb, "|%.5f,%.5f", pt.Lat, pt.Lng)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "matrix:" + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	m       solver.Matrix
	expires time.Time
}

// MemoryCache is an in-process MatrixCache with TTL eviction on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (solver.Matrix, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return solver.Matrix{}, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return solver.Matrix{}, false, nil
	}
	return e.m, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, m solver.Matrix, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{m: m}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// CachingProvider wraps a Provider with a MatrixCache. Cache failures are
// treated as misses, never as provider failures.
type CachingProvider struct {
	Inner Provider
	Cache MatrixCache
	TTL   time.Duration
}

func (c *CachingProvider) Matrix(ctx context.Context, points []Point, mode Mode) (solver.Matrix, error) {
	if err := ValidatePoints(points); err != nil {
		return solver.Matrix{}, err
	}
	key := CacheKey(points, mode)
	if m, ok, err := c.Cache.Get(ctx, key); err == nil && ok {
		metrics.MatrixCacheHits.WithLabelValues("hit").Inc()
		return m, nil
	}
	metrics.MatrixCacheHits.WithLabelValues("miss").Inc()
	m, err := c.Inner.Matrix(ctx, points, mode)
	if err != nil {
		return solver.Matrix{}, err
	}
	_ = c.Cache.Put(ctx, key, m, c.TTL)
	return m, nil
}
