package geo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/solver"
)

func sampleMatrix() solver.Matrix {
	m := solver.NewMatrix(2)
	m.Set(0, 1, solver.Leg{DistM: 1234, DurSec: 89})
	m.Set(1, 0, solver.Leg{DistM: 1250, DurSec: 92})
	return m
}

func TestCacheKeyStable(t *testing.T) {
	pts := []Point{{Lat: 52.52, Lng: 13.405}, {Lat: 48.85, Lng: 2.35}}
	k1 := CacheKey(pts, ModeDriving)
	k2 := CacheKey(pts, ModeDriving)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, CacheKey(pts, ModeWalking))
	assert.NotEqual(t, k1, CacheKey(pts[:1], ModeDriving))
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(context.Background(), "k", sampleMatrix(), time.Minute))
	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1234.0, got.At(0, 1).DistM)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(context.Background(), "k", sampleMatrix(), 0))
	now = now.Add(24 * time.Hour)
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

type countingProvider struct {
	calls int
	inner Provider
}

func (p *countingProvider) Matrix(ctx context.Context, pts []Point, mode Mode) (solver.Matrix, error) {
	p.calls++
	return p.inner.Matrix(ctx, pts, mode)
}

func TestCachingProviderHitsAndMisses(t *testing.T) {
	cp := &countingProvider{inner: HaversineProvider{}}
	c := &CachingProvider{Inner: cp, Cache: NewMemoryCache(), TTL: time.Minute}
	pts := []Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}}

	m1, err := c.Matrix(context.Background(), pts, ModeDriving)
	require.NoError(t, err)
	m2, err := c.Matrix(context.Background(), pts, ModeDriving)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.calls)
	assert.Equal(t, m1.At(0, 1), m2.At(0, 1))

	// Different mode is a different key.
	_, err = c.Matrix(context.Background(), pts, ModeWalking)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.calls)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(rdb)

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(context.Background(), "k", sampleMatrix(), time.Minute))
	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Size())
	assert.Equal(t, 1250.0, got.At(1, 0).DistM)
	assert.Equal(t, 92.0, got.At(1, 0).DurSec)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
