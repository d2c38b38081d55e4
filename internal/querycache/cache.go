// Package querycache is a generic TTL cache with background refresh:
// entries are served stale-but-fresh-enough from a single map under one
// discipline, and a dedicated ticker task refreshes entries nearing
// expiry rather than letting callers block on a synchronous re-fetch.
package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_hits_total",
		Help: "TTL cache hits by cache name.",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_misses_total",
		Help: "TTL cache misses (synchronous fetch required) by cache name.",
	}, []string{"cache"})

	backgroundRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querycache_background_refresh_total",
		Help: "Background refresh attempts by cache name and outcome.",
	}, []string{"cache", "outcome"})
)

// FetchFunc produces the current value for key, making whatever upstream
// call the cache fronts (an RPC, a DB read).
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTLCache is a single bounded-discipline map of key to value, refreshed
// either synchronously on a miss or proactively by Run's background
// ticker once an entry passes refreshAhead of its TTL.
type TTLCache[K comparable, V any] struct {
	name         string
	ttl          time.Duration
	refreshAhead time.Duration
	fetch        FetchFunc[K, V]
	logger       zerolog.Logger

	mu      sync.RWMutex
	entries map[K]entry[V]
}

// New builds a TTLCache. ttl is how long a value is served without a
// synchronous re-fetch; refreshAhead is how long before expiry Run's
// ticker proactively refreshes an entry so callers rarely pay the
// synchronous fetch cost.
func New[K comparable, V any](name string, ttl, refreshAhead time.Duration, fetch FetchFunc[K, V], logger zerolog.Logger) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		name:         name,
		ttl:          ttl,
		refreshAhead: refreshAhead,
		fetch:        fetch,
		logger:       logger.With().Str("component", "querycache").Str("cache", name).Logger(),
		entries:      make(map[K]entry[V]),
	}
}

// Get returns the cached value for key if it has not expired, otherwise
// fetches synchronously and stores the result.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < c.ttl {
		cacheHits.WithLabelValues(c.name).Inc()
		return e.value, nil
	}
	cacheMisses.WithLabelValues(c.name).Inc()

	v, err := c.fetch(ctx, key)
	if err != nil {
		var zero V
		if ok {
			// serve the stale value rather than propagate a transient
			// upstream failure, matching the "transient errors never
			// block the pipeline" posture used throughout this indexer.
			return e.value, nil
		}
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, fetchedAt: time.Now()}
	c.mu.Unlock()
	return v, nil
}

// Run walks the cache every interval and proactively refreshes any entry
// within refreshAhead of expiring, until ctx is canceled. Modeled on the
// ticker/select shape used by internal/balances.Refresher.Run.
func (c *TTLCache[K, V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshStaleEntries(ctx)
		}
	}
}

func (c *TTLCache[K, V]) refreshStaleEntries(ctx context.Context) {
	c.mu.RLock()
	due := make([]K, 0, len(c.entries))
	for key, e := range c.entries {
		if time.Since(e.fetchedAt) >= c.ttl-c.refreshAhead {
			due = append(due, key)
		}
	}
	c.mu.RUnlock()

	for _, key := range due {
		v, err := c.fetch(ctx, key)
		if err != nil {
			backgroundRefreshes.WithLabelValues(c.name, "error").Inc()
			c.logger.Warn().Err(err).Msg("background refresh failed, serving stale value")
			continue
		}

		c.mu.Lock()
		c.entries[key] = entry[V]{value: v, fetchedAt: time.Now()}
		c.mu.Unlock()
		backgroundRefreshes.WithLabelValues(c.name, "success").Inc()
	}
}
