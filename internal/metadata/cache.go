package metadata

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
	"github.com/darkfriend77/polka-xplo-sub000/internal/scale"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metadata_cache_hits_total",
		Help: "Metadata cache hits by cache name.",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metadata_cache_misses_total",
		Help: "Metadata cache misses by cache name.",
	}, []string{"cache"})

	inflightFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metadata_inflight_fetch_joins_total",
		Help: "Number of ensure_metadata calls that joined an in-flight fetch instead of starting a new one.",
	})
)

const (
	hashCacheCapacity   = 10_000
	lookupCacheCapacity = 50
)

// Cache implements ensure_metadata(block_hash) -> (lookup, spec_version),
// per spec §4.3: a bounded LRU mapping block hash to spec version, a second
// bounded LRU mapping spec version to its decoded Lookup, and a
// singleflight group making concurrent fetches of the same spec version
// share one underlying state_getMetadata call.
type Cache struct {
	pool *rpcpool.Pool

	hashToSpec   *lru.Cache[string, uint32]
	specToLookup *lru.Cache[uint32, *Lookup]
	fetchGroup   singleflight.Group

	logger *zerolog.Logger
}

// NewCache builds a Cache backed by the given RPC pool for
// state_getRuntimeVersion/state_getMetadata calls.
func NewCache(pool *rpcpool.Pool, logger *zerolog.Logger) (*Cache, error) {
	hashToSpec, err := lru.New[string, uint32](hashCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("metadata: build hash->spec cache: %w", err)
	}
	specToLookup, err := lru.New[uint32, *Lookup](lookupCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("metadata: build spec->lookup cache: %w", err)
	}
	return &Cache{
		pool:         pool,
		hashToSpec:   hashToSpec,
		specToLookup: specToLookup,
		logger:       logger,
	}, nil
}

type runtimeVersion struct {
	SpecVersion uint32 `json:"specVersion"`
}

// EnsureMetadata resolves the Lookup and spec version for a block hash,
// satisfying both levels of the cache and the in-flight dedup requirement.
func (c *Cache) EnsureMetadata(ctx context.Context, blockHash string) (*Lookup, uint32, error) {
	specVersion, ok := c.hashToSpec.Get(blockHash)
	if ok {
		cacheHits.WithLabelValues("hash_to_spec").Inc()
	} else {
		cacheMisses.WithLabelValues("hash_to_spec").Inc()
		rv, err := rpcpool.Call[runtimeVersion](ctx, c.pool, "state_getRuntimeVersion", []any{blockHash})
		if err != nil {
			return nil, 0, fmt.Errorf("metadata: state_getRuntimeVersion(%s): %w", blockHash, err)
		}
		specVersion = rv.SpecVersion
		c.hashToSpec.Add(blockHash, specVersion)
	}

	if lookup, ok := c.specToLookup.Get(specVersion); ok {
		cacheHits.WithLabelValues("spec_to_lookup").Inc()
		return lookup, specVersion, nil
	}
	cacheMisses.WithLabelValues("spec_to_lookup").Inc()

	lookup, err := c.fetchLookup(ctx, blockHash, specVersion)
	if err != nil {
		return nil, 0, err
	}
	return lookup, specVersion, nil
}

// fetchLookup performs (or joins) the single underlying state_getMetadata
// fetch for a spec version.
func (c *Cache) fetchLookup(ctx context.Context, blockHash string, specVersion uint32) (*Lookup, error) {
	key := fmt.Sprintf("%d", specVersion)

	result, err, shared := c.fetchGroup.Do(key, func() (any, error) {
		// re-check: another goroutine may have populated the cache between
		// our miss above and acquiring the singleflight slot.
		if lookup, ok := c.specToLookup.Get(specVersion); ok {
			return lookup, nil
		}

		raw, err := rpcpool.Call[string](ctx, c.pool, "state_getMetadata", []any{blockHash})
		if err != nil {
			return nil, fmt.Errorf("metadata: state_getMetadata(%s): %w", blockHash, err)
		}

		rawBytes, err := scale.HexToBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: decode hex payload: %w", err)
		}

		lookup, err := DecodeFrameMetadata(rawBytes, specVersion)
		if err != nil {
			return nil, fmt.Errorf("metadata: decode spec version %d: %w", specVersion, err)
		}

		c.specToLookup.Add(specVersion, lookup)
		return lookup, nil
	})

	if shared {
		inflightFetches.Inc()
		c.logger.Debug().Uint32("spec_version", specVersion).Msg("joined in-flight metadata fetch")
	}

	if err != nil {
		return nil, err
	}
	return result.(*Lookup), nil
}
