package querycache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/darkfriend77/polka-xplo-sub000/internal/rpcpool"
)

// ChainProperties mirrors system_properties()'s response shape: token
// decimals/symbol and the SS58 address-format byte, all of which change
// only on a runtime upgrade, making them a natural fit for the
// background-refreshed TTL cache rather than an RPC on every use.
type ChainProperties struct {
	TokenDecimals int    `json:"tokenDecimals"`
	TokenSymbol   string `json:"tokenSymbol"`
	SS58Format    int    `json:"ss58Format"`
}

const chainPropertiesKey = "chain_properties"

// NewChainPropertiesCache builds a single-entry TTLCache fronting
// system_properties(). A long TTL (it rarely changes) with a shorter
// refreshAhead window keeps it warm without hammering the RPC pool.
func NewChainPropertiesCache(pool *rpcpool.Pool, logger zerolog.Logger) *TTLCache[string, ChainProperties] {
	fetch := func(ctx context.Context, _ string) (ChainProperties, error) {
		return rpcpool.Call[ChainProperties](ctx, pool, "system_properties", []any{})
	}
	return New("chain_properties", 10*time.Minute, 2*time.Minute, fetch, logger)
}

// ChainPropertiesGet returns the cached chain properties, fetching on first use.
func ChainPropertiesGet(ctx context.Context, c *TTLCache[string, ChainProperties]) (ChainProperties, error) {
	return c.Get(ctx, chainPropertiesKey)
}
