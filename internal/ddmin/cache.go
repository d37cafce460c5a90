package ddmin

import (
	"context"

	"github.com/zeebo/xxh3"

	"github.com/aalhour/deltamin/internal/cache"
)

// DefaultCacheSize is the verdict capacity used when none is given.
const DefaultCacheSize = 1 << 16

type cacheKey struct {
	target string
	size   int
	sum    xxh3.Uint128
}

// CachingOracle memoizes the verdicts of another Oracle.
//
// Entries are keyed by target and the 128-bit XXH3 of the input, so a
// deterministic oracle is not asked about the same bytes twice while the
// verdict is cached. The least recently used verdicts are dropped beyond the
// capacity. Errors are not cached. Safe for concurrent use.
type CachingOracle struct {
	oracle   Oracle
	verdicts *cache.Sharded[cacheKey, int]
}

// NewCachingOracle wraps oracle with a verdict cache holding up to capacity
// entries. capacity <= 0 selects DefaultCacheSize.
func NewCachingOracle(oracle Oracle, capacity int) *CachingOracle {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &CachingOracle{
		oracle:   oracle,
		verdicts: cache.NewSharded[cacheKey, int](capacity, 0, func(k cacheKey) uint64 { return k.sum.Lo }),
	}
}

// Run implements Oracle.
func (c *CachingOracle) Run(ctx context.Context, target string, input []byte) (int, error) {
	key := cacheKey{target: target, size: len(input), sum: xxh3.Hash128(input)}

	if status, ok := c.verdicts.Get(key); ok {
		return status, nil
	}

	status, err := c.oracle.Run(ctx, target, input)
	if err != nil {
		return 0, err
	}
	c.verdicts.Add(key, status)
	return status, nil
}

// Hits returns the number of calls answered from the cache.
func (c *CachingOracle) Hits() int64 {
	return int64(c.verdicts.Hits())
}

// Misses returns the number of calls forwarded to the wrapped oracle.
func (c *CachingOracle) Misses() int64 {
	return int64(c.verdicts.Misses())
}

// Len returns the number of cached verdicts.
func (c *CachingOracle) Len() int {
	return c.verdicts.Len()
}
