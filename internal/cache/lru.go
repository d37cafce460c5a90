// Package cache provides bounded in-memory caches.
//
// LRU is a thread-safe least-recently-used map with an entry-count capacity.
// Sharded spreads keys over several LRUs to reduce lock contention when many
// goroutines share one cache, as the parallel minimizer does.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a thread-safe LRU cache holding at most Capacity entries.
// A capacity of zero means unbounded.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	table    map[K]*list.Element
	lru      *list.List // front is most recently used

	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// getEntry extracts the entry from a list element.
// The type assertion is safe because the list only ever stores *entry[K, V].
func getEntry[K comparable, V any](elem *list.Element) *entry[K, V] {
	e, _ := elem.Value.(*entry[K, V])
	return e
}

// NewLRU creates an LRU cache with the given capacity in entries.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: max(capacity, 0),
		table:    make(map[K]*list.Element),
		lru:      list.New(),
	}
}

// Add inserts or updates key and marks it most recently used.
// It returns true if an older entry was evicted to make room.
func (c *LRU[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		getEntry[K, V](elem).value = value
		c.lru.MoveToFront(elem)
		return false
	}

	evicted := false
	for c.capacity > 0 && c.lru.Len() >= c.capacity {
		c.evictOne()
		evicted = true
	}
	c.table[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value})
	return evicted
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		c.lru.MoveToFront(elem)
		c.hits.Add(1)
		return getEntry[K, V](elem).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Remove deletes key if present.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		c.removeElement(elem)
	}
}

// SetCapacity changes the capacity, evicting entries if the cache is over it.
func (c *LRU[K, V]) SetCapacity(capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = max(capacity, 0)
	for c.capacity > 0 && c.lru.Len() > c.capacity {
		c.evictOne()
	}
}

// Capacity returns the maximum number of entries (0 = unbounded).
func (c *LRU[K, V]) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge removes all entries. Hit and miss counters are kept.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = make(map[K]*list.Element)
	c.lru.Init()
}

// Hits returns the number of successful lookups.
func (c *LRU[K, V]) Hits() uint64 {
	return c.hits.Load()
}

// Misses returns the number of failed lookups.
func (c *LRU[K, V]) Misses() uint64 {
	return c.misses.Load()
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (c *LRU[K, V]) HitRate() float64 {
	return hitRate(c.Hits(), c.Misses())
}

// evictOne removes the least recently used entry.
// Must be called with mu held.
func (c *LRU[K, V]) evictOne() {
	if elem := c.lru.Back(); elem != nil {
		c.removeElement(elem)
	}
}

// removeElement must be called with mu held.
func (c *LRU[K, V]) removeElement(elem *list.Element) {
	delete(c.table, getEntry[K, V](elem).key)
	c.lru.Remove(elem)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// =============================================================================
// Sharded LRU (for better concurrency)
// =============================================================================

// Sharded is an LRU cache split into independently locked shards.
// Eviction order is per shard, so the cache as a whole is approximately LRU.
type Sharded[K comparable, V any] struct {
	shards    []*LRU[K, V]
	numShards uint64
	hash      func(K) uint64
}

// NewSharded creates a sharded cache with the given total capacity in entries
// (0 = unbounded). numShards is rounded up to a power of two; values <= 0 select
// 16. hash must spread keys uniformly.
func NewSharded[K comparable, V any](capacity, numShards int, hash func(K) uint64) *Sharded[K, V] {
	if numShards <= 0 {
		numShards = 16 // Default
	}
	numShards = nextPowerOf2(numShards)

	c := &Sharded[K, V]{
		shards:    make([]*LRU[K, V], numShards),
		numShards: uint64(numShards),
		hash:      hash,
	}
	for i := 0; i < numShards; i++ {
		c.shards[i] = NewLRU[K, V](shardCapacity(capacity, numShards))
	}
	return c
}

func shardCapacity(capacity, numShards int) int {
	if capacity <= 0 {
		return 0
	}
	return max(capacity/numShards, 1)
}

func nextPowerOf2(n int) int {
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

func (c *Sharded[K, V]) shard(key K) *LRU[K, V] {
	return c.shards[c.hash(key)&(c.numShards-1)]
}

// Add inserts or updates key. It returns true if an entry was evicted.
func (c *Sharded[K, V]) Add(key K, value V) bool {
	return c.shard(key).Add(key, value)
}

// Get returns the value for key.
func (c *Sharded[K, V]) Get(key K) (V, bool) {
	return c.shard(key).Get(key)
}

// Remove deletes key if present.
func (c *Sharded[K, V]) Remove(key K) {
	c.shard(key).Remove(key)
}

// SetCapacity redistributes a new total capacity over the shards.
func (c *Sharded[K, V]) SetCapacity(capacity int) {
	per := shardCapacity(capacity, len(c.shards))
	for _, s := range c.shards {
		s.SetCapacity(per)
	}
}

// Capacity returns the total capacity (0 = unbounded).
func (c *Sharded[K, V]) Capacity() int {
	total := 0
	for _, s := range c.shards {
		total += s.Capacity()
	}
	return total
}

// Len returns the number of entries across shards.
func (c *Sharded[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Purge removes all entries.
func (c *Sharded[K, V]) Purge() {
	for _, s := range c.shards {
		s.Purge()
	}
}

// Hits returns the total number of successful lookups.
func (c *Sharded[K, V]) Hits() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.Hits()
	}
	return total
}

// Misses returns the total number of failed lookups.
func (c *Sharded[K, V]) Misses() uint64 {
	var total uint64
	for _, s := range c.shards {
		total += s.Misses()
	}
	return total
}

// HitRate returns the overall cache hit rate.
func (c *Sharded[K, V]) HitRate() float64 {
	return hitRate(c.Hits(), c.Misses())
}
