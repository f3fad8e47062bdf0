package cache

import "sync"

// Cache is a generic thread-safe LRU cache bounded by total cost.
//
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	costFn  func(V) int64
	budget  int64
	total   int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most budget total cost.
// A budget of 0 means unlimited. A nil costFn charges 1 per entry.
func New[K comparable, V any](budget int64, costFn func(V) int64) *Cache[K, V] {
	if costFn == nil {
		costFn = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		costFn:  costFn,
		budget:  budget,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(node)
	return node.value, true
}

// Set stores a value, replacing any previous one under key, then evicts
// least recently used entries while the total cost exceeds the budget.
// A single value costing more than the whole budget is not stored.
func (c *Cache[K, V]) Set(key K, value V) bool {
	cost := c.costFn(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.budget > 0 && cost > c.budget {
		return false
	}
	if old, ok := c.entries[key]; ok {
		c.total -= old.cost
		old.value = value
		old.cost = cost
		c.total += cost
		c.order.moveToFront(old)
	} else {
		node := &lruNode[K, V]{key: key, value: value, cost: cost}
		c.entries[key] = node
		c.order.pushFront(node)
		c.total += cost
	}
	c.evict()
	return true
}

// GetOrLoad returns the cached value or stores the result of load.
// load runs under the cache lock so concurrent callers never load twice.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[key]; ok {
		c.hits++
		c.order.moveToFront(node)
		return node.value, true, nil
	}
	c.misses++

	value, err := load()
	if err != nil {
		var zero V
		return zero, false, err
	}
	cost := c.costFn(value)
	if c.budget > 0 && cost > c.budget {
		return value, false, nil
	}
	node := &lruNode[K, V]{key: key, value: value, cost: cost}
	c.entries[key] = node
	c.order.pushFront(node)
	c.total += cost
	c.evict()
	return value, false, nil
}

// Delete removes an entry. Returns true if it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(node)
	return true
}

// Clear removes all entries and resets the counters.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*lruNode[K, V])
	c.order.clear()
	c.total = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cost returns the total cost of all entries.
func (c *Cache[K, V]) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Budget returns the configured cost budget.
func (c *Cache[K, V]) Budget() int64 {
	return c.budget
}

// Each calls fn for every entry from least to most recently used, so that
// replaying the calls into Set reproduces the recency order.
// fn must not call back into the cache.
func (c *Cache[K, V]) Each(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n := c.order.tail; n != nil; n = n.prev {
		fn(n.key, n.value)
	}
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Cost:      c.total,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evict drops least recently used entries until total fits the budget.
// Caller must hold c.mu.
func (c *Cache[K, V]) evict() {
	if c.budget <= 0 {
		return
	}
	for c.total > c.budget {
		node := c.order.oldest()
		if node == nil {
			return
		}
		c.remove(node)
		c.evictions++
	}
}

// remove must be called with c.mu held.
func (c *Cache[K, V]) remove(node *lruNode[K, V]) {
	c.order.unlink(node)
	delete(c.entries, node.key)
	c.total -= node.cost
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Cost is the summed cost of all entries.
	Cost int64
	// Budget is the configured cost budget (0 = unlimited).
	Budget int64
	// Hits is the number of lookups that found an entry.
	Hits uint64
	// Misses is the number of lookups that did not.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when there were no lookups.
	HitRate float64
	// Evictions is the number of entries dropped to stay within budget.
	Evictions uint64
}
