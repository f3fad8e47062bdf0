// Package cache provides a generic cost-bounded LRU cache.
//
// Cache[K, V] keeps values together with a caller-supplied cost (for shader
// blobs, their size in bytes). When the total cost exceeds the budget, least
// recently used entries are evicted until it fits again.
//
//	c := cache.New[[32]byte, []byte](64<<20, func(b []byte) int64 { return int64(len(b)) })
//	c.Set(key, blob)
//	blob, ok := c.Get(key)
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
