package dimension

import "sync"

// Cache maps natural business keys to surrogate keys for one dimension.
// It is read-through and write-back only: the warehouse remains authoritative,
// the cache just avoids a round trip per record. Each loader run owns its own
// cache instances; they are never shared across unrelated runs.
type Cache struct {
	mu   sync.RWMutex
	keys map[string]int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{keys: make(map[string]int)}
}

// Get returns the surrogate key for a natural key, if cached.
func (c *Cache) Get(naturalKey string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[naturalKey]
	return key, ok
}

// Put records a natural-to-surrogate key mapping.
func (c *Cache) Put(naturalKey string, surrogateKey int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[naturalKey] = surrogateKey
}

// Fill replaces the cache contents wholesale, used when warming from the
// dimension table at loader start.
func (c *Cache) Fill(keys map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = make(map[string]int, len(keys))
	for k, v := range keys {
		c.keys[k] = v
	}
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
