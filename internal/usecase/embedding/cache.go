package embedding

import (
	"crypto/sha256"
	"sync"
)

// fifoCache is a bounded text→vector cache. Eviction is insertion-order,
// which is good enough for the repeated-query pattern it serves.
type fifoCache struct {
	mu    sync.Mutex
	cap   int
	items map[[32]byte][]float32
	order [][32]byte
}

func newFIFOCache(capacity int) *fifoCache {
	return &fifoCache{
		cap:   capacity,
		items: make(map[[32]byte][]float32, capacity),
	}
}

func (c *fifoCache) get(text string) ([]float32, bool) {
	key := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.items[key]
	return vec, ok
}

func (c *fifoCache) put(text string, vec []float32) {
	key := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		return
	}

	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}

	c.items[key] = vec
	c.order = append(c.order, key)
}
