package cache

import (
	"sync"
	"time"
)

type memoEntry struct {
	payload []byte
	expires time.Time
}

// TTLCache is the in-process BytesCache used when Redis is not configured.
// Expired entries are dropped lazily on read; the working set (one entry per
// run date and threshold) is small enough that no sweeper is needed.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]memoEntry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]memoEntry)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	c.entries[key] = memoEntry{payload: cp, expires: expires}
	c.mu.Unlock()
	return nil
}
