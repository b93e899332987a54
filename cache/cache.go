package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/tukibridge/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.FetchResponse
	createdAt time.Time
}

// Cache is a small in-memory cache for successful fetch responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a Cache holding up to maxEntries responses for ttl each.
// A background goroutine evicts expired entries every ttl (at least once a
// minute) until Close is called.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	if ttl > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Key generates a cache key from the target account and kind.
func Key(target string, kind models.Kind) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(target))))
	h.Write([]byte("|"))
	h.Write([]byte(kind))
	return hex.EncodeToString(h.Sum(nil))
}

// Enabled reports whether responses are cached at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get returns a cached response younger than the TTL.
func (c *Cache) Get(key string) (models.FetchResponse, bool) {
	if !c.Enabled() {
		return models.FetchResponse{}, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return models.FetchResponse{}, false
	}
	return e.response, true
}

// Set stores a response. Only successful responses are cached. If the cache is
// at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, resp models.FetchResponse) {
	if !c.Enabled() || !resp.Success {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Map iteration order is random.
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  resp,
		createdAt: c.now(),
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	interval := c.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
