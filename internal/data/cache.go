package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"trading-backtest/internal/model"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache. Expired entries are invisible to Get
// and are swept periodically until Close is called.
type Cache[V any] struct {
	mu    sync.RWMutex
	store map[string]cacheEntry[V]
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewCache[V any](ttl, sweep time.Duration) *Cache[V] {
	c := &Cache[V]{
		store: make(map[string]cacheEntry[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if sweep > 0 {
		go c.cleanup(sweep)
	}
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.store[key]
	if !ok || c.now().After(entry.expiresAt) {
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.store {
		if now.After(entry.expiresAt) {
			delete(c.store, key)
		}
	}
}

func (c *Cache[V]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// FileKey identifies a file's current contents by path, size and mtime, so
// a cached parse is dropped as soon as the file changes.
func FileKey(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	raw := fmt.Sprintf("%s:%d:%d", path, fi.Size(), fi.ModTime().UnixNano())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// BarCache memoises parsed data files.
type BarCache struct {
	*Cache[[]model.Bar]
}

func NewBarCache(ttl time.Duration) *BarCache {
	return &BarCache{Cache: NewCache[[]model.Bar](ttl, 5*time.Minute)}
}

// Load returns the bars in path, parsing the file only when it changed or
// the cached copy expired. Callers must not modify the returned slice.
func (c *BarCache) Load(path string) ([]model.Bar, error) {
	key, err := FileKey(path)
	if err != nil {
		return nil, err
	}
	if bars, ok := c.Get(key); ok {
		return bars, nil
	}
	bars, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.Set(key, bars)
	return bars, nil
}
