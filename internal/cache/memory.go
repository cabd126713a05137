package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"statarb-spread/internal/model"
)

type memoryEntry struct {
	candles []model.Candle
	expires time.Time
}

// MemoryCache 进程内 TTL 缓存
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache now 为 nil 时使用 time.Now
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]model.Candle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return slices.Clone(e.candles), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	if ttl <= 0 {
		delete(c.entries, key)
		return nil
	}
	c.entries[key] = memoryEntry{candles: slices.Clone(candles), expires: now.Add(ttl)}
	return nil
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
