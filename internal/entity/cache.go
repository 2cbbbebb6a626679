package entity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Cache is a bounded identity map from entity identity to its wrapper.
//
// One mutex guards every lookup-or-insert, eviction and bulk operation.
// Eviction only drops the cache slot: a wrapper evicted while a caller still
// holds it is not marked stale, and the next lookup creates a new wrapper.
type Cache[T any] struct {
	mu    sync.Mutex
	lru   *simplelru.LRU[int64, T]
	loads singleflight.Group
	name  string
}

// NewCache returns a cache holding at most size wrappers.
func NewCache[T any](name string, size int) (*Cache[T], error) {
	c := &Cache[T]{name: name}
	lru, err := simplelru.NewLRU[int64, T](size, func(id int64, _ T) {
		slog.Debug("identity cache eviction", "cache", name, "id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	c.lru = lru
	return c, nil
}

// Get returns the cached wrapper and marks it recently used.
func (c *Cache[T]) Get(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(id)
}

// Peek returns the cached wrapper without touching recency.
func (c *Cache[T]) Peek(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(id)
}

// Add inserts v unless a wrapper for id is already cached. It returns the
// canonical wrapper and whether v was inserted.
func (c *Cache[T]) Add(id int64, v T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.lru.Get(id); ok {
		return existing, false
	}
	c.lru.Add(id, v)
	return v, true
}

// GetOrLoad returns the cached wrapper for id, calling load on a miss.
// Concurrent misses for the same identity share one load. The shared load
// ignores the cancellation of whichever caller started it; each caller
// stops waiting when its own ctx is done.
func (c *Cache[T]) GetOrLoad(ctx context.Context, id int64, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(id); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		if v, ok := c.Get(id); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		canonical, _ := c.Add(id, v)
		return canonical, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Remove drops id from the cache.
func (c *Cache[T]) Remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(id)
}

// Expunge drops every listed identity without marking the wrappers stale.
// It returns how many were cached.
func (c *Cache[T]) Expunge(ids []int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if c.lru.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("identity cache expunge", "cache", c.name, "requested", len(ids), "removed", removed)
	}
	return removed
}

// Clear drops every cached wrapper.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of cached wrappers.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
