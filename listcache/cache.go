// Package listcache memoizes a single remote list fetch for the lifetime of
// the process.
package listcache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the list from the remote store.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Cache holds one list. Concurrent callers share one in-flight fetch. A
// successful result is kept forever; a failed fetch leaves the cache empty so
// the next Get fetches again.
type Cache[T any] struct {
	fetch Fetcher[T]
	group singleflight.Group

	mu     sync.RWMutex
	items  []T
	loaded bool
}

func New[T any](fetch Fetcher[T]) *Cache[T] {
	return &Cache[T]{fetch: fetch}
}

// Get returns the cached list, joining or starting the fetch as needed. The
// returned slice is shared between callers and must not be modified.
//
// The fetch itself is not tied to ctx: a caller giving up stops waiting, but
// the fetch still completes and fills the cache.
func (c *Cache[T]) Get(ctx context.Context) ([]T, error) {
	if items, ok := c.cached(); ok {
		return items, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("list", func() (any, error) {
		if items, ok := c.cached(); ok {
			return items, nil
		}
		items, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items, c.loaded = items, true
		c.mu.Unlock()
		return items, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether a fetch has succeeded.
func (c *Cache[T]) Loaded() bool {
	_, ok := c.cached()
	return ok
}

func (c *Cache[T]) cached() ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items, c.loaded
}
