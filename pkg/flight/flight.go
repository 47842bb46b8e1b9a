// Package flight coalesces concurrent calls for the same key and keeps
// successful results for a fixed time.
package flight

import (
	"context"
	"sync"
	"time"
)

type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	finished map[K]entry[V]
	pending  map[K]*job[V]

	work func(context.Context, K) (V, error)
	ttl  time.Duration
	now  func() time.Time
}

type entry[V any] struct {
	val      V
	deadline time.Time // zero => never expires
}

type job[V any] struct {
	val  V
	err  error
	done chan struct{}
}

// NewCache returns a cache that computes misses with work and keeps results
// for ttl. ttl <= 0 keeps results forever.
func NewCache[K comparable, V any](ttl time.Duration, work func(context.Context, K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		finished: make(map[K]entry[V]),
		pending:  make(map[K]*job[V]),
		work:     work,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a cached value or joins (or starts) the computation for k.
// Errors are not cached. The computation runs detached from any caller's
// cancellation; a caller whose ctx ends first returns ctx.Err() while the
// computation continues for the others.
func (c *Cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	c.mu.Lock()
	if e, ok := c.finished[k]; ok {
		if e.deadline.IsZero() || c.now().Before(e.deadline) {
			c.mu.Unlock()
			return e.val, nil
		}
		delete(c.finished, k)
	}

	j, ok := c.pending[k]
	if !ok {
		j = &job[V]{done: make(chan struct{})}
		c.pending[k] = j
		go c.run(context.WithoutCancel(ctx), k, j)
	}
	c.mu.Unlock()

	select {
	case <-j.done:
		return j.val, j.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[K, V]) run(ctx context.Context, k K, j *job[V]) {
	j.val, j.err = c.work(ctx, k)

	c.mu.Lock()
	if j.err == nil {
		c.store(k, j.val)
	}
	delete(c.pending, k)
	close(j.done)
	c.mu.Unlock()
}

// Forget drops any cached value for k.
func (c *Cache[K, V]) Forget(k K) {
	c.mu.Lock()
	delete(c.finished, k)
	c.mu.Unlock()
}

// Len counts cached entries, expired ones included until next touched.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finished)
}

func (c *Cache[K, V]) store(k K, v V) {
	e := entry[V]{val: v}
	if c.ttl > 0 {
		e.deadline = c.now().Add(c.ttl)
	}
	c.finished[k] = e
}
