// Package dedupe guards that each context key is estimated at most once per run.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Claims records which (run, key) pairs have been taken by a worker.
type Claims interface {
	// Claim atomically takes key for runID. It returns true if the caller now
	// owns the key and false if another worker already claimed it.
	Claim(ctx context.Context, runID, key string) bool

	// Release gives a claimed key back, e.g. when it could not be enqueued.
	Release(ctx context.Context, runID, key string)

	// Forget drops every claim of a finished run.
	Forget(ctx context.Context, runID string)

	Size() int64
}

// inMemoryClaims keeps one key set per run. When maxRuns > 0 the oldest run
// is evicted once the limit is exceeded; otherwise runs are kept until
// forgotten.
type inMemoryClaims struct {
	mu      sync.Mutex
	runs    map[string]*list.Element // runID -> element holding *runClaims
	order   *list.List               // oldest run at the front
	maxRuns int
	size    atomic.Int64
}

type runClaims struct {
	id   string
	keys map[string]struct{}
}

// NewInMemoryClaims creates an in-memory claims registry.
func NewInMemoryClaims(opts ...Option) Claims {
	c := &inMemoryClaims{
		runs:    make(map[string]*list.Element),
		order:   list.New(),
		maxRuns: 64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *inMemoryClaims) Claim(ctx context.Context, runID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.runs[runID]
	if !ok {
		el = c.order.PushBack(&runClaims{id: runID, keys: make(map[string]struct{})})
		c.runs[runID] = el
		c.evict()
	}
	rc := el.Value.(*runClaims)
	if _, taken := rc.keys[key]; taken {
		return false
	}
	rc.keys[key] = struct{}{}
	c.size.Add(1)
	return true
}

func (c *inMemoryClaims) Release(ctx context.Context, runID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.runs[runID]
	if !ok {
		return
	}
	rc := el.Value.(*runClaims)
	if _, taken := rc.keys[key]; taken {
		delete(rc.keys, key)
		c.size.Add(-1)
	}
}

func (c *inMemoryClaims) Forget(ctx context.Context, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.runs[runID]; ok {
		c.remove(el)
	}
}

// evict drops the oldest runs beyond maxRuns. Must be called with c.mu held.
func (c *inMemoryClaims) evict() {
	if c.maxRuns <= 0 {
		return
	}
	for c.order.Len() > c.maxRuns {
		c.remove(c.order.Front())
	}
}

// remove must be called with c.mu held.
func (c *inMemoryClaims) remove(el *list.Element) {
	rc := el.Value.(*runClaims)
	c.order.Remove(el)
	delete(c.runs, rc.id)
	c.size.Add(-int64(len(rc.keys)))
}

// Size returns the number of live claims across all runs.
func (c *inMemoryClaims) Size() int64 {
	return c.size.Load()
}
