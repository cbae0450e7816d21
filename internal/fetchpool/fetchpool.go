// Package fetchpool implements the cached-fetch pool (spec §4.6): a
// bounded-concurrency, dedup-by-key front end to external data-source
// calls. The dedup-by-key coordination follows the same shape as
// golang.org/x/sync/singleflight, grounded on the controller in
// blampe/rreading-glasses, which coalesces concurrent lookups for the
// same key inside a singleflight.Group in front of its upstream fetch.
package fetchpool

import (
	"context"
	"sync"
	"time"
)

// RawCache is the pool's optional raw-response cache (the
// datasource.cache_ttl.<kind> option of spec §6), distinct from the
// entity-info cache one layer up: it memoizes a fetch_fn's result by key
// so a retried key within the TTL window never reaches the network at
// all, regardless of which entity ends up resolving to it.
type RawCache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
}

// Pool bounds global concurrency into a data source with a semaphore and
// deduplicates concurrent fetches of the same key, per spec §4.6.
type Pool[T any] struct {
	sem   chan struct{}
	cache RawCache[T] // nil disables raw-response caching

	mu       sync.Mutex
	inflight map[string]*call[T]
}

type call[T any] struct {
	done chan struct{}
	val  T
	ok   bool
	err  error
}

// TTLCache is an in-process RawCache with per-key expiry, mirroring
// infostore.Memory's entry/expired shape one layer up but keyed by the
// fetch pool's raw string key rather than a canonical ID. ttlFor maps a
// key to its TTL (e.g. by inspecting the kind prefix fetchKey encodes);
// a zero TTL means the entry never expires, matching every other TTL
// knob in this codebase (spec §6: "∅ = permanent").
type TTLCache[T any] struct {
	ttlFor func(key string) time.Duration

	mu   sync.Mutex
	data map[string]ttlEntry[T]
	now  func() time.Time
}

type ttlEntry[T any] struct {
	value   T
	expires time.Time
}

func (e ttlEntry[T]) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// NewTTLCache creates a TTLCache whose per-entry expiry is decided by
// ttlFor at Set time.
func NewTTLCache[T any](ttlFor func(key string) time.Duration) *TTLCache[T] {
	return &TTLCache[T]{
		ttlFor: ttlFor,
		data:   make(map[string]ttlEntry[T]),
		now:    time.Now,
	}
}

// Get implements RawCache.
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.data, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set implements RawCache.
func (c *TTLCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := ttlEntry[T]{value: value}
	if ttl := c.ttlFor(key); ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.data[key] = e
}

// New creates a Pool whose fetch_fn concurrency is capped at maxConcurrent.
func New[T any](maxConcurrent int) *Pool[T] {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool[T]{
		sem:      make(chan struct{}, maxConcurrent),
		inflight: make(map[string]*call[T]),
	}
}

// WithRawCache attaches a raw-response cache to the pool, checked before
// any fetch or dedup bookkeeping. Safe to call only before the pool
// receives concurrent traffic.
func (p *Pool[T]) WithRawCache(cache RawCache[T]) *Pool[T] {
	p.cache = cache
	return p
}

// FetchFunc performs the actual (blocking, suspendable) external call. A
// zero value with ok=false is a transient failure: the caller should
// retry on a later BFS pass, and the pool never caches it (spec §4.6).
type FetchFunc[T any] func(ctx context.Context) (value T, ok bool, err error)

// GetOrFetch returns the in-flight or newly fetched value for key. If
// another caller is already fetching key, this call subscribes to that
// attempt instead of starting a new one. The fetch itself always runs
// outside the critical section that coordinates dedup and the semaphore
// (spec §4.6: "the fetch itself runs outside it").
func (p *Pool[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (value T, ok bool, err error) {
	if p.cache != nil {
		if v, hit := p.cache.Get(key); hit {
			return v, true, nil
		}
	}

	p.mu.Lock()
	if c, inflight := p.inflight[key]; inflight {
		p.mu.Unlock()
		return p.await(ctx, c)
	}
	c := &call[T]{done: make(chan struct{})}
	p.inflight[key] = c
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
		close(c.done)
		var zero T
		return zero, false, ctx.Err()
	}

	v, fetchOK, fetchErr := fetch(ctx)
	<-p.sem

	// A non-∅ result is the only thing worth reporting to subscribers;
	// ∅ and error results are never cached by design (spec §4.6), so the
	// in-flight record is torn down immediately either way — there is
	// nothing durable to leave behind.
	c.val, c.ok, c.err = v, fetchOK, fetchErr
	if fetchOK && fetchErr == nil && p.cache != nil {
		p.cache.Set(key, v)
	}

	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
	close(c.done)

	return v, fetchOK, fetchErr
}

func (p *Pool[T]) await(ctx context.Context, c *call[T]) (T, bool, error) {
	select {
	case <-c.done:
		return c.val, c.ok, c.err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}
