package fetchpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrFetchReturnsValue(t *testing.T) {
	p := New[string](4)
	v, ok, err := p.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, bool, error) {
		return "hello", true, nil
	})
	if err != nil || !ok || v != "hello" {
		t.Fatalf("unexpected result: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestEmptyResultNotCached(t *testing.T) {
	p := New[string](4)
	var calls int32

	fetch := func(ctx context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "", false, nil
	}

	p.GetOrFetch(context.Background(), "k", fetch)
	p.GetOrFetch(context.Background(), "k", fetch)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected a ∅ result to never be cached (2 calls), got %d", got)
	}
}

func TestErrorRemovesInflightRecordForRetry(t *testing.T) {
	p := New[string](4)
	boom := errors.New("boom")
	var calls int32

	fetch := func(ctx context.Context) (string, bool, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "", false, boom
		}
		return "ok", true, nil
	}

	_, ok, err := p.GetOrFetch(context.Background(), "k", fetch)
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected first call to fail with boom, got ok=%v err=%v", ok, err)
	}

	v, ok, err := p.GetOrFetch(context.Background(), "k", fetch)
	if err != nil || !ok || v != "ok" {
		t.Fatalf("expected retry to succeed, got v=%q ok=%v err=%v", v, ok, err)
	}
}

// TestDedupInFlight exercises: concurrent callers for the same key during
// an in-flight fetch must subscribe to it rather than triggering a second
// fetch.
func TestDedupInFlight(t *testing.T) {
	p := New[string](4)
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", true, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := p.GetOrFetch(context.Background(), "same-key", fetch)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 underlying fetch for %d concurrent callers, got %d", n, got)
	}
	for i, v := range results {
		if v != "v" {
			t.Fatalf("result[%d] = %q, want %q", i, v, "v")
		}
	}
}

// TestBoundedConcurrency exercises spec §8 scenario S5: at no moment may
// more fetch_fn invocations be in flight than the configured maximum.
func TestBoundedConcurrency(t *testing.T) {
	p := New[int](2)
	var current, maxSeen int32

	fetch := func(ctx context.Context) (int, bool, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return 1, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.GetOrFetch(context.Background(), string(rune('a'+i)), fetch)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxSeen); got > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, observed %d", got)
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) Set(key string, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]string)
	}
	c.data[key] = value
}

func TestRawCacheShortCircuitsFetch(t *testing.T) {
	p := New[string](4).WithRawCache(&mapCache{})
	var calls int32
	fetch := func(ctx context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "v", true, nil
	}

	p.GetOrFetch(context.Background(), "k", fetch)
	p.GetOrFetch(context.Background(), "k", fetch)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected raw cache hit to skip the second fetch, got %d calls", got)
	}
}

func TestTTLCacheExpiresPerKey(t *testing.T) {
	now := time.Now()
	c := NewTTLCache[string](func(key string) time.Duration {
		if key == "short" {
			return time.Minute
		}
		return 0 // permanent
	})
	c.now = func() time.Time { return now }

	c.Set("short", "a")
	c.Set("permanent", "b")

	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("short"); ok {
		t.Fatalf("expected short-TTL entry to have expired")
	}
	if v, ok := c.Get("permanent"); !ok || v != "b" {
		t.Fatalf("expected permanent entry to survive, got v=%q ok=%v", v, ok)
	}
}

func TestTTLCacheGatesFetchPool(t *testing.T) {
	p := New[string](4).WithRawCache(NewTTLCache[string](func(string) time.Duration { return time.Hour }))
	var calls int32
	fetch := func(ctx context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "v", true, nil
	}

	p.GetOrFetch(context.Background(), "k", fetch)
	p.GetOrFetch(context.Background(), "k", fetch)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected TTL cache hit to skip the second fetch, got %d calls", got)
	}
}
