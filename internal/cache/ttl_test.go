package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTTLCache_HitBeforeTTL_MissAtTTL(t *testing.T) {
	// Given: a cache with a 100ms TTL
	clock := newFakeClock()
	c := New[string](Config{Enabled: true, TTL: 100 * time.Millisecond, MaxEntries: 10},
		WithClock[string](clock.Now))

	c.Put("k", "v")

	// Then: any time < TTL is a hit
	clock.Advance(99 * time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit just before TTL, got ok=%v v=%q", ok, v)
	}

	// And: time >= TTL is a guaranteed miss
	clock.Advance(1 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss at exactly TTL")
	}
}

func TestTTLCache_DisabledAlwaysMisses(t *testing.T) {
	c := New[int](Config{Enabled: false, TTL: time.Minute, MaxEntries: 10})

	c.Put("k", 42)

	if _, ok := c.Get("k"); ok {
		t.Fatal("disabled cache must always miss")
	}
	if c.Len() != 0 {
		t.Fatalf("disabled cache must not store entries, got %d", c.Len())
	}
}

func TestTTLCache_BoundedEviction(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Config{Enabled: true, TTL: time.Minute, MaxEntries: 3},
		WithClock[int](clock.Now))

	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}

	if c.Len() > 3 {
		t.Fatalf("cache exceeded bound: %d entries", c.Len())
	}
	// Oldest insertions go first.
	if _, ok := c.Get("k0"); ok {
		t.Error("k0 should have been evicted")
	}
	if v, ok := c.Get("k4"); !ok || v != 4 {
		t.Errorf("latest entry should survive, got ok=%v v=%d", ok, v)
	}
}

func TestTTLCache_ExpiredEvictedBeforeFresh(t *testing.T) {
	// Given: a full cache where the first entries are already stale
	clock := newFakeClock()
	c := New[int](Config{Enabled: true, TTL: 50 * time.Millisecond, MaxEntries: 2},
		WithClock[int](clock.Now))

	c.Put("stale", 1)
	clock.Advance(60 * time.Millisecond)
	c.Put("fresh", 2)

	// When: writing under capacity pressure
	c.Put("new", 3)

	// Then: the expired entry made room, the fresh one survives
	if _, ok := c.Get("stale"); ok {
		t.Error("stale entry should be gone")
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry should survive eviction")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("new entry should be present")
	}
}

func TestTTLCache_GetEntryExposesFreshness(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Config{Enabled: true, TTL: time.Second, MaxEntries: 10},
		WithClock[string](clock.Now))

	c.Put("k", "v")
	clock.Advance(300 * time.Millisecond)

	entry, ok := c.GetEntry("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got := entry.Age(clock.Now()); got != 300*time.Millisecond {
		t.Errorf("age = %v, want 300ms", got)
	}
	if got := entry.RemainingTTL(clock.Now()); got != 700*time.Millisecond {
		t.Errorf("remaining = %v, want 700ms", got)
	}
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := New[int](Config{Enabled: true, TTL: time.Minute, MaxEntries: 100})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Put(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Fatalf("bound violated under concurrency: %d", c.Len())
	}
}

func TestKey_OrderIndependent(t *testing.T) {
	// Given: the same fields assembled in different orders
	a := Key(map[string]any{"query": "한강", "topK": 20, "mode": "embed"})
	b := Key(map[string]any{"mode": "embed", "topK": 20, "query": "한강"})

	if a != b {
		t.Error("equivalent field sets must collapse to one key")
	}

	c := Key(map[string]any{"query": "한강", "topK": 10, "mode": "embed"})
	if a == c {
		t.Error("different field values must produce different keys")
	}
}

func TestKey_NeverContainsRawText(t *testing.T) {
	k := Key(map[string]any{"query": "해리포터"})
	if len(k) != 64 {
		t.Fatalf("key should be a sha256 hex digest, got %q", k)
	}
}
