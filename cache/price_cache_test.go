package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLookup struct {
	mu      sync.Mutex
	calls   int
	results []lookupResult
}

type lookupResult struct {
	price maybe.Maybe[decimal.Decimal]
	err   error
}

// GetCurrentPrice returns the queued results in order, repeating the last one.
func (f *fakeLookup) GetCurrentPrice(_ context.Context, _ time.Time) (maybe.Maybe[decimal.Decimal], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.calls, len(f.results)-1)
	f.calls++
	return f.results[i].price, f.results[i].err
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func price(s string) maybe.Maybe[decimal.Decimal] {
	return maybe.Some(decimal.RequireFromString(s))
}

func newTestCache(lookup *fakeLookup, store Store) (*PriceCache, *fakeClock) {
	clock := newFakeClock(time.Date(2025, 1, 15, 13, 30, 0, 0, time.UTC))
	c := NewPriceCache(lookup, store, time.Minute, nil)
	c.SetClock(clock.Now)
	return c, clock
}

func TestGetWithinTTLDoesNotLookUpAgain(t *testing.T) {
	lookup := &fakeLookup{results: []lookupResult{{price: price("0.15")}, {price: price("0.20")}}}
	c, clock := newTestCache(lookup, NewMemoryStore())
	ctx := context.Background()

	first := c.Get(ctx)
	clock.Advance(59 * time.Second)
	second := c.Get(ctx)

	if lookup.Calls() != 1 {
		t.Errorf("got %d lookups, wanted 1", lookup.Calls())
	}
	if !first.IsValid() || !second.IsValid() || !first.Value().Equal(second.Value()) {
		t.Errorf("got %v and %v, wanted the same cached value", first.Ptr(), second.Ptr())
	}

	clock.Advance(time.Second)
	third := c.Get(ctx)
	if lookup.Calls() != 2 {
		t.Errorf("got %d lookups after the ttl, wanted 2", lookup.Calls())
	}
	if third.Value().String() != "0.2" {
		t.Errorf("got %s, wanted the refreshed 0.2", third.Value())
	}
}

func TestGetCachesUnknownPrice(t *testing.T) {
	lookup := &fakeLookup{results: []lookupResult{{price: maybe.None[decimal.Decimal]()}}}
	c, clock := newTestCache(lookup, NewMemoryStore())
	ctx := context.Background()

	if c.Get(ctx).IsValid() {
		t.Errorf("expected an unknown price")
	}
	clock.Advance(30 * time.Second)
	if c.Get(ctx).IsValid() {
		t.Errorf("expected an unknown price")
	}
	if lookup.Calls() != 1 {
		t.Errorf("got %d lookups, wanted 1", lookup.Calls())
	}
}

func TestGetDoesNotCacheErrors(t *testing.T) {
	lookup := &fakeLookup{results: []lookupResult{
		{err: errors.New("database is locked")},
		{price: price("0.15")},
	}}
	c, _ := newTestCache(lookup, NewMemoryStore())
	ctx := context.Background()

	if c.Get(ctx).IsValid() {
		t.Errorf("expected an unknown price on a store error")
	}
	got := c.Get(ctx)
	if !got.IsValid() || got.Value().String() != "0.15" {
		t.Errorf("got %v, wanted 0.15", got.Ptr())
	}
	if lookup.Calls() != 2 {
		t.Errorf("got %d lookups, wanted 2", lookup.Calls())
	}
}

func TestInvalidate(t *testing.T) {
	lookup := &fakeLookup{results: []lookupResult{{price: maybe.None[decimal.Decimal]()}, {price: price("0.15")}}}
	c, _ := newTestCache(lookup, NewMemoryStore())
	ctx := context.Background()

	c.Get(ctx)
	c.Invalidate(ctx)
	got := c.Get(ctx)

	if lookup.Calls() != 2 {
		t.Errorf("got %d lookups, wanted 2", lookup.Calls())
	}
	if !got.IsValid() {
		t.Errorf("expected the price fetched after invalidation")
	}
}

func TestConcurrentGet(t *testing.T) {
	lookup := &fakeLookup{results: []lookupResult{{price: price("0.15")}}}
	c, _ := newTestCache(lookup, NewMemoryStore())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := c.Get(context.Background()); got.Value().String() != "0.15" {
				t.Errorf("got %v, wanted 0.15", got.Ptr())
			}
		}()
	}
	wg.Wait()

	if lookup.Calls() < 1 || lookup.Calls() > 20 {
		t.Errorf("got %d lookups", lookup.Calls())
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "meterit-test-"+time.Now().Format("150405.000000"))
	t.Cleanup(func() { store.Delete(ctx) })

	if _, ok, err := store.Load(ctx); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	computedAt := time.Date(2025, 1, 15, 13, 30, 0, 0, time.UTC)
	for _, p := range []maybe.Maybe[decimal.Decimal]{price("0.15"), maybe.None[decimal.Decimal]()} {
		if err := store.Save(ctx, Entry{Price: p, ComputedAt: computedAt}, time.Minute); err != nil {
			t.Fatalf("Save: %v", err)
		}
		e, ok, err := store.Load(ctx)
		if err != nil || !ok {
			t.Fatalf("Load: ok=%v err=%v", ok, err)
		}
		if e.Price.IsValid() != p.IsValid() || !e.Price.Value().Equal(p.Value()) || !e.ComputedAt.Equal(computedAt) {
			t.Errorf("got %+v, wanted price %v at %s", e, p.Ptr(), computedAt)
		}
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Errorf("entry should be gone after Delete")
	}
}

// blockingLookup waits for release, or fails when its context is done first.
type blockingLookup struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLookup) GetCurrentPrice(ctx context.Context, _ time.Time) (maybe.Maybe[decimal.Decimal], error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return price("0.15"), nil
	case <-ctx.Done():
		return maybe.None[decimal.Decimal](), ctx.Err()
	}
}

func TestGetSurvivesCancelledFirstCaller(t *testing.T) {
	lookup := &blockingLookup{started: make(chan struct{}), release: make(chan struct{})}
	c, _ := newTestCache(&fakeLookup{}, NewMemoryStore())
	c.lookup = lookup

	ctxA, cancelA := context.WithCancel(context.Background())
	resA := make(chan maybe.Maybe[decimal.Decimal], 1)
	go func() { resA <- c.Get(ctxA) }()
	<-lookup.started

	resB := make(chan maybe.Maybe[decimal.Decimal], 1)
	go func() { resB <- c.Get(context.Background()) }()

	cancelA()
	time.Sleep(50 * time.Millisecond)
	close(lookup.release)

	for name, ch := range map[string]chan maybe.Maybe[decimal.Decimal]{"cancelled caller": resA, "live caller": resB} {
		select {
		case got := <-ch:
			if !got.IsValid() || got.Value().String() != "0.15" {
				t.Errorf("%s: got %v, wanted 0.15", name, got.Ptr())
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: Get did not return", name)
		}
	}

	if e, ok, _ := c.store.Load(context.Background()); !ok || !e.Price.IsValid() {
		t.Errorf("the shared lookup result should be cached, got %+v", e)
	}
}
