package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

// scriptedFetcher answers call i with replies[i], optionally held until gates[i] is closed.
type scriptedFetcher struct {
	mu      sync.Mutex
	calls   int
	replies []Snapshot
	errs    []error
	gates   map[int]chan struct{}
	started chan int
}

func (f *scriptedFetcher) FetchCart(context.Context, auth.Credential) (Snapshot, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	gate := f.gates[idx]
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- idx
	}
	if gate != nil {
		<-gate
	}
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return Snapshot{}, err
	}
	if idx < len(f.replies) {
		return f.replies[idx], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func snapshotWith(productID string, qty int) Snapshot {
	return NewSnapshot([]Line{{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(1)}})
}

func newTestCache(t *testing.T, fetcher Fetcher) *Cache {
	t.Helper()
	cache, err := NewCache(fetcher)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestCacheDeduplicatesConcurrentLoads(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{
		replies: []Snapshot{snapshotWith("1", 1)},
		gates:   map[int]chan struct{}{0: gate},
		started: make(chan int, 8),
	}
	cache := newTestCache(t, fetcher)

	var wg sync.WaitGroup
	results := make([]Snapshot, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := cache.Get(context.Background(), testCred)
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results[i] = snap
		}(i)
	}
	<-fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	for i, snap := range results {
		if snap.Quantity("1") != 1 {
			t.Fatalf("reader %d saw %+v", i, snap)
		}
	}
}

func TestCacheServesStaleWhileRevalidating(t *testing.T) {
	gate := make(chan struct{})
	fetcher := &scriptedFetcher{
		replies: []Snapshot{snapshotWith("1", 1), snapshotWith("1", 2)},
		gates:   map[int]chan struct{}{1: gate},
	}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, testCred); err != nil {
		t.Fatalf("initial get: %v", err)
	}
	cache.Invalidate(testCred)

	stale, err := cache.Get(ctx, testCred)
	if err != nil {
		t.Fatalf("stale get: %v", err)
	}
	if stale.Quantity("1") != 1 {
		t.Fatalf("expected stale quantity 1 while refetching, got %d", stale.Quantity("1"))
	}

	close(gate)
	cache.Wait()

	fresh, err := cache.Get(ctx, testCred)
	if err != nil {
		t.Fatalf("fresh get: %v", err)
	}
	if fresh.Quantity("1") != 2 {
		t.Fatalf("expected refreshed quantity 2, got %d", fresh.Quantity("1"))
	}
	if got := fetcher.callCount(); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
}

func TestCacheDropsSupersededRefetch(t *testing.T) {
	slow := make(chan struct{})
	fetcher := &scriptedFetcher{
		replies: []Snapshot{snapshotWith("1", 1), snapshotWith("1", 2), snapshotWith("1", 3)},
		gates:   map[int]chan struct{}{1: slow},
		started: make(chan int, 8),
	}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, testCred); err != nil {
		t.Fatalf("initial get: %v", err)
	}
	<-fetcher.started

	cache.Invalidate(testCred)
	if idx := <-fetcher.started; idx != 1 {
		t.Fatalf("expected second fetch, got %d", idx)
	}
	cache.Invalidate(testCred)
	<-fetcher.started

	// The newer refetch lands first; the older one must not overwrite it.
	deadline := time.Now().Add(time.Second)
	for {
		if snap, _ := cache.Peek(testCred); snap.Quantity("1") == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("newer refetch never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(slow)
	cache.Wait()

	snap, _ := cache.Peek(testCred)
	if snap.Quantity("1") != 3 {
		t.Fatalf("superseded refetch overwrote the cache: quantity %d", snap.Quantity("1"))
	}
}

func TestCacheRefreshIsSynchronous(t *testing.T) {
	fetcher := &scriptedFetcher{replies: []Snapshot{snapshotWith("7", 4), snapshotWith("7", 5)}}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, testCred); err != nil {
		t.Fatalf("get: %v", err)
	}
	snap, err := cache.Refresh(ctx, testCred)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Quantity("7") != 5 {
		t.Fatalf("expected 5 after refresh, got %d", snap.Quantity("7"))
	}
	if peek, _ := cache.Peek(testCred); peek.Quantity("7") != 5 {
		t.Fatalf("refresh result not cached")
	}
}

func TestCacheDoesNotStoreFailedLoad(t *testing.T) {
	fetcher := &scriptedFetcher{
		replies: []Snapshot{{}, snapshotWith("1", 1)},
		errs:    []error{errors.New("backend down")},
	}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, testCred); err == nil {
		t.Fatalf("expected the first load to fail")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed load must not be cached")
	}
	snap, err := cache.Get(ctx, testCred)
	if err != nil || snap.Quantity("1") != 1 {
		t.Fatalf("expected second load to succeed, got %+v %v", snap, err)
	}
}

func TestCacheKeepsShoppersApart(t *testing.T) {
	fetcher := &scriptedFetcher{replies: []Snapshot{snapshotWith("1", 1), snapshotWith("2", 2)}}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	first, _ := cache.Get(ctx, auth.Credential("token-a"))
	second, _ := cache.Get(ctx, auth.Credential("token-b"))
	if first.Quantity("1") != 1 || second.Quantity("2") != 2 {
		t.Fatalf("shoppers share an entry: %+v %+v", first, second)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected two entries, got %d", cache.Len())
	}
}

func TestCacheSweepEvictsIdleEntries(t *testing.T) {
	fetcher := &scriptedFetcher{replies: []Snapshot{snapshotWith("1", 1)}}
	cache := newTestCache(t, fetcher)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if _, err := cache.Get(context.Background(), testCred); err != nil {
		t.Fatalf("get: %v", err)
	}
	if evicted := cache.Sweep(time.Hour); evicted != 0 {
		t.Fatalf("fresh entry evicted")
	}
	now = now.Add(2 * time.Hour)
	if evicted := cache.Sweep(time.Hour); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if cache.Len() != 0 {
		t.Fatalf("cache should be empty after sweep")
	}
}
