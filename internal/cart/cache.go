package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	cacheKey            = "cart"
	defaultFetchTimeout = 15 * time.Second
)

// Fetcher loads the authoritative cart.
type Fetcher interface {
	FetchCart(ctx context.Context, cred auth.Credential) (Snapshot, error)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithFetchTimeout bounds fetches that run detached from any caller.
func WithFetchTimeout(timeout time.Duration) CacheOption {
	return func(c *Cache) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

// WithCacheLogger reports background refetch failures.
func WithCacheLogger(logg *logger.Logger) CacheOption {
	return func(c *Cache) {
		c.logg = logg
	}
}

// Cache is the read-through cart cache. One entry per shopper under the "cart" key.
// Writers never store into it; they call Invalidate and the next fetch becomes the truth.
type Cache struct {
	fetcher      Fetcher
	group        singleflight.Group
	fetchTimeout time.Duration
	logg         *logger.Logger
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
	pending sync.WaitGroup
}

type cacheEntry struct {
	cred       auth.Credential
	snapshot   Snapshot
	generation uint64
	loaded     bool
	stale      bool
	refreshing bool
	lastRead   time.Time
}

// NewCache builds an empty cache over the fetcher.
func NewCache(fetcher Fetcher, opts ...CacheOption) (*Cache, error) {
	if fetcher == nil {
		return nil, errors.New("cart fetcher required")
	}
	c := &Cache{
		fetcher:      fetcher,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		entries:      map[string]*cacheEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func entryKey(cred auth.Credential) string {
	return cacheKey + ":" + cred.Scope()
}

// Get returns the cached snapshot, loading it on first read. A stale entry is returned as is
// while a refetch runs in the background.
func (c *Cache) Get(ctx context.Context, cred auth.Credential) (Snapshot, error) {
	key := entryKey(cred)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && entry.loaded {
		entry.lastRead = c.now()
		snapshot := entry.snapshot
		if entry.stale && !entry.refreshing {
			c.startRefetchLocked(key, entry)
		}
		c.mu.Unlock()
		return snapshot, nil
	}
	c.mu.Unlock()

	snapshot, err := c.fetch(ctx, key, 0, cred)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		// A refresh raced the first load; keep its result once it has landed.
		entry.lastRead = c.now()
		if entry.loaded {
			return entry.snapshot, nil
		}
		return snapshot, nil
	}
	c.entries[key] = &cacheEntry{cred: cred, snapshot: snapshot, loaded: true, lastRead: c.now()}
	return snapshot, nil
}

// Peek returns the cached snapshot without fetching.
func (c *Cache) Peek(cred auth.Credential) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[entryKey(cred)]
	if !ok || !entry.loaded {
		return Snapshot{}, false
	}
	return entry.snapshot, true
}

// Invalidate marks the shopper's entry stale and refetches it in the background.
// Nothing happens when no entry is cached; the next Get loads it.
func (c *Cache) Invalidate(cred auth.Credential) {
	key := entryKey(cred)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !entry.loaded {
		return
	}
	entry.generation++
	entry.stale = true
	c.startRefetchLocked(key, entry)
}

// Refresh refetches synchronously and returns the new snapshot.
func (c *Cache) Refresh(ctx context.Context, cred auth.Credential) (Snapshot, error) {
	key := entryKey(cred)
	c.mu.Lock()
	entry, existed := c.entries[key]
	if !existed {
		entry = &cacheEntry{cred: cred, stale: true, refreshing: true, lastRead: c.now()}
		c.entries[key] = entry
	}
	entry.generation++
	generation := entry.generation
	c.mu.Unlock()

	snapshot, err := c.fetch(ctx, key, generation, cred)
	if err != nil {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current == entry && current.generation == generation {
			if existed {
				current.refreshing = false
			} else {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
		return Snapshot{}, err
	}
	c.store(key, generation, snapshot)
	return snapshot, nil
}

// Sweep evicts entries nobody read within idle and returns how many were dropped.
func (c *Cache) Sweep(idle time.Duration) int {
	cutoff := c.now().Add(-idle)
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, entry := range c.entries {
		if entry.refreshing || entry.lastRead.After(cutoff) {
			continue
		}
		delete(c.entries, key)
		evicted++
	}
	return evicted
}

// Len reports the number of cached shoppers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until in-flight background refetches finish.
func (c *Cache) Wait() {
	c.pending.Wait()
}

func (c *Cache) startRefetchLocked(key string, entry *cacheEntry) {
	entry.refreshing = true
	generation := entry.generation
	cred := entry.cred
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		snapshot, err := c.fetch(context.Background(), key, generation, cred)
		if err != nil {
			c.mu.Lock()
			if current, ok := c.entries[key]; ok && current.generation == generation {
				current.refreshing = false
			}
			c.mu.Unlock()
			if c.logg != nil {
				c.logg.Warn(c.logg.WithField(context.Background(), "error", err.Error()), "cart background refetch failed")
			}
			return
		}
		c.store(key, generation, snapshot)
	}()
}

// store applies a fetch result unless a newer invalidation superseded it.
func (c *Cache) store(key string, generation uint64, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || entry.generation != generation {
		return
	}
	entry.snapshot = snapshot
	entry.loaded = true
	entry.stale = false
	entry.refreshing = false
}

// fetch runs one deduplicated fetch per key and generation. The fetch is detached from the
// caller so a caller giving up does not fail the others waiting on it.
func (c *Cache) fetch(ctx context.Context, key string, generation uint64, cred auth.Credential) (Snapshot, error) {
	flightKey := fmt.Sprintf("%s#%d", key, generation)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetcher.FetchCart(fetchCtx, cred)
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}
