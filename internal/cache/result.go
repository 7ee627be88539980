package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"conti/internal/core"
)

// DefaultTTL bounds how long a result may be served without recomputation.
const DefaultTTL = 5 * time.Minute

// ResultCache memoizes computed results per key (a group id). Each entry is
// tagged with the fingerprint of the data it was computed from; a lookup with
// a different fingerprint misses. Entries also expire after the TTL and the
// least recently used entry is evicted once maxEntries is exceeded.
type ResultCache[T any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        Clock
	items      map[string]*list.Element
	lru        *list.List
	flight     singleflight.Group
	stats      Stats
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Rejected  int64 // publishes refused because a newer result was cached
}

type resultItem[T any] struct {
	key         string
	fingerprint core.Fingerprint
	data        T
	expiresAt   time.Time
}

type options struct {
	clock      Clock
	maxEntries int
}

// Option configures a ResultCache.
type Option func(*options)

// WithClock replaces time.Now as the cache's time source.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMaxEntries bounds the number of cached keys.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// NewResultCache creates a cache whose entries live for ttl.
func NewResultCache[T any](ttl time.Duration, opts ...Option) *ResultCache[T] {
	o := options{clock: time.Now, maxEntries: 256}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if o.maxEntries < 1 {
		o.maxEntries = 1
	}
	return &ResultCache[T]{
		maxEntries: o.maxEntries,
		ttl:        ttl,
		now:        o.clock,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// Get returns the cached value for key if it was computed from fp and has not
// expired.
func (c *ResultCache[T]) Get(key string, fp core.Fingerprint) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return zero, false
	}

	item := elem.Value.(*resultItem[T])
	if !c.now().Before(item.expiresAt) || item.fingerprint < fp {
		// Expired, or computed from older data than the caller has seen.
		c.removeElement(elem)
		c.stats.Misses++
		return zero, false
	}
	if item.fingerprint != fp {
		c.stats.Misses++
		return zero, false
	}

	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return item.data, true
}

// Publish stores data computed from fp. The swap is refused, and false
// returned, when a live entry already holds a newer fingerprint, so a slow
// computation can never overwrite a fresher result.
func (c *ResultCache[T]) Publish(key string, fp core.Fingerprint, data T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	item := &resultItem[T]{
		key:         key,
		fingerprint: fp,
		data:        data,
		expiresAt:   now.Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		current := elem.Value.(*resultItem[T])
		if current.fingerprint > fp && now.Before(current.expiresAt) {
			c.stats.Rejected++
			return false
		}
		elem.Value = item
		c.lru.MoveToFront(elem)
		return true
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxEntries {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}
	return true
}

// GetOrCompute returns the cached value for (key, fp) or runs compute.
// Concurrent callers missing on the same (key, fp) share one computation.
// compute reports whether it found the value in another tier rather than
// computing it. The boolean result reports whether the value came from any
// cache, and every caller sharing a computation sees the same answer.
func (c *ResultCache[T]) GetOrCompute(key string, fp core.Fingerprint, compute func() (T, bool, error)) (T, bool, error) {
	if v, ok := c.Get(key, fp); ok {
		return v, true, nil
	}

	res, err, _ := c.flight.Do(key+"@"+fp.String(), func() (any, error) {
		if v, ok := c.peek(key, fp); ok {
			return flightResult[T]{value: v, hit: true}, nil
		}
		v, found, err := compute()
		if err != nil {
			return nil, err
		}
		c.Publish(key, fp, v)
		return flightResult[T]{value: v, hit: found}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	r := res.(flightResult[T])
	return r.value, r.hit, nil
}

type flightResult[T any] struct {
	value T
	hit   bool
}

// peek is Get without touching statistics.
func (c *ResultCache[T]) peek(key string, fp core.Fingerprint) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*resultItem[T])
	if item.fingerprint != fp || !c.now().Before(item.expiresAt) {
		return zero, false
	}
	return item.data, true
}

// Invalidate drops any entry for key.
func (c *ResultCache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *ResultCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*resultItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *ResultCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*resultItem[T])
		if !now.Before(item.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	c.stats.Evictions += int64(len(toRemove))
	return len(toRemove)
}

// Size returns the current number of items in the cache
func (c *ResultCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a copy of the activity counters.
func (c *ResultCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
