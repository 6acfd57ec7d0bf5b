// Package cache implements the audit cache: fingerprint → verdict with TTL
// and bounded LRU eviction, so identical resubmissions skip the judge.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ganauditor/ganauditor/internal/gantypes"
)

// DefaultTTL is the default lifetime of a cached verdict.
const DefaultTTL = 10 * time.Minute

// DefaultCapacity bounds the number of cached verdicts.
const DefaultCapacity = 512

type entry struct {
	fingerprint string
	verdict     gantypes.JudgeVerdict
	cachedAt    time.Time
	ttl         time.Duration
}

// Cache is a bounded, TTL-aware LRU keyed by audit fingerprint. Safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List               // front = most recently used
	items    map[string]*list.Element // fingerprint → element in order
	logger   *zap.Logger

	now func() time.Time // injectable clock for tests
}

// New creates a cache with the given capacity and default TTL. Non-positive
// arguments fall back to the package defaults.
func New(capacity int, ttl time.Duration, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the cached verdict for the fingerprint, marking it cached=true.
// Expired entries are removed and reported as misses.
func (c *Cache) Get(fp string) (gantypes.JudgeVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fp]
	if !ok {
		return gantypes.JudgeVerdict{}, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.cachedAt) > e.ttl {
		c.removeLocked(el)
		return gantypes.JudgeVerdict{}, false
	}
	c.order.MoveToFront(el)
	v := e.verdict
	v.Cached = true
	return v, true
}

// Put stores a verdict under the fingerprint. A non-positive duration uses
// the cache default.
func (c *Cache) Put(fp string, verdict gantypes.JudgeVerdict, duration time.Duration) {
	if duration <= 0 {
		duration = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fp]; ok {
		e := el.Value.(*entry)
		e.verdict = verdict
		e.cachedAt = c.now()
		e.ttl = duration
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{fingerprint: fp, verdict: verdict, cachedAt: c.now(), ttl: duration})
	c.items[fp] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.logger.Debug("evicting cached verdict", zap.String("fingerprint", oldest.Value.(*entry).fingerprint))
		c.removeLocked(oldest)
	}
}

// Invalidate removes the entry for the fingerprint, if present.
func (c *Cache) Invalidate(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[fp]; ok {
		c.removeLocked(el)
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the number of live entries (including not-yet-expired ones).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.fingerprint)
}
