// ABOUTME: Thread-safe TTL cache for recognizing redelivered tool-call invocations.
// ABOUTME: The dispatcher consults it so a replayed batch does not run handlers twice.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultMaxSize         = 10_000
	DefaultCleanupInterval = time.Minute
)

// Options configures a Cache.
type Options struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time // clock override for tests
}

// Stats counts cache activity since creation.
type Stats struct {
	Size       int
	Duplicates uint64
	Marked     uint64
	Evicted    uint64
	Expired    uint64
}

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache remembers invocation ids for a TTL, bounded by MaxSize. The oldest
// id is evicted first; order is kept in a linked list so eviction is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // ids, least recently marked at the front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	stats   Stats

	done   chan struct{}
	closed bool
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	return NewWithOptions(Options{TTL: ttl, MaxSize: maxSize})
}

// NewWithOptions creates a cache and starts its background sweeper.
// Call Close to stop the sweeper.
func NewWithOptions(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(opts.CleanupInterval)
	return c
}

// Seen reports whether id was marked within the TTL.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(id)
}

// CheckAndMark reports whether id is a duplicate. A new (or expired) id is
// marked in the same critical section, so concurrent callers racing on the
// same id see exactly one false.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(id) {
		c.stats.Duplicates++
		return true
	}
	c.markLocked(id)
	return false
}

// Mark records id as seen, refreshing its TTL if already present.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(id)
}

// Len returns the number of ids held, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.seen)
	return s
}

// liveLocked must be called with mu held.
func (c *Cache) liveLocked(id string) bool {
	e, ok := c.seen[id]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(id string) {
	now := c.now()
	c.stats.Marked++

	if e, ok := c.seen[id]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.elem)
		return
	}

	for len(c.seen) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		oldest, _ := front.Value.(string)
		c.order.Remove(front)
		delete(c.seen, oldest)
		c.stats.Evicted++
	}

	c.seen[id] = &entry{seenAt: now, elem: c.order.PushBack(id)}
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops every id older than the TTL. Ids are ordered by mark
// time, so the walk stops at the first live one.
func (c *Cache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		e := c.seen[id]
		if e != nil && now.Sub(e.seenAt) < c.ttl {
			break
		}
		c.order.Remove(front)
		delete(c.seen, id)
		removed++
	}
	c.stats.Expired += uint64(removed)
	return removed
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
