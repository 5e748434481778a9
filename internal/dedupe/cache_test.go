// ABOUTME: Tests for the invocation dedupe cache.
// ABOUTME: Uses a fake clock for TTL behavior; validates eviction, sweeping, and atomicity.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClockedCache(ttl time.Duration, size int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewWithOptions(Options{TTL: ttl, MaxSize: size, CleanupInterval: time.Hour, Now: clock.Now})
	return c, clock
}

func TestCache_CheckAndMark(t *testing.T) {
	c, _ := newClockedCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.CheckAndMark("call-1"), "first sighting is not a duplicate")
	assert.True(t, c.CheckAndMark("call-1"), "second sighting is a duplicate")
	assert.False(t, c.CheckAndMark("call-2"))
	assert.True(t, c.Seen("call-1"))
	assert.False(t, c.Seen("never"))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.EqualValues(t, 1, stats.Duplicates)
	assert.EqualValues(t, 2, stats.Marked)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newClockedCache(time.Minute, 10)
	defer c.Close()

	c.Mark("call-1")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("call-1"))

	clock.Advance(time.Second)
	assert.False(t, c.Seen("call-1"))
	assert.False(t, c.CheckAndMark("call-1"), "expired id counts as new")
	assert.True(t, c.Seen("call-1"))
}

func TestCache_MarkRefreshes(t *testing.T) {
	c, clock := newClockedCache(time.Minute, 10)
	defer c.Close()

	c.Mark("call-1")
	clock.Advance(40 * time.Second)
	c.Mark("call-1")
	clock.Advance(40 * time.Second)

	assert.True(t, c.Seen("call-1"), "refresh extends the TTL")
}

func TestCache_EvictionOrder(t *testing.T) {
	c, _ := newClockedCache(time.Hour, 3)
	defer c.Close()

	c.Mark("first")
	c.Mark("second")
	c.Mark("third")
	c.Mark("first") // refresh moves it to the back

	c.Mark("fourth")
	assert.False(t, c.Seen("second"), "least recently marked is evicted")
	assert.True(t, c.Seen("first"))
	assert.True(t, c.Seen("third"))
	assert.True(t, c.Seen("fourth"))
	assert.Equal(t, 3, c.Len())
	assert.EqualValues(t, 1, c.Stats().Evicted)
}

func TestCache_RemoveExpired(t *testing.T) {
	c, clock := newClockedCache(time.Minute, 10)
	defer c.Close()

	c.Mark("old-1")
	c.Mark("old-2")
	clock.Advance(30 * time.Second)
	c.Mark("fresh")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 2, c.removeExpired())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("fresh"))
	assert.EqualValues(t, 2, c.Stats().Expired)
}

func TestCache_Defaults(t *testing.T) {
	c := New(0, 0)
	defer c.Close()

	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, DefaultMaxSize, c.maxSize)
}

func TestCache_CheckAndMark_Atomic(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	const numGoroutines = 100
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for range numGoroutines {
		go func() {
			defer wg.Done()
			if !c.CheckAndMark("contested") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load(), "exactly one caller sees a new id")
}

func TestCache_Concurrent(t *testing.T) {
	c := New(5*time.Minute, 50)
	defer c.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				id := fmt.Sprintf("call-%d-%d", n, j%10)
				c.CheckAndMark(id)
				c.Seen(id)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestCache_Close(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
