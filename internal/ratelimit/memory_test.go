package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand; the limiter reads it under its own lock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, rate float64, burst int, opts ...MemoryOption) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	m := NewMemoryLimiter(rate, burst, append([]MemoryOption{WithLimiterClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m, clock
}

func allowN(t *testing.T, m *MemoryLimiter, key string, n int) int {
	t.Helper()
	allowed := 0
	for range n {
		ok, err := m.Allow(context.Background(), key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	return allowed
}

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m, _ := newLimiter(t, 10, 3)
	assert.Equal(t, 3, allowN(t, m, "ip:a", 5))
}

func TestMemoryLimiterRefill(t *testing.T) {
	m, clock := newLimiter(t, 2, 2)
	require.Equal(t, 2, allowN(t, m, "ip:a", 3))

	// Half a second at 2/s refills exactly one token.
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, allowN(t, m, "ip:a", 2))

	// A long pause never refills past the burst.
	clock.Advance(time.Hour)
	assert.Equal(t, 2, allowN(t, m, "ip:a", 5))
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m, _ := newLimiter(t, 10, 1)
	assert.Equal(t, 1, allowN(t, m, "ip:a", 2))
	assert.Equal(t, 1, allowN(t, m, "ip:b", 2))
	assert.Equal(t, 2, m.Len())
}

func TestMemoryLimiterRetryAfter(t *testing.T) {
	m, clock := newLimiter(t, 0.5, 1)

	assert.Zero(t, m.RetryAfter("ip:unknown"))
	require.Equal(t, 1, allowN(t, m, "ip:a", 1))
	assert.Equal(t, 2*time.Second, m.RetryAfter("ip:a"))

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, m.RetryAfter("ip:a"))

	clock.Advance(time.Second)
	assert.Zero(t, m.RetryAfter("ip:a"))
}

func TestMemoryLimiterForgetsIdleKeys(t *testing.T) {
	m, clock := newLimiter(t, 10, 5, WithIdleTTL(time.Minute))
	allowN(t, m, "ip:old", 1)
	clock.Advance(45 * time.Second)
	allowN(t, m, "ip:new", 1)

	clock.Advance(30 * time.Second)
	m.forgetIdle()

	m.mu.Lock()
	_, oldKept := m.buckets["ip:old"]
	_, newKept := m.buckets["ip:new"]
	m.mu.Unlock()
	assert.False(t, oldKept)
	assert.True(t, newKept)
}

func TestMemoryLimiterConcurrentCallersShareBurst(t *testing.T) {
	m, _ := newLimiter(t, 100, 50)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if ok, _ := m.Allow(context.Background(), "ip:shared"); ok {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// The clock is frozen, so exactly the burst gets through.
	assert.Equal(t, int64(50), allowed.Load())
}

func TestMemoryLimiterCloseTwice(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
