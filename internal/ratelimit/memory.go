package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// bucket holds the tokens left for one key as of refilledAt.
type bucket struct {
	tokens     float64
	refilledAt time.Time
}

// take refills b up to burst for the time elapsed since the last call and
// consumes one token when available.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	if elapsed := now.Sub(b.refilledAt).Seconds(); elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rate)
	}
	b.refilledAt = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithLimiterClock replaces time.Now, for tests.
func WithLimiterClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// WithIdleTTL sets how long an untouched key is remembered. Defaults to 10m.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(m *MemoryLimiter) {
		if d > 0 {
			m.idleTTL = d
		}
	}
}

// MemoryLimiter is a process-local token bucket per key. xiaoban runs as a
// single instance, so no shared backend is needed.
type MemoryLimiter struct {
	rate    float64
	burst   float64
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter allows rate requests per second per key with bursts of up
// to burst. A sweeper goroutine forgets idle keys until Close is called.
func NewMemoryLimiter(rate float64, burst int, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

// Allow consumes a token for key. A key seen for the first time starts with a
// full bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, refilledAt: now}
		m.buckets[key] = b
	}
	return b.take(now, m.rate, m.burst), nil
}

// RetryAfter reports how long key must wait for its next token. Zero means a
// request would be allowed now.
func (m *MemoryLimiter) RetryAfter(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || m.rate <= 0 {
		return 0
	}
	tokens := math.Min(m.burst, b.tokens+m.now().Sub(b.refilledAt).Seconds()*m.rate)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / m.rate * float64(time.Second))
}

// Len returns the number of keys currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close stops the sweeper. It is idempotent.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	interval := m.idleTTL / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.forgetIdle()
		}
	}
}

func (m *MemoryLimiter) forgetIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTTL)
	for key, b := range m.buckets {
		if b.refilledAt.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
