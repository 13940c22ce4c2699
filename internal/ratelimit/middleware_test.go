package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("backend down")
}
func (failingLimiter) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ThrottlesPerIP(t *testing.T) {
	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(0.001, 2, WithLimiterClock(func() time.Time { return now }))
	defer func() { _ = limiter.Close() }()
	h := Middleware(limiter, IPKeyFunc, func(*http.Request) string { return "req-1" }, 3*time.Second, nil)(okHandler())

	do := func(addr string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/status/today", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:2000").Code)
	rec := do("10.0.0.1:3000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	// One token per 1000s, so the limiter's estimate beats the 3s floor.
	assert.Equal(t, "1000", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Contains(t, rec.Body.String(), "req-1")

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := Middleware(failingLimiter{}, IPKeyFunc, nil, time.Second, nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_NilLimiterAndEmptyKey(t *testing.T) {
	h := Middleware(nil, IPKeyFunc, nil, time.Second, nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	limiter := NewMemoryLimiter(0.001, 1)
	defer func() { _ = limiter.Close() }()
	skip := Middleware(limiter, func(*http.Request) string { return "" }, nil, time.Second, nil)(okHandler())
	for range 3 {
		rec := httptest.NewRecorder()
		skip.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "ip:::1", IPKeyFunc(req))
	req.RemoteAddr = "unix"
	assert.Equal(t, "ip:unix", IPKeyFunc(req))
}
