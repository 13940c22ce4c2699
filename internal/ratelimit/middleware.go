package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/xiaoban/internal/model"
)

// KeyFunc extracts the rate limit key from a request.
// Returns empty string to skip rate limiting for this request.
type KeyFunc func(r *http.Request) string

// RequestIDFunc extracts the request ID from the request context.
// Injected by the caller to avoid a dependency on the server package.
type RequestIDFunc func(r *http.Request) string

// retryAdvisor is implemented by limiters that know when a key refills.
type retryAdvisor interface {
	RetryAfter(key string) time.Duration
}

// retryAfterSeconds is the Retry-After value for key: the limiter's own
// estimate when it has one, never less than floor or one second.
func retryAfterSeconds(limiter Limiter, key string, floor time.Duration) int {
	wait := floor
	if ra, ok := limiter.(retryAdvisor); ok {
		if d := ra.RetryAfter(key); d > wait {
			wait = d
		}
	}
	return max(1, int(math.Ceil(wait.Seconds())))
}

// Middleware returns HTTP middleware that enforces limiter per key.
// A nil limiter passes every request through. Limiter errors fail open.
// minRetryAfter is the smallest Retry-After advertised to throttled callers.
func Middleware(limiter Limiter, keyFunc KeyFunc, reqIDFunc RequestIDFunc, minRetryAfter time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if logger != nil {
					logger.Warn("ratelimit: limiter error, allowing request", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limiter, key, minRetryAfter)))
				var requestID string
				if reqIDFunc != nil {
					requestID = reqIDFunc(r)
				}
				writeRateLimitError(w, requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes a rate-limit error using the standard API error envelope.
func writeRateLimitError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many requests",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}

// IPKeyFunc keys requests by the client IP from RemoteAddr.
// X-Forwarded-For is not trusted: any client can set it.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
