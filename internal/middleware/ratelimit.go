package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/recap/internal/auth"
)

// ClientIP extracts the caller's IP, trusting the first X-Forwarded-For
// hop when a proxy set one.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// tenantKey buckets authenticated requests per user within an org, so one
// tenant's sync storm cannot starve another behind a shared egress IP.
// Unauthenticated requests fall back to the client IP.
func tenantKey(r *http.Request) string {
	if ac, ok := auth.FromContext(r.Context()); ok {
		return ac.OrgID + "/" + ac.UserEmail
	}
	return ClientIP(r)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter caps requests per tenant key over a fixed window. Sync and
// summary endpoints fan out many platform calls per request, so the limit
// guards the upstream quota more than this service.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether the key may proceed within the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	b.count++
	return b.count <= rl.limit
}

// Cleanup drops buckets whose window has passed. Run it periodically;
// every sync caller otherwise leaves a bucket behind forever.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, key)
		}
	}
}

// Limit wraps a handler with per-tenant rate limiting.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(tenantKey(r)) {
			http.Error(w, "rate limit exceeded, retry later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
