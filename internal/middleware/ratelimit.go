package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/templui/habits/internal/backend"
	"github.com/templui/habits/internal/handler"
)

// RateLimiter is a sliding-window counter keyed by client IP.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key. When the key is over its limit it returns
// false and how long until the oldest hit leaves the window.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	recent := trim(rl.hits[key], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.hits[key] = recent
		return false, recent[0].Add(rl.window).Sub(now)
	}
	rl.hits[key] = append(recent, now)
	return true, 0
}

// sweep drops idle keys at most once per window, so the map stays bounded
// without a background goroutine.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now

	cutoff := now.Add(-rl.window)
	for key, hits := range rl.hits {
		if len(trim(hits, cutoff)) == 0 {
			delete(rl.hits, key)
		}
	}
}

// trim returns the hits after cutoff. Hits are appended in order.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// RateLimitAuth limits sign up and token requests per client IP and answers
// with the auth error shape plus Retry-After.
func RateLimitAuth(limit int, window time.Duration) func(http.HandlerFunc) http.HandlerFunc {
	limiter := NewRateLimiter(limit, window)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			allowed, wait := limiter.Allow(ip)
			if !allowed {
				slog.Warn("auth rate limit exceeded", "ip", ip, "path", r.URL.Path, "retry_after", wait)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				handler.WriteError(w, r, backend.NewError(http.StatusTooManyRequests, "over_request_rate_limit",
					"Too many requests. Please try again later."))
				return
			}

			next(w, r)
		}
	}
}

// getClientIP prefers proxy headers, then the connection's address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
