package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a per-client fixed-window limiter for the console API. The
// console serves one operator on loopback; this guards against runaway
// dashboards polling the preflight endpoint, which shells out on every call.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	rate     int
	interval time.Duration
}

type window struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimiter allows rate requests per interval per client.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:  make(map[string]*window),
		rate:     rate,
		interval: interval,
	}
}

// Allow reports whether a request from key fits in the current window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.windows[key]
	if !ok || now.After(w.resetAt) {
		r.windows[key] = &window{
			remaining: r.rate - 1,
			resetAt:   now.Add(r.interval),
		}
		return true
	}
	if w.remaining > 0 {
		w.remaining--
		return true
	}
	return false
}

// RateLimit creates the middleware around a limiter.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.JSON(429, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
