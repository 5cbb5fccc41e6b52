package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key. Buckets idle for longer than a full
// refill are dropped on the next sweep.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	refill   float64 // tokens per second
	now      func() time.Time
	swept    time.Time
}

// NewLimiter allows bursts of capacity and refillPerSec sustained requests.
func NewLimiter(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		capacity: capacity,
		refill:   refillPerSec,
		now:      time.Now,
	}
}

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.capacity, b.tokens+elapsed*l.refill)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter is the wait until one token is available, in whole seconds.
func (l *Limiter) retryAfter() int {
	if l.refill <= 0 {
		return 60
	}
	return max(1, int(1/l.refill+0.999))
}

func (l *Limiter) sweepLocked(now time.Time) {
	if l.refill <= 0 {
		return
	}
	idle := time.Duration(l.capacity / l.refill * float64(time.Second))
	if now.Sub(l.swept) < idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.last) > idle {
			delete(l.buckets, k)
		}
	}
	l.swept = now
}

// RateLimit rejects requests above the limiter's rate with 429, keyed by
// client IP.
func RateLimit(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
					"data": []map[string]interface{}{{
						"code":      "ERR_RATE_LIMITED",
						"message":   "too many analysis requests, retry later",
						"retryable": true,
					}},
				})
			}
			return next(c)
		}
	}
}
