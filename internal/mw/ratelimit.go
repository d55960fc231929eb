package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiters hands out one token bucket per client IP and forgets buckets
// that have been idle long enough to refill completely.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	b        int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(r rate.Limit, b int) *ipLimiters {
	l := &ipLimiters{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		b:        b,
	}
	go l.prune()
	return l
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (l *ipLimiters) prune() {
	for range time.Tick(5 * time.Minute) {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimiter is a middleware for per-IP request rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := newIPLimiters(r, b)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
