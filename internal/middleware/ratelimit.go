package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizrunner/internal/response"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the client address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByCandidate charges requests to the authenticated candidate, falling back to the client address.
func ByCandidate(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return "candidate:" + claims.CandidateID()
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter implements a simple keyed token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	key      KeyFunc
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 20 requests per minute).
func NewRateLimiter(rate int, interval time.Duration, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ByClientIP
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		key:      key,
		now:      time.Now,
	}
}

// RunCleanup drops idle buckets every minute until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// Middleware returns a Gin middleware that rate-limits requests per key.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.key(c)) {
			response.AbortFail(c, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill whole intervals only.
	if refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate; refill > 0 {
		v.tokens = min(v.tokens+refill, rl.rate)
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}
