package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// idle clients are forgotten after this long
const clientTTL = 10 * time.Minute

// RateLimiter is a per client IP token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   map[string]float64
	lastTime map[string]time.Time
	lastGC   time.Time
	now      func() time.Time
}

func NewRateLimiter(rate, burst int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(rate),
		burst:    float64(burst),
		tokens:   make(map[string]float64),
		lastTime: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow takes one token from ip's bucket.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.gc(now)

	last, exists := rl.lastTime[ip]
	if !exists {
		rl.tokens[ip] = rl.burst
		last = now
	}
	rl.lastTime[ip] = now

	tokens := rl.tokens[ip] + now.Sub(last).Seconds()*rl.rate
	if tokens > rl.burst {
		tokens = rl.burst
	}
	if tokens < 1 {
		rl.tokens[ip] = tokens
		return false
	}
	rl.tokens[ip] = tokens - 1
	return true
}

func (rl *RateLimiter) gc(now time.Time) {
	if now.Sub(rl.lastGC) < clientTTL {
		return
	}
	rl.lastGC = now
	for ip, t := range rl.lastTime {
		if now.Sub(t) > clientTTL {
			delete(rl.lastTime, ip)
			delete(rl.tokens, ip)
		}
	}
}

func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
