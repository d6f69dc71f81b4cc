package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorSweepEvery = 5 * time.Minute
	visitorMaxIdle    = 10 * time.Minute
)

// visitorLimiters tracks one token bucket per client IP. Idle entries are
// swept opportunistically on access rather than by a background goroutine,
// since a process mounts several middleware instances (one loose for the
// whole API, one strict for the proof endpoints whose cost grows with the
// fact count).
type visitorLimiters struct {
	mu        sync.Mutex
	perIP     map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

type visitor struct {
	bucket *rate.Limiter
	seen   time.Time
}

func newVisitorLimiters(rps, burst int) *visitorLimiters {
	return &visitorLimiters{
		perIP:     make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether ip may proceed, creating its bucket on first sight.
func (v *visitorLimiters) allow(ip string) bool {
	now := time.Now()

	v.mu.Lock()
	defer v.mu.Unlock()

	if now.Sub(v.lastSweep) > visitorSweepEvery {
		for ip, vis := range v.perIP {
			if now.Sub(vis.seen) > visitorMaxIdle {
				delete(v.perIP, ip)
			}
		}
		v.lastSweep = now
	}

	vis, ok := v.perIP[ip]
	if !ok {
		vis = &visitor{bucket: rate.NewLimiter(v.rps, v.burst)}
		v.perIP[ip] = vis
	}
	vis.seen = now
	return vis.bucket.Allow()
}

// RateLimiter returns a Gin middleware enforcing a per-IP token bucket.
// rps is the steady-state requests per second; burst is the maximum burst
// size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	limiters := newVisitorLimiters(rps, burst)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
