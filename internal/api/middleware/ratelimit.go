package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

// userLimiter stores the rate limiter for a specific user.
type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware limits how often each signed-in user may hit the
// routes it guards. It must run after AuthMiddleware; unauthenticated
// requests are keyed by client IP.
type RateLimiterMiddleware struct {
	users map[string]*userLimiter
	mu    sync.Mutex
	limit rate.Limit
	burst int
	stop  chan struct{}
}

// NewRateLimiterMiddleware allows perMinute requests per user with the given burst.
func NewRateLimiterMiddleware(perMinute, burst int) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		users: make(map[string]*userLimiter),
		limit: rate.Limit(float64(perMinute) / 60),
		burst: burst,
		stop:  make(chan struct{}),
	}
	// Start a background goroutine to clean up old entries
	go rm.cleanupUsers()
	return rm
}

// Stop ends the cleanup goroutine.
func (rm *RateLimiterMiddleware) Stop() {
	close(rm.stop)
}

func clientKey(c *gin.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return "user:" + id.UserID
	}
	return "ip:" + c.ClientIP()
}

// getLimiter retrieves or creates the limiter for key.
func (rm *RateLimiterMiddleware) getLimiter(key string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	ul, exists := rm.users[key]
	if !exists {
		ul = &userLimiter{limiter: rate.NewLimiter(rm.limit, rm.burst)}
		rm.users[key] = ul
	}
	ul.lastSeen = time.Now()
	return ul.limiter
}

// cleanupUsers periodically removes entries not seen for a while.
func (rm *RateLimiterMiddleware) cleanupUsers() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
		}
		rm.mu.Lock()
		count := 0
		for key, ul := range rm.users {
			if time.Since(ul.lastSeen) > limiterIdleTimeout {
				delete(rm.users, key)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.WithField("removed", count).Debug("rate limiter cleanup")
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if !rm.getLimiter(key).Allow() {
			log.WithFields(log.Fields{"client": key, "route": c.FullPath()}).Warn("send rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
