package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"greendrake/estate/internal/config"
	"greendrake/estate/internal/logger"
)

const (
	cleanupInterval = 10 * time.Minute
	clientIdleTTL   = 30 * time.Minute
)

// Limits is a pair of token buckets. The soft bucket can be bypassed by a
// human-verified client; the hard bucket cannot.
type Limits struct {
	SoftRefillRate int // tokens per second
	SoftBucketSize int
	HardRefillRate int
	HardBucketSize int
}

// clientLimiter stores rate limiters for a specific client on one route.
type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware manages rate limiting for API endpoints.
type RateLimiterMiddleware struct {
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	defaults Limits
	routes   map[string]Limits
	stop     chan struct{}
	stopOnce sync.Once
	log      *logger.Logger
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware using the
// configured default buckets.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		defaults: Limits{
			SoftRefillRate: cfg.RateLimitSoftRefillRate,
			SoftBucketSize: cfg.RateLimitSoftBucketSize,
			HardRefillRate: cfg.RateLimitHardRefillRate,
			HardBucketSize: cfg.RateLimitHardBucketSize,
		},
		routes: make(map[string]Limits),
		stop:   make(chan struct{}),
		log:    logger.Global().Named("ratelimit"),
	}
	go rm.cleanupClients()
	return rm
}

// SetRouteLimits overrides the buckets for one route pattern (gin FullPath).
// Call before serving traffic.
func (rm *RateLimiterMiddleware) SetRouteLimits(route string, l Limits) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.routes[route] = l
}

// Stop ends the background cleanup.
func (rm *RateLimiterMiddleware) Stop() {
	rm.stopOnce.Do(func() { close(rm.stop) })
}

// getClientIdentifier creates a unique key based on IP, Fingerprint, and SPA Session ID.
func getClientIdentifier(c *gin.Context) string {
	return fmt.Sprintf("%s|%s|%s", c.ClientIP(), c.GetHeader("X-BFP"), c.GetHeader("X-SPA"))
}

// getClientLimiter retrieves or creates the rate limiters for a client on a route.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier, route string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	l, ok := rm.routes[route]
	if !ok {
		l = rm.defaults
	}
	key := route + "#" + identifier
	limiter, exists := rm.clients[key]
	if !exists {
		limiter = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(l.SoftRefillRate), l.SoftBucketSize),
			hardLimiter: rate.NewLimiter(rate.Limit(l.HardRefillRate), l.HardBucketSize),
		}
		rm.clients[key] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes idle client entries.
func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
			rm.mu.Lock()
			count := 0
			for id, client := range rm.clients {
				if time.Since(client.lastSeen) > clientIdleTTL {
					delete(rm.clients, id)
					count++
				}
			}
			rm.mu.Unlock()
			if count > 0 {
				rm.log.Debug("rate limiter cleanup", zap.Int("removed", count))
			}
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		route := c.FullPath()
		limiter := rm.getClientLimiter(clientKey, route)

		if !limiter.hardLimiter.Allow() {
			rm.log.Info("hard rate limit exceeded", zap.String("client", clientKey), zap.String("route", route))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		// Human-verified clients skip the soft bucket.
		if !c.GetBool(ContextKeyIsHumanVerified) && !limiter.softLimiter.Allow() {
			rm.log.Info("soft rate limit exceeded", zap.String("client", clientKey), zap.String("route", route))
			c.AbortWithStatusJSON(http.StatusTeapot, gin.H{"error": "Captcha validation required"})
			return
		}

		c.Next()
	}
}
