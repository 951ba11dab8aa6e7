package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"streamchat-backend/pkg/database"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/response"
)

// maxLocalLimiters bounds the fallback table; it is reset when full
const maxLocalLimiters = 10000

// RateLimiter counts requests per caller in fixed Redis windows. While Redis is
// degraded or failing, each process falls back to an in-memory token bucket.
type RateLimiter struct {
	redis    *database.RedisClient
	metrics  *metrics.Metrics
	name     string
	requests int
	window   time.Duration

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter
// name: scope of the limit, used in keys and metrics (e.g. "send")
// requests: maximum number of requests allowed per window
func NewRateLimiter(redis *database.RedisClient, m *metrics.Metrics, name string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redis,
		metrics:  m,
		name:     name,
		requests: requests,
		window:   window,
		local:    make(map[string]*rate.Limiter),
	}
}

// Middleware returns a Gin middleware for rate limiting. It must run after the auth
// middleware so authenticated callers are limited per user instead of per IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if requester := GetRequester(c); requester.Authenticated() {
			identifier = "user:" + requester.ID.String()
		}

		allowed, remaining, resetAt := rl.Allow(c.Request.Context(), identifier)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if resetAt > 0 {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
		}

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitBlocked(rl.name)
			}
			response.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow reports whether identifier may make another request, the requests left in
// the window and the unix time the window resets (0 when unknown)
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, int, int64) {
	if rl.redis != nil && !rl.redis.IsDegraded() {
		allowed, remaining, resetAt, err := rl.checkRedis(ctx, identifier)
		if err == nil {
			return allowed, remaining, resetAt
		}
		logger.FromContext(ctx).Warn("Rate limit check failed, using local limiter",
			zap.String("limiter", rl.name),
			zap.Error(err))
	}

	allowed, remaining := rl.checkLocal(identifier)
	return allowed, remaining, 0
}

func (rl *RateLimiter) checkRedis(ctx context.Context, identifier string) (bool, int, int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rl.name, identifier)

	pipe := rl.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, fmt.Errorf("failed to count request: %w", err)
	}

	count := int(incr.Val())
	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := time.Now().Add(ttl.Val()).Unix()
	return count <= rl.requests, remaining, resetAt, nil
}

func (rl *RateLimiter) checkLocal(identifier string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.local[identifier]
	if !ok {
		if len(rl.local) >= maxLocalLimiters {
			rl.local = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.requests)), rl.requests)
		rl.local[identifier] = limiter
	}

	allowed := limiter.Allow()
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}
