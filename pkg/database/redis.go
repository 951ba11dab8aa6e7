package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamchat-backend/pkg/config"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
)

// RedisClient wraps the Redis client with degraded mode tracking. Callers that can
// fall back to local state check IsDegraded before touching Redis.
type RedisClient struct {
	Client *redis.Client

	mu            sync.RWMutex
	degraded      bool
	healthCheckMu sync.Mutex
}

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck pings Redis every interval until ctx is done
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// IsDegraded returns true if the last health check failed
func (r *RedisClient) IsDegraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

func (r *RedisClient) setDegraded(degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.degraded == degraded {
		return
	}
	r.degraded = degraded
	if degraded {
		metrics.RedisDegradedMode.Set(1)
		logger.Warn("Redis entered degraded mode")
	} else {
		metrics.RedisDegradedMode.Set(0)
		logger.Info("Redis recovered from degraded mode")
	}
}

// HealthCheck pings Redis and updates degraded mode
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegraded(true)
		metrics.RedisHealthCheckTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegraded(false)
	metrics.RedisHealthCheckTotal.WithLabelValues("success").Inc()
	return nil
}
