package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/logger"
)

// StreamerSettingsSource is the authoritative settings store
type StreamerSettingsSource interface {
	Get(ctx context.Context, streamerID uuid.UUID) (*domain.StreamerSettings, error)
}

// StreamerSettingsCache is a read-through Redis cache in front of the settings table.
// Cache errors fall through to the source.
type StreamerSettingsCache struct {
	client *redis.Client
	source StreamerSettingsSource
	ttl    time.Duration
}

// NewStreamerSettingsCache creates a new cache
func NewStreamerSettingsCache(client *redis.Client, source StreamerSettingsSource, ttl time.Duration) *StreamerSettingsCache {
	return &StreamerSettingsCache{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

func streamerSettingsKey(streamerID uuid.UUID) string {
	return fmt.Sprintf("streamer:settings:%s", streamerID)
}

// Get returns cached settings or loads and caches them
func (c *StreamerSettingsCache) Get(ctx context.Context, streamerID uuid.UUID) (*domain.StreamerSettings, error) {
	key := streamerSettingsKey(streamerID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var settings domain.StreamerSettings
		if err := json.Unmarshal(data, &settings); err == nil {
			return &settings, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.FromContext(ctx).Warn("Streamer settings cache read failed", zap.Error(err))
	}

	settings, err := c.source.Get(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(settings); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.FromContext(ctx).Warn("Streamer settings cache write failed", zap.Error(err))
		}
	}

	return settings, nil
}

// Invalidate drops the cached settings of a streamer
func (c *StreamerSettingsCache) Invalidate(ctx context.Context, streamerID uuid.UUID) error {
	return c.client.Del(ctx, streamerSettingsKey(streamerID)).Err()
}
