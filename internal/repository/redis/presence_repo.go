package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"streamchat-backend/pkg/constants"
)

// PresenceRepository handles user online/offline status in Redis. A user is online
// while their presence key exists; open sockets refresh its TTL.
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetOnline marks a user as online. Each open connection holds one reference so the
// user stays online until the last socket closes.
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, constants.PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	return nil
}

// Refresh extends the presence TTL (heartbeat)
func (r *PresenceRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Expire(ctx, presenceKey(userID), constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// SetOffline releases one connection reference and clears presence at zero
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	remaining, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}
	if remaining <= 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete presence: %w", err)
		}
	}

	return nil
}

// AreOnline checks several users in one round trip
func (r *PresenceRepository) AreOnline(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	online := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check presence: %w", err)
	}

	for i, userID := range userIDs {
		online[userID] = cmds[i].Val() > 0
	}

	return online, nil
}
