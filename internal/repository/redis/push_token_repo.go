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

	"streamchat-backend/pkg/constants"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/push"
)

// PushTokenRepository handles push notification token storage in Redis
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{
		client: client,
	}
}

func pushTokenKey(token string) string {
	return fmt.Sprintf("push:token:%s", token)
}

func userTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("push:user:%s:tokens", userID)
}

// Store stores a push notification token and adds it to the owner's token set
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, pushTokenKey(token.Token), data, constants.PushTokenExpiry)
	pipe.SAdd(ctx, userTokensKey(token.UserID), token.Token)
	pipe.Expire(ctx, userTokensKey(token.UserID), constants.PushTokenExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

// GetByToken retrieves a token by its value. A missing token returns nil, nil.
func (r *PushTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	data, err := r.client.Get(ctx, pushTokenKey(tokenStr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// GetByUserID retrieves all tokens for a user. Set members whose token record has
// expired are skipped.
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	members, err := r.client.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	result := make([]*push.Token, 0, len(members))
	for _, tokenStr := range members {
		token, err := r.GetByToken(ctx, tokenStr)
		if err != nil {
			logger.Warn("Failed to get push token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if token != nil {
			result = append(result, token)
		}
	}

	return result, nil
}

// Remove deletes a token reported invalid by a provider
func (r *PushTokenRepository) Remove(ctx context.Context, userID uuid.UUID, tokenStr string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, pushTokenKey(tokenStr))
	pipe.SRem(ctx, userTokensKey(userID), tokenStr)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}
