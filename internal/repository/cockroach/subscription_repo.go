package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository answers subscription and private-message unlock lookups
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// IsSubscribed reports whether subscriberID holds an unexpired subscription to streamerID
func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, streamerID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE subscriber_id = $1 AND streamer_id = $2
				AND (expires_at IS NULL OR expires_at > NOW())
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, subscriberID, streamerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}

	return exists, nil
}

// IsPMUnlocked reports whether viewerID has paid to unlock private messages with streamerID
func (r *SubscriptionRepository) IsPMUnlocked(ctx context.Context, viewerID, streamerID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM pm_unlocks WHERE viewer_id = $1 AND streamer_id = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, viewerID, streamerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check private message unlock: %w", err)
	}

	return exists, nil
}
