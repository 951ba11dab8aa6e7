package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlockedUserRepository handles blocked user data operations in CockroachDB
type BlockedUserRepository struct {
	pool *pgxpool.Pool
}

// NewBlockedUserRepository creates a new BlockedUserRepository
func NewBlockedUserRepository(pool *pgxpool.Pool) *BlockedUserRepository {
	return &BlockedUserRepository{pool: pool}
}

// IsBlocked checks if a user is blocked by another user
func (r *BlockedUserRepository) IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blocked_users WHERE blocker_id = $1 AND blocked_id = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, blockerID, blockedID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if user is blocked: %w", err)
	}

	return exists, nil
}

// ListBlockedBy returns the ids blockerID has blocked
func (r *BlockedUserRepository) ListBlockedBy(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT blocked_id
		FROM blocked_users
		WHERE blocker_id = $1
	`

	return r.listIDs(ctx, query, blockerID)
}

// ListWhoBlocked returns the ids of users who have blocked blockedID
func (r *BlockedUserRepository) ListWhoBlocked(ctx context.Context, blockedID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT blocker_id
		FROM blocked_users
		WHERE blocked_id = $1
	`

	return r.listIDs(ctx, query, blockedID)
}

func (r *BlockedUserRepository) listIDs(ctx context.Context, query string, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocked users: %w", err)
	}

	return ids, nil
}
