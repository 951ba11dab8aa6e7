package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamchat-backend/internal/domain"
)

// UserRepository reads the user directory in CockroachDB
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userSummarySelect = `
	SELECT u.user_id, u.username, COALESCE(u.display_name, ''), u.avatar_url, u.account_type,
		EXISTS(SELECT 1 FROM streams s WHERE s.streamer_id = u.user_id) AS has_stream
	FROM users u
`

// GetSummary retrieves the directory record of a user. A missing user is (nil, nil).
func (r *UserRepository) GetSummary(ctx context.Context, userID uuid.UUID) (*domain.UserSummary, error) {
	query := userSummarySelect + `WHERE u.user_id = $1`

	user, err := scanUserSummary(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetSummaries retrieves several users at once, keyed by id. Unknown ids are absent.
func (r *UserRepository) GetSummaries(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	users := make(map[uuid.UUID]*domain.UserSummary, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	query := userSummarySelect + `WHERE u.user_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUserSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.UserID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func scanUserSummary(row pgx.Row) (*domain.UserSummary, error) {
	user := &domain.UserSummary{}
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.DisplayName,
		&user.AvatarURL,
		&user.AccountType,
		&user.HasStream,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
