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

// StreamerSettingsRepository reads per-streamer privacy settings
type StreamerSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewStreamerSettingsRepository creates a new StreamerSettingsRepository
func NewStreamerSettingsRepository(pool *pgxpool.Pool) *StreamerSettingsRepository {
	return &StreamerSettingsRepository{pool: pool}
}

// Get retrieves the settings of a streamer, or defaults when none were saved
func (r *StreamerSettingsRepository) Get(ctx context.Context, streamerID uuid.UUID) (*domain.StreamerSettings, error) {
	query := `
		SELECT streamer_id, chat_policy, messaging_policy, messages_allowed, private_min_balance, updated_at
		FROM streamer_settings
		WHERE streamer_id = $1
	`

	var (
		settings        domain.StreamerSettings
		chatPolicy      string
		messagingPolicy string
	)
	err := r.pool.QueryRow(ctx, query, streamerID).Scan(
		&settings.StreamerID,
		&chatPolicy,
		&messagingPolicy,
		&settings.MessagesAllowed,
		&settings.PrivateMinBalance,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultStreamerSettings(streamerID), nil
		}
		return nil, fmt.Errorf("failed to get streamer settings: %w", err)
	}

	// unknown stored values behave as unset
	settings.ChatPolicy, _ = domain.ParsePolicy(chatPolicy)
	settings.MessagingPolicy, _ = domain.ParsePolicy(messagingPolicy)

	return &settings, nil
}
