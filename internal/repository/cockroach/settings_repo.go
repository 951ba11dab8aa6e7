package cockroach

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"streamchat-backend/internal/domain"
)

// SettingsRepository reads the global app_settings table
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// ListSettings retrieves every global setting
func (r *SettingsRepository) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	query := `
		SELECT field, value, type, COALESCE(description, '')
		FROM app_settings
		ORDER BY field
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make([]domain.Setting, 0)
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Field, &s.Value, &s.Type, &s.Description); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return settings, nil
}
