package settings

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
)

// Source loads the raw settings rows
type Source interface {
	ListSettings(ctx context.Context) ([]domain.Setting, error)
}

// Refresher owns the current Snapshot and reloads it on an interval
type Refresher struct {
	source  Source
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewRefresher creates a refresher serving DefaultSnapshot until the first load
func NewRefresher(source Source) *Refresher {
	r := &Refresher{
		source: source,
		now:    time.Now,
	}
	r.current.Store(DefaultSnapshot())
	return r
}

// Snapshot returns the current settings snapshot
func (r *Refresher) Snapshot() *Snapshot {
	return r.current.Load()
}

// Refresh loads the settings once. On failure the previous snapshot stays in place.
func (r *Refresher) Refresh(ctx context.Context) error {
	rows, err := r.source.ListSettings(ctx)
	if err != nil {
		metrics.ChatSettingsRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load settings: %w", err)
	}

	snap, err := FromSettings(rows, r.now())
	if err != nil {
		metrics.ChatSettingsRefreshTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("failed to apply settings: %w", err)
	}

	r.current.Store(snap)
	metrics.ChatSettingsRefreshTotal.WithLabelValues("success").Inc()
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if err := r.Refresh(ctx); err != nil {
		logger.Warn("Initial settings load failed, serving defaults", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				logger.Warn("Settings refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}
