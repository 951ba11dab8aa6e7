package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamchat-backend/internal/domain"
)

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification and fills its generated id and timestamp
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, body, icon, is_read, is_pushed, created_at)
		VALUES ($1, $2, $3, $4, $5, false, false, NOW())
		RETURNING notification_id, created_at
	`

	err := r.db.QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Body, n.Icon).
		Scan(&n.NotificationID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// MarkPushed records that a push was delivered for the notification
func (r *NotificationRepository) MarkPushed(ctx context.Context, notificationID uuid.UUID) error {
	query := `UPDATE notifications SET is_pushed = true WHERE notification_id = $1`

	if _, err := r.db.Exec(ctx, query, notificationID); err != nil {
		return fmt.Errorf("failed to mark notification as pushed: %w", err)
	}
	return nil
}
