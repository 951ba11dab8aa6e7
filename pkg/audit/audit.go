package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"streamchat-backend/pkg/constants"
)

// EventType represents the type of audit event
type EventType string

const (
	EventMessageDelete    EventType = "message_delete"
	EventThreadDelete     EventType = "thread_delete"
	EventAttachmentUpload EventType = "attachment_upload"
	EventAttachmentDelete EventType = "attachment_delete"
)

// Event represents an audit log entry
type Event struct {
	EventID   uuid.UUID  `json:"event_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	EventType EventType  `json:"event_type"`
	Resource  string     `json:"resource,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	Details   string     `json:"details,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Logger keeps a per-day trail of destructive chat actions in Redis
type Logger struct {
	redisClient *redis.Client
	now         func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(redisClient *redis.Client) *Logger {
	return &Logger{
		redisClient: redisClient,
		now:         time.Now,
	}
}

func dayKey(day time.Time) string {
	return fmt.Sprintf("audit:events:%s", day.UTC().Format("2006-01-02"))
}

// Log stores an audit event on the list of its day
func (l *Logger) Log(ctx context.Context, event *Event) error {
	event.Timestamp = l.now().UTC()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := dayKey(event.Timestamp)
	pipe := l.redisClient.TxPipeline()
	pipe.LPush(ctx, key, eventJSON)
	pipe.Expire(ctx, key, constants.AuditLogRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	return nil
}
