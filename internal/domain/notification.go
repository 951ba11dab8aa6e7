package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification types
const (
	NotificationTypeChatDenied = "chat_denied"
	NotificationTypeSystem     = "system"
)

// Notice is the content of a notification sent to a single user
type Notice struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Text  string `json:"text"`
	Icon  string `json:"icon,omitempty"`
}

// Notification represents a stored user notification
// Maps to CockroachDB notifications table
type Notification struct {
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Type           string     `json:"type" db:"type"`
	Title          string     `json:"title" db:"title"`
	Body           string     `json:"body" db:"body"`
	Icon           string     `json:"icon,omitempty" db:"icon"`
	IsRead         bool       `json:"is_read" db:"is_read"`
	IsPushed       bool       `json:"is_pushed" db:"is_pushed"` // Whether push notification was sent
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// Event operation tags
const (
	EventPost         = "post"
	EventPut          = "put"
	EventDelete       = "delete"
	EventDeleteAttach = "delete_attach"
	EventNotification = "notification"
)

// Event is the realtime payload published on a topic
type Event struct {
	Operation   string       `json:"operation"`
	Message     *MessageView `json:"message,omitempty"`
	Notice      *Notice      `json:"notice,omitempty"`
	AccountType string       `json:"account_type,omitempty"`
	SenderName  string       `json:"sender_name,omitempty"`
}
