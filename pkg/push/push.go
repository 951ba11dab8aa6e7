package push

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/pkg/logger"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
)

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// ActiveTokens returns the token strings of the active tokens
func ActiveTokens(tokens []*Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Active {
			out = append(out, t.Token)
		}
	}
	return out
}

// MockProvider records notifications instead of delivering them. Used in development
// and tests.
type MockProvider struct {
	mu   sync.Mutex
	Sent []*Notification
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, notification)
	m.mu.Unlock()

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// Count returns how many notifications were sent
func (m *MockProvider) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// maskPushToken returns a safe masked version of a push token for logging
func maskPushToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
