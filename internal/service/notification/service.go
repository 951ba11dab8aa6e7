package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/push"
)

// Repository persists notifications
type Repository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	MarkPushed(ctx context.Context, notificationID uuid.UUID) error
}

// TokenRepository stores device tokens
type TokenRepository interface {
	Store(ctx context.Context, token *push.Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error)
	GetByToken(ctx context.Context, token string) (*push.Token, error)
	Remove(ctx context.Context, userID uuid.UUID, token string) error
}

// EventEmitter delivers realtime events
type EventEmitter interface {
	Emit(topic string, event *domain.Event) error
}

// Service delivers notices: the row is persisted, then the realtime event and the
// push are attempted. Only the persistence failure is returned.
type Service struct {
	repo     Repository
	tokens   TokenRepository
	provider push.Provider
	events   EventEmitter
}

// NewService creates a new notification service
func NewService(repo Repository, tokens TokenRepository, provider push.Provider, events EventEmitter) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		provider: provider,
		events:   events,
	}
}

// Notify sends a notice to one user
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, notice domain.Notice) error {
	n := &domain.Notification{
		UserID: userID,
		Type:   notice.Type,
		Title:  notice.Title,
		Body:   notice.Text,
		Icon:   notice.Icon,
	}
	if n.Type == "" {
		n.Type = domain.NotificationTypeSystem
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	log := logger.FromContext(ctx).With(zap.String("user_id", userID.String()))

	event := &domain.Event{Operation: domain.EventNotification, Notice: &notice}
	if err := s.events.Emit(fmt.Sprintf("%s_%s", domain.ChannelUser, userID), event); err != nil {
		log.Warn("Failed to emit notification event", zap.Error(err))
	}

	if err := s.deliver(ctx, n); err != nil {
		metrics.ChatPushSentTotal.WithLabelValues("error").Inc()
		log.Warn("Failed to push notification",
			zap.String("notification_id", n.NotificationID.String()),
			zap.Error(err))
	}

	return nil
}

func (s *Service) deliver(ctx context.Context, n *domain.Notification) error {
	tokens, err := s.tokens.GetByUserID(ctx, n.UserID)
	if err != nil {
		return err
	}
	active := push.ActiveTokens(tokens)
	if len(active) == 0 {
		return nil
	}

	result, err := s.provider.Send(ctx, &push.Notification{
		Title:    n.Title,
		Body:     n.Body,
		Category: n.Type,
		Data: map[string]string{
			"type":            n.Type,
			"notification_id": n.NotificationID.String(),
		},
	}, active)
	if err != nil {
		return err
	}

	for _, invalid := range result.InvalidTokens {
		if err := s.tokens.Remove(ctx, n.UserID, invalid); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove invalid push token", zap.Error(err))
		}
	}

	if result.SuccessCount == 0 {
		return nil
	}
	metrics.ChatPushSentTotal.WithLabelValues("success").Add(float64(result.SuccessCount))

	return s.repo.MarkPushed(ctx, n.NotificationID)
}

// RegisterTokenInput contains a device token registration
type RegisterTokenInput struct {
	UserID   uuid.UUID
	Token    string
	Type     push.TokenType
	Platform string
}

// RegisterToken stores a device token for the user. Re-registering a known token
// reassigns it to the caller.
func (s *Service) RegisterToken(ctx context.Context, input *RegisterTokenInput) error {
	if input.Token == "" {
		return apperrors.ValidationError("token is required")
	}
	if input.Type != push.TokenTypeFCM && input.Type != push.TokenTypeAPNs {
		return apperrors.ValidationError("type must be fcm or apns")
	}

	existing, err := s.tokens.GetByToken(ctx, input.Token)
	if err != nil {
		return apperrors.InternalError("failed to load push token")
	}
	if existing != nil && existing.UserID != input.UserID {
		if err := s.tokens.Remove(ctx, existing.UserID, existing.Token); err != nil {
			return apperrors.InternalError("failed to reassign push token")
		}
		existing = nil
	}

	token := &push.Token{
		UserID:   input.UserID,
		Token:    input.Token,
		Type:     input.Type,
		Platform: input.Platform,
		Active:   true,
	}
	if existing != nil {
		token.ID = existing.ID
		token.CreatedAt = existing.CreatedAt
	}

	if err := s.tokens.Store(ctx, token); err != nil {
		return apperrors.InternalError("failed to store push token")
	}
	return nil
}

// UnregisterToken removes a device token of the user
func (s *Service) UnregisterToken(ctx context.Context, userID uuid.UUID, token string) error {
	existing, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		return apperrors.InternalError("failed to load push token")
	}
	if existing == nil || existing.UserID != userID {
		return apperrors.NotFoundError("Push token")
	}
	if err := s.tokens.Remove(ctx, userID, token); err != nil {
		return apperrors.InternalError("failed to remove push token")
	}
	return nil
}
