package chat

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
)

// Topic returns the realtime topic of a channel owned by ownerID
func Topic(channel domain.ChannelType, ownerID uuid.UUID) string {
	return fmt.Sprintf("%s_%s", channel, ownerID)
}

// emitMessage announces a message change. Broadcast channels carry the public
// projection; direct messages carry the party projection to both participants.
// Failures are logged and never returned.
func (s *Service) emitMessage(message *domain.Message, operation string, actor *domain.Requester) {
	event := &domain.Event{
		Operation:   operation,
		AccountType: "guest",
		SenderName:  "Guest",
	}
	if actor.Authenticated() {
		event.AccountType = actor.AccountType
		event.SenderName = actor.Name
	}

	topics := []string{Topic(message.ChannelType, message.RecipientID)}
	if message.ChannelType == domain.ChannelUser {
		event.Message = message.PartyView()
		if message.AuthorID != nil {
			topics = append(topics, Topic(domain.ChannelUser, *message.AuthorID))
		}
	} else {
		event.Message = message.PublicView()
	}

	for _, topic := range topics {
		if err := s.events.Emit(topic, event); err != nil {
			metrics.ChatEventEmittedTotal.WithLabelValues(operation, "dropped").Inc()
			logger.Warn("Failed to emit message event",
				zap.String("topic", topic),
				zap.String("operation", operation),
				zap.String("message_id", message.MessageID.String()),
				zap.Error(err))
			continue
		}
		metrics.ChatEventEmittedTotal.WithLabelValues(operation, "queued").Inc()
	}
}
