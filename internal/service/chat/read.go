package chat

import (
	"context"

	"github.com/google/uuid"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/pagination"
)

// MarkReadInput selects which unread direct messages to flip
type MarkReadInput struct {
	PeerID *uuid.UUID // restrict to messages from this user
	Limit  int        // 0 means the default of 5
}

// MarkRead marks up to Limit of the newest unread direct messages addressed to the
// requester as read and returns how many changed. Calling it again with nothing
// unread returns 0.
func (s *Service) MarkRead(ctx context.Context, requester *domain.Requester, input *MarkReadInput) (int64, error) {
	if !requester.Authenticated() {
		return 0, apperrors.UnauthorizedError("Authentication required")
	}
	if input.Limit < 0 || input.Limit > pagination.ReadBounds.MaxLimit {
		return 0, apperrors.ValidationError("limit must be between 0 and 30")
	}

	window := pagination.Window{Limit: input.Limit}.Normalize(pagination.ReadBounds)

	updated, err := s.messages.MarkRead(ctx, requester.ID, input.PeerID, window.Limit)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	metrics.ChatMessagesMarkedReadTotal.Add(float64(updated))
	return updated, nil
}
