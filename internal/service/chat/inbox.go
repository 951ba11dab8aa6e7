package chat

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/pagination"
)

// InboxWindow is how many of the requester's newest direct messages are grouped.
// Conversations and unread counts older than the window are not reflected.
const InboxWindow = 300

// ListInbox returns the requester's conversations, most recent first
func (s *Service) ListInbox(ctx context.Context, requester *domain.Requester, window pagination.Window) ([]*domain.Conversation, error) {
	if !requester.Authenticated() {
		return nil, apperrors.UnauthorizedError("Authentication required")
	}
	me := requester.ID
	window = window.Normalize(pagination.InboxBounds)

	whoBlockedMe, err := s.blocks.ListWhoBlocked(ctx, me)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	candidates, err := s.messages.FetchInboxWindow(ctx, me, whoBlockedMe, InboxWindow)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	metrics.ChatInboxWindowSize.Observe(float64(len(candidates)))

	conversations := pagination.Apply(groupConversations(me, candidates), window)
	if len(conversations) == 0 {
		return conversations, nil
	}

	if err := s.attachProfiles(ctx, me, conversations); err != nil {
		return nil, err
	}

	return conversations, nil
}

// groupConversations collapses direct messages into one conversation per other party.
// The newest message of a pair wins, with the larger id breaking createdAt ties.
func groupConversations(me uuid.UUID, messages []*domain.Message) []*domain.Conversation {
	byPeer := make(map[uuid.UUID]*domain.Conversation)
	conversations := make([]*domain.Conversation, 0)

	for _, m := range messages {
		if m.ChannelType != domain.ChannelUser || !m.IsParty(me) {
			continue
		}
		peer := m.OtherParty(me)
		if peer == uuid.Nil {
			continue
		}

		conv, ok := byPeer[peer]
		if !ok {
			conv = &domain.Conversation{OtherPartyID: peer}
			byPeer[peer] = conv
			conversations = append(conversations, conv)
		}
		if !ok || newer(m.CreatedAt.UnixNano(), m.MessageID, conv.LastMessageAt.UnixNano(), conv.LastMessage.MessageID) {
			conv.LastMessage = lastMessageOf(m)
			conv.LastMessageAt = m.CreatedAt
		}
		if m.RecipientID == me && !m.IsAuthor(me) && !m.IsRead {
			conv.UnreadCount++
		}
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		return newer(a.LastMessageAt.UnixNano(), a.LastMessage.MessageID, b.LastMessageAt.UnixNano(), b.LastMessage.MessageID)
	})

	return conversations
}

func newer(aAt int64, aID uuid.UUID, bAt int64, bID uuid.UUID) bool {
	if aAt != bAt {
		return aAt > bAt
	}
	return bytes.Compare(aID[:], bID[:]) > 0
}

func lastMessageOf(m *domain.Message) domain.LastMessage {
	last := domain.LastMessage{
		MessageID: m.MessageID,
		Text:      m.PartyView().Text,
		CreatedAt: m.CreatedAt,
	}
	if m.AuthorID != nil {
		last.AuthorID = *m.AuthorID
	}
	if m.Attachment != nil {
		last.HasAttachment = true
		last.AttachmentURL = fmt.Sprintf("/v1/messages/%s/attachment", m.MessageID)
	}
	return last
}

// attachProfiles resolves the other party of each conversation. Presence failures
// degrade to offline rather than failing the inbox.
func (s *Service) attachProfiles(ctx context.Context, me uuid.UUID, conversations []*domain.Conversation) error {
	ids := make([]uuid.UUID, len(conversations))
	for i, conv := range conversations {
		ids[i] = conv.OtherPartyID
	}

	users, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	blocked, err := s.blocks.ListBlockedBy(ctx, me)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	blockedByMe := toSet(blocked)

	online, err := s.presence.AreOnline(ctx, ids)
	if err != nil {
		logger.FromContext(ctx).Warn("Presence lookup failed, reporting users offline", zap.Error(err))
		online = map[uuid.UUID]bool{}
	}

	for _, conv := range conversations {
		user, ok := users[conv.OtherPartyID]
		if !ok {
			continue
		}
		conv.User = &domain.Profile{
			UserID:      user.UserID,
			Name:        user.Name(),
			AvatarURL:   user.AvatarURL,
			AccountType: user.AccountType,
			Online:      online[user.UserID],
			IsBlocked:   blockedByMe[user.UserID],
		}
	}

	return nil
}

// DeleteThread deletes every direct message between the requester and otherID
func (s *Service) DeleteThread(ctx context.Context, requester *domain.Requester, otherID uuid.UUID) (int64, error) {
	if !requester.Authenticated() {
		return 0, apperrors.UnauthorizedError("Authentication required")
	}
	if otherID == uuid.Nil || otherID == requester.ID {
		return 0, apperrors.ValidationError("invalid user id")
	}

	deleted, err := s.messages.DeleteThread(ctx, requester.ID, otherID)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}

	metrics.ChatMessageDeletedTotal.WithLabelValues("thread").Add(float64(deleted))
	logger.FromContext(ctx).Info("Thread deleted",
		zap.String("user_id", requester.ID.String()),
		zap.String("other_user_id", otherID.String()),
		zap.Int64("deleted", deleted))

	return deleted, nil
}
