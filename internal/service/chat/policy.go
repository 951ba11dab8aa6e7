package chat

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
)

// Decision is the outcome of an access policy evaluation
type Decision struct {
	Allowed bool
	Reason  apperrors.DenyReason
}

var allow = Decision{Allowed: true}

func deny(reason apperrors.DenyReason) Decision {
	return Decision{Reason: reason}
}

// Evaluator decides whether a sender may post into a channel. It never performs
// lookups: every relationship fact is supplied by the caller, and global defaults
// come from the injected settings snapshot.
type Evaluator struct {
	settings SettingsProvider
}

// NewEvaluator creates an evaluator reading defaults from settings
func NewEvaluator(settings SettingsProvider) *Evaluator {
	return &Evaluator{settings: settings}
}

// Evaluate applies the decision table; the first matching rule wins
func (e *Evaluator) Evaluate(sender *domain.Requester, channel domain.ChannelType, ownerID uuid.UUID, facts domain.RelationshipFacts) Decision {
	snap := e.settings.Snapshot()
	messaging := snap.MessagingPolicyOr(facts.MessagingPolicy)
	chat := snap.ChatPolicyOr(facts.ChatPolicy)
	isOwner := facts.SenderIsOwner || (sender.Authenticated() && sender.ID == ownerID)

	if channel == domain.ChannelUser {
		switch {
		case facts.BlockedEitherWay:
			return deny(apperrors.ReasonBlocked)
		case facts.OwnerHasStream && (messaging == domain.PolicyNobody || !facts.MessagesAllowed):
			return deny(apperrors.ReasonChatDisabled)
		case messaging == domain.PolicySubsOnly && !facts.Subscribed && !isOwner:
			return deny(apperrors.ReasonSubscribersOnly)
		}
		return allow
	}

	if channel.IsBroadcast() && !isOwner {
		switch chat {
		case domain.PolicyNobody:
			return deny(apperrors.ReasonReadOnly)
		case domain.PolicySubsOnly:
			if !facts.Subscribed {
				return deny(apperrors.ReasonSubscribersOnly)
			}
		}
	}

	return allow
}

// gatherFacts resolves the relationship facts for one send
func (s *Service) gatherFacts(ctx context.Context, channel domain.ChannelType, owner *domain.UserSummary, sender *domain.Requester) (domain.RelationshipFacts, error) {
	facts := domain.RelationshipFacts{
		OwnerHasStream:  owner.HasStream,
		MessagesAllowed: true,
	}

	if owner.AccountType == domain.AccountStreamer {
		streamer, err := s.streamers.Get(ctx, owner.UserID)
		if err != nil {
			return facts, apperrors.DatabaseError(err)
		}
		facts.ChatPolicy = streamer.ChatPolicy
		facts.MessagingPolicy = streamer.MessagingPolicy
		facts.MessagesAllowed = streamer.MessagesAllowed
	} else {
		facts.ChatPolicy = domain.PolicyEveryone
		facts.MessagingPolicy = domain.PolicyEveryone
	}

	if !sender.Authenticated() {
		return facts, nil
	}
	facts.SenderIsOwner = sender.ID == owner.UserID
	if facts.SenderIsOwner {
		return facts, nil
	}

	if channel == domain.ChannelUser {
		blocked, err := s.isBlockedEitherWay(ctx, sender.ID, owner.UserID)
		if err != nil {
			return facts, err
		}
		facts.BlockedEitherWay = blocked
	}

	subscribed, err := s.subscriptions.IsSubscribed(ctx, sender.ID, owner.UserID)
	if err != nil {
		return facts, apperrors.DatabaseError(err)
	}
	facts.Subscribed = subscribed

	return facts, nil
}

func (s *Service) isBlockedEitherWay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if blocked {
		return true, nil
	}
	blocked, err = s.blocks.IsBlocked(ctx, b, a)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	return blocked, nil
}

// denialNotice returns the notice shown to a sender whose message was rejected
func denialNotice(channel domain.ChannelType, reason apperrors.DenyReason) domain.Notice {
	notice := domain.Notice{
		Type:  domain.NotificationTypeChatDenied,
		Title: "Message was not sent.",
		Icon:  "alert",
	}

	switch reason {
	case apperrors.ReasonBlocked:
		notice.Text = "You cannot message this user."
	case apperrors.ReasonChatDisabled:
		notice.Text = "This facility is disabled by the model."
	case apperrors.ReasonReadOnly:
		notice.Text = "This is readonly chat."
	case apperrors.ReasonSubscribersOnly:
		if channel.IsBroadcast() {
			notice.Title = "Chatting is restricted by model."
			notice.Text = "Please subscribe to chat."
		} else {
			notice.Text = "This facility is for subscribers only."
		}
	}

	return notice
}

func deniedError(channel domain.ChannelType, reason apperrors.DenyReason) *apperrors.AppError {
	switch {
	case reason == apperrors.ReasonBlocked:
		return apperrors.DeniedError(reason, "Blocked")
	case reason == apperrors.ReasonSubscribersOnly && channel.IsBroadcast():
		return apperrors.DeniedError(reason, "Please subscribe to chat.")
	default:
		return apperrors.DeniedError(reason, "Chat is disabled.")
	}
}

// notifyDenied sends the denial notice. Failures are logged; the caller still
// returns the Denied error.
func (s *Service) notifyDenied(ctx context.Context, sender *domain.Requester, channel domain.ChannelType, reason apperrors.DenyReason) {
	log := logger.FromContext(ctx)
	if !sender.Authenticated() {
		log.Debug("Skipping denial notice for guest sender", zap.String("reason", string(reason)))
		return
	}

	if err := s.notifier.Notify(ctx, sender.ID, denialNotice(channel, reason)); err != nil {
		metrics.ChatNotificationSentTotal.WithLabelValues("error").Inc()
		log.Warn("Failed to send denial notice",
			zap.String("user_id", sender.ID.String()),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return
	}
	metrics.ChatNotificationSentTotal.WithLabelValues("success").Inc()
}
