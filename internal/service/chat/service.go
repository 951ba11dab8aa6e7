package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/internal/service/settings"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
	"streamchat-backend/pkg/pagination"
)

// MessageRepository persists messages. Update and Delete are guarded by the
// requester being a party so the check and the write happen in one statement.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	Update(ctx context.Context, messageID, partyID uuid.UUID, patch *domain.MessageUpdate) (*domain.Message, error)
	Delete(ctx context.Context, messageID, partyID uuid.UUID) (*domain.Message, error)
	DeleteThread(ctx context.Context, userA, userB uuid.UUID) (int64, error)
	ListChannel(ctx context.Context, query *domain.ChannelQuery) ([]*domain.Message, error)
	FetchInboxWindow(ctx context.Context, userID uuid.UUID, exclude []uuid.UUID, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, recipientID uuid.UUID, peerID *uuid.UUID, limit int) (int64, error)
	SetAttachment(ctx context.Context, messageID uuid.UUID, attachment *domain.Attachment) (*domain.Message, error)
}

// BlockRepository answers blocking-relationship lookups
type BlockRepository interface {
	IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error)
	ListBlockedBy(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error)
	ListWhoBlocked(ctx context.Context, blockedID uuid.UUID) ([]uuid.UUID, error)
}

// SubscriptionRepository answers subscription lookups
type SubscriptionRepository interface {
	IsSubscribed(ctx context.Context, subscriberID, streamerID uuid.UUID) (bool, error)
	IsPMUnlocked(ctx context.Context, viewerID, streamerID uuid.UUID) (bool, error)
}

// StreamerSettingsRepository returns privacy settings, or defaults for a streamer without a row
type StreamerSettingsRepository interface {
	Get(ctx context.Context, streamerID uuid.UUID) (*domain.StreamerSettings, error)
}

// UserDirectory resolves user records
type UserDirectory interface {
	GetSummary(ctx context.Context, userID uuid.UUID) (*domain.UserSummary, error)
	GetSummaries(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error)
}

// PresenceRepository answers online status
type PresenceRepository interface {
	AreOnline(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// AttachmentStorage stores attachment objects
type AttachmentStorage interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Rename(ctx context.Context, from, to string) error
	Open(ctx context.Context, objectName string) (io.ReadCloser, *domain.ObjectInfo, error)
	Remove(ctx context.Context, objectName string) error
}

// EventEmitter delivers realtime events. Emit must not block on the transport.
type EventEmitter interface {
	Emit(topic string, event *domain.Event) error
}

// Notifier delivers a notice to a single user
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notice domain.Notice) error
}

// SettingsProvider returns the current global settings
type SettingsProvider interface {
	Snapshot() *settings.Snapshot
}

// Dependencies groups the collaborators of the chat service
type Dependencies struct {
	Messages      MessageRepository
	Blocks        BlockRepository
	Subscriptions SubscriptionRepository
	Streamers     StreamerSettingsRepository
	Users         UserDirectory
	Presence      PresenceRepository
	Storage       AttachmentStorage
	Events        EventEmitter
	Notifier      Notifier
	Settings      SettingsProvider
}

// Service handles chat business logic
type Service struct {
	messages      MessageRepository
	blocks        BlockRepository
	subscriptions SubscriptionRepository
	streamers     StreamerSettingsRepository
	users         UserDirectory
	presence      PresenceRepository
	storage       AttachmentStorage
	events        EventEmitter
	notifier      Notifier
	settings      SettingsProvider
	evaluator     *Evaluator

	maxAttachmentBytes int64
	now                func() time.Time
	newID              func() (uuid.UUID, error)
}

// NewService creates a new chat service
func NewService(deps Dependencies, maxAttachmentBytes int64) *Service {
	return &Service{
		messages:           deps.Messages,
		blocks:             deps.Blocks,
		subscriptions:      deps.Subscriptions,
		streamers:          deps.Streamers,
		users:              deps.Users,
		presence:           deps.Presence,
		storage:            deps.Storage,
		events:             deps.Events,
		notifier:           deps.Notifier,
		settings:           deps.Settings,
		evaluator:          NewEvaluator(deps.Settings),
		maxAttachmentBytes: maxAttachmentBytes,
		now:                time.Now,
		newID:              uuid.NewV7,
	}
}

// SendMessageInput contains data for sending a message
type SendMessageInput struct {
	ChannelType domain.ChannelType
	OwnerID     uuid.UUID
	Sender      *domain.Requester // nil for anonymous callers
	Text        string
	HiddenText  string
	Operation   string
}

// SendMessage gates, stores and announces a new message
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*domain.MessageView, error) {
	if err := validateText(input.Text, false); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(input.HiddenText) > domain.MaxTextLength {
		return nil, apperrors.ValidationError("hidden text must not exceed 1000 characters")
	}

	operation, err := senderOperation(input.Sender, input.Operation)
	if err != nil {
		return nil, err
	}

	owner, err := s.gate(ctx, input.ChannelType, input.OwnerID, input.Sender)
	if err != nil {
		return nil, err
	}

	message, err := s.create(ctx, input.ChannelType, owner.UserID, input.Sender, input.Text, input.HiddenText, operation, nil)
	if err != nil {
		return nil, err
	}

	view := message.PartyView()
	view.Author = senderProfile(input.Sender)
	s.emitMessage(message, domain.EventPost, input.Sender)

	return view, nil
}

// gate checks that the channel can receive a message from sender and runs the access
// policy. A denial notifies the sender before the error is returned.
func (s *Service) gate(ctx context.Context, channel domain.ChannelType, ownerID uuid.UUID, sender *domain.Requester) (*domain.UserSummary, error) {
	if !sender.Authenticated() {
		switch {
		case channel == domain.ChannelUser:
			return nil, apperrors.ForbiddenError("Guests cannot send direct messages")
		case channel == domain.ChannelShow:
			return nil, apperrors.ForbiddenError("Authentication required")
		case !s.settings.Snapshot().GuestChatEnabled:
			return nil, apperrors.ForbiddenError("Guest chat is disabled")
		}
	}
	if channel == domain.ChannelUser && sender.ID == ownerID {
		return nil, apperrors.ValidationError("cannot send a direct message to yourself")
	}

	owner, err := s.lookupUser(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	facts, err := s.gatherFacts(ctx, channel, owner, sender)
	if err != nil {
		return nil, err
	}

	decision := s.evaluator.Evaluate(sender, channel, ownerID, facts)
	if !decision.Allowed {
		metrics.ChatMessageDeniedTotal.WithLabelValues(string(channel), string(decision.Reason)).Inc()
		s.notifyDenied(ctx, sender, channel, decision.Reason)
		return nil, deniedError(channel, decision.Reason)
	}

	return owner, nil
}

func (s *Service) create(
	ctx context.Context,
	channel domain.ChannelType,
	recipientID uuid.UUID,
	sender *domain.Requester,
	text, hiddenText string,
	operation domain.Operation,
	attachment *domain.Attachment,
) (*domain.Message, error) {
	id, err := s.newID()
	if err != nil {
		return nil, apperrors.InternalError("failed to generate message id")
	}

	now := s.now().UTC()
	message := &domain.Message{
		MessageID:   id,
		ChannelType: channel,
		RecipientID: recipientID,
		Text:        text,
		HiddenText:  hiddenText,
		Operation:   operation,
		Attachment:  attachment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sender.Authenticated() {
		authorID := sender.ID
		message.AuthorID = &authorID
	} else {
		message.IsGuest = true
		if sender != nil {
			message.GuestID = sender.GuestID
		}
	}
	if attachment != nil && attachment.StorageID == "" {
		attachment.StorageID = id.String()
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	metrics.ChatMessageCreatedTotal.WithLabelValues(string(channel), boolLabel(message.IsGuest)).Inc()
	return message, nil
}

// GetMessage returns one message projected for the requester
func (s *Service) GetMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*domain.MessageView, error) {
	message, err := s.findMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.ChannelType != domain.ChannelStream && !requester.Authenticated() {
		return nil, apperrors.ForbiddenError("Authentication required")
	}
	if message.ChannelType == domain.ChannelUser && !message.IsParty(requester.ID) {
		return nil, apperrors.NotFoundError("Message")
	}

	view := viewFor(message, requester)
	if message.AuthorID != nil {
		if author, err := s.users.GetSummary(ctx, *message.AuthorID); err == nil && author != nil {
			view.Author = authorProfile(author, nil)
		}
	}

	return view, nil
}

// UpdateMessage applies a patch. The author may change text and is_read, the
// recipient only is_read; anyone else gets NotFound.
func (s *Service) UpdateMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester, patch *domain.MessageUpdate) (*domain.MessageView, error) {
	if !requester.Authenticated() {
		return nil, apperrors.UnauthorizedError("Authentication required")
	}
	if patch == nil || (patch.Text == nil && patch.IsRead == nil) {
		return nil, apperrors.ValidationError("nothing to update")
	}
	if patch.Text != nil {
		if err := validateText(*patch.Text, false); err != nil {
			return nil, err
		}
	}

	current, err := s.findMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !current.IsParty(requester.ID) {
		return nil, apperrors.NotFoundError("Message")
	}
	if patch.Text != nil && !current.IsAuthor(requester.ID) {
		return nil, apperrors.ForbiddenError("Only the author can edit a message")
	}

	updated, err := s.messages.Update(ctx, messageID, requester.ID, patch)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.emitMessage(updated, domain.EventPut, requester)
	return viewFor(updated, requester), nil
}

// DeleteMessage removes a message the requester authored or received. Streamers
// receive every message of their own channels, so they can moderate them.
func (s *Service) DeleteMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error {
	if !requester.Authenticated() {
		return apperrors.UnauthorizedError("Authentication required")
	}

	deleted, err := s.messages.Delete(ctx, messageID, requester.ID)
	if err != nil {
		return mapStoreError(err)
	}

	metrics.ChatMessageDeletedTotal.WithLabelValues("single").Inc()

	if deleted.Attachment != nil {
		objectName := deleted.Attachment.ObjectName()
		if err := s.storage.Remove(ctx, objectName); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove attachment of deleted message",
				zap.String("message_id", messageID.String()),
				zap.String("object", objectName),
				zap.Error(err))
		}
	}

	s.emitMessage(deleted, domain.EventDelete, requester)
	return nil
}

// ListChannelInput selects a page of a channel
type ListChannelInput struct {
	ChannelType domain.ChannelType
	OwnerID     uuid.UUID
	Requester   *domain.Requester
	Sort        domain.SortOrder
	Window      pagination.Window
}

// ListChannel returns a page of channel messages projected for the requester
func (s *Service) ListChannel(ctx context.Context, input *ListChannelInput) (*domain.ChannelPage, error) {
	requester := input.Requester
	if input.ChannelType != domain.ChannelStream && !requester.Authenticated() {
		return nil, apperrors.ForbiddenError("Authentication required")
	}

	window := input.Window.Normalize(pagination.ChannelBounds)
	query := &domain.ChannelQuery{
		ChannelType: input.ChannelType,
		OwnerID:     input.OwnerID,
		Sort:        input.Sort,
		Skip:        window.Skip,
		Limit:       window.Limit,
	}
	if query.Sort != domain.SortAsc {
		query.Sort = domain.SortDesc
	}

	if input.ChannelType == domain.ChannelUser {
		blocked, err := s.blocks.IsBlocked(ctx, input.OwnerID, requester.ID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if blocked {
			return nil, apperrors.ForbiddenError("Blocked")
		}
		peerID := requester.ID
		query.PeerID = &peerID
	} else {
		query.Exclude = domain.HiddenFromListings
	}

	messages, err := s.messages.ListChannel(ctx, query)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	views, err := s.projectPage(ctx, messages, requester)
	if err != nil {
		return nil, err
	}
	page := &domain.ChannelPage{Messages: views}

	if input.ChannelType == domain.ChannelUser {
		if err := s.fillPrivatePricing(ctx, page, input.OwnerID, requester); err != nil {
			return nil, err
		}
	}

	return page, nil
}

// projectPage resolves authors, drops messages whose author no longer exists and
// flags authors the requester has blocked
func (s *Service) projectPage(ctx context.Context, messages []*domain.Message, requester *domain.Requester) ([]*domain.MessageView, error) {
	views := make([]*domain.MessageView, 0, len(messages))
	if len(messages) == 0 {
		return views, nil
	}

	authorIDs := make([]uuid.UUID, 0, len(messages))
	seen := make(map[uuid.UUID]bool)
	for _, m := range messages {
		if m.AuthorID != nil && !seen[*m.AuthorID] {
			seen[*m.AuthorID] = true
			authorIDs = append(authorIDs, *m.AuthorID)
		}
	}

	authors, err := s.users.GetSummaries(ctx, authorIDs)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	var blockedByMe map[uuid.UUID]bool
	if requester.Authenticated() {
		ids, err := s.blocks.ListBlockedBy(ctx, requester.ID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		blockedByMe = toSet(ids)
	}

	for _, m := range messages {
		view := viewFor(m, requester)
		if m.AuthorID != nil {
			author, ok := authors[*m.AuthorID]
			if !ok {
				continue
			}
			view.Author = authorProfile(author, blockedByMe)
		}
		views = append(views, view)
	}

	return views, nil
}

func (s *Service) fillPrivatePricing(ctx context.Context, page *domain.ChannelPage, ownerID uuid.UUID, requester *domain.Requester) error {
	owner, err := s.lookupUser(ctx, ownerID)
	if err != nil {
		return err
	}
	if owner.AccountType != domain.AccountStreamer {
		return nil
	}

	streamer, err := s.streamers.Get(ctx, ownerID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	minBalance := s.settings.Snapshot().PrivateMinBalanceOr(streamer.PrivateMinBalance)
	unlocked := minBalance == 0
	if !unlocked {
		unlocked, err = s.subscriptions.IsPMUnlocked(ctx, requester.ID, ownerID)
		if err != nil {
			return apperrors.DatabaseError(err)
		}
	}

	page.PrivateMinBalance = &minBalance
	page.IsPMUnlocked = &unlocked
	return nil
}

func (s *Service) findMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return message, nil
}

func (s *Service) lookupUser(ctx context.Context, userID uuid.UUID) (*domain.UserSummary, error) {
	user, err := s.users.GetSummary(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if user == nil {
		return nil, apperrors.NotFoundError("User")
	}
	return user, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, domain.ErrMessageNotFound) {
		return apperrors.NotFoundError("Message")
	}
	return apperrors.DatabaseError(err)
}

func validateText(text string, hasAttachment bool) error {
	if strings.TrimSpace(text) == "" {
		if hasAttachment {
			return nil
		}
		return apperrors.ValidationError("text is required")
	}
	if utf8.RuneCountInString(text) > domain.MaxTextLength {
		return apperrors.ValidationError("text must not exceed 1000 characters")
	}
	return nil
}

// senderOperation returns the operation marker a sender may attach. Only streamers may
// set one; for everyone else the field is ignored.
func senderOperation(sender *domain.Requester, raw string) (domain.Operation, error) {
	if !sender.IsStreamer() {
		return domain.OperationNone, nil
	}
	operation, ok := domain.ParseOperation(raw)
	if !ok {
		return "", apperrors.ValidationError("unknown operation")
	}
	return operation, nil
}

func senderProfile(sender *domain.Requester) *domain.AuthorProfile {
	if !sender.Authenticated() {
		return nil
	}
	return &domain.AuthorProfile{
		UserID:      sender.ID,
		Name:        sender.Name,
		AccountType: sender.AccountType,
	}
}

func authorProfile(user *domain.UserSummary, blockedByMe map[uuid.UUID]bool) *domain.AuthorProfile {
	return &domain.AuthorProfile{
		UserID:      user.UserID,
		Name:        user.Name(),
		AvatarURL:   user.AvatarURL,
		AccountType: user.AccountType,
		IsBlocked:   blockedByMe[user.UserID],
	}
}

func toSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
