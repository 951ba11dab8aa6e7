package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/logger"
)

// SendAttachmentInput contains data for sending a message with a file
type SendAttachmentInput struct {
	ChannelType domain.ChannelType
	OwnerID     uuid.UUID
	Sender      *domain.Requester
	Text        string
	Upload      *domain.Upload
}

// SendAttachment runs the same gate as SendMessage, uploads the file under a
// temporary name, stores the message and renames the object after the message id.
func (s *Service) SendAttachment(ctx context.Context, input *SendAttachmentInput) (*domain.MessageView, error) {
	if !input.Sender.Authenticated() {
		return nil, apperrors.UnauthorizedError("Authentication required")
	}
	if input.Upload == nil || input.Upload.Reader == nil {
		return nil, apperrors.ValidationError("file is required")
	}

	ext := domain.NormalizeExtension(filepath.Ext(input.Upload.FileName))
	contentType, ok := domain.ContentTypeFor(ext)
	if !ok {
		return nil, apperrors.ValidationError("unsupported attachment type")
	}
	if input.Upload.Size <= 0 || input.Upload.Size > s.maxAttachmentBytes {
		return nil, apperrors.ValidationError(fmt.Sprintf("attachment must be between 1 and %d bytes", s.maxAttachmentBytes))
	}

	text := input.Text
	if strings.TrimSpace(text) == "" {
		text = domain.AttachmentPlaceholderText
	} else if err := validateText(text, true); err != nil {
		return nil, err
	}

	owner, err := s.gate(ctx, input.ChannelType, input.OwnerID, input.Sender)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	tempName := fmt.Sprintf("temp%s-%s.%s", input.Sender.ID, uuid.NewString(), ext)
	if err := s.storage.Upload(ctx, tempName, input.Upload.Reader, input.Upload.Size, contentType); err != nil {
		return nil, apperrors.StorageError(err)
	}

	message, err := s.create(ctx, input.ChannelType, owner.UserID, input.Sender, text, "", domain.OperationNone, &domain.Attachment{Extension: ext})
	if err != nil {
		if rmErr := s.storage.Remove(ctx, tempName); rmErr != nil {
			log.Warn("Failed to remove orphaned upload", zap.String("object", tempName), zap.Error(rmErr))
		}
		return nil, err
	}

	if err := s.storage.Rename(ctx, tempName, message.Attachment.ObjectName()); err != nil {
		log.Error("Failed to rename attachment",
			zap.String("message_id", message.MessageID.String()),
			zap.String("from", tempName),
			zap.Error(err))
	}

	view := message.PartyView()
	view.Author = senderProfile(input.Sender)
	s.emitMessage(message, domain.EventPost, input.Sender)

	return view, nil
}

// AttachmentContent is an opened attachment ready to stream. The caller closes Reader.
type AttachmentContent struct {
	Reader   io.ReadCloser
	Info     *domain.ObjectInfo
	FileName string
}

// GetAttachment opens the file of a message. Direct message files are only served
// to the two participants.
func (s *Service) GetAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*AttachmentContent, error) {
	message, err := s.findMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Attachment == nil {
		return nil, apperrors.FileNotFoundError()
	}
	if message.ChannelType == domain.ChannelUser && (!requester.Authenticated() || !message.IsParty(requester.ID)) {
		return nil, apperrors.ForbiddenError("Forbidden")
	}

	objectName := message.Attachment.ObjectName()
	reader, info, err := s.storage.Open(ctx, objectName)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, apperrors.FileNotFoundError()
		}
		return nil, apperrors.StorageError(err)
	}

	return &AttachmentContent{
		Reader:   reader,
		Info:     info,
		FileName: objectName,
	}, nil
}

// DeleteAttachment removes the file of a message the requester authored
func (s *Service) DeleteAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error {
	if !requester.Authenticated() {
		return apperrors.UnauthorizedError("Authentication required")
	}

	message, err := s.findMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !message.IsAuthor(requester.ID) || message.Attachment == nil {
		return apperrors.FileNotFoundError()
	}
	objectName := message.Attachment.ObjectName()

	updated, err := s.messages.SetAttachment(ctx, messageID, nil)
	if err != nil {
		return mapStoreError(err)
	}

	if err := s.storage.Remove(ctx, objectName); err != nil {
		logger.FromContext(ctx).Warn("Failed to remove attachment object",
			zap.String("message_id", messageID.String()),
			zap.String("object", objectName),
			zap.Error(err))
	}

	s.emitMessage(updated, domain.EventDeleteAttach, requester)
	return nil
}
