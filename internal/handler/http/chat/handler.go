package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/internal/middleware"
	"streamchat-backend/internal/service/chat"
	"streamchat-backend/pkg/audit"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/pagination"
	"streamchat-backend/pkg/response"
	"streamchat-backend/pkg/sanitize"
)

// Service is the chat service as used by the HTTP layer
type Service interface {
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageView, error)
	GetMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*domain.MessageView, error)
	UpdateMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester, patch *domain.MessageUpdate) (*domain.MessageView, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error
	ListChannel(ctx context.Context, input *chat.ListChannelInput) (*domain.ChannelPage, error)
	ListInbox(ctx context.Context, requester *domain.Requester, window pagination.Window) ([]*domain.Conversation, error)
	DeleteThread(ctx context.Context, requester *domain.Requester, otherID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, requester *domain.Requester, input *chat.MarkReadInput) (int64, error)
	SendAttachment(ctx context.Context, input *chat.SendAttachmentInput) (*domain.MessageView, error)
	GetAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*chat.AttachmentContent, error)
	DeleteAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error
}

// Auditor records destructive actions
type Auditor interface {
	Log(ctx context.Context, event *audit.Event) error
}

// Handler handles chat HTTP requests
type Handler struct {
	chatService Service
	auditor     Auditor
	// maxUploadBytes caps the multipart body of attachment uploads
	maxUploadBytes int64
}

// NewHandler creates a new chat handler. auditor may be nil.
func NewHandler(chatService Service, auditor Auditor, maxAttachmentBytes int64) *Handler {
	return &Handler{
		chatService:    chatService,
		auditor:        auditor,
		maxUploadBytes: maxAttachmentBytes + 1<<20,
	}
}

// MarkReadRequest is the optional body of POST /v1/inbox/read
type MarkReadRequest struct {
	UserID *string `json:"user_id"`
	Limit  int     `json:"limit"`
}

// ListInbox returns the conversation list of the caller
// GET /v1/inbox?skip=0&limit=30
func (h *Handler) ListInbox(c *gin.Context) {
	window, err := pagination.ParseWindow(c.Query("skip"), c.Query("limit"), pagination.InboxBounds)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conversations, err := h.chatService.ListInbox(c.Request.Context(), middleware.GetRequester(c), window)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"conversations": conversations,
	})
}

// DeleteThread removes every direct message between the caller and another user
// DELETE /v1/inbox/:userId
func (h *Handler) DeleteThread(c *gin.Context) {
	otherID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	deleted, err := h.chatService.DeleteThread(c.Request.Context(), middleware.GetRequester(c), otherID)
	if err != nil {
		fail(c, err)
		return
	}

	h.record(c, audit.EventThreadDelete, otherID.String(), fmt.Sprintf("deleted=%d", deleted))

	response.Success(c, http.StatusOK, gin.H{
		"deleted": deleted,
	})
}

// MarkRead flips the newest unread direct messages of the caller to read
// POST /v1/inbox/read
func (h *Handler) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, err.Error())
		return
	}

	input := &chat.MarkReadInput{Limit: req.Limit}
	if req.UserID != nil {
		peerID, err := uuid.Parse(*req.UserID)
		if err != nil {
			response.ValidationError(c, "Invalid user ID")
			return
		}
		input.PeerID = &peerID
	}

	updated, err := h.chatService.MarkRead(c.Request.Context(), middleware.GetRequester(c), input)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"updated": updated,
	})
}

// SendMessage posts a message to a channel
// POST /v1/channels/:type/:ownerId/messages
func (h *Handler) SendMessage(c *gin.Context) {
	channel, ownerID, ok := channelParams(c)
	if !ok {
		return
	}

	var req domain.MessageSend
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	view, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		ChannelType: channel,
		OwnerID:     ownerID,
		Sender:      middleware.GetRequester(c),
		Text:        sanitize.Text(req.Text),
		HiddenText:  sanitize.Text(req.HiddenText),
		Operation:   req.Operation,
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, view)
}

// ListChannel returns a page of channel messages
// GET /v1/channels/:type/:ownerId/messages?skip=0&limit=50&sort=desc
func (h *Handler) ListChannel(c *gin.Context) {
	channel, ownerID, ok := channelParams(c)
	if !ok {
		return
	}

	window, err := pagination.ParseWindow(c.Query("skip"), c.Query("limit"), pagination.ChannelBounds)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	sort := domain.SortOrder(c.DefaultQuery("sort", string(domain.SortDesc)))
	if sort != domain.SortAsc && sort != domain.SortDesc {
		response.ValidationError(c, "sort must be asc or desc")
		return
	}

	page, err := h.chatService.ListChannel(c.Request.Context(), &chat.ListChannelInput{
		ChannelType: channel,
		OwnerID:     ownerID,
		Requester:   middleware.GetRequester(c),
		Sort:        sort,
		Window:      window,
	})
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// SendAttachment posts a message carrying a file
// POST /v1/channels/:type/:ownerId/attachments (multipart: file, text)
func (h *Handler) SendAttachment(c *gin.Context) {
	channel, ownerID, ok := channelParams(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ValidationError(c, "file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ValidationError(c, "unable to read file")
		return
	}
	defer file.Close()

	view, err := h.chatService.SendAttachment(c.Request.Context(), &chat.SendAttachmentInput{
		ChannelType: channel,
		OwnerID:     ownerID,
		Sender:      middleware.GetRequester(c),
		Text:        sanitize.Text(c.PostForm("text")),
		Upload: &domain.Upload{
			FileName: sanitize.Filename(fileHeader.Filename),
			Size:     fileHeader.Size,
			Reader:   file,
		},
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.record(c, audit.EventAttachmentUpload, view.MessageID.String(), "")

	response.Success(c, http.StatusCreated, view)
}

// GetMessage returns one message
// GET /v1/messages/:id
func (h *Handler) GetMessage(c *gin.Context) {
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	view, err := h.chatService.GetMessage(c.Request.Context(), messageID, middleware.GetRequester(c))
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// UpdateMessage patches text or read state of a message
// PUT /v1/messages/:id
func (h *Handler) UpdateMessage(c *gin.Context) {
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var patch domain.MessageUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if patch.Text != nil {
		text := sanitize.Text(*patch.Text)
		patch.Text = &text
	}

	view, err := h.chatService.UpdateMessage(c.Request.Context(), messageID, middleware.GetRequester(c), &patch)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// DeleteMessage removes a message
// DELETE /v1/messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteMessage(c.Request.Context(), messageID, middleware.GetRequester(c)); err != nil {
		fail(c, err)
		return
	}
	h.record(c, audit.EventMessageDelete, messageID.String(), "")

	response.Success(c, http.StatusOK, gin.H{
		"message": "Message deleted",
	})
}

// GetAttachment streams the file of a message
// GET /v1/messages/:id/attachment
func (h *Handler) GetAttachment(c *gin.Context) {
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	content, err := h.chatService.GetAttachment(c.Request.Context(), messageID, middleware.GetRequester(c))
	if err != nil {
		fail(c, err)
		return
	}
	defer func() {
		if err := content.Reader.Close(); err != nil {
			logger.FromContext(c.Request.Context()).Warn("Failed to close attachment reader", zap.Error(err))
		}
	}()

	c.DataFromReader(http.StatusOK, content.Info.Size, content.Info.ContentType, content.Reader, map[string]string{
		"Content-Disposition": fmt.Sprintf(`inline; filename="%s"`, sanitize.Filename(content.FileName)),
		"ETag":                content.Info.ETag,
		"Cache-Control":       "private, max-age=3600",
	})
}

// DeleteAttachment removes the file of a message
// DELETE /v1/messages/:id/attachment
func (h *Handler) DeleteAttachment(c *gin.Context) {
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteAttachment(c.Request.Context(), messageID, middleware.GetRequester(c)); err != nil {
		fail(c, err)
		return
	}
	h.record(c, audit.EventAttachmentDelete, messageID.String(), "")

	response.Success(c, http.StatusOK, gin.H{
		"message": "Attachment deleted",
	})
}

func channelParams(c *gin.Context) (domain.ChannelType, uuid.UUID, bool) {
	channel, ok := domain.ParseChannelType(c.Param("type"))
	if !ok {
		response.ValidationError(c, "channel type must be stream, show or user")
		return "", uuid.Nil, false
	}

	ownerID, ok := uuidParam(c, "ownerId")
	if !ok {
		return "", uuid.Nil, false
	}

	return channel, ownerID, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.ValidationError(c, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// record writes an audit entry for the caller. Failures are logged only.
func (h *Handler) record(c *gin.Context, eventType audit.EventType, resource, details string) {
	if h.auditor == nil {
		return
	}

	event := &audit.Event{
		EventType: eventType,
		Resource:  resource,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Details:   details,
	}
	if requester := middleware.GetRequester(c); requester.Authenticated() {
		userID := requester.ID
		event.UserID = &userID
	}

	if err := h.auditor.Log(c.Request.Context(), event); err != nil {
		logger.FromContext(c.Request.Context()).Warn("Failed to write audit event",
			zap.String("event_type", string(eventType)),
			zap.String("resource", resource),
			zap.Error(err))
	}
}

// fail records err for the request log and renders it
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	response.FromError(c, err)
}
