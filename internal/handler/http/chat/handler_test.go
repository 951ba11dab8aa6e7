package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streamchat-backend/internal/domain"
	"streamchat-backend/internal/service/chat"
	"streamchat-backend/pkg/audit"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/pagination"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) SendMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageView, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageView), args.Error(1)
}

func (m *MockService) GetMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*domain.MessageView, error) {
	args := m.Called(ctx, messageID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageView), args.Error(1)
}

func (m *MockService) UpdateMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester, patch *domain.MessageUpdate) (*domain.MessageView, error) {
	args := m.Called(ctx, messageID, requester, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageView), args.Error(1)
}

func (m *MockService) DeleteMessage(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error {
	args := m.Called(ctx, messageID, requester)
	return args.Error(0)
}

func (m *MockService) ListChannel(ctx context.Context, input *chat.ListChannelInput) (*domain.ChannelPage, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChannelPage), args.Error(1)
}

func (m *MockService) ListInbox(ctx context.Context, requester *domain.Requester, window pagination.Window) ([]*domain.Conversation, error) {
	args := m.Called(ctx, requester, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockService) DeleteThread(ctx context.Context, requester *domain.Requester, otherID uuid.UUID) (int64, error) {
	args := m.Called(ctx, requester, otherID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockService) MarkRead(ctx context.Context, requester *domain.Requester, input *chat.MarkReadInput) (int64, error) {
	args := m.Called(ctx, requester, input)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockService) SendAttachment(ctx context.Context, input *chat.SendAttachmentInput) (*domain.MessageView, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageView), args.Error(1)
}

func (m *MockService) GetAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) (*chat.AttachmentContent, error) {
	args := m.Called(ctx, messageID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.AttachmentContent), args.Error(1)
}

func (m *MockService) DeleteAttachment(ctx context.Context, messageID uuid.UUID, requester *domain.Requester) error {
	args := m.Called(ctx, messageID, requester)
	return args.Error(0)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Log(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newRouter(svc Service, requester *domain.Requester) *gin.Engine {
	return newAuditedRouter(svc, nil, requester)
}

func newAuditedRouter(svc Service, auditor Auditor, requester *domain.Requester) *gin.Engine {
	h := NewHandler(svc, auditor, 10<<20)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if requester != nil {
			c.Set("requester", requester)
		}
	})

	r.GET("/v1/inbox", h.ListInbox)
	r.DELETE("/v1/inbox/:userId", h.DeleteThread)
	r.POST("/v1/inbox/read", h.MarkRead)
	r.POST("/v1/channels/:type/:ownerId/messages", h.SendMessage)
	r.GET("/v1/channels/:type/:ownerId/messages", h.ListChannel)
	r.POST("/v1/channels/:type/:ownerId/attachments", h.SendAttachment)
	r.GET("/v1/messages/:id", h.GetMessage)
	r.PUT("/v1/messages/:id", h.UpdateMessage)
	r.DELETE("/v1/messages/:id", h.DeleteMessage)
	r.GET("/v1/messages/:id/attachment", h.GetAttachment)
	r.DELETE("/v1/messages/:id/attachment", h.DeleteAttachment)
	return r
}

func serve(r *gin.Engine, method, path string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func viewer() *domain.Requester {
	return &domain.Requester{ID: uuid.New(), Name: "viewer", AccountType: domain.AccountViewer}
}

func TestSendMessage_Created(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	ownerID := uuid.New()
	r := newRouter(svc, me)

	svc.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *chat.SendMessageInput) bool {
		return in.ChannelType == domain.ChannelStream && in.OwnerID == ownerID &&
			in.Sender == me && in.Text == "hello" && in.HiddenText == "psst"
	})).Return(&domain.MessageView{MessageID: uuid.New(), Text: "hello psst"}, nil)

	w, env := serve(r, http.MethodPost, "/v1/channels/stream/"+ownerID.String()+"/messages",
		strings.NewReader(`{"text":"hello","hidden_text":"psst"}`), "application/json")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	svc.AssertExpectations(t)
}

func TestSendMessage_DeniedCarriesReason(t *testing.T) {
	svc := new(MockService)
	r := newRouter(svc, viewer())
	ownerID := uuid.New()

	svc.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, apperrors.DeniedError(apperrors.ReasonSubscribersOnly, "This chat is for subscribers only."))

	w, env := serve(r, http.MethodPost, "/v1/channels/show/"+ownerID.String()+"/messages",
		strings.NewReader(`{"text":"hi"}`), "application/json")

	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DENIED", env.Error.Code)
	assert.Equal(t, "subscribersOnly", env.Error.Details["reason"])
}

func TestChannelRoutes_RejectBadParams(t *testing.T) {
	svc := new(MockService)
	r := newRouter(svc, viewer())
	ownerID := uuid.New().String()

	tests := []struct {
		name string
		path string
	}{
		{"unknown channel", "/v1/channels/radio/" + ownerID + "/messages"},
		{"bad owner", "/v1/channels/stream/nope/messages"},
		{"limit above ceiling", "/v1/channels/stream/" + ownerID + "/messages?limit=101"},
		{"negative skip", "/v1/channels/stream/" + ownerID + "/messages?skip=-1"},
		{"bad sort", "/v1/channels/stream/" + ownerID + "/messages?sort=up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := serve(r, http.MethodGet, tt.path, nil, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		})
	}
	svc.AssertNotCalled(t, "ListChannel", mock.Anything, mock.Anything)
}

func TestListChannel_Defaults(t *testing.T) {
	svc := new(MockService)
	r := newRouter(svc, nil)
	ownerID := uuid.New()

	svc.On("ListChannel", mock.Anything, &chat.ListChannelInput{
		ChannelType: domain.ChannelStream,
		OwnerID:     ownerID,
		Sort:        domain.SortDesc,
		Window:      pagination.Window{Skip: 0, Limit: 50},
	}).Return(&domain.ChannelPage{Messages: []*domain.MessageView{}}, nil)

	w, _ := serve(r, http.MethodGet, "/v1/channels/stream/"+ownerID.String()+"/messages", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestListInbox(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)

	svc.On("ListInbox", mock.Anything, me, pagination.Window{Skip: 30, Limit: 10}).
		Return([]*domain.Conversation{{OtherPartyID: uuid.New(), UnreadCount: 2}}, nil)

	w, env := serve(r, http.MethodGet, "/v1/inbox?skip=30&limit=10", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"unread_count":2`)

	w, _ = serve(r, http.MethodGet, "/v1/inbox?limit=31", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkRead(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)
	peerID := uuid.New()

	svc.On("MarkRead", mock.Anything, me, &chat.MarkReadInput{}).Return(int64(5), nil).Once()
	svc.On("MarkRead", mock.Anything, me, &chat.MarkReadInput{PeerID: &peerID, Limit: 2}).Return(int64(2), nil).Once()

	w, env := serve(r, http.MethodPost, "/v1/inbox/read", nil, "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":5}`, string(env.Data))

	w, env = serve(r, http.MethodPost, "/v1/inbox/read",
		strings.NewReader(`{"user_id":"`+peerID.String()+`","limit":2}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":2}`, string(env.Data))

	w, _ = serve(r, http.MethodPost, "/v1/inbox/read", strings.NewReader(`{"user_id":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestDeleteThread(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)
	otherID := uuid.New()

	svc.On("DeleteThread", mock.Anything, me, otherID).Return(int64(3), nil)

	w, env := serve(r, http.MethodDelete, "/v1/inbox/"+otherID.String(), nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, string(env.Data))
}

func TestMessageRoutes_ErrorMapping(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)
	missing := uuid.New()
	broken := uuid.New()

	svc.On("DeleteMessage", mock.Anything, missing, me).Return(apperrors.NotFoundError("Message"))
	svc.On("GetMessage", mock.Anything, broken, me).Return(nil, apperrors.DatabaseError(assert.AnError))
	svc.On("UpdateMessage", mock.Anything, missing, me, mock.Anything).Return(nil, apperrors.ForbiddenError("Only the author can edit a message"))

	w, env := serve(r, http.MethodDelete, "/v1/messages/"+missing.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = serve(r, http.MethodGet, "/v1/messages/"+broken.String(), nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, env.Error.Message, assert.AnError.Error())

	w, _ = serve(r, http.MethodPut, "/v1/messages/"+missing.String(), strings.NewReader(`{"text":"edit"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = serve(r, http.MethodGet, "/v1/messages/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAttachment_Multipart(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)
	ownerID := uuid.New()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "cat.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, form.WriteField("text", "look"))
	require.NoError(t, form.Close())

	svc.On("SendAttachment", mock.Anything, mock.MatchedBy(func(in *chat.SendAttachmentInput) bool {
		return in.ChannelType == domain.ChannelUser && in.OwnerID == ownerID && in.Text == "look" &&
			in.Upload.FileName == "cat.png" && in.Upload.Size == int64(len("png-bytes"))
	})).Return(&domain.MessageView{MessageID: uuid.New()}, nil)

	w, _ := serve(r, http.MethodPost, "/v1/channels/user/"+ownerID.String()+"/attachments", &body, form.FormDataContentType())

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)

	w, _ = serve(r, http.MethodPost, "/v1/channels/user/"+ownerID.String()+"/attachments", strings.NewReader(""), "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAttachment_Streams(t *testing.T) {
	svc := new(MockService)
	r := newRouter(svc, nil)
	messageID := uuid.New()

	svc.On("GetAttachment", mock.Anything, messageID, (*domain.Requester)(nil)).Return(&chat.AttachmentContent{
		Reader:   io.NopCloser(strings.NewReader("gif89a")),
		Info:     &domain.ObjectInfo{Size: 6, ContentType: "image/gif", ETag: "abc"},
		FileName: messageID.String() + ".gif",
	}, nil)

	w, _ := serve(r, http.MethodGet, "/v1/messages/"+messageID.String()+"/attachment", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gif89a", w.Body.String())
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, "abc", w.Header().Get("ETag"))
}

func TestDeleteAttachment(t *testing.T) {
	svc := new(MockService)
	me := viewer()
	r := newRouter(svc, me)
	messageID := uuid.New()

	svc.On("DeleteAttachment", mock.Anything, messageID, me).Return(apperrors.FileNotFoundError()).Once()

	w, env := serve(r, http.MethodDelete, "/v1/messages/"+messageID.String()+"/attachment", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "FILE_NOT_FOUND", env.Error.Code)
}

func TestDeleteMessage_Audited(t *testing.T) {
	svc := new(MockService)
	auditor := new(MockAuditor)
	me := viewer()
	r := newAuditedRouter(svc, auditor, me)
	messageID := uuid.New()

	svc.On("DeleteMessage", mock.Anything, messageID, me).Return(nil)
	auditor.On("Log", mock.Anything, mock.MatchedBy(func(e *audit.Event) bool {
		return e.EventType == audit.EventMessageDelete && e.Resource == messageID.String() &&
			e.UserID != nil && *e.UserID == me.ID
	})).Return(assert.AnError)

	w, _ := serve(r, http.MethodDelete, "/v1/messages/"+messageID.String(), nil, "")

	assert.Equal(t, http.StatusOK, w.Code, "audit failures are not surfaced")
	auditor.AssertExpectations(t)
}

func TestSendMessage_StripsControlCharacters(t *testing.T) {
	svc := new(MockService)
	r := newRouter(svc, viewer())
	ownerID := uuid.New()

	svc.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *chat.SendMessageInput) bool {
		return in.Text == "hi\nthere"
	})).Return(&domain.MessageView{MessageID: uuid.New()}, nil)

	w, _ := serve(r, http.MethodPost, "/v1/channels/stream/"+ownerID.String()+"/messages",
		strings.NewReader(`{"text":"hi\u0000\nthere"}`), "application/json")

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}
