package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
	"streamchat-backend/pkg/push"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	if args.Error(0) == nil {
		n.NotificationID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockRepository) MarkPushed(ctx context.Context, notificationID uuid.UUID) error {
	args := m.Called(ctx, notificationID)
	return args.Error(0)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Store(ctx context.Context, token *push.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*push.Token), args.Error(1)
}

func (m *MockTokenRepository) GetByToken(ctx context.Context, token string) (*push.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.Token), args.Error(1)
}

func (m *MockTokenRepository) Remove(ctx context.Context, userID uuid.UUID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Send(ctx context.Context, n *push.Notification, tokens []string) (*push.SendResult, error) {
	args := m.Called(ctx, n, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.SendResult), args.Error(1)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Emit(topic string, event *domain.Event) error {
	args := m.Called(topic, event)
	return args.Error(0)
}

func deniedNotice() domain.Notice {
	return domain.Notice{
		Type:  domain.NotificationTypeChatDenied,
		Title: "Message was not sent.",
		Text:  "This is readonly chat.",
		Icon:  "alert",
	}
}

func TestNotify_PersistsEmitsAndPushes(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenRepository)
	provider := new(MockProvider)
	events := new(MockEmitter)
	svc := NewService(repo, tokens, provider, events)
	userID := uuid.New()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == userID && n.Body == "This is readonly chat." && n.Type == domain.NotificationTypeChatDenied
	})).Return(nil)
	events.On("Emit", "user_"+userID.String(), mock.MatchedBy(func(e *domain.Event) bool {
		return e.Operation == domain.EventNotification && e.Notice.Title == "Message was not sent."
	})).Return(nil)
	tokens.On("GetByUserID", mock.Anything, userID).Return([]*push.Token{
		{Token: "live", Active: true},
		{Token: "stale", Active: true},
		{Token: "off", Active: false},
	}, nil)
	provider.On("Send", mock.Anything, mock.Anything, []string{"live", "stale"}).
		Return(&push.SendResult{SuccessCount: 1, FailureCount: 1, InvalidTokens: []string{"stale"}}, nil)
	tokens.On("Remove", mock.Anything, userID, "stale").Return(nil)
	repo.On("MarkPushed", mock.Anything, mock.Anything).Return(nil)

	err := svc.Notify(context.Background(), userID, deniedNotice())

	require.NoError(t, err)
	repo.AssertExpectations(t)
	events.AssertExpectations(t)
	tokens.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestNotify_StoreFailureIsReturned(t *testing.T) {
	repo := new(MockRepository)
	events := new(MockEmitter)
	svc := NewService(repo, new(MockTokenRepository), new(MockProvider), events)

	repo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	err := svc.Notify(context.Background(), uuid.New(), deniedNotice())

	assert.ErrorIs(t, err, assert.AnError)
	events.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestNotify_DeliveryFailuresAreSwallowed(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenRepository)
	provider := new(MockProvider)
	events := new(MockEmitter)
	svc := NewService(repo, tokens, provider, events)
	userID := uuid.New()

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	events.On("Emit", mock.Anything, mock.Anything).Return(assert.AnError)
	tokens.On("GetByUserID", mock.Anything, userID).Return([]*push.Token{{Token: "t", Active: true}}, nil)
	provider.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	err := svc.Notify(context.Background(), userID, deniedNotice())

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "MarkPushed", mock.Anything, mock.Anything)
}

func TestNotify_NoTokensSkipsPush(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenRepository)
	provider := new(MockProvider)
	events := new(MockEmitter)
	svc := NewService(repo, tokens, provider, events)
	userID := uuid.New()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.Type == domain.NotificationTypeSystem
	})).Return(nil)
	events.On("Emit", mock.Anything, mock.Anything).Return(nil)
	tokens.On("GetByUserID", mock.Anything, userID).Return([]*push.Token{}, nil)

	err := svc.Notify(context.Background(), userID, domain.Notice{Title: "Welcome"})

	assert.NoError(t, err)
	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterToken(t *testing.T) {
	tokens := new(MockTokenRepository)
	svc := NewService(new(MockRepository), tokens, new(MockProvider), new(MockEmitter))
	userID := uuid.New()
	previousOwner := uuid.New()

	err := svc.RegisterToken(context.Background(), &RegisterTokenInput{UserID: userID, Token: "", Type: push.TokenTypeFCM})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	err = svc.RegisterToken(context.Background(), &RegisterTokenInput{UserID: userID, Token: "t", Type: "web"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	tokens.On("GetByToken", mock.Anything, "device").Return(&push.Token{UserID: previousOwner, Token: "device"}, nil)
	tokens.On("Remove", mock.Anything, previousOwner, "device").Return(nil)
	tokens.On("Store", mock.Anything, mock.MatchedBy(func(tok *push.Token) bool {
		return tok.UserID == userID && tok.Active && tok.Type == push.TokenTypeAPNs
	})).Return(nil)

	err = svc.RegisterToken(context.Background(), &RegisterTokenInput{UserID: userID, Token: "device", Type: push.TokenTypeAPNs, Platform: "ios"})

	require.NoError(t, err)
	tokens.AssertExpectations(t)
}

func TestUnregisterToken(t *testing.T) {
	tokens := new(MockTokenRepository)
	svc := NewService(new(MockRepository), tokens, new(MockProvider), new(MockEmitter))
	owner := uuid.New()

	tokens.On("GetByToken", mock.Anything, "mine").Return(&push.Token{UserID: owner, Token: "mine"}, nil)
	tokens.On("GetByToken", mock.Anything, "unknown").Return(nil, nil)
	tokens.On("Remove", mock.Anything, owner, "mine").Return(nil)

	assert.NoError(t, svc.UnregisterToken(context.Background(), owner, "mine"))

	err := svc.UnregisterToken(context.Background(), uuid.New(), "mine")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	err = svc.UnregisterToken(context.Background(), owner, "unknown")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}
