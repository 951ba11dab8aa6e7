package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streamchat-backend/internal/domain"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Setting), args.Error(1)
}

func TestRefresher_ServesDefaultsBeforeLoad(t *testing.T) {
	r := NewRefresher(new(MockSource))

	snap := r.Snapshot()

	assert.Equal(t, domain.PolicyEveryone, snap.DefaultChatPolicy)
	assert.Equal(t, domain.PolicyEveryone, snap.DefaultMessagingPolicy)
	assert.Equal(t, DefaultPrivateMinBalance, snap.DefaultPrivateMinBalance)
	assert.True(t, snap.GuestChatEnabled)
}

func TestRefresher_RefreshSwapsSnapshot(t *testing.T) {
	source := new(MockSource)
	source.On("ListSettings", mock.Anything).Return([]domain.Setting{
		{Field: FieldDefaultChatPolicy, Value: "subs"},
		{Field: FieldDefaultMessagingPolicy, Value: "nobody"},
		{Field: FieldPrivateMessagesCost, Value: "250"},
		{Field: FieldGuestChat, Value: "False", Type: "boolean"},
		{Field: "somethingElse", Value: "ignored"},
	}, nil)

	r := NewRefresher(source)
	before := r.Snapshot()

	require.NoError(t, r.Refresh(context.Background()))

	after := r.Snapshot()
	assert.NotSame(t, before, after)
	assert.Equal(t, domain.PolicySubsOnly, after.DefaultChatPolicy)
	assert.Equal(t, domain.PolicyNobody, after.DefaultMessagingPolicy)
	assert.Equal(t, int64(250), after.DefaultPrivateMinBalance)
	assert.False(t, after.GuestChatEnabled)
	assert.False(t, after.LoadedAt.IsZero())
}

func TestRefresher_KeepsPreviousSnapshotOnError(t *testing.T) {
	source := new(MockSource)
	source.On("ListSettings", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	r := NewRefresher(source)
	before := r.Snapshot()

	err := r.Refresh(context.Background())

	assert.Error(t, err)
	assert.Same(t, before, r.Snapshot())
}

func TestRefresher_RejectsInvalidValue(t *testing.T) {
	source := new(MockSource)
	source.On("ListSettings", mock.Anything).Return([]domain.Setting{
		{Field: FieldDefaultChatPolicy, Value: "friends"},
	}, nil)

	r := NewRefresher(source)
	before := r.Snapshot()

	err := r.Refresh(context.Background())

	assert.Error(t, err)
	assert.Same(t, before, r.Snapshot())
}

func TestRefresher_RunStopsOnCancel(t *testing.T) {
	source := new(MockSource)
	source.On("ListSettings", mock.Anything).Return([]domain.Setting{}, nil)

	r := NewRefresher(source)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	source.AssertCalled(t, "ListSettings", mock.Anything)
}

func TestSnapshot_Fallbacks(t *testing.T) {
	snap := DefaultSnapshot()
	price := int64(0)

	assert.Equal(t, domain.PolicyNobody, snap.ChatPolicyOr(domain.PolicyNobody))
	assert.Equal(t, domain.PolicyEveryone, snap.ChatPolicyOr(domain.PolicyUnset))
	assert.Equal(t, domain.PolicyEveryone, snap.MessagingPolicyOr(domain.PolicyUnset))
	assert.Equal(t, int64(0), snap.PrivateMinBalanceOr(&price))
	assert.Equal(t, DefaultPrivateMinBalance, snap.PrivateMinBalanceOr(nil))
}
