package chat

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"streamchat-backend/internal/domain"
	"streamchat-backend/internal/service/settings"
)

// memoryStore is an in-memory MessageRepository with the same guard semantics as
// the SQL repository
type memoryStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{messages: make(map[uuid.UUID]*domain.Message)}
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	return &c
}

func (s *memoryStore) Create(ctx context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.MessageID] = clone(message)
	return nil
}

func (s *memoryStore) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return clone(m), nil
}

func (s *memoryStore) Update(ctx context.Context, messageID, partyID uuid.UUID, patch *domain.MessageUpdate) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || !m.IsParty(partyID) {
		return nil, domain.ErrMessageNotFound
	}
	if patch.Text != nil {
		m.Text = *patch.Text
	}
	if patch.IsRead != nil {
		m.IsRead = *patch.IsRead
	}
	m.UpdatedAt = m.UpdatedAt.Add(time.Millisecond)
	return clone(m), nil
}

func (s *memoryStore) Delete(ctx context.Context, messageID, partyID uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || !m.IsParty(partyID) {
		return nil, domain.ErrMessageNotFound
	}
	delete(s.messages, messageID)
	return m, nil
}

func (s *memoryStore) DeleteThread(ctx context.Context, userA, userB uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.messages {
		if m.ChannelType != domain.ChannelUser {
			continue
		}
		if (m.IsAuthor(userA) && m.RecipientID == userB) || (m.IsAuthor(userB) && m.RecipientID == userA) {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) sorted(filter func(*domain.Message) bool, asc bool) []*domain.Message {
	out := make([]*domain.Message, 0)
	for _, m := range s.messages {
		if filter(m) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt) != asc
		}
		return (bytes.Compare(a.MessageID[:], b.MessageID[:]) > 0) != asc
	})
	return out
}

func (s *memoryStore) ListChannel(ctx context.Context, q *domain.ChannelQuery) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[domain.Operation]bool)
	for _, op := range q.Exclude {
		excluded[op] = true
	}
	out := s.sorted(func(m *domain.Message) bool {
		if m.ChannelType != q.ChannelType || excluded[m.Operation] {
			return false
		}
		if q.PeerID != nil {
			return (m.IsAuthor(q.OwnerID) && m.RecipientID == *q.PeerID) || (m.IsAuthor(*q.PeerID) && m.RecipientID == q.OwnerID)
		}
		return m.RecipientID == q.OwnerID
	}, q.Sort == domain.SortAsc)
	if q.Skip >= len(out) {
		return []*domain.Message{}, nil
	}
	end := q.Skip + q.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[q.Skip:end], nil
}

func (s *memoryStore) FetchInboxWindow(ctx context.Context, userID uuid.UUID, exclude []uuid.UUID, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skip := toSet(exclude)
	out := s.sorted(func(m *domain.Message) bool {
		if m.ChannelType != domain.ChannelUser || !m.IsParty(userID) {
			return false
		}
		return !skip[m.RecipientID] && (m.AuthorID == nil || !skip[*m.AuthorID])
	}, false)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkRead(ctx context.Context, recipientID uuid.UUID, peerID *uuid.UUID, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unread := s.sorted(func(m *domain.Message) bool {
		if m.ChannelType != domain.ChannelUser || m.RecipientID != recipientID || m.IsRead {
			return false
		}
		return peerID == nil || m.IsAuthor(*peerID)
	}, false)
	if len(unread) > limit {
		unread = unread[:limit]
	}
	for _, m := range unread {
		s.messages[m.MessageID].IsRead = true
	}
	return int64(len(unread)), nil
}

func (s *memoryStore) SetAttachment(ctx context.Context, messageID uuid.UUID, attachment *domain.Attachment) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	m.Attachment = attachment
	return clone(m), nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memoryStore) put(m *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.MessageID] = clone(m)
}

// fakeBlocks holds blocker -> blocked relations
type fakeBlocks struct {
	relations map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{relations: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (b *fakeBlocks) block(blocker, blocked uuid.UUID) {
	if b.relations[blocker] == nil {
		b.relations[blocker] = make(map[uuid.UUID]bool)
	}
	b.relations[blocker][blocked] = true
}

func (b *fakeBlocks) IsBlocked(ctx context.Context, blockerID, blockedID uuid.UUID) (bool, error) {
	return b.relations[blockerID][blockedID], nil
}

func (b *fakeBlocks) ListBlockedBy(ctx context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	for id := range b.relations[blockerID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *fakeBlocks) ListWhoBlocked(ctx context.Context, blockedID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	for blocker, set := range b.relations {
		if set[blockedID] {
			ids = append(ids, blocker)
		}
	}
	return ids, nil
}

// fakeDirectory resolves registered users
type fakeDirectory struct {
	users map[uuid.UUID]*domain.UserSummary
}

func (d *fakeDirectory) GetSummary(ctx context.Context, userID uuid.UUID) (*domain.UserSummary, error) {
	return d.users[userID], nil
}

func (d *fakeDirectory) GetSummaries(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	out := make(map[uuid.UUID]*domain.UserSummary)
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, streamerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, subscriberID, streamerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) IsPMUnlocked(ctx context.Context, viewerID, streamerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, viewerID, streamerID)
	return args.Bool(0), args.Error(1)
}

type MockStreamerSettingsRepository struct {
	mock.Mock
}

func (m *MockStreamerSettingsRepository) Get(ctx context.Context, streamerID uuid.UUID) (*domain.StreamerSettings, error) {
	args := m.Called(ctx, streamerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamerSettings), args.Error(1)
}

type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) AreOnline(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

type MockAttachmentStorage struct {
	mock.Mock
}

func (m *MockAttachmentStorage) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, objectName, reader, size, contentType)
	return args.Error(0)
}

func (m *MockAttachmentStorage) Rename(ctx context.Context, from, to string) error {
	args := m.Called(ctx, from, to)
	return args.Error(0)
}

func (m *MockAttachmentStorage) Open(ctx context.Context, objectName string) (io.ReadCloser, *domain.ObjectInfo, error) {
	args := m.Called(ctx, objectName)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.Get(1).(*domain.ObjectInfo), args.Error(2)
}

func (m *MockAttachmentStorage) Remove(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID uuid.UUID, notice domain.Notice) error {
	args := m.Called(ctx, userID, notice)
	return args.Error(0)
}

// recordingEmitter captures events synchronously
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

type emitted struct {
	topic string
	event *domain.Event
}

func (e *recordingEmitter) Emit(topic string, event *domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, emitted{topic: topic, event: event})
	return nil
}

func (e *recordingEmitter) topics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.topic
	}
	return out
}

type staticSettings struct {
	snap *settings.Snapshot
}

func (s *staticSettings) Snapshot() *settings.Snapshot {
	return s.snap
}

type fixture struct {
	svc           *Service
	store         *memoryStore
	blocks        *fakeBlocks
	users         *fakeDirectory
	subscriptions *MockSubscriptionRepository
	streamers     *MockStreamerSettingsRepository
	presence      *MockPresenceRepository
	storage       *MockAttachmentStorage
	events        *recordingEmitter
	notifier      *MockNotifier
	settings      *staticSettings

	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:         newMemoryStore(),
		blocks:        newFakeBlocks(),
		users:         &fakeDirectory{users: make(map[uuid.UUID]*domain.UserSummary)},
		subscriptions: new(MockSubscriptionRepository),
		streamers:     new(MockStreamerSettingsRepository),
		presence:      new(MockPresenceRepository),
		storage:       new(MockAttachmentStorage),
		events:        &recordingEmitter{},
		notifier:      new(MockNotifier),
		settings:      &staticSettings{snap: settings.DefaultSnapshot()},
		clock:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	f.svc = NewService(Dependencies{
		Messages:      f.store,
		Blocks:        f.blocks,
		Subscriptions: f.subscriptions,
		Streamers:     f.streamers,
		Users:         f.users,
		Presence:      f.presence,
		Storage:       f.storage,
		Events:        f.events,
		Notifier:      f.notifier,
		Settings:      f.settings,
	}, 10<<20)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Millisecond)
		return f.clock
	}

	return f
}

func (f *fixture) viewer(name string) *domain.Requester {
	id := uuid.New()
	f.users.users[id] = &domain.UserSummary{UserID: id, Username: name, AccountType: domain.AccountViewer}
	return &domain.Requester{ID: id, Name: name, AccountType: domain.AccountViewer}
}

func (f *fixture) streamer(name string, hasStream bool) *domain.Requester {
	id := uuid.New()
	f.users.users[id] = &domain.UserSummary{UserID: id, Username: name, AccountType: domain.AccountStreamer, HasStream: hasStream}
	return &domain.Requester{ID: id, Name: name, AccountType: domain.AccountStreamer}
}

func (f *fixture) streamerSettings(streamerID uuid.UUID, chat, messaging domain.Policy) {
	f.streamers.On("Get", mock.Anything, streamerID).Return(&domain.StreamerSettings{
		StreamerID:      streamerID,
		ChatPolicy:      chat,
		MessagingPolicy: messaging,
		MessagesAllowed: true,
	}, nil)
}

// direct stores a user-channel message at an explicit time
func (f *fixture) direct(from, to uuid.UUID, at time.Time, text string) *domain.Message {
	author := from
	m := &domain.Message{
		MessageID:   uuid.Must(uuid.NewV7()),
		ChannelType: domain.ChannelUser,
		AuthorID:    &author,
		RecipientID: to,
		Text:        text,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	f.store.put(m)
	return m
}

func guest() *domain.Requester {
	return &domain.Requester{IsGuest: true, GuestID: "guest-token"}
}
