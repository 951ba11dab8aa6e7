package chat

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"streamchat-backend/internal/domain"
	apperrors "streamchat-backend/pkg/errors"
)

func tempObjectFor(sender uuid.UUID, ext string) interface{} {
	return mock.MatchedBy(func(name string) bool {
		return strings.HasPrefix(name, "temp"+sender.String()+"-") && strings.HasSuffix(name, "."+ext)
	})
}

func TestSendAttachment_UploadsAndRenames(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	f.subscriptions.On("IsSubscribed", mock.Anything, alice.ID, bob.ID).Return(false, nil)
	f.storage.On("Upload", mock.Anything, tempObjectFor(alice.ID, "png"), mock.Anything, int64(4), "image/png").Return(nil).Once()
	f.storage.On("Rename", mock.Anything, tempObjectFor(alice.ID, "png"), mock.Anything).Return(nil).Once()

	view, err := f.svc.SendAttachment(context.Background(), &SendAttachmentInput{
		ChannelType: domain.ChannelUser,
		OwnerID:     bob.ID,
		Sender:      alice,
		Upload:      &domain.Upload{FileName: "photo.PNG", Size: 4, Reader: strings.NewReader("data")},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentPlaceholderText, view.Text)
	require.NotNil(t, view.Attachment)
	assert.Equal(t, "png", view.Attachment.Extension)

	stored, err := f.store.GetByID(context.Background(), view.MessageID)
	require.NoError(t, err)
	require.NotNil(t, stored.Attachment)
	assert.Equal(t, view.MessageID.String()+".png", stored.Attachment.ObjectName())
	f.storage.AssertCalled(t, "Rename", mock.Anything, mock.Anything, stored.Attachment.ObjectName())
	assert.Len(t, f.events.events, 2)
}

func TestSendAttachment_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")

	tests := []struct {
		name   string
		sender *domain.Requester
		upload *domain.Upload
		code   apperrors.ErrorCode
	}{
		{"guest", guest(), &domain.Upload{FileName: "a.png", Size: 1, Reader: strings.NewReader("a")}, apperrors.ErrCodeUnauthorized},
		{"missing file", alice, nil, apperrors.ErrCodeValidation},
		{"unsupported type", alice, &domain.Upload{FileName: "a.exe", Size: 1, Reader: strings.NewReader("a")}, apperrors.ErrCodeValidation},
		{"too large", alice, &domain.Upload{FileName: "a.png", Size: 11 << 20, Reader: strings.NewReader("a")}, apperrors.ErrCodeValidation},
		{"empty", alice, &domain.Upload{FileName: "a.png", Size: 0, Reader: strings.NewReader("")}, apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendAttachment(context.Background(), &SendAttachmentInput{
				ChannelType: domain.ChannelUser,
				OwnerID:     bob.ID,
				Sender:      tt.sender,
				Upload:      tt.upload,
			})

			assert.True(t, apperrors.HasCode(err, tt.code))
		})
	}
	f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendAttachment_DeniedBeforeUpload(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	f.blocks.block(bob.ID, alice.ID)
	f.subscriptions.On("IsSubscribed", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.notifier.On("Notify", mock.Anything, alice.ID, mock.Anything).Return(nil)

	_, err := f.svc.SendAttachment(context.Background(), &SendAttachmentInput{
		ChannelType: domain.ChannelUser,
		OwnerID:     bob.ID,
		Sender:      alice,
		Upload:      &domain.Upload{FileName: "a.jpg", Size: 1, Reader: strings.NewReader("a")},
	})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDenied))
	f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.store.count())
}

func TestSendAttachment_UploadFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	f.subscriptions.On("IsSubscribed", mock.Anything, alice.ID, bob.ID).Return(false, nil)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := f.svc.SendAttachment(context.Background(), &SendAttachmentInput{
		ChannelType: domain.ChannelUser,
		OwnerID:     bob.ID,
		Sender:      alice,
		Text:        "look",
		Upload:      &domain.Upload{FileName: "a.gif", Size: 1, Reader: strings.NewReader("a")},
	})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))
	assert.Equal(t, 0, f.store.count())
	assert.Empty(t, f.events.events)
}

func attachedMessage(f *fixture, from, to uuid.UUID) *domain.Message {
	m := f.direct(from, to, f.clock, "file")
	m.Attachment = &domain.Attachment{Extension: "jpg", StorageID: m.MessageID.String()}
	f.store.put(m)
	return m
}

func TestGetAttachment(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	eve := f.viewer("eve")
	m := attachedMessage(f, alice.ID, bob.ID)
	objectName := m.MessageID.String() + ".jpg"
	info := &domain.ObjectInfo{Size: 3, ContentType: "image/jpeg"}
	f.storage.On("Open", mock.Anything, objectName).Return(io.NopCloser(strings.NewReader("jpg")), info, nil)

	content, err := f.svc.GetAttachment(context.Background(), m.MessageID, bob)
	require.NoError(t, err)
	defer content.Reader.Close()
	assert.Equal(t, objectName, content.FileName)
	assert.Equal(t, "image/jpeg", content.Info.ContentType)

	_, err = f.svc.GetAttachment(context.Background(), m.MessageID, eve)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	_, err = f.svc.GetAttachment(context.Background(), m.MessageID, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	plain := f.direct(alice.ID, bob.ID, f.clock, "no file")
	_, err = f.svc.GetAttachment(context.Background(), plain.MessageID, alice)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFileNotFound))
}

func TestGetAttachment_ObjectMissing(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	m := attachedMessage(f, alice.ID, bob.ID)
	f.storage.On("Open", mock.Anything, mock.Anything).Return(nil, nil, domain.ErrObjectNotFound)

	_, err := f.svc.GetAttachment(context.Background(), m.MessageID, alice)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFileNotFound))
}

func TestDeleteAttachment(t *testing.T) {
	f := newFixture(t)
	alice := f.viewer("alice")
	bob := f.viewer("bob")
	m := attachedMessage(f, alice.ID, bob.ID)
	f.storage.On("Remove", mock.Anything, m.MessageID.String()+".jpg").Return(assert.AnError).Once()

	// only the author may remove the file
	err := f.svc.DeleteAttachment(context.Background(), m.MessageID, bob)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFileNotFound))

	err = f.svc.DeleteAttachment(context.Background(), m.MessageID, alice)
	require.NoError(t, err, "object removal failures are logged only")

	stored, err := f.store.GetByID(context.Background(), m.MessageID)
	require.NoError(t, err)
	assert.Nil(t, stored.Attachment)
	assert.Equal(t, "file", stored.Text)
	require.NotEmpty(t, f.events.events)
	assert.Equal(t, domain.EventDeleteAttach, f.events.events[0].event.Operation)

	err = f.svc.DeleteAttachment(context.Background(), m.MessageID, alice)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeFileNotFound))
	f.storage.AssertNumberOfCalls(t, "Remove", 1)
}
