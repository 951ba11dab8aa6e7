package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ChannelType is the scope a message belongs to
type ChannelType string

const (
	ChannelStream ChannelType = "stream" // public stream chat
	ChannelShow   ChannelType = "show"   // private show chat
	ChannelUser   ChannelType = "user"   // direct message
)

// ParseChannelType validates a channel name taken from a route
func ParseChannelType(s string) (ChannelType, bool) {
	switch ChannelType(s) {
	case ChannelStream, ChannelShow, ChannelUser:
		return ChannelType(s), true
	}
	return "", false
}

// IsBroadcast reports whether the channel is owned by a streamer (stream or show)
func (c ChannelType) IsBroadcast() bool {
	return c == ChannelStream || c == ChannelShow
}

// Operation marks a message as a side-channel event rather than plain chat
type Operation string

const (
	OperationNone    Operation = ""
	OperationTip     Operation = "tip"
	OperationShow    Operation = "show"
	OperationUser    Operation = "user"
	OperationService Operation = "service"
)

// ParseOperation validates an operation marker
func ParseOperation(s string) (Operation, bool) {
	switch Operation(s) {
	case OperationNone, OperationTip, OperationShow, OperationUser, OperationService:
		return Operation(s), true
	}
	return "", false
}

// HiddenFromListings lists the operations left out of default channel listings
var HiddenFromListings = []Operation{OperationUser, OperationService}

const (
	MaxTextLength = 1000
	// AttachmentPlaceholderText is stored when an attachment is sent without text
	AttachmentPlaceholderText = " "
)

// Attachment references an uploaded file. The object is stored as <StorageID>.<Extension>.
type Attachment struct {
	Extension string `json:"extension" db:"attachment_ext"`
	StorageID string `json:"storage_id" db:"attachment_id"`
}

// ObjectName returns the storage object key
func (a *Attachment) ObjectName() string {
	return a.StorageID + "." + a.Extension
}

// Message represents a chat message entity
// Maps to CockroachDB messages table
type Message struct {
	MessageID   uuid.UUID   `json:"message_id" db:"message_id"`
	ChannelType ChannelType `json:"channel_type" db:"channel_type"`
	AuthorID    *uuid.UUID  `json:"author_id,omitempty" db:"author_id"` // nil for guests
	IsGuest     bool        `json:"is_guest" db:"is_guest"`
	GuestID     string      `json:"guest_id,omitempty" db:"guest_id"` // client token of a guest sender
	RecipientID uuid.UUID   `json:"recipient_id" db:"recipient_id"`
	Text        string      `json:"text" db:"text"`
	HiddenText  string      `json:"-" db:"hidden_text"` // never serialized directly, see views
	Operation   Operation   `json:"operation,omitempty" db:"operation"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	IsRead      bool        `json:"is_read" db:"is_read"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// IsAuthor reports whether userID wrote the message
func (m *Message) IsAuthor(userID uuid.UUID) bool {
	return m.AuthorID != nil && *m.AuthorID == userID
}

// IsParty reports whether userID is the author or the recipient (channel owner)
func (m *Message) IsParty(userID uuid.UUID) bool {
	return m.IsAuthor(userID) || m.RecipientID == userID
}

// OtherParty returns the participant of a direct message that is not userID
func (m *Message) OtherParty(userID uuid.UUID) uuid.UUID {
	if m.IsAuthor(userID) {
		return m.RecipientID
	}
	if m.AuthorID != nil {
		return *m.AuthorID
	}
	return uuid.Nil
}

// MessageSend is the request body of a send
type MessageSend struct {
	Text       string `json:"text"`
	HiddenText string `json:"hidden_text,omitempty"`
	Operation  string `json:"operation,omitempty"`
}

// MessageUpdate is a partial update. Only text and is_read are patchable.
type MessageUpdate struct {
	Text   *string `json:"text,omitempty"`
	IsRead *bool   `json:"is_read,omitempty"`
}

// MessageView is the message shape returned to clients. Hidden text is never a field
// of its own: parties receive it merged into Text, everyone else never sees it.
type MessageView struct {
	MessageID   uuid.UUID      `json:"message_id"`
	ChannelType ChannelType    `json:"channel_type"`
	AuthorID    *uuid.UUID     `json:"author_id,omitempty"`
	IsGuest     bool           `json:"is_guest"`
	RecipientID uuid.UUID      `json:"recipient_id"`
	Text        string         `json:"text"`
	Operation   Operation      `json:"operation,omitempty"`
	Attachment  *Attachment    `json:"attachment,omitempty"`
	IsRead      bool           `json:"is_read"`
	Author      *AuthorProfile `json:"author,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PublicView projects the message for a requester outside {author, recipient}
func (m *Message) PublicView() *MessageView {
	return &MessageView{
		MessageID:   m.MessageID,
		ChannelType: m.ChannelType,
		AuthorID:    m.AuthorID,
		IsGuest:     m.IsGuest,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		Operation:   m.Operation,
		Attachment:  m.Attachment,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// PartyView projects the message for its author or recipient, revealing hidden text
func (m *Message) PartyView() *MessageView {
	v := m.PublicView()
	if m.HiddenText != "" {
		v.Text = m.Text + " " + m.HiddenText
	}
	return v
}

// LastMessage is the inbox projection of the newest message of a conversation
type LastMessage struct {
	MessageID     uuid.UUID `json:"message_id"`
	AuthorID      uuid.UUID `json:"author_id"`
	Text          string    `json:"text"`
	HasAttachment bool      `json:"has_attachment"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Conversation is a derived, non-persisted grouping of direct messages by participant pair
type Conversation struct {
	OtherPartyID  uuid.UUID   `json:"other_party_id"`
	User          *Profile    `json:"user,omitempty"`
	LastMessage   LastMessage `json:"last_message"`
	LastMessageAt time.Time   `json:"last_message_at"`
	UnreadCount   int         `json:"unread_count"`
}

// ChannelPage is the result of a channel listing
type ChannelPage struct {
	Messages          []*MessageView `json:"messages"`
	PrivateMinBalance *int64         `json:"private_min_balance,omitempty"`
	IsPMUnlocked      *bool          `json:"is_pm_unlocked,omitempty"`
}

// SortOrder selects listing direction by created_at
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ChannelQuery selects a page of one channel
type ChannelQuery struct {
	ChannelType ChannelType
	OwnerID     uuid.UUID
	// PeerID is set for user channels: the thread between OwnerID and PeerID in both directions
	PeerID  *uuid.UUID
	Exclude []Operation
	Sort    SortOrder
	Skip    int
	Limit   int
}

// ErrMessageNotFound is returned by stores when no row matches the id and its guard
var ErrMessageNotFound = errors.New("message not found")
