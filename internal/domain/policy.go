package domain

import (
	"time"

	"github.com/google/uuid"
)

// Policy controls who may chat in a streamer's channels or message them directly
type Policy string

const (
	PolicyUnset    Policy = ""
	PolicyEveryone Policy = "everyone"
	PolicySubsOnly Policy = "subs"
	PolicyNobody   Policy = "nobody"
)

// ParsePolicy accepts the stored value and the legacy spellings
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "":
		return PolicyUnset, true
	case "everyone":
		return PolicyEveryone, true
	case "subs", "subsOnly", "subs-only":
		return PolicySubsOnly, true
	case "nobody":
		return PolicyNobody, true
	}
	return "", false
}

// StreamerSettings holds per-streamer privacy settings
// Maps to CockroachDB streamer_settings table
type StreamerSettings struct {
	StreamerID        uuid.UUID `json:"streamer_id" db:"streamer_id"`
	ChatPolicy        Policy    `json:"chat_policy" db:"chat_policy"`
	MessagingPolicy   Policy    `json:"messaging_policy" db:"messaging_policy"`
	MessagesAllowed   bool      `json:"messages_allowed" db:"messages_allowed"`
	PrivateMinBalance *int64    `json:"private_min_balance,omitempty" db:"private_min_balance"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultStreamerSettings is used for streamers that never saved settings
func DefaultStreamerSettings(streamerID uuid.UUID) *StreamerSettings {
	return &StreamerSettings{
		StreamerID:      streamerID,
		MessagesAllowed: true,
	}
}

// RelationshipFacts are the externally resolved inputs of the access policy
type RelationshipFacts struct {
	BlockedEitherWay bool
	Subscribed       bool
	SenderIsOwner    bool
	OwnerHasStream   bool
	MessagesAllowed  bool
	MessagingPolicy  Policy
	ChatPolicy       Policy
}
