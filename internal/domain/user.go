package domain

import (
	"github.com/google/uuid"
)

// Account types
const (
	AccountViewer   = "viewer"
	AccountStreamer = "streamer"
	AccountAdmin    = "admin"
)

// Requester is the identity of the current caller. A nil *Requester is an anonymous caller.
type Requester struct {
	ID          uuid.UUID
	Name        string
	AccountType string
	IsGuest     bool
	GuestID     string // client-side token when IsGuest
}

// Authenticated reports whether the caller has an account
func (r *Requester) Authenticated() bool {
	return r != nil && !r.IsGuest && r.ID != uuid.Nil
}

// IsStreamer reports whether the caller is a streamer account
func (r *Requester) IsStreamer() bool {
	return r.Authenticated() && r.AccountType == AccountStreamer
}

// UserSummary is the directory record of a user
// Maps to CockroachDB users table
type UserSummary struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	AccountType string    `json:"account_type" db:"account_type"`
	HasStream   bool      `json:"has_stream" db:"has_stream"`
}

// Name returns the display name, falling back to the username
func (u *UserSummary) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// AuthorProfile is attached to messages echoed to clients
type AuthorProfile struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	AccountType string    `json:"account_type"`
	IsBlocked   bool      `json:"is_blocked,omitempty"` // blocked by the requester
}

// Profile is the inbox projection of the other party
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	AccountType string    `json:"account_type"`
	Online      bool      `json:"online"`
	IsBlocked   bool      `json:"is_blocked"`
}
