package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"streamchat-backend/internal/domain"
)

// Setting fields read from app_settings
const (
	FieldDefaultChatPolicy      = "defaultChatPolicy"
	FieldDefaultMessagingPolicy = "defaultMessagingPolicy"
	FieldPrivateMessagesCost    = "privateMessagesCost"
	FieldGuestChat              = "guestChat"
)

// DefaultPrivateMinBalance applies when neither the streamer nor app_settings set a price
const DefaultPrivateMinBalance int64 = 100

// Snapshot is an immutable view of the global settings. A new Snapshot is built on
// every refresh; holders never see a partially applied update.
type Snapshot struct {
	DefaultChatPolicy        domain.Policy
	DefaultMessagingPolicy   domain.Policy
	DefaultPrivateMinBalance int64
	GuestChatEnabled         bool
	LoadedAt                 time.Time
}

// DefaultSnapshot is served until the first successful load
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		DefaultChatPolicy:        domain.PolicyEveryone,
		DefaultMessagingPolicy:   domain.PolicyEveryone,
		DefaultPrivateMinBalance: DefaultPrivateMinBalance,
		GuestChatEnabled:         true,
	}
}

// FromSettings builds a snapshot over the defaults. Unknown fields are ignored; a
// malformed value for a known field fails the whole build.
func FromSettings(rows []domain.Setting, loadedAt time.Time) (*Snapshot, error) {
	snap := DefaultSnapshot()
	snap.LoadedAt = loadedAt

	for _, row := range rows {
		switch row.Field {
		case FieldDefaultChatPolicy, FieldDefaultMessagingPolicy:
			policy, ok := domain.ParsePolicy(row.Value)
			if !ok || policy == domain.PolicyUnset {
				return nil, fmt.Errorf("invalid policy %q for %s", row.Value, row.Field)
			}
			if row.Field == FieldDefaultChatPolicy {
				snap.DefaultChatPolicy = policy
			} else {
				snap.DefaultMessagingPolicy = policy
			}
		case FieldPrivateMessagesCost:
			cost, err := strconv.ParseInt(strings.TrimSpace(row.Value), 10, 64)
			if err != nil || cost < 0 {
				return nil, fmt.Errorf("invalid %s: %q", row.Field, row.Value)
			}
			snap.DefaultPrivateMinBalance = cost
		case FieldGuestChat:
			snap.GuestChatEnabled = strings.EqualFold(strings.TrimSpace(row.Value), "true")
		}
	}

	return snap, nil
}

// ChatPolicyOr returns p, or the default chat policy when p is unset
func (s *Snapshot) ChatPolicyOr(p domain.Policy) domain.Policy {
	if p == domain.PolicyUnset {
		return s.DefaultChatPolicy
	}
	return p
}

// MessagingPolicyOr returns p, or the default messaging policy when p is unset
func (s *Snapshot) MessagingPolicyOr(p domain.Policy) domain.Policy {
	if p == domain.PolicyUnset {
		return s.DefaultMessagingPolicy
	}
	return p
}

// PrivateMinBalanceOr returns the streamer's price, or the global default
func (s *Snapshot) PrivateMinBalanceOr(p *int64) int64 {
	if p == nil {
		return s.DefaultPrivateMinBalance
	}
	return *p
}
