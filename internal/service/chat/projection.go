package chat

import (
	"streamchat-backend/internal/domain"
)

// Projection names the response shape a requester is entitled to
type Projection int

const (
	// ProjectionPublic omits hidden text
	ProjectionPublic Projection = iota
	// ProjectionParty reveals hidden text to the author and the recipient
	ProjectionParty
)

// projectionFor is the single role check deciding what a requester may see of a message
func projectionFor(message *domain.Message, requester *domain.Requester) Projection {
	if requester.Authenticated() && message.IsParty(requester.ID) {
		return ProjectionParty
	}
	return ProjectionPublic
}

func viewFor(message *domain.Message, requester *domain.Requester) *domain.MessageView {
	if projectionFor(message, requester) == ProjectionParty {
		return message.PartyView()
	}
	return message.PublicView()
}
