// Package event defines the ephemeral events the hub fans out to sessions.
// Events are value types, created once and never mutated after broadcast.
package event

import (
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
)

// DomainEvent is anything the broadcaster can deliver to a session sink.
// Origin identifies the connection the event was produced for, so the
// broadcaster can exclude it where the protocol requires.
type DomainEvent interface {
	Origin() domain.ConnectionID
}

// MessagePosted carries a chat message to every participant.
type MessagePosted struct {
	ID         uuid.UUID
	AuthorID   domain.ConnectionID
	AuthorName string
	Text       string
	At         time.Time
}

func (e MessagePosted) Origin() domain.ConnectionID { return e.AuthorID }

// ParticipantJoined announces a new participant to everyone already present.
type ParticipantJoined struct {
	ID       domain.ConnectionID
	Username string
	At       time.Time
}

func (e ParticipantJoined) Origin() domain.ConnectionID { return e.ID }

// ParticipantLeft announces a departure. Emitted at most once per connection.
type ParticipantLeft struct {
	ID       domain.ConnectionID
	Username string
	At       time.Time
}

func (e ParticipantLeft) Origin() domain.ConnectionID { return e.ID }

// TypingChanged carries the latest typing state of a participant. The hub
// does not coalesce; recipients keep only the latest value per name.
type TypingChanged struct {
	ID       domain.ConnectionID
	Username string
	IsTyping bool
}

func (e TypingChanged) Origin() domain.ConnectionID { return e.ID }
