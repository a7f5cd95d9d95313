package ws

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
)

func TestFormatTimestamp_MillisecondUTC(t *testing.T) {
	req := require.New(t)

	// Given an instant with sub-millisecond precision in a non-UTC zone
	paris := time.FixedZone("CET", 60*60)
	instant := time.Date(2025, 3, 14, 10, 26, 53, 589_123_456, paris)

	// Then the wire form is millisecond UTC, fixed width
	req.Equal("2025-03-14T09:26:53.589Z", formatTimestamp(instant))

	// And it parses back with the same layout
	parsed, err := time.Parse(wireTimeLayout, formatTimestamp(instant))
	req.NoError(err)
	req.True(parsed.Equal(instant.Truncate(time.Millisecond)))
}

func TestToWireEvent_MessagePosted(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	wire, ok := toWireEvent(event.MessagePosted{
		ID:         id,
		AuthorID:   domain.ConnectionID("c1"),
		AuthorName: "alice",
		Text:       "hello",
		At:         at,
	})

	req.True(ok)
	req.Equal(MessageEvent{
		Type:      EventMessage,
		ID:        id.String(),
		Text:      "hello",
		Username:  "alice",
		UserID:    "c1",
		Timestamp: "2025-06-01T12:00:00.000Z",
	}, wire)
}

func TestToWireEvent_PresenceAndTyping(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	wire, ok := toWireEvent(event.ParticipantJoined{ID: "c2", Username: "bob", At: at})
	req.True(ok)
	req.Equal(UserJoinedEvent{
		Type:      EventUserJoined,
		ID:        "c2",
		Username:  "bob",
		Timestamp: "2025-06-01T12:00:00.000Z",
	}, wire)

	wire, ok = toWireEvent(event.ParticipantLeft{ID: "c2", Username: "bob", At: at})
	req.True(ok)
	req.Equal(UserLeftEvent{
		Type:      EventUserLeft,
		Username:  "bob",
		Timestamp: "2025-06-01T12:00:00.000Z",
	}, wire)

	wire, ok = toWireEvent(event.TypingChanged{ID: "c2", Username: "bob", IsTyping: true})
	req.True(ok)
	req.Equal(UserTypingEvent{
		Type:     EventUserTyping,
		Username: "bob",
		IsTyping: true,
	}, wire)
}

type unknownEvent struct{}

func (unknownEvent) Origin() domain.ConnectionID { return "" }

func TestToWireEvent_UnknownEventSkipped(t *testing.T) {
	req := require.New(t)

	_, ok := toWireEvent(unknownEvent{})

	req.False(ok)
}

func TestErrorCode_Taxonomy(t *testing.T) {
	req := require.New(t)

	req.Equal("INVALID_NAME", errorCode(errors.ErrInvalidName))
	req.Equal("NOT_JOINED", errorCode(errors.ErrNotJoined))
	req.Equal("ALREADY_JOINED", errorCode(errors.ErrAlreadyJoined))
	req.Equal("EMPTY_MESSAGE", errorCode(errors.ErrEmptyMessage))
	req.Equal("DUPLICATE_CONNECTION", errorCode(errors.ErrDuplicateConnection))
	req.Equal("NOT_FOUND", errorCode(errors.ErrNotFound))
	req.Equal("INTERNAL", errorCode(fmt.Errorf("anything else")))

	// Wrapped sentinels still map to their code
	req.Equal("EMPTY_MESSAGE", errorCode(fmt.Errorf("post: %w", errors.ErrEmptyMessage)))
}
