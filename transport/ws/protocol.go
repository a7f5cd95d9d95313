// Package ws bridges WebSocket peers to the hub: wire protocol, per-connection
// sessions, and the HTTP surface around the upgrade endpoint.
package ws

import (
	stderrors "errors"
	"time"

	"chat-relay/domain/event"
	"chat-relay/errors"
)

// Inbound command types.
const (
	CommandJoin    = "join"
	CommandMessage = "message"
	CommandTyping  = "typing"
)

// Outbound event types. Names match what the relay's clients already listen
// for.
const (
	EventMessage    = "message"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventUserTyping = "user-typing"
	EventError      = "error"
)

// Command is the single inbound JSON envelope. Only the fields relevant to
// its Type are read; the connection itself identifies the sender.
type Command struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

type MessageEvent struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type UserJoinedEvent struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type UserLeftEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type UserTypingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorEvent reports a rejected command back to the offending peer only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wireTimeLayout is fixed-width UTC ISO 8601 with milliseconds, so timestamps
// stay parseable and lexically sortable.
const wireTimeLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

// toWireEvent converts a domain event into its outbound JSON shape. Unknown
// event types are skipped rather than delivered half-translated.
func toWireEvent(e event.DomainEvent) (any, bool) {
	switch evt := e.(type) {
	case event.MessagePosted:
		return MessageEvent{
			Type:      EventMessage,
			ID:        evt.ID.String(),
			Text:      evt.Text,
			Username:  evt.AuthorName,
			UserID:    string(evt.AuthorID),
			Timestamp: formatTimestamp(evt.At),
		}, true
	case event.ParticipantJoined:
		return UserJoinedEvent{
			Type:      EventUserJoined,
			ID:        string(evt.ID),
			Username:  evt.Username,
			Timestamp: formatTimestamp(evt.At),
		}, true
	case event.ParticipantLeft:
		return UserLeftEvent{
			Type:      EventUserLeft,
			Username:  evt.Username,
			Timestamp: formatTimestamp(evt.At),
		}, true
	case event.TypingChanged:
		return UserTypingEvent{
			Type:     EventUserTyping,
			Username: evt.Username,
			IsTyping: evt.IsTyping,
		}, true
	default:
		return nil, false
	}
}

// errorCode maps the error taxonomy to stable wire codes.
func errorCode(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrInvalidName):
		return "INVALID_NAME"
	case stderrors.Is(err, errors.ErrNotJoined):
		return "NOT_JOINED"
	case stderrors.Is(err, errors.ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case stderrors.Is(err, errors.ErrEmptyMessage):
		return "EMPTY_MESSAGE"
	case stderrors.Is(err, errors.ErrDuplicateConnection):
		return "DUPLICATE_CONNECTION"
	case stderrors.Is(err, errors.ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
