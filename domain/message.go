// Package domain contains core concepts of the chat relay.
// This file defines Message and related rules.
// Messages are immutable and never stored beyond their broadcast.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat message. AuthorName is a snapshot of
// the sender's display name at send time.
type Message struct {
	ID         uuid.UUID
	AuthorID   ConnectionID
	AuthorName string
	Text       string
	CreatedAt  time.Time
}
