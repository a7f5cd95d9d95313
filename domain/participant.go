// Package domain contains core concepts of the chat relay.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// ConnectionID is the opaque identity of a connection, assigned at connect
// time and stable for the connection's lifetime.
type ConnectionID string

// MaxUsernameLength bounds a display name after trimming.
// Display names are not required to be unique; events are keyed by
// ConnectionID internally even though the name is what gets rendered.
const MaxUsernameLength = 20

// Participant is a registered connection with a display name and a typing
// flag. The registry owns the mutable state; everything handed out is a copy.
type Participant struct {
	ID       ConnectionID
	Username string
	IsTyping bool
	JoinedAt time.Time
}
