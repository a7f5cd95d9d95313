package errors

import "fmt"

var (
	// ErrInvalidName rejects a join whose display name is empty after
	// trimming or longer than 20 characters.
	ErrInvalidName = fmt.Errorf("display name must be 1 to 20 characters")

	// ErrNotJoined rejects message/typing commands sent before a join.
	ErrNotJoined = fmt.Errorf("command requires a prior join")

	// ErrAlreadyJoined rejects a second join on the same connection.
	ErrAlreadyJoined = fmt.Errorf("connection already joined")

	// ErrDuplicateConnection signals a registry insert for a connection id
	// that is already registered. The transport assigns unique ids, so
	// hitting this means an invariant was broken upstream.
	ErrDuplicateConnection = fmt.Errorf("connection id already registered")

	// ErrNotFound signals an operation against an unregistered connection id,
	// including a second unregister.
	ErrNotFound = fmt.Errorf("participant not found")

	ErrEmptyMessage = fmt.Errorf("message text is empty")
	ErrHubClosed    = fmt.Errorf("hub is not running")
	ErrWorkerPanic  = fmt.Errorf("worker panic")
)
