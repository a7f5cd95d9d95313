//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the delivery end of one connection. Consume must not block:
// a sink whose buffer is full reports an error and the broadcaster moves on.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Recipient pairs a registered connection with its sink so the broadcaster
// can honor per-event exclusion.
type Recipient struct {
	ID   domain.ConnectionID
	Sink EventSink
}

type IRegistry interface {
	Register(id domain.ConnectionID, username string, sink EventSink) (domain.Participant, error)
	Unregister(id domain.ConnectionID) (domain.Participant, error)
	SetTyping(id domain.ConnectionID, isTyping bool) error
	Get(id domain.ConnectionID) (domain.Participant, error)
	Snapshot() []domain.Participant
	Recipients() []Recipient
}

// IHub is the single mutation authority over the registry. Every call is
// serialized through the hub's mailbox; methods return once the mutation and
// its broadcast have been handed off to the recipients' sinks.
type IHub interface {
	Join(ctx context.Context, id domain.ConnectionID, username string, sink EventSink) (domain.Participant, error)
	PostMessage(ctx context.Context, id domain.ConnectionID, text string) (domain.Message, error)
	SetTyping(ctx context.Context, id domain.ConnectionID, isTyping bool) error
	Leave(ctx context.Context, id domain.ConnectionID) (domain.Participant, error)
	Snapshot() []domain.Participant
}
