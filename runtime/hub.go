package runtime

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
)

// Ensure *Hub implements the contract at compile time.
var _ contract.IHub = (*Hub)(nil)

type task struct {
	fn   func()
	done chan struct{}
}

// Hub is the single mutation authority. Every registry mutation and every
// broadcast goes through one mailbox goroutine, so concurrent joins, leaves,
// messages, and typing updates never interleave inconsistently. Calls are
// synchronous: they return once the mailbox has executed them.
//
// Read-only Snapshot bypasses the mailbox and is served from the registry's
// own consistent view.
type Hub struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster *Broadcaster
	validate    *validator.Validate
	mailbox     chan task
	closed      atomic.Bool
}

func NewHub(log *slog.Logger, registry contract.IRegistry, broadcaster *Broadcaster, mailboxSize int) *Hub {
	h := &Hub{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		validate:    validator.New(),
		mailbox:     make(chan task, mailboxSize),
	}
	h.closed.Store(true)
	return h
}

// Run is the mailbox loop. It is meant to run under the supervisor and only
// stops when the context is canceled; command errors are reported to callers
// and never end the loop.
func (h *Hub) Run(ctx context.Context) error {
	h.closed.Store(false)
	defer h.closed.Store(true)
	h.log.Info("Hub mailbox loop started")

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("Context done, stopping hub mailbox")
			return ctx.Err()
		case t := <-h.mailbox:
			t.fn()
			close(t.done)
		}
	}
}

// do submits fn to the mailbox and waits for its execution. The caller's
// context bounds both the enqueue and the wait.
func (h *Hub) do(ctx context.Context, fn func()) error {
	if h.closed.Load() {
		return errors.ErrHubClosed
	}

	t := task{fn: fn, done: make(chan struct{})}
	select {
	case h.mailbox <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type joinRequest struct {
	Username string `validate:"required,min=1,max=20"`
}

// Join validates the display name, registers the participant, and announces
// the arrival to everyone already present. The new joiner is not sent the
// current roster over the socket; that read lives on GET /participants.
func (h *Hub) Join(ctx context.Context, id domain.ConnectionID, username string, sink contract.EventSink) (domain.Participant, error) {
	name := strings.TrimSpace(username)
	if err := h.validate.Struct(joinRequest{Username: name}); err != nil {
		return domain.Participant{}, errors.ErrInvalidName
	}

	var (
		participant domain.Participant
		joinErr     error
	)
	err := h.do(ctx, func() {
		participant, joinErr = h.registry.Register(id, name, sink)
		if joinErr != nil {
			return
		}
		evt := event.ParticipantJoined{
			ID:       id,
			Username: participant.Username,
			At:       participant.JoinedAt,
		}
		delivered := h.broadcaster.Broadcast(ctx, evt, &id)
		h.log.Info("Participant joined",
			"id", string(id),
			"username", participant.Username,
			"notified", delivered)
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return participant, joinErr
}

// PostMessage snapshots the author's display name at send time and fans the
// message out to every participant, the sender included, matching how the
// relay always behaved.
func (h *Hub) PostMessage(ctx context.Context, id domain.ConnectionID, text string) (domain.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Message{}, errors.ErrEmptyMessage
	}

	var (
		message domain.Message
		postErr error
	)
	err := h.do(ctx, func() {
		author, getErr := h.registry.Get(id)
		if getErr != nil {
			postErr = getErr
			return
		}
		message = domain.Message{
			ID:         uuid.New(),
			AuthorID:   id,
			AuthorName: author.Username,
			Text:       trimmed,
			CreatedAt:  time.Now().UTC(),
		}
		evt := event.MessagePosted{
			ID:         message.ID,
			AuthorID:   message.AuthorID,
			AuthorName: message.AuthorName,
			Text:       message.Text,
			At:         message.CreatedAt,
		}
		h.broadcaster.Broadcast(ctx, evt, nil)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, postErr
}

// SetTyping records the latest typing state and notifies the other
// participants. No-op transitions are still broadcast; the relay never
// suppressed duplicate typing states and clients coalesce on their side.
func (h *Hub) SetTyping(ctx context.Context, id domain.ConnectionID, isTyping bool) error {
	var typingErr error
	err := h.do(ctx, func() {
		if typingErr = h.registry.SetTyping(id, isTyping); typingErr != nil {
			return
		}
		participant, getErr := h.registry.Get(id)
		if getErr != nil {
			typingErr = getErr
			return
		}
		evt := event.TypingChanged{
			ID:       id,
			Username: participant.Username,
			IsTyping: isTyping,
		}
		h.broadcaster.Broadcast(ctx, evt, &id)
	})
	if err != nil {
		return err
	}
	return typingErr
}

// Leave unregisters the participant and announces the departure. The second
// call for the same id reports ErrNotFound and broadcasts nothing, so a
// departure is announced at most once.
func (h *Hub) Leave(ctx context.Context, id domain.ConnectionID) (domain.Participant, error) {
	var (
		participant domain.Participant
		leaveErr    error
	)
	err := h.do(ctx, func() {
		participant, leaveErr = h.registry.Unregister(id)
		if leaveErr != nil {
			return
		}
		evt := event.ParticipantLeft{
			ID:       id,
			Username: participant.Username,
			At:       time.Now().UTC(),
		}
		delivered := h.broadcaster.Broadcast(ctx, evt, &id)
		h.log.Info("Participant left",
			"id", string(id),
			"username", participant.Username,
			"notified", delivered)
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return participant, leaveErr
}

func (h *Hub) Snapshot() []domain.Participant {
	return h.registry.Snapshot()
}

// MailboxChannel exposes the mailbox for capacity sampling only.
func (h *Hub) MailboxChannel() any {
	return h.mailbox
}
