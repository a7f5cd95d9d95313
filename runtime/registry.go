// Package runtime wires participants, broadcast, and the hub coordinator.
// It moves events around without containing domain rules of its own.
package runtime

import (
	"sort"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

type entry struct {
	participant domain.Participant
	sink        contract.EventSink
	seq         uint64
}

// Registry is the authoritative mapping of connection id to display name,
// typing state, and delivery sink. Mutations arrive only through the hub's
// mailbox; reads (Snapshot, Get, Recipients) may come from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ConnectionID]*entry
	nextSeq uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.ConnectionID]*entry)}
}

// Register stores a participant with typing=false. The join sequence number
// keeps Snapshot in join order. Name validity is checked by the hub before
// this call.
func (r *Registry) Register(id domain.ConnectionID, username string, sink contract.EventSink) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return domain.Participant{}, errors.ErrDuplicateConnection
	}

	p := domain.Participant{
		ID:       id,
		Username: username,
		IsTyping: false,
		JoinedAt: time.Now().UTC(),
	}
	r.entries[id] = &entry{participant: p, sink: sink, seq: r.nextSeq}
	r.nextSeq++
	return p, nil
}

// Unregister removes and returns the participant. A second call for the same
// id reports ErrNotFound, which is how callers keep the left event unique.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.Participant{}, errors.ErrNotFound
	}
	delete(r.entries, id)
	return e.participant, nil
}

// SetTyping updates the typing flag in place. A no-op transition still
// succeeds; the hub decides whether to broadcast it.
func (r *Registry) SetTyping(id domain.ConnectionID, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return errors.ErrNotFound
	}
	e.participant.IsTyping = isTyping
	return nil
}

func (r *Registry) Get(id domain.ConnectionID) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.Participant{}, errors.ErrNotFound
	}
	return e.participant, nil
}

// Snapshot returns a point-in-time copy of all participants in join order.
func (r *Registry) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	participants := make([]domain.Participant, 0, len(ordered))
	for _, e := range ordered {
		participants = append(participants, e.participant)
	}
	return participants
}

// Recipients returns the current delivery set. The broadcaster calls this at
// the moment of each broadcast, so a participant removed just before the call
// is never handed an event.
func (r *Registry) Recipients() []contract.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipients := make([]contract.Recipient, 0, len(r.entries))
	for id, e := range r.entries {
		recipients = append(recipients, contract.Recipient{ID: id, Sink: e.sink})
	}
	return recipients
}

// Count is used by the stats endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
