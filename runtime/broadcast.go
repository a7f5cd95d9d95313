package runtime

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Broadcaster delivers one event to every currently registered sink, except
// an optional excluded origin. Delivery is fire-and-forget per recipient: a
// full or closed sink loses that single delivery and the fan-out continues.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.IRegistry
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry) *Broadcaster {
	return &Broadcaster{log: log, registry: registry}
}

// Broadcast reads the recipient set at the moment of the call and returns how
// many sinks accepted the event. Failures are logged, never surfaced to the
// sender.
func (b *Broadcaster) Broadcast(ctx context.Context, evt event.DomainEvent, exclude *domain.ConnectionID) int {
	delivered := 0
	for _, recipient := range b.registry.Recipients() {
		if exclude != nil && recipient.ID == *exclude {
			continue
		}
		if err := recipient.Sink.Consume(ctx, evt); err != nil {
			b.log.Debug("Delivery lost",
				"recipient", string(recipient.ID),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}
