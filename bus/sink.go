package bus

import (
	"log/slog"

	"carechat/domain/event"
)

// ChannelSink buffers events for one subscriber connection. Consume
// never blocks the publisher: when the buffer is full the event is
// dropped, which keeps delivery at-most-once per subscriber.
type ChannelSink struct {
	log    *slog.Logger
	events chan event.DomainEvent
}

func NewChannelSink(log *slog.Logger, capacity int) *ChannelSink {
	return &ChannelSink{log: log, events: make(chan event.DomainEvent, capacity)}
}

func (s *ChannelSink) Consume(e event.DomainEvent) {
	select {
	case s.events <- e:
	default:
		s.log.Debug("Subscriber buffer full, event dropped", "kind", e.EventKind())
	}
}

// Events exposes the receive side for the connection's write pump.
func (s *ChannelSink) Events() <-chan event.DomainEvent {
	return s.events
}
