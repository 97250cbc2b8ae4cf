// Package bus provides the realtime fan-out between the message
// lifecycle and connected subscribers.
//
// It offers best-effort, at-most-once delivery with no guarantees
// regarding durability or redelivery. The Hub is not a message broker:
// the repositories stay the durable source of truth and clients that
// miss a push re-fetch history.
//
// The Hub is safe for concurrent use by multiple goroutines.
package bus

import (
	"log/slog"
	"sync"

	"carechat/contract"
	"carechat/domain"
	"carechat/domain/event"
)

// PresenceTopic carries the global online/offline signals.
const PresenceTopic = "presence"

// ConversationTopic scopes a topic to one conversation.
func ConversationTopic(conv domain.ConversationID) string {
	return "conversation." + string(conv)
}

type Hub struct {
	mu     sync.RWMutex
	log    *slog.Logger
	topics map[string]map[*subscription]struct{}
	users  map[string]map[*subscription]struct{}
}

type subscription struct {
	sink contract.EventSink
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:    log,
		topics: make(map[string]map[*subscription]struct{}),
		users:  make(map[string]map[*subscription]struct{}),
	}
}

// Subscribe attaches a sink to a topic and returns its cancel function.
// If no one is left on the topic after cancel, the topic entry is
// removed entirely to avoid leaking empty sets over time.
func (h *Hub) Subscribe(topic string, sink contract.EventSink) func() {
	sub := &subscription{sink: sink}
	h.mu.Lock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*subscription]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.topics[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
}

// SubscribeUser attaches a sink to a user's private channel. A user may
// hold several subscriptions at once, one per connected device.
func (h *Hub) SubscribeUser(userID string, sink contract.EventSink) func() {
	sub := &subscription{sink: sink}
	h.mu.Lock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*subscription]struct{})
	}
	h.users[userID][sub] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.users[userID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.users, userID)
			}
		}
	}
}

// Publish fans the event out to every current subscriber of the topic.
// Delivery happens outside the lock; a sink that cannot keep up loses
// the event.
func (h *Hub) Publish(topic string, e event.DomainEvent) error {
	h.mu.RLock()
	sinks := snapshot(h.topics[topic])
	h.mu.RUnlock()

	for _, sink := range sinks {
		sink.Consume(e)
	}
	return nil
}

// PublishToUser delivers on the user's private channel, independent of
// any topic subscription. Nobody connected means the push is simply
// dropped.
func (h *Hub) PublishToUser(userID string, e event.DomainEvent) error {
	h.mu.RLock()
	sinks := snapshot(h.users[userID])
	h.mu.RUnlock()

	for _, sink := range sinks {
		sink.Consume(e)
	}
	return nil
}

func snapshot(subs map[*subscription]struct{}) []contract.EventSink {
	if len(subs) == 0 {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(subs))
	for sub := range subs {
		sinks = append(sinks, sub.sink)
	}
	return sinks
}
