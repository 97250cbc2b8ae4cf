//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"carechat/domain"
	"carechat/domain/event"
)

// MessageBus is the push side of the system. Implementations are
// best-effort, at-most-once transports; the repositories remain the
// durable source of truth and a publish failure never unwinds a commit.
type MessageBus interface {
	// Publish delivers an event to every subscriber of a topic.
	Publish(topic string, e event.DomainEvent) error
	// PublishToUser delivers an event on a user's private channel,
	// independent of any topic subscription.
	PublishToUser(userID string, e event.DomainEvent) error
}

// EventSink consumes events on behalf of one subscriber. Consume must not
// block the publisher; slow consumers lose events.
type EventSink interface {
	Consume(e event.DomainEvent)
}

// UserDirectory resolves user ids against the external profile store.
// The messaging core never mutates profiles.
type UserDirectory interface {
	Lookup(id string) (domain.Profile, error)
	List() []domain.Profile
}

// AttachmentStore abstracts the audio file store as seen by the message
// lifecycle: soft-deleting an AUDIO message drops the underlying file.
type AttachmentStore interface {
	Remove(id string) error
}

// Worker is a supervised background task. It runs until its context is
// cancelled or it returns on its own.
type Worker interface {
	Run(ctx context.Context) error
}
