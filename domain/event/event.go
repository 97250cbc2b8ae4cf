// Package event defines the payloads pushed over the realtime channel.
// Persisted state lives in the repositories; everything here is a
// best-effort notification that clients may miss and must be able to
// reconstruct from history.
package event

import (
	"time"

	"carechat/domain"
)

type Kind string

const (
	KindMessageSent   Kind = "message.sent"
	KindStatusChanged Kind = "message.status"
	KindEdited        Kind = "message.edited"
	KindDeleted       Kind = "message.deleted"
	KindReaction      Kind = "message.reaction"
	KindTyping        Kind = "typing"
	KindPresence      Kind = "presence"
)

type DomainEvent interface {
	EventKind() Kind
}

type MessageSent struct {
	Message domain.Message `json:"message"`
}

func (MessageSent) EventKind() Kind { return KindMessageSent }

type StatusChanged struct {
	MessageID      uint64                `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Status         domain.MessageStatus  `json:"status"`
	At             time.Time             `json:"at"`
}

func (StatusChanged) EventKind() Kind { return KindStatusChanged }

type Edited struct {
	MessageID      uint64                `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Content        string                `json:"content"`
	At             time.Time             `json:"at"`
}

func (Edited) EventKind() Kind { return KindEdited }

type Deleted struct {
	MessageID      uint64                `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	At             time.Time             `json:"at"`
}

func (Deleted) EventKind() Kind { return KindDeleted }

type ReactionSet struct {
	MessageID      uint64                `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
	Reaction       *string               `json:"reaction"`
	At             time.Time             `json:"at"`
}

func (ReactionSet) EventKind() Kind { return KindReaction }

// Typing is never persisted; it goes straight to the conversation topic.
type Typing struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         string                `json:"userId"`
	DisplayName    string                `json:"displayName"`
	Typing         bool                  `json:"typing"`
	At             time.Time             `json:"at"`
}

func (Typing) EventKind() Kind { return KindTyping }

// Presence is never persisted; it goes to the global presence topic.
type Presence struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Online      bool      `json:"online"`
	At          time.Time `json:"at"`
}

func (Presence) EventKind() Kind { return KindPresence }

// Envelope is the wire form written to subscribers: the kind tag lets
// clients dispatch without inspecting the payload shape.
type Envelope struct {
	Kind    Kind        `json:"kind"`
	Payload DomainEvent `json:"payload"`
}

func Wrap(e DomainEvent) Envelope {
	return Envelope{Kind: e.EventKind(), Payload: e}
}
