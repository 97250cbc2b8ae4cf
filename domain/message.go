// Package domain contains core concepts of the messaging system.
// Messages are the only persisted entity; conversations are a computed
// view over them and never stored on their own.
package domain

import (
	"fmt"
	"time"

	"carechat/errors"
)

type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeAudio MessageType = "AUDIO"
)

func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case TypeText, TypeAudio:
		return MessageType(s), nil
	}
	return "", fmt.Errorf("%w: message type %q", errors.ErrInvalidArgument, s)
}

// MessageStatus is forward-only: SENT -> DELIVERED -> READ.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func ParseMessageStatus(s string) (MessageStatus, error) {
	if _, ok := statusRank[MessageStatus(s)]; !ok {
		return "", fmt.Errorf("%w: message status %q", errors.ErrInvalidArgument, s)
	}
	return MessageStatus(s), nil
}

// Before reports whether s is strictly behind other in the lifecycle.
func (s MessageStatus) Before(other MessageStatus) bool {
	return statusRank[s] < statusRank[other]
}

// Message represents one persisted chat message between two users.
// Audio fields are populated only when Type is AUDIO.
type Message struct {
	ID             uint64         `json:"id"`
	SenderID       string         `json:"senderId"`
	ReceiverID     string         `json:"receiverId"`
	ConversationID ConversationID `json:"conversationId"`
	Type           MessageType    `json:"type"`
	Content        string         `json:"content,omitempty"`

	AudioURL             string `json:"audioUrl,omitempty"`
	AudioDurationSeconds int    `json:"audioDurationSeconds,omitempty"`
	FileSizeBytes        int64  `json:"fileSizeBytes,omitempty"`
	MimeType             string `json:"mimeType,omitempty"`

	Status   MessageStatus `json:"status"`
	Reaction *string       `json:"reaction,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Advance moves the message to target if target is strictly ahead of the
// current status, stamping DeliveredAt/ReadAt on first arrival. Redundant
// or backward calls leave the message untouched and report no change.
func (m *Message) Advance(target MessageStatus, at time.Time) bool {
	if !m.Status.Before(target) {
		return false
	}
	m.Status = target
	switch target {
	case StatusDelivered:
		if m.DeliveredAt == nil {
			m.DeliveredAt = &at
		}
	case StatusRead:
		if m.ReadAt == nil {
			m.ReadAt = &at
		}
	}
	m.UpdatedAt = at
	return true
}

func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Preview is the text shown in conversation summaries.
func (m *Message) Preview() string {
	if m.Type == TypeAudio {
		return "[audio]"
	}
	return m.Content
}
