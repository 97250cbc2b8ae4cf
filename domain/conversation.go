package domain

import (
	"fmt"
	"time"

	"carechat/errors"
)

// ConversationID is the canonical key for the set of messages exchanged
// between exactly two participants.
type ConversationID string

// DeriveConversation builds the canonical conversation key from two
// participant ids. The key is symmetric: both participants compute the
// same key regardless of who sends. It is a pure function of the two ids,
// so it is stable across restarts and needs no coordination.
func DeriveConversation(a, b string) (ConversationID, error) {
	if a == b {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidParticipants, a)
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return ConversationID(fmt.Sprintf("conv_%s_%s", lo, hi)), nil
}

// Counterpart returns the other participant of a message relative to userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Profile is the projection of a user exposed by the external directory.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ConversationSummary is the per-counterpart view served in conversation
// lists: who the peer is, what was said last, and how much is unread.
type ConversationSummary struct {
	ConversationID ConversationID `json:"conversationId"`
	Peer           Profile        `json:"peer"`
	LastMessage    string         `json:"lastMessage"`
	LastType       MessageType    `json:"lastType"`
	LastActivity   time.Time      `json:"lastActivity"`
	UnreadCount    int            `json:"unreadCount"`
}
