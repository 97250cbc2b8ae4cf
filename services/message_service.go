package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"carechat/bus"
	"carechat/contract"
	"carechat/domain"
	"carechat/domain/event"
	"carechat/errors"
	"carechat/repositories"
	"carechat/storage"
)

type IMessageService interface {
	Send(cmd SendCommand) (domain.Message, error)
	MarkDelivered(messageID uint64) (domain.Message, error)
	MarkRead(messageID uint64) (domain.Message, error)
	Edit(messageID uint64, requesterID, content string) (domain.Message, error)
	SoftDelete(messageID uint64, requesterID string) (domain.Message, error)
	React(messageID uint64, reaction string) (domain.Message, error)
	History(conv domain.ConversationID, limit int, cursor *string) ([]domain.Message, *string, error)
	ByUser(userID string, limit int, cursor *string) ([]domain.Message, *string, error)
	Unread(userID string) ([]domain.Message, error)
	Typing(userID string, conv domain.ConversationID, typing bool) error
	Presence(userID string, online bool) error
}

// SendCommand carries one validated send request into the state machine.
// For AUDIO the attachment has already been produced by the audio store;
// raw bytes never reach this layer.
type SendCommand struct {
	SenderID   string
	ReceiverID string
	Type       domain.MessageType
	Content    string
	Attachment *storage.AttachmentRef
}

// MessageService owns the message lifecycle: creation, status
// transitions, edit, soft-delete, and the reaction slot. Every broadcast
// happens strictly after the corresponding persistence commit and is
// best-effort: a publish failure is logged, never surfaced.
type MessageService struct {
	repository  repositories.IMessageRepository
	bus         contract.MessageBus
	directory   contract.UserDirectory
	attachments contract.AttachmentStore
	log         *slog.Logger
}

func NewMessageService(
	repository repositories.IMessageRepository,
	messageBus contract.MessageBus,
	directory contract.UserDirectory,
	attachments contract.AttachmentStore,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		repository:  repository,
		bus:         messageBus,
		directory:   directory,
		attachments: attachments,
		log:         log,
	}
}

// Send validates the participants, persists the message with status SENT,
// then fans it out to the conversation topic and the receiver's private
// channel. The private push reaches the receiver even when none of their
// devices subscribe to the topic.
func (s *MessageService) Send(cmd SendCommand) (domain.Message, error) {
	if _, err := s.directory.Lookup(cmd.SenderID); err != nil {
		return domain.Message{}, fmt.Errorf("sender: %w", err)
	}
	if _, err := s.directory.Lookup(cmd.ReceiverID); err != nil {
		return domain.Message{}, fmt.Errorf("receiver: %w", err)
	}
	conv, err := domain.DeriveConversation(cmd.SenderID, cmd.ReceiverID)
	if err != nil {
		return domain.Message{}, err
	}

	now := time.Now().UTC()
	message := domain.Message{
		SenderID:       cmd.SenderID,
		ReceiverID:     cmd.ReceiverID,
		ConversationID: conv,
		Type:           cmd.Type,
		Status:         domain.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch cmd.Type {
	case domain.TypeText:
		if cmd.Content == "" {
			return domain.Message{}, fmt.Errorf("%w: empty content", errors.ErrInvalidArgument)
		}
		message.Content = cmd.Content
	case domain.TypeAudio:
		if cmd.Attachment == nil {
			return domain.Message{}, fmt.Errorf("%w: missing audio attachment", errors.ErrInvalidArgument)
		}
		message.AudioURL = cmd.Attachment.URL
		message.AudioDurationSeconds = cmd.Attachment.DurationSeconds
		message.FileSizeBytes = cmd.Attachment.SizeBytes
		message.MimeType = cmd.Attachment.MimeType
	default:
		return domain.Message{}, fmt.Errorf("%w: message type %q", errors.ErrInvalidArgument, cmd.Type)
	}

	if err := s.repository.Create(&message); err != nil {
		return domain.Message{}, err
	}

	// Persisted: from here on the request succeeds no matter what the
	// transport does.
	sent := event.MessageSent{Message: message}
	s.publish(bus.ConversationTopic(conv), sent)
	s.publishToUser(cmd.ReceiverID, sent)
	return message, nil
}

// MarkDelivered advances the message to DELIVERED. Redundant or backward
// calls are a no-op, not an error.
func (s *MessageService) MarkDelivered(messageID uint64) (domain.Message, error) {
	return s.advance(messageID, domain.StatusDelivered)
}

// MarkRead advances the message to READ, directly from SENT if no
// DELIVERED transition was ever reported.
func (s *MessageService) MarkRead(messageID uint64) (domain.Message, error) {
	return s.advance(messageID, domain.StatusRead)
}

func (s *MessageService) advance(messageID uint64, target domain.MessageStatus) (domain.Message, error) {
	now := time.Now().UTC()
	changed := false
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		changed = m.Advance(target, now)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if changed {
		// The original sender learns their message moved forward.
		s.publishToUser(message.SenderID, event.StatusChanged{
			MessageID:      message.ID,
			ConversationID: message.ConversationID,
			Status:         message.Status,
			At:             now,
		})
	}
	return message, nil
}

// Edit replaces the text body. Only the original sender may edit.
func (s *MessageService) Edit(messageID uint64, requesterID, content string) (domain.Message, error) {
	if content == "" {
		return domain.Message{}, fmt.Errorf("%w: empty content", errors.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if m.SenderID != requesterID {
			return fmt.Errorf("%w: user %s is not the sender of message %d", errors.ErrForbidden, requesterID, messageID)
		}
		m.Content = content
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(bus.ConversationTopic(message.ConversationID), event.Edited{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		Content:        message.Content,
		At:             now,
	})
	return message, nil
}

// SoftDelete marks the message deleted, keeping the row for audit. For
// AUDIO messages the underlying file is dropped best-effort: a failed
// removal is logged and retried later by the sweeper, never surfaced.
func (s *MessageService) SoftDelete(messageID uint64, requesterID string) (domain.Message, error) {
	now := time.Now().UTC()
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if m.SenderID != requesterID {
			return fmt.Errorf("%w: user %s is not the sender of message %d", errors.ErrForbidden, requesterID, messageID)
		}
		if m.DeletedAt == nil {
			m.DeletedAt = &now
		}
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}

	if message.Type == domain.TypeAudio && message.AudioURL != "" {
		if err := s.attachments.Remove(storage.IDFromURL(message.AudioURL)); err != nil {
			s.log.Warn("Attachment removal failed, sweeper will retry",
				"message", message.ID, "error", err)
		}
	}
	s.publish(bus.ConversationTopic(message.ConversationID), event.Deleted{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		At:             now,
	})
	return message, nil
}

// React overwrites the single reaction slot, last write wins. Concurrent
// reactors race silently; an empty reaction clears the slot.
func (s *MessageService) React(messageID uint64, reaction string) (domain.Message, error) {
	now := time.Now().UTC()
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if reaction == "" {
			m.Reaction = nil
		} else {
			m.Reaction = lo.ToPtr(reaction)
		}
		m.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(bus.ConversationTopic(message.ConversationID), event.ReactionSet{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		Reaction:       message.Reaction,
		At:             now,
	})
	return message, nil
}

func (s *MessageService) History(conv domain.ConversationID, limit int, cursor *string) ([]domain.Message, *string, error) {
	return s.repository.Conversation(conv, limit, cursor)
}

func (s *MessageService) ByUser(userID string, limit int, cursor *string) ([]domain.Message, *string, error) {
	return s.repository.ByUser(userID, limit, cursor)
}

// Unread returns live messages addressed to the user that have not yet
// reached READ.
func (s *MessageService) Unread(userID string) ([]domain.Message, error) {
	messages, _, err := s.repository.ByUser(userID, 0, nil)
	if err != nil {
		return nil, err
	}
	unread := lo.Filter(messages, func(m domain.Message, _ int) bool {
		return m.ReceiverID == userID && m.Status != domain.StatusRead && !m.Deleted()
	})
	return unread, nil
}

// Typing publishes an ephemeral typing signal to the conversation topic.
// Nothing is persisted.
func (s *MessageService) Typing(userID string, conv domain.ConversationID, typing bool) error {
	profile, err := s.directory.Lookup(userID)
	if err != nil {
		return err
	}
	s.publish(bus.ConversationTopic(conv), event.Typing{
		ConversationID: conv,
		UserID:         userID,
		DisplayName:    profile.DisplayName,
		Typing:         typing,
		At:             time.Now().UTC(),
	})
	return nil
}

// Presence publishes an online/offline signal to the global presence
// topic. Nothing is persisted.
func (s *MessageService) Presence(userID string, online bool) error {
	profile, err := s.directory.Lookup(userID)
	if err != nil {
		return err
	}
	s.publish(bus.PresenceTopic, event.Presence{
		UserID:      userID,
		DisplayName: profile.DisplayName,
		Online:      online,
		At:          time.Now().UTC(),
	})
	return nil
}

// publish and publishToUser swallow transport failures: the persistence
// commit already happened and the caller's request must still succeed.
func (s *MessageService) publish(topic string, e event.DomainEvent) {
	if err := s.bus.Publish(topic, e); err != nil {
		s.log.Warn("Broker publish failed", "topic", topic, "kind", e.EventKind(), "error", err)
	}
}

func (s *MessageService) publishToUser(userID string, e event.DomainEvent) {
	if err := s.bus.PublishToUser(userID, e); err != nil {
		s.log.Warn("Broker publish failed", "user", userID, "kind", e.EventKind(), "error", err)
	}
}
